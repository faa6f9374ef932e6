package clients

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"presenca/server/internal/auth"
	"presenca/server/internal/config"
)

func jwksHandler(t *testing.T, key *rsa.PublicKey) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, _ *http.Request) {
		set := auth.JWKSet{Keys: []auth.JWK{{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes()),
		}}}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(set)
	}
}

func TestIdentityFetchesJWKS(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("keygen error: %v", err)
	}
	server := httptest.NewServer(jwksHandler(t, &key.PublicKey))
	defer server.Close()

	source, err := New(context.Background(), config.Config{
		JWKSURL:         server.URL,
		JWKSRefresh:     time.Hour,
		JWKSDialTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("identity init error: %v", err)
	}
	publicKey, err := source.PublicKey(context.Background())
	if err != nil {
		t.Fatalf("public key error: %v", err)
	}
	if publicKey.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatalf("expected fetched key to match provider key")
	}
}

func TestIdentityServesStaleKeyOnRefreshFailure(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("keygen error: %v", err)
	}
	server := httptest.NewServer(jwksHandler(t, &key.PublicKey))

	source, err := New(context.Background(), config.Config{
		JWKSURL:         server.URL,
		JWKSRefresh:     0, // always considered stale
		JWKSDialTimeout: 2 * time.Second,
	})
	if err != nil {
		t.Fatalf("identity init error: %v", err)
	}
	server.Close()

	publicKey, err := source.PublicKey(context.Background())
	if err != nil {
		t.Fatalf("expected cached key to be served, got %v", err)
	}
	if publicKey.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatalf("expected stale key to match original provider key")
	}
}

func TestNewRequiresConfiguration(t *testing.T) {
	if _, err := New(context.Background(), config.Config{}); err == nil {
		t.Fatalf("expected error without identity configuration")
	}
}
