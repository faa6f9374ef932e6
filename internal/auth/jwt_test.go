package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func signToken(t *testing.T, key *rsa.PrivateKey, claims Claims) string {
	t.Helper()
	now := time.Now().UTC()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.UserID,
		Issuer:    "test-issuer",
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		t.Fatalf("sign error: %v", err)
	}
	return token
}

func TestParseTokenRoundTrip(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("keygen error: %v", err)
	}

	token := signToken(t, key, Claims{UserID: "user-1", Email: "staff@escola.test"})
	claims, err := ParseToken(&key.PublicKey, "test-issuer", token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if claims.UserID != "user-1" || claims.Email != "staff@escola.test" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestParseTokenRejectsWrongIssuer(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("keygen error: %v", err)
	}
	token := signToken(t, key, Claims{UserID: "user-1"})
	if _, err := ParseToken(&key.PublicKey, "other-issuer", token); err == nil {
		t.Fatalf("expected issuer mismatch to error")
	}
}

func TestParseTokenRejectsWrongKey(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("keygen error: %v", err)
	}
	other, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("keygen error: %v", err)
	}
	token := signToken(t, key, Claims{UserID: "user-1"})
	if _, err := ParseToken(&other.PublicKey, "test-issuer", token); err == nil {
		t.Fatalf("expected signature mismatch to error")
	}
}

func TestPublicKeyFromSet(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("keygen error: %v", err)
	}
	set := JWKSet{Keys: []JWK{
		{Kty: "EC", N: "ignored", E: "ignored"},
		{
			Kty: "RSA",
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
		},
	}}

	publicKey, err := PublicKeyFromSet(set)
	if err != nil {
		t.Fatalf("jwks error: %v", err)
	}
	if publicKey.N.Cmp(key.PublicKey.N) != 0 || publicKey.E != key.PublicKey.E {
		t.Fatalf("expected reconstructed key to match")
	}
}

func TestPublicKeyFromSetNoRSAKey(t *testing.T) {
	if _, err := PublicKeyFromSet(JWKSet{Keys: []JWK{{Kty: "EC"}}}); err == nil {
		t.Fatalf("expected error when no RSA key present")
	}
}
