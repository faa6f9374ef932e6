package clients

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"presenca/server/internal/auth"
	"presenca/server/internal/config"
)

// KeySource resolves the identity provider's current token-signing key.
type KeySource interface {
	PublicKey(ctx context.Context) (*rsa.PublicKey, error)
}

// StaticKey pins a single key, used with a configured PEM and in tests.
type StaticKey struct {
	Key *rsa.PublicKey
}

func (s StaticKey) PublicKey(context.Context) (*rsa.PublicKey, error) {
	if s.Key == nil {
		return nil, errors.New("identity_not_configured")
	}
	return s.Key, nil
}

// Identity fetches the provider's JWKS over HTTP and caches the signing
// key for the configured refresh window. A stale key is served when a
// refresh attempt fails so token verification keeps working through
// provider outages.
type Identity struct {
	jwksURL string
	refresh time.Duration
	client  *http.Client

	mu        sync.RWMutex
	key       *rsa.PublicKey
	fetchedAt time.Time
}

// New builds the key source for the configured identity provider: a
// static PEM pin when JWTPublicKey is set, otherwise a JWKS client. The
// initial JWKS fetch happens here so a misconfigured provider fails at
// startup.
func New(ctx context.Context, cfg config.Config) (KeySource, error) {
	if cfg.JWTPublicKey != "" {
		key, err := auth.ParseRSAPublicKey(cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
		return StaticKey{Key: key}, nil
	}
	if cfg.JWKSURL == "" {
		return nil, errors.New("identity_not_configured")
	}
	identity := &Identity{
		jwksURL: cfg.JWKSURL,
		refresh: cfg.JWKSRefresh,
		client:  &http.Client{Timeout: cfg.JWKSDialTimeout},
	}
	if err := identity.fetch(ctx); err != nil {
		return nil, err
	}
	return identity, nil
}

func (i *Identity) PublicKey(ctx context.Context) (*rsa.PublicKey, error) {
	i.mu.RLock()
	key := i.key
	stale := time.Since(i.fetchedAt) > i.refresh
	i.mu.RUnlock()

	if key != nil && !stale {
		return key, nil
	}
	if err := i.fetch(ctx); err != nil {
		if key != nil {
			return key, nil
		}
		return nil, err
	}
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.key, nil
}

func (i *Identity) fetch(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.jwksURL, nil)
	if err != nil {
		return err
	}
	resp, err := i.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("jwks fetch status %d", resp.StatusCode)
	}
	var set auth.JWKSet
	if err := json.NewDecoder(resp.Body).Decode(&set); err != nil {
		return err
	}
	key, err := auth.PublicKeyFromSet(set)
	if err != nil {
		return err
	}
	i.mu.Lock()
	i.key = key
	i.fetchedAt = time.Now()
	i.mu.Unlock()
	return nil
}
