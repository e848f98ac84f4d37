package provider

import (
	"context"
	"sync"
	"time"
)

// TokenCache holds a bearer token with an expiry and refreshes it lazily
// through the supplied fetch function. Concurrent refreshes are tolerated;
// the last writer wins, which is harmless because every fetched token is
// valid.
type TokenCache struct {
	mu        sync.Mutex
	token     string
	expiresAt time.Time
	ttl       time.Duration
}

// NewTokenCache creates a cache whose tokens live for ttl after fetch.
func NewTokenCache(ttl time.Duration) *TokenCache {
	return &TokenCache{ttl: ttl}
}

// Get returns the cached token, fetching a fresh one when missing or expired.
func (c *TokenCache) Get(ctx context.Context, fetch func(context.Context) (string, error)) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Before(c.expiresAt) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	token, err := fetch(ctx)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.token = token
	c.expiresAt = time.Now().Add(c.ttl)
	c.mu.Unlock()
	return token, nil
}

// Invalidate drops the cached token so the next Get refetches.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
