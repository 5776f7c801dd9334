package credential

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hive-corporation/soarbridge/internal/metrics"
)

var ErrEmptyToken = errors.New("token generation returned an empty token")

// FetchFunc generates a brand new token from the connection credentials.
type FetchFunc func(ctx context.Context) (string, error)

// ValidateFunc probes whether a previously issued token is still accepted.
type ValidateFunc func(ctx context.Context, token string) (bool, error)

// TokenCache reuses a bearer credential across calls within its validity
// window. It is owned by one connection profile. Refresh is serialised, so
// concurrent callers trigger at most one regeneration.
type TokenCache struct {
	vendor   string
	fetch    FetchFunc
	validate ValidateFunc
	ttl      time.Duration
	now      func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

type Option func(*TokenCache)

// WithValidator probes a stale token before regenerating it. A token that
// passes the probe gets a fresh TTL.
func WithValidator(v ValidateFunc) Option {
	return func(c *TokenCache) { c.validate = v }
}

// WithClock is used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *TokenCache) { c.now = now }
}

func NewTokenCache(vendor string, ttl time.Duration, fetch FetchFunc, opts ...Option) *TokenCache {
	c := &TokenCache{
		vendor: vendor,
		fetch:  fetch,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Token returns the cached token while it is fresh, otherwise probes or
// regenerates it.
func (c *TokenCache) Token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.expiresAt) {
		return c.token, nil
	}

	if c.token != "" && c.validate != nil {
		ok, err := c.validate(ctx, c.token)
		if err != nil {
			return "", fmt.Errorf("%s token validation: %w", c.vendor, err)
		}
		if ok {
			c.expiresAt = now.Add(c.ttl)
			return c.token, nil
		}
	}

	token, err := c.fetch(ctx)
	if err != nil {
		metrics.RecordTokenRefresh(c.vendor, "error")
		c.token = ""
		return "", err
	}
	if token == "" {
		metrics.RecordTokenRefresh(c.vendor, "error")
		return "", ErrEmptyToken
	}
	metrics.RecordTokenRefresh(c.vendor, "success")

	c.token = token
	c.expiresAt = now.Add(c.ttl)
	return token, nil
}

// Invalidate drops the cached token, e.g. after the vendor rejected it.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiresAt = time.Time{}
}
