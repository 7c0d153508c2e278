package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// Storage is the subset of a fiber storage backend (redis in production)
// used to cache provider pages. Get returns nil, nil for a missing key.
type Storage interface {
	Get(key string) ([]byte, error)
	Set(key string, val []byte, exp time.Duration) error
}

// Cached wraps a provider and memoizes its pages for a TTL, so retried runs
// do not pay for the same provider call twice. Cache failures are logged and
// fall through to the wrapped provider.
type Cached struct {
	next   Provider
	store  Storage
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached returns next unchanged when store is nil or ttl is not positive.
func NewCached(next Provider, store Storage, ttl time.Duration, logger *slog.Logger) Provider {
	if store == nil || ttl <= 0 {
		return next
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cached{next: next, store: store, ttl: ttl, logger: logger}
}

// Name returns the wrapped provider's name.
func (c *Cached) Name() string {
	return c.next.Name()
}

// FetchSummary returns the cached summary or fetches it.
func (c *Cached) FetchSummary(ctx context.Context, host string) (*Summary, error) {
	return cached(c, c.key("summary", host, 0, 0), func() (*Summary, error) {
		return c.next.FetchSummary(ctx, host)
	})
}

// FetchBacklinks returns the cached page or fetches it.
func (c *Cached) FetchBacklinks(ctx context.Context, host string, limit, offset int) (*Page[BacklinkItem], error) {
	return cached(c, c.key("backlinks", host, limit, offset), func() (*Page[BacklinkItem], error) {
		return c.next.FetchBacklinks(ctx, host, limit, offset)
	})
}

// FetchRefDomains returns the cached page or fetches it.
func (c *Cached) FetchRefDomains(ctx context.Context, host string, limit, offset int) (*Page[RefDomainItem], error) {
	return cached(c, c.key("refdomains", host, limit, offset), func() (*Page[RefDomainItem], error) {
		return c.next.FetchRefDomains(ctx, host, limit, offset)
	})
}

// FetchAnchors returns the cached page or fetches it.
func (c *Cached) FetchAnchors(ctx context.Context, host string, limit, offset int) (*Page[AnchorItem], error) {
	return cached(c, c.key("anchors", host, limit, offset), func() (*Page[AnchorItem], error) {
		return c.next.FetchAnchors(ctx, host, limit, offset)
	})
}

func (c *Cached) key(op, host string, limit, offset int) string {
	return fmt.Sprintf("backlinks:provider:%s:%s:%s:%d:%d", c.next.Name(), op, host, limit, offset)
}

func cached[T any](c *Cached, key string, fetch func() (*T, error)) (*T, error) {
	raw, err := c.store.Get(key)
	if err != nil {
		c.logger.Warn("provider cache read failed", "key", key, "error", err)
	} else if len(raw) > 0 {
		var v T
		if err := json.Unmarshal(raw, &v); err == nil {
			return &v, nil
		}
		c.logger.Warn("provider cache entry corrupt", "key", key)
	}

	v, err := fetch()
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(v); err == nil {
		if err := c.store.Set(key, data, c.ttl); err != nil {
			c.logger.Warn("provider cache write failed", "key", key, "error", err)
		}
	}
	return v, nil
}
