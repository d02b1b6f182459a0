// Package cache keeps received claims in a store for a bounded time.
// Locally authored claims share the store but are never evicted.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/k0sti/snowclaw-memory/internal/codec"
	"github.com/k0sti/snowclaw-memory/internal/metrics"
	"github.com/k0sti/snowclaw-memory/internal/model"
	"github.com/k0sti/snowclaw-memory/internal/store"
)

// DefaultTTL is how long a claim stays cached when no TTL is configured.
const DefaultTTL = 7 * 24 * time.Hour

// Cache stores claims and evicts those older than its TTL. It is safe for
// concurrent use when the underlying store is.
type Cache struct {
	store   store.Store
	ttl     time.Duration
	log     *zap.Logger
	metrics *metrics.Metrics
	backend string
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets the logger. The default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.log = l }
}

// WithMetrics records ingest, eviction and search counts in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// WithBackend names the store in search metrics.
func WithBackend(name string) Option {
	return func(c *Cache) { c.backend = name }
}

// New wraps s. A non-positive ttl means DefaultTTL.
func New(s store.Store, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{store: s, ttl: ttl, log: zap.NewNop(), backend: "unknown"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// TTL returns the eviction age.
func (c *Cache) TTL() time.Duration { return c.ttl }

// Store returns the underlying store.
func (c *Cache) Store() store.Store { return c.store }

// CacheMemory validates m and upserts it with its raw transport payload.
// When raw is empty the claim is re-encoded as an event, so every cached
// claim carries a payload and stays subject to eviction. A claim that
// supersedes another is stored alongside it.
func (c *Cache) CacheMemory(ctx context.Context, m model.Memory, raw []byte) error {
	if err := m.Validate(); err != nil {
		c.ingested(metrics.ResultRejected)
		c.log.Warn("rejected claim", zap.String("id", m.ID), zap.Error(err))
		return err
	}
	if len(raw) == 0 {
		var err error
		if raw, err = encodePayload(m); err != nil {
			c.ingested(metrics.ResultFailed)
			return fmt.Errorf("cache %s: %w", m.ID, err)
		}
	}
	if err := c.store.Upsert(ctx, m, raw); err != nil {
		if errors.Is(err, store.ErrVersionOrder) {
			c.ingested(metrics.ResultRejected)
			c.log.Warn("rejected claim", zap.String("id", m.ID), zap.Error(err))
			return err
		}
		c.ingested(metrics.ResultFailed)
		c.log.Error("cache claim", zap.String("id", m.ID), zap.Error(err))
		return fmt.Errorf("cache %s: %w", m.ID, err)
	}

	c.ingested(metrics.ResultStored)
	c.log.Debug("cached claim",
		zap.String("id", m.ID),
		zap.String("topic", m.Topic),
		zap.Stringer("tier", m.Tier),
		zap.String("supersedes", m.Supersedes),
	)
	c.refreshClaims(ctx)
	return nil
}

// EvictStale removes received claims older than the TTL and reports how
// many went. Locally authored claims are kept regardless of age.
func (c *Cache) EvictStale(ctx context.Context) (int, error) {
	n, err := c.store.EvictStale(ctx, c.ttl)
	if err != nil {
		c.log.Error("evict stale claims", zap.Error(err))
		return 0, fmt.Errorf("evict: %w", err)
	}
	if c.metrics != nil {
		c.metrics.EvictedTotal.Add(float64(n))
	}
	if n > 0 {
		c.log.Info("evicted stale claims", zap.Int("count", n), zap.Duration("ttl", c.ttl))
	}
	c.refreshClaims(ctx)
	return n, nil
}

// Get returns the claim with id, or nil.
func (c *Cache) Get(ctx context.Context, id string) (*model.Memory, error) {
	return c.store.Get(ctx, id)
}

// Count returns the number of cached claims.
func (c *Cache) Count(ctx context.Context) (int, error) {
	return c.store.Count(ctx)
}

// Search passes through to the store.
func (c *Cache) Search(ctx context.Context, p store.SearchParams) ([]store.Hit, error) {
	if c.metrics != nil {
		c.metrics.SearchesTotal.WithLabelValues(c.backend).Inc()
	}
	return c.store.Search(ctx, p)
}

// RankedSearch searches and orders the hits by trust, model tier,
// relevance and recency.
func (c *Cache) RankedSearch(ctx context.Context, p store.SearchParams, cfg *model.MemoryConfig) ([]model.SearchResult, error) {
	if c.metrics != nil {
		c.metrics.SearchesTotal.WithLabelValues(c.backend).Inc()
	}
	return store.RankedSearch(ctx, c.store, p, cfg)
}

func encodePayload(m model.Memory) ([]byte, error) {
	ev, err := codec.Encode(m)
	if err != nil {
		return nil, err
	}
	return json.Marshal(ev)
}

func (c *Cache) ingested(result string) {
	if c.metrics != nil {
		c.metrics.IngestedTotal.WithLabelValues(result).Inc()
	}
}

func (c *Cache) refreshClaims(ctx context.Context) {
	if c.metrics == nil {
		return
	}
	n, err := c.store.Count(ctx)
	if err != nil {
		c.log.Warn("count claims", zap.Error(err))
		return
	}
	c.metrics.Claims.Set(float64(n))
}
