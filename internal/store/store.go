// Package store provides the claim index interface with SQLite and
// in-memory implementations.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/k0sti/snowclaw-memory/internal/model"
	"github.com/k0sti/snowclaw-memory/internal/rank"
)

// DefaultSearchLimit applies when SearchParams.Limit is not positive.
const DefaultSearchLimit = 20

// ErrVersionOrder is returned when an upsert would break the strictly
// increasing version order of a supersedes chain.
var ErrVersionOrder = errors.New("supersedes chain version order violated")

// ErrInvalidParams is returned for unusable search filters.
var ErrInvalidParams = errors.New("invalid search parameters")

// SearchParams holds parameters for searching claims.
type SearchParams struct {
	Query string
	Tier  string // "", "public" or "group"
	Group string // exact group name, only with Tier "group"
	Topic string // exact topic, optional
	Limit int
}

func (p SearchParams) limit() int {
	if p.Limit <= 0 {
		return DefaultSearchLimit
	}
	return p.Limit
}

// blank reports a query that has text but no searchable terms, such as
// "???". It matches nothing rather than listing everything.
func (p SearchParams) blank(terms []string) bool {
	return len(terms) == 0 && strings.TrimSpace(p.Query) != ""
}

func (p SearchParams) validate() error {
	switch p.Tier {
	case "", model.ScopePublic, model.ScopeGroup:
	default:
		return fmt.Errorf("%w: unknown tier filter %q (use public or group)", ErrInvalidParams, p.Tier)
	}
	if p.Group != "" && p.Tier != model.ScopeGroup {
		return fmt.Errorf("%w: group filter %q needs tier filter %q", ErrInvalidParams, p.Group, model.ScopeGroup)
	}
	return nil
}

// Hit is a claim matched by Search with its textual relevance. Larger
// relevance means a better match.
type Hit struct {
	Memory    model.Memory `json:"memory"`
	Relevance float64      `json:"relevance"`
}

// Store is the claim index. Implementations must be safe for concurrent use.
type Store interface {
	// Upsert inserts m or replaces the claim with the same id. raw is the
	// original transport payload, kept for audit. A claim stored without a
	// payload is locally authored and is never evicted.
	Upsert(ctx context.Context, m model.Memory, raw []byte) error

	// Get returns the claim with the given id, or nil when absent.
	Get(ctx context.Context, id string) (*model.Memory, error)

	// Search returns claims matching p, best match first.
	Search(ctx context.Context, p SearchParams) ([]Hit, error)

	// EvictStale deletes received claims (those stored with a transport
	// payload) older than ttl and reports how many went.
	EvictStale(ctx context.Context, ttl time.Duration) (int, error)

	// Count returns the number of stored claims.
	Count(ctx context.Context) (int, error)

	// Close releases the store.
	Close() error
}

// Backend is the full surface both implementations provide.
type Backend interface {
	Store

	// RawPayload returns the payload stored with a claim, or nil.
	RawPayload(ctx context.Context, id string) ([]byte, error)

	// ExportAll returns every claim, optionally restricted to a scope.
	ExportAll(ctx context.Context, scope string) ([]model.Memory, error)

	// Stats summarises the index.
	Stats(ctx context.Context) (*Stats, error)
}

// RankedSearch runs Search and orders the hits with the ranking engine.
func RankedSearch(ctx context.Context, s Store, p SearchParams, cfg *model.MemoryConfig) ([]model.SearchResult, error) {
	hits, err := s.Search(ctx, p)
	if err != nil {
		return nil, err
	}
	return rank.Rank(cfg, ScoredHits(hits)), nil
}

// ScoredHits converts search hits to ranking input.
func ScoredHits(hits []Hit) []rank.Scored {
	scored := make([]rank.Scored, len(hits))
	for i, h := range hits {
		scored[i] = rank.Scored{Memory: h.Memory, Relevance: h.Relevance}
	}
	return scored
}

// Import upserts claims in order and reports how many were stored.
func Import(ctx context.Context, s Store, memories []model.Memory) (int, error) {
	imported := 0
	for _, m := range memories {
		if err := m.Validate(); err != nil {
			return imported, fmt.Errorf("import %s: %w", m.ID, err)
		}
		if err := s.Upsert(ctx, m, nil); err != nil {
			return imported, fmt.Errorf("import %s: %w", m.ID, err)
		}
		imported++
	}
	return imported, nil
}

// Option configures a store.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the clock used for eviction cutoffs.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func cutoff(now time.Time, ttl time.Duration) int64 {
	return now.Add(-ttl).Unix()
}
