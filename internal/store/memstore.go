package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/k0sti/snowclaw-memory/internal/model"
)

type record struct {
	memory model.Memory
	raw    []byte
	tokens map[string]int
}

// MemStore implements Store using an in-memory map. Relevance is the number
// of query-term occurrences across topic, summary, detail and tags.
type MemStore struct {
	// mu guards records
	mu      sync.RWMutex
	records map[string]*record
	now     func() time.Time
}

// NewMemStore creates an empty in-memory store.
func NewMemStore(opts ...Option) *MemStore {
	o := buildOptions(opts)
	return &MemStore{
		records: make(map[string]*record),
		now:     o.now,
	}
}

func (s *MemStore) Upsert(_ context.Context, m model.Memory, raw []byte) error {
	if err := m.Validate(); err != nil {
		return err
	}

	tokens := map[string]int{}
	text := strings.Join(append([]string{m.Topic, m.Summary, m.Detail}, m.Tags...), " ")
	for _, t := range tokenize(text) {
		tokens[t]++
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.Supersedes != "" {
		if prev, ok := s.records[m.Supersedes]; ok && prev.memory.Version >= m.Version {
			return fmt.Errorf("%w: %s v%d supersedes %s v%d", ErrVersionOrder, m.ID, m.Version, m.Supersedes, prev.memory.Version)
		}
	}
	for id, r := range s.records {
		if id != m.ID && r.memory.Supersedes == m.ID && r.memory.Version <= m.Version {
			return fmt.Errorf("%w: %s v%d supersedes %s v%d", ErrVersionOrder, id, r.memory.Version, m.ID, m.Version)
		}
	}

	s.records[m.ID] = &record{memory: cloneMemory(m), raw: cloneBytes(raw), tokens: tokens}
	return nil
}

func (s *MemStore) Get(_ context.Context, id string) (*model.Memory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	m := cloneMemory(r.memory)
	return &m, nil
}

// RawPayload returns the transport payload stored with id, or nil.
func (s *MemStore) RawPayload(_ context.Context, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if r, ok := s.records[id]; ok {
		return cloneBytes(r.raw), nil
	}
	return nil, nil
}

func (s *MemStore) Search(_ context.Context, p SearchParams) ([]Hit, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	terms := queryTerms(p.Query)
	if p.blank(terms) {
		return []Hit{}, nil
	}

	s.mu.RLock()
	hits := []Hit{}
	for _, r := range s.records {
		if !matchesFilter(&r.memory, p) {
			continue
		}
		relevance := 0
		for _, t := range terms {
			relevance += r.tokens[t]
		}
		if len(terms) > 0 && relevance == 0 {
			continue
		}
		hits = append(hits, Hit{Memory: cloneMemory(r.memory), Relevance: float64(relevance)})
	}
	s.mu.RUnlock()

	sort.Slice(hits, func(i, j int) bool {
		a, b := &hits[i], &hits[j]
		if a.Relevance != b.Relevance {
			return a.Relevance > b.Relevance
		}
		if a.Memory.CreatedAt != b.Memory.CreatedAt {
			return a.Memory.CreatedAt > b.Memory.CreatedAt
		}
		return a.Memory.ID < b.Memory.ID
	})
	if len(hits) > p.limit() {
		hits = hits[:p.limit()]
	}
	return hits, nil
}

func matchesFilter(m *model.Memory, p SearchParams) bool {
	if p.Tier != "" && m.Tier.Scope() != p.Tier {
		return false
	}
	if p.Group != "" && m.Tier.Group != p.Group {
		return false
	}
	if p.Topic != "" && m.Topic != p.Topic {
		return false
	}
	return true
}

func (s *MemStore) EvictStale(_ context.Context, ttl time.Duration) (int, error) {
	limit := cutoff(s.now(), ttl)

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.records {
		if r.raw != nil && r.memory.CreatedAt < limit {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func (s *MemStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Close is a no-op.
func (s *MemStore) Close() error { return nil }

func cloneMemory(m model.Memory) model.Memory {
	if m.Tags != nil {
		m.Tags = append([]string{}, m.Tags...)
	}
	return m
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte{}, b...)
}
