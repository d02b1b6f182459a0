package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/k0sti/snowclaw-memory/internal/model"
)

// ExportAll returns every claim, optionally filtered by scope, ordered by
// topic, version and id.
func (s *SQLiteStore) ExportAll(ctx context.Context, scope string) ([]model.Memory, error) {
	if err := (SearchParams{Tier: scope}).validate(); err != nil {
		return nil, err
	}
	where, args := tierWhere(SearchParams{Tier: scope}, nil, nil)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories m WHERE `+joinWhere(where)+` ORDER BY m.topic, m.version, m.id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("export: %w", err)
	}
	defer rows.Close()

	memories := []model.Memory{}
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("export: %w", err)
		}
		memories = append(memories, m)
	}
	return memories, rows.Err()
}

// ExportAll returns every claim, optionally filtered by scope, ordered by
// topic, version and id.
func (s *MemStore) ExportAll(_ context.Context, scope string) ([]model.Memory, error) {
	if err := (SearchParams{Tier: scope}).validate(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	memories := make([]model.Memory, 0, len(s.records))
	for _, r := range s.records {
		if scope == "" || r.memory.Tier.Scope() == scope {
			memories = append(memories, cloneMemory(r.memory))
		}
	}
	s.mu.RUnlock()

	sort.Slice(memories, func(i, j int) bool {
		a, b := &memories[i], &memories[j]
		if a.Topic != b.Topic {
			return a.Topic < b.Topic
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.ID < b.ID
	})
	return memories, nil
}
