package store

import (
	"context"
	"fmt"
	"os"
	"sort"
)

// maxTopicStats bounds the per-topic breakdown.
const maxTopicStats = 20

// Stats holds index statistics.
type Stats struct {
	Backend     string       `json:"backend"`
	DBPath      string       `json:"db_path,omitempty"`
	DBSizeBytes int64        `json:"db_size_bytes,omitempty"`
	Total       int          `json:"total"`
	Public      int          `json:"public"`
	Group       int          `json:"group"`
	Superseded  int          `json:"superseded"`
	Local       int          `json:"local"`
	Topics      []TopicStats `json:"topics"`
}

// TopicStats holds per-topic counts.
type TopicStats struct {
	Topic   string `json:"topic"`
	Count   int    `json:"count"`
	Sources int    `json:"sources"`
}

// Stats returns index statistics.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{Backend: "sqlite", DBPath: s.path, Topics: []TopicStats{}}

	if info, err := os.Stat(s.path); err == nil {
		st.DBSizeBytes = info.Size()
	}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(scope = 'public'), 0),
		       COALESCE(SUM(scope = 'group'), 0),
		       COALESCE(SUM(raw_payload IS NULL), 0)
		FROM memories`).Scan(&st.Total, &st.Public, &st.Group, &st.Local)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT m.id) FROM memories m
		JOIN memories n ON n.supersedes = m.id`).Scan(&st.Superseded)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT topic, COUNT(*) AS cnt, COUNT(DISTINCT source)
		FROM memories GROUP BY topic ORDER BY cnt DESC, topic LIMIT ?`, maxTopicStats)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ts TopicStats
		if err := rows.Scan(&ts.Topic, &ts.Count, &ts.Sources); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
		st.Topics = append(st.Topics, ts)
	}
	return st, rows.Err()
}

// Stats returns index statistics.
func (s *MemStore) Stats(_ context.Context) (*Stats, error) {
	st := &Stats{Backend: "memory", Topics: []TopicStats{}}

	s.mu.RLock()
	defer s.mu.RUnlock()

	superseded := map[string]bool{}
	topics := map[string]*TopicStats{}
	sources := map[string]map[string]bool{}
	for _, r := range s.records {
		m := &r.memory
		st.Total++
		if m.Tier.IsGroup() {
			st.Group++
		} else {
			st.Public++
		}
		if r.raw == nil {
			st.Local++
		}
		if _, ok := s.records[m.Supersedes]; ok {
			superseded[m.Supersedes] = true
		}
		ts, ok := topics[m.Topic]
		if !ok {
			ts = &TopicStats{Topic: m.Topic}
			topics[m.Topic] = ts
			sources[m.Topic] = map[string]bool{}
		}
		ts.Count++
		sources[m.Topic][m.Source] = true
	}
	st.Superseded = len(superseded)

	for topic, ts := range topics {
		ts.Sources = len(sources[topic])
		st.Topics = append(st.Topics, *ts)
	}
	sort.Slice(st.Topics, func(i, j int) bool {
		if st.Topics[i].Count != st.Topics[j].Count {
			return st.Topics[i].Count > st.Topics[j].Count
		}
		return st.Topics[i].Topic < st.Topics[j].Topic
	})
	if len(st.Topics) > maxTopicStats {
		st.Topics = st.Topics[:maxTopicStats]
	}
	return st, nil
}
