package store

import (
	"context"
	"fmt"
)

// Search finds claims whose topic, summary, detail or tags match any query
// term, ordered by BM25 relevance. An empty query lists the newest claims
// with zero relevance; a query with no searchable terms matches nothing.
func (s *SQLiteStore) Search(ctx context.Context, p SearchParams) ([]Hit, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	terms := queryTerms(p.Query)
	if p.blank(terms) {
		return []Hit{}, nil
	}

	where, args := tierWhere(p, nil, nil)

	var query string
	if len(terms) == 0 {
		query = fmt.Sprintf(`
			SELECT %s, 0.0 AS relevance
			FROM memories m
			WHERE %s
			ORDER BY m.created_at DESC, m.id
			LIMIT ?`, memoryColumns, joinWhere(where))
	} else {
		where = append([]string{"memories_fts MATCH ?"}, where...)
		args = append([]interface{}{ftsMatch(terms)}, args...)
		query = fmt.Sprintf(`
			SELECT %s, -bm25(memories_fts) AS relevance
			FROM memories_fts
			JOIN memories m ON m.rowid = memories_fts.rowid
			WHERE %s
			ORDER BY relevance DESC, m.created_at DESC, m.id
			LIMIT ?`, memoryColumns, joinWhere(where))
	}
	args = append(args, p.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer rows.Close()

	hits := []Hit{}
	for rows.Next() {
		var h Hit
		m, err := scanMemory(scanFunc(func(dest ...interface{}) error {
			return rows.Scan(append(dest, &h.Relevance)...)
		}))
		if err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		h.Memory = m
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return hits, nil
}

// scanFunc adapts a closure to the scanner interface.
type scanFunc func(dest ...interface{}) error

func (f scanFunc) Scan(dest ...interface{}) error { return f(dest...) }
