package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/k0sti/snowclaw-memory/internal/model"
)

// SQLiteStore implements Store using SQLite with an FTS5 index.
// Writes are serialized; reads use the connection pool and, under WAL,
// never wait on the writer.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time

	// wmu serializes writers.
	wmu sync.Mutex
}

// NewSQLiteStore opens or creates a SQLite database at the given path.
func NewSQLiteStore(dbPath string, opts ...Option) (*SQLiteStore, error) {
	o := buildOptions(opts)

	inMemory := dbPath == ":memory:"
	if !inMemory {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)&_pragma=synchronous(normal)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if inMemory {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	s := &SQLiteStore{db: db, path: dbPath, now: o.now}

	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := s.checkSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database path.
func (s *SQLiteStore) Path() string { return s.path }

const memoryColumns = `m.id, m.scope, m.group_name, m.topic, m.summary, m.detail, m.context,
	m.source, m.model, m.confidence, m.supersedes, m.version, m.tags, m.created_at`

func (s *SQLiteStore) Upsert(ctx context.Context, m model.Memory, raw []byte) error {
	if err := m.Validate(); err != nil {
		return err
	}

	var tagsJSON *string
	if m.Tags != nil {
		b, err := json.Marshal(m.Tags)
		if err != nil {
			return fmt.Errorf("encode tags: %w", err)
		}
		str := string(b)
		tagsJSON = &str
	}

	if len(raw) == 0 {
		raw = nil
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin upsert: %w", err)
	}
	defer tx.Rollback()

	if err := checkVersionOrder(ctx, tx, &m); err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO memories (id, scope, group_name, topic, summary, detail, context, source, model,
		                       confidence, supersedes, version, tags, created_at, raw_payload, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     scope = excluded.scope, group_name = excluded.group_name, topic = excluded.topic,
		     summary = excluded.summary, detail = excluded.detail, context = excluded.context,
		     source = excluded.source, model = excluded.model, confidence = excluded.confidence,
		     supersedes = excluded.supersedes, version = excluded.version, tags = excluded.tags,
		     created_at = excluded.created_at, raw_payload = excluded.raw_payload,
		     stored_at = excluded.stored_at`,
		m.ID, m.Tier.Scope(), m.Tier.Group, m.Topic, m.Summary, m.Detail, m.Context, m.Source, m.Model,
		m.Confidence, m.Supersedes, m.Version, tagsJSON, m.CreatedAt, raw, s.now().Unix())
	if err != nil {
		return fmt.Errorf("upsert memory %s: %w", m.ID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// checkVersionOrder enforces strictly increasing versions on every
// supersedes edge touching m whose other end is already stored.
func checkVersionOrder(ctx context.Context, tx *sql.Tx, m *model.Memory) error {
	if m.Supersedes != "" {
		var prev int
		err := tx.QueryRowContext(ctx, `SELECT version FROM memories WHERE id = ?`, m.Supersedes).Scan(&prev)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return fmt.Errorf("check predecessor: %w", err)
		case prev >= m.Version:
			return fmt.Errorf("%w: %s v%d supersedes %s v%d", ErrVersionOrder, m.ID, m.Version, m.Supersedes, prev)
		}
	}

	var nextID string
	var next int
	err := tx.QueryRowContext(ctx,
		`SELECT id, version FROM memories WHERE supersedes = ? AND id != ? AND version <= ? LIMIT 1`,
		m.ID, m.ID, m.Version).Scan(&nextID, &next)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil
	case err != nil:
		return fmt.Errorf("check successors: %w", err)
	}
	return fmt.Errorf("%w: %s v%d supersedes %s v%d", ErrVersionOrder, nextID, next, m.ID, m.Version)
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Memory, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+memoryColumns+` FROM memories m WHERE m.id = ?`, id)
	m, err := scanMemory(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %s: %w", id, err)
	}
	return &m, nil
}

// RawPayload returns the transport payload stored with id, or nil.
func (s *SQLiteStore) RawPayload(ctx context.Context, id string) ([]byte, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx, `SELECT raw_payload FROM memories WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get raw payload %s: %w", id, err)
	}
	return raw, nil
}

func (s *SQLiteStore) EvictStale(ctx context.Context, ttl time.Duration) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin evict: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE raw_payload IS NOT NULL AND created_at < ?`, cutoff(s.now(), ttl))
	if err != nil {
		return 0, fmt.Errorf("evict stale: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("evict stale: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit evict: %w", err)
	}
	return int(n), nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memories`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count memories: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row scanner) (model.Memory, error) {
	var m model.Memory
	var scope, group string
	var tagsJSON sql.NullString

	err := row.Scan(
		&m.ID, &scope, &group, &m.Topic, &m.Summary, &m.Detail, &m.Context,
		&m.Source, &m.Model, &m.Confidence, &m.Supersedes, &m.Version, &tagsJSON, &m.CreatedAt,
	)
	if err != nil {
		return m, err
	}

	switch scope {
	case model.ScopePublic:
		m.Tier = model.Public()
	case model.ScopeGroup:
		m.Tier = model.Group(group)
	default:
		return m, fmt.Errorf("memory %s: corrupt scope %q", m.ID, scope)
	}
	if tagsJSON.Valid {
		if err := json.Unmarshal([]byte(tagsJSON.String), &m.Tags); err != nil {
			return m, fmt.Errorf("memory %s: corrupt tags: %w", m.ID, err)
		}
		if m.Tags == nil {
			m.Tags = []string{}
		}
	}

	return m, nil
}

func tierWhere(p SearchParams, where []string, args []interface{}) ([]string, []interface{}) {
	if p.Tier != "" {
		where = append(where, "m.scope = ?")
		args = append(args, p.Tier)
	}
	if p.Group != "" {
		where = append(where, "m.group_name = ?")
		args = append(args, p.Group)
	}
	if p.Topic != "" {
		where = append(where, "m.topic = ?")
		args = append(args, p.Topic)
	}
	return where, args
}

func joinWhere(where []string) string {
	if len(where) == 0 {
		return "1=1"
	}
	return strings.Join(where, " AND ")
}
