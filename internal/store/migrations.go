package store

import (
	"fmt"
)

type migration struct {
	Version     int
	Description string
	SQL         string
}

var migrations = []migration{
	{
		Version:     1,
		Description: "memories: claim index keyed by id",
		SQL: `
CREATE TABLE memories (
    id          TEXT PRIMARY KEY,
    scope       TEXT NOT NULL CHECK (scope IN ('public', 'group')),
    group_name  TEXT NOT NULL DEFAULT '',
    topic       TEXT NOT NULL,
    summary     TEXT NOT NULL,
    detail      TEXT NOT NULL,
    context     TEXT NOT NULL DEFAULT '',
    source      TEXT NOT NULL,
    model       TEXT NOT NULL,
    confidence  REAL NOT NULL CHECK (confidence >= 0 AND confidence <= 1),
    supersedes  TEXT NOT NULL DEFAULT '',
    version     INTEGER NOT NULL CHECK (version > 0),
    tags        TEXT,
    created_at  INTEGER NOT NULL,
    raw_payload BLOB,
    stored_at   INTEGER NOT NULL
);

CREATE INDEX idx_memories_topic      ON memories(topic);
CREATE INDEX idx_memories_scope      ON memories(scope, group_name);
CREATE INDEX idx_memories_created    ON memories(created_at);
CREATE INDEX idx_memories_supersedes ON memories(supersedes);
`,
	},
	{
		Version:     2,
		Description: "memories_fts: full-text index over topic, summary, detail and tags",
		SQL: `
CREATE VIRTUAL TABLE memories_fts USING fts5(
    topic, summary, detail, tags,
    content='memories',
    content_rowid='rowid',
    tokenize='unicode61 remove_diacritics 2'
);

CREATE TRIGGER memories_ai AFTER INSERT ON memories BEGIN
    INSERT INTO memories_fts(rowid, topic, summary, detail, tags)
    VALUES (new.rowid, new.topic, new.summary, new.detail, COALESCE(new.tags, ''));
END;

CREATE TRIGGER memories_ad AFTER DELETE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, topic, summary, detail, tags)
    VALUES ('delete', old.rowid, old.topic, old.summary, old.detail, COALESCE(old.tags, ''));
END;

CREATE TRIGGER memories_au AFTER UPDATE ON memories BEGIN
    INSERT INTO memories_fts(memories_fts, rowid, topic, summary, detail, tags)
    VALUES ('delete', old.rowid, old.topic, old.summary, old.detail, COALESCE(old.tags, ''));
    INSERT INTO memories_fts(rowid, topic, summary, detail, tags)
    VALUES (new.rowid, new.topic, new.summary, new.detail, COALESCE(new.tags, ''));
END;
`,
	},
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_versions (
			version     INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at  INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_versions: %w", err)
	}

	for _, m := range migrations {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM schema_versions WHERE version = ?", m.Version).Scan(&count)
		if err != nil {
			return fmt.Errorf("check migration %d: %w", m.Version, err)
		}
		if count > 0 {
			continue
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}

		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Description, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_versions (version, description) VALUES (?, ?)",
			m.Version, m.Description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}

// SchemaVersion returns the current schema version.
func (s *SQLiteStore) SchemaVersion() (int, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_versions").Scan(&version)
	return version, err
}

// ErrSchemaTooNew is returned when the database was written by a newer build.
var ErrSchemaTooNew = fmt.Errorf("database schema is newer than this build (max %d)", len(migrations))

func (s *SQLiteStore) checkSchema() error {
	v, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if v > migrations[len(migrations)-1].Version {
		return fmt.Errorf("%w: found %d", ErrSchemaTooNew, v)
	}
	return nil
}
