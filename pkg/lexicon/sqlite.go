package lexicon

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const dbTimeLayout = "2006-01-02 15:04:05"

// SQLiteStore keeps lexicon entries in a SQLite database.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLite lexicon database and runs migrations.
func Open(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("lexicon: open db: %w", err)
	}

	ctx := context.Background()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lexicon: set WAL: %w", err)
	}
	// Set busy timeout to avoid "database is locked" under concurrency
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lexicon: set busy_timeout: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("lexicon: migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS lexicon (
		id         INTEGER PRIMARY KEY AUTOINCREMENT,
		kind       TEXT    NOT NULL CHECK(kind IN ('phrase', 'word')),
		from_lang  TEXT    NOT NULL CHECK(length(from_lang) > 0),
		to_lang    TEXT    NOT NULL CHECK(length(to_lang) > 0),
		source     TEXT    NOT NULL CHECK(length(source) > 0),
		target     TEXT    NOT NULL CHECK(length(target) > 0),
		created_at TEXT    NOT NULL DEFAULT (datetime('now')),
		UNIQUE(kind, from_lang, to_lang, source)
	);
	`
	if err := s.ensureSchemaMigrations(ctx); err != nil {
		return err
	}
	currentVersion, err := s.getSchemaVersion(ctx)
	if err != nil {
		return err
	}

	migrations := []struct {
		version      int
		statements   []string
		ignoreErrors bool
	}{
		{
			version:    1,
			statements: []string{schema},
		},
		{
			version: 2,
			statements: []string{
				"ALTER TABLE lexicon ADD COLUMN updated_at TEXT NOT NULL DEFAULT ''",
			},
			ignoreErrors: true,
		},
		{
			version: 3,
			statements: []string{
				"CREATE INDEX IF NOT EXISTS idx_lexicon_target ON lexicon(kind, from_lang, to_lang, target COLLATE NOCASE)",
			},
			ignoreErrors: true,
		},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		for _, stmt := range m.statements {
			if err := s.execMigration(ctx, stmt, m.ignoreErrors); err != nil {
				return err
			}
		}
		if err := s.setSchemaVersion(ctx, m.version); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) ensureSchemaMigrations(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER NOT NULL)"); err != nil {
		return fmt.Errorf("lexicon: create schema_migrations: %w", err)
	}
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return fmt.Errorf("lexicon: check schema_migrations: %w", err)
	}
	if count == 0 {
		if _, err := s.db.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (0)"); err != nil {
			return fmt.Errorf("lexicon: init schema_migrations: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) getSchemaVersion(ctx context.Context) (int, error) {
	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_migrations LIMIT 1").Scan(&version); err != nil {
		return 0, fmt.Errorf("lexicon: read schema version: %w", err)
	}
	return version, nil
}

func (s *SQLiteStore) setSchemaVersion(ctx context.Context, version int) error {
	if _, err := s.db.ExecContext(ctx, "UPDATE schema_migrations SET version = ?", version); err != nil {
		return fmt.Errorf("lexicon: update schema version: %w", err)
	}
	return nil
}

func (s *SQLiteStore) execMigration(ctx context.Context, stmt string, ignoreErrors bool) error {
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		if ignoreErrors {
			return nil
		}
		return fmt.Errorf("lexicon: migrate: %w", err)
	}
	return nil
}

// ---- Entries ----

// Put inserts or replaces an entry.
func (s *SQLiteStore) Put(ctx context.Context, e Entry) error {
	if err := e.Validate(); err != nil {
		return fmt.Errorf("lexicon: put: %w", err)
	}
	e = e.Normalize()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lexicon (kind, from_lang, to_lang, source, target, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(kind, from_lang, to_lang, source)
		 DO UPDATE SET target = excluded.target, updated_at = excluded.updated_at`,
		string(e.Kind), e.From, e.To, e.Source, e.Target, s.now().UTC().Format(dbTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("lexicon: put %s %s->%s %q: %w", e.Kind, e.From, e.To, e.Source, err)
	}
	return nil
}

// Lookup returns the target for source in the from->to table.
func (s *SQLiteStore) Lookup(ctx context.Context, kind Kind, from, to, source string) (string, bool, error) {
	var target string
	err := s.db.QueryRowContext(ctx,
		"SELECT target FROM lexicon WHERE kind = ? AND from_lang = ? AND to_lang = ? AND source = ?",
		string(kind), strings.ToLower(from), strings.ToLower(to), strings.ToLower(strings.TrimSpace(source)),
	).Scan(&target)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lexicon: lookup: %w", err)
	}
	return target, true, nil
}

// ReverseLookup returns the source mapped to target in the from->to table.
func (s *SQLiteStore) ReverseLookup(ctx context.Context, kind Kind, from, to, target string) (string, bool, error) {
	var source string
	err := s.db.QueryRowContext(ctx,
		`SELECT source FROM lexicon
		 WHERE kind = ? AND from_lang = ? AND to_lang = ? AND target = ? COLLATE NOCASE
		 ORDER BY source LIMIT 1`,
		string(kind), strings.ToLower(from), strings.ToLower(to), strings.TrimSpace(target),
	).Scan(&source)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("lexicon: reverse lookup: %w", err)
	}
	return source, true, nil
}

// List returns entries ordered by from, to, source.
func (s *SQLiteStore) List(ctx context.Context, kind Kind, from, to string) ([]Entry, error) {
	query := "SELECT kind, from_lang, to_lang, source, target FROM lexicon WHERE kind = ?"
	args := []any{string(kind)}
	if from != "" {
		query += " AND from_lang = ?"
		args = append(args, strings.ToLower(from))
	}
	if to != "" {
		query += " AND to_lang = ?"
		args = append(args, strings.ToLower(to))
	}
	query += " ORDER BY from_lang, to_lang, source"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lexicon: list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Entry, 0)
	for rows.Next() {
		var e Entry
		var k string
		if err := rows.Scan(&k, &e.From, &e.To, &e.Source, &e.Target); err != nil {
			return nil, fmt.Errorf("lexicon: scan entry: %w", err)
		}
		e.Kind = Kind(k)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lexicon: list rows: %w", err)
	}
	return out, nil
}

// HasPair reports whether any entry of kind exists for from->to.
func (s *SQLiteStore) HasPair(ctx context.Context, kind Kind, from, to string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM lexicon WHERE kind = ? AND from_lang = ? AND to_lang = ?)",
		string(kind), strings.ToLower(from), strings.ToLower(to),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lexicon: has pair: %w", err)
	}
	return exists == 1, nil
}

// Count returns the total number of entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM lexicon").Scan(&n); err != nil {
		return 0, fmt.Errorf("lexicon: count: %w", err)
	}
	return n, nil
}

var _ Store = (*SQLiteStore)(nil)
