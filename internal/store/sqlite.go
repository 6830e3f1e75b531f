package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver; registers as "sqlite"
)

// SQLStore is the durable Store backed by a relational database
// (spec.md §4.1). The reference driver is the pure-Go
// modernc.org/sqlite, opened with WAL journaling and a busy timeout
// of at least five seconds so concurrent readers never fail with
// SQLITE_BUSY against a writer holding the WAL.
//
// database/sql gives each call its own connection from the pool, so a
// blocking write never stalls a caller's goroutine scheduler the way
// a single shared OS thread would; writers are still serialized at
// the database level via SQLite's single-writer model.
type SQLStore struct {
	db *sql.DB
}

// SQLStoreOptions configures OpenSQLStore.
type SQLStoreOptions struct {
	// BusyTimeout is the SQLite busy_timeout pragma. Values below 5s,
	// the spec.md §4.1 floor (including zero and negative), become 5s.
	BusyTimeout time.Duration
}

// OpenSQLStore opens (creating if necessary) a durable Store at path.
// Use ":memory:" for an ephemeral database useful in tests.
func OpenSQLStore(path string, opts SQLStoreOptions) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}

	busyTimeout := opts.BusyTimeout
	if busyTimeout < 5*time.Second {
		busyTimeout = 5 * time.Second
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeout.Milliseconds()),
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, err)
		}
	}

	s := &SQLStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			PRIMARY KEY (namespace, key)
		)`,
		`CREATE TABLE IF NOT EXISTS list (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			namespace  TEXT NOT NULL,
			key        TEXT NOT NULL,
			value      TEXT NOT NULL,
			created_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_list_ns_key ON list(namespace, key, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

func (s *SQLStore) Get(ctx context.Context, ns, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE namespace = ? AND key = ?`, ns, key,
	).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s/%s: %w", ns, key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(ctx context.Context, ns, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (namespace, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, ns, key, value, nowISO())
	if err != nil {
		return fmt.Errorf("set %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *SQLStore) Delete(ctx context.Context, ns, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE namespace = ? AND key = ?`, ns, key); err != nil {
		return fmt.Errorf("delete kv %s/%s: %w", ns, key, err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM list WHERE namespace = ? AND key = ?`, ns, key); err != nil {
		return fmt.Errorf("delete list %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *SQLStore) ListKeys(ctx context.Context, ns string) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string

	collect := func(query string) error {
		rows, err := s.db.QueryContext(ctx, query, ns)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return err
			}
			if _, dup := seen[k]; !dup {
				seen[k] = struct{}{}
				keys = append(keys, k)
			}
		}
		return rows.Err()
	}

	if err := collect(`SELECT DISTINCT key FROM kv WHERE namespace = ?`); err != nil {
		return nil, fmt.Errorf("list kv keys: %w", err)
	}
	if err := collect(`SELECT DISTINCT key FROM list WHERE namespace = ?`); err != nil {
		return nil, fmt.Errorf("list list keys: %w", err)
	}
	return keys, nil
}

func (s *SQLStore) Append(ctx context.Context, ns, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO list (namespace, key, value, created_at) VALUES (?, ?, ?, ?)`,
		ns, key, value, nowISO())
	if err != nil {
		return fmt.Errorf("append %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *SQLStore) GetList(ctx context.Context, ns, key string, limit, offset int) ([]string, error) {
	query := `SELECT value FROM list WHERE namespace = ? AND key = ? ORDER BY id ASC LIMIT ? OFFSET ?`
	sqlLimit := limit
	if sqlLimit <= 0 {
		sqlLimit = -1 // SQLite: negative LIMIT means "no limit"
	}
	rows, err := s.db.QueryContext(ctx, query, ns, key, sqlLimit, offset)
	if err != nil {
		return nil, fmt.Errorf("get list %s/%s: %w", ns, key, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan list row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *SQLStore) TrimList(ctx context.Context, ns, key string, maxSize int) error {
	if maxSize < 0 {
		maxSize = 0
	}
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM list WHERE namespace = ? AND key = ? AND id NOT IN (
			SELECT id FROM list WHERE namespace = ? AND key = ? ORDER BY id DESC LIMIT ?
		)
	`, ns, key, ns, key, maxSize)
	if err != nil {
		return fmt.Errorf("trim list %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *SQLStore) ClearList(ctx context.Context, ns, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM list WHERE namespace = ? AND key = ?`, ns, key); err != nil {
		return fmt.Errorf("clear list %s/%s: %w", ns, key, err)
	}
	return nil
}

func (s *SQLStore) ListLength(ctx context.Context, ns, key string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM list WHERE namespace = ? AND key = ?`, ns, key,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("list length %s/%s: %w", ns, key, err)
	}
	return n, nil
}
