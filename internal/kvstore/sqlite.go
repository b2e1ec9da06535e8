package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"
)

const (
	sqlReadKey   = `SELECT value FROM kv WHERE key = ?`
	sqlDeleteKey = `DELETE FROM kv WHERE key = ?`
	sqlUpsertKey = `INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
		 value = excluded.value,
		 updated_at = excluded.updated_at`
)

// sqliteOpTimeout bounds each statement; the Backend interface carries no
// context of its own.
const sqliteOpTimeout = 5 * time.Second

// SQLite stores keys in a single-table SQLite database.
type SQLite struct {
	db      *sql.DB
	nowFunc func() time.Time
}

// OpenSQLite opens (creating if needed) the database at path and applies
// migrations. The database uses WAL mode with synchronous=FULL.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*SQLite, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), DirPerms); err != nil {
		return nil, fmt.Errorf("kvstore: creating directory for %s: %w", path, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)",
		path,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("kvstore: opening database %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLite{db: db, nowFunc: time.Now}, nil
}

// Close releases the database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// ReadKey returns the value stored under name.
func (s *SQLite) ReadKey(name string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()

	var value string

	err := s.db.QueryRowContext(ctx, sqlReadKey, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}

	if err != nil {
		return "", false, fmt.Errorf("kvstore: reading %q: %w", name, err)
	}

	return value, true, nil
}

// WriteKey stores value under name.
func (s *SQLite) WriteKey(name, value string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, sqlUpsertKey, name, value, s.nowFunc().UnixNano()); err != nil {
		return fmt.Errorf("kvstore: writing %q: %w", name, err)
	}

	return nil
}

// DeleteKey removes name. Missing keys are not an error.
func (s *SQLite) DeleteKey(name string) error {
	ctx, cancel := context.WithTimeout(context.Background(), sqliteOpTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, sqlDeleteKey, name); err != nil {
		return fmt.Errorf("kvstore: deleting %q: %w", name, err)
	}

	return nil
}
