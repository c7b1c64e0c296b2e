package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// SQLiteStore implements Store using SQLite for persistence. It is suitable
// for single-instance deployments where counters, transactions, and issued
// tokens must survive a restart.
//
// The database is opened in WAL mode with a single writer connection.
// Consume and IncrWindow run inside immediate transactions, which provides
// the atomicity both operations require.
type SQLiteStore struct {
	db *sql.DB
}

// SQLiteConfig configures the SQLite backend.
type SQLiteConfig struct {
	// Path is the path to the SQLite database file.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds.
	BusyTimeout time.Duration
}

// NewSQLiteStore opens (and if necessary initializes) a SQLite-backed store.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlite store: path cannot be empty")
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
		cfg.Path, int(cfg.BusyTimeout.Milliseconds()))

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite store: failed to open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite store: failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS counters (
		key        TEXT PRIMARY KEY,
		count      INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_entries_expires ON entries(expires_at);
	CREATE INDEX IF NOT EXISTS idx_counters_expires ON counters(expires_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// expiresAt is stored as unix nanoseconds; zero means no expiry.
func encodeExpiry(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func expiredUnix(expiresAt int64, now time.Time) bool {
	return expiresAt != 0 && now.UnixNano() > expiresAt
}

// Get retrieves the value for a key.
func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_at FROM entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite store: get %q: %w", key, err)
	}
	if expiredUnix(expiresAt, time.Now()) {
		return nil, false, nil
	}
	return value, true, nil
}

// Set stores a value for a key, overwriting any existing entry.
func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, encodeExpiry(expiresAt),
	)
	if err != nil {
		return fmt.Errorf("sqlite store: set %q: %w", key, err)
	}
	return nil
}

// Delete removes the entry for a key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite store: delete %q: %w", key, err)
	}
	return nil
}

// Consume atomically reads and deletes the entry for a key.
func (s *SQLiteStore) Consume(ctx context.Context, key string) ([]byte, bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("sqlite store: consume %q: %w", key, err)
	}
	defer tx.Rollback()

	var value []byte
	var expiresAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT value, expires_at FROM entries WHERE key = ?`, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite store: consume %q: %w", key, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key); err != nil {
		return nil, false, fmt.Errorf("sqlite store: consume %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("sqlite store: consume %q: %w", key, err)
	}

	if expiredUnix(expiresAt, time.Now()) {
		return nil, false, nil
	}
	return value, true, nil
}

// IncrWindow performs an atomic fixed-window admission check for a key.
func (s *SQLiteStore) IncrWindow(ctx context.Context, key string, max int64, window time.Duration) (WindowResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return WindowResult{}, fmt.Errorf("sqlite store: incr %q: %w", key, err)
	}
	defer tx.Rollback()

	now := time.Now()

	var count, expiresAt int64
	err = tx.QueryRowContext(ctx,
		`SELECT count, expires_at FROM counters WHERE key = ?`, key,
	).Scan(&count, &expiresAt)

	switch {
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return WindowResult{}, fmt.Errorf("sqlite store: incr %q: %w", key, err)

	case errors.Is(err, sql.ErrNoRows) || now.UnixNano() > expiresAt:
		reset := now.Add(window)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO counters (key, count, expires_at) VALUES (?, 1, ?)
			 ON CONFLICT(key) DO UPDATE SET count = 1, expires_at = excluded.expires_at`,
			key, reset.UnixNano(),
		); err != nil {
			return WindowResult{}, fmt.Errorf("sqlite store: incr %q: %w", key, err)
		}
		if err := tx.Commit(); err != nil {
			return WindowResult{}, fmt.Errorf("sqlite store: incr %q: %w", key, err)
		}
		return WindowResult{Allowed: true, Count: 1, ExpiresAt: reset}, nil
	}

	reset := time.Unix(0, expiresAt)
	if count+1 > max {
		// Leave the recorded count untouched for rejected attempts.
		return WindowResult{Allowed: false, Count: count, ExpiresAt: reset}, nil
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE counters SET count = count + 1 WHERE key = ?`, key,
	); err != nil {
		return WindowResult{}, fmt.Errorf("sqlite store: incr %q: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return WindowResult{}, fmt.Errorf("sqlite store: incr %q: %w", key, err)
	}
	return WindowResult{Allowed: true, Count: count + 1, ExpiresAt: reset}, nil
}

// Sweep removes expired entries and counters.
func (s *SQLiteStore) Sweep(ctx context.Context) (int, error) {
	now := time.Now().UnixNano()
	removed := 0

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM entries WHERE expires_at != 0 AND expires_at < ?`, now)
	if err != nil {
		return 0, fmt.Errorf("sqlite store: sweep entries: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += int(n)
	}

	res, err = s.db.ExecContext(ctx,
		`DELETE FROM counters WHERE expires_at < ?`, now)
	if err != nil {
		return removed, fmt.Errorf("sqlite store: sweep counters: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil {
		removed += int(n)
	}
	return removed, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
