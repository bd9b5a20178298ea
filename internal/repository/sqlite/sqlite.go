// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// We use modernc.org/sqlite (a pure Go translation of SQLite) rather than
// the CGo driver, so the module cross-compiles without a C toolchain — it
// ends up embedded in client applications on whatever platform the host
// app targets.
//
// The whole store is a single kv table. That sounds crude next to proper
// relational modeling, but the sync core only ever reads and writes whole
// values (the credential string, the serialized queue), and a flat
// namespace keeps the storage contract identical to the localStorage-style
// surface the host environment offers elsewhere.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/alessandrolsdev/ledgersync/internal/repository"
)

// compile-time check that *DB implements repository.KVStore
var _ repository.KVStore = (*DB)(nil)

// DB wraps a sql.DB connection pool and provides the KVStore methods.
type DB struct {
	conn *sql.DB
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/ledgersync.db" → file-based database (persistent)
//   - ":memory:"           → in-memory database (tests only, lost on close)
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Force an immediate connection so a bad path or permission problem
	// surfaces here instead of on the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL mode allows reads concurrent with a write; the busy timeout
	// covers the enqueue-versus-ack interleaving on the same table.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool. Callers should defer this
// right after New so the WAL is flushed and the file lock released even
// on a panic.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating kv table: %w", err)
	}
	return nil
}

// Get returns the value stored under key, or found=false if the key has
// never been set (or was removed).
func (db *DB) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT value FROM kv WHERE key = ?`, key,
	).Scan(&value)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("sqlite: getting %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (db *DB) Set(ctx context.Context, key string, value []byte) error {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("sqlite: setting %q: %w", key, err)
	}
	return nil
}

// Remove deletes key. Removing a missing key is not an error.
func (db *DB) Remove(ctx context.Context, key string) error {
	_, err := db.conn.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("sqlite: removing %q: %w", key, err)
	}
	return nil
}
