package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
//
// All mutations go through withTx, which holds mu for the duration of the
// transaction: there is exactly one writer at a time per process.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// Open creates or opens a SQLite database at the given path.
func Open(dbPath string) (*DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &StorageError{Op: "create data directory", Err: err}
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, &StorageError{Op: "open database", Err: err}
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, &StorageError{Op: "set journal mode", Err: err}
	}
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, &StorageError{Op: "enable foreign keys", Err: err}
	}
	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, &StorageError{Op: "set busy timeout", Err: err}
	}

	if err := migrate(conn); err != nil {
		conn.Close()
		return nil, &StorageError{Op: "migrate schema", Err: err}
	}

	return &DB{conn: conn, path: dbPath, now: time.Now}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// SetClock replaces the time source used for stamping rows.
func (db *DB) SetClock(now func() time.Time) {
	db.now = now
}

func (db *DB) timestamp() string {
	return FormatTime(db.now())
}

// withTx runs fn inside a transaction while holding the writer lock.
// Sentinel errors returned by fn pass through untouched; everything else is
// reported as a StorageError for op.
func (db *DB) withTx(op string, fn func(tx *sql.Tx) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return &StorageError{Op: op, Err: fmt.Errorf("begin: %w", err)}
	}

	if err := fn(tx); err != nil {
		tx.Rollback()
		return wrapStorage(op, err)
	}

	if err := tx.Commit(); err != nil {
		return &StorageError{Op: op, Err: fmt.Errorf("commit: %w", err)}
	}
	return nil
}
