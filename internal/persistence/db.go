// Package persistence provides SQLite-based storage for the live world and
// its save generations.
//
// Every per-world table carries a generation column: -1 is the live world,
// any other value is the id of the save_backups row that roots a snapshot.
// Callers never write that filter by hand. They read through a Live or
// Archive view and write through Live or a SnapshotWriter, each of which
// pins its generation.
package persistence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/talgya/farmstead/internal/gameerr"
)

// DB wraps a SQLite connection for world state persistence.
type DB struct {
	conn   *sqlx.DB
	path   string
	closed atomic.Bool
}

// Open opens or creates a SQLite database at the given path and brings its
// schema up to date. Any failure here is StoreUnavailable.
func Open(path string) (*DB, error) {
	return openAt(path, len(migrations))
}

func openAt(path string, version int) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, gameerr.New(gameerr.StoreUnavailable, "empty database path")
	}
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, gameerr.Wrap(gameerr.StoreUnavailable, "create db dir", err)
			}
		}
	}

	conn, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, gameerr.Wrap(gameerr.StoreUnavailable, "open db", err)
	}
	// One connection: the simulation goroutine is the only writer, and
	// pragmas are per-connection.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA synchronous=NORMAL;",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL;")
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return nil, gameerr.Wrap(gameerr.StoreUnavailable, "sqlite pragma", err)
		}
	}

	db := &DB{conn: conn, path: path}
	if err := db.migrate(context.Background(), version); err != nil {
		conn.Close()
		return nil, gameerr.Wrap(gameerr.StoreUnavailable, "migrate", err)
	}

	slog.Debug("store opened", "path", path, "schema_version", version)
	return db, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the database connection. Every later call fails with
// StoreUnavailable.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	return db.conn.Close()
}

func (db *DB) ready() error {
	if db == nil || db.closed.Load() {
		return gameerr.New(gameerr.StoreUnavailable, "store is closed")
	}
	return nil
}

// Live returns the read/write view of the live world.
func (db *DB) Live() *Live {
	return &Live{reader{db: db, q: db.conn, gen: LiveGeneration}}
}

// Archive returns a read-only view of backup id's generation. It does not
// check that the backup exists; reads of a missing generation are empty.
func (db *DB) Archive(id int64) *Archive {
	return &Archive{reader{db: db, q: db.conn, gen: Generation(id)}}
}

// Tx is an open transaction. Views obtained from it share the transaction.
type Tx struct {
	db *DB
	tx *sqlx.Tx
}

// InTx runs fn inside a transaction, committing if fn returns nil and rolling
// back otherwise. Views from the outer DB must not be used inside fn.
func (db *DB) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	if err := db.ready(); err != nil {
		return err
	}
	sqlTx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return storeErr("begin", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{db: db, tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return storeErr("commit", err)
	}
	return nil
}

// Live returns the live view bound to this transaction.
func (t *Tx) Live() *Live {
	return &Live{reader{db: t.db, q: t.tx, gen: LiveGeneration}}
}

// Archive returns a read-only view of backup id bound to this transaction.
func (t *Tx) Archive(id int64) *Archive {
	return &Archive{reader{db: t.db, q: t.tx, gen: Generation(id)}}
}

// storeErr classifies a driver error. UNIQUE violations become
// DuplicateLiveRow, since the only unique indexes are on the live partition.
func storeErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var ge *gameerr.Error
	if errors.As(err, &ge) {
		return err
	}
	if isUniqueViolation(err) {
		return gameerr.Wrap(gameerr.DuplicateLiveRow, op, err)
	}
	if strings.Contains(err.Error(), "database is closed") {
		return gameerr.Wrap(gameerr.StoreUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if errors.As(err, &se) {
		code := se.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
