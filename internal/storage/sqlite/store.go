// Package sqlite implements the storage interface using SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"

	sqlite3 "github.com/ncruces/go-sqlite3"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/tetratelabs/wazero"

	"github.com/mkropat/tasktree/internal/storage"
)

// SQLiteStore implements the Store interface using SQLite.
type SQLiteStore struct {
	queries
	db     *sql.DB
	dbPath string
	closed atomic.Bool
}

var _ storage.Store = (*SQLiteStore)(nil)

// memdbSeq names in-memory databases uniquely within the process.
var memdbSeq atomic.Int64

// setupWASMCache configures WASM compilation caching so the sqlite
// driver does not pay JIT compilation on every process start. Falls
// back to an in-memory cache when the cache directory is unusable.
func setupWASMCache() {
	var cache wazero.CompilationCache
	if userCache, err := os.UserCacheDir(); err == nil {
		dir := filepath.Join(userCache, "tasktree", "wasm")
		if c, err := wazero.NewCompilationCacheWithDir(dir); err == nil {
			cache = c
		}
	}
	if cache == nil {
		cache = wazero.NewCompilationCache()
	}
	sqlite3.RuntimeConfig = wazero.NewRuntimeConfig().WithCompilationCache(cache)
}

func init() {
	setupWASMCache()
}

// New opens (creating if needed) a SQLite database at path and
// initializes the schema. Use ":memory:" for an in-memory database.
func New(ctx context.Context, path string) (*SQLiteStore, error) {
	var connStr string
	isInMemory := path == ":memory:" ||
		(strings.HasPrefix(path, "file:") && strings.Contains(path, "mode=memory"))
	switch {
	case path == ":memory:":
		// Shared cache so multiple pool connections see the same data;
		// the name is unique per open so separate stores in one process
		// stay isolated. WAL does not apply to in-memory databases.
		connStr = fmt.Sprintf("file:memdb%d?mode=memory&cache=shared&_pragma=journal_mode(DELETE)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_txlock=immediate", memdbSeq.Add(1))
	case strings.HasPrefix(path, "file:"):
		connStr = path
		if !strings.Contains(path, "_pragma=foreign_keys") {
			connStr += "&_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_txlock=immediate"
		}
	default:
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		connStr = "file:" + path + "?_pragma=foreign_keys(ON)&_pragma=busy_timeout(30000)&_txlock=immediate"
	}

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if isInMemory {
		// In-memory databases are per-connection by default; a single
		// connection keeps every reader on the same data.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	} else {
		// WAL supports 1 writer + N readers; bound the pool so write
		// contention does not pile up goroutines.
		db.SetMaxOpenConns(runtime.NumCPU() + 1)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(0)
	}

	if !isInMemory {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	var userVersion int
	if err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&userVersion); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to read schema version: %w", err)
	}
	if userVersion > schemaVersion {
		_ = db.Close()
		return nil, fmt.Errorf("database schema version %d is newer than this build supports (%d)", userVersion, schemaVersion)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if userVersion < schemaVersion {
		if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set schema version: %w", err)
		}
	}

	s := &SQLiteStore{db: db, dbPath: path}
	s.queries.q = db
	return s, nil
}

// Path returns the database path this store was opened with.
func (s *SQLiteStore) Path() string { return s.dbPath }

// Close releases the connection pool. Safe to call more than once.
func (s *SQLiteStore) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// sqliteTx adapts one *sql.Tx to the Tx interface. All reads observe
// the transaction's own writes.
type sqliteTx struct {
	queries
}

var _ storage.Tx = (*sqliteTx)(nil)

// InTransaction runs fn inside one immediate transaction, committing
// on nil and rolling back on error or panic.
func (s *SQLiteStore) InTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	stx := &sqliteTx{}
	stx.queries.q = tx
	if err := fn(stx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}

// dbtx is the common surface of *sql.DB and *sql.Tx the query layer
// runs against.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries holds every read and write implementation; it is embedded
// by both the pooled store and the transaction handle.
type queries struct {
	q dbtx
}
