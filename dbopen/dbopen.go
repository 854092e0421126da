// CLAUDE:SUMMARY Opens SQLite databases for flowkeeper stores with WAL pragmas, inline schema and store-unavailable classification.
// Package dbopen opens the SQLite databases behind the hash store and the
// document store.
//
// Pragmas applied to every pooled connection (through the modernc DSN):
//
//	journal_mode = WAL
//	busy_timeout = 10000
//	synchronous  = NORMAL
//	foreign_keys = ON
//
// Every failure is wrapped with faults.ErrStoreUnavailable: a database that
// cannot be opened or migrated must stop ingestion, not be guessed around.
//
// Usage:
//
//	import _ "modernc.org/sqlite"
//	db, err := dbopen.Open("data/hashes.db", dbopen.WithMkdirAll(), dbopen.WithSchema(ddl))
//
// In tests:
//
//	db := dbopen.OpenMemory(t, dbopen.WithSchema(ddl))
package dbopen

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hazyhaar/flowkeeper/faults"
)

type config struct {
	driver       string
	busyTimeout  int
	synchronous  string
	cacheSize    int
	mkdirAll     bool
	schemas      []string
	maxOpenConns int
}

// Option customises Open.
type Option func(*config)

// WithDriver overrides the database/sql driver name. Default: "sqlite".
func WithDriver(name string) Option { return func(c *config) { c.driver = name } }

// WithBusyTimeout sets PRAGMA busy_timeout in milliseconds.
func WithBusyTimeout(ms int) Option { return func(c *config) { c.busyTimeout = ms } }

// WithSynchronous sets PRAGMA synchronous.
func WithSynchronous(mode string) Option { return func(c *config) { c.synchronous = mode } }

// WithCacheSize sets PRAGMA cache_size. Negative values are KiB.
func WithCacheSize(pages int) Option { return func(c *config) { c.cacheSize = pages } }

// WithMkdirAll creates the parent directory of the database file.
func WithMkdirAll() Option { return func(c *config) { c.mkdirAll = true } }

// WithSchema queues DDL to execute after the pragmas.
func WithSchema(ddl string) Option {
	return func(c *config) { c.schemas = append(c.schemas, ddl) }
}

// WithMaxOpenConns caps the pool. The hash store uses 1 so that its
// check-and-set transactions never interleave inside one process.
func WithMaxOpenConns(n int) Option { return func(c *config) { c.maxOpenConns = n } }

// Open opens the SQLite database at path. The caller blank-imports the driver.
func Open(path string, opts ...Option) (*sql.DB, error) {
	cfg := config{
		driver:      "sqlite",
		busyTimeout: 10_000,
		synchronous: "NORMAL",
	}
	for _, o := range opts {
		o(&cfg)
	}

	if cfg.mkdirAll && path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, faults.Unavailable(fmt.Errorf("dbopen: mkdir: %w", err))
		}
	}

	dsn := path
	if cfg.driver == "sqlite" {
		dsn = withPragmas(path, cfg.pragmas())
	}
	db, err := sql.Open(cfg.driver, dsn)
	if err != nil {
		return nil, faults.Unavailable(fmt.Errorf("dbopen: open %s: %w", path, err))
	}
	if cfg.maxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.maxOpenConns)
	}

	if err := prepare(db, &cfg); err != nil {
		db.Close()
		return nil, faults.Unavailable(err)
	}
	return db, nil
}

// OpenMemory opens an in-memory database bound to a single connection
// (each ":memory:" connection is its own database) and closes it on cleanup.
func OpenMemory(t testing.TB, opts ...Option) *sql.DB {
	t.Helper()
	db, err := Open(":memory:", append(opts, WithMaxOpenConns(1))...)
	if err != nil {
		t.Fatalf("dbopen.OpenMemory: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func (c *config) pragmas() []string {
	p := []string{
		"journal_mode(WAL)",
		fmt.Sprintf("busy_timeout(%d)", c.busyTimeout),
		fmt.Sprintf("synchronous(%s)", c.synchronous),
		"foreign_keys(1)",
	}
	if c.cacheSize != 0 {
		p = append(p, fmt.Sprintf("cache_size(%d)", c.cacheSize))
	}
	return p
}

// withPragmas appends modernc _pragma parameters to path. The driver runs
// them on each new connection, so every connection of the pool gets them.
func withPragmas(path string, pragmas []string) string {
	var b strings.Builder
	b.WriteString(path)
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	for _, p := range pragmas {
		b.WriteString(sep)
		b.WriteString("_pragma=")
		b.WriteString(p)
		sep = "&"
	}
	return b.String()
}

func prepare(db *sql.DB, cfg *config) error {
	// Drivers other than modernc get the pragmas on the first connection only.
	if cfg.driver != "sqlite" {
		for _, p := range cfg.pragmas() {
			stmt := "PRAGMA " + strings.Replace(strings.TrimSuffix(p, ")"), "(", " = ", 1)
			if _, err := db.Exec(stmt); err != nil {
				return fmt.Errorf("dbopen: %s: %w", stmt, err)
			}
		}
	}
	for _, ddl := range cfg.schemas {
		if _, err := db.Exec(ddl); err != nil {
			return fmt.Errorf("dbopen: exec schema: %w", err)
		}
	}
	if err := db.Ping(); err != nil {
		return fmt.Errorf("dbopen: ping: %w", err)
	}
	return nil
}
