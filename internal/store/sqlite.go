package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// sqliteDialect keeps one database file per namespace under dir.
type sqliteDialect struct {
	dir     string
	maxOpen int

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

func newSQLite(dir string, maxOpen int) (*sqliteDialect, error) {
	if dir == "" {
		return nil, fmt.Errorf("sqlite backend requires a data directory")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}
	return &sqliteDialect{dir: dir, maxOpen: maxOpen, dbs: make(map[string]*sql.DB)}, nil
}

func (d *sqliteDialect) name() string { return BackendSQLite }

func (d *sqliteDialect) path(ns string) string {
	return filepath.Join(d.dir, ns+".db")
}

// open returns the cached handle for ns, opening it on first use.
func (d *sqliteDialect) open(ns string) (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if db, ok := d.dbs[ns]; ok {
		return db, nil
	}
	dsn := d.path(ns) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open namespace %s: %w", ns, err)
	}
	if d.maxOpen > 0 {
		db.SetMaxOpenConns(d.maxOpen)
	}
	d.dbs[ns] = db
	return db, nil
}

func (d *sqliteDialect) connect(ctx context.Context) (*sql.Conn, error) {
	return nil, nil
}

func (d *sqliteDialect) ensureNamespace(ctx context.Context, _ *sql.Conn, ns string) error {
	db, err := d.open(ns)
	if err != nil {
		return err
	}
	// The file is created on first connect.
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("create namespace %s: %w", ns, err)
	}
	return nil
}

func (d *sqliteDialect) bind(ctx context.Context, conn *sql.Conn, ns string) (*sql.Conn, error) {
	if _, err := os.Stat(d.path(ns)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("namespace %s does not exist", ns)
		}
		return nil, err
	}
	db, err := d.open(ns)
	if err != nil {
		return nil, err
	}
	next, err := db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	if conn != nil {
		conn.Close()
	}
	return next, nil
}

func (d *sqliteDialect) release(ctx context.Context, conn *sql.Conn) error {
	return conn.Close()
}

func (d *sqliteDialect) placeholder(int) string { return "?" }

func (d *sqliteDialect) catalogDDL() string {
	return `CREATE TABLE IF NOT EXISTS ` + CatalogTable + ` (
	table_name VARCHAR(255) PRIMARY KEY,
	table_columns TEXT NOT NULL DEFAULT '[]'
)`
}

// SQLite has no array type; the column list is stored as a JSON array.
func (d *sqliteDialect) columnsArg(cols []string) (any, error) {
	if cols == nil {
		cols = []string{}
	}
	b, err := json.Marshal(cols)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (d *sqliteDialect) columnsDest() (any, func() ([]string, error)) {
	var raw string
	return &raw, func() ([]string, error) {
		cols := []string{}
		if raw == "" {
			return cols, nil
		}
		if err := json.Unmarshal([]byte(raw), &cols); err != nil {
			return nil, fmt.Errorf("decode table_columns: %w", err)
		}
		return cols, nil
	}
}

func (d *sqliteDialect) physicalTablesQuery() string {
	return `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
}

// Each namespace is its own file, so the store's in-process mutex is the
// whole lock; busy_timeout covers other processes.
func (d *sqliteDialect) advisoryLock(ctx context.Context, conn *sql.Conn, ns string) (func(), error) {
	return func() {}, nil
}

func (d *sqliteDialect) connectionLost(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var serr *sqlite.Error
	if errors.As(err, &serr) {
		switch serr.Code() & 0xff {
		case sqlite3.SQLITE_CANTOPEN, sqlite3.SQLITE_NOTADB, sqlite3.SQLITE_IOERR, sqlite3.SQLITE_CORRUPT:
			return true
		}
	}
	return false
}

func (d *sqliteDialect) close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var errs []error
	for ns, db := range d.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close namespace %s: %w", ns, err))
		}
		delete(d.dbs, ns)
	}
	return errors.Join(errs...)
}
