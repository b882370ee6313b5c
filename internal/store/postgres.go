package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/lib/pq"
)

// postgresDialect maps each namespace to a schema in one database.
type postgresDialect struct {
	db *sql.DB
}

func newPostgres(ctx context.Context, dsn string, maxOpen int) (*postgresDialect, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres backend requires a DSN")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, &ConnectionError{Op: "open postgres", Cause: err}
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, &ConnectionError{Op: "ping postgres", Cause: err}
	}
	return &postgresDialect{db: db}, nil
}

func (d *postgresDialect) name() string { return BackendPostgres }

func (d *postgresDialect) connect(ctx context.Context) (*sql.Conn, error) {
	return d.db.Conn(ctx)
}

func (d *postgresDialect) ensureNamespace(ctx context.Context, conn *sql.Conn, ns string) error {
	_, err := conn.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+pq.QuoteIdentifier(ns))
	return err
}

func (d *postgresDialect) bind(ctx context.Context, conn *sql.Conn, ns string) (*sql.Conn, error) {
	if _, err := conn.ExecContext(ctx, "SET search_path TO "+pq.QuoteIdentifier(ns)); err != nil {
		return nil, err
	}
	return conn, nil
}

// release resets session state so a pooled connection never carries a
// tenant's search_path to the next borrower.
func (d *postgresDialect) release(ctx context.Context, conn *sql.Conn) error {
	if _, err := conn.ExecContext(ctx, "RESET ALL"); err != nil {
		// Returning ErrBadConn from Raw makes the pool discard the connection.
		_ = conn.Raw(func(any) error { return driver.ErrBadConn })
		return fmt.Errorf("reset session: %w", err)
	}
	return conn.Close()
}

func (d *postgresDialect) placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (d *postgresDialect) catalogDDL() string {
	return `CREATE TABLE IF NOT EXISTS ` + CatalogTable + ` (
	table_name VARCHAR(255) PRIMARY KEY,
	table_columns TEXT[] NOT NULL DEFAULT '{}'
)`
}

func (d *postgresDialect) columnsArg(cols []string) (any, error) {
	if cols == nil {
		cols = []string{}
	}
	return pq.Array(cols), nil
}

func (d *postgresDialect) columnsDest() (any, func() ([]string, error)) {
	var cols []string
	return pq.Array(&cols), func() ([]string, error) {
		if cols == nil {
			cols = []string{}
		}
		return cols, nil
	}
}

func (d *postgresDialect) physicalTablesQuery() string {
	return `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`
}

func (d *postgresDialect) advisoryLock(ctx context.Context, conn *sql.Conn, ns string) (func(), error) {
	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtext($1))", ns); err != nil {
		return nil, err
	}
	return func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock(hashtext($1))", ns)
	}, nil
}

func (d *postgresDialect) connectionLost(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// Class 08 is connection exception; 57P0x is a server shutdown.
		if pqErr.Code.Class() == "08" {
			return true
		}
		switch pqErr.Code {
		case "57P01", "57P02", "57P03":
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

func (d *postgresDialect) close() error {
	return d.db.Close()
}
