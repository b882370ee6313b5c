package store

import (
	"context"
	"database/sql"
)

// dialect hides what differs between backends: how a namespace is
// materialized and selected, placeholder syntax, and how the catalog's
// column list is stored.
type dialect interface {
	name() string

	// connect returns the connection a new session starts with. Backends
	// that bind connections to a namespace file may return nil.
	connect(ctx context.Context) (*sql.Conn, error)
	ensureNamespace(ctx context.Context, conn *sql.Conn, ns string) error
	// bind returns a connection scoped to ns. It may reuse conn or replace
	// (and release) it.
	bind(ctx context.Context, conn *sql.Conn, ns string) (*sql.Conn, error)
	release(ctx context.Context, conn *sql.Conn) error

	placeholder(n int) string
	catalogDDL() string
	columnsArg(cols []string) (any, error)
	columnsDest() (dest any, decode func() ([]string, error))
	physicalTablesQuery() string

	// advisoryLock serializes writers of ns across processes where the
	// backend supports it. The returned func releases the lock.
	advisoryLock(ctx context.Context, conn *sql.Conn, ns string) (func(), error)

	// connectionLost reports whether err means the connection is unusable,
	// as opposed to the statement being rejected.
	connectionLost(err error) bool

	close() error
}
