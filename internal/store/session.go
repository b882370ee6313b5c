package store

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/daviddao/nirvana/internal/tenant"
)

// Session is one caller's view of the store: one connection, bound to at
// most one namespace. A Session is not safe for concurrent use.
type Session struct {
	store *Store
	conn  *sql.Conn
	ns    string
	log   *zap.Logger

	catalogReady bool
}

// EnsureNamespace creates ns if it does not exist. It is idempotent.
func (s *Session) EnsureNamespace(ctx context.Context, ns string) error {
	if err := tenant.Valid(ns); err != nil {
		return err
	}
	if err := s.store.dialect.ensureNamespace(ctx, s.conn, ns); err != nil {
		return s.connErr("ensure namespace", err)
	}
	return nil
}

// SelectNamespace binds the session to ns. Unqualified names in later
// statements resolve inside ns only.
func (s *Session) SelectNamespace(ctx context.Context, ns string) error {
	if err := tenant.Valid(ns); err != nil {
		return err
	}
	conn, err := s.store.dialect.bind(ctx, s.conn, ns)
	if err != nil {
		return s.connErr("select namespace", err)
	}
	s.conn = conn
	s.ns = ns
	s.catalogReady = false
	s.log = s.store.log.With(zap.String("namespace", ns))
	return nil
}

// Use resolves identity to a namespace, creates it if needed and selects it.
func (s *Session) Use(ctx context.Context, identity string) (string, error) {
	ns, err := tenant.Resolve(identity)
	if err != nil {
		return "", err
	}
	if err := s.EnsureNamespace(ctx, ns); err != nil {
		return "", err
	}
	if err := s.SelectNamespace(ctx, ns); err != nil {
		return "", err
	}
	return ns, nil
}

// Namespace returns the selected namespace, or "" if none.
func (s *Session) Namespace() string {
	return s.ns
}

// Close returns the connection. It is safe to call more than once.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	s.ns = ""
	return s.store.dialect.release(context.Background(), conn)
}

// LockNamespace serializes writers of the selected namespace: within this
// process, and across processes on backends that support advisory locks.
func (s *Session) LockNamespace(ctx context.Context) (unlock func(), err error) {
	if s.ns == "" {
		return nil, ErrNoNamespace
	}
	mu := s.store.nsLock(s.ns)
	mu.Lock()

	release, err := s.store.dialect.advisoryLock(ctx, s.conn, s.ns)
	if err != nil {
		mu.Unlock()
		return nil, s.connErr("lock namespace", err)
	}
	return func() {
		release()
		mu.Unlock()
	}, nil
}

func (s *Session) connErr(op string, err error) error {
	if s.store.dialect.connectionLost(err) {
		return &ConnectionError{Op: op, Cause: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Placeholder returns the backend's positional parameter marker for the
// n-th argument (1-based).
func (s *Session) Placeholder(n int) string {
	return s.store.dialect.placeholder(n)
}
