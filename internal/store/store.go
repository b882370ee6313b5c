// Package store is a multi-tenant relational store whose namespaces describe
// themselves: every table created through the executor is recorded, with its
// column names, in a per-namespace catalog table.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	_ "github.com/lib/pq"
)

// Supported backends.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// DefaultStatementTimeout bounds a single statement when Config leaves it unset.
const DefaultStatementTimeout = 30 * time.Second

// Config selects and configures a backend.
type Config struct {
	Backend string

	// DSN is the Postgres connection string.
	DSN string
	// DataDir holds one SQLite file per namespace.
	DataDir string

	StatementTimeout time.Duration
	MaxOpenConns     int
}

// Store owns the connection pool(s). Work happens on a Session.
type Store struct {
	cfg     Config
	dialect dialect
	log     *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open connects to the configured backend. A nil logger disables logging.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.StatementTimeout <= 0 {
		cfg.StatementTimeout = DefaultStatementTimeout
	}

	var (
		d   dialect
		err error
	)
	switch cfg.Backend {
	case BackendSQLite, "":
		cfg.Backend = BackendSQLite
		d, err = newSQLite(cfg.DataDir, cfg.MaxOpenConns)
	case BackendPostgres:
		d, err = newPostgres(ctx, cfg.DSN, cfg.MaxOpenConns)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}

	log.Debug("store opened", zap.String("backend", cfg.Backend))
	return &Store{
		cfg:     cfg,
		dialect: d,
		log:     log,
		locks:   make(map[string]*sync.Mutex),
	}, nil
}

// Close closes every pooled connection.
func (s *Store) Close() error {
	return s.dialect.close()
}

// Backend returns the name of the active backend.
func (s *Store) Backend() string {
	return s.cfg.Backend
}

// Session starts a unit of work holding a single connection. The caller
// must Close it.
func (s *Store) Session(ctx context.Context) (*Session, error) {
	conn, err := s.dialect.connect(ctx)
	if err != nil {
		return nil, &ConnectionError{Op: "acquire connection", Cause: err}
	}
	return &Session{store: s, conn: conn, log: s.log}, nil
}

func (s *Store) nsLock(ns string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	mu, ok := s.locks[ns]
	if !ok {
		mu = &sync.Mutex{}
		s.locks[ns] = mu
	}
	return mu
}
