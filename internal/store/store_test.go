package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/daviddao/nirvana/internal/tenant"
)

func openTestStore(t *testing.T, log *zap.Logger) *Store {
	t.Helper()
	if log == nil {
		log = zaptest.NewLogger(t)
	}
	st, err := Open(context.Background(), Config{Backend: BackendSQLite, DataDir: t.TempDir()}, log)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func openTenant(t *testing.T, st *Store, identity string) *Session {
	t.Helper()
	ctx := context.Background()
	sess, err := st.Session(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	_, err = sess.Use(ctx, identity)
	require.NoError(t, err)
	return sess
}

func TestOpen_Defaults(t *testing.T) {
	st := openTestStore(t, nil)
	assert.Equal(t, BackendSQLite, st.Backend())
	assert.Equal(t, DefaultStatementTimeout, st.cfg.StatementTimeout)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "oracle"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oracle")
}

func TestOpen_SQLiteRequiresDataDir(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: BackendSQLite}, nil)
	require.Error(t, err)
}

func TestSession_Use(t *testing.T) {
	st := openTestStore(t, nil)
	sess := openTenant(t, st, "alice@example.com")
	assert.Equal(t, "alice_example_com", sess.Namespace())
}

func TestSession_EnsureNamespaceIdempotent(t *testing.T) {
	st := openTestStore(t, nil)
	ctx := context.Background()
	sess, err := st.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.NoError(t, sess.EnsureNamespace(ctx, "bob"))
	require.NoError(t, sess.EnsureNamespace(ctx, "bob"))
	require.NoError(t, sess.SelectNamespace(ctx, "bob"))
}

func TestSession_InvalidNamespace(t *testing.T) {
	st := openTestStore(t, nil)
	ctx := context.Background()
	sess, err := st.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()

	err = sess.EnsureNamespace(ctx, "Robert'); DROP TABLE Students;--")
	assert.ErrorIs(t, err, tenant.ErrInvalidIdentity)
	err = sess.SelectNamespace(ctx, "")
	assert.ErrorIs(t, err, tenant.ErrInvalidIdentity)
}

func TestSession_SelectMissingNamespace(t *testing.T) {
	st := openTestStore(t, nil)
	ctx := context.Background()
	sess, err := st.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()

	require.Error(t, sess.SelectNamespace(ctx, "nobody"))
	assert.Empty(t, sess.Namespace())
}

func TestSession_RequiresNamespace(t *testing.T) {
	st := openTestStore(t, nil)
	ctx := context.Background()
	sess, err := st.Session(ctx)
	require.NoError(t, err)
	defer sess.Close()

	_, err = sess.Execute(ctx, "CREATE TABLE t (a INT)")
	assert.ErrorIs(t, err, ErrNoNamespace)
	_, err = sess.ExecuteRaw(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrNoNamespace)
	_, err = sess.Query(ctx, "SELECT 1")
	assert.ErrorIs(t, err, ErrNoNamespace)
	_, err = sess.Snapshot(ctx)
	assert.ErrorIs(t, err, ErrNoNamespace)
	_, err = sess.LockNamespace(ctx)
	assert.ErrorIs(t, err, ErrNoNamespace)
}

func TestSession_CloseTwice(t *testing.T) {
	st := openTestStore(t, nil)
	sess := openTenant(t, st, "carol")
	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
	assert.Empty(t, sess.Namespace())
}

func TestSession_LockNamespaceSerializes(t *testing.T) {
	st := openTestStore(t, nil)
	a := openTenant(t, st, "dave")
	b := openTenant(t, st, "dave")
	ctx := context.Background()

	unlock, err := a.LockNamespace(ctx)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		unlockB, err := b.LockNamespace(ctx)
		if err == nil {
			unlockB()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second writer acquired the namespace lock while it was held")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(2 * time.Second):
		t.Fatal("second writer never acquired the namespace lock")
	}
}

func TestConnectionLost(t *testing.T) {
	pg := &postgresDialect{}
	assert.True(t, pg.connectionLost(sql.ErrConnDone))
	assert.True(t, pg.connectionLost(&pq.Error{Code: "08006"}))
	assert.True(t, pg.connectionLost(&pq.Error{Code: "57P01"}))
	assert.False(t, pg.connectionLost(&pq.Error{Code: "42P01"}))
	assert.False(t, pg.connectionLost(errors.New("syntax error")))

	lite := &sqliteDialect{}
	assert.True(t, lite.connectionLost(sql.ErrConnDone))
	assert.False(t, lite.connectionLost(errors.New("no such table: t")))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$2", (&postgresDialect{}).placeholder(2))
	assert.Equal(t, "?", (&sqliteDialect{}).placeholder(2))
}
