//go:build integration

package store

import (
	"context"
	"database/sql"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// pgStore connects to the integration database. Namespaces created through
// pgNamespace are dropped when the test ends.
func pgStore(t *testing.T) (*Store, string) {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_URL")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_URL not set; skipping PostgreSQL integration test")
	}

	st, err := Open(context.Background(), Config{Backend: BackendPostgres, DSN: dsn, MaxOpenConns: 4}, zaptest.NewLogger(t))
	require.NoError(t, err, "failed to connect to PostgreSQL")
	t.Cleanup(func() { st.Close() })
	return st, dsn
}

func pgNamespace(t *testing.T, dsn string) string {
	t.Helper()
	ns := "it_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	t.Cleanup(func() {
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return
		}
		defer db.Close()
		_, _ = db.Exec("DROP SCHEMA IF EXISTS " + pq.QuoteIdentifier(ns) + " CASCADE")
	})
	return ns
}

func pgSession(t *testing.T, st *Store, ns string) *Session {
	t.Helper()
	ctx := context.Background()
	sess, err := st.Session(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { sess.Close() })
	require.NoError(t, sess.EnsureNamespace(ctx, ns))
	require.NoError(t, sess.SelectNamespace(ctx, ns))
	return sess
}

func TestPostgres_CatalogLifecycle(t *testing.T) {
	st, dsn := pgStore(t)
	sess := pgSession(t, st, pgNamespace(t, dsn))
	ctx := context.Background()

	for _, stmt := range []string{
		"CREATE TABLE IF NOT EXISTS Notes (id VARCHAR(255), body TEXT)",
		"CREATE TABLE IF NOT EXISTS Notes (id VARCHAR(255), body TEXT)",
		"CREATE TABLE a (x INT)",
		"CREATE TABLE b (y INT)",
		"DROP TABLE a, b",
		"INSERT INTO Notes VALUES ('n1', 'hello')",
	} {
		_, err := sess.Execute(ctx, stmt)
		require.NoError(t, err, stmt)
	}

	cat, err := sess.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, Catalog{"Notes": {"id", "body"}}, cat)

	physical, err := sess.PhysicalTables(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"metadata", "notes"}, physical)
}

func TestPostgres_NamespaceIsolation(t *testing.T) {
	st, dsn := pgStore(t)
	a := pgSession(t, st, pgNamespace(t, dsn))
	b := pgSession(t, st, pgNamespace(t, dsn))
	ctx := context.Background()

	_, err := a.Execute(ctx, "CREATE TABLE Notes (id TEXT)")
	require.NoError(t, err)

	cat, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, cat)

	_, err = b.Query(ctx, "SELECT * FROM Notes")
	assert.ErrorIs(t, err, ErrSQLExecution)
}

func TestPostgres_CloseResetsSearchPath(t *testing.T) {
	st, dsn := pgStore(t)
	ns := pgNamespace(t, dsn)
	ctx := context.Background()

	sess, err := st.Session(ctx)
	require.NoError(t, err)
	require.NoError(t, sess.EnsureNamespace(ctx, ns))
	require.NoError(t, sess.SelectNamespace(ctx, ns))
	require.NoError(t, sess.Close())

	// Every pooled connection must come back with the default search_path.
	for i := 0; i < 4; i++ {
		next, err := st.Session(ctx)
		require.NoError(t, err)
		var path string
		require.NoError(t, next.conn.QueryRowContext(ctx, "SHOW search_path").Scan(&path))
		assert.NotContains(t, path, ns)
		require.NoError(t, next.Close())
	}
}

func TestPostgres_AdvisoryLock(t *testing.T) {
	st, dsn := pgStore(t)
	ns := pgNamespace(t, dsn)
	sess := pgSession(t, st, ns)

	unlock, err := sess.LockNamespace(context.Background())
	require.NoError(t, err)
	unlock()
}
