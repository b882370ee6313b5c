// Package tracker loads issue-tracker records into fixed-shape tables, one
// table per record kind (Epics, Tasks, Bugs, ...).
package tracker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/daviddao/nirvana/internal/store"
)

// ErrInvalidKind is returned for record kinds that do not yield a usable
// table name.
var ErrInvalidKind = errors.New("invalid record kind")

// Record is one tracker item.
type Record struct {
	ID          string
	Summary     string
	Description string
	Status      string
	Created     time.Time
	Updated     time.Time
	Due         *time.Time
}

// SyncResult aggregates one Sync call.
type SyncResult struct {
	Table    string
	Loaded   int
	Failed   int
	Failures []error
}

// Columns is the fixed column list of every tracker table, in order.
var Columns = []string{"id", "summary", "description", "status", "created", "updated", "due"}

// TableName derives the table for a record kind: capitalized and
// pluralized, so "epic" becomes "Epics" and "story" becomes "Stories".
func TableName(kind string) (string, error) {
	kind = strings.TrimSpace(kind)
	if kind == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKind)
	}
	kind = strings.NewReplacer("-", "_", " ", "_").Replace(kind)
	for i, r := range kind {
		if r > unicode.MaxASCII || !(r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r))) {
			return "", fmt.Errorf("%w: %q", ErrInvalidKind, kind)
		}
	}

	name := pluralize(strings.ToUpper(kind[:1]) + strings.ToLower(kind[1:]))
	if len(name) > 63 {
		return "", fmt.Errorf("%w: %q is too long", ErrInvalidKind, kind)
	}
	return name, nil
}

func pluralize(word string) string {
	lower := strings.ToLower(word)
	switch {
	case strings.HasSuffix(lower, "y") && len(word) > 1 && !strings.ContainsRune("aeiou", rune(lower[len(lower)-2])):
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(lower, "s"), strings.HasSuffix(lower, "x"), strings.HasSuffix(lower, "z"),
		strings.HasSuffix(lower, "ch"), strings.HasSuffix(lower, "sh"):
		return word + "es"
	default:
		return word + "s"
	}
}

// Loader writes tracker records through a store session.
type Loader struct {
	log *zap.Logger
}

// NewLoader returns a Loader. A nil logger disables logging.
func NewLoader(log *zap.Logger) *Loader {
	if log == nil {
		log = zap.NewNop()
	}
	return &Loader{log: log}
}

// Sync replaces the kind's table with records. The table is dropped and
// recreated first, so rows absent from records are discarded. A record that
// fails to load is counted and logged; loading continues. Errors are
// returned only when the table itself cannot be prepared or the connection
// is lost.
func (l *Loader) Sync(ctx context.Context, sess *store.Session, kind string, records []Record) (*SyncResult, error) {
	table, err := TableName(kind)
	if err != nil {
		return nil, err
	}

	unlock, err := sess.LockNamespace(ctx)
	if err != nil {
		return nil, fmt.Errorf("lock namespace: %w", err)
	}
	defer unlock()

	// The drop bypasses the catalog; the create below rewrites the entry.
	if _, err := sess.ExecuteRaw(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
		return nil, fmt.Errorf("drop %s: %w", table, err)
	}
	if _, err := sess.Execute(ctx, createStatement(table)); err != nil {
		l.forget(ctx, sess, table)
		return nil, fmt.Errorf("create %s: %w", table, err)
	}

	res := &SyncResult{Table: table}
	stmt := upsertStatement(table, sess.Placeholder)
	for _, rec := range records {
		_, err := sess.Execute(ctx, stmt, rec.args()...)
		if err == nil {
			res.Loaded++
			continue
		}
		if errors.Is(err, store.ErrConnection) {
			return res, fmt.Errorf("load %s: %w", table, err)
		}
		res.Failed++
		res.Failures = append(res.Failures, fmt.Errorf("record %s: %w", rec.ID, err))
		l.log.Warn("tracker record failed to load",
			zap.String("table", table), zap.String("id", rec.ID), zap.Error(err))
	}

	l.log.Info("tracker sync complete",
		zap.String("namespace", sess.Namespace()),
		zap.String("table", table),
		zap.Int("loaded", res.Loaded),
		zap.Int("failed", res.Failed))
	return res, nil
}

func createStatement(table string) string {
	return "CREATE TABLE IF NOT EXISTS " + table + ` (
	id VARCHAR(255) PRIMARY KEY,
	summary VARCHAR(255),
	description TEXT,
	status VARCHAR(255),
	created TIMESTAMP,
	updated TIMESTAMP,
	due DATE
)`
}

func upsertStatement(table string, placeholder func(int) string) string {
	marks := make([]string, len(Columns))
	sets := make([]string, 0, len(Columns)-1)
	for i, col := range Columns {
		marks[i] = placeholder(i + 1)
		if col != "id" {
			sets = append(sets, col+" = excluded."+col)
		}
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (id) DO UPDATE SET %s",
		table, strings.Join(Columns, ", "), strings.Join(marks, ", "), strings.Join(sets, ", "))
}

func (r Record) args() []any {
	var due any
	if r.Due != nil {
		due = r.Due.Format(time.DateOnly)
	}
	return []any{
		r.ID,
		r.Summary,
		r.Description,
		r.Status,
		nullTime(r.Created),
		nullTime(r.Updated),
		due,
	}
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC()
}

// forget removes the catalog entry for a table whose drop succeeded but whose
// recreate did not.
func (l *Loader) forget(ctx context.Context, sess *store.Session, table string) {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE lower(table_name) = lower(%s)", store.CatalogTable, sess.Placeholder(1))
	if _, err := sess.ExecuteRaw(ctx, stmt, table); err != nil {
		l.log.Warn("could not remove catalog entry after failed create",
			zap.String("table", table), zap.Error(err))
	}
}
