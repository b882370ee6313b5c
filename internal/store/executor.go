package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/daviddao/nirvana/internal/sqlclass"
)

// Result describes one executed statement.
type Result struct {
	Statement    sqlclass.Statement
	RowsAffected int64
	// CatalogChanged is set when the statement created or dropped a
	// catalogued table.
	CatalogChanged bool
}

// Rows is a fully read query result.
type Rows struct {
	Columns []string
	Values  [][]any
}

// Execute runs one statement in the selected namespace and keeps the
// catalog in step with it: a CREATE TABLE records the table's columns, a
// DROP TABLE removes its entry. Any other statement leaves the catalog
// alone.
func (s *Session) Execute(ctx context.Context, stmt string, args ...any) (Result, error) {
	if err := s.EnsureCatalog(ctx); err != nil {
		s.logFailure(err)
		return Result{}, err
	}

	st := sqlclass.Classify(stmt)
	if st.Ambiguous {
		s.log.Warn("statement looks like table DDL but could not be classified; catalog not updated",
			zap.String("statement", stmt), zap.String("reason", st.Reason))
	}

	res, err := s.exec(ctx, StageExecute, stmt, args)
	if err != nil {
		s.logFailure(err)
		return Result{Statement: st}, err
	}
	out := Result{Statement: st, RowsAffected: rowsAffected(res)}

	switch st.Kind {
	case sqlclass.Create:
		if isCatalogTable(st.Table) {
			s.log.Warn("not cataloguing the reserved catalog table", zap.String("statement", stmt))
			break
		}
		if err := s.upsertCatalog(ctx, st.Table, st.Columns); err != nil {
			s.logFailure(err)
			return out, err
		}
		out.CatalogChanged = true

	case sqlclass.Drop:
		for _, table := range st.Tables {
			if isCatalogTable(table) {
				s.catalogReady = false
				continue
			}
			if err := s.deleteCatalog(ctx, table); err != nil {
				s.logFailure(err)
				return out, err
			}
			out.CatalogChanged = true
		}
	}
	return out, nil
}

// ExecuteNamed runs stmt with named parameters. Parameters are bound
// positionally in sorted-name order, so placeholders must appear in that
// order.
func (s *Session) ExecuteNamed(ctx context.Context, stmt string, params map[string]any) (Result, error) {
	return s.Execute(ctx, stmt, namedArgs(params)...)
}

// ExecuteRaw runs stmt without classifying it or touching the catalog.
func (s *Session) ExecuteRaw(ctx context.Context, stmt string, args ...any) (Result, error) {
	res, err := s.exec(ctx, StageExecute, stmt, args)
	if err != nil {
		s.logFailure(err)
		return Result{}, err
	}
	return Result{RowsAffected: rowsAffected(res)}, nil
}

// ExecuteLogged runs Execute and swallows statement failures after logging
// them. Connection failures are still returned.
func (s *Session) ExecuteLogged(ctx context.Context, stmt string, args ...any) error {
	_, err := s.Execute(ctx, stmt, args...)
	if errors.Is(err, ErrSQLExecution) {
		return nil
	}
	return err
}

// Query runs a read statement and returns every row. []byte values are
// returned as strings.
func (s *Session) Query(ctx context.Context, stmt string, args ...any) (*Rows, error) {
	if s.conn == nil || s.ns == "" {
		return nil, ErrNoNamespace
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		err = s.wrap(StageExecute, stmt, args, err)
		s.logFailure(err)
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read columns: %w", err)
	}
	out := &Rows{Columns: cols}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		for i, v := range vals {
			if b, ok := v.([]byte); ok {
				vals[i] = string(b)
			}
		}
		out.Values = append(out.Values, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(StageExecute, stmt, args, err)
	}
	return out, nil
}

func (s *Session) exec(ctx context.Context, stage Stage, stmt string, args []any) (sql.Result, error) {
	if s.conn == nil || s.ns == "" {
		return nil, ErrNoNamespace
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.conn.ExecContext(ctx, stmt, args...)
	if err != nil {
		return nil, s.wrap(stage, stmt, args, err)
	}
	return res, nil
}

func (s *Session) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.store.cfg.StatementTimeout)
}

func (s *Session) wrap(stage Stage, stmt string, args []any, err error) error {
	if s.store.dialect.connectionLost(err) {
		return &ConnectionError{Op: string(stage), Cause: err}
	}
	return &SQLError{Statement: stmt, Args: args, Stage: stage, Cause: err}
}

func (s *Session) logFailure(err error) {
	var sqlErr *SQLError
	if errors.As(err, &sqlErr) {
		s.log.Warn("statement failed",
			zap.String("stage", string(sqlErr.Stage)),
			zap.String("statement", sqlErr.Statement),
			zap.Any("params", sqlErr.Args),
			zap.Error(sqlErr.Cause))
		return
	}
	if errors.Is(err, ErrNoNamespace) {
		return
	}
	s.log.Error("store failure", zap.Error(err))
}

func namedArgs(params map[string]any) []any {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = params[k]
	}
	return args
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return -1
	}
	return n
}
