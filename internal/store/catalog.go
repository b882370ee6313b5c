package store

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
)

// CatalogTable is the reserved name of the per-namespace catalog.
const CatalogTable = "metadata"

// Catalog maps table name to column names in declaration order.
type Catalog map[string][]string

// Tables returns the catalogued table names, sorted.
func (c Catalog) Tables() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe renders the catalog as tagged lines for a model prompt.
func (c Catalog) Describe() string {
	if len(c) == 0 {
		return "(no tables)"
	}
	var b strings.Builder
	for i, name := range c.Tables() {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "Table: %s\nColumns: %s\n", name, strings.Join(c[name], ", "))
	}
	return b.String()
}

// Drift compares the catalog with the namespace's physical tables. Missing
// lists catalogued tables that no longer exist; untracked lists tables the
// catalog does not know. Identifiers compare case-insensitively.
func (c Catalog) Drift(physical []string) (missing, untracked []string) {
	have := make(map[string]bool, len(physical))
	for _, t := range physical {
		have[strings.ToLower(t)] = true
	}
	known := make(map[string]bool, len(c))
	for _, t := range c.Tables() {
		known[strings.ToLower(t)] = true
		if !have[strings.ToLower(t)] {
			missing = append(missing, t)
		}
	}
	for _, t := range physical {
		if isCatalogTable(t) || known[strings.ToLower(t)] {
			continue
		}
		untracked = append(untracked, t)
	}
	return missing, untracked
}

func isCatalogTable(name string) bool {
	return strings.EqualFold(name, CatalogTable)
}

// EnsureCatalog creates the catalog table in the selected namespace if it
// does not exist.
func (s *Session) EnsureCatalog(ctx context.Context) error {
	if s.ns == "" {
		return ErrNoNamespace
	}
	if s.catalogReady {
		return nil
	}
	if _, err := s.exec(ctx, StageCatalog, s.store.dialect.catalogDDL(), nil); err != nil {
		return err
	}
	s.catalogReady = true
	return nil
}

// Snapshot reads the whole catalog. It never contains CatalogTable.
func (s *Session) Snapshot(ctx context.Context) (Catalog, error) {
	if err := s.EnsureCatalog(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := "SELECT table_name, table_columns FROM " + CatalogTable
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, s.wrap(StageCatalog, query, nil, err)
	}
	defer rows.Close()

	cat := Catalog{}
	for rows.Next() {
		var name string
		dest, decode := s.store.dialect.columnsDest()
		if err := rows.Scan(&name, dest); err != nil {
			return nil, fmt.Errorf("scan catalog: %w", err)
		}
		cols, err := decode()
		if err != nil {
			return nil, err
		}
		if isCatalogTable(name) {
			continue
		}
		cat[name] = cols
	}
	if err := rows.Err(); err != nil {
		return nil, s.wrap(StageCatalog, query, nil, err)
	}
	return cat, nil
}

// PhysicalTables lists every table that exists in the selected namespace,
// whether or not it was created through the executor.
func (s *Session) PhysicalTables(ctx context.Context) ([]string, error) {
	if s.ns == "" {
		return nil, ErrNoNamespace
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := s.store.dialect.physicalTablesQuery()
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, s.wrap(StageExecute, query, nil, err)
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan table name: %w", err)
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// upsertCatalog records cols as the columns of table. An entry spelled with
// different case names the same table, so it is replaced rather than kept
// alongside.
func (s *Session) upsertCatalog(ctx context.Context, table string, cols []string) error {
	arg, err := s.store.dialect.columnsArg(cols)
	if err != nil {
		return fmt.Errorf("encode columns: %w", err)
	}
	d := s.store.dialect
	prune := fmt.Sprintf("DELETE FROM %s WHERE lower(table_name) = lower(%s) AND table_name <> %s",
		CatalogTable, d.placeholder(1), d.placeholder(2))
	if _, err := s.exec(ctx, StageCatalog, prune, []any{table, table}); err != nil {
		return err
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (table_name, table_columns) VALUES (%s, %s)
ON CONFLICT (table_name) DO UPDATE SET table_columns = excluded.table_columns`,
		CatalogTable, d.placeholder(1), d.placeholder(2))
	if _, err := s.exec(ctx, StageCatalog, stmt, []any{table, arg}); err != nil {
		return err
	}
	s.log.Debug("catalog entry written", zap.String("table", table), zap.Strings("columns", cols))
	return nil
}

// deleteCatalog removes the entry for table. Unquoted SQL identifiers fold
// case, so the match is case-insensitive.
func (s *Session) deleteCatalog(ctx context.Context, table string) error {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE lower(table_name) = lower(%s)",
		CatalogTable, s.store.dialect.placeholder(1))
	res, err := s.exec(ctx, StageCatalog, stmt, []any{table})
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.log.Debug("catalog entry removed", zap.String("table", table))
	}
	return nil
}
