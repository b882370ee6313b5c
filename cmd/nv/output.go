package main

import (
	"github.com/daviddao/nirvana/internal/store"
)

type failureJSON struct {
	Statement string `json:"statement"`
	Stage     string `json:"stage"`
	Error     string `json:"error"`
}

type batchJSON struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Failures  []failureJSON `json:"failures,omitempty"`
}

func newBatchJSON(res *store.BatchResult) batchJSON {
	out := batchJSON{Total: res.Total, Succeeded: res.Succeeded, Failed: res.Failed, Skipped: res.Skipped}
	for _, f := range res.Failures {
		out.Failures = append(out.Failures, failureJSON{Statement: f.Statement, Stage: string(f.Stage), Error: f.Cause.Error()})
	}
	return out
}

type resultJSON struct {
	Kind           string `json:"kind"`
	Table          string `json:"table,omitempty"`
	RowsAffected   int64  `json:"rows_affected"`
	CatalogChanged bool   `json:"catalog_changed"`
}

func newResultJSON(res store.Result) resultJSON {
	return resultJSON{
		Kind:           res.Statement.Kind.String(),
		Table:          res.Statement.Table,
		RowsAffected:   res.RowsAffected,
		CatalogChanged: res.CatalogChanged,
	}
}

type rowsJSON struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func newRowsJSON(rows *store.Rows) rowsJSON {
	if rows == nil {
		return rowsJSON{Columns: []string{}, Rows: [][]any{}}
	}
	return rowsJSON{Columns: rows.Columns, Rows: rows.Values}
}
