package sqlclass

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Create(t *testing.T) {
	tests := []struct {
		name    string
		sql     string
		table   string
		columns []string
	}{
		{
			name:    "if not exists",
			sql:     "CREATE TABLE IF NOT EXISTS Notes (id VARCHAR(255), body TEXT)",
			table:   "Notes",
			columns: []string{"id", "body"},
		},
		{
			name:    "lower case with semicolon",
			sql:     "create table date_changes (date DATE, project VARCHAR(255), new_date DATE, previous_date DATE);",
			table:   "date_changes",
			columns: []string{"date", "project", "new_date", "previous_date"},
		},
		{
			name:    "parenthesized type arguments",
			sql:     "CREATE TABLE IF NOT EXISTS Budget_Changes (date DATE, project VARCHAR(255), original_budget DECIMAL(10, 2), revised_budget DECIMAL(10, 2))",
			table:   "Budget_Changes",
			columns: []string{"date", "project", "original_budget", "revised_budget"},
		},
		{
			name: "multi-line with constraints",
			sql: `CREATE TABLE IF NOT EXISTS Epics (
				IssueID VARCHAR(255) PRIMARY KEY,
				Summary VARCHAR(255) NOT NULL DEFAULT 'n/a, really',
				DueDate DATE CHECK (DueDate > '2000-01-01')
			);`,
			table:   "Epics",
			columns: []string{"IssueID", "Summary", "DueDate"},
		},
		{
			name:    "quoted identifiers",
			sql:     `CREATE TABLE "Client Feedback" ("Sender" TEXT, "say ""hi""" TEXT)`,
			table:   "Client Feedback",
			columns: []string{"Sender", `say "hi"`},
		},
		{
			name:    "table constraints are not columns",
			sql:     "CREATE TABLE links (a INT, b INT, PRIMARY KEY (a, b), CONSTRAINT fk FOREIGN KEY (b) REFERENCES t(id), UNIQUE (a))",
			table:   "links",
			columns: []string{"a", "b"},
		},
		{
			name:    "comments ignored",
			sql:     "-- people we met\nCREATE TABLE people ( /* who */ name TEXT, -- their name\n met DATE)",
			table:   "people",
			columns: []string{"name", "met"},
		},
		{
			name:    "table options after list",
			sql:     "CREATE TABLE kv (k TEXT PRIMARY KEY, v TEXT) WITHOUT ROWID",
			table:   "kv",
			columns: []string{"k", "v"},
		},
		{
			name:    "no columns",
			sql:     "CREATE TABLE empty ()",
			table:   "empty",
			columns: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := Classify(tt.sql)
			assert.Equal(t, Create, st.Kind)
			assert.False(t, st.Ambiguous)
			assert.Equal(t, tt.table, st.Table)
			assert.Equal(t, tt.columns, st.Columns)
		})
	}
}

func TestClassify_Drop(t *testing.T) {
	tests := []struct {
		sql    string
		tables []string
	}{
		{"DROP TABLE Notes", []string{"Notes"}},
		{"drop table if exists Notes;", []string{"Notes"}},
		{"DROP TABLE IF EXISTS a, b CASCADE", []string{"a", "b"}},
		{`DROP TABLE "Client Feedback"`, []string{"Client Feedback"}},
	}
	for _, tt := range tests {
		t.Run(tt.sql, func(t *testing.T) {
			st := Classify(tt.sql)
			assert.Equal(t, Drop, st.Kind)
			assert.Equal(t, tt.tables, st.Tables)
			assert.Equal(t, tt.tables[0], st.Table)
		})
	}
}

func TestClassify_Other(t *testing.T) {
	for _, sql := range []string{
		"INSERT INTO t VALUES (1, 'CREATE TABLE x (a INT)')",
		"SELECT * FROM t",
		"UPDATE t SET a = 1",
		"ALTER TABLE t ADD COLUMN c TEXT",
		"DELETE FROM t",
		"CREATE INDEX idx ON t(a)",
		"",
		"   ",
		"INSERT INTO t VALUES (1); CREATE TABLE x (a INT)",
	} {
		st := Classify(sql)
		assert.Equal(t, Other, st.Kind, sql)
		assert.False(t, st.Ambiguous, sql)
	}
}

func TestClassify_Ambiguous(t *testing.T) {
	for _, sql := range []string{
		"CREATE TABLE t (a INT",
		"CREATE TABLE t (a INT))",
		"CREATE TABLE s.t (a INT)",
		"CREATE TABLE t AS SELECT * FROM u",
		"CREATE TABLE t (a INT); DROP TABLE u",
		"CREATE TEMP TABLE t (a INT)",
		"CREATE TABLE 'oops' (a INT)",
		"CREATE TABLE t (a INT,)",
		"CREATE TABLE t (a TEXT DEFAULT 'unterminated)",
		"DROP TABLE t; DROP TABLE u",
		"DROP TABLE",
		"DROP TABLE s.t",
	} {
		st := Classify(sql)
		assert.Equal(t, Other, st.Kind, sql)
		assert.True(t, st.Ambiguous, sql)
		assert.NotEmpty(t, st.Reason, sql)
	}
}

func TestIsQuery(t *testing.T) {
	assert.True(t, IsQuery("SELECT * FROM Notes"))
	assert.True(t, IsQuery("  with x as (select 1) select * from x;"))
	assert.True(t, IsQuery("VALUES (1)"))
	assert.False(t, IsQuery("INSERT INTO Notes VALUES ('a')"))
	assert.False(t, IsQuery("SELECT 1; DROP TABLE Notes"))
	assert.False(t, IsQuery("SELECT 'unterminated"))
	assert.False(t, IsQuery(""))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "create", Create.String())
	assert.Equal(t, "drop", Drop.String())
	assert.Equal(t, "other", Other.String())
}
