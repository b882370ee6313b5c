// Package sqlclass recognizes the two statement shapes that change what a
// namespace contains: CREATE TABLE and DROP TABLE.
//
// Statements come from a language model, so the classifier is permissive: it
// never validates types or constraints, and anything it cannot read cleanly
// is reported as Other instead of failing. Near misses are flagged as
// Ambiguous so callers can log them.
package sqlclass

import (
	"fmt"
	"strings"
)

// Kind is the structural class of a statement.
type Kind int

const (
	Other Kind = iota
	Create
	Drop
)

func (k Kind) String() string {
	switch k {
	case Create:
		return "create"
	case Drop:
		return "drop"
	default:
		return "other"
	}
}

// Statement is the result of classifying one SQL text.
type Statement struct {
	Kind Kind

	// Table is the created table, or the first dropped table.
	Table string
	// Columns lists column names in declaration order (Create only).
	Columns []string
	// Tables lists every dropped table (Drop only).
	Tables []string

	// Ambiguous is set when the text looks like CREATE/DROP TABLE but could
	// not be parsed. Kind is Other in that case.
	Ambiguous bool
	Reason    string
}

// constraintWords open table-level constraints inside a column list.
var constraintWords = []string{"CONSTRAINT", "PRIMARY", "FOREIGN", "UNIQUE", "CHECK", "EXCLUDE", "LIKE"}

// Classify reports whether sql is a CREATE TABLE, a DROP TABLE, or neither.
func Classify(sql string) Statement {
	toks, err := tokenize(sql)
	if err != nil {
		if looksLikeDDL(sql) {
			return ambiguous(err.Error())
		}
		return Statement{Kind: Other}
	}
	if len(toks) < 2 {
		return Statement{Kind: Other}
	}

	switch {
	case toks[0].keyword("CREATE") && toks[1].keyword("TABLE"):
		return classifyCreate(toks[2:])
	case toks[0].keyword("DROP") && toks[1].keyword("TABLE"):
		return classifyDrop(toks[2:])
	case toks[0].keyword("CREATE") && mentionsTable(toks[1:]):
		return ambiguous("unsupported CREATE ... TABLE form")
	}
	return Statement{Kind: Other}
}

func classifyCreate(toks []token) Statement {
	p := 0
	if len(toks) >= 3 && toks[0].keyword("IF") && toks[1].keyword("NOT") && toks[2].keyword("EXISTS") {
		p = 3
	}

	table, p, reason := readTableName(toks, p)
	if reason != "" {
		return ambiguous(reason)
	}
	if p >= len(toks) || !toks[p].is(tokPunct, "(") {
		return ambiguous("CREATE TABLE without a column list")
	}

	fragments, end, ok := splitColumnList(toks, p)
	if !ok {
		return ambiguous("unbalanced parentheses in column list")
	}
	if reason := checkTail(toks[end:]); reason != "" {
		return ambiguous(reason)
	}

	columns := make([]string, 0, len(fragments))
	for _, frag := range fragments {
		if len(frag) == 0 {
			return ambiguous("empty column definition")
		}
		first := frag[0]
		if !first.name() {
			return ambiguous(fmt.Sprintf("unexpected %q in column list", first.text))
		}
		if first.kind == tokIdent && isConstraintWord(first.text) {
			continue
		}
		columns = append(columns, first.text)
	}

	return Statement{Kind: Create, Table: table, Columns: columns}
}

func classifyDrop(toks []token) Statement {
	p := 0
	if len(toks) >= 2 && toks[0].keyword("IF") && toks[1].keyword("EXISTS") {
		p = 2
	}

	var tables []string
	for {
		table, next, reason := readTableName(toks, p)
		if reason != "" {
			return ambiguous(reason)
		}
		tables = append(tables, table)
		p = next
		if p < len(toks) && toks[p].is(tokPunct, ",") {
			p++
			continue
		}
		break
	}

	if p < len(toks) && (toks[p].keyword("CASCADE") || toks[p].keyword("RESTRICT")) {
		p++
	}
	if p < len(toks) && toks[p].is(tokPunct, ";") {
		p++
	}
	if p != len(toks) {
		return ambiguous(fmt.Sprintf("unexpected %q after DROP TABLE", toks[p].text))
	}

	return Statement{Kind: Drop, Table: tables[0], Tables: tables}
}

// readTableName reads an unqualified table name at toks[p]. Schema-qualified
// names are rejected because they may not land in the selected namespace.
func readTableName(toks []token, p int) (string, int, string) {
	if p >= len(toks) || !toks[p].name() {
		return "", p, "missing table name"
	}
	name := toks[p].text
	p++
	if p < len(toks) && toks[p].is(tokPunct, ".") {
		return "", p, "schema-qualified table name"
	}
	return name, p, ""
}

// splitColumnList splits the parenthesized list opening at toks[open] on
// top-level commas. It returns the fragments and the index just past the
// closing parenthesis.
func splitColumnList(toks []token, open int) ([][]token, int, bool) {
	var (
		fragments [][]token
		current   []token
		depth     = 1
	)
	for i := open + 1; i < len(toks); i++ {
		t := toks[i]
		switch {
		case t.is(tokPunct, "("):
			depth++
		case t.is(tokPunct, ")"):
			depth--
			if depth == 0 {
				if len(current) > 0 || len(fragments) > 0 {
					fragments = append(fragments, current)
				}
				return fragments, i + 1, true
			}
		case t.is(tokPunct, ",") && depth == 1:
			fragments = append(fragments, current)
			current = nil
			continue
		}
		current = append(current, t)
	}
	return nil, 0, false
}

// checkTail accepts table options after the column list (WITHOUT ROWID,
// INHERITS (...), ...) and at most one terminating semicolon.
func checkTail(toks []token) string {
	depth := 0
	for i, t := range toks {
		switch {
		case t.is(tokPunct, "("):
			depth++
		case t.is(tokPunct, ")"):
			depth--
			if depth < 0 {
				return "unbalanced parentheses after column list"
			}
		case t.is(tokPunct, ";") && depth == 0:
			if i != len(toks)-1 {
				return "multiple statements"
			}
		case t.keyword("AS") && depth == 0:
			return "CREATE TABLE ... AS is not supported"
		}
	}
	if depth != 0 {
		return "unbalanced parentheses after column list"
	}
	return ""
}

func isConstraintWord(word string) bool {
	for _, w := range constraintWords {
		if strings.EqualFold(word, w) {
			return true
		}
	}
	return false
}

func mentionsTable(toks []token) bool {
	for i := 0; i < len(toks) && i < 3; i++ {
		if toks[i].keyword("TABLE") {
			return true
		}
	}
	return false
}

func looksLikeDDL(sql string) bool {
	fields := strings.Fields(strings.ToUpper(sql))
	if len(fields) < 2 {
		return false
	}
	return (fields[0] == "CREATE" || fields[0] == "DROP") && fields[1] == "TABLE"
}

func ambiguous(reason string) Statement {
	return Statement{Kind: Other, Ambiguous: true, Reason: reason}
}

// readKeywords begin statements that only read data.
var readKeywords = []string{"SELECT", "WITH", "VALUES", "SHOW", "EXPLAIN", "TABLE"}

// IsQuery reports whether sql is a single statement that reads data.
// WITH is accepted as a read even though Postgres allows data-modifying CTEs;
// callers that need a hard guarantee must run it on a read-only connection.
func IsQuery(sql string) bool {
	toks, err := tokenize(sql)
	if err != nil || len(toks) == 0 {
		return false
	}
	for i, t := range toks {
		if t.is(tokPunct, ";") && i != len(toks)-1 {
			return false
		}
	}
	for _, w := range readKeywords {
		if toks[0].keyword(w) {
			return true
		}
	}
	return false
}
