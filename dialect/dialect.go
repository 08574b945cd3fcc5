// Package dialect renders the SQL fragments that differ between the
// Postgres primary store and a local SQLite mirror.
package dialect

import (
	"strings"
	"time"

	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/journal"
)

// Dialect is the set of SQL differences the selector and compiler need.
type Dialect interface {
	Name() string

	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder(n int) string
	// TypedPlaceholder is Placeholder with whatever cast the dialect needs
	// for a value of kind inside a VALUES list.
	TypedPlaceholder(n int, kind journal.Kind) string
	// MaxParams is the largest number of bind parameters in one statement.
	MaxParams() int

	// Literal renders v inline as a SQL literal.
	Literal(v journal.Value) string
	// Param converts v into a driver argument.
	Param(v journal.Value) any

	ArrayLength(expr string) string
	DistinctFrom(a, b string) string
	AsText(expr string) string
	TimeArg(t time.Time) any

	// UpdateFrom renders a multi-row update joining rows against the target table.
	UpdateFrom(u UpdateFrom) string
}

// UpdateFrom describes "update <Table> set <Set> from (values <Rows>) as
// <Alias> (<Columns>) where <Table>.<Key> = <Alias>.<Columns[0]> and <Guard>".
type UpdateFrom struct {
	Table   string
	Key     string
	Alias   string
	Columns []string
	Set     []string
	Rows    []string
	Guard   string
}

func (u UpdateFrom) where() string {
	w := u.Table + "." + u.Key + " = " + u.Alias + "." + u.Columns[0]
	if u.Guard != "" {
		w += " and " + u.Guard
	}
	return w
}

func writeRows(b *strings.Builder, rows []string) {
	for i, row := range rows {
		b.WriteString("    ")
		b.WriteString(row)
		if i < len(rows)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
}

// Row renders cells as a parenthesized VALUES row.
func Row(cells []string) string {
	return "(" + strings.Join(cells, ", ") + ")"
}

// quote renders s as a single-quoted SQL string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

var (
	Postgres Dialect = postgres{}
	SQLite   Dialect = sqlite{}
)

// ForName returns the dialect for a driver name.
func ForName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	}
	return nil, errors.WithHint(errors.Newf("unknown sql dialect %q", name), "use postgres or sqlite")
}
