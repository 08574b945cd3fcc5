package dialect

import (
	"strconv"
	"strings"
	"time"

	"github.com/teranos/backfill/journal"
)

type postgres struct{}

func (postgres) Name() string { return "postgres" }

func (postgres) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (p postgres) TypedPlaceholder(n int, kind journal.Kind) string {
	return p.Placeholder(n) + "::" + pgType(kind)
}

// MaxParams is the wire protocol's 16-bit parameter count.
func (postgres) MaxParams() int { return 65535 }

func pgType(kind journal.Kind) string {
	switch kind {
	case journal.KindInt:
		return "int8"
	case journal.KindBool:
		return "bool"
	case journal.KindTextArray:
		return "text[]"
	case journal.KindJSON:
		return "jsonb"
	default:
		return "text"
	}
}

func (postgres) Literal(v journal.Value) string {
	if v.Absent {
		if v.Kind == journal.KindText {
			return "NULL"
		}
		return "NULL::" + pgType(v.Kind)
	}
	switch v.Kind {
	case journal.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case journal.KindBool:
		if v.Bool {
			return "'t'::bool"
		}
		return "'f'::bool"
	case journal.KindTextArray:
		return quote(pgArray(v.Array)) + "::text[]"
	case journal.KindJSON:
		return quote(v.Text) + "::jsonb"
	default:
		return quote(v.Text)
	}
}

// pgArray renders a Postgres array literal with every element quoted.
func pgArray(elems []string) string {
	var b strings.Builder
	b.WriteByte('{')
	for i, e := range elems {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteByte('"')
		for _, r := range e {
			if r == '"' || r == '\\' {
				b.WriteByte('\\')
			}
			b.WriteRune(r)
		}
		b.WriteByte('"')
	}
	b.WriteByte('}')
	return b.String()
}

func (postgres) Param(v journal.Value) any {
	if v.Absent {
		return nil
	}
	switch v.Kind {
	case journal.KindInt:
		return v.Int
	case journal.KindBool:
		return v.Bool
	case journal.KindTextArray:
		if v.Array == nil {
			return []string{}
		}
		return v.Array
	default:
		return v.Text
	}
}

func (postgres) ArrayLength(expr string) string { return "array_length(" + expr + ", 1)" }

func (postgres) DistinctFrom(a, b string) string { return a + " is distinct from " + b }

func (postgres) AsText(expr string) string { return expr + "::text" }

func (postgres) TimeArg(t time.Time) any { return t.UTC() }

func (postgres) UpdateFrom(u UpdateFrom) string {
	var b strings.Builder
	b.WriteString("update " + u.Table + "\n")
	b.WriteString("set " + strings.Join(u.Set, ", ") + "\n")
	b.WriteString("from (values\n")
	writeRows(&b, u.Rows)
	b.WriteString(") as " + u.Alias + " (" + strings.Join(u.Columns, ", ") + ")\n")
	b.WriteString("where " + u.where() + ";\n")
	return b.String()
}
