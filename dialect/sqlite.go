package dialect

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/teranos/backfill/journal"
)

// sqlite stores booleans as 0/1 and arrays as JSON text.
type sqlite struct{}

// SQLiteTimeLayout matches CURRENT_TIMESTAMP so text comparison orders correctly.
const SQLiteTimeLayout = "2006-01-02 15:04:05"

func (sqlite) Name() string { return "sqlite" }

func (sqlite) Placeholder(int) string { return "?" }

func (s sqlite) TypedPlaceholder(n int, _ journal.Kind) string { return s.Placeholder(n) }

// MaxParams is SQLITE_MAX_VARIABLE_NUMBER's default since 3.32.
func (sqlite) MaxParams() int { return 32766 }

func (sqlite) Literal(v journal.Value) string {
	if v.Absent {
		return "NULL"
	}
	switch v.Kind {
	case journal.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case journal.KindBool:
		if v.Bool {
			return "1"
		}
		return "0"
	case journal.KindTextArray:
		return quote(jsonArray(v.Array))
	default:
		return quote(v.Text)
	}
}

func jsonArray(elems []string) string {
	if elems == nil {
		elems = []string{}
	}
	b, _ := json.Marshal(elems)
	return string(b)
}

func (sqlite) Param(v journal.Value) any {
	if v.Absent {
		return nil
	}
	switch v.Kind {
	case journal.KindInt:
		return v.Int
	case journal.KindBool:
		if v.Bool {
			return int64(1)
		}
		return int64(0)
	case journal.KindTextArray:
		return jsonArray(v.Array)
	default:
		return v.Text
	}
}

func (sqlite) ArrayLength(expr string) string { return "json_array_length(" + expr + ")" }

func (sqlite) DistinctFrom(a, b string) string { return a + " is not " + b }

func (sqlite) AsText(expr string) string { return "cast(" + expr + " as text)" }

func (sqlite) TimeArg(t time.Time) any { return t.UTC().Format(SQLiteTimeLayout) }

// UpdateFrom uses a CTE since SQLite cannot name the columns of a
// VALUES subquery alias.
func (sqlite) UpdateFrom(u UpdateFrom) string {
	var b strings.Builder
	b.WriteString("with " + u.Alias + " (" + strings.Join(u.Columns, ", ") + ") as (values\n")
	writeRows(&b, u.Rows)
	b.WriteString(")\n")
	b.WriteString("update " + u.Table + "\n")
	b.WriteString("set " + strings.Join(u.Set, ", ") + "\n")
	b.WriteString("from " + u.Alias + "\n")
	b.WriteString("where " + u.where() + ";\n")
	return b.String()
}
