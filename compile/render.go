package compile

import (
	"strconv"

	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/store"
)

// Template is the update statement shape of a task: which table and key
// the journal rows join against, and the guard re-checking that the target
// columns still need the update.
type Template struct {
	Table     string
	Key       string
	Alias     string
	KeyColumn string
	Shape     journal.Shape
	Guard     func(d dialect.Dialect) string
}

func (t Template) alias() string {
	if t.Alias == "" {
		return "tmp"
	}
	return t.Alias
}

func (t Template) updateFrom(d dialect.Dialect, rows []string) dialect.UpdateFrom {
	alias := t.alias()
	cols := append([]string{t.KeyColumn}, t.Shape.Names()...)
	set := make([]string, len(t.Shape))
	for i, c := range t.Shape {
		set[i] = c.Name + " = " + alias + "." + c.Name
	}
	var guard string
	if t.Guard != nil {
		guard = t.Guard(d)
	}
	return dialect.UpdateFrom{
		Table:   t.Table,
		Key:     t.Key,
		Alias:   alias,
		Columns: cols,
		Set:     set,
		Rows:    rows,
		Guard:   guard,
	}
}

// ParamsPerRow is the number of bind parameters one entry needs.
func (t Template) ParamsPerRow() int {
	return len(t.Shape) + 1
}

// Render renders batch as a self-contained update with inline literals.
func Render(d dialect.Dialect, t Template, batch UpdateBatch) string {
	rows := make([]string, len(batch.Entries))
	cells := make([]string, 0, t.ParamsPerRow())
	for i, e := range batch.Entries {
		cells = append(cells[:0], strconv.FormatInt(e.RecordID, 10))
		for _, v := range e.Values {
			cells = append(cells, d.Literal(v))
		}
		rows[i] = dialect.Row(cells)
	}
	return d.UpdateFrom(t.updateFrom(d, rows))
}

// Statement renders batch as a parameterized update.
func Statement(d dialect.Dialect, t Template, batch UpdateBatch) (store.Query, error) {
	if n := len(batch.Entries) * t.ParamsPerRow(); n > d.MaxParams() {
		return store.Query{}, errors.WithHintf(
			errors.Newf("batch needs %d parameters, %s allows %d", n, d.Name(), d.MaxParams()),
			"use a chunk size of at most %d", d.MaxParams()/t.ParamsPerRow())
	}

	rows := make([]string, len(batch.Entries))
	args := make([]any, 0, len(batch.Entries)*t.ParamsPerRow())
	n := 0
	for i, e := range batch.Entries {
		if len(e.Values) != len(t.Shape) {
			return store.Query{}, errors.NewFormatError("record %d has %d values, expected %d", e.RecordID, len(e.Values), len(t.Shape))
		}
		cells := make([]string, 0, t.ParamsPerRow())
		n++
		cells = append(cells, d.TypedPlaceholder(n, journal.KindInt))
		args = append(args, e.RecordID)
		for j, v := range e.Values {
			n++
			cells = append(cells, d.TypedPlaceholder(n, t.Shape[j].Kind))
			args = append(args, d.Param(v))
		}
		rows[i] = dialect.Row(cells)
	}
	return store.Query{SQL: d.UpdateFrom(t.updateFrom(d, rows)), Args: args}, nil
}
