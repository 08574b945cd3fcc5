// Package journal is the durable, append-only record of resolved items.
//
// A journal is a headerless CSV file with one row per resolved record:
// record_id followed by the task's value columns. A record that is absent
// from the file has not been processed yet; the \N cell marks a field
// that was resolved to "no value". A row whose value cells are all \=
// confirms the stored value is already correct and needs no update.
package journal

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/teranos/backfill/errors"
)

// Entry is one journal row.
type Entry struct {
	RecordID  int64
	Values    []Value
	Unchanged bool
}

// UnchangedEntry builds the "confirmed, no update needed" row for id.
func UnchangedEntry(id int64) Entry {
	return Entry{RecordID: id, Unchanged: true}
}

// ResolvedSet holds the record ids present in a journal.
type ResolvedSet map[int64]struct{}

// Contains reports whether id has been resolved.
func (s ResolvedSet) Contains(id int64) bool {
	_, ok := s[id]
	return ok
}

// Add records id as resolved.
func (s ResolvedSet) Add(id int64) {
	s[id] = struct{}{}
}

// IDs returns the resolved ids in ascending order.
func (s ResolvedSet) IDs() []int64 {
	ids := make([]int64, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FormatError describes a malformed journal row.
type FormatError struct {
	Path   string
	Line   int
	Reason string
}

func (e *FormatError) Error() string {
	return e.Path + ":" + strconv.Itoa(e.Line) + ": " + e.Reason
}

func formatErr(path string, line int, reason string) error {
	return errors.Mark(errors.WithStack(&FormatError{Path: path, Line: line, Reason: reason}), errors.ErrFormat)
}

// ReadResolved returns the ids present in the journal at path.
// A missing file is an empty set. Only the id column is parsed.
func ReadResolved(path string) (ResolvedSet, error) {
	set := make(ResolvedSet)
	err := scan(path, func(line int, record []string) error {
		id, err := parseID(record[0])
		if err != nil {
			return formatErr(path, line, err.Error())
		}
		set.Add(id)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return set, nil
}

// ReadAll parses every row of the journal at path against shape, in file
// order. A missing file yields no entries. Any malformed row fails the
// whole read.
func ReadAll(path string, shape Shape) ([]Entry, error) {
	var entries []Entry
	err := scan(path, func(line int, record []string) error {
		entry, err := parseRecord(record, shape)
		if err != nil {
			return formatErr(path, line, err.Error())
		}
		entries = append(entries, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Stats summarizes a journal without keeping its rows.
type Stats struct {
	Rows      int
	Resolved  int
	Unchanged int
	Absent    int // rows whose values are all \N
}

// Summarize reads the journal at path and counts its rows by kind.
func Summarize(path string, shape Shape) (Stats, error) {
	var st Stats
	seen := make(ResolvedSet)
	err := scan(path, func(line int, record []string) error {
		entry, err := parseRecord(record, shape)
		if err != nil {
			return formatErr(path, line, err.Error())
		}
		st.Rows++
		seen.Add(entry.RecordID)
		switch {
		case entry.Unchanged:
			st.Unchanged++
		case entry.AllAbsent():
			st.Absent++
		}
		return nil
	})
	st.Resolved = len(seen)
	return st, err
}

// AllAbsent reports whether every value of a non-Unchanged entry is \N.
func (e Entry) AllAbsent() bool {
	if e.Unchanged || len(e.Values) == 0 {
		return false
	}
	for _, v := range e.Values {
		if !v.Absent {
			return false
		}
	}
	return true
}

func scan(path string, fn func(line int, record []string) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return errors.MarkIO(errors.Wrapf(err, "open journal %s", path))
	}
	defer f.Close()

	r := newReader(f)
	for {
		record, err := r.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				return formatErr(path, perr.Line, perr.Err.Error())
			}
			return errors.MarkIO(errors.Wrapf(err, "read journal %s", path))
		}
		line, _ := r.FieldPos(0)
		if err := fn(line, record); err != nil {
			return err
		}
	}
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // column count is checked per row against the shape
	cr.ReuseRecord = true
	return cr
}

func parseID(cell string) (int64, error) {
	id, err := strconv.ParseInt(cell, 10, 64)
	if err != nil {
		return 0, errors.Newf("invalid record id %q", cell)
	}
	return id, nil
}

func parseRecord(record []string, shape Shape) (Entry, error) {
	if len(record) != len(shape)+1 {
		return Entry{}, errors.Newf("expected %d columns, got %d", len(shape)+1, len(record))
	}
	id, err := parseID(record[0])
	if err != nil {
		return Entry{}, err
	}

	cells := record[1:]
	if isUnchangedRow(cells) {
		return UnchangedEntry(id), nil
	}

	values := make([]Value, len(shape))
	for i, col := range shape {
		v, err := decodeCell(col.Kind, cells[i])
		if err != nil {
			return Entry{}, errors.Wrapf(err, "column %s", col.Name)
		}
		values[i] = v
	}
	return Entry{RecordID: id, Values: values}, nil
}

func isUnchangedRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	for _, c := range cells {
		if c != unchangedToken {
			return false
		}
	}
	return true
}

// encodeRecord renders e as CSV cells for shape.
func encodeRecord(e Entry, shape Shape) ([]string, error) {
	record := make([]string, 0, len(shape)+1)
	record = append(record, strconv.FormatInt(e.RecordID, 10))
	if e.Unchanged {
		for range shape {
			record = append(record, unchangedToken)
		}
		return record, nil
	}
	if len(e.Values) != len(shape) {
		return nil, errors.Newf("record %d: expected %d values, got %d", e.RecordID, len(shape), len(e.Values))
	}
	for i, col := range shape {
		v := e.Values[i]
		if v.Kind != col.Kind {
			return nil, errors.Newf("record %d: column %s is %s, got %s", e.RecordID, col.Name, col.Kind, v.Kind)
		}
		record = append(record, encodeCell(v))
	}
	return record, nil
}
