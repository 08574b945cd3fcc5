package journal

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/teranos/backfill/errors"
)

// Kind is the type of one journal value column.
type Kind int

const (
	KindText Kind = iota
	KindInt
	KindBool
	KindTextArray
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindInt:
		return "int"
	case KindBool:
		return "bool"
	case KindTextArray:
		return "text[]"
	case KindJSON:
		return "json"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Column names one value column of a journal row.
type Column struct {
	Name string
	Kind Kind
}

// Shape is the ordered list of value columns a task journals after record_id.
type Shape []Column

// Names returns the column names in order.
func (s Shape) Names() []string {
	names := make([]string, len(s))
	for i, c := range s {
		names[i] = c.Name
	}
	return names
}

// Cell tokens. Any text value starting with a backslash is written with
// the backslash doubled, so these never collide with real data.
const (
	absentToken    = `\N`
	unchangedToken = `\=`
	// quotedPrefix marks a text cell holding a Go-quoted string. It is used
	// for text with carriage returns, which csv.Reader folds into newlines.
	quotedPrefix = `\q`
)

// Value is one derived field. Absent is the explicit "resolved, no value"
// marker, distinct from a record that was never journaled.
type Value struct {
	Kind   Kind
	Absent bool
	Text   string // KindText, and raw compact JSON for KindJSON
	Int    int64
	Bool   bool
	Array  []string
}

func Text(s string) Value        { return Value{Kind: KindText, Text: s} }
func Int(i int64) Value          { return Value{Kind: KindInt, Int: i} }
func Bool(b bool) Value          { return Value{Kind: KindBool, Bool: b} }
func Absent(kind Kind) Value     { return Value{Kind: kind, Absent: true} }
func TextArray(a []string) Value { return Value{Kind: KindTextArray, Array: append([]string{}, a...)} }

// OptionalText maps nil to Absent.
func OptionalText(s *string) Value {
	if s == nil {
		return Absent(KindText)
	}
	return Text(*s)
}

// JSON compacts raw and wraps it as a KindJSON value.
func JSON(raw []byte) (Value, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return Value{}, errors.Wrap(err, "invalid json value")
	}
	return Value{Kind: KindJSON, Text: buf.String()}, nil
}

// MustJSON is JSON for values produced by json.Marshal.
func MustJSON(raw []byte) Value {
	v, err := JSON(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// Equal reports whether two values carry the same data.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Absent != o.Absent {
		return false
	}
	if v.Absent {
		return true
	}
	switch v.Kind {
	case KindInt:
		return v.Int == o.Int
	case KindBool:
		return v.Bool == o.Bool
	case KindTextArray:
		if len(v.Array) != len(o.Array) {
			return false
		}
		for i := range v.Array {
			if v.Array[i] != o.Array[i] {
				return false
			}
		}
		return true
	default:
		return v.Text == o.Text
	}
}

func (v Value) String() string {
	return encodeCell(v)
}

func encodeCell(v Value) string {
	if v.Absent {
		return absentToken
	}
	switch v.Kind {
	case KindInt:
		return strconv.FormatInt(v.Int, 10)
	case KindBool:
		if v.Bool {
			return "t"
		}
		return "f"
	case KindTextArray:
		arr := v.Array
		if arr == nil {
			arr = []string{}
		}
		b, _ := json.Marshal(arr)
		return string(b)
	case KindJSON:
		return v.Text
	default:
		if strings.ContainsRune(v.Text, '\r') {
			return quotedPrefix + strconv.Quote(v.Text)
		}
		if strings.HasPrefix(v.Text, `\`) {
			return `\` + v.Text
		}
		return v.Text
	}
}

func decodeCell(kind Kind, cell string) (Value, error) {
	if cell == absentToken {
		return Absent(kind), nil
	}
	switch kind {
	case KindInt:
		i, err := strconv.ParseInt(cell, 10, 64)
		if err != nil {
			return Value{}, errors.Newf("invalid int %q", cell)
		}
		return Int(i), nil
	case KindBool:
		switch cell {
		case "t":
			return Bool(true), nil
		case "f":
			return Bool(false), nil
		}
		return Value{}, errors.Newf("invalid bool %q", cell)
	case KindTextArray:
		var arr []string
		if err := json.Unmarshal([]byte(cell), &arr); err != nil || arr == nil {
			return Value{}, errors.Newf("invalid text array %q", cell)
		}
		return TextArray(arr), nil
	case KindJSON:
		if !json.Valid([]byte(cell)) {
			return Value{}, errors.Newf("invalid json %q", cell)
		}
		return Value{Kind: KindJSON, Text: cell}, nil
	case KindText:
		if strings.HasPrefix(cell, `\\`) {
			return Text(cell[1:]), nil
		}
		if strings.HasPrefix(cell, quotedPrefix) {
			s, err := strconv.Unquote(cell[len(quotedPrefix):])
			if err != nil {
				return Value{}, errors.Newf("invalid quoted text %q", cell)
			}
			return Text(s), nil
		}
		if strings.HasPrefix(cell, `\`) {
			return Value{}, errors.Newf("unknown escape in %q", cell)
		}
		return Text(cell), nil
	default:
		return Value{}, errors.Newf("unknown column kind %s", kind)
	}
}
