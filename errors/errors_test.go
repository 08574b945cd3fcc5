package errors

import (
	"fmt"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrap(t *testing.T) {
	original := New("original")
	wrapped := Wrapf(original, "record %d", 42)

	assert.Contains(t, wrapped.Error(), "record 42")
	assert.Contains(t, wrapped.Error(), "original")
	assert.True(t, Is(wrapped, original))
}

func TestMarkStore(t *testing.T) {
	cause := New("connection refused")
	err := MarkStore(Wrap(cause, "select candidates"))

	assert.True(t, Is(err, ErrStore))
	assert.True(t, Is(err, cause), "marking must keep the original cause reachable")
	assert.Equal(t, "select candidates: connection refused", err.Error())
	assert.True(t, IsFatal(err))
	assert.False(t, IsItemError(err))
	assert.Nil(t, MarkStore(nil))
}

func TestMarkIO(t *testing.T) {
	err := MarkIO(Wrap(fs.ErrPermission, "open journal"))

	assert.True(t, Is(err, ErrIO))
	assert.True(t, Is(err, fs.ErrPermission))
	assert.True(t, IsFatal(err))
	assert.Nil(t, MarkIO(nil))
}

func TestNewFormatError(t *testing.T) {
	err := NewFormatError("line %d: expected %d columns, got %d", 3, 2, 5)

	assert.Equal(t, "line 3: expected 2 columns, got 5", err.Error())
	assert.True(t, Is(err, ErrFormat))
	assert.True(t, IsFatal(err))
}

func TestItemErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"not found", NewNotFoundError("missing %s", "serde-1.0.0.crate"), ErrNotFound},
		{"too large", NewTooLargeError("%d bytes", 1<<40), ErrTooLarge},
		{"parse failure", WrapParseFailure(New("bad toml"), "parse Cargo.toml"), ErrParseFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, Is(tt.err, tt.sentinel))
			assert.True(t, IsItemError(tt.err))
			assert.False(t, IsFatal(tt.err))

			// Wrapping once more keeps the classification
			assert.True(t, IsItemError(Wrap(tt.err, "inspect")))
		})
	}

	assert.False(t, IsItemError(nil))
	assert.False(t, IsItemError(New("something else")))
}

func TestWithHint(t *testing.T) {
	err := WithHint(MarkStore(New("timeout")), "check database.url")

	hints := GetAllHints(err)
	require.Len(t, hints, 1)
	assert.Equal(t, "check database.url", hints[0])
	assert.True(t, Is(err, ErrStore))
}

func TestStackTrace(t *testing.T) {
	err := New("with stack")

	detailed := fmt.Sprintf("%+v", err)
	assert.Contains(t, detailed, "errors_test.go")
}

func TestNilHandling(t *testing.T) {
	assert.Nil(t, Wrap(nil, "context"))
	assert.Nil(t, Wrapf(nil, "context %d", 1))
	assert.Nil(t, WithHint(nil, "hint"))
	assert.False(t, IsFatal(nil))
}

func ExampleWrap() {
	baseErr := New("connection failed")
	err := Wrap(baseErr, "failed to connect to database")
	fmt.Println(err)
	// Output: failed to connect to database: connection failed
}
