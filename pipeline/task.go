// Package pipeline runs a backfill task: select candidates, skip the ones
// the journal already resolved, inspect the rest in parallel, journal the
// results through a single writer and compile the journal into updates.
package pipeline

import (
	"context"
	"time"

	"github.com/teranos/backfill/compile"
	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/store"
)

// Candidate is a record missing the task's target fields.
type Candidate struct {
	RecordID int64
	Name     string
	Version  string
	// Context holds the extra columns the task selected, keyed by
	// Task.Context name. NULL columns are left out.
	Context map[string]string
}

// Key is the name-version lookup key of the candidate's artifact.
func (c Candidate) Key() string {
	return crates.PackageName(c.Name, c.Version)
}

// Item is a candidate with its artifact location resolved.
type Item struct {
	Candidate
	Artifact string
}

// Transform derives the journal entry for one item. Failures that concern
// only this item must be item errors (errors.IsItemError).
type Transform func(ctx context.Context, in crates.Inspector, item Item) (journal.Entry, error)

// SelectOptions parameterize candidate queries.
type SelectOptions struct {
	// Before is the created_at cutoff for tasks that take one.
	Before time.Time
}

// Task is one backfill: which records to visit, what to derive from their
// artifacts and how the results become updates.
type Task struct {
	Name        string
	Description string

	// Select builds the candidate query. Rows are (id, crate name, version
	// num) followed by one nullable text column per Context name.
	Select  func(d dialect.Dialect, opts SelectOptions) store.Query
	Context []string

	Transform Transform

	// Update shapes both the journal rows and the compiled statements.
	Update compile.Template

	// DropAbsent skips all-absent journal rows when compiling.
	DropAbsent bool

	// ChunkSize overrides the default batch size for this task.
	ChunkSize int
}

// Shape is the journal shape of the task.
func (t Task) Shape() journal.Shape {
	return t.Update.Shape
}

// CompileOptions returns the compiler options for the task.
func (t Task) CompileOptions() compile.Options {
	return compile.Options{DropAbsent: t.DropAbsent}
}

// ResolveChunkSize picks n when set, then the task's own default, then
// fallback.
func (t Task) ResolveChunkSize(n, fallback int) int {
	switch {
	case n > 0:
		return n
	case t.ChunkSize > 0:
		return t.ChunkSize
	default:
		return fallback
	}
}
