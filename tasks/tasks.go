// Package tasks defines the backfills the pipeline can run against the
// registry's versions table.
package tasks

import (
	"context"
	"sort"
	"strings"

	"github.com/teranos/backfill/compile"
	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/store"
)

var registry = map[string]pipeline.Task{}

func register(t pipeline.Task) {
	if _, dup := registry[t.Name]; dup {
		panic("duplicate task " + t.Name)
	}
	registry[t.Name] = t
}

func init() {
	register(Edition())
	register(VersionMetadata())
	register(Features())
	register(LibBin())
	register(CrateSize())
	register(Links())
}

// Lookup returns the task called name.
func Lookup(name string) (pipeline.Task, error) {
	t, ok := registry[name]
	if !ok {
		return pipeline.Task{}, errors.WithHintf(errors.Newf("unknown task %q", name),
			"available tasks: %s", strings.Join(Names(), ", "))
	}
	return t, nil
}

// Names lists the registered task names in order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered task ordered by name.
func All() []pipeline.Task {
	out := make([]pipeline.Task, 0, len(registry))
	for _, name := range Names() {
		out = append(out, registry[name])
	}
	return out
}

// selectVersions builds a candidate query over versions joined to crates.
func selectVersions(where string, extra []string, args ...any) store.Query {
	cols := append([]string{"versions.id", "crates.name", "versions.num"}, extra...)
	return store.Query{
		SQL: "select " + strings.Join(cols, ", ") + "\n" +
			"from versions\n" +
			"join crates on crates.id = versions.crate_id\n" +
			"where " + where + "\n" +
			"order by versions.id",
		Args: args,
	}
}

// versionsUpdate is the update template shared by every task.
func versionsUpdate(shape journal.Shape, guard func(d dialect.Dialect) string) compile.Template {
	return compile.Template{
		Table:     "versions",
		Key:       "id",
		Alias:     "tmp",
		KeyColumn: "version_id",
		Shape:     shape,
		Guard:     guard,
	}
}

func staticGuard(guard string) func(dialect.Dialect) string {
	return func(dialect.Dialect) string { return guard }
}

func inspect(ctx context.Context, in crates.Inspector, item pipeline.Item) (*crates.Crate, error) {
	return in.Inspect(ctx, item.Artifact, item.Name, item.Version)
}
