package tasks

import (
	"context"

	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/store"
)

// Edition fills versions.edition from package.edition. Crates that declare
// no edition are journaled as absent and left alone.
func Edition() pipeline.Task {
	shape := journal.Shape{{Name: "edition", Kind: journal.KindText}}
	return pipeline.Task{
		Name:        "edition",
		Description: "Rust edition declared in Cargo.toml",
		Select: func(dialect.Dialect, pipeline.SelectOptions) store.Query {
			return selectVersions("versions.edition is null", nil)
		},
		Transform: func(ctx context.Context, in crates.Inspector, item pipeline.Item) (journal.Entry, error) {
			crate, err := inspect(ctx, in, item)
			if err != nil {
				return journal.Entry{}, err
			}
			return journal.Entry{
				RecordID: item.RecordID,
				Values:   []journal.Value{journal.OptionalText(crate.Manifest.Package.Edition)},
			}, nil
		},
		Update:     versionsUpdate(shape, staticGuard("versions.edition is null")),
		DropAbsent: true,
	}
}
