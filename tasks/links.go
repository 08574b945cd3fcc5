package tasks

import (
	"context"
	"time"

	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/store"
)

// LinksCutoff is when the registry started recording package.links on
// publish. Later versions already carry it.
var LinksCutoff = time.Date(2018, 3, 21, 21, 0, 0, 0, time.UTC)

// Links fills versions.links for versions published before LinksCutoff.
func Links() pipeline.Task {
	shape := journal.Shape{{Name: "links", Kind: journal.KindText}}
	return pipeline.Task{
		Name:        "links",
		Description: "native library named by package.links, for versions before 2018-03-21",
		Select: func(d dialect.Dialect, _ pipeline.SelectOptions) store.Query {
			return selectVersions("versions.created_at < "+d.Placeholder(1)+" and versions.links is null",
				nil, d.TimeArg(LinksCutoff))
		},
		Transform: func(ctx context.Context, in crates.Inspector, item pipeline.Item) (journal.Entry, error) {
			crate, err := inspect(ctx, in, item)
			if err != nil {
				return journal.Entry{}, err
			}
			return journal.Entry{
				RecordID: item.RecordID,
				Values:   []journal.Value{journal.OptionalText(crate.Manifest.Package.Links)},
			}, nil
		},
		Update:     versionsUpdate(shape, staticGuard("versions.links is null")),
		DropAbsent: true,
	}
}
