package tasks

import (
	"context"
	"math"

	"github.com/dustin/go-humanize"

	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/store"
)

// crateSizeChunk is larger than the default since rows are a single int.
const crateSizeChunk = 10000

// CrateSize records the artifact's file size. It only stats the file;
// sizes that do not fit the column's 32-bit integer are skipped.
func CrateSize() pipeline.Task {
	shape := journal.Shape{{Name: "crate_size", Kind: journal.KindInt}}
	return pipeline.Task{
		Name:        "crate-size",
		Description: "size in bytes of the .crate file",
		Select: func(dialect.Dialect, pipeline.SelectOptions) store.Query {
			return selectVersions("versions.crate_size is null", nil)
		},
		Transform: func(_ context.Context, in crates.Inspector, item pipeline.Item) (journal.Entry, error) {
			size, err := in.Stat(item.Artifact)
			if err != nil {
				return journal.Entry{}, err
			}
			if size > math.MaxInt32 {
				return journal.Entry{}, errors.NewTooLargeError("artifact %s is %s, which does not fit crate_size",
					item.Artifact, humanize.IBytes(uint64(size)))
			}
			return journal.Entry{RecordID: item.RecordID, Values: []journal.Value{journal.Int(size)}}, nil
		},
		Update:    versionsUpdate(shape, staticGuard("versions.crate_size is null")),
		ChunkSize: crateSizeChunk,
	}
}
