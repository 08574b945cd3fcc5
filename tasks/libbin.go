package tasks

import (
	"context"
	"strconv"

	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/store"
)

const contextBinCount = "bin_count"

// LibBin records whether a version ships a library target and the names
// of its binaries. It revisits versions whose stored bin_names list more
// than one binary and whose has_lib is still unset; if the manifest yields
// the same number of binaries, the version is journaled as unchanged.
func LibBin() pipeline.Task {
	shape := journal.Shape{
		{Name: "has_lib", Kind: journal.KindBool},
		{Name: "bin_names", Kind: journal.KindTextArray},
	}
	return pipeline.Task{
		Name:        "lib-bin",
		Description: "has_lib and bin_names derived from the crate's targets",
		Select: func(d dialect.Dialect, _ pipeline.SelectOptions) store.Query {
			count := d.ArrayLength("versions.bin_names")
			return selectVersions(count+" > 1 and versions.has_lib is null", []string{d.AsText(count)})
		},
		Context: []string{contextBinCount},
		Transform: func(ctx context.Context, in crates.Inspector, item pipeline.Item) (journal.Entry, error) {
			crate, err := inspect(ctx, in, item)
			if err != nil {
				return journal.Entry{}, err
			}
			if stored, ok := item.Context[contextBinCount]; ok {
				if n, err := strconv.Atoi(stored); err == nil && n == len(crate.BinNames) {
					return journal.UnchangedEntry(item.RecordID), nil
				}
			}
			return journal.Entry{
				RecordID: item.RecordID,
				Values:   []journal.Value{journal.Bool(crate.HasLib), journal.TextArray(crate.BinNames)},
			}, nil
		},
		Update: versionsUpdate(shape, staticGuard("versions.has_lib is null")),
	}
}
