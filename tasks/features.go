package tasks

import (
	"context"
	"encoding/json"
	"time"

	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/store"
)

const contextFeatures = "features"

// Features rewrites versions.features from the manifest's [features]
// table for versions published before the cutoff. Versions whose stored
// features already match are journaled as unchanged.
func Features() pipeline.Task {
	shape := journal.Shape{{Name: "features", Kind: journal.KindJSON}}
	return pipeline.Task{
		Name:        "features",
		Description: "[features] table of Cargo.toml, for versions created before --before",
		Select: func(d dialect.Dialect, opts pipeline.SelectOptions) store.Query {
			before := opts.Before
			if before.IsZero() {
				before = time.Now()
			}
			return selectVersions("versions.created_at < "+d.Placeholder(1),
				[]string{d.AsText("versions.features")}, d.TimeArg(before))
		},
		Context: []string{contextFeatures},
		Transform: func(ctx context.Context, in crates.Inspector, item pipeline.Item) (journal.Entry, error) {
			crate, err := inspect(ctx, in, item)
			if err != nil {
				return journal.Entry{}, err
			}
			features := make(map[string][]string, len(crate.Manifest.Features))
			for name, enables := range crate.Manifest.Features {
				if enables == nil {
					enables = []string{}
				}
				features[name] = enables
			}

			if stored, ok := item.Context[contextFeatures]; ok && featuresEqual(stored, features) {
				return journal.UnchangedEntry(item.RecordID), nil
			}

			raw, err := json.Marshal(features)
			if err != nil {
				return journal.Entry{}, errors.WrapParseFailure(err, "encode features")
			}
			v, err := journal.JSON(raw)
			if err != nil {
				return journal.Entry{}, errors.WrapParseFailure(err, "encode features")
			}
			return journal.Entry{RecordID: item.RecordID, Values: []journal.Value{v}}, nil
		},
		Update: versionsUpdate(shape, func(d dialect.Dialect) string {
			return d.DistinctFrom("versions.features", "tmp.features")
		}),
	}
}

// featuresEqual compares stored features JSON with a manifest's table,
// ignoring key order and treating a missing list like an empty one.
func featuresEqual(stored string, features map[string][]string) bool {
	var have map[string][]string
	if err := json.Unmarshal([]byte(stored), &have); err != nil {
		return false
	}
	if len(have) != len(features) {
		return false
	}
	for name, want := range features {
		got, ok := have[name]
		if !ok || len(got) != len(want) {
			return false
		}
		for i := range want {
			if got[i] != want[i] {
				return false
			}
		}
	}
	return true
}
