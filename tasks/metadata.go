package tasks

import (
	"context"
	"strings"

	"github.com/teranos/backfill/crates"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/pipeline"
	"github.com/teranos/backfill/store"
)

const metadataUnset = "versions.description is null" +
	" and versions.homepage is null" +
	" and versions.documentation is null" +
	" and versions.repository is null"

// VersionMetadata fills the descriptive package fields of a version.
func VersionMetadata() pipeline.Task {
	shape := journal.Shape{
		{Name: "description", Kind: journal.KindText},
		{Name: "homepage", Kind: journal.KindText},
		{Name: "documentation", Kind: journal.KindText},
		{Name: "repository", Kind: journal.KindText},
		{Name: "categories", Kind: journal.KindTextArray},
		{Name: "keywords", Kind: journal.KindTextArray},
	}
	return pipeline.Task{
		Name:        "version-metadata",
		Description: "description, homepage, documentation, repository, categories and keywords",
		Select: func(dialect.Dialect, pipeline.SelectOptions) store.Query {
			return selectVersions(metadataUnset, nil)
		},
		Transform: func(ctx context.Context, in crates.Inspector, item pipeline.Item) (journal.Entry, error) {
			crate, err := inspect(ctx, in, item)
			if err != nil {
				return journal.Entry{}, err
			}
			pkg := crate.Manifest.Package

			description := journal.Absent(journal.KindText)
			if pkg.Description != nil {
				description = journal.Text(strings.TrimSpace(*pkg.Description))
			}
			return journal.Entry{
				RecordID: item.RecordID,
				Values: []journal.Value{
					description,
					journal.OptionalText(pkg.Homepage),
					journal.OptionalText(pkg.Documentation),
					journal.OptionalText(pkg.Repository),
					journal.TextArray(pkg.Categories),
					journal.TextArray(pkg.Keywords),
				},
			}, nil
		},
		Update: versionsUpdate(shape, staticGuard(metadataUnset)),
	}
}
