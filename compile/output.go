package compile

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/store"
)

// RenderAll renders every batch, separated by a blank line.
func RenderAll(d dialect.Dialect, t Template, batches []UpdateBatch) string {
	parts := make([]string, len(batches))
	for i, b := range batches {
		parts[i] = Render(d, t, b)
	}
	return strings.Join(parts, "\n")
}

// WriteSQLFile writes the rendered batches to path. The file is replaced
// atomically so a failed compilation never leaves partial SQL behind.
// Zero batches produce an empty file.
func WriteSQLFile(path string, d dialect.Dialect, t Template, batches []UpdateBatch) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "create directory for %s", path)
		}
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "create temp file for %s", path)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(RenderAll(d, t, batches)); err != nil {
		tmp.Close()
		return errors.Wrapf(err, "write %s", tmp.Name())
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrapf(err, "close %s", tmp.Name())
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "rename into %s", path)
	}
	return nil
}

// Apply executes every batch against s as one parameterized statement each
// and returns the total number of affected rows. All statements are built
// before the first one runs, so an oversized batch fails without touching
// the store.
func Apply(ctx context.Context, s store.Store, t Template, batches []UpdateBatch) (int64, error) {
	d := s.Dialect()
	queries := make([]store.Query, len(batches))
	for i, b := range batches {
		q, err := Statement(d, t, b)
		if err != nil {
			return 0, errors.Wrapf(err, "batch %d", i+1)
		}
		queries[i] = q
	}

	var total int64
	for i, q := range queries {
		n, err := s.Exec(ctx, q)
		if err != nil {
			return total, errors.Wrapf(err, "apply batch %d of %d", i+1, len(queries))
		}
		total += n
	}
	return total, nil
}
