// Package compile turns a journal into batched update statements.
package compile

import (
	"sort"

	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/journal"
)

// UpdateBatch is a group of entries rendered as one multi-row update.
type UpdateBatch struct {
	Entries []journal.Entry
}

// IDs returns the record ids in the batch, in order.
func (b UpdateBatch) IDs() []int64 {
	ids := make([]int64, len(b.Entries))
	for i, e := range b.Entries {
		ids[i] = e.RecordID
	}
	return ids
}

// Options control which journal entries become updates.
type Options struct {
	// DropAbsent skips entries whose values are all \N. Tasks set it when
	// "no value" means "leave the column alone".
	DropAbsent bool
}

// Dedup keeps the last entry seen for each record id and orders the
// result by record id.
func Dedup(entries []journal.Entry) []journal.Entry {
	last := make(map[int64]int, len(entries))
	for i, e := range entries {
		last[e.RecordID] = i
	}
	out := make([]journal.Entry, 0, len(last))
	for _, i := range last {
		out = append(out, entries[i])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RecordID < out[j].RecordID })
	return out
}

// Updates returns the deduplicated entries that need an update.
func Updates(entries []journal.Entry, opts Options) []journal.Entry {
	deduped := Dedup(entries)
	out := deduped[:0]
	for _, e := range deduped {
		if e.Unchanged {
			continue
		}
		if opts.DropAbsent && e.AllAbsent() {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Compile deduplicates entries, drops the ones needing no update and
// partitions the rest into batches of at most chunkSize, ordered by id.
func Compile(entries []journal.Entry, chunkSize int, opts Options) ([]UpdateBatch, error) {
	if chunkSize <= 0 {
		return nil, errors.Newf("chunk size must be positive, got %d", chunkSize)
	}

	updates := Updates(entries, opts)
	batches := make([]UpdateBatch, 0, (len(updates)+chunkSize-1)/chunkSize)
	for start := 0; start < len(updates); start += chunkSize {
		end := min(start+chunkSize, len(updates))
		batches = append(batches, UpdateBatch{Entries: updates[start:end]})
	}
	return batches, nil
}
