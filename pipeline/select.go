package pipeline

import (
	"context"

	"github.com/teranos/backfill/errors"
	"github.com/teranos/backfill/journal"
	"github.com/teranos/backfill/store"
)

// SelectCandidates runs the task's candidate query and materializes every
// row. Any failure is a store error.
func SelectCandidates(ctx context.Context, s store.Store, task Task, opts SelectOptions) ([]Candidate, error) {
	q := task.Select(s.Dialect(), opts)

	var out []Candidate
	err := s.Query(ctx, q, func(r store.Row) error {
		var c Candidate
		extra := make([]*string, len(task.Context))
		dest := []any{&c.RecordID, &c.Name, &c.Version}
		for i := range extra {
			dest = append(dest, &extra[i])
		}
		if err := r.Scan(dest...); err != nil {
			return errors.Wrap(err, "scan candidate")
		}
		if len(task.Context) > 0 {
			c.Context = make(map[string]string, len(task.Context))
			for i, name := range task.Context {
				if extra[i] != nil {
					c.Context[name] = *extra[i]
				}
			}
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "select %s candidates", task.Name)
	}
	return out, nil
}

// Filter drops the candidates whose record ids are already resolved.
func Filter(candidates []Candidate, resolved journal.ResolvedSet) []Candidate {
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !resolved.Contains(c.RecordID) {
			out = append(out, c)
		}
	}
	return out
}
