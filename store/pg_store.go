package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teranos/backfill/dialect"
)

// PGStore adapts a pgx connection pool.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore wraps pool.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Query(ctx context.Context, q Query, scan func(Row) error) error {
	rows, err := s.pool.Query(ctx, q.SQL, q.Args...)
	if err != nil {
		return wrapStoreErr(err, "query")
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return wrapStoreErr(err, "scan row")
		}
	}
	if err := rows.Err(); err != nil {
		return wrapStoreErr(err, "iterate rows")
	}
	return nil
}

func (s *PGStore) Exec(ctx context.Context, q Query) (int64, error) {
	tag, err := s.pool.Exec(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, wrapStoreErr(err, "exec")
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) Dialect() dialect.Dialect { return dialect.Postgres }

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
