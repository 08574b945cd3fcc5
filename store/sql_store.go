package store

import (
	"context"
	"database/sql"

	"github.com/teranos/backfill/dialect"
)

// SQLStore adapts a database/sql handle (SQLite, or sqlmock in tests).
type SQLStore struct {
	db      *sql.DB
	dialect dialect.Dialect
}

// NewSQLStore wraps db, which speaks d.
func NewSQLStore(db *sql.DB, d dialect.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: d}
}

func (s *SQLStore) Query(ctx context.Context, q Query, scan func(Row) error) error {
	rows, err := s.db.QueryContext(ctx, q.SQL, q.Args...)
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

func (s *SQLStore) Exec(ctx context.Context, q Query) (int64, error) {
	res, err := s.db.ExecContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return 0, wrapStoreErr(err, "exec")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapStoreErr(err, "rows affected")
	}
	return n, nil
}

func (s *SQLStore) Dialect() dialect.Dialect { return s.dialect }

func (s *SQLStore) Close() error { return s.db.Close() }

// DB exposes the underlying handle.
func (s *SQLStore) DB() *sql.DB { return s.db }
