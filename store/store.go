// Package store is the primary record store as the backfill sees it: one
// query to fetch candidates and batched updates to apply results.
package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/backfill/am"
	"github.com/teranos/backfill/db"
	"github.com/teranos/backfill/dialect"
	"github.com/teranos/backfill/errors"
)

// Query is a SQL statement with its bind arguments.
type Query struct {
	SQL  string
	Args []any
}

// Row is a single result row.
type Row interface {
	Scan(dest ...any) error
}

// Store is the primary store interface.
type Store interface {
	// Query runs q and calls scan once per row. All rows are consumed
	// before Query returns.
	Query(ctx context.Context, q Query, scan func(Row) error) error
	// Exec runs q and returns the number of affected rows.
	Exec(ctx context.Context, q Query) (int64, error)
	Dialect() dialect.Dialect
	Close() error
}

// Open connects to the store described by cfg.
func Open(ctx context.Context, cfg am.DatabaseConfig, log *zap.SugaredLogger) (Store, error) {
	switch cfg.Driver {
	case am.DriverPostgres:
		timeout := time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
		pool, err := db.OpenPostgres(ctx, cfg.URL, timeout, log)
		if err != nil {
			return nil, errors.WithHint(errors.MarkStore(err), "check database.url or BACKFILL_DATABASE_URL")
		}
		return NewPGStore(pool), nil
	case am.DriverSQLite:
		sqlDB, err := db.OpenSQLiteWithMigrations(cfg.URL, log)
		if err != nil {
			return nil, errors.MarkStore(err)
		}
		return NewSQLStore(sqlDB, dialect.SQLite), nil
	}
	return nil, errors.MarkStore(errors.Newf("unsupported database driver %q", cfg.Driver))
}

func wrapStoreErr(err error, what string) error {
	err = errors.MarkStore(errors.Wrap(err, what))
	if db.IsDatabaseClosed(err) {
		err = errors.WithHint(err, "the store connection was already closed")
	}
	return err
}
