package db

import (
	"context"
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/backfill/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// Migration is one embedded schema file, identified by its numeric prefix.
type Migration struct {
	Version string
	File    string
}

// Migrations lists the embedded migrations in the order they are applied.
func Migrations() ([]Migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}

	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		version, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			return nil, errors.Newf("migration %s has no version prefix", entry.Name())
		}
		out = append(out, Migration{Version: version, File: entry.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].File < out[j].File })
	return out, nil
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations and returns how many were applied.
// If logger is provided, logs migration progress; otherwise operates silently.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) error {
	_, err := MigrateContext(context.Background(), db, logger)
	return err
}

// MigrateContext is Migrate with a caller-supplied context.
func MigrateContext(ctx context.Context, db *sql.DB, logger *zap.SugaredLogger) (int, error) {
	list, err := Migrations()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range list {
		done, err := isApplied(ctx, db, m.Version)
		if err != nil {
			return applied, errors.Wrapf(err, "check %s", m.File)
		}
		if done {
			if logger != nil {
				logger.Debugw("Skipping migration (already applied)", "migration", m.File)
			}
			continue
		}

		body, err := migrations.ReadFile(path.Join(migrationsDir, m.File))
		if err != nil {
			return applied, errors.Wrapf(err, "read %s", m.File)
		}

		if logger != nil {
			logger.Infow("Applying migration", "migration", m.File, "version", m.Version)
		}

		if err := applyOne(ctx, db, m, string(body)); err != nil {
			return applied, err
		}
		applied++
	}

	if logger != nil {
		logger.Infow("Migrations complete", "applied", applied, "total_migrations", len(list))
	}
	return applied, nil
}

// isApplied reports whether version is recorded. A missing
// schema_migrations table means nothing has been applied yet.
func isApplied(ctx context.Context, db *sql.DB, version string) (bool, error) {
	var tables int
	err := db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = 'schema_migrations'").Scan(&tables)
	if err != nil {
		return false, err
	}
	if tables == 0 {
		return false, nil
	}

	var exists bool
	err = db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", version).Scan(&exists)
	return exists, err
}

func applyOne(ctx context.Context, db *sql.DB, m Migration, body string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.File)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return errors.Wrapf(err, "execute %s", m.File)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES (?)", m.Version); err != nil {
		return errors.Wrapf(err, "record %s", m.File)
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrapf(err, "commit %s", m.File)
	}
	return nil
}
