package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const migrationTableDDL = `CREATE TABLE IF NOT EXISTS public.crowdfund_schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

type Migration struct {
	Name string
	SQL  string
}

// Migrations returns the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	return loadMigrations(migrationFS, "migrations")
}

func loadMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	migrations := make([]Migration, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		data, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", entry.Name(), err)
		}

		migrations = append(migrations, Migration{
			Name: strings.TrimSuffix(entry.Name(), ".sql"),
			SQL:  string(data),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})

	return migrations, nil
}

// Migrate applies every embedded migration that has not been recorded yet.
// Each migration runs in its own transaction together with its record row,
// so running it again is a no-op.
func Migrate(ctx context.Context, pool *pgxpool.Pool, logger *logrus.Logger) (int, error) {
	migrations, err := Migrations()
	if err != nil {
		return 0, err
	}

	if _, err := pool.Exec(ctx, migrationTableDDL); err != nil {
		return 0, fmt.Errorf("failed to create migration table: %w", err)
	}

	applied := 0
	for _, migration := range migrations {
		ok, err := applyMigration(ctx, pool, migration)
		if err != nil {
			return applied, err
		}

		entry := logger.WithField("migration", migration.Name)
		if !ok {
			entry.Debug("migration already applied, skipping")
			continue
		}

		entry.Info("migration applied")
		applied++
	}

	return applied, nil
}

func applyMigration(ctx context.Context, pool *pgxpool.Pool, migration Migration) (bool, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin migration %s: %w", migration.Name, err)
	}
	defer tx.Rollback(ctx)

	// serialize concurrent setup runs
	if _, err := tx.Exec(ctx, "LOCK TABLE public.crowdfund_schema_migrations IN EXCLUSIVE MODE"); err != nil {
		return false, fmt.Errorf("failed to lock migration table: %w", err)
	}

	var exists bool
	err = tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM public.crowdfund_schema_migrations WHERE name = $1)", migration.Name).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", migration.Name, err)
	}

	if exists {
		return false, nil
	}

	if _, err := tx.Exec(ctx, migration.SQL, pgx.QueryExecModeSimpleProtocol); err != nil {
		return false, fmt.Errorf("failed to apply migration %s: %w", migration.Name, err)
	}

	if _, err := tx.Exec(ctx, "INSERT INTO public.crowdfund_schema_migrations (name) VALUES ($1)", migration.Name); err != nil {
		return false, fmt.Errorf("failed to record migration %s: %w", migration.Name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit migration %s: %w", migration.Name, err)
	}

	return true, nil
}
