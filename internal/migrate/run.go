// Package migrate applies the storefront's embedded SQL migrations.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// advisoryLockKey serializes concurrent migration runs across replicas.
const advisoryLockKey int64 = 0x73746f7265 // "store"

// Migration is one embedded SQL file.
type Migration struct {
	Version string
	File    string
}

// Available lists the embedded migrations in apply order.
func Available() ([]Migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, Migration{Version: strings.TrimSuffix(e.Name(), ".sql"), File: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Run applies every pending migration. It is safe to call more than once and
// from several processes at a time.
func Run(ctx context.Context, db *sql.DB) error {
	_, err := apply(ctx, db)
	return err
}

// RunReport applies pending migrations and returns the versions it applied.
func RunReport(ctx context.Context, db *sql.DB) ([]string, error) {
	return apply(ctx, db)
}

// Pending returns the versions not yet recorded in schema_migrations.
func Pending(ctx context.Context, db *sql.DB) ([]string, error) {
	if err := ensureTable(ctx, db); err != nil {
		return nil, err
	}
	all, err := Available()
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range all {
		done, existsErr := applied(ctx, db, m)
		if existsErr != nil {
			return nil, existsErr
		}
		if !done {
			out = append(out, m.Version)
		}
	}
	return out, nil
}

func apply(ctx context.Context, db *sql.DB) (_ []string, err error) {
	logger := slog.Default().With("component", "migrations")

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire migration conn: %w", err)
	}
	defer func() {
		if closeErr := conn.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("close migration conn: %w", closeErr))
		}
	}()

	if _, err = conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, unlockErr := conn.ExecContext(context.WithoutCancel(ctx), `SELECT pg_advisory_unlock($1)`, advisoryLockKey); unlockErr != nil {
			logger.WarnContext(ctx, "release migration lock", "error", unlockErr)
		}
	}()

	if err = ensureTable(ctx, conn); err != nil {
		return nil, err
	}
	all, err := Available()
	if err != nil {
		return nil, err
	}

	var done []string
	for _, m := range all {
		ran, applyErr := applyOne(ctx, conn, m, logger)
		if applyErr != nil {
			return done, applyErr
		}
		if ran {
			done = append(done, m.Version)
		}
	}
	return done, nil
}

type execQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func ensureTable(ctx context.Context, db execQuerier) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations table: %w", err)
	}
	return nil
}

func applied(ctx context.Context, db execQuerier, m Migration) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check migration %s: %w", m.File, err)
	}
	return exists, nil
}

func applyOne(ctx context.Context, conn *sql.Conn, m Migration, logger *slog.Logger) (bool, error) {
	exists, err := applied(ctx, conn, m)
	if err != nil || exists {
		return false, err
	}

	body, err := migrationsFS.ReadFile("migrations/" + m.File)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", m.File, err)
	}
	logger.InfoContext(ctx, "applying migration", "version", m.Version)

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(); rollbackErr != nil && !errors.Is(rollbackErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "failed to rollback migration", "error", rollbackErr, "migration_file", m.File)
		}
	}()

	if _, err = tx.ExecContext(ctx, string(body)); err != nil {
		return false, fmt.Errorf("exec migration %s: %w", m.File, err)
	}
	if _, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
		return false, fmt.Errorf("record migration %s: %w", m.File, err)
	}
	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", m.File, err)
	}
	return true, nil
}
