package db

import (
	"context"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Migration is one versioned schema change loaded from a .sql file.
type Migration struct {
	Version string
	Name    string
	SQL     string
}

// AppliedMigration is a row from the schema_migrations ledger.
type AppliedMigration struct {
	Version   string
	Name      string
	AppliedAt time.Time
}

// Migrator applies .sql files from a filesystem in version order. File names
// follow NNN_name.sql; the numeric prefix is the version.
type Migrator struct {
	pool *pgxpool.Pool
	fsys fs.FS
	log  zerolog.Logger
}

func NewMigrator(pool *pgxpool.Pool, fsys fs.FS, log zerolog.Logger) *Migrator {
	return &Migrator{pool: pool, fsys: fsys, log: log}
}

// Load reads and orders every migration file without applying anything.
func (m *Migrator) Load() ([]Migration, error) {
	entries, err := fs.Glob(m.fsys, "*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	sort.Strings(entries)

	migrations := make([]Migration, 0, len(entries))
	for _, name := range entries {
		version, rest, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		if !ok || version == "" {
			return nil, fmt.Errorf("migration file %q: want NNN_name.sql", name)
		}

		data, err := fs.ReadFile(m.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %q: %w", name, err)
		}

		migrations = append(migrations, Migration{
			Version: version,
			Name:    rest,
			SQL:     string(data),
		})
	}
	return migrations, nil
}

// Up applies every pending migration inside a transaction each.
func (m *Migrator) Up(ctx context.Context) error {
	if err := m.ensureLedger(ctx); err != nil {
		return err
	}

	migrations, err := m.Load()
	if err != nil {
		return err
	}

	applied, err := m.appliedVersions(ctx)
	if err != nil {
		return err
	}

	for _, mig := range migrations {
		if _, done := applied[mig.Version]; done {
			continue
		}

		tx, err := m.pool.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", mig.Version, err)
		}

		if _, err := tx.Exec(ctx, mig.SQL); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("apply migration %s_%s: %w", mig.Version, mig.Name, err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`,
			mig.Version, mig.Name,
		); err != nil {
			tx.Rollback(ctx)
			return fmt.Errorf("record migration %s: %w", mig.Version, err)
		}

		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit migration %s: %w", mig.Version, err)
		}

		m.log.Info().Str("version", mig.Version).Str("name", mig.Name).Msg("migration applied")
	}

	return nil
}

// Status returns the applied-migration ledger, oldest first.
func (m *Migrator) Status(ctx context.Context) ([]AppliedMigration, error) {
	if err := m.ensureLedger(ctx); err != nil {
		return nil, err
	}

	rows, err := m.pool.Query(ctx,
		`SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query migration status: %w", err)
	}
	defer rows.Close()

	var out []AppliedMigration
	for rows.Next() {
		var am AppliedMigration
		if err := rows.Scan(&am.Version, &am.Name, &am.AppliedAt); err != nil {
			return nil, fmt.Errorf("scan migration row: %w", err)
		}
		out = append(out, am)
	}
	return out, rows.Err()
}

func (m *Migrator) ensureLedger(ctx context.Context) error {
	_, err := m.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return nil
}

func (m *Migrator) appliedVersions(ctx context.Context) (map[string]struct{}, error) {
	rows, err := m.pool.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied versions: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		applied[v] = struct{}{}
	}
	return applied, rows.Err()
}
