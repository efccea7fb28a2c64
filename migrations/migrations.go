// Package migrations embeds the schema and seed SQL and applies it to PostgreSQL.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"time"
)

//go:embed *.sql seed/*.sql
var files embed.FS

// Migration is one versioned schema change
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	Applied   bool
	AppliedAt *time.Time
}

// Seed is one seed data file
type Seed struct {
	Version int
	Name    string
	SQL     string
}

// Pattern: 001_name.up.sql / 001_name.down.sql
var migrationPattern = regexp.MustCompile(`^(\d{3})_(.+)\.(up|down)\.sql$`)

// Pattern: seed/001_name.sql
var seedPattern = regexp.MustCompile(`^(\d{3})_(.+)\.sql$`)

// Load returns every embedded migration sorted by version
func Load() ([]Migration, error) {
	return load(files)
}

func load(fsys fs.FS) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	byVersion := map[int]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		matches := migrationPattern.FindStringSubmatch(entry.Name())
		if len(matches) != 4 {
			continue
		}

		version, err := strconv.Atoi(matches[1])
		if err != nil {
			continue
		}

		content, err := fs.ReadFile(fsys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration file %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: matches[2]}
			byVersion[version] = m
		}
		if matches[3] == "up" {
			m.UpSQL = string(content)
		} else {
			m.DownSQL = string(content)
		}
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" {
			return nil, fmt.Errorf("migration %03d_%s has no up file", m.Version, m.Name)
		}
		migrations = append(migrations, *m)
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// LoadSeeds returns every embedded seed file sorted by version
func LoadSeeds() ([]Seed, error) {
	entries, err := fs.ReadDir(files, "seed")
	if err != nil {
		return nil, fmt.Errorf("failed to read seeds: %w", err)
	}

	var seeds []Seed
	for _, entry := range entries {
		matches := seedPattern.FindStringSubmatch(entry.Name())
		if entry.IsDir() || len(matches) != 3 {
			continue
		}

		version, _ := strconv.Atoi(matches[1])
		content, err := fs.ReadFile(files, path.Join("seed", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read seed file %s: %w", entry.Name(), err)
		}
		seeds = append(seeds, Seed{Version: version, Name: matches[2], SQL: string(content)})
	}

	sort.Slice(seeds, func(i, j int) bool {
		return seeds[i].Version < seeds[j].Version
	})

	return seeds, nil
}

// Runner applies migrations and tracks them in schema_migrations
type Runner struct {
	db         *sql.DB
	migrations []Migration
}

// NewRunner creates a runner over the embedded migrations
func NewRunner(db *sql.DB) (*Runner, error) {
	migrations, err := Load()
	if err != nil {
		return nil, err
	}
	return &Runner{db: db, migrations: migrations}, nil
}

// EnsureTable creates the schema_migrations tracking table
func (r *Runner) EnsureTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`

	if _, err := r.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	return nil
}

// Applied returns applied migrations keyed by version
func (r *Runner) Applied(ctx context.Context) (map[int]Migration, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT version, name, applied_at FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]Migration)
	for rows.Next() {
		var m Migration
		if err := rows.Scan(&m.Version, &m.Name, &m.AppliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		m.Applied = true
		applied[m.Version] = m
	}

	return applied, rows.Err()
}

// Status returns every known migration with its applied state
func (r *Runner) Status(ctx context.Context) ([]Migration, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}

	status := make([]Migration, len(r.migrations))
	for i, m := range r.migrations {
		if a, ok := applied[m.Version]; ok {
			m.Applied = true
			m.AppliedAt = a.AppliedAt
		}
		status[i] = m
	}

	return status, nil
}

// Up applies all pending migrations in version order, each in its own transaction
func (r *Runner) Up(ctx context.Context) ([]Migration, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}

	var done []Migration
	for _, m := range r.migrations {
		if _, ok := applied[m.Version]; ok {
			continue
		}
		if err := r.apply(ctx, m); err != nil {
			return done, fmt.Errorf("failed to apply migration %03d_%s: %w", m.Version, m.Name, err)
		}
		done = append(done, m)
	}

	return done, nil
}

func (r *Runner) apply(ctx context.Context, m Migration) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.UpSQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Down rolls back the most recently applied migration. It returns nil when nothing is applied.
func (r *Runner) Down(ctx context.Context) (*Migration, error) {
	applied, err := r.Applied(ctx)
	if err != nil {
		return nil, err
	}
	if len(applied) == 0 {
		return nil, nil
	}

	last := -1
	for version := range applied {
		if version > last {
			last = version
		}
	}

	m, err := r.find(last)
	if err != nil {
		return nil, err
	}
	if err := r.rollback(ctx, m); err != nil {
		return nil, fmt.Errorf("failed to rollback migration %03d_%s: %w", m.Version, m.Name, err)
	}

	return &m, nil
}

// Reset rolls back every applied migration and reapplies all of them
func (r *Runner) Reset(ctx context.Context) ([]Migration, error) {
	for {
		m, err := r.Down(ctx)
		if err != nil {
			return nil, err
		}
		if m == nil {
			break
		}
	}
	return r.Up(ctx)
}

func (r *Runner) find(version int) (Migration, error) {
	for _, m := range r.migrations {
		if m.Version == version {
			return m, nil
		}
	}
	return Migration{}, fmt.Errorf("no migration file for applied version %d", version)
}

func (r *Runner) rollback(ctx context.Context, m Migration) error {
	if m.DownSQL == "" {
		return fmt.Errorf("no rollback defined for migration version %d", m.Version)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.DownSQL); err != nil {
		return fmt.Errorf("failed to execute rollback SQL: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version); err != nil {
		return fmt.Errorf("failed to remove migration record: %w", err)
	}

	return tx.Commit()
}

// Seed runs every seed file. Seeds are idempotent and are not tracked.
func (r *Runner) Seed(ctx context.Context) ([]Seed, error) {
	seeds, err := LoadSeeds()
	if err != nil {
		return nil, err
	}

	for _, s := range seeds {
		if _, err := r.db.ExecContext(ctx, s.SQL); err != nil {
			return nil, fmt.Errorf("failed to execute seed %03d_%s: %w", s.Version, s.Name, err)
		}
	}

	return seeds, nil
}
