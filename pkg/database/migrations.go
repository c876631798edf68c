package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embeddedMigrations embed.FS

// ErrChecksumMismatch reports an applied migration whose file has since changed
var ErrChecksumMismatch = errors.New("migration changed after it was applied")

// Migration is one numbered schema file, e.g. 002_applications.sql
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Migrator applies schema files in version order and records each in
// schema_migrations together with a checksum of its contents.
type Migrator struct {
	db     *DB
	fsys   fs.FS
	dir    string
	logger *zap.Logger
}

// NewMigrator creates a migrator over the embedded schema for db's driver
func NewMigrator(db *DB, logger *zap.Logger) *Migrator {
	dir := "migrations/sqlite"
	if db.Driver == DriverPostgres {
		dir = "migrations/postgres"
	}
	return NewMigratorFS(db, embeddedMigrations, dir, logger)
}

// NewMigratorFS creates a migrator reading *.sql files from dir in fsys
func NewMigratorFS(db *DB, fsys fs.FS, dir string, logger *zap.Logger) *Migrator {
	return &Migrator{db: db, fsys: fsys, dir: dir, logger: logger}
}

// Up applies every pending migration, each in its own transaction, and
// returns how many were applied. It refuses to run when an applied file
// no longer matches its recorded checksum.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	migrations, err := m.load()
	if err != nil {
		return 0, err
	}
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, mig := range migrations {
		sum, done := applied[mig.Version]
		if done {
			// rows recorded before checksums were kept have an empty sum
			if sum != "" && sum != mig.Checksum {
				return count, fmt.Errorf("%w: %03d_%s", ErrChecksumMismatch, mig.Version, mig.Name)
			}
			continue
		}
		m.logger.Info("Applying migration",
			zap.Int("version", mig.Version),
			zap.String("name", mig.Name))
		if err := m.apply(ctx, mig); err != nil {
			return count, fmt.Errorf("migration %03d_%s: %w", mig.Version, mig.Name, err)
		}
		count++
	}

	m.logger.Info("Database schema up to date",
		zap.String("driver", m.db.Driver),
		zap.Int("applied", count))
	return count, nil
}

// CurrentVersion returns the highest applied version, 0 on a fresh database
func (m *Migrator) CurrentVersion(ctx context.Context) (int, error) {
	if err := m.ensureTable(ctx); err != nil {
		return 0, err
	}
	var version sql.NullInt64
	if err := m.db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return int(version.Int64), nil
}

// Pending lists migrations not yet applied
func (m *Migrator) Pending(ctx context.Context) ([]Migration, error) {
	migrations, err := m.load()
	if err != nil {
		return nil, err
	}
	if err := m.ensureTable(ctx); err != nil {
		return nil, err
	}
	applied, err := m.applied(ctx)
	if err != nil {
		return nil, err
	}
	var out []Migration
	for _, mig := range migrations {
		if _, ok := applied[mig.Version]; !ok {
			out = append(out, mig)
		}
	}
	return out, nil
}

func (m *Migrator) ensureTable(ctx context.Context) error {
	ts := "DATETIME"
	if m.db.Driver == DriverPostgres {
		ts = "TIMESTAMPTZ"
	}
	_, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		checksum TEXT NOT NULL DEFAULT '',
		applied_at `+ts+` DEFAULT CURRENT_TIMESTAMP
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

// applied maps version to recorded checksum
func (m *Migrator) applied(ctx context.Context) (map[int]string, error) {
	rows, err := m.db.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]string)
	for rows.Next() {
		var (
			v   int
			sum string
		)
		if err := rows.Scan(&v, &sum); err != nil {
			return nil, err
		}
		out[v] = sum
	}
	return out, rows.Err()
}

func (m *Migrator) load() ([]Migration, error) {
	files, err := fs.Glob(m.fsys, path.Join(m.dir, "*.sql"))
	if err != nil {
		return nil, err
	}

	seen := make(map[int]string, len(files))
	out := make([]Migration, 0, len(files))
	for _, f := range files {
		base := strings.TrimSuffix(path.Base(f), ".sql")
		num, name, _ := strings.Cut(base, "_")
		version, err := strconv.Atoi(num)
		if err != nil || version <= 0 {
			return nil, fmt.Errorf("migration file %s: name must start with a positive version", f)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("migration version %d used by %s and %s", version, prev, f)
		}
		seen[version] = f

		body, err := fs.ReadFile(m.fsys, f)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(body)
		out = append(out, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(body),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func (m *Migrator) apply(ctx context.Context, mig Migration) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, mig.SQL); err != nil {
		return err
	}
	record := "INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)"
	if m.db.Driver == DriverPostgres {
		record = "INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)"
	}
	if _, err := tx.ExecContext(ctx, record, mig.Version, mig.Name, mig.Checksum); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
