package db

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
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/colonyops/hivesync/internal/core/logging"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrSchemaDrift is returned when an applied migration's SQL no longer
// matches the file shipped in the binary.
var ErrSchemaDrift = errors.New("applied migration was modified")

// Migration is one versioned schema change with its revert.
type Migration struct {
	Version int
	Name    string
	UpSQL   string
	DownSQL string
}

// Checksum identifies the up SQL that was applied.
func (m Migration) Checksum() string {
	sum := sha256.Sum256([]byte(m.UpSQL))
	return hex.EncodeToString(sum[:])
}

var filenamePattern = regexp.MustCompile(`^(\d+)_([a-z0-9_]+)\.(up|down)\.sql$`)

// parseFilename splits "NNNN_name.up.sql" or "NNNN_name.down.sql".
func parseFilename(filename string) (version int, name, direction string, err error) {
	m := filenamePattern.FindStringSubmatch(filename)
	if m == nil {
		return 0, "", "", fmt.Errorf("expected NNNN_name.{up,down}.sql, got %q", filename)
	}

	version, err = strconv.Atoi(m[1])
	if err != nil {
		return 0, "", "", fmt.Errorf("version %q: %w", m[1], err)
	}
	if version <= 0 {
		return 0, "", "", fmt.Errorf("version must be positive, got %d", version)
	}
	return version, m[2], m[3], nil
}

// loadMigrations reads the embedded SQL files. Every version needs exactly
// one up and one down file.
func loadMigrations() ([]Migration, error) {
	return readMigrations(migrationsFS, "migrations")
}

func readMigrations(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	byVersion := make(map[int]*Migration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		version, name, direction, err := parseFilename(entry.Name())
		if err != nil {
			return nil, err
		}

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}

		m, ok := byVersion[version]
		if !ok {
			m = &Migration{Version: version, Name: name}
			byVersion[version] = m
		}
		if m.Name != name {
			return nil, fmt.Errorf("migration %04d has mismatched names %q and %q", version, m.Name, name)
		}

		slot := &m.UpSQL
		if direction == "down" {
			slot = &m.DownSQL
		}
		if *slot != "" {
			return nil, fmt.Errorf("duplicate %s migration for version %04d", direction, version)
		}
		*slot = string(content)
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.UpSQL == "" || m.DownSQL == "" {
			return nil, fmt.Errorf("migration %04d needs both an up and a down file", m.Version)
		}
		out = append(out, *m)
	}
	slices.SortFunc(out, func(a, b Migration) int { return a.Version - b.Version })
	return out, nil
}

// migrator applies and reverts migrations against one connection, tracking
// them in schema_migrations.
type migrator struct {
	conn       *sql.DB
	migrations []Migration
	log        zerolog.Logger
}

func newMigrator(ctx context.Context, conn *sql.DB) (*migrator, error) {
	migrations, err := loadMigrations()
	if err != nil {
		return nil, err
	}

	_, err = conn.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			checksum   TEXT NOT NULL,
			applied_at INTEGER NOT NULL
		)
	`)
	if err != nil {
		return nil, fmt.Errorf("create schema_migrations: %w", err)
	}

	return &migrator{conn: conn, migrations: migrations, log: logging.Component("db")}, nil
}

// applied maps each applied version to its recorded checksum.
func (m *migrator) applied(ctx context.Context) (map[int]string, error) {
	rows, err := m.conn.QueryContext(ctx, "SELECT version, checksum FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[int]string)
	for rows.Next() {
		var (
			v   int
			sum string
		)
		if err := rows.Scan(&v, &sum); err != nil {
			return nil, fmt.Errorf("scan applied migration: %w", err)
		}
		out[v] = sum
	}
	return out, rows.Err()
}

func (m *migrator) up(ctx context.Context) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	for _, mg := range m.migrations {
		if sum, ok := applied[mg.Version]; ok {
			if sum != mg.Checksum() {
				return fmt.Errorf("%w: %04d_%s", ErrSchemaDrift, mg.Version, mg.Name)
			}
			continue
		}

		m.log.Info().Int("version", mg.Version).Str("name", mg.Name).Msg("applying migration")
		err := m.inTx(ctx, mg.UpSQL,
			"INSERT INTO schema_migrations (version, name, checksum, applied_at) VALUES (?, ?, ?, ?)",
			mg.Version, mg.Name, mg.Checksum(), time.Now().UnixNano(),
		)
		if err != nil {
			return fmt.Errorf("migration %04d (%s): %w", mg.Version, mg.Name, err)
		}
	}
	return nil
}

func (m *migrator) down(ctx context.Context, n int) error {
	applied, err := m.applied(ctx)
	if err != nil {
		return err
	}

	var reverting []Migration
	for i := len(m.migrations) - 1; i >= 0 && len(reverting) < n; i-- {
		if _, ok := applied[m.migrations[i].Version]; ok {
			reverting = append(reverting, m.migrations[i])
		}
	}
	if len(reverting) < n {
		return fmt.Errorf("requested %d down migrations but only %d are applied", n, len(reverting))
	}

	for _, mg := range reverting {
		m.log.Info().Int("version", mg.Version).Str("name", mg.Name).Msg("reverting migration")
		if err := m.inTx(ctx, mg.DownSQL, "DELETE FROM schema_migrations WHERE version = ?", mg.Version); err != nil {
			return fmt.Errorf("revert migration %04d (%s): %w", mg.Version, mg.Name, err)
		}
	}
	return nil
}

// inTx runs a migration body and its bookkeeping statement atomically.
func (m *migrator) inTx(ctx context.Context, body, record string, args ...any) error {
	tx, err := m.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, body); err != nil {
		return fmt.Errorf("execute SQL: %w", err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}

// migrateUp applies every pending migration in version order.
func migrateUp(ctx context.Context, conn *sql.DB) error {
	m, err := newMigrator(ctx, conn)
	if err != nil {
		return err
	}
	return m.up(ctx)
}

// MigrateDown reverts the last n applied migrations, newest first.
func MigrateDown(ctx context.Context, conn *sql.DB, n int) error {
	if n <= 0 {
		return fmt.Errorf("n must be positive, got %d", n)
	}
	m, err := newMigrator(ctx, conn)
	if err != nil {
		return err
	}
	return m.down(ctx, n)
}
