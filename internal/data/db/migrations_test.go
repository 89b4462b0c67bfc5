package db

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := Open(t.TempDir(), DefaultOpenOptions())
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database
}

func openRawConn(t *testing.T) *sql.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), FileName)
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", dbPath))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestMigrateUp_FreshDB(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	// Verify schema_migrations has all versions recorded.
	rows, err := database.Conn().QueryContext(ctx, "SELECT version FROM schema_migrations ORDER BY version")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var versions []int
	for rows.Next() {
		var v int
		require.NoError(t, rows.Scan(&v))
		versions = append(versions, v)
	}
	require.NoError(t, rows.Err())

	migrations, err := loadMigrations()
	require.NoError(t, err)

	require.Len(t, versions, len(migrations))
	for i, m := range migrations {
		assert.Equal(t, m.Version, versions[i])
	}

	for _, table := range []string{"tasks", "attempts", "execution_processes", "drafts"} {
		_, err = database.Conn().ExecContext(ctx, "SELECT 1 FROM "+table+" LIMIT 0")
		require.NoError(t, err, "%s table should exist", table)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	err := migrateUp(ctx, database.Conn())
	assert.NoError(t, err, "second migrateUp should be idempotent")
}

func TestMigrateDown(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	conn := database.Conn()

	_, err := conn.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, status, created_at, updated_at)
		VALUES ('t1', 'P1', 'Fix bug', 'todo', 1, 1)
	`)
	require.NoError(t, err)

	// Revert the last migration (drafts).
	err = MigrateDown(ctx, conn, 1)
	require.NoError(t, err)

	_, err = conn.ExecContext(ctx, "SELECT 1 FROM drafts LIMIT 0")
	require.Error(t, err, "drafts should not exist after down migration")

	var count int
	err = conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "task row should be preserved")

	// Re-applying restores the table.
	require.NoError(t, migrateUp(ctx, conn))
	_, err = conn.ExecContext(ctx, "SELECT 1 FROM drafts LIMIT 0")
	require.NoError(t, err)
}

func TestDrafts_QueuedAndSendingExclusive(t *testing.T) {
	database := openTestDB(t)

	err := database.Queries().SaveDraft(context.Background(), SaveDraftParams{
		AttemptID: "A1",
		ImageIds:  "[]",
		Queued:    1,
		Sending:   1,
		UpdatedAt: 1,
	})
	require.Error(t, err, "check constraint should reject queued and sending together")
}

func TestWithTx_Rollback(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	boom := fmt.Errorf("boom")
	err := database.WithTx(ctx, func(q *Queries) error {
		if err := q.SaveAttempt(ctx, SaveAttemptParams{ID: "A1", TaskID: "t1", ProjectID: "P1", CreatedAt: 1}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	attempts, err := database.Queries().ListAttempts(ctx)
	require.NoError(t, err)
	assert.Empty(t, attempts)
}

func TestMigrateDown_InvalidN(t *testing.T) {
	conn := openRawConn(t)
	ctx := context.Background()

	err := MigrateDown(ctx, conn, 0)
	require.Error(t, err, "n=0 should fail")

	err = MigrateDown(ctx, conn, -1)
	require.Error(t, err, "n=-1 should fail")
}

func TestMigrateDown_TooMany(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	migrations, err := loadMigrations()
	require.NoError(t, err)

	err = MigrateDown(ctx, database.Conn(), len(migrations)+1)
	assert.Error(t, err, "requesting more down migrations than applied should fail")
}

func TestLoadMigrations_Valid(t *testing.T) {
	migrations, err := loadMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	for i := 1; i < len(migrations); i++ {
		assert.Greater(t, migrations[i].Version, migrations[i-1].Version,
			"migrations should be in ascending version order")
	}

	for _, m := range migrations {
		assert.NotEmpty(t, m.UpSQL, "migration %d up SQL should not be empty", m.Version)
		assert.NotEmpty(t, m.DownSQL, "migration %d down SQL should not be empty", m.Version)
		assert.NotEmpty(t, m.Name, "migration %d name should not be empty", m.Version)
	}
}

func TestParseFilename(t *testing.T) {
	tests := []struct {
		filename      string
		wantVersion   int
		wantName      string
		wantDirection string
		wantErr       bool
	}{
		{"0001_initial.up.sql", 1, "initial", "up", false},
		{"0001_initial.down.sql", 1, "initial", "down", false},
		{"0002_drafts.up.sql", 2, "drafts", "up", false},
		{"0100_big_version.down.sql", 100, "big_version", "down", false},
		{"bad.sql", 0, "", "", true},
		{"0001_initial.sql", 0, "", "", true},
		{"0000_zero.up.sql", 0, "", "", true},
		{"-1_negative.up.sql", 0, "", "", true},
		{"abc_notnumber.up.sql", 0, "", "", true},
		{"0001_.up.sql", 0, "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			version, name, direction, err := parseFilename(tt.filename)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantVersion, version)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantDirection, direction)
		})
	}
}

func TestMigrateUp_DetectsDrift(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()

	_, err := database.Conn().ExecContext(ctx, "UPDATE schema_migrations SET checksum = 'stale' WHERE version = 1")
	require.NoError(t, err)

	err = migrateUp(ctx, database.Conn())
	require.ErrorIs(t, err, ErrSchemaDrift)
}

func TestReadMigrations_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   fstest.MapFS
		wantErr string
	}{
		{
			name: "missing down",
			files: fstest.MapFS{
				"m/0001_init.up.sql": {Data: []byte("SELECT 1")},
			},
			wantErr: "needs both",
		},
		{
			name: "mismatched names",
			files: fstest.MapFS{
				"m/0001_init.up.sql":    {Data: []byte("SELECT 1")},
				"m/0001_other.down.sql": {Data: []byte("SELECT 1")},
			},
			wantErr: "mismatched names",
		},
		{
			name: "bad filename",
			files: fstest.MapFS{
				"m/init.sql": {Data: []byte("SELECT 1")},
			},
			wantErr: "expected NNNN_name",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readMigrations(tt.files, "m")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReadMigrations_Sorted(t *testing.T) {
	files := fstest.MapFS{
		"m/0010_later.up.sql":   {Data: []byte("SELECT 10")},
		"m/0010_later.down.sql": {Data: []byte("SELECT -10")},
		"m/0002_first.up.sql":   {Data: []byte("SELECT 2")},
		"m/0002_first.down.sql": {Data: []byte("SELECT -2")},
	}

	got, err := readMigrations(files, "m")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Version)
	assert.Equal(t, "later", got[1].Name)
	assert.NotEqual(t, got[0].Checksum(), got[1].Checksum())
}
