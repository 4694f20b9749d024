package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ridoystarlord/schemasync/errs"
	"github.com/ridoystarlord/schemasync/generator"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func migration(name string, up ...string) Migration {
	return Migration{Name: name, Up: up, Checksum: calculateChecksum(up)}
}

func TestNew_QuotesHistoryTable(t *testing.T) {
	assert.Equal(t, `"schema_migrations"`, New(nil, Options{}).table)
	assert.Equal(t, `"ops"."history"`, New(nil, Options{Table: "ops.history"}).table)
	assert.Equal(t, "migrations", New(nil, Options{}).dir)
}

func TestPending(t *testing.T) {
	files := []Migration{
		migration("001_a.sql", "SELECT 1;"),
		migration("002_b.sql", "SELECT 2;"),
		migration("003_c.sql", "SELECT 3;"),
	}

	t.Run("skips applied", func(t *testing.T) {
		todo, err := pending(files, []MigrationRecord{{MigrationName: "001_a.sql", Status: StatusSuccess}})
		require.NoError(t, err)
		require.Len(t, todo, 2)
		assert.Equal(t, "002_b.sql", todo[0].Name)
		assert.Equal(t, "003_c.sql", todo[1].Name)
	})

	t.Run("unchanged failure blocks", func(t *testing.T) {
		_, err := pending(files, []MigrationRecord{
			{MigrationName: "002_b.sql", Status: StatusFailed, ErrorMessage: "syntax error", Checksum: files[1].Checksum},
		})
		require.Error(t, err)
		assert.True(t, errs.IsInvalidInput(err))
		assert.Contains(t, err.Error(), "002_b.sql: syntax error")
	})

	t.Run("fixed failure is retried", func(t *testing.T) {
		todo, err := pending(files, []MigrationRecord{
			{MigrationName: "001_a.sql", Status: StatusSuccess},
			{MigrationName: "002_b.sql", Status: StatusFailed, Checksum: "stale"},
		})
		require.NoError(t, err)
		require.Len(t, todo, 2)
		assert.Equal(t, "002_b.sql", todo[0].Name)
	})
}

func TestStatus(t *testing.T) {
	files := []Migration{
		migration("001_a.sql", "SELECT 1;"),
		migration("002_b.sql", "SELECT 2;"),
		migration("003_c.sql", "SELECT 3;"),
	}
	history := []MigrationRecord{
		{MigrationName: "001_a.sql", Status: StatusSuccess, Checksum: files[0].Checksum},
		{MigrationName: "002_b.sql", Status: StatusSuccess, Checksum: "edited since"},
		{MigrationName: "003_c.sql", Status: StatusFailed, ErrorMessage: "boom"},
	}

	st := status(files, history)
	assert.Equal(t, []string{"001_a.sql", "002_b.sql"}, st.Applied)
	assert.Equal(t, []string{"003_c.sql"}, st.Pending)
	assert.Equal(t, []string{"002_b.sql"}, st.Modified)
	require.Len(t, st.Failed, 1)
	assert.Equal(t, "boom", st.Failed[0].ErrorMessage)
}

func TestTablesAffected(t *testing.T) {
	got := tablesAffected([]string{
		`CREATE TABLE "users" ("id" uuid NOT NULL);`,
		`ALTER TABLE "orders" ADD CONSTRAINT "FK_orders_user_id" FOREIGN KEY ("user_id") REFERENCES "users" ("id") ON DELETE CASCADE;`,
		`CREATE UNIQUE INDEX "IDX_x" ON "audit"."log" ("at");`,
		`DROP TABLE IF EXISTS legacy;`,
		`ALTER TABLE "users" ADD COLUMN "name" text;`,
	})
	assert.Equal(t, []string{"users", "orders", "audit.log", "legacy"}, got)
}

func TestLoadAndMigrationFiles(t *testing.T) {
	dir := t.TempDir()
	path, err := generator.WriteMigrationFile(dir, "init", []string{`CREATE TABLE "a" ("id" int);`}, []string{`DROP TABLE IF EXISTS "a";`})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("notes"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested.sql"), 0755))

	files, err := migrationFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Base(path)}, files)

	r := New(nil, Options{Dir: dir})
	m, err := r.load(files[0])
	require.NoError(t, err)
	assert.Equal(t, []string{`CREATE TABLE "a" ("id" int);`}, m.Up)
	assert.Equal(t, []string{`DROP TABLE IF EXISTS "a";`}, m.Down)
	assert.Equal(t, calculateChecksum(m.Up), m.Checksum)

	missing, err := migrationFiles(filepath.Join(dir, "absent"))
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestLoad_RejectsFileWithoutSections(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_raw.sql"), []byte("SELECT 1;"), 0644))

	_, err := New(nil, Options{Dir: dir}).load("001_raw.sql")
	require.Error(t, err)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestRollback_RequiresPositiveSteps(t *testing.T) {
	_, err := New(nil, Options{}).Rollback(context.Background(), 0)
	assert.True(t, errs.IsInvalidInput(err))
}

func TestApplyStatements_NothingToDo(t *testing.T) {
	assert.NoError(t, ApplyStatements(context.Background(), nil, nil))
}
