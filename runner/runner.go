// Package runner executes generated DDL and keeps the migration history.
package runner

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/ridoystarlord/schemasync/database"
	"github.com/ridoystarlord/schemasync/errs"
	"github.com/ridoystarlord/schemasync/generator"
	"github.com/ridoystarlord/schemasync/logger"
)

const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// MigrationRecord is one row of the history table.
type MigrationRecord struct {
	ID            int
	MigrationName string
	ExecutedAt    time.Time
	ExecutionTime time.Duration
	ExecutedBy    string
	Status        string
	ErrorMessage  string
	Checksum      string
	TableAffected string
}

// Migration is a migration file split into its sections.
type Migration struct {
	Name     string
	Up       []string
	Down     []string
	Checksum string
}

type Options struct {
	// Dir holds the migration files, migrations when empty.
	Dir string
	// Table is the history table, optionally schema qualified.
	Table string
}

type Runner struct {
	db    database.DB
	dir   string
	table string
}

func New(db database.DB, opts Options) *Runner {
	if opts.Dir == "" {
		opts.Dir = "migrations"
	}
	if opts.Table == "" {
		opts.Table = "schema_migrations"
	}
	return &Runner{db: db, dir: opts.Dir, table: pgx.Identifier(strings.Split(opts.Table, ".")).Sanitize()}
}

// ApplyStatements runs stmts as one unit: all of them commit or none do.
func ApplyStatements(ctx context.Context, db database.DB, stmts []string) error {
	if len(stmts) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return database.MapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := execAll(ctx, tx, stmts); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return database.MapError(err)
	}
	return nil
}

func execAll(ctx context.Context, tx pgx.Tx, stmts []string) error {
	log := logger.FromContext(ctx)
	for i, stmt := range stmts {
		log.Debug(stmt)
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return errs.Wrap(errs.KindOf(database.MapError(err)), fmt.Sprintf("statement %d failed: %s", i+1, stmt), err)
		}
	}
	return nil
}

func (r *Runner) ensureMigrationsTable(ctx context.Context) error {
	_, err := r.db.Exec(ctx, fmt.Sprintf(`
	CREATE TABLE IF NOT EXISTS %s (
		id SERIAL PRIMARY KEY,
		filename TEXT NOT NULL UNIQUE,
		applied_at TIMESTAMPTZ DEFAULT now(),
		execution_time INTERVAL,
		executed_by TEXT,
		status TEXT DEFAULT 'success',
		error_message TEXT,
		checksum TEXT,
		table_affected TEXT
	)`, r.table))
	if err != nil {
		return errs.Wrap(errs.KindOf(database.MapError(err)), "failed to create migrations table", err)
	}
	return nil
}

func getCurrentUser() string {
	currentUser, err := user.Current()
	if err != nil {
		return "unknown"
	}
	return currentUser.Username
}

func calculateChecksum(stmts []string) string {
	hash := sha256.Sum256([]byte(strings.Join(stmts, "\n")))
	return fmt.Sprintf("%x", hash)
}

// migrationFiles lists the .sql files of dir in name order, which is
// timestamp order for generated files.
func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "read migrations dir", err)
	}

	var filenames []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			filenames = append(filenames, e.Name())
		}
	}
	sort.Strings(filenames)
	return filenames, nil
}

func (r *Runner) load(name string) (Migration, error) {
	content, err := os.ReadFile(filepath.Join(r.dir, name))
	if err != nil {
		return Migration{}, errs.Wrap(errs.ErrKindInvalidInput, "read file "+name, err)
	}
	up, down, err := generator.ParseMigration(string(content))
	if err != nil {
		return Migration{}, errs.Wrap(errs.ErrKindInvalidInput, "migration file "+name, err)
	}
	return Migration{Name: name, Up: up, Down: down, Checksum: calculateChecksum(up)}, nil
}

func (r *Runner) records(ctx context.Context, where string, args ...any) ([]MigrationRecord, error) {
	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT id, filename, applied_at,
		       COALESCE((EXTRACT(EPOCH FROM execution_time) * 1000000)::bigint, 0),
		       COALESCE(executed_by, ''), COALESCE(status, ''), COALESCE(error_message, ''),
		       COALESCE(checksum, ''), COALESCE(table_affected, '')
		FROM %s %s`, r.table, where), args...)
	if err != nil {
		return nil, database.MapError(err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (MigrationRecord, error) {
		var rec MigrationRecord
		var micros int64
		err := row.Scan(&rec.ID, &rec.MigrationName, &rec.ExecutedAt, &micros,
			&rec.ExecutedBy, &rec.Status, &rec.ErrorMessage, &rec.Checksum, &rec.TableAffected)
		rec.ExecutionTime = time.Duration(micros) * time.Microsecond
		return rec, err
	})
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *Runner) record(ctx context.Context, q execer, m Migration, elapsed time.Duration, status, errMsg string) error {
	_, err := q.Exec(ctx, fmt.Sprintf(`
		INSERT INTO %s (filename, execution_time, executed_by, status, error_message, checksum, table_affected)
		VALUES ($1, make_interval(secs => $2), $3, $4, NULLIF($5, ''), $6, $7)
		ON CONFLICT (filename) DO UPDATE SET
			applied_at = now(),
			execution_time = EXCLUDED.execution_time,
			executed_by = EXCLUDED.executed_by,
			status = EXCLUDED.status,
			error_message = EXCLUDED.error_message,
			checksum = EXCLUDED.checksum,
			table_affected = EXCLUDED.table_affected`, r.table),
		m.Name, elapsed.Seconds(), getCurrentUser(), status, errMsg, m.Checksum, strings.Join(tablesAffected(m.Up), ","))
	if err != nil {
		return errs.Wrap(errs.KindOf(database.MapError(err)), "recording migration "+m.Name, err)
	}
	return nil
}

// applyMigration runs the up section and its history row in one
// transaction. A failure is recorded afterwards, outside the rolled back
// transaction, so status can report it.
func (r *Runner) applyMigration(ctx context.Context, m Migration) error {
	log := logger.FromContext(ctx).With().Str("migration", m.Name).Logger()
	start := time.Now()

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := execAll(ctx, tx, m.Up); err != nil {
			return err
		}
		return r.record(ctx, tx, m, time.Since(start), StatusSuccess, "")
	})
	elapsed := time.Since(start)
	if err != nil {
		log.ErrorErr("migration failed", err)
		if recErr := r.record(ctx, r.db, m, elapsed, StatusFailed, err.Error()); recErr != nil {
			log.ErrorErr("recording failed migration", recErr)
		}
		return fmt.Errorf("executing migration %s: %w", m.Name, err)
	}
	log.Duration("migration applied", elapsed)
	return nil
}

func (r *Runner) rollbackMigration(ctx context.Context, m Migration) error {
	log := logger.FromContext(ctx).With().Str("migration", m.Name).Logger()
	start := time.Now()

	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if err := execAll(ctx, tx, m.Down); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE filename = $1`, r.table), m.Name)
		return database.MapError(err)
	})
	if err != nil {
		log.ErrorErr("rollback failed", err)
		return fmt.Errorf("executing rollback for %s: %w", m.Name, err)
	}
	log.Duration("migration rolled back", time.Since(start))
	return nil
}

func (r *Runner) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return database.MapError(err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	return database.MapError(tx.Commit(ctx))
}

// Pending returns the migrations that still have to run, oldest first. A
// failed migration blocks everything until its file is changed.
func (r *Runner) Pending(ctx context.Context) ([]Migration, error) {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	history, err := r.records(ctx, "")
	if err != nil {
		return nil, err
	}
	files, err := migrationFiles(r.dir)
	if err != nil {
		return nil, err
	}

	var loaded []Migration
	for _, f := range files {
		m, err := r.load(f)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, m)
	}
	return pending(loaded, history)
}

func pending(files []Migration, history []MigrationRecord) ([]Migration, error) {
	byName := map[string]MigrationRecord{}
	for _, rec := range history {
		byName[rec.MigrationName] = rec
	}

	var blocked []string
	var todo []Migration
	for _, m := range files {
		rec, seen := byName[m.Name]
		switch {
		case !seen:
		case rec.Status == StatusSuccess:
			continue
		case rec.Status == StatusFailed && rec.Checksum == m.Checksum:
			blocked = append(blocked, fmt.Sprintf("%s: %s", m.Name, rec.ErrorMessage))
		}
		todo = append(todo, m)
	}
	if len(blocked) > 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput,
			"failed migrations must be fixed before migrating again:\n  %s", strings.Join(blocked, "\n  "))
	}
	return todo, nil
}

// Migrate applies every pending migration in order and returns the names
// applied. It stops at the first failure.
func (r *Runner) Migrate(ctx context.Context) ([]string, error) {
	todo, err := r.Pending(ctx)
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range todo {
		if err := r.applyMigration(ctx, m); err != nil {
			return applied, err
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

// Rollback reverts the steps most recently applied migrations using their
// down sections and returns the names reverted, newest first.
func (r *Runner) Rollback(ctx context.Context, steps int) ([]string, error) {
	if steps <= 0 {
		return nil, errs.Newf(errs.ErrKindInvalidInput, "steps must be positive, got %d", steps)
	}
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	applied, err := r.records(ctx, "WHERE status = $1 ORDER BY applied_at DESC, id DESC LIMIT $2", StatusSuccess, steps)
	if err != nil {
		return nil, err
	}

	var reverted []string
	for _, rec := range applied {
		m, err := r.load(rec.MigrationName)
		if err != nil {
			return reverted, err
		}
		if err := r.rollbackMigration(ctx, m); err != nil {
			return reverted, err
		}
		reverted = append(reverted, m.Name)
	}
	return reverted, nil
}

type Status struct {
	Applied []string
	Pending []string
	Failed  []MigrationRecord
	// Modified lists applied migrations whose file no longer matches the
	// recorded checksum.
	Modified []string
}

func (r *Runner) Status(ctx context.Context) (*Status, error) {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}
	history, err := r.records(ctx, "ORDER BY filename")
	if err != nil {
		return nil, err
	}
	files, err := migrationFiles(r.dir)
	if err != nil {
		return nil, err
	}

	var loaded []Migration
	for _, f := range files {
		m, err := r.load(f)
		if err != nil {
			return nil, err
		}
		loaded = append(loaded, m)
	}
	return status(loaded, history), nil
}

func status(files []Migration, history []MigrationRecord) *Status {
	st := &Status{}
	byName := map[string]MigrationRecord{}
	for _, rec := range history {
		byName[rec.MigrationName] = rec
		switch rec.Status {
		case StatusSuccess:
			st.Applied = append(st.Applied, rec.MigrationName)
		case StatusFailed:
			st.Failed = append(st.Failed, rec)
		}
	}
	for _, m := range files {
		rec, ok := byName[m.Name]
		switch {
		case !ok || rec.Status != StatusSuccess:
			st.Pending = append(st.Pending, m.Name)
		case rec.Checksum != "" && rec.Checksum != m.Checksum:
			st.Modified = append(st.Modified, m.Name)
		}
	}
	return st
}

// History returns history rows, newest first. tableFilter matches the
// tables a migration touched; limit <= 0 returns everything.
func (r *Runner) History(ctx context.Context, limit int, tableFilter string) ([]MigrationRecord, error) {
	if err := r.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	var where string
	var args []any
	if tableFilter != "" {
		args = append(args, "%"+tableFilter+"%")
		where = fmt.Sprintf("WHERE table_affected ILIKE $%d ", len(args))
	}
	where += "ORDER BY applied_at DESC, id DESC"
	if limit > 0 {
		args = append(args, limit)
		where += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	return r.records(ctx, where, args...)
}

// HistoryTableExists reports whether the history table has been created.
func (r *Runner) HistoryTableExists(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT to_regclass($1) IS NOT NULL`, r.table).Scan(&exists); err != nil {
		return false, database.MapError(err)
	}
	return exists, nil
}

var affectedTable = regexp.MustCompile(`(?i)\b(?:TABLE|INDEX\s+(?:"[^"]*"|[\w$]+)\s+ON)\s+(?:IF\s+(?:NOT\s+)?EXISTS\s+)?((?:"(?:[^"]|"")+"|[A-Za-z_][\w$]*)(?:\.(?:"(?:[^"]|"")+"|[A-Za-z_][\w$]*))?)`)

// tablesAffected extracts the table names statements operate on, in order
// of first appearance.
func tablesAffected(stmts []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, stmt := range stmts {
		for _, m := range affectedTable.FindAllStringSubmatch(stmt, -1) {
			name := strings.ReplaceAll(m[1], `"`, "")
			if !seen[name] {
				seen[name] = true
				out = append(out, name)
			}
		}
	}
	return out
}
