// Package introspect reads the live PostgreSQL catalog into a schema model
// shaped exactly like the normalizer's output, so the two can be diffed.
package introspect

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ridoystarlord/schemasync/database"
	"github.com/ridoystarlord/schemasync/errs"
	"github.com/ridoystarlord/schemasync/logger"
	"github.com/ridoystarlord/schemasync/schema"
)

type Options struct {
	// Schema is the namespace to read, public when empty.
	Schema string
	// Ignore lists tables that are never reported, e.g. tables owned by other tools.
	Ignore []string
	// MigrationsTable is the history table; it is always ignored.
	MigrationsTable string
}

type Introspector struct {
	db   database.DB
	opts Options
}

func New(db database.DB, opts Options) *Introspector {
	if opts.Schema == "" {
		opts.Schema = "public"
	}
	return &Introspector{db: db, opts: opts}
}

// Introspect reads the whole catalog inside one read-only repeatable-read
// transaction so every query sees the same snapshot. Any failure discards
// everything read so far.
func (i *Introspector) Introspect(ctx context.Context) (*schema.DatabaseSchema, error) {
	log := logger.FromContext(ctx).With().Str("schema", i.opts.Schema).Logger()
	start := time.Now()

	tx, err := i.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return nil, errs.Introspection("unable to open catalog snapshot", database.MapError(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	cat, err := readCatalog(ctx, tx, i.opts.Schema)
	if err != nil {
		return nil, err
	}

	s := assemble(cat, i.opts)
	log.Duration(fmt.Sprintf("introspected %d tables", len(s.Tables)), time.Since(start))
	return s, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func readCatalog(ctx context.Context, q queryer, namespace string) (catalog, error) {
	var cat catalog
	if err := q.QueryRow(ctx, databaseQuery).Scan(&cat.database); err != nil {
		return cat, errs.Introspection("reading database name", database.MapError(err))
	}

	steps := []struct {
		what string
		run  func() error
	}{
		{"extensions", func() (err error) {
			cat.extensions, err = collect[extensionRow](ctx, q, extensionsQuery)
			return err
		}},
		{"enums", func() (err error) {
			cat.enums, err = collect[enumRow](ctx, q, enumsQuery, namespace)
			return err
		}},
		{"functions", func() (err error) {
			cat.functions, err = collect[functionRow](ctx, q, functionsQuery, namespace)
			return err
		}},
		{"database parameters", func() (err error) {
			cat.parameters, err = collectScalar[string](ctx, q, parametersQuery)
			return err
		}},
		{"tables", func() (err error) {
			cat.tables, err = collectScalar[string](ctx, q, tablesQuery, namespace)
			return err
		}},
		{"columns", func() (err error) {
			cat.columns, err = collect[columnRow](ctx, q, columnsQuery, namespace)
			return err
		}},
		{"constraints", func() (err error) {
			cat.constraints, err = collect[constraintRow](ctx, q, constraintsQuery, namespace)
			return err
		}},
		{"indexes", func() (err error) {
			cat.indexes, err = collect[indexRow](ctx, q, indexesQuery, namespace)
			return err
		}},
		{"triggers", func() (err error) {
			cat.triggers, err = collect[triggerRow](ctx, q, triggersQuery, namespace)
			return err
		}},
	}
	for _, step := range steps {
		if err := step.run(); err != nil {
			return catalog{}, errs.Introspection("reading "+step.what, database.MapError(err))
		}
	}
	return cat, nil
}

func collect[T any](ctx context.Context, q queryer, sql string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByPos[T])
}

func collectScalar[T any](ctx context.Context, q queryer, sql string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[T])
}
