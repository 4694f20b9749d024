// Package pipeline wires the stages together: normalize the declaration,
// introspect the database, diff, plan and render. It runs them once, in
// order, and stops at the first fatal error.
package pipeline

import (
	"context"
	"time"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/generator"
	"github.com/ridoystarlord/schemasync/logger"
	"github.com/ridoystarlord/schemasync/normalize"
	"github.com/ridoystarlord/schemasync/planner"
	"github.com/ridoystarlord/schemasync/schema"
)

// Introspector reads the current state of the database.
type Introspector interface {
	Introspect(ctx context.Context) (*schema.DatabaseSchema, error)
}

type Options struct {
	Normalize normalize.Options
}

type Result struct {
	Current    *schema.DatabaseSchema
	Target     *schema.DatabaseSchema
	Changes    *diff.ChangeSet
	Plan       *planner.Plan
	Statements []string
	Warnings   []string
}

// Empty reports whether the database already matches the declaration.
func (r *Result) Empty() bool {
	return r.Plan == nil || r.Plan.Empty()
}

// Compute diffs current against target and renders the ordered statements
// that bring current to target.
func Compute(current, target *schema.DatabaseSchema) (*Result, error) {
	if current == nil {
		current = &schema.DatabaseSchema{}
	}
	if target == nil {
		target = &schema.DatabaseSchema{}
	}

	changes, err := diff.Compare(current, target)
	if err != nil {
		return nil, err
	}
	plan, err := planner.Build(changes)
	if err != nil {
		return nil, err
	}

	// objects outside public are always written schema qualified
	emitter := generator.NewEmitter("public")
	emitter.Database = firstNonEmpty(target.DatabaseName, current.DatabaseName)
	statements, err := emitter.Render(plan)
	if err != nil {
		return nil, err
	}

	var warnings []string
	warnings = append(warnings, target.Warnings...)
	warnings = append(warnings, current.Warnings...)
	warnings = append(warnings, plan.Warnings...)

	return &Result{
		Current:    current,
		Target:     target,
		Changes:    changes,
		Plan:       plan,
		Statements: statements,
		Warnings:   warnings,
	}, nil
}

// Run executes the whole pipeline for tree against the database behind in.
func Run(ctx context.Context, tree definition.Tree, in Introspector, opts Options) (*Result, error) {
	log := logger.FromContext(ctx)

	target, err := normalize.Normalize(tree, opts.Normalize)
	if err != nil {
		return nil, err
	}
	log.Debugf("declaration normalized: %d tables, %d enums", len(target.Tables), len(target.Enums))

	start := time.Now()
	current, err := in.Introspect(ctx)
	if err != nil {
		return nil, err
	}
	log.Duration("database introspected", time.Since(start))

	res, err := Compute(current, target)
	if err != nil {
		return nil, err
	}
	for _, w := range res.Warnings {
		log.Warn(w)
	}
	log.With().Int("operations", len(res.Plan.Steps)).Int("statements", len(res.Statements)).Logger().
		Info("migration planned")
	return res, nil
}

// Reverse plans the down migration of res: the statements that take the
// target state back to the state res was computed from.
func Reverse(res *Result) (*Result, error) {
	return Compute(res.Target, res.Current)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
