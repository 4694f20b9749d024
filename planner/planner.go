// Package planner orders a change set into an executable migration plan.
package planner

import (
	"fmt"
	"slices"
	"sort"

	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/errs"
	"github.com/ridoystarlord/schemasync/schema"
)

type Plan struct {
	Database string
	Schema   string
	Steps    []diff.Operation
	// Deferred lists foreign keys moved out of CREATE TABLE (or out of a
	// DROP TABLE) to break a reference cycle.
	Deferred []string
	Warnings []string
}

func (p *Plan) Empty() bool {
	return len(p.Steps) == 0
}

// Describe returns one line per step.
func (p *Plan) Describe() []string {
	out := make([]string, len(p.Steps))
	for i, op := range p.Steps {
		out[i] = op.Describe()
	}
	return out
}

// Build orders the operations of cs so each one runs after everything it
// depends on. Foreign keys between tables created (or dropped) together are
// split out only when they form a cycle; a cycle that survives that is a
// planning error.
func Build(cs *diff.ChangeSet) (*Plan, error) {
	plan := &Plan{
		Database: cs.Database,
		Schema:   cs.Schema,
		Warnings: slices.Clone(cs.Warnings),
	}
	ops := slices.Clone(cs.Operations)

	order, cycle := sortOperations(ops, nil)
	if cycle != nil {
		var final map[int]bool
		ops, final, plan.Deferred = deferForeignKeys(ops)
		if len(plan.Deferred) > 0 {
			order, cycle = sortOperations(ops, final)
		}
		if cycle != nil {
			return nil, errs.Planning("dependency cycle cannot be broken by deferring foreign keys", describeCycle(ops, cycle))
		}
	}

	plan.Steps = make([]diff.Operation, len(order))
	for i, n := range order {
		plan.Steps[i] = ops[n]
	}
	return plan, nil
}

func sortOperations(ops []diff.Operation, final map[int]bool) ([]int, []int) {
	deps := dependencies(ops, final)
	rank := func(n int) int {
		if final[n] {
			return len(ops)*10 + n
		}
		return phase(ops[n])*len(ops) + n
	}

	seed := make([]int, len(ops))
	for i := range seed {
		seed[i] = i
	}
	byRank := func(s []int) {
		sort.SliceStable(s, func(a, b int) bool { return rank(s[a]) < rank(s[b]) })
	}
	byRank(seed)
	for n := range deps {
		byRank(deps[n])
	}
	return topologicalSort(seed, deps)
}

// deferForeignKeys moves foreign keys between tables created in this plan
// into separate ADD CONSTRAINT steps that run after every table exists, and
// foreign keys between dropped tables into DROP CONSTRAINT steps that run
// before any of them is dropped. Self references stay inline.
func deferForeignKeys(ops []diff.Operation) ([]diff.Operation, map[int]bool, []string) {
	created, dropped := map[string]bool{}, map[string]bool{}
	for _, op := range ops {
		switch op.Type {
		case diff.CreateTable:
			created[op.TableName] = true
		case diff.DropTable:
			dropped[op.TableName] = true
		}
	}

	out := slices.Clone(ops)
	final := map[int]bool{}
	var deferred []string
	for i, op := range ops {
		var peers map[string]bool
		var split diff.OperationType
		switch op.Type {
		case diff.CreateTable:
			peers, split = created, diff.AddConstraint
		case diff.DropTable:
			peers, split = dropped, diff.DropConstraint
		default:
			continue
		}

		table := *op.Table
		table.Constraints = nil
		for _, c := range op.Table.Constraints {
			fk, ok := c.(*schema.ForeignKeyConstraint)
			if !ok || fk.ReferenceTable == op.TableName || !peers[fk.ReferenceTable] {
				table.Constraints = append(table.Constraints, c)
				continue
			}
			if split == diff.AddConstraint {
				final[len(out)] = true
			}
			out = append(out, diff.Operation{Type: split, Schema: op.Schema, TableName: op.TableName, Constraint: c})
			deferred = append(deferred, schema.Qualify(op.Schema, op.TableName)+"#"+c.ConstraintName())
		}
		out[i].Table = &table
	}
	return out, final, deferred
}

// describeCycle renders a cycle in execution order, each step having to run
// before the next.
func describeCycle(ops []diff.Operation, cycle []int) []string {
	out := make([]string, 0, len(cycle))
	for i := len(cycle) - 1; i >= 0; i-- {
		out = append(out, fmt.Sprintf("%s [%s]", ops[cycle[i]].Describe(), ops[cycle[i]].Entity()))
	}
	return out
}
