package planner

import (
	"slices"

	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/schema"
)

// phase seeds the sort so unrelated operations come out in a readable,
// stable order. Correctness comes from the dependency rules alone.
func phase(op diff.Operation) int {
	switch op.Type {
	case diff.DropTrigger:
		return 0
	case diff.DropConstraint, diff.DropIndex:
		return 1
	case diff.DropTable, diff.DropColumn:
		return 2
	case diff.DropFunction, diff.DropEnum, diff.ResetParameter:
		return 3
	case diff.CreateExtension, diff.AlterExtension, diff.CreateEnum, diff.AddEnumValue,
		diff.CreateFunction, diff.ReplaceFunction, diff.SetParameter:
		return 4
	case diff.CreateTable, diff.AddColumn, diff.AlterColumn:
		return 5
	case diff.AddConstraint, diff.CreateIndex:
		return 6
	case diff.CreateTrigger:
		return 7
	case diff.DropExtension:
		return 8
	}
	return 9
}

// dependencies maps each operation index to the indexes that must run first.
// final marks foreign keys deferred to the last pass.
func dependencies(ops []diff.Operation, final map[int]bool) map[int][]int {
	deps := make(map[int][]int, len(ops))
	for j, b := range ops {
		for i, a := range ops {
			if i == j {
				continue
			}
			if precedes(a, b) || i < j && sequenced(a, b) || final[j] && !final[i] && tableShaping(a) {
				deps[j] = append(deps[j], i)
			}
		}
	}
	return deps
}

func tableShaping(op diff.Operation) bool {
	return op.Type == diff.CreateTable || op.Type == diff.AddColumn || op.Type == diff.AlterColumn
}

// sequenced covers operations whose relative diff order is meaningful:
// enum values are appended in declaration order and an enum column is
// detached before it is reattached.
func sequenced(a, b diff.Operation) bool {
	switch {
	case a.Type == diff.AddEnumValue && b.Type == diff.AddEnumValue:
		return a.Enum.Name == b.Enum.Name
	case a.Type == diff.AlterColumn && b.Type == diff.AlterColumn:
		return a.TableName == b.TableName && a.Column.Name == b.Column.Name
	}
	return false
}

// precedes reports whether a must run before b.
func precedes(a, b diff.Operation) bool {
	// extensions bracket everything else
	switch {
	case a.Type == diff.CreateExtension || a.Type == diff.AlterExtension:
		return !isExtension(b) && !isDrop(b)
	case b.Type == diff.DropExtension:
		return !isExtension(a)
	}

	// enums before their users, users released before the enum goes
	switch a.Type {
	case diff.CreateEnum, diff.AddEnumValue:
		if usesEnum(b, a.Enum.Name) {
			return true
		}
	}
	if b.Type == diff.DropEnum && releasesEnum(a, b.Enum.Name) {
		return true
	}

	if sameNameRecreate(a, b) {
		return true
	}

	// functions before the triggers calling them
	switch a.Type {
	case diff.CreateFunction, diff.ReplaceFunction:
		if callsFunction(b, a.Function.Name, false) {
			return true
		}
	}
	if b.Type == diff.DropFunction && callsFunction(a, b.Function.Name, true) {
		return true
	}

	switch a.Type {
	case diff.CreateTable:
		return createTablePrecedes(a, b)
	case diff.AddColumn, diff.AlterColumn:
		return columnPrecedes(a.TableName, a.Column.Name, b)
	case diff.AddConstraint:
		if k := a.Constraint.Kind(); k == schema.KindPrimaryKey || k == schema.KindUnique {
			return referencesTable(b, a.TableName)
		}
	case diff.DropConstraint, diff.DropIndex, diff.DropTrigger:
		return dropChildPrecedes(a, b)
	case diff.DropTable:
		// a dropped table's foreign keys go with it
		if b.Type == diff.DropTable && b.TableName != a.TableName {
			return tableReferences(a.Table, b.TableName)
		}
		if b.Type == diff.DropConstraint {
			if k := b.Constraint.Kind(); k == schema.KindPrimaryKey || k == schema.KindUnique {
				return tableReferences(a.Table, b.TableName)
			}
		}
	}
	return false
}

func isExtension(op diff.Operation) bool {
	switch op.Type {
	case diff.CreateExtension, diff.AlterExtension, diff.DropExtension:
		return true
	}
	return false
}

func isDrop(op diff.Operation) bool {
	switch op.Type {
	case diff.DropTable, diff.DropColumn, diff.DropConstraint, diff.DropIndex, diff.DropTrigger,
		diff.DropEnum, diff.DropFunction, diff.DropExtension, diff.ResetParameter:
		return true
	}
	return false
}

func usesEnum(op diff.Operation, enum string) bool {
	switch op.Type {
	case diff.CreateTable:
		return slices.ContainsFunc(op.Table.Columns, func(c schema.Column) bool { return c.Enum == enum })
	case diff.AddColumn, diff.AlterColumn:
		return op.Column.Enum == enum
	}
	return false
}

func releasesEnum(op diff.Operation, enum string) bool {
	switch op.Type {
	case diff.DropTable:
		return slices.ContainsFunc(op.Table.Columns, func(c schema.Column) bool { return c.Enum == enum })
	case diff.DropColumn:
		return op.Column.Enum == enum
	case diff.AlterColumn:
		return op.OldColumn.Enum == enum && op.Column.Enum != enum
	}
	return false
}

// relationName reports the schema-wide relation name an operation frees or
// claims: indexes and the indexes backing primary key and unique constraints.
func relationName(op diff.Operation) (string, bool) {
	if op.Index != nil {
		return op.Index.Name, true
	}
	if op.Constraint != nil {
		if k := op.Constraint.Kind(); k == schema.KindPrimaryKey || k == schema.KindUnique {
			return op.Constraint.ConstraintName(), true
		}
	}
	return "", false
}

// sameNameRecreate orders a drop before the create that reuses its name.
func sameNameRecreate(a, b diff.Operation) bool {
	switch {
	case a.Type == diff.DropEnum && b.Type == diff.CreateEnum:
		return a.Enum.Name == b.Enum.Name
	case a.Type == diff.DropFunction && b.Type == diff.CreateFunction:
		return a.Function.Name == b.Function.Name
	case a.Type == diff.DropTrigger && b.Type == diff.CreateTrigger:
		return a.TableName == b.TableName && a.Trigger.Name == b.Trigger.Name
	case a.Type == diff.DropTable && b.Type == diff.CreateTable:
		return a.TableName == b.TableName
	}
	if (a.Type == diff.DropConstraint || a.Type == diff.DropIndex) && (b.Type == diff.AddConstraint || b.Type == diff.CreateIndex) {
		if a.Type == diff.DropConstraint && b.Type == diff.AddConstraint && a.TableName == b.TableName &&
			a.Constraint.ConstraintName() == b.Constraint.ConstraintName() {
			return true
		}
		an, aok := relationName(a)
		bn, bok := relationName(b)
		return aok && bok && an == bn
	}
	return false
}

// callsFunction reports whether op creates (or, for drops, removes) a trigger
// calling fn.
func callsFunction(op diff.Operation, fn string, dropping bool) bool {
	calls := func(t schema.Trigger) bool { return t.FunctionName == fn }
	if dropping {
		switch op.Type {
		case diff.DropTrigger:
			return calls(*op.Trigger)
		case diff.DropTable:
			return slices.ContainsFunc(op.Table.Triggers, calls)
		}
		return false
	}
	switch op.Type {
	case diff.CreateTrigger:
		return calls(*op.Trigger)
	case diff.CreateTable:
		return slices.ContainsFunc(op.Table.Triggers, calls)
	}
	return false
}

func createTablePrecedes(a, b diff.Operation) bool {
	switch b.Type {
	case diff.AddConstraint, diff.CreateIndex, diff.CreateTrigger, diff.AddColumn, diff.AlterColumn:
		if b.TableName == a.TableName {
			return true
		}
	}
	return referencesTable(b, a.TableName)
}

// referencesTable reports whether op adds a foreign key pointing at table.
func referencesTable(op diff.Operation, table string) bool {
	switch op.Type {
	case diff.AddConstraint:
		fk, ok := op.Constraint.(*schema.ForeignKeyConstraint)
		return ok && fk.ReferenceTable == table
	case diff.CreateTable:
		return op.TableName != table && tableReferences(op.Table, table)
	}
	return false
}

func tableReferences(t *schema.Table, target string) bool {
	for _, c := range t.Constraints {
		if fk, ok := c.(*schema.ForeignKeyConstraint); ok && fk.ReferenceTable == target && fk.TableName != target {
			return true
		}
	}
	return false
}

// columnPrecedes orders a new or changed column before the constraints and
// indexes built on it, including foreign keys elsewhere that reference it.
func columnPrecedes(table, column string, b diff.Operation) bool {
	switch b.Type {
	case diff.AddConstraint:
		if b.TableName == table && slices.Contains(b.Constraint.CoveredColumns(), column) {
			return true
		}
		fk, ok := b.Constraint.(*schema.ForeignKeyConstraint)
		return ok && fk.ReferenceTable == table && slices.Contains(fk.ReferenceColumns, column)
	case diff.CreateIndex:
		return b.TableName == table && slices.Contains(b.Index.ReferencedColumns(), column)
	case diff.CreateTable:
		for _, c := range b.Table.Constraints {
			if fk, ok := c.(*schema.ForeignKeyConstraint); ok && fk.ReferenceTable == table && slices.Contains(fk.ReferenceColumns, column) {
				return true
			}
		}
	}
	return false
}

// dropChildPrecedes orders the removal of a constraint, index or trigger
// before whatever it blocks: changes to covered or referenced columns, the
// drop of its own table, the drop of a referenced table or of the key a
// foreign key depends on.
func dropChildPrecedes(a, b diff.Operation) bool {
	var covered []string
	switch {
	case a.Constraint != nil:
		covered = a.Constraint.CoveredColumns()
	case a.Index != nil:
		covered = a.Index.ReferencedColumns()
	}
	fk, _ := a.Constraint.(*schema.ForeignKeyConstraint)

	switch b.Type {
	case diff.DropColumn, diff.AlterColumn:
		if b.TableName == a.TableName && slices.Contains(covered, b.Column.Name) {
			return true
		}
		return fk != nil && fk.ReferenceTable == b.TableName && slices.Contains(fk.ReferenceColumns, b.Column.Name)
	case diff.DropTable:
		return b.TableName == a.TableName || fk != nil && fk.ReferenceTable == b.TableName
	case diff.DropConstraint:
		k := b.Constraint.Kind()
		return fk != nil && fk.ReferenceTable == b.TableName && (k == schema.KindPrimaryKey || k == schema.KindUnique)
	}
	return false
}
