// Package diff classifies the differences between two schema snapshots into
// create, alter and drop operations.
package diff

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ridoystarlord/schemasync/errs"
	"github.com/ridoystarlord/schemasync/schema"
)

// Compare computes the operations that turn current into target. A nil
// snapshot is treated as empty. Entities with Synchronize=false on either
// side are skipped entirely and reported as warnings.
func Compare(current, target *schema.DatabaseSchema) (*ChangeSet, error) {
	if current == nil {
		current = &schema.DatabaseSchema{}
	}
	if target == nil {
		target = &schema.DatabaseSchema{}
	}

	c := &comparer{
		current: current,
		target:  target,
		out: &ChangeSet{
			Database: firstNonEmpty(target.DatabaseName, current.DatabaseName),
			Schema:   firstNonEmpty(target.SchemaName, current.SchemaName),
		},
		recreatedFunctions: map[string]bool{},
	}

	c.extensions()
	c.functions()
	c.parameters()
	if err := c.tables(); err != nil {
		return nil, err
	}
	// Enums last: recreating one needs to know which retained columns use it.
	c.enums()
	return c.out, nil
}

type comparer struct {
	current, target    *schema.DatabaseSchema
	out                *ChangeSet
	recreatedFunctions map[string]bool
}

func (c *comparer) emit(op Operation) {
	if op.Schema == "" {
		op.Schema = c.out.Schema
	}
	c.out.Operations = append(c.out.Operations, op)
}

func (c *comparer) skip(kind, entity string) {
	c.out.Warnings = append(c.out.Warnings, fmt.Sprintf("skipped %s %s (synchronize=false)", kind, entity))
}

// excluded reports whether either side opts out. Both sides are checked so
// that an unmanaged object can never show up as a drop or a create.
func excluded(sides ...bool) bool {
	for _, synced := range sides {
		if !synced {
			return true
		}
	}
	return false
}

func (c *comparer) extensions() {
	for i := range c.target.Extensions {
		want := &c.target.Extensions[i]
		have := c.current.Extension(want.Name)
		switch {
		case excluded(want.Synchronize) || have != nil && excluded(have.Synchronize):
			c.skip("extension", want.Name)
		case have == nil:
			c.emit(Operation{Type: CreateExtension, Extension: want})
		case want.Version != "" && want.Version != have.Version:
			c.emit(Operation{Type: AlterExtension, Extension: want})
		}
	}
	for i := range c.current.Extensions {
		have := &c.current.Extensions[i]
		if c.target.Extension(have.Name) != nil {
			continue
		}
		if excluded(have.Synchronize) {
			c.skip("extension", have.Name)
			continue
		}
		c.emit(Operation{Type: DropExtension, Extension: have})
	}
}

func (c *comparer) functions() {
	for i := range c.target.Functions {
		want := &c.target.Functions[i]
		have := c.current.Function(want.Name)
		switch {
		case excluded(want.Synchronize) || have != nil && excluded(have.Synchronize):
			c.skip("function", want.Name)
		case have == nil:
			c.emit(Operation{Type: CreateFunction, Function: want})
		case !sameSignature(*have, *want):
			c.recreatedFunctions[want.Name] = true
			c.emit(Operation{Type: DropFunction, Function: have})
			c.emit(Operation{Type: CreateFunction, Function: want})
		case !strings.EqualFold(have.Language, want.Language) || strings.TrimSpace(have.Body) != strings.TrimSpace(want.Body):
			c.emit(Operation{Type: ReplaceFunction, Function: want})
		}
	}
	for i := range c.current.Functions {
		have := &c.current.Functions[i]
		if c.target.Function(have.Name) != nil {
			continue
		}
		if excluded(have.Synchronize) {
			c.skip("function", have.Name)
			continue
		}
		c.emit(Operation{Type: DropFunction, Function: have})
	}
}

func sameSignature(a, b schema.Function) bool {
	norm := func(s string) string { return strings.ToLower(strings.Join(strings.Fields(s), " ")) }
	return norm(a.Arguments) == norm(b.Arguments) && norm(a.Returns) == norm(b.Returns)
}

func (c *comparer) parameters() {
	for i := range c.target.Parameters {
		want := &c.target.Parameters[i]
		have := c.current.Parameter(want.Name)
		switch {
		case excluded(want.Synchronize) || have != nil && excluded(have.Synchronize):
			c.skip("parameter", want.Name)
		case have == nil || have.Value != want.Value:
			c.emit(Operation{Type: SetParameter, Parameter: want})
		}
	}
	for i := range c.current.Parameters {
		have := &c.current.Parameters[i]
		if c.target.Parameter(have.Name) != nil {
			continue
		}
		if excluded(have.Synchronize) {
			c.skip("parameter", have.Name)
			continue
		}
		c.emit(Operation{Type: ResetParameter, Parameter: have})
	}
}

func (c *comparer) enums() {
	for i := range c.target.Enums {
		want := &c.target.Enums[i]
		have := c.current.Enum(want.Name)
		switch {
		case excluded(want.Synchronize) || have != nil && excluded(have.Synchronize):
			c.skip("enum", schema.Qualify(want.Schema, want.Name))
		case have == nil:
			c.emit(Operation{Type: CreateEnum, Enum: want})
		case slices.Equal(have.Values, want.Values):
		case len(have.Values) < len(want.Values) && slices.Equal(have.Values, want.Values[:len(have.Values)]):
			for _, v := range want.Values[len(have.Values):] {
				c.emit(Operation{Type: AddEnumValue, Enum: want, EnumValue: v})
			}
		default:
			c.recreateEnum(have, want)
		}
	}
	for i := range c.current.Enums {
		have := &c.current.Enums[i]
		if c.target.Enum(have.Name) != nil {
			continue
		}
		if excluded(have.Synchronize) {
			c.skip("enum", schema.Qualify(have.Schema, have.Name))
			continue
		}
		c.emit(Operation{Type: DropEnum, Enum: have})
	}
}

// recreateEnum drops and recreates an enum whose values were removed or
// reordered. Columns that keep using it are detached to text around the
// recreation and converted back afterwards.
func (c *comparer) recreateEnum(have, want *schema.Enum) {
	var detach, reattach []Operation
	for _, t := range c.current.Tables {
		wantTable := c.target.Table(t.Name)
		for _, col := range t.Columns {
			if col.Enum != have.Name {
				continue
			}
			if wantTable == nil && t.Synchronize {
				// dropped with its table
				continue
			}
			var wantCol *schema.Column
			if wantTable != nil {
				wantCol = wantTable.Column(col.Name)
			}
			if excluded(t.Synchronize, col.Synchronize) || wantTable != nil && excluded(wantTable.Synchronize) || wantCol != nil && excluded(wantCol.Synchronize) {
				c.out.Warnings = append(c.out.Warnings, fmt.Sprintf("enum %s is recreated but unmanaged column %s still uses it",
					want.Name, schema.Qualify(t.Schema, t.Name, col.Name)))
				continue
			}
			if wantCol == nil || wantCol.Enum != want.Name {
				// dropped or retyped by the table diff
				continue
			}
			old := col
			text := col
			text.Type, text.Enum, text.Default = "text", "", nil
			target := *wantCol
			detach = append(detach, Operation{Type: AlterColumn, Schema: t.Schema, TableName: t.Name, OldColumn: &old, Column: &text})
			textCopy := text
			reattach = append(reattach, Operation{Type: AlterColumn, Schema: t.Schema, TableName: t.Name, OldColumn: &textCopy, Column: &target})
		}
	}

	for _, op := range detach {
		c.emit(op)
	}
	c.emit(Operation{Type: DropEnum, Enum: have})
	c.emit(Operation{Type: CreateEnum, Enum: want})
	for _, op := range reattach {
		c.emit(op)
	}
}

func (c *comparer) tables() error {
	for i := range c.target.Tables {
		want := &c.target.Tables[i]
		have := c.current.Table(want.Name)
		entity := schema.Qualify(want.Schema, want.Name)
		switch {
		case excluded(want.Synchronize) || have != nil && excluded(have.Synchronize):
			c.skip("table", entity)
		case have == nil:
			if err := nameClash(want); err != nil {
				return err
			}
			c.emit(Operation{Type: CreateTable, Schema: want.Schema, TableName: want.Name, Table: c.syncedCopy(want)})
		default:
			if err := c.table(have, want); err != nil {
				return err
			}
		}
	}
	for i := range c.current.Tables {
		have := &c.current.Tables[i]
		if c.target.Table(have.Name) != nil {
			continue
		}
		if excluded(have.Synchronize) {
			c.skip("table", schema.Qualify(have.Schema, have.Name))
			continue
		}
		c.emit(Operation{Type: DropTable, Schema: have.Schema, TableName: have.Name, Table: have})
	}
	return nil
}

// syncedCopy returns t without children that opt out of synchronization.
func (c *comparer) syncedCopy(t *schema.Table) *schema.Table {
	out := *t
	out.Columns, out.Constraints, out.Indexes, out.Triggers = nil, nil, nil, nil
	entity := schema.Qualify(t.Schema, t.Name)
	for _, col := range t.Columns {
		if col.Synchronize {
			out.Columns = append(out.Columns, col)
		} else {
			c.skip("column", schema.Qualify(t.Schema, t.Name, col.Name))
		}
	}
	for _, con := range t.Constraints {
		if con.Synchronized() {
			out.Constraints = append(out.Constraints, con)
		} else {
			c.skip("constraint", entity+"#"+con.ConstraintName())
		}
	}
	for _, idx := range t.Indexes {
		if idx.Synchronize {
			out.Indexes = append(out.Indexes, idx)
		} else {
			c.skip("index", entity+"#"+idx.Name)
		}
	}
	for _, tr := range t.Triggers {
		if tr.Synchronize {
			out.Triggers = append(out.Triggers, tr)
		} else {
			c.skip("trigger", entity+"#"+tr.Name)
		}
	}
	return &out
}

// nameClash fails when one name is used by both an index and a constraint.
func nameClash(tables ...*schema.Table) error {
	indexes := map[string]bool{}
	for _, t := range tables {
		for _, idx := range t.Indexes {
			indexes[idx.Name] = true
		}
	}
	for _, t := range tables {
		for _, con := range t.Constraints {
			if indexes[con.ConstraintName()] {
				return errs.DiffInconsistency(t.QualifiedName()+"#"+con.ConstraintName(),
					"name resolves to both an index and a %s constraint", kindLabel(con.Kind()))
			}
		}
	}
	return nil
}

func (c *comparer) table(have, want *schema.Table) error {
	if err := nameClash(have); err != nil {
		return err
	}
	if err := nameClash(want); err != nil {
		return err
	}
	if err := nameClash(have, want); err != nil {
		return err
	}

	entity := schema.Qualify(want.Schema, want.Name)
	op := func(o Operation) Operation {
		o.Schema, o.TableName = want.Schema, want.Name
		return o
	}

	// columns
	for i := range want.Columns {
		w := &want.Columns[i]
		h := have.Column(w.Name)
		switch {
		case excluded(w.Synchronize) || h != nil && excluded(h.Synchronize):
			c.skip("column", schema.Qualify(entity, w.Name))
		case h == nil:
			c.emit(op(Operation{Type: AddColumn, Column: w}))
		case columnsEqual(*h, *w):
		case h.Enum != "" && h.Enum == w.Enum && c.enumRecreated(w.Enum) && h.IsArray == w.IsArray:
			// handled by the enum detach and reattach
		case schema.StorageType(h.Type) == schema.StorageType(w.Type) && h.Type != w.Type && h.IsArray == w.IsArray:
			c.out.Warnings = append(c.out.Warnings, fmt.Sprintf(
				"column %s: converting between %s and %s is not done in place; drop and re-add the column to change it",
				schema.Qualify(entity, w.Name), h.Type, w.Type))
			rest := *w
			rest.Type, rest.Default = h.Type, h.Default
			if !columnsEqual(*h, rest) {
				c.emit(op(Operation{Type: AlterColumn, OldColumn: h, Column: &rest}))
			}
		default:
			c.emit(op(Operation{Type: AlterColumn, OldColumn: h, Column: w}))
		}
	}
	for i := range have.Columns {
		h := &have.Columns[i]
		if want.Column(h.Name) != nil {
			continue
		}
		if excluded(h.Synchronize) {
			c.skip("column", schema.Qualify(entity, h.Name))
			continue
		}
		c.emit(op(Operation{Type: DropColumn, Column: h}))
	}

	// constraints
	for _, w := range want.Constraints {
		h := have.Constraint(w.ConstraintName())
		switch {
		case excluded(w.Synchronized()) || h != nil && excluded(h.Synchronized()):
			c.skip("constraint", entity+"#"+w.ConstraintName())
		case h == nil:
			c.emit(op(Operation{Type: AddConstraint, Constraint: w}))
		case !ConstraintsEqual(h, w):
			c.emit(op(Operation{Type: DropConstraint, Constraint: h}))
			c.emit(op(Operation{Type: AddConstraint, Constraint: w}))
		}
	}
	for _, h := range have.Constraints {
		if want.Constraint(h.ConstraintName()) != nil {
			continue
		}
		if excluded(h.Synchronized()) {
			c.skip("constraint", entity+"#"+h.ConstraintName())
			continue
		}
		c.emit(op(Operation{Type: DropConstraint, Constraint: h}))
	}

	// indexes
	for i := range want.Indexes {
		w := &want.Indexes[i]
		h := have.Index(w.Name)
		switch {
		case excluded(w.Synchronize) || h != nil && excluded(h.Synchronize):
			c.skip("index", entity+"#"+w.Name)
		case h == nil:
			c.emit(op(Operation{Type: CreateIndex, Index: w}))
		case !indexesEqual(*h, *w):
			c.emit(op(Operation{Type: DropIndex, Index: h}))
			c.emit(op(Operation{Type: CreateIndex, Index: w}))
		}
	}
	for i := range have.Indexes {
		h := &have.Indexes[i]
		if want.Index(h.Name) != nil {
			continue
		}
		if excluded(h.Synchronize) {
			c.skip("index", entity+"#"+h.Name)
			continue
		}
		c.emit(op(Operation{Type: DropIndex, Index: h}))
	}

	// triggers
	for i := range want.Triggers {
		w := &want.Triggers[i]
		h := have.Trigger(w.Name)
		switch {
		case excluded(w.Synchronize) || h != nil && excluded(h.Synchronize):
			c.skip("trigger", entity+"#"+w.Name)
		case h == nil:
			c.emit(op(Operation{Type: CreateTrigger, Trigger: w}))
		case !triggersEqual(*h, *w) || c.recreatedFunctions[w.FunctionName]:
			c.emit(op(Operation{Type: DropTrigger, Trigger: h}))
			c.emit(op(Operation{Type: CreateTrigger, Trigger: w}))
		}
	}
	for i := range have.Triggers {
		h := &have.Triggers[i]
		if want.Trigger(h.Name) != nil {
			continue
		}
		if excluded(h.Synchronize) {
			c.skip("trigger", entity+"#"+h.Name)
			continue
		}
		c.emit(op(Operation{Type: DropTrigger, Trigger: h}))
	}
	return nil
}

// enumRecreated reports whether the enum is dropped and recreated by this diff.
func (c *comparer) enumRecreated(name string) bool {
	have, want := c.current.Enum(name), c.target.Enum(name)
	if have == nil || want == nil || !have.Synchronize || !want.Synchronize {
		return false
	}
	if len(have.Values) > len(want.Values) {
		return true
	}
	return !slices.Equal(have.Values, want.Values[:len(have.Values)])
}

func columnsEqual(a, b schema.Column) bool {
	return a.Type == b.Type &&
		a.IsArray == b.IsArray &&
		a.Enum == b.Enum &&
		a.Nullable == b.Nullable &&
		defaultsEqual(a.Default, b.Default)
}

func defaultsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return schema.ExpressionsEqual(*a, *b)
}

// ConstraintsEqual compares two constraints of any kind by their payload.
// Names are not compared; constraints are matched by name before this is called.
func ConstraintsEqual(a, b schema.Constraint) bool {
	if a.Kind() != b.Kind() {
		return false
	}
	return schema.MatchConstraint(a,
		func(x *schema.PrimaryKeyConstraint) bool {
			return slices.Equal(x.Columns, b.(*schema.PrimaryKeyConstraint).Columns)
		},
		func(x *schema.ForeignKeyConstraint) bool {
			y := b.(*schema.ForeignKeyConstraint)
			return slices.Equal(x.Columns, y.Columns) &&
				x.ReferenceTable == y.ReferenceTable &&
				slices.Equal(x.ReferenceColumns, y.ReferenceColumns) &&
				x.OnDelete == y.OnDelete &&
				x.OnUpdate == y.OnUpdate
		},
		func(x *schema.UniqueConstraint) bool {
			return slices.Equal(x.Columns, b.(*schema.UniqueConstraint).Columns)
		},
		func(x *schema.CheckConstraint) bool {
			return schema.ExpressionsEqual(x.Expression, b.(*schema.CheckConstraint).Expression)
		},
	)
}

func indexesEqual(a, b schema.Index) bool {
	using := func(s string) string {
		if s == "" {
			return "btree"
		}
		return strings.ToLower(s)
	}
	return slices.EqualFunc(a.Columns, b.Columns, indexMembersEqual) &&
		a.Unique == b.Unique &&
		using(a.Using) == using(b.Using) &&
		schema.ExpressionsEqual(a.Where, b.Where)
}

func triggersEqual(a, b schema.Trigger) bool {
	return a.Timing == b.Timing &&
		slices.Equal(a.Events, b.Events) &&
		a.ForEachRow == b.ForEachRow &&
		a.FunctionName == b.FunctionName
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// indexMembersEqual compares column members by name and expression members by
// meaning, since the catalog reprints expressions.
func indexMembersEqual(a, b string) bool {
	if a == b {
		return true
	}
	return schema.IsExpressionMember(a) && schema.IsExpressionMember(b) && schema.ExpressionsEqual(a, b)
}
