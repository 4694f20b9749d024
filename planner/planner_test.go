package planner

import (
	"slices"
	"testing"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/errs"
	"github.com/ridoystarlord/schemasync/normalize"
	"github.com/ridoystarlord/schemasync/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func declared(t *testing.T, build func(b *definition.Builder)) *schema.DatabaseSchema {
	t.Helper()
	b := definition.NewBuilder("app", "public")
	build(b)
	s, err := normalize.Normalize(b.Build(), normalize.Options{})
	require.NoError(t, err)
	return s
}

func plan(t *testing.T, current, target *schema.DatabaseSchema) *Plan {
	t.Helper()
	cs, err := diff.Compare(current, target)
	require.NoError(t, err)
	p, err := Build(cs)
	require.NoError(t, err)
	return p
}

func steps(p *Plan) []string {
	var out []string
	for _, op := range p.Steps {
		out = append(out, string(op.Type)+" "+op.Entity())
	}
	return out
}

func position(t *testing.T, p *Plan, step string) int {
	t.Helper()
	i := slices.Index(steps(p), step)
	require.GreaterOrEqual(t, i, 0, "missing step %q in %v", step, steps(p))
	return i
}

func fk(table, name, column, refTable string) *schema.ForeignKeyConstraint {
	return &schema.ForeignKeyConstraint{
		ConstraintBase:   schema.ConstraintBase{Name: name, TableName: table, Synchronize: true},
		Columns:          []string{column},
		ReferenceTable:   refTable,
		ReferenceColumns: []string{"id"},
		OnDelete:         schema.NoAction,
		OnUpdate:         schema.NoAction,
	}
}

func pk(table string) *schema.PrimaryKeyConstraint {
	return &schema.PrimaryKeyConstraint{
		ConstraintBase: schema.ConstraintBase{Name: "PK_" + table + "_id", TableName: table, Synchronize: true},
		Columns:        []string{"id"},
	}
}

func table(name string, constraints ...schema.Constraint) *schema.Table {
	return &schema.Table{
		Name: name, Schema: "public", Synchronize: true,
		Columns: []schema.Column{
			{Name: "id", TableName: name, Type: "integer", Primary: true, Synchronize: true},
			{Name: "other_id", TableName: name, Type: "integer", Nullable: true, Synchronize: true},
		},
		Constraints: append([]schema.Constraint{pk(name)}, constraints...),
	}
}

func TestBuild_SingleTableScenario(t *testing.T) {
	target := declared(t, func(b *definition.Builder) {
		b.Table("table1").Check("CHK_test", "1=1").Column("id", "uuid")
	})
	p := plan(t, &schema.DatabaseSchema{}, target)
	assert.Equal(t, []string{"CREATE_TABLE public.table1"}, steps(p))
	assert.Empty(t, p.Deferred)
}

func TestBuild_TableBeforeReferencingForeignKey(t *testing.T) {
	cs := &diff.ChangeSet{Schema: "public", Operations: []diff.Operation{
		{Type: diff.AddConstraint, Schema: "public", TableName: "orders", Constraint: fk("orders", "FK_orders_user_id", "other_id", "users")},
		{Type: diff.CreateTable, Schema: "public", TableName: "users", Table: table("users")},
	}}
	p, err := Build(cs)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE_TABLE public.users",
		"ADD_CONSTRAINT public.orders#FK_orders_user_id",
	}, steps(p))
}

func TestBuild_CreatedTablesInReferenceOrder(t *testing.T) {
	target := declared(t, func(b *definition.Builder) {
		orders := b.Table("orders")
		orders.Column("id", "serial").Primary()
		orders.Column("user_id", "integer").References("users", "id")
		b.Table("users").Column("id", "serial").Primary()
	})
	p := plan(t, nil, target)
	assert.Equal(t, []string{"CREATE_TABLE public.users", "CREATE_TABLE public.orders"}, steps(p))
	assert.Empty(t, p.Deferred)
	assert.NotNil(t, p.Steps[1].Table.Constraint("FK_orders_user_id"), "no cycle, so the key stays inline")
}

func TestBuild_DropsForeignKeyBeforeReferencedTable(t *testing.T) {
	current := declared(t, func(b *definition.Builder) {
		b.Table("users").Column("id", "serial").Primary()
		orders := b.Table("orders")
		orders.Column("id", "serial").Primary()
		orders.Column("user_id", "integer").References("users", "id")
	})
	target := declared(t, func(b *definition.Builder) {
		orders := b.Table("orders")
		orders.Column("id", "serial").Primary()
		orders.Column("user_id", "integer")
	})

	p := plan(t, current, target)
	assert.Equal(t, []string{
		"DROP_CONSTRAINT public.orders#FK_orders_user_id",
		"DROP_TABLE public.users",
	}, steps(p))
}

func TestBuild_DefersForeignKeysOnCreateCycle(t *testing.T) {
	a := table("a", fk("a", "FK_a_other_id", "other_id", "b"))
	b := table("b", fk("b", "FK_b_other_id", "other_id", "a"))
	cs := &diff.ChangeSet{Schema: "public", Operations: []diff.Operation{
		{Type: diff.CreateTable, Schema: "public", TableName: "a", Table: a},
		{Type: diff.CreateTable, Schema: "public", TableName: "b", Table: b},
	}}

	p, err := Build(cs)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"CREATE_TABLE public.a",
		"CREATE_TABLE public.b",
		"ADD_CONSTRAINT public.a#FK_a_other_id",
		"ADD_CONSTRAINT public.b#FK_b_other_id",
	}, steps(p))
	assert.Equal(t, []string{"public.a#FK_a_other_id", "public.b#FK_b_other_id"}, p.Deferred)

	for _, step := range p.Steps[:2] {
		for _, c := range step.Table.Constraints {
			assert.NotEqual(t, schema.KindForeignKey, c.Kind(), "cycle members are created without foreign keys")
		}
	}
	assert.Len(t, a.Constraints, 2, "input change set is not modified")
}

func TestBuild_SelfReferenceStaysInline(t *testing.T) {
	a := table("a", fk("a", "FK_a_parent", "other_id", "a"))
	p, err := Build(&diff.ChangeSet{Operations: []diff.Operation{
		{Type: diff.CreateTable, Schema: "public", TableName: "a", Table: a},
	}})
	require.NoError(t, err)
	require.Len(t, p.Steps, 1)
	assert.Empty(t, p.Deferred)
}

func TestBuild_DropCycle(t *testing.T) {
	cs := &diff.ChangeSet{Operations: []diff.Operation{
		{Type: diff.DropTable, Schema: "public", TableName: "a", Table: table("a", fk("a", "FK_a_other_id", "other_id", "b"))},
		{Type: diff.DropTable, Schema: "public", TableName: "b", Table: table("b", fk("b", "FK_b_other_id", "other_id", "a"))},
	}}

	p, err := Build(cs)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"DROP_CONSTRAINT public.a#FK_a_other_id",
		"DROP_CONSTRAINT public.b#FK_b_other_id",
		"DROP_TABLE public.a",
		"DROP_TABLE public.b",
	}, steps(p))
}

func TestBuild_UnbreakableCycle(t *testing.T) {
	enum := &schema.Enum{Name: "mood", Values: []string{"ok"}, Synchronize: true}
	plain := schema.Column{Name: "c", TableName: "t", Type: "text", Synchronize: true}
	typed := schema.Column{Name: "c", TableName: "t", Type: "mood", Enum: "mood", Synchronize: true}
	cs := &diff.ChangeSet{Operations: []diff.Operation{
		{Type: diff.AlterColumn, TableName: "t", OldColumn: &plain, Column: &typed},
		{Type: diff.AlterColumn, TableName: "t", OldColumn: &typed, Column: &plain},
		{Type: diff.DropEnum, Enum: enum},
		{Type: diff.CreateEnum, Enum: enum},
	}}

	_, err := Build(cs)
	require.Error(t, err)
	assert.True(t, errs.IsPlanning(err))
	var e *errs.Error
	require.ErrorAs(t, err, &e)
	require.NotEmpty(t, e.Cycle)
	assert.Equal(t, e.Cycle[0], e.Cycle[len(e.Cycle)-1], "cycle is reported closed")
}

func TestBuild_EnumRecreation(t *testing.T) {
	build := func(values ...string) func(b *definition.Builder) {
		return func(b *definition.Builder) {
			b.Enum("state", values...)
			tbl := b.Table("orders")
			tbl.Column("id", "serial").Primary()
			tbl.Column("state", "state").Default("'new'")
		}
	}
	p := plan(t, declared(t, build("new", "old")), declared(t, build("old", "new")))
	assert.Equal(t, []string{
		"ALTER_COLUMN public.orders.state",
		"DROP_ENUM public.state",
		"CREATE_ENUM public.state",
		"ALTER_COLUMN public.orders.state",
	}, steps(p))
}

func TestBuild_DatabaseObjectsBracketTables(t *testing.T) {
	current := declared(t, func(b *definition.Builder) {
		b.Extension("hstore", "")
		b.Function(definition.FunctionDef{Name: "old_touch", Returns: "trigger", Body: "BEGIN RETURN NEW; END;"})
		tbl := b.Table("legacy")
		tbl.Column("id", "int").Primary()
		tbl.Trigger(definition.TriggerDef{Name: "legacy_touch", Timing: "before", Events: []string{"update"}, Function: "old_touch"})
	})
	target := declared(t, func(b *definition.Builder) {
		b.Extension("pgcrypto", "")
		b.Enum("state", "new", "done")
		b.Function(definition.FunctionDef{Name: "touch", Returns: "trigger", Body: "BEGIN RETURN NEW; END;"})
		tbl := b.Table("jobs")
		tbl.Column("id", "uuid").Primary().Default("gen_random_uuid()")
		tbl.Column("state", "state")
		tbl.Trigger(definition.TriggerDef{Name: "jobs_touch", Timing: "before", Events: []string{"update"}, Function: "touch"})
	})

	p := plan(t, current, target)
	before := func(a, b string) {
		assert.Less(t, position(t, p, a), position(t, p, b), "%s must precede %s", a, b)
	}
	before("CREATE_EXTENSION pgcrypto", "CREATE_TABLE public.jobs")
	before("CREATE_ENUM public.state", "CREATE_TABLE public.jobs")
	before("CREATE_FUNCTION public.touch", "CREATE_TABLE public.jobs")
	before("DROP_TABLE public.legacy", "DROP_FUNCTION public.old_touch")
	before("DROP_TABLE public.legacy", "DROP_EXTENSION hstore")
	assert.Equal(t, "DROP_EXTENSION hstore", steps(p)[len(p.Steps)-1])
}

func TestBuild_DropChildBeforeColumnChange(t *testing.T) {
	current := declared(t, func(b *definition.Builder) {
		tbl := b.Table("t")
		tbl.Column("id", "int").Primary()
		tbl.Column("code", "text").Indexed()
		tbl.Column("amount", "integer")
		tbl.Check("", "amount > 0")
	})
	target := declared(t, func(b *definition.Builder) {
		tbl := b.Table("t")
		tbl.Column("id", "int").Primary()
		tbl.Column("code", "varchar(20)")
	})

	p := plan(t, current, target)
	assert.Less(t, position(t, p, "DROP_CONSTRAINT public.t#CHK_t_amount"), position(t, p, "DROP_COLUMN public.t.amount"))
	assert.Less(t, position(t, p, "DROP_INDEX public.t#IDX_t_code"), position(t, p, "ALTER_COLUMN public.t.code"))
}

// The ordering invariant must hold whatever order the diff produced.
func TestBuild_OrderIndependent(t *testing.T) {
	base := []diff.Operation{
		{Type: diff.CreateTable, Schema: "public", TableName: "users", Table: table("users")},
		{Type: diff.AddConstraint, Schema: "public", TableName: "orders", Constraint: fk("orders", "FK_orders_other_id", "other_id", "users")},
		{Type: diff.DropConstraint, Schema: "public", TableName: "items", Constraint: fk("items", "FK_items_other_id", "other_id", "legacy")},
		{Type: diff.DropTable, Schema: "public", TableName: "legacy", Table: table("legacy")},
		{Type: diff.CreateTable, Schema: "public", TableName: "payments", Table: table("payments", fk("payments", "FK_payments_other_id", "other_id", "users"))},
	}

	for shift := range base {
		ops := append(slices.Clone(base[shift:]), base[:shift]...)
		p, err := Build(&diff.ChangeSet{Operations: ops})
		require.NoError(t, err)

		assert.Less(t, position(t, p, "CREATE_TABLE public.users"), position(t, p, "ADD_CONSTRAINT public.orders#FK_orders_other_id"))
		assert.Less(t, position(t, p, "CREATE_TABLE public.users"), position(t, p, "CREATE_TABLE public.payments"))
		assert.Less(t, position(t, p, "DROP_CONSTRAINT public.items#FK_items_other_id"), position(t, p, "DROP_TABLE public.legacy"))
	}
}
