package normalize

import (
	"testing"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/errs"
	"github.com/ridoystarlord/schemasync/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func table1Tree() definition.Tree {
	b := definition.NewBuilder("postgres", "public")
	b.Table("table1").
		Check("CHK_test", "1=1").
		Column("id", "uuid")
	return b.Build()
}

func TestNormalize_CheckOverrideName(t *testing.T) {
	s, err := Normalize(table1Tree(), Options{})
	require.NoError(t, err)

	assert.Equal(t, "postgres", s.DatabaseName)
	assert.Equal(t, "public", s.SchemaName)
	require.Len(t, s.Tables, 1)

	tbl := s.Tables[0]
	assert.Equal(t, "table1", tbl.Name)
	assert.True(t, tbl.Synchronize)
	require.Len(t, tbl.Columns, 1)
	assert.Equal(t, schema.Column{Name: "id", TableName: "table1", Type: "uuid", Synchronize: true}, tbl.Columns[0])

	require.Len(t, tbl.Constraints, 1)
	chk, ok := tbl.Constraints[0].(*schema.CheckConstraint)
	require.True(t, ok)
	assert.Equal(t, "CHK_test", chk.Name)
	assert.Equal(t, "1=1", chk.Expression)
	assert.Empty(t, chk.Columns)
}

func TestNormalize_DefaultNames(t *testing.T) {
	b := definition.NewBuilder("postgres", "public")
	users := b.Table("users")
	users.Column("id", "serial").Primary()
	users.Column("email", "text").Unique()
	orders := b.Table("orders")
	orders.Column("id", "serial").Primary()
	orders.Column("user_id", "int4").References("users", "").OnDelete("cascade")
	orders.Column("amount", "numeric(10, 2)").Nullable().Indexed()
	orders.Check("", "amount > 0")

	s, err := Normalize(b.Build(), Options{})
	require.NoError(t, err)

	o := s.Table("orders")
	require.NotNil(t, o)
	names := map[string]schema.ObjectKind{}
	for _, c := range o.Constraints {
		names[c.ConstraintName()] = c.Kind()
	}
	assert.Equal(t, map[string]schema.ObjectKind{
		"PK_orders_id":      schema.KindPrimaryKey,
		"FK_orders_user_id": schema.KindForeignKey,
		"CHK_orders_amount": schema.KindCheck,
	}, names)
	require.Len(t, o.Indexes, 1)
	assert.Equal(t, "IDX_orders_amount", o.Indexes[0].Name)
	assert.Equal(t, "btree", o.Indexes[0].Using)

	fk := o.Constraint("FK_orders_user_id").(*schema.ForeignKeyConstraint)
	assert.Equal(t, []string{"id"}, fk.ReferenceColumns, "referenced columns default to the primary key")
	assert.Equal(t, schema.Cascade, fk.OnDelete)
	assert.Equal(t, schema.NoAction, fk.OnUpdate)

	assert.Equal(t, "integer", o.Column("user_id").Type)
	assert.Equal(t, "numeric(10,2)", o.Column("amount").Type)
	assert.True(t, o.Column("amount").Nullable)
	assert.False(t, o.Column("user_id").Nullable, "columns are NOT NULL unless declared nullable")
	assert.False(t, o.Column("id").Nullable)

	assert.NotNil(t, s.Table("users").Constraint("UQ_users_email"))
}

func TestNormalize_Overrides(t *testing.T) {
	b := definition.NewBuilder("postgres", "public")
	b.Override("table1", "check", "positive_amount", "amount")
	b.Override("table1", "unique", "uq_b", "code")
	b.Override("table1", "unique", "uq_a", "code")
	tbl := b.Table("table1")
	tbl.Column("amount", "integer")
	tbl.Column("code", "text").Unique()
	tbl.Check("", "amount > 0")

	s, err := Normalize(b.Build(), Options{})
	require.NoError(t, err)

	assert.NotNil(t, s.Tables[0].Constraint("positive_amount"))
	assert.NotNil(t, s.Tables[0].Constraint("uq_a"))
	assert.Contains(t, s.Warnings, `public.table1: overrides "uq_b" and "uq_a" target the same UNIQUE; using "uq_a"`)
}

func TestNormalize_Enums(t *testing.T) {
	b := definition.NewBuilder("postgres", "public")
	b.Enum("order_state", "new", "paid")
	tbl := b.Table("orders")
	tbl.Column("id", "uuid").Primary()
	tbl.Column("state", "order_state").Default("'new'")
	tbl.Column("history", "order_state[]")

	s, err := Normalize(b.Build(), Options{})
	require.NoError(t, err)

	state := s.Tables[0].Column("state")
	assert.Equal(t, "order_state", state.Enum)
	assert.Equal(t, "'new'", *state.Default)
	history := s.Tables[0].Column("history")
	assert.Equal(t, "order_state", history.Enum)
	assert.True(t, history.IsArray)
	assert.Equal(t, []string{"new", "paid"}, s.Enums[0].Values)
}

func TestNormalize_DeclarationErrors(t *testing.T) {
	tests := []struct {
		name   string
		build  func(b *definition.Builder)
		entity string
	}{
		{
			name: "duplicate table",
			build: func(b *definition.Builder) {
				b.Table("a").Column("id", "int")
				b.Table("a").Column("id", "int")
			},
			entity: "public.a",
		},
		{
			name: "duplicate column",
			build: func(b *definition.Builder) {
				t := b.Table("a")
				t.Column("id", "int")
				t.Column("id", "int")
			},
			entity: "public.a.id",
		},
		{
			name: "override on missing column",
			build: func(b *definition.Builder) {
				b.Override("a", "unique", "uq", "nope")
				b.Table("a").Column("id", "int")
			},
			entity: "public.a.nope",
		},
		{
			name: "foreign key to undeclared table",
			build: func(b *definition.Builder) {
				b.Table("a").Column("ghost_id", "int").References("ghosts", "id")
			},
			entity: "public.a.ghost_id",
		},
		{
			name: "foreign key to missing column",
			build: func(b *definition.Builder) {
				b.Table("g").Column("id", "int").Primary()
				b.Table("a").Column("g_id", "int").References("g", "uuid")
			},
			entity: "public.g.uuid",
		},
		{
			name: "undeclared enum",
			build: func(b *definition.Builder) {
				b.Table("a").Column("state", "").Enum("mood")
			},
			entity: "public.a.state",
		},
		{
			name: "index over missing column",
			build: func(b *definition.Builder) {
				b.Table("a").Index(definition.IndexDef{Columns: []string{"x"}}).Column("id", "int")
			},
			entity: "public.a.x",
		},
		{
			name: "index expression without a column",
			build: func(b *definition.Builder) {
				b.Table("a").Index(definition.IndexDef{Columns: []string{"lower(nope)"}}).Column("id", "int")
			},
			entity: "public.a",
		},
		{
			name: "colliding names",
			build: func(b *definition.Builder) {
				b.Table("a").Check("dup", "id > 0").Unique("dup", "id").Column("id", "int")
			},
			entity: "public.a#dup",
		},
		{
			name: "bad trigger timing",
			build: func(b *definition.Builder) {
				b.Table("a").Trigger(definition.TriggerDef{Name: "t", Timing: "during", Events: []string{"insert"}, Function: "f"}).Column("id", "int")
			},
			entity: "public.a#t",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := definition.NewBuilder("postgres", "public")
			tt.build(b)
			s, err := Normalize(b.Build(), Options{})
			require.Error(t, err)
			assert.Nil(t, s)
			assert.True(t, errs.IsDeclaration(err), err.Error())

			var e *errs.Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, tt.entity, e.Entity)
		})
	}
}

func TestNormalize_ExpressionIndex(t *testing.T) {
	b := definition.NewBuilder("postgres", "public")
	users := b.Table("users")
	users.Column("id", "int").Primary()
	users.Column("email", "varchar(255)")
	users.Index(definition.IndexDef{Columns: []string{"lower(email)"}, Unique: true})
	users.Index(definition.IndexDef{Name: "users_by_balance", Columns: []string{"id", "abs(balance)"}})
	users.Column("balance", "integer")

	s, err := Normalize(b.Build(), Options{})
	require.NoError(t, err)

	idx := s.Tables[0].Indexes
	require.Len(t, idx, 2)
	assert.Equal(t, "IDX_users_lower_email", idx[0].Name)
	assert.Equal(t, []string{"lower(email)"}, idx[0].Columns)
	assert.True(t, idx[0].Unique)
	assert.Equal(t, []string{"id", "abs(balance)"}, idx[1].Columns)
	assert.Equal(t, []string{"id", "balance"}, idx[1].ReferencedColumns())
}

func TestNormalize_RejectsTinyIdentifierLimit(t *testing.T) {
	s, err := Normalize(table1Tree(), Options{MaxIdentifierLength: 9})
	require.Error(t, err)
	assert.Nil(t, s)
	assert.True(t, errs.IsInvalidInput(err), err.Error())
}

func TestNormalize_SynchronizeWarnings(t *testing.T) {
	b := definition.NewBuilder("postgres", "public")
	b.Table("legacy").NoSync().Column("id", "int")
	t2 := b.Table("users")
	t2.Column("id", "int").Primary()
	t2.Column("ext", "text").NoSync()

	s, err := Normalize(b.Build(), Options{})
	require.NoError(t, err)

	assert.False(t, s.Table("legacy").Synchronize)
	assert.False(t, s.Table("users").Column("ext").Synchronize)
	assert.Contains(t, s.Warnings, "public.legacy: synchronize=false, table is not managed")
	assert.Contains(t, s.Warnings, "public.users.ext: synchronize=false, column is not managed")
}

func TestNormalize_DoesNotMutateInput(t *testing.T) {
	tree := table1Tree()
	before := tree.Clone()
	_, err := Normalize(tree, Options{SchemaName: "other"})
	require.NoError(t, err)
	assert.Equal(t, before, tree)
}
