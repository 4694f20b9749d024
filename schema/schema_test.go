package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalType(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		isArray bool
	}{
		{"INT4", "integer", false},
		{"int", "integer", false},
		{"character varying(255)", "varchar(255)", false},
		{"VARCHAR(255)", "varchar(255)", false},
		{"timestamp without time zone", "timestamp", false},
		{"timestamp(3) with time zone", "timestamptz(3)", false},
		{"numeric(10, 2)", "numeric(10,2)", false},
		{"decimal(10,2)", "numeric(10,2)", false},
		{"text[]", "text", true},
		{"_int4", "integer", true},
		{"double  precision", "double precision", false},
		{"bool", "boolean", false},
		{"uuid", "uuid", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, isArray := CanonicalType(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.isArray, isArray)
		})
	}
}

func TestSerialTypes(t *testing.T) {
	assert.True(t, IsSerial("bigserial"))
	assert.False(t, IsSerial("bigint"))
	assert.Equal(t, "bigserial", SerialFor("bigint"))
	assert.Equal(t, "serial", SerialFor("integer"))
	assert.Equal(t, "bigint", StorageType("bigserial"))
	assert.Equal(t, "smallint", StorageType("smallserial"))
	assert.Equal(t, "text", StorageType("text"))
}

func TestNormalizeExpression(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		same bool
	}{
		{"catalog parentheses", "amount > 0", "(amount > 0)", true},
		{"constant check", "1=1", "(1 = 1)", true},
		{"case and whitespace", "Amount   >=  0", "amount>=0", true},
		{"quoted identifiers", `"amount" > 0`, "amount > 0", true},
		{"literal cast", "status = 'active'", "(status = 'active'::character varying)", true},
		{"numeric cast with modifier", "price > 0", "(price > (0)::numeric(10,2))", true},
		{"literal case preserved", "status = 'Active'", "status = 'active'", false},
		{"operator change", "amount > 0", "amount >= 0", false},
		{"function call kept", "now()", "NOW()", true},
		{"nested groups", "(a > 0) AND (b < 1)", "((a > 0) AND (b < 1))", true},
		{"boolean regrouping", "(a OR b) AND c", "a OR (b AND c)", false},
		{"arithmetic regrouping", "(x + 1) * 2 > 0", "x + 1 * 2 > 0", false},
		{"redundant double parentheses", "((a > 0))", "a > 0", true},
		{"text literal cast", "name = 'x'::text", "name = 'x'", true},
		{"catalog operand parentheses", "a + b > 0", "((a + b) > 0)", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.same, ExpressionsEqual(tt.a, tt.b),
				"%q vs %q", NormalizeExpression(tt.a), NormalizeExpression(tt.b))
		})
	}
}

func TestNormalizeExpressionKeepsPrecedence(t *testing.T) {
	assert.Equal(t, "a > 0", NormalizeExpression("((a > 0))"))
	assert.Equal(t, "price > 0", NormalizeExpression("(price > (0)::numeric(10,2))"))
	assert.NotEqual(t, NormalizeExpression("(a or b) and c"), NormalizeExpression("a or (b and c)"))
	assert.Equal(t, "( a or b ) and c", NormalizeExpression("(a OR b) AND c"))
}

func TestExpressionIdentifiers(t *testing.T) {
	assert.Equal(t, []string{"amount"}, ExpressionIdentifiers("amount > 0"))
	assert.Equal(t, []string{"starts_at", "ends_at"}, ExpressionIdentifiers("(starts_at < ends_at) AND starts_at IS NOT NULL"))
	assert.Equal(t, []string{"email"}, ExpressionIdentifiers("length(email) > 3"))
	assert.Empty(t, ExpressionIdentifiers("1=1"))
	assert.Equal(t, []string{"status"}, ExpressionIdentifiers("status = 'a'::text"))
}

func TestMatchConstraint(t *testing.T) {
	kindName := func(c Constraint) string {
		return MatchConstraint(c,
			func(*PrimaryKeyConstraint) string { return "pk" },
			func(*ForeignKeyConstraint) string { return "fk" },
			func(*UniqueConstraint) string { return "uq" },
			func(*CheckConstraint) string { return "ck" },
		)
	}

	assert.Equal(t, "pk", kindName(&PrimaryKeyConstraint{}))
	assert.Equal(t, "fk", kindName(&ForeignKeyConstraint{}))
	assert.Equal(t, "uq", kindName(&UniqueConstraint{}))
	assert.Equal(t, "ck", kindName(&CheckConstraint{}))
}

func TestParseAction(t *testing.T) {
	for in, want := range map[string]Action{
		"":             NoAction,
		"cascade":      Cascade,
		"set_null":     SetNull,
		"SET  DEFAULT": SetDefault,
		"no action":    NoAction,
	} {
		got, ok := ParseAction(in)
		require.True(t, ok, in)
		assert.Equal(t, want, got)
	}
	_, ok := ParseAction("explode")
	assert.False(t, ok)
}

func TestLookups(t *testing.T) {
	s := DatabaseSchema{
		SchemaName: "public",
		Tables: []Table{{
			Name:   "orders",
			Schema: "public",
			Columns: []Column{
				{Name: "id", Type: "uuid"},
				{Name: "state", Type: "order_state", Enum: "order_state"},
			},
			Constraints: []Constraint{
				&PrimaryKeyConstraint{ConstraintBase: ConstraintBase{Name: "PK_orders_id", TableName: "orders"}, Columns: []string{"id"}},
			},
		}},
		Enums: []Enum{{Name: "order_state", Values: []string{"new", "paid"}}},
	}

	tbl := s.Table("orders")
	require.NotNil(t, tbl)
	assert.Equal(t, "public.orders", tbl.QualifiedName())
	assert.NotNil(t, tbl.Column("state"))
	assert.Nil(t, tbl.Column("missing"))
	assert.Equal(t, []string{"id"}, tbl.PrimaryKey().Columns)
	assert.NotNil(t, tbl.Constraint("PK_orders_id"))
	assert.True(t, s.UsesEnum("order_state"))
	assert.False(t, s.UsesEnum("other"))
	assert.Equal(t, []string{"INSERT", "UPDATE"}, SortEvents([]string{"update", "insert", "UPDATE"}))
	assert.Equal(t, "text[]", Column{Type: "text", IsArray: true}.SQLType())
}
