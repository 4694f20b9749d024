package loader

import (
	"bytes"
	"testing"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/normalize"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotTree() definition.Tree {
	b := definition.NewBuilder("app", "public")
	b.Extension("pgcrypto", "")
	b.Enum("order_state", "new", "paid")
	b.Function(definition.FunctionDef{Name: "touch", Returns: "trigger", Language: "plpgsql", Body: "BEGIN RETURN NEW; END;"})
	users := b.Table("users")
	users.Column("id", "serial").Primary()
	users.Column("email", "varchar(255)").Unique()
	orders := b.Table("orders")
	orders.Column("id", "uuid").Primary().Default("gen_random_uuid()")
	orders.Column("user_id", "integer").References("users", "id").OnDelete("cascade")
	orders.Column("state", "order_state").Default("'new'")
	orders.Column("amount", "numeric(10,2)").Nullable()
	orders.Check("positive_amount", "amount >= 0")
	orders.Index(definition.IndexDef{Name: "orders_by_state", Columns: []string{"state"}, Type: "hash"})
	orders.Trigger(definition.TriggerDef{Name: "orders_touch", Timing: "before", Events: []string{"update", "insert"}, Function: "touch"})
	return b.Build()
}

func TestFromSchema_RoundTrip(t *testing.T) {
	opts := normalize.Options{}
	first, err := normalize.Normalize(snapshotTree(), opts)
	require.NoError(t, err)

	tree := FromSchema(first, 0)
	second, err := normalize.Normalize(tree, opts)
	require.NoError(t, err)

	cs, err := diff.Compare(first, second)
	require.NoError(t, err)
	assert.True(t, cs.Empty(), "unexpected operations: %v", cs.Operations)
}

func TestFromSchema_OmitsConventionalNames(t *testing.T) {
	s, err := normalize.Normalize(snapshotTree(), normalize.Options{})
	require.NoError(t, err)

	tree := FromSchema(s, 0)
	require.Len(t, tree.Tables, 2)

	users := tree.Tables[0]
	require.NotNil(t, users.PrimaryKey)
	assert.Empty(t, users.PrimaryKey.Name)
	assert.Equal(t, []string{"id"}, users.PrimaryKey.Columns)
	require.Len(t, users.Uniques, 1)
	assert.Empty(t, users.Uniques[0].Name)

	orders := tree.Tables[1]
	assert.False(t, orders.Columns[1].Nullable)
	assert.True(t, orders.Columns[3].Nullable)
	require.Len(t, orders.ForeignKeys, 1)
	assert.Equal(t, "cascade", orders.ForeignKeys[0].OnDelete)
	assert.Empty(t, orders.ForeignKeys[0].OnUpdate)
	require.Len(t, orders.Checks, 1)
	assert.Equal(t, "positive_amount", orders.Checks[0].Name)
	require.Len(t, orders.Triggers, 1)
	assert.Equal(t, []string{"insert", "update"}, orders.Triggers[0].Events)
	assert.Equal(t, "row", orders.Triggers[0].ForEach)
}

func TestFromSchema_WritesLoadableYAML(t *testing.T) {
	s, err := normalize.Normalize(snapshotTree(), normalize.Options{})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, FromSchema(s, 0)))

	back, err := ParseYAML(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, "app", back.Database)
	assert.Len(t, back.Tables, 2)
	assert.Equal(t, []string{"new", "paid"}, back.Enums[0].Values)
}
