package loader

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/ridoystarlord/schemasync/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
database: postgres
schema: public
enums:
  - name: order_state
    values: [new, paid, shipped]
tables:
  - name: table1
    columns:
      - name: id
        type: uuid
    checks:
      - name: CHK_test
        expression: 1=1
  - name: orders
    columns:
      - name: id
        type: serial
        primary: true
      - name: state
        type: order_state
        default: "'new'"
      - name: table1_id
        type: uuid
        nullable: true
        foreign_key:
          references_table: table1
          references_column: id
          on_delete: CASCADE
`

func TestParseYAML(t *testing.T) {
	tree, err := ParseYAML([]byte(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "public", tree.Schema)
	require.Len(t, tree.Tables, 2)
	assert.Equal(t, "CHK_test", tree.Tables[0].Checks[0].Name)
	assert.Equal(t, "1=1", tree.Tables[0].Checks[0].Expression)
	assert.False(t, tree.Tables[0].Columns[0].Nullable)
	assert.True(t, tree.Tables[1].Columns[2].Nullable)
	assert.Equal(t, "'new'", *tree.Tables[1].Columns[1].Default)
	assert.Equal(t, "CASCADE", tree.Tables[1].Columns[2].ForeignKey.OnDelete)
	assert.Equal(t, []string{"new", "paid", "shipped"}, tree.Enums[0].Values)
}

func TestParseYAML_UnknownField(t *testing.T) {
	_, err := ParseYAML([]byte("tables:\n  - name: t\n    columns:\n      - name: a\n        type: text\n        nulable: true\n"))
	require.Error(t, err)
	assert.True(t, errs.IsDeclaration(err))
}

func TestLoadYAML_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o644))

	tree, err := LoadYAML(path)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteYAML(&buf, tree))
	again, err := ParseYAML(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, tree, again)

	_, err = LoadYAML(filepath.Join(dir, "missing.yaml"))
	assert.True(t, errs.IsInvalidInput(err))
}

const sampleModels = `package models

import "time"

//schema:table table1
//schema:check CHK_test 1=1
type Table1 struct {
	ID string ` + "`schema:\"column:id;type:uuid\"`" + `
}

// Order is a customer order.
//schema:index - user_id,created_at unique
type Order struct {
	ID        int       ` + "`schema:\"primary;type:serial\"`" + `
	UserID    string    ` + "`schema:\"type:uuid;fk:users.id:cascade\"`" + `
	Email     string    ` + "`schema:\"unique;index\"`" + `
	Tags      []string  ` + "`schema:\"nullable\"`" + `
	CreatedAt time.Time ` + "`schema:\"default:now()\"`" + `
	internal  string
	Skipped   string    ` + "`schema:\"-\"`" + `
}

type helper struct {
	Value string
}
`

func TestLoadTags(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "models.go"), []byte(sampleModels), 0o644))

	tree, err := LoadTags(dir, "postgres", "public")
	require.NoError(t, err)
	require.Len(t, tree.Tables, 2)

	t1 := tree.Tables[0]
	assert.Equal(t, "table1", t1.Name)
	require.Len(t, t1.Columns, 1)
	assert.Equal(t, "uuid", t1.Columns[0].Type)
	assert.False(t, t1.Columns[0].Nullable)
	assert.Equal(t, "1=1", t1.Checks[0].Expression)

	orders := tree.Tables[1]
	assert.Equal(t, "orders", orders.Name)
	require.Len(t, orders.Columns, 5)
	assert.Equal(t, "user_id", orders.Columns[1].Name)
	assert.Equal(t, "users", orders.Columns[1].ForeignKey.ReferencesTable)
	assert.Equal(t, "cascade", orders.Columns[1].ForeignKey.OnDelete)
	assert.NotNil(t, orders.Columns[2].Index)
	assert.Equal(t, "text[]", orders.Columns[3].Type)
	assert.True(t, orders.Columns[3].Nullable)
	assert.False(t, orders.Columns[1].Nullable)
	assert.Equal(t, "timestamptz", orders.Columns[4].Type)
	assert.Equal(t, "now()", *orders.Columns[4].Default)
	require.Len(t, orders.Indexes, 1)
	assert.Equal(t, []string{"user_id", "created_at"}, orders.Indexes[0].Columns)
	assert.True(t, orders.Indexes[0].Unique)
	assert.Empty(t, orders.Indexes[0].Name)
}

func TestLoadTags_Errors(t *testing.T) {
	_, err := LoadTags(filepath.Join(t.TempDir(), "nope"), "postgres", "public")
	assert.True(t, errs.IsInvalidInput(err))

	dir := t.TempDir()
	bad := "package m\n\ntype A struct {\n\tX string `schema:\"bogus\"`\n}\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.go"), []byte(bad), 0o644))
	_, err = LoadTags(dir, "postgres", "public")
	assert.True(t, errs.IsDeclaration(err))
}

func TestToSnakeCase(t *testing.T) {
	for in, want := range map[string]string{
		"UserID":    "user_id",
		"CreatedAt": "created_at",
		"HTTPCode":  "http_code",
		"Table1":    "table1",
		"id":        "id",
	} {
		assert.Equal(t, want, toSnakeCase(in), in)
	}
}
