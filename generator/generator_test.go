package generator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/normalize"
	"github.com/ridoystarlord/schemasync/planner"
	"github.com/ridoystarlord/schemasync/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, current *schema.DatabaseSchema, build func(b *definition.Builder)) []string {
	t.Helper()
	b := definition.NewBuilder("app", "public")
	build(b)
	target, err := normalize.Normalize(b.Build(), normalize.Options{})
	require.NoError(t, err)

	cs, err := diff.Compare(current, target)
	require.NoError(t, err)
	p, err := planner.Build(cs)
	require.NoError(t, err)

	stmts, err := NewEmitter("public").Render(p)
	require.NoError(t, err)
	return stmts
}

func ptr(s string) *string { return &s }

func TestRender_SingleTable(t *testing.T) {
	stmts := render(t, &schema.DatabaseSchema{}, func(b *definition.Builder) {
		b.Table("table1").Check("CHK_test", "1=1").Column("id", "uuid")
	})

	assert.Equal(t, []string{
		`CREATE TABLE "table1" ("id" uuid NOT NULL);`,
		`ALTER TABLE "table1" ADD CONSTRAINT "CHK_test" CHECK (1=1);`,
	}, stmts)
}

func TestRender_CreateTableWithChildren(t *testing.T) {
	stmts := render(t, &schema.DatabaseSchema{}, func(b *definition.Builder) {
		b.Table("users").Column("id", "uuid").Primary().Default("gen_random_uuid()")
		orders := b.Table("orders")
		orders.Column("id", "serial").Primary()
		orders.Column("user_id", "uuid").References("users", "id").OnDelete("cascade")
		orders.Index(definition.IndexDef{Name: "orders_user", Columns: []string{"user_id"}, Where: "user_id IS NOT NULL"})
	})

	require.Len(t, stmts, 4)
	assert.Equal(t, `CREATE TABLE "users" ("id" uuid NOT NULL DEFAULT gen_random_uuid(), CONSTRAINT "PK_users_id" PRIMARY KEY ("id"));`, stmts[0])
	assert.Equal(t, `CREATE TABLE "orders" ("id" serial NOT NULL, "user_id" uuid NOT NULL, CONSTRAINT "PK_orders_id" PRIMARY KEY ("id"));`, stmts[1])
	assert.Regexp(t, `^ALTER TABLE "orders" ADD CONSTRAINT "FK_orders_user_id" FOREIGN KEY \("user_id"\) REFERENCES "users" \("id"\) ON DELETE CASCADE;$`, stmts[2])
	assert.Equal(t, `CREATE INDEX "orders_user" ON "orders" ("user_id") WHERE user_id IS NOT NULL;`, stmts[3])
}

func TestRender_DeclaredExpressionIndex(t *testing.T) {
	stmts := render(t, &schema.DatabaseSchema{}, func(b *definition.Builder) {
		users := b.Table("users")
		users.Column("email", "text")
		users.Index(definition.IndexDef{Columns: []string{"lower(email)"}, Unique: true})
	})

	assert.Equal(t, []string{
		`CREATE TABLE "users" ("email" text NOT NULL);`,
		`CREATE UNIQUE INDEX "IDX_users_lower_email" ON "users" (lower(email));`,
	}, stmts)
}

func TestStatements(t *testing.T) {
	e := NewEmitter("public")
	e.Database = "app"

	col := func(name, typ string, nullable bool, def *string) *schema.Column {
		return &schema.Column{Name: name, TableName: "t", Type: typ, Nullable: nullable, Default: def, Synchronize: true}
	}

	tests := []struct {
		name string
		op   diff.Operation
		want []string
	}{
		{
			name: "extension with version",
			op:   diff.Operation{Type: diff.CreateExtension, Extension: &schema.Extension{Name: "pgcrypto", Version: "1.3"}},
			want: []string{`CREATE EXTENSION IF NOT EXISTS "pgcrypto" WITH VERSION '1.3';`},
		},
		{
			name: "extension update",
			op:   diff.Operation{Type: diff.AlterExtension, Extension: &schema.Extension{Name: "pgcrypto", Version: "1.4"}},
			want: []string{`ALTER EXTENSION "pgcrypto" UPDATE TO '1.4';`},
		},
		{
			name: "enum",
			op:   diff.Operation{Type: diff.CreateEnum, Schema: "public", Enum: &schema.Enum{Name: "mood", Values: []string{"ok", "it's bad"}}},
			want: []string{`CREATE TYPE "mood" AS ENUM ('ok', 'it''s bad');`},
		},
		{
			name: "enum value in another schema",
			op:   diff.Operation{Type: diff.AddEnumValue, Schema: "billing", Enum: &schema.Enum{Name: "mood"}, EnumValue: "great"},
			want: []string{`ALTER TYPE "billing"."mood" ADD VALUE 'great';`},
		},
		{
			name: "drop function strips defaults",
			op: diff.Operation{Type: diff.DropFunction, Schema: "public", Function: &schema.Function{
				Name: "f", Arguments: "a integer, b numeric(10,2) DEFAULT 1.5",
			}},
			want: []string{`DROP FUNCTION "f"(a integer, b numeric(10,2));`},
		},
		{
			name: "set parameter",
			op:   diff.Operation{Type: diff.SetParameter, Parameter: &schema.Parameter{Name: "timezone", Value: "UTC"}},
			want: []string{`ALTER DATABASE "app" SET timezone TO 'UTC';`},
		},
		{
			name: "reset parameter",
			op:   diff.Operation{Type: diff.ResetParameter, Parameter: &schema.Parameter{Name: "app.tenant", DatabaseName: "other"}},
			want: []string{`ALTER DATABASE "other" RESET app.tenant;`},
		},
		{
			name: "add enum column",
			op: diff.Operation{Type: diff.AddColumn, Schema: "public", TableName: "t", Column: &schema.Column{
				Name: "moods", Type: "mood", Enum: "mood", IsArray: true, Nullable: true,
			}},
			want: []string{`ALTER TABLE "t" ADD COLUMN "moods" "mood"[];`},
		},
		{
			name: "alter type keeps default",
			op: diff.Operation{Type: diff.AlterColumn, Schema: "public", TableName: "t",
				OldColumn: col("n", "integer", true, ptr("0")),
				Column:    col("n", "bigint", false, ptr("0")),
			},
			want: []string{
				`ALTER TABLE "t" ALTER COLUMN "n" DROP DEFAULT;`,
				`ALTER TABLE "t" ALTER COLUMN "n" TYPE bigint USING "n"::bigint;`,
				`ALTER TABLE "t" ALTER COLUMN "n" SET NOT NULL;`,
				`ALTER TABLE "t" ALTER COLUMN "n" SET DEFAULT 0;`,
			},
		},
		{
			name: "drop default only",
			op: diff.Operation{Type: diff.AlterColumn, Schema: "public", TableName: "t",
				OldColumn: col("n", "integer", false, ptr("0")),
				Column:    col("n", "integer", true, nil),
			},
			want: []string{
				`ALTER TABLE "t" ALTER COLUMN "n" DROP DEFAULT;`,
				`ALTER TABLE "t" ALTER COLUMN "n" DROP NOT NULL;`,
			},
		},
		{
			name: "unique constraint",
			op: diff.Operation{Type: diff.AddConstraint, Schema: "public", TableName: "t", Constraint: &schema.UniqueConstraint{
				ConstraintBase: schema.ConstraintBase{Name: "UQ_t_a_b", TableName: "t"}, Columns: []string{"a", "b"},
			}},
			want: []string{`ALTER TABLE "t" ADD CONSTRAINT "UQ_t_a_b" UNIQUE ("a", "b");`},
		},
		{
			name: "drop constraint",
			op: diff.Operation{Type: diff.DropConstraint, Schema: "public", TableName: "t", Constraint: &schema.CheckConstraint{
				ConstraintBase: schema.ConstraintBase{Name: "CHK_x", TableName: "t"},
			}},
			want: []string{`ALTER TABLE "t" DROP CONSTRAINT "CHK_x";`},
		},
		{
			name: "expression index",
			op: diff.Operation{Type: diff.CreateIndex, Schema: "public", TableName: "t", Index: &schema.Index{
				Name: "t_lower_email", Columns: []string{"lower(email)"}, Unique: true, Using: "btree",
			}},
			want: []string{`CREATE UNIQUE INDEX "t_lower_email" ON "t" (lower(email));`},
		},
		{
			name: "gin index",
			op: diff.Operation{Type: diff.CreateIndex, Schema: "public", TableName: "t", Index: &schema.Index{
				Name: "t_tags", Columns: []string{"tags"}, Using: "gin",
			}},
			want: []string{`CREATE INDEX "t_tags" ON "t" USING gin ("tags");`},
		},
		{
			name: "trigger",
			op: diff.Operation{Type: diff.CreateTrigger, Schema: "public", TableName: "t", Trigger: &schema.Trigger{
				Name: "t_touch", Timing: schema.Before, Events: []string{"INSERT", "UPDATE"}, ForEachRow: true, FunctionName: "touch",
			}},
			want: []string{`CREATE TRIGGER "t_touch" BEFORE INSERT OR UPDATE ON "t" FOR EACH ROW EXECUTE FUNCTION "touch"();`},
		},
		{
			name: "drop trigger",
			op:   diff.Operation{Type: diff.DropTrigger, Schema: "public", TableName: "t", Trigger: &schema.Trigger{Name: "t_touch"}},
			want: []string{`DROP TRIGGER IF EXISTS "t_touch" ON "t";`},
		},
		{
			name: "drop table in other schema",
			op:   diff.Operation{Type: diff.DropTable, Schema: "audit", TableName: "log", Table: &schema.Table{Name: "log"}},
			want: []string{`DROP TABLE IF EXISTS "audit"."log";`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Statements(tt.op)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatements_Function(t *testing.T) {
	e := NewEmitter("public")
	f := &schema.Function{Name: "touch", Returns: "trigger", Language: "plpgsql", Body: "BEGIN RETURN NEW; END;"}

	got, err := e.Statements(diff.Operation{Type: diff.ReplaceFunction, Schema: "public", Function: f})
	require.NoError(t, err)
	assert.Equal(t, []string{`CREATE OR REPLACE FUNCTION "touch"() RETURNS trigger LANGUAGE plpgsql AS $$BEGIN RETURN NEW; END;$$;`}, got)

	f.Body = "SELECT '$$'"
	got, err = e.Statements(diff.Operation{Type: diff.CreateFunction, Schema: "public", Function: f})
	require.NoError(t, err)
	assert.Equal(t, []string{`CREATE FUNCTION "touch"() RETURNS trigger LANGUAGE plpgsql AS $fn0$SELECT '$$'$fn0$;`}, got)
}

func TestStatements_Errors(t *testing.T) {
	e := NewEmitter("")

	_, err := e.Statements(diff.Operation{Type: diff.CreateTable})
	assert.ErrorContains(t, err, "missing payload")

	_, err = e.Statements(diff.Operation{Type: diff.SetParameter, Parameter: &schema.Parameter{Name: "x; DROP", Value: "1"}})
	assert.ErrorContains(t, err, "invalid parameter name")

	_, err = e.Statements(diff.Operation{Type: diff.SetParameter, Parameter: &schema.Parameter{Name: "timezone", Value: "UTC"}})
	assert.ErrorContains(t, err, "no database name")

	_, err = e.Statements(diff.Operation{Type: "RENAME_TABLE"})
	assert.ErrorContains(t, err, "unsupported operation")
}

func TestWriteMigrationFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "migrations")

	path, err := WriteMigrationFile(dir, "Add Users!", []string{`CREATE TABLE "users" ("id" uuid);`}, []string{`DROP TABLE IF EXISTS "users";`})
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, "_add_users.sql"), path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	up, down, err := ParseMigration(string(content))
	require.NoError(t, err)
	assert.Equal(t, []string{`CREATE TABLE "users" ("id" uuid);`}, up)
	assert.Equal(t, []string{`DROP TABLE IF EXISTS "users";`}, down)
}

func TestParseMigration(t *testing.T) {
	content := `-- Migration: 20240101000000
-- Up Migration
-- ============
CREATE TABLE "a" ("id" int);
CREATE FUNCTION "f"() RETURNS int LANGUAGE sql AS $$SELECT 1; SELECT 2;$$;

-- Down Migration (Rollback)
-- =======================
DROP FUNCTION "f"();
DROP TABLE IF EXISTS "a";
`
	up, down, err := ParseMigration(content)
	require.NoError(t, err)
	assert.Equal(t, []string{
		`CREATE TABLE "a" ("id" int);`,
		`CREATE FUNCTION "f"() RETURNS int LANGUAGE sql AS $$SELECT 1; SELECT 2;$$;`,
	}, up)
	assert.Len(t, down, 2)

	_, _, err = ParseMigration("SELECT 1;")
	assert.Error(t, err)
}
