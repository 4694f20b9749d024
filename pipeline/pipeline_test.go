package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/errs"
	"github.com/ridoystarlord/schemasync/normalize"
	"github.com/ridoystarlord/schemasync/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntrospector struct {
	current *schema.DatabaseSchema
	err     error
	calls   int
}

func (f *fakeIntrospector) Introspect(context.Context) (*schema.DatabaseSchema, error) {
	f.calls++
	return f.current, f.err
}

func table1() definition.Tree {
	b := definition.NewBuilder("app", "public")
	b.Table("table1").Check("CHK_test", "1=1").Column("id", "uuid")
	return b.Build()
}

func TestRun_SingleTable(t *testing.T) {
	in := &fakeIntrospector{current: &schema.DatabaseSchema{DatabaseName: "app", SchemaName: "public"}}

	res, err := Run(context.Background(), table1(), in, Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, in.calls)
	assert.False(t, res.Empty())
	assert.Equal(t, []string{
		`CREATE TABLE "table1" ("id" uuid NOT NULL);`,
		`ALTER TABLE "table1" ADD CONSTRAINT "CHK_test" CHECK (1=1);`,
	}, res.Statements)

	down, err := Reverse(res)
	require.NoError(t, err)
	assert.Equal(t, []string{`DROP TABLE IF EXISTS "table1";`}, down.Statements)
}

func TestRun_Idempotent(t *testing.T) {
	target, err := normalize.Normalize(table1(), normalize.Options{})
	require.NoError(t, err)

	res, err := Run(context.Background(), table1(), &fakeIntrospector{current: target}, Options{})
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Empty(t, res.Statements)
}

func TestRun_DeclarationErrorStopsBeforeIntrospection(t *testing.T) {
	b := definition.NewBuilder("app", "public")
	b.Table("t").Column("id", "uuid").References("missing", "id")
	in := &fakeIntrospector{}

	_, err := Run(context.Background(), b.Build(), in, Options{})
	require.Error(t, err)
	assert.True(t, errs.IsDeclaration(err), "%v", err)
	assert.Zero(t, in.calls)
}

func TestRun_IntrospectionErrorIsReturned(t *testing.T) {
	cause := errs.Introspection("reading tables", errors.New("boom"))

	_, err := Run(context.Background(), table1(), &fakeIntrospector{err: cause}, Options{})
	assert.ErrorIs(t, err, cause)
}

func TestCompute_CollectsWarnings(t *testing.T) {
	b := definition.NewBuilder("app", "public")
	b.Table("legacy").NoSync().Column("id", "integer")
	target, err := normalize.Normalize(b.Build(), normalize.Options{})
	require.NoError(t, err)

	current := &schema.DatabaseSchema{
		SchemaName: "public",
		Tables: []schema.Table{{
			Name: "legacy", Schema: "public", Synchronize: true,
			Columns: []schema.Column{{Name: "id", TableName: "legacy", Type: "bigint", Synchronize: true}},
		}},
		Warnings: []string{"introspection note"},
	}

	res, err := Compute(current, target)
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Contains(t, res.Warnings, "introspection note")
	assert.Contains(t, res.Warnings, "skipped table public.legacy (synchronize=false)")
}

func TestCompute_NilSnapshots(t *testing.T) {
	res, err := Compute(nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Empty())
}
