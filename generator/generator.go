// Package generator renders planned operations as PostgreSQL DDL.
package generator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/planner"
	"github.com/ridoystarlord/schemasync/schema"
)

// Emitter renders operations. Objects in DefaultSchema are written
// unqualified; anything else is qualified with its schema.
type Emitter struct {
	DefaultSchema string
	// Database is used for parameter changes when the operation carries none.
	Database string
}

func NewEmitter(defaultSchema string) *Emitter {
	if defaultSchema == "" {
		defaultSchema = "public"
	}
	return &Emitter{DefaultSchema: defaultSchema}
}

// Render converts a plan into an ordered list of statements, one migration unit.
func (e *Emitter) Render(plan *planner.Plan) ([]string, error) {
	em := *e
	if em.Database == "" {
		em.Database = plan.Database
	}

	var sqlStatements []string
	for _, op := range plan.Steps {
		stmts, err := em.Statements(op)
		if err != nil {
			return nil, fmt.Errorf("render %s: %w", op.Entity(), err)
		}
		sqlStatements = append(sqlStatements, stmts...)
	}
	return sqlStatements, nil
}

// Statements renders a single operation.
func (e *Emitter) Statements(op diff.Operation) ([]string, error) {
	if err := validate(op); err != nil {
		return nil, err
	}
	table := e.qualify(op.Schema, op.TableName)

	switch op.Type {
	case diff.CreateExtension:
		stmt := fmt.Sprintf(`CREATE EXTENSION IF NOT EXISTS %s`, quote(op.Extension.Name))
		if op.Extension.Version != "" {
			stmt += " WITH VERSION " + literal(op.Extension.Version)
		}
		return one(stmt), nil

	case diff.DropExtension:
		return one(fmt.Sprintf(`DROP EXTENSION IF EXISTS %s`, quote(op.Extension.Name))), nil

	case diff.AlterExtension:
		return one(fmt.Sprintf(`ALTER EXTENSION %s UPDATE TO %s`, quote(op.Extension.Name), literal(op.Extension.Version))), nil

	case diff.CreateEnum:
		values := make([]string, len(op.Enum.Values))
		for i, v := range op.Enum.Values {
			values[i] = literal(v)
		}
		return one(fmt.Sprintf(`CREATE TYPE %s AS ENUM (%s)`, e.qualify(op.Schema, op.Enum.Name), strings.Join(values, ", "))), nil

	case diff.DropEnum:
		return one(fmt.Sprintf(`DROP TYPE %s`, e.qualify(op.Schema, op.Enum.Name))), nil

	case diff.AddEnumValue:
		return one(fmt.Sprintf(`ALTER TYPE %s ADD VALUE %s`, e.qualify(op.Schema, op.Enum.Name), literal(op.EnumValue))), nil

	case diff.CreateFunction, diff.ReplaceFunction:
		return one(e.createFunction(op, op.Type == diff.ReplaceFunction)), nil

	case diff.DropFunction:
		return one(fmt.Sprintf(`DROP FUNCTION %s(%s)`, e.qualify(op.Schema, op.Function.Name), identityArguments(op.Function.Arguments))), nil

	case diff.SetParameter, diff.ResetParameter:
		return e.parameter(op)

	case diff.CreateTable:
		return e.createTable(op), nil

	case diff.DropTable:
		return one(fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)), nil

	case diff.AddColumn:
		return one(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s`, table, e.columnDef(op.Schema, *op.Column))), nil

	case diff.DropColumn:
		return one(fmt.Sprintf(`ALTER TABLE %s DROP COLUMN %s`, table, quote(op.Column.Name))), nil

	case diff.AlterColumn:
		return e.alterColumn(table, op), nil

	case diff.AddConstraint:
		return one(fmt.Sprintf(`ALTER TABLE %s ADD %s`, table, e.constraintDef(op.Schema, op.Constraint))), nil

	case diff.DropConstraint:
		return one(fmt.Sprintf(`ALTER TABLE %s DROP CONSTRAINT %s`, table, quote(op.Constraint.ConstraintName()))), nil

	case diff.CreateIndex:
		return one(e.createIndex(table, *op.Index)), nil

	case diff.DropIndex:
		return one(fmt.Sprintf(`DROP INDEX IF EXISTS %s`, e.qualify(op.Schema, op.Index.Name))), nil

	case diff.CreateTrigger:
		return one(e.createTrigger(table, op.Schema, *op.Trigger)), nil

	case diff.DropTrigger:
		return one(fmt.Sprintf(`DROP TRIGGER IF EXISTS %s ON %s`, quote(op.Trigger.Name), table)), nil
	}
	return nil, fmt.Errorf("unsupported operation: %s", op.Type)
}

func one(stmt string) []string {
	return []string{stmt + ";"}
}

// validate rejects operations missing the payload their type needs. These
// are programming errors in the diff or planner, never user input.
func validate(op diff.Operation) error {
	var missing bool
	switch op.Type {
	case diff.CreateExtension, diff.DropExtension, diff.AlterExtension:
		missing = op.Extension == nil
	case diff.CreateEnum, diff.DropEnum, diff.AddEnumValue:
		missing = op.Enum == nil
	case diff.CreateFunction, diff.ReplaceFunction, diff.DropFunction:
		missing = op.Function == nil
	case diff.SetParameter, diff.ResetParameter:
		missing = op.Parameter == nil
	case diff.CreateTable:
		missing = op.Table == nil
	case diff.AddColumn, diff.DropColumn:
		missing = op.Column == nil
	case diff.AlterColumn:
		missing = op.Column == nil || op.OldColumn == nil
	case diff.AddConstraint, diff.DropConstraint:
		missing = op.Constraint == nil
	case diff.CreateIndex, diff.DropIndex:
		missing = op.Index == nil
	case diff.CreateTrigger, diff.DropTrigger:
		missing = op.Trigger == nil
	}
	if missing {
		return fmt.Errorf("malformed %s operation: missing payload", op.Type)
	}
	return nil
}

// quote renders an identifier in double quotes.
func quote(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// literal renders a string constant.
func literal(s string) string {
	return `'` + strings.ReplaceAll(s, `'`, `''`) + `'`
}

func (e *Emitter) qualify(schemaName, name string) string {
	if schemaName == "" || schemaName == e.DefaultSchema {
		return quote(name)
	}
	return pgx.Identifier{schemaName, name}.Sanitize()
}

func (e *Emitter) columnType(schemaName string, c schema.Column) string {
	if c.Enum == "" {
		return c.SQLType()
	}
	t := e.qualify(schemaName, c.Enum)
	if c.IsArray {
		t += "[]"
	}
	return t
}

func (e *Emitter) columnDef(schemaName string, c schema.Column) string {
	def := quote(c.Name) + " " + e.columnType(schemaName, c)
	if !c.Nullable {
		def += " NOT NULL"
	}
	if c.Default != nil {
		def += " DEFAULT " + *c.Default
	}
	return def
}

func columnList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	return strings.Join(quoted, ", ")
}

func (e *Emitter) constraintDef(schemaName string, c schema.Constraint) string {
	body := schema.MatchConstraint(c,
		func(pk *schema.PrimaryKeyConstraint) string {
			return fmt.Sprintf("PRIMARY KEY (%s)", columnList(pk.Columns))
		},
		func(fk *schema.ForeignKeyConstraint) string {
			s := fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)",
				columnList(fk.Columns), e.qualify(schemaName, fk.ReferenceTable), columnList(fk.ReferenceColumns))
			if fk.OnDelete != "" && fk.OnDelete != schema.NoAction {
				s += " ON DELETE " + string(fk.OnDelete)
			}
			if fk.OnUpdate != "" && fk.OnUpdate != schema.NoAction {
				s += " ON UPDATE " + string(fk.OnUpdate)
			}
			return s
		},
		func(uq *schema.UniqueConstraint) string {
			return fmt.Sprintf("UNIQUE (%s)", columnList(uq.Columns))
		},
		func(ck *schema.CheckConstraint) string {
			return fmt.Sprintf("CHECK (%s)", ck.Expression)
		},
	)
	return "CONSTRAINT " + quote(c.ConstraintName()) + " " + body
}

// createTable emits CREATE TABLE with its columns and primary key, followed
// by the remaining constraints, indexes and triggers of the table.
func (e *Emitter) createTable(op diff.Operation) []string {
	t := op.Table
	table := e.qualify(op.Schema, t.Name)

	var defs []string
	for _, c := range t.Columns {
		defs = append(defs, e.columnDef(op.Schema, c))
	}
	if pk := t.PrimaryKey(); pk != nil {
		defs = append(defs, e.constraintDef(op.Schema, pk))
	}

	stmts := one(fmt.Sprintf(`CREATE TABLE %s (%s)`, table, strings.Join(defs, ", ")))
	for _, c := range t.Constraints {
		if c.Kind() == schema.KindPrimaryKey {
			continue
		}
		stmts = append(stmts, one(fmt.Sprintf(`ALTER TABLE %s ADD %s`, table, e.constraintDef(op.Schema, c)))...)
	}
	for _, idx := range t.Indexes {
		stmts = append(stmts, one(e.createIndex(table, idx))...)
	}
	for _, tr := range t.Triggers {
		stmts = append(stmts, one(e.createTrigger(table, op.Schema, tr))...)
	}
	return stmts
}

// alterColumn emits one statement per changed attribute. A default that may
// not survive a type change is dropped first and set again afterwards.
func (e *Emitter) alterColumn(table string, op diff.Operation) []string {
	old, col := *op.OldColumn, *op.Column
	alter := fmt.Sprintf(`ALTER TABLE %s ALTER COLUMN %s `, table, quote(col.Name))

	var stmts []string
	typeChanged := old.SQLType() != col.SQLType() || old.Enum != col.Enum
	defaultChanged := (old.Default == nil) != (col.Default == nil) ||
		old.Default != nil && !schema.ExpressionsEqual(*old.Default, *col.Default)

	if old.Default != nil && (typeChanged || col.Default == nil) {
		stmts = append(stmts, one(alter+"DROP DEFAULT")...)
	}
	if typeChanged {
		newType := e.columnType(op.Schema, schema.Column{Type: schema.StorageType(col.Type), Enum: col.Enum, IsArray: col.IsArray})
		using := quote(col.Name)
		if old.Enum != "" && col.Enum != "" {
			using += "::text"
		}
		stmts = append(stmts, one(fmt.Sprintf("%sTYPE %s USING %s::%s", alter, newType, using, newType))...)
	}
	if old.Nullable != col.Nullable {
		if col.Nullable {
			stmts = append(stmts, one(alter+"DROP NOT NULL")...)
		} else {
			stmts = append(stmts, one(alter+"SET NOT NULL")...)
		}
	}
	if col.Default != nil && (typeChanged || defaultChanged) {
		stmts = append(stmts, one(alter+"SET DEFAULT "+*col.Default)...)
	}
	return stmts
}

func (e *Emitter) createIndex(table string, idx schema.Index) string {
	stmt := "CREATE"
	if idx.Unique {
		stmt += " UNIQUE"
	}
	stmt += " INDEX " + quote(idx.Name) + " ON " + table
	if idx.Using != "" && !strings.EqualFold(idx.Using, "btree") {
		stmt += " USING " + idx.Using
	}

	cols := make([]string, len(idx.Columns))
	for i, c := range idx.Columns {
		if schema.IsExpressionMember(c) {
			cols[i] = c
		} else {
			cols[i] = quote(c)
		}
	}
	stmt += " (" + strings.Join(cols, ", ") + ")"
	if idx.Where != "" {
		stmt += " WHERE " + idx.Where
	}
	return stmt
}

func (e *Emitter) createTrigger(table, schemaName string, tr schema.Trigger) string {
	forEach := "STATEMENT"
	if tr.ForEachRow {
		forEach = "ROW"
	}
	return fmt.Sprintf(`CREATE TRIGGER %s %s %s ON %s FOR EACH %s EXECUTE FUNCTION %s()`,
		quote(tr.Name), tr.Timing, strings.Join(tr.Events, " OR "), table, forEach, e.qualify(schemaName, tr.FunctionName))
}

func (e *Emitter) createFunction(op diff.Operation, replace bool) string {
	f := op.Function
	verb := "CREATE FUNCTION"
	if replace {
		verb = "CREATE OR REPLACE FUNCTION"
	}
	tag := dollarTag(f.Body)
	return fmt.Sprintf("%s %s(%s) RETURNS %s LANGUAGE %s AS %s%s%s",
		verb, e.qualify(op.Schema, f.Name), f.Arguments, f.Returns, f.Language, tag, f.Body, tag)
}

// dollarTag picks a dollar-quote delimiter that does not occur in body.
func dollarTag(body string) string {
	tag := "$$"
	for i := 0; strings.Contains(body, tag); i++ {
		tag = fmt.Sprintf("$fn%d$", i)
	}
	return tag
}

// identityArguments strips defaults from an argument list, which DROP
// FUNCTION does not accept.
func identityArguments(args string) string {
	var out []string
	depth, start := 0, 0
	split := func(end int) {
		arg := strings.TrimSpace(args[start:end])
		upper := strings.ToUpper(arg)
		if i := strings.Index(upper, " DEFAULT "); i >= 0 {
			arg = strings.TrimSpace(arg[:i])
		} else if i := strings.Index(arg, "="); i >= 0 {
			arg = strings.TrimSpace(arg[:i])
		}
		if arg != "" {
			out = append(out, arg)
		}
	}
	for i, r := range args {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				split(i)
				start = i + 1
			}
		}
	}
	split(len(args))
	return strings.Join(out, ", ")
}

var parameterName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

func (e *Emitter) parameter(op diff.Operation) ([]string, error) {
	p := op.Parameter
	if !parameterName.MatchString(p.Name) {
		return nil, fmt.Errorf("invalid parameter name %q", p.Name)
	}
	db := p.DatabaseName
	if db == "" {
		db = e.Database
	}
	if db == "" {
		return nil, fmt.Errorf("parameter %s: no database name", p.Name)
	}
	if op.Type == diff.ResetParameter {
		return one(fmt.Sprintf(`ALTER DATABASE %s RESET %s`, quote(db), p.Name)), nil
	}
	return one(fmt.Sprintf(`ALTER DATABASE %s SET %s TO %s`, quote(db), p.Name, literal(p.Value))), nil
}
