package introspect

import (
	"regexp"
	"slices"
	"strings"

	"github.com/ridoystarlord/schemasync/naming"
	"github.com/ridoystarlord/schemasync/schema"
)

// Raw catalog rows, in the column order of the matching query.

type extensionRow struct {
	Name    string
	Version string
}

type enumRow struct {
	Name   string
	Values []string
}

type functionRow struct {
	Name      string
	Arguments string
	Returns   string
	Language  string
	Body      string
}

type columnRow struct {
	Table    string
	Name     string
	Type     string
	NotNull  bool
	Default  *string
	EnumName *string
	IsArray  bool
}

type constraintRow struct {
	Table      string
	Name       string
	Type       string
	Columns    []string
	RefTable   *string
	RefColumns []string
	OnDelete   string
	OnUpdate   string
	Definition string
}

type indexRow struct {
	Table     string
	Name      string
	Columns   []string
	Unique    bool
	Method    string
	Predicate *string
}

type triggerRow struct {
	Table    string
	Name     string
	Type     int16
	Function string
}

type catalog struct {
	database    string
	extensions  []extensionRow
	enums       []enumRow
	functions   []functionRow
	parameters  []string
	tables      []string
	columns     []columnRow
	constraints []constraintRow
	indexes     []indexRow
	triggers    []triggerRow
}

// pg_trigger.tgtype bits
const (
	tgRow      = 1 << 0
	tgBefore   = 1 << 1
	tgInsert   = 1 << 2
	tgDelete   = 1 << 3
	tgUpdate   = 1 << 4
	tgTruncate = 1 << 5
	tgInstead  = 1 << 6
)

var (
	nextvalDefault = regexp.MustCompile(`^nextval\('(?:"?[\w$]+"?\.)?"?([\w$]+)"?'(?:::regclass)?\)$`)
	castedLiteral  = regexp.MustCompile(`^('(?:[^']|'')*')::[\w\s."]+(?:\([\d,\s]*\))?(?:\[\])*$`)
)

func assemble(cat catalog, opts Options) *schema.DatabaseSchema {
	s := &schema.DatabaseSchema{
		DatabaseName: cat.database,
		SchemaName:   opts.Schema,
	}

	for _, e := range cat.extensions {
		s.Extensions = append(s.Extensions, schema.Extension{Name: e.Name, Version: e.Version, Synchronize: true})
	}
	for _, e := range cat.enums {
		s.Enums = append(s.Enums, schema.Enum{Name: e.Name, Schema: opts.Schema, Values: e.Values, Synchronize: true})
	}
	for _, f := range cat.functions {
		s.Functions = append(s.Functions, schema.Function{
			Name:        f.Name,
			Arguments:   f.Arguments,
			Returns:     f.Returns,
			Language:    f.Language,
			Body:        f.Body,
			Synchronize: true,
		})
	}
	for _, p := range cat.parameters {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			continue
		}
		s.Parameters = append(s.Parameters, schema.Parameter{
			Name:         name,
			Value:        value,
			DatabaseName: cat.database,
			Synchronize:  true,
		})
	}

	ignored := func(table string) bool {
		return table == opts.MigrationsTable || slices.Contains(opts.Ignore, table)
	}
	for _, name := range cat.tables {
		if ignored(name) {
			continue
		}
		s.Tables = append(s.Tables, schema.Table{Name: name, Schema: opts.Schema, Synchronize: true})
	}

	for _, r := range cat.columns {
		t := s.Table(r.Table)
		if t == nil {
			continue
		}
		t.Columns = append(t.Columns, column(r))
	}
	for _, r := range cat.constraints {
		t := s.Table(r.Table)
		if t == nil {
			continue
		}
		c := constraint(r, t)
		if pk, ok := c.(*schema.PrimaryKeyConstraint); ok {
			for _, name := range pk.Columns {
				if col := t.Column(name); col != nil {
					col.Primary = true
				}
			}
		}
		t.Constraints = append(t.Constraints, c)
	}
	for _, r := range cat.indexes {
		t := s.Table(r.Table)
		if t == nil {
			continue
		}
		idx := schema.Index{
			Name:        r.Name,
			TableName:   r.Table,
			Unique:      r.Unique,
			Using:       r.Method,
			Synchronize: true,
		}
		for _, c := range r.Columns {
			idx.Columns = append(idx.Columns, unquoteIdent(c))
		}
		if r.Predicate != nil {
			idx.Where = unwrapParens(*r.Predicate)
		}
		t.Indexes = append(t.Indexes, idx)
	}
	for _, r := range cat.triggers {
		t := s.Table(r.Table)
		if t == nil {
			continue
		}
		t.Triggers = append(t.Triggers, trigger(r))
	}
	return s
}

func column(r columnRow) schema.Column {
	col := schema.Column{
		Name:        r.Name,
		TableName:   r.Table,
		Nullable:    !r.NotNull,
		Synchronize: true,
	}
	if r.EnumName != nil {
		col.Type, col.Enum, col.IsArray = *r.EnumName, *r.EnumName, r.IsArray
	} else {
		col.Type, col.IsArray = schema.CanonicalType(r.Type)
	}

	if r.Default == nil {
		return col
	}
	def := strings.TrimSpace(*r.Default)
	if m := nextvalDefault.FindStringSubmatch(def); m != nil && !col.IsArray && m[1] == r.Table+"_"+r.Name+"_seq" {
		switch col.Type {
		case "integer", "bigint", "smallint":
			col.Type = schema.SerialFor(col.Type)
			return col
		}
	}
	if m := castedLiteral.FindStringSubmatch(def); m != nil {
		def = m[1]
	}
	col.Default = &def
	return col
}

func constraint(r constraintRow, t *schema.Table) schema.Constraint {
	base := schema.ConstraintBase{Name: r.Name, TableName: r.Table, Synchronize: true}
	switch r.Type {
	case "p":
		return &schema.PrimaryKeyConstraint{ConstraintBase: base, Columns: r.Columns}
	case "u":
		return &schema.UniqueConstraint{ConstraintBase: base, Columns: r.Columns}
	case "f":
		fk := &schema.ForeignKeyConstraint{
			ConstraintBase:   base,
			Columns:          r.Columns,
			ReferenceColumns: r.RefColumns,
			OnDelete:         action(r.OnDelete),
			OnUpdate:         action(r.OnUpdate),
		}
		if r.RefTable != nil {
			fk.ReferenceTable = *r.RefTable
		}
		return fk
	default:
		expr := checkExpression(r.Definition)
		return &schema.CheckConstraint{
			ConstraintBase: base,
			Expression:     expr,
			Columns:        naming.CheckColumns(expr, t),
		}
	}
}

func action(code string) schema.Action {
	switch code {
	case "r":
		return schema.Restrict
	case "c":
		return schema.Cascade
	case "n":
		return schema.SetNull
	case "d":
		return schema.SetDefault
	}
	return schema.NoAction
}

func trigger(r triggerRow) schema.Trigger {
	tr := schema.Trigger{
		Name:         r.Name,
		TableName:    r.Table,
		ForEachRow:   r.Type&tgRow != 0,
		FunctionName: r.Function,
		Synchronize:  true,
	}
	switch {
	case r.Type&tgInstead != 0:
		tr.Timing = schema.InsteadOf
	case r.Type&tgBefore != 0:
		tr.Timing = schema.Before
	default:
		tr.Timing = schema.After
	}
	var events []string
	if r.Type&tgInsert != 0 {
		events = append(events, "INSERT")
	}
	if r.Type&tgUpdate != 0 {
		events = append(events, "UPDATE")
	}
	if r.Type&tgDelete != 0 {
		events = append(events, "DELETE")
	}
	if r.Type&tgTruncate != 0 {
		events = append(events, "TRUNCATE")
	}
	tr.Events = schema.SortEvents(events)
	return tr
}

// checkExpression turns pg_get_constraintdef output, e.g.
// "CHECK ((amount > 0)) NOT VALID", into the bare expression "amount > 0".
func checkExpression(def string) string {
	def = strings.TrimSpace(def)
	def = strings.TrimSuffix(def, " NOT VALID")
	def = strings.TrimSuffix(def, " NO INHERIT")
	def = strings.TrimSpace(strings.TrimPrefix(def, "CHECK"))
	return unwrapParens(def)
}

// unwrapParens removes parentheses that enclose the whole expression.
func unwrapParens(expr string) string {
	expr = strings.TrimSpace(expr)
	for len(expr) >= 2 && expr[0] == '(' && expr[len(expr)-1] == ')' && enclosing(expr) {
		expr = strings.TrimSpace(expr[1 : len(expr)-1])
	}
	return expr
}

// enclosing reports whether the opening paren at 0 closes at the last byte.
func enclosing(expr string) bool {
	depth := 0
	inString := false
	for i := 0; i < len(expr); i++ {
		switch c := expr[i]; {
		case c == '\'':
			inString = !inString
		case inString:
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 && i != len(expr)-1 {
				return false
			}
		}
	}
	return depth == 0
}

func unquoteIdent(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return strings.ReplaceAll(s[1:len(s)-1], `""`, `"`)
	}
	return s
}
