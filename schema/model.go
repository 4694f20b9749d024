// Package schema holds the canonical model both the declaration side and the
// live database are reduced to before they are compared.
//
// A DatabaseSchema is built once, by the normalizer or the introspector, and
// is treated as read-only afterwards. Tables own their columns, constraints,
// indexes and triggers; cross-table references (foreign keys) are by name.
package schema

import (
	"slices"
	"strings"
)

type DatabaseSchema struct {
	DatabaseName string
	SchemaName   string
	Tables       []Table
	Enums        []Enum
	Extensions   []Extension
	Functions    []Function
	Parameters   []Parameter
	Overrides    []Override
	Warnings     []string
}

type Table struct {
	Name        string
	Schema      string
	Columns     []Column
	Indexes     []Index
	Constraints []Constraint
	Triggers    []Trigger
	Synchronize bool
}

type Column struct {
	Name        string
	TableName   string
	Type        string // canonical type name; element type when IsArray
	Enum        string // set when Type names a declared enum
	Nullable    bool
	IsArray     bool
	Primary     bool
	Default     *string
	Synchronize bool
}

type Index struct {
	Name        string
	TableName   string
	Columns     []string
	Unique      bool
	Using       string // access method, btree when empty
	Where       string // partial index predicate
	Synchronize bool
}

// ReferencedColumns lists the columns the index is built on. Expression
// members contribute the identifiers they mention.
func (i Index) ReferencedColumns() []string {
	var cols []string
	for _, m := range i.Columns {
		if IsExpressionMember(m) {
			cols = append(cols, ExpressionIdentifiers(m)...)
		} else {
			cols = append(cols, m)
		}
	}
	return cols
}

type TriggerTiming string

const (
	Before    TriggerTiming = "BEFORE"
	After     TriggerTiming = "AFTER"
	InsteadOf TriggerTiming = "INSTEAD OF"
)

type Trigger struct {
	Name         string
	TableName    string
	Timing       TriggerTiming
	Events       []string // INSERT, UPDATE, DELETE, TRUNCATE in that order
	ForEachRow   bool
	FunctionName string
	Synchronize  bool
}

type Enum struct {
	Name        string
	Schema      string
	Values      []string
	Synchronize bool
}

type Extension struct {
	Name        string
	Version     string // empty accepts whatever version is installed
	Synchronize bool
}

type Function struct {
	Name        string
	Arguments   string // argument list as rendered by pg_get_function_arguments
	Returns     string
	Language    string
	Body        string
	Synchronize bool
}

type Parameter struct {
	Name         string
	Value        string
	DatabaseName string
	Synchronize  bool
}

// Override pins the name of the constraint or index identified by
// (TableName, Kind, Columns). Column order is irrelevant to matching.
type Override struct {
	TableName string
	Kind      ObjectKind
	Columns   []string
	Name      string
}

// eventOrder is the canonical order trigger events are stored in.
var eventOrder = []string{"INSERT", "UPDATE", "DELETE", "TRUNCATE"}

// SortEvents upper-cases and orders trigger events canonically, dropping duplicates.
func SortEvents(events []string) []string {
	seen := map[string]bool{}
	for _, e := range events {
		seen[strings.ToUpper(strings.TrimSpace(e))] = true
	}
	var out []string
	for _, e := range eventOrder {
		if seen[e] {
			out = append(out, e)
		}
	}
	return out
}

// --- lookups ---

func (s *DatabaseSchema) Table(name string) *Table {
	for i := range s.Tables {
		if s.Tables[i].Name == name {
			return &s.Tables[i]
		}
	}
	return nil
}

func (s *DatabaseSchema) Enum(name string) *Enum {
	for i := range s.Enums {
		if s.Enums[i].Name == name {
			return &s.Enums[i]
		}
	}
	return nil
}

func (s *DatabaseSchema) Extension(name string) *Extension {
	for i := range s.Extensions {
		if s.Extensions[i].Name == name {
			return &s.Extensions[i]
		}
	}
	return nil
}

func (s *DatabaseSchema) Function(name string) *Function {
	for i := range s.Functions {
		if s.Functions[i].Name == name {
			return &s.Functions[i]
		}
	}
	return nil
}

func (s *DatabaseSchema) Parameter(name string) *Parameter {
	for i := range s.Parameters {
		if s.Parameters[i].Name == name {
			return &s.Parameters[i]
		}
	}
	return nil
}

func (t *Table) Column(name string) *Column {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i]
		}
	}
	return nil
}

func (t *Table) Constraint(name string) Constraint {
	for _, c := range t.Constraints {
		if c.ConstraintName() == name {
			return c
		}
	}
	return nil
}

func (t *Table) Index(name string) *Index {
	for i := range t.Indexes {
		if t.Indexes[i].Name == name {
			return &t.Indexes[i]
		}
	}
	return nil
}

func (t *Table) Trigger(name string) *Trigger {
	for i := range t.Triggers {
		if t.Triggers[i].Name == name {
			return &t.Triggers[i]
		}
	}
	return nil
}

// PrimaryKey returns the table's primary key constraint, or nil.
func (t *Table) PrimaryKey() *PrimaryKeyConstraint {
	for _, c := range t.Constraints {
		if pk, ok := c.(*PrimaryKeyConstraint); ok {
			return pk
		}
	}
	return nil
}

// QualifiedName is schema.table.
func (t *Table) QualifiedName() string {
	return Qualify(t.Schema, t.Name)
}

// Qualify joins non-empty parts with dots.
func Qualify(parts ...string) string {
	parts = slices.DeleteFunc(slices.Clone(parts), func(p string) bool { return p == "" })
	return strings.Join(parts, ".")
}

// SQLType is the column type as written in DDL, including the array suffix.
func (c Column) SQLType() string {
	if c.IsArray {
		return c.Type + "[]"
	}
	return c.Type
}

// UsesEnum reports whether any column in the schema references the named enum.
func (s *DatabaseSchema) UsesEnum(name string) bool {
	for _, t := range s.Tables {
		for _, c := range t.Columns {
			if c.Enum == name {
				return true
			}
		}
	}
	return false
}
