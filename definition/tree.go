// Package definition is the intermediate description format every
// declaration front end produces: a plain, serializable tree of tables,
// columns, constraints and database-level objects. The YAML loader, the Go
// struct scanner and the Builder all emit a Tree; the normalizer consumes it
// read-only.
package definition

import (
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

type Tree struct {
	Database   string         `yaml:"database,omitempty" json:"database,omitempty"`
	Schema     string         `yaml:"schema,omitempty" json:"schema,omitempty"`
	Extensions []ExtensionDef `yaml:"extensions,omitempty" json:"extensions,omitempty"`
	Enums      []EnumDef      `yaml:"enums,omitempty" json:"enums,omitempty"`
	Functions  []FunctionDef  `yaml:"functions,omitempty" json:"functions,omitempty"`
	Parameters []ParameterDef `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Overrides  []OverrideDef  `yaml:"overrides,omitempty" json:"overrides,omitempty"`
	Tables     []TableDef     `yaml:"tables" json:"tables"`
}

type ExtensionDef struct {
	Name        string `yaml:"name" json:"name"`
	Version     string `yaml:"version,omitempty" json:"version,omitempty"`
	Synchronize *bool  `yaml:"synchronize,omitempty" json:"synchronize,omitempty"`
}

type EnumDef struct {
	Name        string   `yaml:"name" json:"name"`
	Values      []string `yaml:"values" json:"values"`
	Synchronize *bool    `yaml:"synchronize,omitempty" json:"synchronize,omitempty"`
}

type FunctionDef struct {
	Name        string `yaml:"name" json:"name"`
	Arguments   string `yaml:"arguments,omitempty" json:"arguments,omitempty"`
	Returns     string `yaml:"returns" json:"returns"`
	Language    string `yaml:"language,omitempty" json:"language,omitempty"`
	Body        string `yaml:"body" json:"body"`
	Synchronize *bool  `yaml:"synchronize,omitempty" json:"synchronize,omitempty"`
}

type ParameterDef struct {
	Name        string `yaml:"name" json:"name"`
	Value       string `yaml:"value" json:"value"`
	Synchronize *bool  `yaml:"synchronize,omitempty" json:"synchronize,omitempty"`
}

// OverrideDef pins a name to the constraint or index of Kind over Columns in Table.
type OverrideDef struct {
	Table   string   `yaml:"table" json:"table"`
	Kind    string   `yaml:"kind" json:"kind"`
	Columns []string `yaml:"columns" json:"columns"`
	Name    string   `yaml:"name" json:"name"`
}

type TableDef struct {
	Name        string          `yaml:"name" json:"name"`
	Synchronize *bool           `yaml:"synchronize,omitempty" json:"synchronize,omitempty"`
	Columns     []ColumnDef     `yaml:"columns" json:"columns"`
	PrimaryKey  *KeyDef         `yaml:"primary_key,omitempty" json:"primary_key,omitempty"`
	Uniques     []KeyDef        `yaml:"uniques,omitempty" json:"uniques,omitempty"`
	Checks      []CheckDef      `yaml:"checks,omitempty" json:"checks,omitempty"`
	ForeignKeys []ForeignKeyDef `yaml:"foreign_keys,omitempty" json:"foreign_keys,omitempty"`
	Indexes     []IndexDef      `yaml:"indexes,omitempty" json:"indexes,omitempty"`
	Triggers    []TriggerDef    `yaml:"triggers,omitempty" json:"triggers,omitempty"`
}

type ColumnDef struct {
	Name        string         `yaml:"name" json:"name"`
	Type        string         `yaml:"type" json:"type"`
	Enum        string         `yaml:"enum,omitempty" json:"enum,omitempty"`
	Primary     bool           `yaml:"primary,omitempty" json:"primary,omitempty"`
	Unique      bool           `yaml:"unique,omitempty" json:"unique,omitempty"`
	Nullable    bool           `yaml:"nullable,omitempty" json:"nullable,omitempty"`
	Default     *string        `yaml:"default,omitempty" json:"default,omitempty"`
	Index       *ColumnIndex   `yaml:"index,omitempty" json:"index,omitempty"`
	ForeignKey  *ForeignKeyRef `yaml:"foreign_key,omitempty" json:"foreign_key,omitempty"`
	Synchronize *bool          `yaml:"synchronize,omitempty" json:"synchronize,omitempty"`
}

// ColumnIndex is a single-column index declared inline. In YAML it is either
// `index: true` or a mapping with name/type/unique.
type ColumnIndex struct {
	Name   string `yaml:"name,omitempty" json:"name,omitempty"`
	Type   string `yaml:"type,omitempty" json:"type,omitempty"`
	Unique bool   `yaml:"unique,omitempty" json:"unique,omitempty"`
}

func (c *ColumnIndex) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var on bool
		if err := node.Decode(&on); err != nil {
			return fmt.Errorf("line %d: index must be a boolean or a mapping", node.Line)
		}
		if !on {
			// index: false is treated as absent by the normalizer
			*c = ColumnIndex{Type: "-"}
		}
		return nil
	}
	type plain ColumnIndex
	return node.Decode((*plain)(c))
}

// Disabled reports an explicit `index: false`.
func (c *ColumnIndex) Disabled() bool {
	return c != nil && c.Type == "-"
}

// ForeignKeyRef is a single-column foreign key declared inline.
type ForeignKeyRef struct {
	Name             string `yaml:"name,omitempty" json:"name,omitempty"`
	ReferencesTable  string `yaml:"references_table" json:"references_table"`
	ReferencesColumn string `yaml:"references_column,omitempty" json:"references_column,omitempty"`
	OnDelete         string `yaml:"on_delete,omitempty" json:"on_delete,omitempty"`
	OnUpdate         string `yaml:"on_update,omitempty" json:"on_update,omitempty"`
}

type KeyDef struct {
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Columns     []string `yaml:"columns" json:"columns"`
	Synchronize *bool    `yaml:"synchronize,omitempty" json:"synchronize,omitempty"`
}

type CheckDef struct {
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Expression  string   `yaml:"expression" json:"expression"`
	Columns     []string `yaml:"columns,omitempty" json:"columns,omitempty"`
	Synchronize *bool    `yaml:"synchronize,omitempty" json:"synchronize,omitempty"`
}

type ForeignKeyDef struct {
	Name              string   `yaml:"name,omitempty" json:"name,omitempty"`
	Columns           []string `yaml:"columns" json:"columns"`
	ReferencesTable   string   `yaml:"references_table" json:"references_table"`
	ReferencesColumns []string `yaml:"references_columns,omitempty" json:"references_columns,omitempty"`
	OnDelete          string   `yaml:"on_delete,omitempty" json:"on_delete,omitempty"`
	OnUpdate          string   `yaml:"on_update,omitempty" json:"on_update,omitempty"`
	Synchronize       *bool    `yaml:"synchronize,omitempty" json:"synchronize,omitempty"`
}

type IndexDef struct {
	Name        string   `yaml:"name,omitempty" json:"name,omitempty"`
	Columns     []string `yaml:"columns" json:"columns"`
	Unique      bool     `yaml:"unique,omitempty" json:"unique,omitempty"`
	Type        string   `yaml:"type,omitempty" json:"type,omitempty"`
	Where       string   `yaml:"where,omitempty" json:"where,omitempty"`
	Synchronize *bool    `yaml:"synchronize,omitempty" json:"synchronize,omitempty"`
}

type TriggerDef struct {
	Name        string   `yaml:"name" json:"name"`
	Timing      string   `yaml:"timing" json:"timing"`
	Events      []string `yaml:"events" json:"events"`
	ForEach     string   `yaml:"for_each,omitempty" json:"for_each,omitempty"` // row (default) or statement
	Function    string   `yaml:"function" json:"function"`
	Synchronize *bool    `yaml:"synchronize,omitempty" json:"synchronize,omitempty"`
}

// Synced resolves an optional synchronize flag; absent means true.
func Synced(flag *bool) bool {
	return flag == nil || *flag
}

// Clone returns a deep copy of the tree.
func (t Tree) Clone() Tree {
	out := t
	out.Extensions = slices.Clone(t.Extensions)
	out.Enums = make([]EnumDef, len(t.Enums))
	for i, e := range t.Enums {
		e.Values = slices.Clone(e.Values)
		out.Enums[i] = e
	}
	out.Functions = slices.Clone(t.Functions)
	out.Parameters = slices.Clone(t.Parameters)
	out.Overrides = make([]OverrideDef, len(t.Overrides))
	for i, o := range t.Overrides {
		o.Columns = slices.Clone(o.Columns)
		out.Overrides[i] = o
	}
	out.Tables = make([]TableDef, len(t.Tables))
	for i, tbl := range t.Tables {
		out.Tables[i] = tbl.clone()
	}
	return out
}

func (t TableDef) clone() TableDef {
	out := t
	out.Columns = make([]ColumnDef, len(t.Columns))
	for i, c := range t.Columns {
		if c.Default != nil {
			d := *c.Default
			c.Default = &d
		}
		if c.Index != nil {
			idx := *c.Index
			c.Index = &idx
		}
		if c.ForeignKey != nil {
			fk := *c.ForeignKey
			c.ForeignKey = &fk
		}
		out.Columns[i] = c
	}
	if t.PrimaryKey != nil {
		pk := *t.PrimaryKey
		pk.Columns = slices.Clone(pk.Columns)
		out.PrimaryKey = &pk
	}
	out.Uniques = make([]KeyDef, len(t.Uniques))
	for i, u := range t.Uniques {
		u.Columns = slices.Clone(u.Columns)
		out.Uniques[i] = u
	}
	out.Checks = make([]CheckDef, len(t.Checks))
	for i, c := range t.Checks {
		c.Columns = slices.Clone(c.Columns)
		out.Checks[i] = c
	}
	out.ForeignKeys = make([]ForeignKeyDef, len(t.ForeignKeys))
	for i, fk := range t.ForeignKeys {
		fk.Columns = slices.Clone(fk.Columns)
		fk.ReferencesColumns = slices.Clone(fk.ReferencesColumns)
		out.ForeignKeys[i] = fk
	}
	out.Indexes = make([]IndexDef, len(t.Indexes))
	for i, idx := range t.Indexes {
		idx.Columns = slices.Clone(idx.Columns)
		out.Indexes[i] = idx
	}
	out.Triggers = make([]TriggerDef, len(t.Triggers))
	for i, tr := range t.Triggers {
		tr.Events = slices.Clone(tr.Events)
		out.Triggers[i] = tr
	}
	return out
}
