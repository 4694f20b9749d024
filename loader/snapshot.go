package loader

import (
	"strings"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/naming"
	"github.com/ridoystarlord/schemasync/schema"
)

// FromSchema turns an introspected schema back into a declaration tree, the
// inverse of normalization. Names that match the naming convention are left
// out so the result reads like a hand-written declaration; check constraint
// names are always kept because their default depends on column extraction.
func FromSchema(s *schema.DatabaseSchema, maxIdentifierLength int) definition.Tree {
	r := naming.NewResolver(nil, maxIdentifierLength)
	tree := definition.Tree{Database: s.DatabaseName, Schema: s.SchemaName}

	for _, e := range s.Extensions {
		tree.Extensions = append(tree.Extensions, definition.ExtensionDef{Name: e.Name, Version: e.Version})
	}
	for _, e := range s.Enums {
		tree.Enums = append(tree.Enums, definition.EnumDef{Name: e.Name, Values: append([]string(nil), e.Values...)})
	}
	for _, f := range s.Functions {
		tree.Functions = append(tree.Functions, definition.FunctionDef{
			Name: f.Name, Arguments: f.Arguments, Returns: f.Returns, Language: f.Language, Body: f.Body,
		})
	}
	for _, p := range s.Parameters {
		tree.Parameters = append(tree.Parameters, definition.ParameterDef{Name: p.Name, Value: p.Value})
	}
	for _, t := range s.Tables {
		tree.Tables = append(tree.Tables, tableDef(&t, r))
	}
	return tree
}

func tableDef(t *schema.Table, r *naming.Resolver) definition.TableDef {
	unlessDefault := func(kind schema.ObjectKind, name string, columns []string) string {
		if name == r.Default(t.Name, kind, columns) {
			return ""
		}
		return name
	}

	def := definition.TableDef{Name: t.Name}
	for _, c := range t.Columns {
		def.Columns = append(def.Columns, definition.ColumnDef{
			Name:     c.Name,
			Type:     c.SQLType(),
			Nullable: c.Nullable && !c.Primary,
			Default:  c.Default,
		})
	}

	for _, con := range t.Constraints {
		schema.MatchConstraint(con,
			func(pk *schema.PrimaryKeyConstraint) any {
				def.PrimaryKey = &definition.KeyDef{Name: unlessDefault(schema.KindPrimaryKey, pk.Name, pk.Columns), Columns: pk.Columns}
				return nil
			},
			func(fk *schema.ForeignKeyConstraint) any {
				def.ForeignKeys = append(def.ForeignKeys, definition.ForeignKeyDef{
					Name:              unlessDefault(schema.KindForeignKey, fk.Name, fk.Columns),
					Columns:           fk.Columns,
					ReferencesTable:   fk.ReferenceTable,
					ReferencesColumns: fk.ReferenceColumns,
					OnDelete:          action(fk.OnDelete),
					OnUpdate:          action(fk.OnUpdate),
				})
				return nil
			},
			func(uq *schema.UniqueConstraint) any {
				def.Uniques = append(def.Uniques, definition.KeyDef{Name: unlessDefault(schema.KindUnique, uq.Name, uq.Columns), Columns: uq.Columns})
				return nil
			},
			func(ck *schema.CheckConstraint) any {
				def.Checks = append(def.Checks, definition.CheckDef{Name: ck.Name, Expression: ck.Expression})
				return nil
			},
		)
	}

	for _, idx := range t.Indexes {
		using := idx.Using
		if using == "btree" {
			using = ""
		}
		def.Indexes = append(def.Indexes, definition.IndexDef{
			Name:    unlessDefault(schema.KindIndex, idx.Name, naming.IndexNameParts(idx.Columns)),
			Columns: idx.Columns,
			Unique:  idx.Unique,
			Type:    using,
			Where:   idx.Where,
		})
	}

	for _, tr := range t.Triggers {
		forEach := "row"
		if !tr.ForEachRow {
			forEach = "statement"
		}
		events := make([]string, len(tr.Events))
		for i, e := range tr.Events {
			events[i] = strings.ToLower(e)
		}
		def.Triggers = append(def.Triggers, definition.TriggerDef{
			Name:     tr.Name,
			Timing:   strings.ToLower(string(tr.Timing)),
			Events:   events,
			ForEach:  forEach,
			Function: tr.FunctionName,
		})
	}
	return def
}

func action(a schema.Action) string {
	if a == schema.NoAction {
		return ""
	}
	return strings.ToLower(string(a))
}
