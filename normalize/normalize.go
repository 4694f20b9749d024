// Package normalize turns a declaration tree into a canonical schema
// snapshot. Every unnamed constraint and index is named through the naming
// resolver so that the result can be compared with an introspected catalog.
package normalize

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/errs"
	"github.com/ridoystarlord/schemasync/naming"
	"github.com/ridoystarlord/schemasync/schema"
	"github.com/ridoystarlord/schemasync/validator"
)

type Options struct {
	DatabaseName        string
	SchemaName          string
	MaxIdentifierLength int
}

func (o Options) withDefaults(tree definition.Tree) Options {
	if tree.Database != "" {
		o.DatabaseName = tree.Database
	}
	if tree.Schema != "" {
		o.SchemaName = tree.Schema
	}
	if o.DatabaseName == "" {
		o.DatabaseName = "postgres"
	}
	if o.SchemaName == "" {
		o.SchemaName = "public"
	}
	if o.MaxIdentifierLength == 0 {
		o.MaxIdentifierLength = naming.DefaultMaxIdentifierLength
	}
	return o
}

type normalizer struct {
	opts     Options
	tree     definition.Tree
	resolver *naming.Resolver
	out      *schema.DatabaseSchema
	enums    map[string]bool
}

// Normalize validates tree and builds the target snapshot. It returns a
// declaration error describing the first inconsistency found. tree is not modified.
func Normalize(tree definition.Tree, opts Options) (*schema.DatabaseSchema, error) {
	opts = opts.withDefaults(tree)
	if err := naming.CheckMaxIdentifierLength(opts.MaxIdentifierLength); err != nil {
		return nil, err
	}
	n := &normalizer{
		opts:  opts,
		tree:  tree,
		enums: map[string]bool{},
		out: &schema.DatabaseSchema{
			DatabaseName: opts.DatabaseName,
			SchemaName:   opts.SchemaName,
		},
	}

	steps := []func() error{
		n.databaseObjects,
		n.tables,
		n.overrides,
		n.constraints,
		n.uniqueNames,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return nil, err
		}
	}

	lint := validator.NewSchemaValidator(opts.MaxIdentifierLength).ValidateSchema(tree)
	n.out.Warnings = append(n.out.Warnings, lint.WarningMessages()...)
	n.excludedWarnings()
	return n.out, nil
}

func (n *normalizer) qualify(parts ...string) string {
	return schema.Qualify(append([]string{n.opts.SchemaName}, parts...)...)
}

func (n *normalizer) databaseObjects() error {
	seen := map[string]bool{}
	for _, e := range n.tree.Extensions {
		if e.Name == "" {
			return errs.Declaration(n.opts.DatabaseName, "extension without a name")
		}
		if seen[e.Name] {
			return errs.Declaration(e.Name, "extension declared more than once")
		}
		seen[e.Name] = true
		n.out.Extensions = append(n.out.Extensions, schema.Extension{Name: e.Name, Version: e.Version, Synchronize: definition.Synced(e.Synchronize)})
	}

	for _, e := range n.tree.Enums {
		name := n.qualify(e.Name)
		if n.enums[e.Name] {
			return errs.Declaration(name, "enum declared more than once")
		}
		if len(e.Values) == 0 {
			return errs.Declaration(name, "enum must have at least one value")
		}
		values := map[string]bool{}
		for _, v := range e.Values {
			if values[v] {
				return errs.Declaration(name, "enum value %q repeated", v)
			}
			values[v] = true
		}
		n.enums[e.Name] = true
		n.out.Enums = append(n.out.Enums, schema.Enum{
			Name:        e.Name,
			Schema:      n.opts.SchemaName,
			Values:      slices.Clone(e.Values),
			Synchronize: definition.Synced(e.Synchronize),
		})
	}

	seen = map[string]bool{}
	for _, f := range n.tree.Functions {
		name := n.qualify(f.Name)
		if f.Name == "" || f.Returns == "" || f.Body == "" {
			return errs.Declaration(name, "function needs a name, a return type and a body")
		}
		if seen[f.Name] {
			return errs.Declaration(name, "function declared more than once (overloads are not supported)")
		}
		seen[f.Name] = true
		lang := strings.ToLower(f.Language)
		if lang == "" {
			lang = "plpgsql"
		}
		n.out.Functions = append(n.out.Functions, schema.Function{
			Name:        f.Name,
			Arguments:   strings.TrimSpace(f.Arguments),
			Returns:     strings.TrimSpace(f.Returns),
			Language:    lang,
			Body:        f.Body,
			Synchronize: definition.Synced(f.Synchronize),
		})
	}

	seen = map[string]bool{}
	for _, p := range n.tree.Parameters {
		if seen[p.Name] {
			return errs.Declaration(schema.Qualify(n.opts.DatabaseName, p.Name), "parameter declared more than once")
		}
		seen[p.Name] = true
		n.out.Parameters = append(n.out.Parameters, schema.Parameter{
			Name:         p.Name,
			Value:        p.Value,
			DatabaseName: n.opts.DatabaseName,
			Synchronize:  definition.Synced(p.Synchronize),
		})
	}
	return nil
}

// tables builds tables and columns; constraints come later once every table is known.
func (n *normalizer) tables() error {
	for _, td := range n.tree.Tables {
		name := n.qualify(td.Name)
		if td.Name == "" {
			return errs.Declaration(n.opts.SchemaName, "table without a name")
		}
		if n.out.Table(td.Name) != nil {
			return errs.Declaration(name, "duplicate table name")
		}

		table := schema.Table{
			Name:        td.Name,
			Schema:      n.opts.SchemaName,
			Synchronize: definition.Synced(td.Synchronize),
		}
		for _, cd := range td.Columns {
			colName := n.qualify(td.Name, cd.Name)
			if cd.Name == "" {
				return errs.Declaration(name, "column without a name")
			}
			if table.Column(cd.Name) != nil {
				return errs.Declaration(colName, "duplicate column name")
			}
			if cd.Type == "" && cd.Enum == "" {
				return errs.Declaration(colName, "column has no type")
			}

			typ, isArray := schema.CanonicalType(cd.Type)
			col := schema.Column{
				Name:        cd.Name,
				TableName:   td.Name,
				Type:        typ,
				IsArray:     isArray,
				Nullable:    cd.Nullable && !cd.Primary,
				Primary:     cd.Primary,
				Synchronize: definition.Synced(cd.Synchronize),
			}
			switch {
			case cd.Enum != "":
				if !n.enums[cd.Enum] {
					return errs.Declaration(colName, "column references undeclared enum %q", cd.Enum)
				}
				col.Enum = cd.Enum
				if cd.Type == "" {
					col.Type = cd.Enum
				}
			case n.enums[cd.Type]:
				col.Type, col.Enum = cd.Type, cd.Type
			case n.enums[strings.TrimSuffix(cd.Type, "[]")]:
				col.Type, col.Enum = strings.TrimSuffix(cd.Type, "[]"), strings.TrimSuffix(cd.Type, "[]")
			}
			if cd.Default != nil && !schema.IsSerial(col.Type) {
				d := strings.TrimSpace(*cd.Default)
				col.Default = &d
			}
			table.Columns = append(table.Columns, col)
		}
		n.out.Tables = append(n.out.Tables, table)
	}
	return nil
}

func (n *normalizer) overrides() error {
	for _, od := range n.tree.Overrides {
		kind, ok := schema.ParseObjectKind(od.Kind)
		entity := n.qualify(od.Table)
		if !ok {
			return errs.Declaration(entity, "override has unknown kind %q", od.Kind)
		}
		if od.Name == "" {
			return errs.Declaration(entity, "override for %s(%s) has no name", kind, strings.Join(od.Columns, ","))
		}
		table := n.out.Table(od.Table)
		if table == nil {
			return errs.Declaration(entity, "override %q references a table that is not declared", od.Name)
		}
		for _, c := range od.Columns {
			if table.Column(c) == nil {
				return errs.Declaration(n.qualify(od.Table, c), "override %q references a column that does not exist", od.Name)
			}
		}
		override := schema.Override{TableName: od.Table, Kind: kind, Columns: slices.Clone(od.Columns), Name: od.Name}
		for _, prev := range n.out.Overrides {
			if prev.TableName == override.TableName && prev.Kind == override.Kind && sameSet(prev.Columns, override.Columns) && prev.Name != override.Name {
				n.out.Warnings = append(n.out.Warnings, fmt.Sprintf("%s: overrides %q and %q target the same %s; using %q",
					entity, prev.Name, override.Name, kind, min(prev.Name, override.Name)))
			}
		}
		n.out.Overrides = append(n.out.Overrides, override)
	}
	n.resolver = naming.NewResolver(n.out.Overrides, n.opts.MaxIdentifierLength)
	return nil
}

func sameSet(a, b []string) bool {
	x, y := slices.Clone(a), slices.Clone(b)
	slices.Sort(x)
	slices.Sort(y)
	return slices.Equal(slices.Compact(x), slices.Compact(y))
}

// name returns the explicit name, else the override or conventional name.
func (n *normalizer) name(explicit, table string, kind schema.ObjectKind, columns []string) string {
	if explicit != "" {
		return explicit
	}
	return n.resolver.Resolve(table, kind, columns)
}

func (n *normalizer) requireColumns(table *schema.Table, what string, columns []string) error {
	if len(columns) == 0 {
		return errs.Declaration(table.QualifiedName(), "%s has no columns", what)
	}
	for _, c := range columns {
		if table.Column(c) == nil {
			return errs.Declaration(n.qualify(table.Name, c), "%s references a column that does not exist", what)
		}
	}
	return nil
}

func (n *normalizer) constraints() error {
	for i, td := range n.tree.Tables {
		table := &n.out.Tables[i]
		if err := n.primaryKey(table, td); err != nil {
			return err
		}
		if err := n.uniques(table, td); err != nil {
			return err
		}
		if err := n.checks(table, td); err != nil {
			return err
		}
		if err := n.foreignKeys(table, td); err != nil {
			return err
		}
		if err := n.indexes(table, td); err != nil {
			return err
		}
		if err := n.triggers(table, td); err != nil {
			return err
		}
	}
	return nil
}

func (n *normalizer) primaryKey(table *schema.Table, td definition.TableDef) error {
	var inline []string
	for _, c := range td.Columns {
		if c.Primary {
			inline = append(inline, c.Name)
		}
	}

	var cols []string
	var explicit string
	sync := true
	switch {
	case td.PrimaryKey != nil && len(inline) > 0:
		return errs.Declaration(table.QualifiedName(), "primary key declared both on columns and on the table")
	case td.PrimaryKey != nil:
		cols, explicit, sync = td.PrimaryKey.Columns, td.PrimaryKey.Name, definition.Synced(td.PrimaryKey.Synchronize)
	case len(inline) > 0:
		cols = inline
	default:
		return nil
	}
	if err := n.requireColumns(table, "primary key", cols); err != nil {
		return err
	}
	for _, c := range cols {
		col := table.Column(c)
		col.Primary = true
		col.Nullable = false
	}
	table.Constraints = append(table.Constraints, &schema.PrimaryKeyConstraint{
		ConstraintBase: schema.ConstraintBase{
			Name:        n.name(explicit, table.Name, schema.KindPrimaryKey, cols),
			TableName:   table.Name,
			Synchronize: sync,
		},
		Columns: slices.Clone(cols),
	})
	return nil
}

func (n *normalizer) uniques(table *schema.Table, td definition.TableDef) error {
	keys := []definition.KeyDef{}
	for _, c := range td.Columns {
		if c.Unique {
			keys = append(keys, definition.KeyDef{Columns: []string{c.Name}})
		}
	}
	keys = append(keys, td.Uniques...)

	for _, k := range keys {
		if err := n.requireColumns(table, "unique constraint", k.Columns); err != nil {
			return err
		}
		table.Constraints = append(table.Constraints, &schema.UniqueConstraint{
			ConstraintBase: schema.ConstraintBase{
				Name:        n.name(k.Name, table.Name, schema.KindUnique, k.Columns),
				TableName:   table.Name,
				Synchronize: definition.Synced(k.Synchronize),
			},
			Columns: slices.Clone(k.Columns),
		})
	}
	return nil
}

func (n *normalizer) checks(table *schema.Table, td definition.TableDef) error {
	for _, cd := range td.Checks {
		expr := strings.TrimSpace(cd.Expression)
		if expr == "" {
			return errs.Declaration(table.QualifiedName(), "check constraint %q has no expression", cd.Name)
		}
		cols := cd.Columns
		if len(cols) > 0 {
			if err := n.requireColumns(table, "check constraint", cols); err != nil {
				return err
			}
		} else {
			cols = naming.CheckColumns(expr, table)
		}
		table.Constraints = append(table.Constraints, &schema.CheckConstraint{
			ConstraintBase: schema.ConstraintBase{
				Name:        n.name(cd.Name, table.Name, schema.KindCheck, cols),
				TableName:   table.Name,
				Synchronize: definition.Synced(cd.Synchronize),
			},
			Expression: expr,
			Columns:    slices.Clone(cols),
		})
	}
	return nil
}

func (n *normalizer) foreignKeys(table *schema.Table, td definition.TableDef) error {
	defs := []definition.ForeignKeyDef{}
	for _, c := range td.Columns {
		if ref := c.ForeignKey; ref != nil {
			fk := definition.ForeignKeyDef{
				Name:            ref.Name,
				Columns:         []string{c.Name},
				ReferencesTable: ref.ReferencesTable,
				OnDelete:        ref.OnDelete,
				OnUpdate:        ref.OnUpdate,
			}
			if ref.ReferencesColumn != "" {
				fk.ReferencesColumns = []string{ref.ReferencesColumn}
			}
			defs = append(defs, fk)
		}
	}
	defs = append(defs, td.ForeignKeys...)

	for _, fd := range defs {
		if err := n.requireColumns(table, "foreign key", fd.Columns); err != nil {
			return err
		}
		entity := n.qualify(table.Name, strings.Join(fd.Columns, ","))
		ref := n.out.Table(fd.ReferencesTable)
		if ref == nil {
			return errs.Declaration(entity, "foreign key references undeclared table %q", fd.ReferencesTable)
		}
		refCols := fd.ReferencesColumns
		if len(refCols) == 0 {
			pk := primaryKeyColumns(ref, n.tree, fd.ReferencesTable)
			if len(pk) == 0 {
				return errs.Declaration(entity, "foreign key omits referenced columns but %q has no primary key", fd.ReferencesTable)
			}
			refCols = pk
		}
		for _, rc := range refCols {
			if ref.Column(rc) == nil {
				return errs.Declaration(n.qualify(fd.ReferencesTable, rc), "foreign key from %s references a column that does not exist", table.QualifiedName())
			}
		}
		if len(refCols) != len(fd.Columns) {
			return errs.Declaration(entity, "foreign key has %d columns but references %d", len(fd.Columns), len(refCols))
		}
		onDelete, ok := schema.ParseAction(fd.OnDelete)
		if !ok {
			return errs.Declaration(entity, "invalid on_delete action %q", fd.OnDelete)
		}
		onUpdate, ok := schema.ParseAction(fd.OnUpdate)
		if !ok {
			return errs.Declaration(entity, "invalid on_update action %q", fd.OnUpdate)
		}
		table.Constraints = append(table.Constraints, &schema.ForeignKeyConstraint{
			ConstraintBase: schema.ConstraintBase{
				Name:        n.name(fd.Name, table.Name, schema.KindForeignKey, fd.Columns),
				TableName:   table.Name,
				Synchronize: definition.Synced(fd.Synchronize),
			},
			Columns:          slices.Clone(fd.Columns),
			ReferenceTable:   fd.ReferencesTable,
			ReferenceColumns: slices.Clone(refCols),
			OnDelete:         onDelete,
			OnUpdate:         onUpdate,
		})
	}
	return nil
}

// primaryKeyColumns reads the referenced table's key from the declaration,
// since its constraints may not have been built yet.
func primaryKeyColumns(ref *schema.Table, tree definition.Tree, name string) []string {
	for _, td := range tree.Tables {
		if td.Name != name {
			continue
		}
		if td.PrimaryKey != nil {
			return td.PrimaryKey.Columns
		}
		var cols []string
		for _, c := range td.Columns {
			if c.Primary {
				cols = append(cols, c.Name)
			}
		}
		return cols
	}
	if pk := ref.PrimaryKey(); pk != nil {
		return pk.Columns
	}
	return nil
}

func (n *normalizer) indexes(table *schema.Table, td definition.TableDef) error {
	defs := []definition.IndexDef{}
	for _, c := range td.Columns {
		if c.Index != nil && !c.Index.Disabled() {
			defs = append(defs, definition.IndexDef{Name: c.Index.Name, Columns: []string{c.Name}, Unique: c.Index.Unique, Type: c.Index.Type})
		}
	}
	defs = append(defs, td.Indexes...)

	for _, d := range defs {
		if err := n.requireIndexMembers(table, d.Columns); err != nil {
			return err
		}
		using := strings.ToLower(d.Type)
		if using == "" {
			using = "btree"
		}
		table.Indexes = append(table.Indexes, schema.Index{
			Name:        n.name(d.Name, table.Name, schema.KindIndex, naming.IndexNameParts(d.Columns)),
			TableName:   table.Name,
			Columns:     slices.Clone(d.Columns),
			Unique:      d.Unique,
			Using:       using,
			Where:       strings.TrimSpace(d.Where),
			Synchronize: definition.Synced(d.Synchronize),
		})
	}
	return nil
}

// requireIndexMembers checks that column members exist and that expression
// members such as lower(email) mention at least one column of the table.
func (n *normalizer) requireIndexMembers(table *schema.Table, members []string) error {
	if len(members) == 0 {
		return errs.Declaration(table.QualifiedName(), "index has no columns")
	}
	var columns []string
	for _, m := range members {
		if !schema.IsExpressionMember(m) {
			columns = append(columns, m)
			continue
		}
		if !slices.ContainsFunc(schema.ExpressionIdentifiers(m), func(id string) bool { return table.Column(id) != nil }) {
			return errs.Declaration(table.QualifiedName(), "index expression %q references no column of the table", m)
		}
	}
	if len(columns) == 0 {
		return nil
	}
	return n.requireColumns(table, "index", columns)
}

func (n *normalizer) triggers(table *schema.Table, td definition.TableDef) error {
	for _, d := range td.Triggers {
		entity := n.qualify(table.Name) + "#" + d.Name
		if d.Name == "" || d.Function == "" {
			return errs.Declaration(entity, "trigger needs a name and a function")
		}
		var timing schema.TriggerTiming
		switch strings.ToUpper(strings.Join(strings.Fields(strings.ReplaceAll(d.Timing, "_", " ")), " ")) {
		case "BEFORE":
			timing = schema.Before
		case "AFTER":
			timing = schema.After
		case "INSTEAD OF":
			timing = schema.InsteadOf
		default:
			return errs.Declaration(entity, "invalid trigger timing %q", d.Timing)
		}
		events := schema.SortEvents(d.Events)
		if len(events) == 0 || len(events) != len(slices.Compact(slices.Sorted(slices.Values(upper(d.Events))))) {
			return errs.Declaration(entity, "trigger events must be a non-empty subset of INSERT, UPDATE, DELETE, TRUNCATE")
		}
		var forEachRow bool
		switch strings.ToLower(d.ForEach) {
		case "", "row":
			forEachRow = true
		case "statement":
		default:
			return errs.Declaration(entity, "invalid for_each %q", d.ForEach)
		}
		table.Triggers = append(table.Triggers, schema.Trigger{
			Name:         d.Name,
			TableName:    table.Name,
			Timing:       timing,
			Events:       events,
			ForEachRow:   forEachRow,
			FunctionName: d.Function,
			Synchronize:  definition.Synced(d.Synchronize),
		})
	}
	return nil
}

func upper(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	return out
}

// uniqueNames rejects resolved names that collide. Constraint and trigger
// names are per table; index names share the schema-wide relation namespace
// with the indexes backing primary key and unique constraints.
func (n *normalizer) uniqueNames() error {
	relations := map[string]string{}
	for _, t := range n.out.Tables {
		local := map[string]bool{}
		for _, c := range t.Constraints {
			name := c.ConstraintName()
			if local[name] {
				return errs.Declaration(n.qualify(t.Name)+"#"+name, "constraint name used more than once")
			}
			local[name] = true
			if c.Kind() == schema.KindPrimaryKey || c.Kind() == schema.KindUnique {
				if owner, ok := relations[name]; ok {
					return errs.Declaration(n.qualify(t.Name)+"#"+name, "name already used by %s", owner)
				}
				relations[name] = n.qualify(t.Name)
			}
		}
		for _, idx := range t.Indexes {
			if local[idx.Name] {
				return errs.Declaration(n.qualify(t.Name)+"#"+idx.Name, "index name collides with a constraint")
			}
			if owner, ok := relations[idx.Name]; ok {
				return errs.Declaration(n.qualify(t.Name)+"#"+idx.Name, "index name already used by %s", owner)
			}
			local[idx.Name] = true
			relations[idx.Name] = n.qualify(t.Name)
		}
		triggers := map[string]bool{}
		for _, tr := range t.Triggers {
			if triggers[tr.Name] {
				return errs.Declaration(n.qualify(t.Name)+"#"+tr.Name, "trigger name used more than once")
			}
			triggers[tr.Name] = true
		}
	}
	return nil
}

func (n *normalizer) excludedWarnings() {
	for _, t := range n.out.Tables {
		if !t.Synchronize {
			n.out.Warnings = append(n.out.Warnings, fmt.Sprintf("%s: synchronize=false, table is not managed", t.QualifiedName()))
			continue
		}
		for _, c := range t.Columns {
			if !c.Synchronize {
				n.out.Warnings = append(n.out.Warnings, fmt.Sprintf("%s: synchronize=false, column is not managed", n.qualify(t.Name, c.Name)))
			}
		}
		if len(t.Name) > n.opts.MaxIdentifierLength {
			n.out.Warnings = append(n.out.Warnings, fmt.Sprintf("%s: name exceeds %d characters and will be truncated by the server", t.QualifiedName(), n.opts.MaxIdentifierLength))
		}
	}
}
