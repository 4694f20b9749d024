package definition

// Builder assembles a Tree in code. One builder is created per run and its
// result handed to the normalizer; there is no package-level registry.
//
//	b := definition.NewBuilder("postgres", "public")
//	users := b.Table("users")
//	users.Column("id", "uuid").Primary().Default("gen_random_uuid()")
//	users.Column("email", "text").Unique()
//	users.Column("nickname", "text").Nullable()
//	tree := b.Build()
type Builder struct {
	tree Tree
}

func NewBuilder(database, schemaName string) *Builder {
	return &Builder{tree: Tree{Database: database, Schema: schemaName}}
}

func (b *Builder) Extension(name, version string) *Builder {
	b.tree.Extensions = append(b.tree.Extensions, ExtensionDef{Name: name, Version: version})
	return b
}

func (b *Builder) Enum(name string, values ...string) *Builder {
	b.tree.Enums = append(b.tree.Enums, EnumDef{Name: name, Values: values})
	return b
}

func (b *Builder) Function(def FunctionDef) *Builder {
	b.tree.Functions = append(b.tree.Functions, def)
	return b
}

func (b *Builder) Parameter(name, value string) *Builder {
	b.tree.Parameters = append(b.tree.Parameters, ParameterDef{Name: name, Value: value})
	return b
}

// Override binds name to the constraint or index of kind over columns in table.
func (b *Builder) Override(table, kind, name string, columns ...string) *Builder {
	b.tree.Overrides = append(b.tree.Overrides, OverrideDef{Table: table, Kind: kind, Columns: columns, Name: name})
	return b
}

// Table starts a new table declaration.
func (b *Builder) Table(name string) *TableBuilder {
	b.tree.Tables = append(b.tree.Tables, TableDef{Name: name})
	return &TableBuilder{b: b, idx: len(b.tree.Tables) - 1}
}

// Build returns a copy of everything declared so far.
func (b *Builder) Build() Tree {
	return b.tree.Clone()
}

type TableBuilder struct {
	b   *Builder
	idx int
}

func (t *TableBuilder) def() *TableDef {
	return &t.b.tree.Tables[t.idx]
}

// NoSync marks the table as externally managed.
func (t *TableBuilder) NoSync() *TableBuilder {
	off := false
	t.def().Synchronize = &off
	return t
}

func (t *TableBuilder) Column(name, typ string) *ColumnBuilder {
	d := t.def()
	d.Columns = append(d.Columns, ColumnDef{Name: name, Type: typ})
	return &ColumnBuilder{t: t, idx: len(d.Columns) - 1}
}

func (t *TableBuilder) PrimaryKey(name string, columns ...string) *TableBuilder {
	t.def().PrimaryKey = &KeyDef{Name: name, Columns: columns}
	return t
}

func (t *TableBuilder) Unique(name string, columns ...string) *TableBuilder {
	d := t.def()
	d.Uniques = append(d.Uniques, KeyDef{Name: name, Columns: columns})
	return t
}

// Check adds a CHECK constraint; an empty name is resolved by convention.
func (t *TableBuilder) Check(name, expression string) *TableBuilder {
	d := t.def()
	d.Checks = append(d.Checks, CheckDef{Name: name, Expression: expression})
	return t
}

func (t *TableBuilder) ForeignKey(def ForeignKeyDef) *TableBuilder {
	d := t.def()
	d.ForeignKeys = append(d.ForeignKeys, def)
	return t
}

func (t *TableBuilder) Index(def IndexDef) *TableBuilder {
	d := t.def()
	d.Indexes = append(d.Indexes, def)
	return t
}

func (t *TableBuilder) Trigger(def TriggerDef) *TableBuilder {
	d := t.def()
	d.Triggers = append(d.Triggers, def)
	return t
}

type ColumnBuilder struct {
	t   *TableBuilder
	idx int
}

func (c *ColumnBuilder) def() *ColumnDef {
	return &c.t.def().Columns[c.idx]
}

func (c *ColumnBuilder) Primary() *ColumnBuilder {
	c.def().Primary = true
	return c
}

// Nullable lets the column hold NULL. Columns are NOT NULL unless marked.
func (c *ColumnBuilder) Nullable() *ColumnBuilder {
	c.def().Nullable = true
	return c
}

func (c *ColumnBuilder) Unique() *ColumnBuilder {
	c.def().Unique = true
	return c
}

// Default sets the raw SQL default expression.
func (c *ColumnBuilder) Default(expr string) *ColumnBuilder {
	c.def().Default = &expr
	return c
}

func (c *ColumnBuilder) Enum(name string) *ColumnBuilder {
	c.def().Enum = name
	return c
}

func (c *ColumnBuilder) Indexed() *ColumnBuilder {
	c.def().Index = &ColumnIndex{}
	return c
}

func (c *ColumnBuilder) References(table, column string) *ColumnBuilder {
	c.def().ForeignKey = &ForeignKeyRef{ReferencesTable: table, ReferencesColumn: column}
	return c
}

// OnDelete sets the on-delete action of the foreign key declared by References.
func (c *ColumnBuilder) OnDelete(action string) *ColumnBuilder {
	if fk := c.def().ForeignKey; fk != nil {
		fk.OnDelete = action
	}
	return c
}

func (c *ColumnBuilder) NoSync() *ColumnBuilder {
	off := false
	c.def().Synchronize = &off
	return c
}

// Table returns to the owning table builder.
func (c *ColumnBuilder) Table() *TableBuilder {
	return c.t
}

// AddTable appends a fully formed table declaration, as produced by a front end.
func (b *Builder) AddTable(def TableDef) *Builder {
	b.tree.Tables = append(b.tree.Tables, def.clone())
	return b
}
