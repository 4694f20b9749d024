package loader

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/errs"
)

const directivePrefix = "schema:"

// TagLoader scans Go source files for structs describing tables.
//
// A struct is a table when its doc comment carries a `//schema:table [name]`
// directive or when any of its fields has a `schema` tag. Field tags look like
//
//	ID     string `schema:"column:id;type:uuid;primary;default:gen_random_uuid()"`
//	UserID string  `schema:"fk:users.id:cascade;index"`
//	Bio    *string `schema:"nullable"`
//
// and table-level constraints are declared as doc directives:
//
//	//schema:check positive_amount amount > 0
//	//schema:index idx_orders_user_created user_id,created_at unique
//	//schema:unique - tenant_id,email
//	//schema:nosync
//
// A name of "-" leaves the constraint to the naming convention.
type TagLoader struct {
	modelsDir string
	builder   *definition.Builder
}

func NewTagLoader(modelsDir string, builder *definition.Builder) *TagLoader {
	return &TagLoader{modelsDir: modelsDir, builder: builder}
}

// LoadTags scans modelsDir into a fresh tree for the given database and schema.
func LoadTags(modelsDir, database, schemaName string) (definition.Tree, error) {
	b := definition.NewBuilder(database, schemaName)
	if err := NewTagLoader(modelsDir, b).Load(); err != nil {
		return definition.Tree{}, err
	}
	return b.Build(), nil
}

// Load adds every table found under the models directory to the builder.
func (tl *TagLoader) Load() error {
	if _, err := os.Stat(tl.modelsDir); os.IsNotExist(err) {
		return errs.Newf(errs.ErrKindInvalidInput, "models directory '%s' does not exist. Run 'schemasync init --structs' first", tl.modelsDir)
	}

	err := filepath.Walk(tl.modelsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".go") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		tables, err := tl.parseGoFile(path)
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", path, err)
		}
		for _, t := range tables {
			tl.builder.AddTable(t)
		}
		return nil
	})
	if err != nil {
		return errs.Wrap(errs.ErrKindDeclaration, "loading models", err)
	}
	return nil
}

func (tl *TagLoader) parseGoFile(filePath string) ([]definition.TableDef, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments)
	if err != nil {
		return nil, err
	}

	var tables []definition.TableDef
	for _, decl := range file.Decls {
		gen, ok := decl.(*ast.GenDecl)
		if !ok || gen.Tok != token.TYPE {
			continue
		}
		for _, spec := range gen.Specs {
			ts := spec.(*ast.TypeSpec)
			st, ok := ts.Type.(*ast.StructType)
			if !ok {
				continue
			}
			doc := ts.Doc
			if doc == nil && len(gen.Specs) == 1 {
				doc = gen.Doc
			}
			table, ok, err := tl.parseStruct(ts.Name.Name, st, directives(doc))
			if err != nil {
				return nil, fmt.Errorf("%s: %w", ts.Name.Name, err)
			}
			if ok {
				tables = append(tables, table)
			}
		}
	}
	return tables, nil
}

type directive struct {
	verb string
	args []string
}

func directives(doc *ast.CommentGroup) []directive {
	if doc == nil {
		return nil
	}
	var out []directive
	for _, c := range doc.List {
		text := strings.TrimSpace(strings.TrimPrefix(c.Text, "//"))
		if !strings.HasPrefix(text, directivePrefix) {
			continue
		}
		fields := strings.Fields(strings.TrimPrefix(text, directivePrefix))
		if len(fields) == 0 {
			continue
		}
		out = append(out, directive{verb: fields[0], args: fields[1:]})
	}
	return out
}

func (tl *TagLoader) parseStruct(structName string, st *ast.StructType, dirs []directive) (definition.TableDef, bool, error) {
	table := definition.TableDef{Name: tl.getTableName(structName)}
	isTable := false

	for _, d := range dirs {
		switch d.verb {
		case "table":
			isTable = true
			if len(d.args) > 0 {
				table.Name = d.args[0]
			}
		case "nosync":
			off := false
			table.Synchronize = &off
		case "check":
			if len(d.args) < 2 {
				return table, false, fmt.Errorf("schema:check needs a name and an expression")
			}
			table.Checks = append(table.Checks, definition.CheckDef{
				Name:       unnamed(d.args[0]),
				Expression: strings.Join(d.args[1:], " "),
			})
		case "index":
			if len(d.args) < 2 {
				return table, false, fmt.Errorf("schema:index needs a name and a column list")
			}
			idx := definition.IndexDef{Name: unnamed(d.args[0]), Columns: splitList(d.args[1])}
			for _, opt := range d.args[2:] {
				if opt == "unique" {
					idx.Unique = true
				} else {
					idx.Type = opt
				}
			}
			table.Indexes = append(table.Indexes, idx)
		case "unique":
			if len(d.args) < 2 {
				return table, false, fmt.Errorf("schema:unique needs a name and a column list")
			}
			table.Uniques = append(table.Uniques, definition.KeyDef{Name: unnamed(d.args[0]), Columns: splitList(d.args[1])})
		case "primary_key":
			if len(d.args) < 2 {
				return table, false, fmt.Errorf("schema:primary_key needs a name and a column list")
			}
			table.PrimaryKey = &definition.KeyDef{Name: unnamed(d.args[0]), Columns: splitList(d.args[1])}
		default:
			return table, false, fmt.Errorf("unknown directive schema:%s", d.verb)
		}
	}

	for _, field := range st.Fields.List {
		if len(field.Names) == 0 {
			continue // embedded structs are not flattened
		}
		fieldName := field.Names[0].Name
		if !ast.IsExported(fieldName) {
			continue
		}
		column, ok, err := tl.parseField(fieldName, field)
		if err != nil {
			return table, false, fmt.Errorf("field %s: %w", fieldName, err)
		}
		if ok {
			isTable = true
			table.Columns = append(table.Columns, column)
		}
	}

	return table, isTable, nil
}

func unnamed(name string) string {
	if name == "-" {
		return ""
	}
	return name
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (tl *TagLoader) parseField(fieldName string, field *ast.Field) (definition.ColumnDef, bool, error) {
	if field.Tag == nil {
		return definition.ColumnDef{}, false, nil
	}
	raw, ok := reflect.StructTag(strings.Trim(field.Tag.Value, "`")).Lookup("schema")
	if !ok || raw == "-" {
		return definition.ColumnDef{}, false, nil
	}

	col := definition.ColumnDef{Name: toSnakeCase(fieldName)}
	for _, part := range strings.Split(raw, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, hasValue := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch key {
		case "column":
			col.Name = value
		case "type":
			col.Type = value
		case "enum":
			col.Enum = value
			if col.Type == "" {
				col.Type = value
			}
		case "default":
			v := value
			col.Default = &v
		case "fk":
			fk, err := parseForeignKey(value)
			if err != nil {
				return col, false, err
			}
			col.ForeignKey = fk
		case "index":
			col.Index = parseIndexConfig(value, hasValue)
		case "primary":
			col.Primary = true
		case "unique":
			col.Unique = true
		case "nullable":
			col.Nullable = true
		case "nosync":
			off := false
			col.Synchronize = &off
		default:
			return col, false, fmt.Errorf("unknown tag option %q", key)
		}
	}

	if col.Type == "" {
		col.Type = inferDataType(goTypeName(field.Type))
	}
	return col, true, nil
}

// parseForeignKey reads "table.column[:on_delete[:on_update]]".
func parseForeignKey(spec string) (*definition.ForeignKeyRef, error) {
	parts := strings.Split(spec, ":")
	table, column, ok := strings.Cut(parts[0], ".")
	if !ok || table == "" || column == "" {
		return nil, fmt.Errorf("fk %q must look like table.column", spec)
	}
	fk := &definition.ForeignKeyRef{ReferencesTable: table, ReferencesColumn: column}
	if len(parts) > 1 {
		fk.OnDelete = parts[1]
	}
	if len(parts) > 2 {
		fk.OnUpdate = parts[2]
	}
	return fk, nil
}

// parseIndexConfig reads "index" or "index:name:type:unique".
func parseIndexConfig(spec string, hasValue bool) *definition.ColumnIndex {
	idx := &definition.ColumnIndex{}
	if !hasValue {
		return idx
	}
	parts := strings.Split(spec, ":")
	idx.Name = parts[0]
	if len(parts) > 1 {
		idx.Type = parts[1]
	}
	if len(parts) > 2 && parts[2] == "unique" {
		idx.Unique = true
	}
	return idx
}

func goTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		return goTypeName(t.X)
	case *ast.ArrayType:
		return "[]" + goTypeName(t.Elt)
	case *ast.SelectorExpr:
		if x, ok := t.X.(*ast.Ident); ok {
			return x.Name + "." + t.Sel.Name
		}
	case *ast.MapType:
		return "map"
	}
	return ""
}

// getTableName converts a struct name to a plural snake_case table name.
func (tl *TagLoader) getTableName(structName string) string {
	name := toSnakeCase(structName)
	switch {
	case strings.HasSuffix(name, "y") && !strings.HasSuffix(name, "ey"):
		return strings.TrimSuffix(name, "y") + "ies"
	case strings.HasSuffix(name, "s"):
		return name
	}
	return name + "s"
}

// inferDataType maps a Go type to a PostgreSQL type.
func inferDataType(goType string) string {
	switch goType {
	case "int", "int32", "uint32":
		return "integer"
	case "int16", "int8", "uint8", "uint16":
		return "smallint"
	case "int64", "uint64", "uint":
		return "bigint"
	case "string":
		return "text"
	case "bool":
		return "boolean"
	case "float32":
		return "real"
	case "float64":
		return "double precision"
	case "time.Time":
		return "timestamptz"
	case "time.Duration":
		return "interval"
	case "uuid.UUID":
		return "uuid"
	case "[]byte":
		return "bytea"
	case "json.RawMessage", "map":
		return "jsonb"
	}
	if elem, ok := strings.CutPrefix(goType, "[]"); ok {
		switch elem {
		case "string", "int", "int32", "int64", "bool", "float64", "uuid.UUID":
			return inferDataType(elem) + "[]"
		}
		return "jsonb"
	}
	return "text"
}

// toSnakeCase converts PascalCase to snake_case, keeping acronyms together (UserID -> user_id).
func toSnakeCase(s string) string {
	var b strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if i > 0 && upper {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if (prev >= 'a' && prev <= 'z') || (prev >= '0' && prev <= '9') || (prev >= 'A' && prev <= 'Z' && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(r)
	}
	return strings.ToLower(b.String())
}
