package loader

import (
	"bytes"
	"fmt"
	"go/format"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/template"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/schema"
)

type structFile struct {
	Package string
	Imports []string
	Models  []modelData
}

type modelData struct {
	Name       string
	TableName  string
	Directives []string
	Fields     []fieldData
}

type fieldData struct {
	Name string
	Type string
	Tag  string
}

var structTemplate = template.Must(template.New("models").Parse(`// Code generated by schemasync generate-structs. Edit freely; schemasync reads the tags back.

package {{.Package}}
{{if .Imports}}
import (
{{range .Imports}}	"{{.}}"
{{end}})
{{end}}
{{range .Models}}
// {{.Name}} is the {{.TableName}} table.
//
//schema:table {{.TableName}}
{{range .Directives}}//schema:{{.}}
{{end}}type {{.Name}} struct {
{{range .Fields}}	{{.Name}} {{.Type}} ` + "`{{.Tag}}`" + `
{{end}}}
{{end}}`))

// WriteStructs renders the tables of tree as Go structs carrying the schema
// tags and directives TagLoader understands. Anything tags cannot express
// (database-level objects, triggers, composite or named foreign keys,
// partial indexes) is left out and reported in the returned list.
func WriteStructs(w io.Writer, tree definition.Tree, pkg string) ([]string, error) {
	var skipped []string
	for _, e := range tree.Extensions {
		skipped = append(skipped, "extension "+e.Name)
	}
	for _, e := range tree.Enums {
		skipped = append(skipped, "enum "+e.Name)
	}
	for _, f := range tree.Functions {
		skipped = append(skipped, "function "+f.Name)
	}
	for _, p := range tree.Parameters {
		skipped = append(skipped, "parameter "+p.Name)
	}

	data := structFile{Package: pkg}
	imports := map[string]bool{}
	for _, t := range tree.Tables {
		m, notes := model(t, tree, imports)
		data.Models = append(data.Models, m)
		skipped = append(skipped, notes...)
	}
	for _, imp := range []string{"encoding/json", "time"} {
		if imports[imp] {
			data.Imports = append(data.Imports, imp)
		}
	}

	var buf bytes.Buffer
	if err := structTemplate.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("rendering structs: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("formatting structs: %w", err)
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	return skipped, nil
}

func model(t definition.TableDef, tree definition.Tree, imports map[string]bool) (modelData, []string) {
	m := modelData{Name: toPascalCase(singular(t.Name)), TableName: t.Name}
	var skipped []string
	if !definition.Synced(t.Synchronize) {
		m.Directives = append(m.Directives, "nosync")
	}

	inlinePK := ""
	if pk := t.PrimaryKey; pk != nil {
		if len(pk.Columns) == 1 && pk.Name == "" {
			inlinePK = pk.Columns[0]
		} else {
			m.Directives = append(m.Directives, "primary_key "+orDash(pk.Name)+" "+strings.Join(pk.Columns, ","))
		}
	}
	for _, u := range t.Uniques {
		m.Directives = append(m.Directives, "unique "+orDash(u.Name)+" "+strings.Join(u.Columns, ","))
	}
	for _, c := range t.Checks {
		m.Directives = append(m.Directives, "check "+orDash(c.Name)+" "+strings.Join(strings.Fields(c.Expression), " "))
	}
	for _, idx := range t.Indexes {
		if idx.Where != "" {
			skipped = append(skipped, fmt.Sprintf("partial index on %s(%s)", t.Name, strings.Join(idx.Columns, ",")))
			continue
		}
		if slices.ContainsFunc(idx.Columns, schema.IsExpressionMember) {
			skipped = append(skipped, fmt.Sprintf("expression index on %s(%s)", t.Name, strings.Join(idx.Columns, ", ")))
			continue
		}
		d := "index " + orDash(idx.Name) + " " + strings.Join(idx.Columns, ",")
		if idx.Unique {
			d += " unique"
		}
		if idx.Type != "" {
			d += " " + idx.Type
		}
		m.Directives = append(m.Directives, d)
	}
	for _, tr := range t.Triggers {
		skipped = append(skipped, "trigger "+tr.Name+" on "+t.Name)
	}

	inlineFK := map[string]definition.ForeignKeyDef{}
	for _, fk := range t.ForeignKeys {
		if len(fk.Columns) != 1 || len(fk.ReferencesColumns) > 1 || fk.Name != "" {
			skipped = append(skipped, fmt.Sprintf("foreign key %s(%s) -> %s", t.Name, strings.Join(fk.Columns, ","), fk.ReferencesTable))
			continue
		}
		inlineFK[fk.Columns[0]] = fk
	}

	for _, c := range t.Columns {
		var opts []string
		name := toPascalCase(c.Name)
		if toSnakeCase(name) != c.Name {
			opts = append(opts, "column:"+c.Name)
		}
		opts = append(opts, "type:"+c.Type)
		if c.Enum != "" {
			opts = append(opts, "enum:"+c.Enum)
		}
		if c.Primary || c.Name == inlinePK {
			opts = append(opts, "primary")
		}
		if c.Unique {
			opts = append(opts, "unique")
		}
		nullable := c.Nullable && !c.Primary && c.Name != inlinePK
		if nullable {
			opts = append(opts, "nullable")
		}
		if c.Default != nil {
			if strings.Contains(*c.Default, ";") {
				skipped = append(skipped, "default of "+t.Name+"."+c.Name)
			} else {
				opts = append(opts, "default:"+*c.Default)
			}
		}
		if fk := c.ForeignKey; fk != nil {
			if fk.Name != "" {
				skipped = append(skipped, "name of foreign key "+fk.Name)
			}
			opts = append(opts, "fk:"+fkSpec(fk.ReferencesTable, referencedColumn(tree, fk.ReferencesTable, fk.ReferencesColumn), fk.OnDelete, fk.OnUpdate))
		} else if fk, ok := inlineFK[c.Name]; ok {
			col := ""
			if len(fk.ReferencesColumns) == 1 {
				col = fk.ReferencesColumns[0]
			}
			opts = append(opts, "fk:"+fkSpec(fk.ReferencesTable, referencedColumn(tree, fk.ReferencesTable, col), fk.OnDelete, fk.OnUpdate))
		}
		if c.Index != nil && !c.Index.Disabled() {
			if c.Index.Name == "" && c.Index.Type == "" && !c.Index.Unique {
				opts = append(opts, "index")
			} else {
				spec := "index:" + c.Index.Name + ":" + c.Index.Type
				if c.Index.Unique {
					spec += ":unique"
				}
				opts = append(opts, spec)
			}
		}
		if !definition.Synced(c.Synchronize) {
			opts = append(opts, "nosync")
		}

		goType := goTypeFor(c.Type, nullable)
		switch {
		case strings.Contains(goType, "time."):
			imports["time"] = true
		case strings.Contains(goType, "json."):
			imports["encoding/json"] = true
		}
		m.Fields = append(m.Fields, fieldData{
			Name: name,
			Type: goType,
			Tag:  "schema:" + strconv.Quote(strings.Join(opts, ";")),
		})
	}
	return m, skipped
}

// referencedColumn fills in the single primary key column of table when a
// foreign key leaves the referenced column implicit. Tags always name it.
func referencedColumn(tree definition.Tree, table, column string) string {
	if column != "" {
		return column
	}
	for _, t := range tree.Tables {
		if t.Name != table {
			continue
		}
		if t.PrimaryKey != nil && len(t.PrimaryKey.Columns) == 1 {
			return t.PrimaryKey.Columns[0]
		}
		for _, c := range t.Columns {
			if c.Primary {
				return c.Name
			}
		}
	}
	return "id"
}

// fkSpec builds "table.column[:on_delete[:on_update]]".
func fkSpec(table, column, onDelete, onUpdate string) string {
	spec := table + "." + column
	switch {
	case onUpdate != "":
		spec += ":" + onDelete + ":" + onUpdate
	case onDelete != "":
		spec += ":" + onDelete
	}
	return spec
}

func orDash(name string) string {
	if name == "" {
		return "-"
	}
	return name
}

// goTypeFor is the inverse of inferDataType, as far as one exists.
func goTypeFor(sqlType string, nullable bool) string {
	t := strings.ToLower(strings.TrimSpace(sqlType))
	if elem, ok := strings.CutSuffix(t, "[]"); ok {
		return "[]" + goTypeFor(elem, false)
	}
	base, _, _ := strings.Cut(t, "(")
	var goType string
	switch strings.TrimSpace(base) {
	case "integer", "int", "int4", "serial", "serial4":
		goType = "int"
	case "bigint", "int8", "bigserial", "serial8":
		goType = "int64"
	case "smallint", "int2", "smallserial", "serial2":
		goType = "int16"
	case "boolean", "bool":
		goType = "bool"
	case "real", "float4":
		goType = "float32"
	case "double precision", "float8":
		goType = "float64"
	case "timestamp", "timestamptz", "timestamp with time zone", "timestamp without time zone", "date":
		goType = "time.Time"
	case "interval":
		goType = "time.Duration"
	case "bytea":
		return "[]byte"
	case "json", "jsonb":
		return "json.RawMessage"
	default:
		goType = "string"
	}
	if nullable {
		return "*" + goType
	}
	return goType
}

func singular(name string) string {
	switch {
	case strings.HasSuffix(name, "ies"):
		return strings.TrimSuffix(name, "ies") + "y"
	case strings.HasSuffix(name, "ss"):
		return name
	case strings.HasSuffix(name, "s"):
		return strings.TrimSuffix(name, "s")
	}
	return name
}

var acronyms = map[string]string{"id": "ID", "url": "URL", "uuid": "UUID", "ip": "IP", "api": "API", "json": "JSON"}

func toPascalCase(s string) string {
	var b strings.Builder
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' || r == ' ' || r == '.' }) {
		if a, ok := acronyms[strings.ToLower(part)]; ok {
			b.WriteString(a)
			continue
		}
		b.WriteString(strings.ToUpper(part[:1]) + part[1:])
	}
	if b.Len() == 0 || (b.String()[0] >= '0' && b.String()[0] <= '9') {
		return "T" + b.String()
	}
	return b.String()
}
