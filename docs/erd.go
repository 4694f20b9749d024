// Package docs renders entity-relationship diagrams and a table reference
// from a normalized schema.
package docs

import (
	"fmt"
	"slices"
	"strings"

	"github.com/ridoystarlord/schemasync/schema"
)

type Format string

const (
	PlantUML Format = "plantuml"
	Mermaid  Format = "mermaid"
	Graphviz Format = "graphviz"
	Markdown Format = "markdown"
)

// Formats lists every supported output format.
var Formats = []Format{PlantUML, Mermaid, Graphviz, Markdown}

// DefaultFile is the file name each format is written to when no output is given.
func (f Format) DefaultFile() string {
	switch f {
	case PlantUML:
		return "erd.puml"
	case Mermaid:
		return "erd.md"
	case Graphviz:
		return "erd.dot"
	}
	return "tables.md"
}

// Render produces the document for s in the given format.
func Render(s *schema.DatabaseSchema, f Format) (string, error) {
	switch f {
	case PlantUML:
		return plantUML(s), nil
	case Mermaid:
		return mermaid(s), nil
	case Graphviz:
		return graphviz(s), nil
	case Markdown:
		return markdown(s), nil
	}
	return "", fmt.Errorf("unsupported format: %s", f)
}

type relation struct {
	parent, child, label string
}

func relations(s *schema.DatabaseSchema) []relation {
	var out []relation
	for _, t := range s.Tables {
		for _, c := range t.Constraints {
			if fk, ok := c.(*schema.ForeignKeyConstraint); ok {
				out = append(out, relation{parent: fk.ReferenceTable, child: t.Name, label: strings.Join(fk.Columns, ",")})
			}
		}
	}
	return out
}

// keyMarks reports which single columns are covered by the primary key,
// a unique constraint or a foreign key.
func keyMarks(t *schema.Table) map[string][]string {
	marks := map[string][]string{}
	add := func(cols []string, mark string) {
		for _, c := range cols {
			if !slices.Contains(marks[c], mark) {
				marks[c] = append(marks[c], mark)
			}
		}
	}
	for _, c := range t.Constraints {
		switch c.Kind() {
		case schema.KindPrimaryKey:
			add(c.CoveredColumns(), "PK")
		case schema.KindForeignKey:
			add(c.CoveredColumns(), "FK")
		case schema.KindUnique:
			add(c.CoveredColumns(), "UK")
		}
	}
	return marks
}

func plantUML(s *schema.DatabaseSchema) string {
	var b strings.Builder
	b.WriteString("@startuml\n!theme plain\nskinparam linetype ortho\n\n")
	for _, t := range s.Tables {
		marks := keyMarks(&t)
		fmt.Fprintf(&b, "entity %q {\n", t.Name)
		for _, col := range t.Columns {
			line := fmt.Sprintf("  %s : %s", col.Name, col.SQLType())
			for _, m := range marks[col.Name] {
				line += " <<" + m + ">>"
			}
			if !col.Nullable {
				line += " <<NN>>"
			}
			if col.Default != nil {
				line += fmt.Sprintf(" <<DEFAULT: %s>>", *col.Default)
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("}\n\n")
	}
	for _, r := range relations(s) {
		fmt.Fprintf(&b, "%q ||--o{ %q : %q\n", r.parent, r.child, r.label)
	}
	b.WriteString("@enduml\n")
	return b.String()
}

// mermaidType makes a type usable as a Mermaid attribute type, which allows
// neither spaces nor parentheses.
func mermaidType(t string) string {
	r := strings.NewReplacer(" ", "_", "(", "_", ")", "", ",", "_", "[]", "_array")
	return r.Replace(t)
}

func mermaid(s *schema.DatabaseSchema) string {
	var b strings.Builder
	b.WriteString("# Database Schema ERD\n\n```mermaid\nerDiagram\n")
	for _, t := range s.Tables {
		marks := keyMarks(&t)
		fmt.Fprintf(&b, "    %s {\n", t.Name)
		for _, col := range t.Columns {
			line := fmt.Sprintf("        %s %s", mermaidType(col.SQLType()), col.Name)
			if m := marks[col.Name]; len(m) > 0 {
				line += " " + strings.Join(m, ",")
			}
			if !col.Nullable {
				line += ` "not null"`
			}
			b.WriteString(line + "\n")
		}
		b.WriteString("    }\n")
	}
	for _, r := range relations(s) {
		fmt.Fprintf(&b, "    %s ||--o{ %s : %q\n", r.parent, r.child, r.label)
	}
	b.WriteString("```\n")
	return b.String()
}

func graphviz(s *schema.DatabaseSchema) string {
	var b strings.Builder
	b.WriteString("digraph ERD {\n  rankdir=LR;\n  node [shape=record];\n\n")
	for _, t := range s.Tables {
		marks := keyMarks(&t)
		columns := make([]string, 0, len(t.Columns))
		for _, col := range t.Columns {
			line := fmt.Sprintf("%s: %s", col.Name, col.SQLType())
			for _, m := range marks[col.Name] {
				line += " (" + m + ")"
			}
			columns = append(columns, line)
		}
		fmt.Fprintf(&b, "  %q [label=\"%s|%s\\l\"];\n", t.Name, t.Name, strings.Join(columns, "\\l"))
	}
	for _, r := range relations(s) {
		fmt.Fprintf(&b, "  %q -> %q [label=%q];\n", r.child, r.parent, r.label)
	}
	b.WriteString("}\n")
	return b.String()
}

func markdown(s *schema.DatabaseSchema) string {
	var b strings.Builder
	b.WriteString("# Tables\n")
	if len(s.Enums) > 0 {
		b.WriteString("\n## Enums\n\n")
		for _, e := range s.Enums {
			fmt.Fprintf(&b, "- `%s`: %s\n", e.Name, strings.Join(e.Values, ", "))
		}
	}
	for _, t := range s.Tables {
		marks := keyMarks(&t)
		fmt.Fprintf(&b, "\n## %s\n\n", t.Name)
		b.WriteString("| Column | Type | Null | Default | Keys |\n")
		b.WriteString("|--------|------|------|---------|------|\n")
		for _, col := range t.Columns {
			null := "YES"
			if !col.Nullable {
				null = "NO"
			}
			def := ""
			if col.Default != nil {
				def = "`" + *col.Default + "`"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n", col.Name, col.SQLType(), null, def, strings.Join(marks[col.Name], ", "))
		}
		if len(t.Indexes) > 0 {
			b.WriteString("\nIndexes:\n\n")
			for _, idx := range t.Indexes {
				unique := ""
				if idx.Unique {
					unique = "unique "
				}
				fmt.Fprintf(&b, "- `%s`: %s(%s)\n", idx.Name, unique, strings.Join(idx.Columns, ", "))
			}
		}
		if len(t.Triggers) > 0 {
			b.WriteString("\nTriggers:\n\n")
			for _, tr := range t.Triggers {
				fmt.Fprintf(&b, "- `%s`: %s %s, calls `%s()`\n", tr.Name, tr.Timing, strings.Join(tr.Events, " OR "), tr.FunctionName)
			}
		}
	}
	return b.String()
}
