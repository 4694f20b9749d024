package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/docs"
	"github.com/ridoystarlord/schemasync/normalize"
	"github.com/ridoystarlord/schemasync/schema"
)

var (
	docsFormat string
	docsOutput string
	docsLive   bool
)

var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Generate documentation from schema",
	Long: `Generate ERD diagrams and a table reference from the declared schema,
or from the live database with --live.

Supported formats:
  - plantuml: PlantUML ERD diagram
  - mermaid: Mermaid ERD diagram
  - graphviz: Graphviz DOT format
  - markdown: table reference
  - all: every format, written into the --output directory

Examples:
  schemasync docs --format plantuml --output erd.puml
  schemasync docs --format mermaid --output erd.md
  schemasync docs --format all --output docs/
  schemasync docs --live --format markdown
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := docsSource(cmd)
		if err != nil {
			return err
		}
		if len(s.Tables) == 0 {
			return fmt.Errorf("no tables found in schema")
		}

		if docsFormat != "all" {
			output := docsOutput
			if output == "" {
				output = docs.Format(docsFormat).DefaultFile()
			}
			return writeDoc(s, docs.Format(docsFormat), output)
		}

		dir := docsOutput
		if dir == "" {
			dir = "docs"
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating output directory: %w", err)
		}
		for _, f := range docs.Formats {
			if err := writeDoc(s, f, filepath.Join(dir, f.DefaultFile())); err != nil {
				return err
			}
		}
		fmt.Println("✅ Documentation generated successfully!")
		return nil
	},
}

func init() {
	docsCmd.Flags().StringVar(&docsFormat, "format", "mermaid", "Output format (plantuml, mermaid, graphviz, markdown, all)")
	docsCmd.Flags().StringVarP(&docsOutput, "output", "o", "", "Output file, or directory for --format all")
	docsCmd.Flags().BoolVar(&docsLive, "live", false, "Document the live database instead of the declaration")
}

func docsSource(cmd *cobra.Command) (*schema.DatabaseSchema, error) {
	if !docsLive {
		tree, err := loadDeclaration()
		if err != nil {
			return nil, err
		}
		return normalize.Normalize(tree, normalizeOptions())
	}
	ctx := commandContext(cmd)
	pool, err := connect(ctx)
	if err != nil {
		return nil, err
	}
	defer pool.Close()
	return newIntrospector(pool, cfg.Schema.Name).Introspect(ctx)
}

func writeDoc(s *schema.DatabaseSchema, f docs.Format, path string) error {
	content, err := docs.Render(s, f)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	fmt.Printf("✅ %s saved to: %s\n", f, path)
	return nil
}
