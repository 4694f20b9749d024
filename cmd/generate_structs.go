package cmd

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/loader"
)

var (
	outputDir   string
	packageName string
	structsLive bool
)

func init() {
	generateStructsCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory for generated structs (default: the configured models directory)")
	generateStructsCmd.Flags().StringVarP(&packageName, "package", "p", "models", "Package name for generated structs")
	generateStructsCmd.Flags().BoolVar(&structsLive, "live", false, "Generate from the live database instead of schema.yaml")
}

var generateStructsCmd = &cobra.Command{
	Use:   "generate-structs",
	Short: "Generate tagged Go structs from schema",
	Long: `Generate Go structs carrying schema tags from your YAML schema, or from the
live database with --live. The result can be used as the declaration with
schema.source: structs.

Examples:
  schemasync generate-structs                      # Generate structs in ./models/
  schemasync generate-structs -o ./internal/models # Custom output directory
  schemasync generate-structs -p entities          # Custom package name
  schemasync generate-structs --live
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var tree definition.Tree
		if structsLive {
			ctx := commandContext(cmd)
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			current, err := newIntrospector(pool, cfg.Schema.Name).Introspect(ctx)
			if err != nil {
				return err
			}
			tree = loader.FromSchema(current, cfg.Dialect.MaxIdentifierLength)
		} else {
			t, err := loader.LoadYAML(cfg.Schema.File)
			if err != nil {
				return err
			}
			tree = t
		}

		var buf bytes.Buffer
		skipped, err := loader.WriteStructs(&buf, tree, packageName)
		if err != nil {
			return err
		}

		dir := outputDir
		if dir == "" {
			dir = cfg.Schema.Models
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating models directory: %w", err)
		}
		path := filepath.Join(dir, "models.go")
		if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
			return fmt.Errorf("writing %s: %w", path, err)
		}

		fmt.Printf("✅ Generated %d structs in %s\n", len(tree.Tables), path)
		if len(skipped) > 0 {
			printWarnings(prefixAll("not expressible as struct tags: ", skipped))
		}
		return nil
	},
}

func prefixAll(prefix string, items []string) []string {
	out := make([]string, len(items))
	for i, s := range items {
		out[i] = prefix + s
	}
	return out
}
