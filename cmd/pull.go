package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/loader"
)

var (
	pullOutput string
	pullForce  bool
)

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Write the live database schema as a schema.yaml declaration",
	Long: `Introspect the database and write what it finds as a declaration, the
starting point for managing an existing database with schemasync.

Examples:
  schemasync pull                    # write schema.yaml (refuses to overwrite)
  schemasync pull --output -         # print to stdout
  schemasync pull --force            # overwrite an existing file
`,
	RunE: func(cmd *cobra.Command, args []string) error {
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
		tree := loader.FromSchema(current, cfg.Dialect.MaxIdentifierLength)

		if pullOutput == "-" {
			return loader.WriteYAML(os.Stdout, tree)
		}
		output := pullOutput
		if output == "" {
			output = cfg.Schema.File
		}
		if _, err := os.Stat(output); err == nil && !pullForce {
			return fmt.Errorf("%s already exists, use --force to overwrite", output)
		}
		f, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("creating %s: %w", output, err)
		}
		if err := writeTree(f, tree); err != nil {
			return err
		}
		fmt.Printf("✅ Wrote %d tables to %s\n", len(tree.Tables), output)
		printWarnings(current.Warnings)
		return nil
	},
}

func writeTree(f *os.File, tree definition.Tree) error {
	if err := loader.WriteYAML(f, tree); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func init() {
	pullCmd.Flags().StringVarP(&pullOutput, "output", "o", "", "Output file (default: the configured schema file, - for stdout)")
	pullCmd.Flags().BoolVar(&pullForce, "force", false, "Overwrite an existing file")
}
