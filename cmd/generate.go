package cmd

import (
	"fmt"

	"github.com/ridoystarlord/schemasync/generator"
	"github.com/ridoystarlord/schemasync/pipeline"
	"github.com/spf13/cobra"
)

var (
	generateName   string
	dryRunGenerate bool
)

func init() {
	generateCmd.Flags().StringVarP(&generateName, "name", "n", "", "Short description used in the file name")
	generateCmd.Flags().BoolVar(&dryRunGenerate, "dry-run", false, "Preview the SQL that would be generated without writing files")
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a migration file from the declared schema",
	Long: `Generate a migration file that brings the database to the declared schema.

The up section is the planned DDL; the down section is planned by diffing in
the opposite direction.

Examples:
  schemasync generate
  schemasync generate -n add_orders
  schemasync generate --source structs -m internal/models
  schemasync generate --dry-run
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, pool, err := plan(commandContext(cmd))
		if err != nil {
			return err
		}
		defer pool.Close()

		if res.Empty() {
			fmt.Println("✅ No changes detected.")
			printWarnings(res.Warnings)
			return nil
		}

		down, err := pipeline.Reverse(res)
		if err != nil {
			return fmt.Errorf("planning rollback: %w", err)
		}

		if dryRunGenerate {
			fmt.Println("\n================ DRY RUN: Migration Preview ================")
			fmt.Println("-- Up Migration SQL --")
			for _, stmt := range res.Statements {
				fmt.Println(stmt)
			}
			fmt.Println("\n-- Down Migration (Rollback) SQL --")
			for _, stmt := range down.Statements {
				fmt.Println(stmt)
			}
			fmt.Println("============================================================")
			fmt.Println("(Dry run only. No files were written.)")
			printWarnings(res.Warnings)
			return nil
		}

		filename, err := generator.WriteMigrationFile(cfg.Migrations.Dir, generateName, res.Statements, down.Statements)
		if err != nil {
			return err
		}
		fmt.Println("✅ Migration generated:", filename)
		printWarnings(res.Warnings)
		return nil
	},
}
