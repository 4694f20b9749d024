package cmd

import (
	"fmt"

	"github.com/ridoystarlord/schemasync/runner"
	"github.com/spf13/cobra"
)

var dryRunSync bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Apply the declared schema to the database directly",
	Long: `Plan the changes between the declared schema and the database and apply
them in a single transaction, without writing a migration file.

Examples:
  schemasync sync --dry-run       # Print the statements only
  schemasync sync
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		res, pool, err := plan(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		if res.Empty() {
			fmt.Println("✅ Database already matches the declared schema.")
			printWarnings(res.Warnings)
			return nil
		}

		if dryRunSync {
			fmt.Println("\n================ DRY RUN: Sync Preview ================")
			for i, step := range res.Plan.Describe() {
				fmt.Printf("-- %d. %s\n", i+1, step)
			}
			fmt.Println()
			for _, stmt := range res.Statements {
				fmt.Println(stmt)
			}
			fmt.Println("=======================================================")
			fmt.Println("(Dry run only. Nothing was applied.)")
			printWarnings(res.Warnings)
			return nil
		}

		if err := runner.ApplyStatements(ctx, pool, res.Statements); err != nil {
			return fmt.Errorf("sync failed, nothing was applied: %w", err)
		}
		fmt.Printf("✅ Applied %d statement(s).\n", len(res.Statements))
		printWarnings(res.Warnings)
		return nil
	},
}

func init() {
	syncCmd.Flags().BoolVar(&dryRunSync, "dry-run", false, "Print the planned SQL without applying it")
}
