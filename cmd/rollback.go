package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var steps int

func init() {
	rollbackCmd.Flags().IntVarP(&steps, "steps", "s", 1, "Number of migrations to rollback")
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback",
	Short: "Rollback migrations",
	Long: `Rollback the last migration or multiple migrations using their down sections.

Examples:
  schemasync rollback             # Rollback the last migration
  schemasync rollback --steps=3   # Rollback the last 3 migrations
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if steps < 1 {
			return fmt.Errorf("steps must be at least 1")
		}
		ctx := commandContext(cmd)
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		reverted, err := newRunner(pool).Rollback(ctx, steps)
		for _, name := range reverted {
			fmt.Println("Rolled back:", name)
		}
		if err != nil {
			return fmt.Errorf("rollback failed: %w", err)
		}

		switch {
		case len(reverted) == 0:
			fmt.Println("✅ No migrations to rollback.")
		case len(reverted) < steps:
			fmt.Printf("⚠️  Only %d migration(s) were applied; all rolled back.\n", len(reverted))
		default:
			fmt.Printf("✅ Rolled back %d migration(s).\n", len(reverted))
		}
		return nil
	},
}
