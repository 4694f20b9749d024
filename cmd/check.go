package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check that the database matches the declared schema",
	Long: `Check the current state of your database against the declared schema
and the migration history.

This command will:
- Verify database connectivity
- Report failed or modified migrations and pending files
- Report drift between the declared schema and the database

It exits non-zero when anything needs attention, which makes it usable in CI.

Examples:
  schemasync check
  schemasync check --timeout 30s
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(commandContext(cmd), checkTimeout)
		defer cancel()

		res, pool, err := plan(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		st, err := newRunner(pool).Status(ctx)
		if err != nil {
			return err
		}

		var problems int
		if len(st.Failed) > 0 {
			problems++
			fmt.Printf("❌ %d failed migration(s)\n", len(st.Failed))
		}
		if len(st.Modified) > 0 {
			problems++
			fmt.Printf("⚠️  %d migration(s) changed after being applied\n", len(st.Modified))
		}
		if len(st.Pending) > 0 {
			problems++
			fmt.Printf("🕒 %d pending migration(s)\n", len(st.Pending))
		}
		if !res.Empty() {
			problems++
			fmt.Printf("🔀 Database differs from the declared schema (%d operation(s)):\n", len(res.Plan.Steps))
			for _, step := range res.Plan.Describe() {
				fmt.Println("   -", step)
			}
		}
		printWarnings(res.Warnings)

		if problems > 0 {
			return fmt.Errorf("schema check found %d problem(s)", problems)
		}
		fmt.Println("✅ Database matches the declared schema")
		return nil
	},
}

var checkTimeout time.Duration

func init() {
	checkCmd.Flags().DurationVarP(&checkTimeout, "timeout", "t", 10*time.Second, "Timeout for schema check")
}
