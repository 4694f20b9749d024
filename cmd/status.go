package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show applied and pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		st, err := newRunner(pool).Status(ctx)
		if err != nil {
			return err
		}

		fmt.Println("✅ Applied migrations:")
		for _, f := range st.Applied {
			fmt.Println("   -", f)
		}

		if len(st.Modified) > 0 {
			fmt.Println("\n⚠️  Modified after being applied:")
			for _, f := range st.Modified {
				fmt.Println("   -", f)
			}
		}

		if len(st.Failed) > 0 {
			fmt.Println("\n❌ Failed migrations:")
			for _, f := range st.Failed {
				fmt.Printf("   - %s: %s\n", f.MigrationName, f.ErrorMessage)
			}
		}

		fmt.Println("\n🕒 Pending migrations:")
		for _, f := range st.Pending {
			fmt.Println("   -", f)
		}
		return nil
	},
}
