package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var dryRunMigrate bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()
		r := newRunner(pool)

		if dryRunMigrate {
			pending, err := r.Pending(ctx)
			if err != nil {
				return err
			}
			if len(pending) == 0 {
				fmt.Println("✅ No pending migrations.")
				return nil
			}
			fmt.Println("\n================ DRY RUN: Migration Preview ================")
			for _, m := range pending {
				fmt.Printf("\n-- Migration: %s --\n", m.Name)
				for _, stmt := range m.Up {
					fmt.Println(stmt)
				}
			}
			fmt.Println("============================================================")
			fmt.Println("(Dry run only. No migrations were applied.)")
			return nil
		}

		applied, err := r.Migrate(ctx)
		for _, name := range applied {
			fmt.Println("Applied:", name)
		}
		if err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		if len(applied) == 0 {
			fmt.Println("✅ No pending migrations.")
			return nil
		}
		fmt.Println("✅ All migrations applied.")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&dryRunMigrate, "dry-run", false, "Preview the SQL that would be executed without applying migrations")
}
