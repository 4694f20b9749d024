package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/ridoystarlord/schemasync/database"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check database connectivity",
	Long: `Check if the database is accessible and responsive.

Examples:
  schemasync health                 # Check default database connection
  schemasync health --timeout 10s   # Set custom timeout
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(commandContext(cmd), healthTimeout)
		defer cancel()

		if err := checkDatabaseHealth(ctx); err != nil {
			return fmt.Errorf("database health check failed: %w", err)
		}
		fmt.Println("✅ Database is healthy and accessible")
		return nil
	},
}

var healthTimeout time.Duration

func init() {
	healthCmd.Flags().DurationVarP(&healthTimeout, "timeout", "t", 5*time.Second, "Timeout for health check")
}

func checkDatabaseHealth(ctx context.Context) error {
	pool, err := connect(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	version, err := database.Version(ctx, pool)
	if err != nil {
		return err
	}
	fmt.Printf("🐘 PostgreSQL %d.%d\n", version/10000, version%10000)

	r := newRunner(pool)
	exists, err := r.HistoryTableExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		fmt.Printf("⚠️  Database is accessible but %s table not found\n", cfg.Migrations.Table)
		fmt.Println("   It is created by the first 'schemasync migrate'")
		return nil
	}

	history, err := r.History(ctx, 0, "")
	if err != nil {
		return err
	}
	fmt.Printf("📊 Found %d recorded migrations\n", len(history))
	return nil
}
