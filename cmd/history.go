package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/runner"
)

var (
	historyLimit    int
	historyTable    string
	historyDetailed bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show detailed migration history",
	Long: `Show migration history with timestamps, execution times and user information.

Examples:
  schemasync history                 # Show all migration history
  schemasync history --limit 10      # Show last 10 migrations
  schemasync history --table users   # Show migrations that touched users
  schemasync history --detailed      # Show detailed information
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandContext(cmd)
		pool, err := connect(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		history, err := newRunner(pool).History(ctx, historyLimit, historyTable)
		if err != nil {
			return err
		}
		if len(history) == 0 {
			fmt.Println("📋 No migration history found")
			return nil
		}

		fmt.Println("📋 Migration History")
		fmt.Println(strings.Repeat("=", 60))
		if historyDetailed {
			showDetailedHistory(history)
		} else {
			showSummaryHistory(history)
		}
		return nil
	},
}

func statusMark(status string) string {
	switch status {
	case runner.StatusSuccess:
		return color.New(color.FgGreen, color.Bold).Sprint("✅")
	case runner.StatusFailed:
		return color.New(color.FgRed, color.Bold).Sprint("❌")
	}
	return color.New(color.FgYellow, color.Bold).Sprint("⚠️")
}

func showDetailedHistory(history []runner.MigrationRecord) {
	red := color.New(color.FgRed, color.Bold)
	blue := color.New(color.FgBlue, color.Bold)
	cyan := color.New(color.FgCyan)

	for i, record := range history {
		fmt.Printf("\n%d. %s ", i+1, statusMark(record.Status))
		blue.Printf("%s\n", record.MigrationName)

		cyan.Printf("   📅 Executed: %s\n", record.ExecutedAt.Format("2006-01-02 15:04:05"))
		if record.ExecutionTime > 0 {
			cyan.Printf("   ⏱️  Duration: %v\n", record.ExecutionTime)
		}
		if record.ExecutedBy != "" {
			cyan.Printf("   👤 User: %s\n", record.ExecutedBy)
		}
		if record.TableAffected != "" {
			cyan.Printf("   📋 Tables: %s\n", record.TableAffected)
		}
		cyan.Printf("   📊 Status: %s\n", record.Status)
		if record.Status == runner.StatusFailed && record.ErrorMessage != "" {
			red.Printf("   💥 Error: %s\n", record.ErrorMessage)
		}
		if len(record.Checksum) >= 8 {
			cyan.Printf("   🔍 Checksum: %s...\n", record.Checksum[:8])
		}
	}
}

func showSummaryHistory(history []runner.MigrationRecord) {
	blue := color.New(color.FgBlue, color.Bold)

	fmt.Printf("%-4s %-8s %-32s %-12s %-10s %s\n", "ID", "Status", "Migration", "Duration", "User", "Date")
	fmt.Println(strings.Repeat("-", 88))

	var succeeded, failed int
	var total time.Duration
	for i, record := range history {
		duration := "N/A"
		if record.ExecutionTime > 0 {
			duration = record.ExecutionTime.Round(time.Millisecond).String()
			total += record.ExecutionTime
		}
		user := record.ExecutedBy
		if user == "" {
			user = "N/A"
		}
		name := record.MigrationName
		if len(name) > 30 {
			name = name[:27] + "..."
		}
		switch record.Status {
		case runner.StatusSuccess:
			succeeded++
		case runner.StatusFailed:
			failed++
		}

		fmt.Printf("%-4d %-8s %-32s %-12s %-10s %s\n",
			i+1, statusMark(record.Status), blue.Sprint(name), duration, user,
			record.ExecutedAt.Format("2006-01-02 15:04"))
	}

	fmt.Println(strings.Repeat("-", 88))
	fmt.Printf("📊 Summary: %d total, %d successful, %d failed\n", len(history), succeeded, failed)
	if total > 0 {
		fmt.Printf("⏱️  Total execution time: %v\n", total)
	}
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "l", 0, "Limit number of records to show (0 = all)")
	historyCmd.Flags().StringVarP(&historyTable, "table", "t", "", "Filter by table name")
	historyCmd.Flags().BoolVarP(&historyDetailed, "detailed", "d", false, "Show detailed information")
}
