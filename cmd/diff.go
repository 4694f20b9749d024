package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ridoystarlord/schemasync/diff"
	"github.com/ridoystarlord/schemasync/schema"
)

var (
	diffVisual bool
	diffSQL    bool
)

var diffCmd = &cobra.Command{
	Use:   "diff",
	Short: "Show differences between the declared schema and the database",
	Long: `Show differences between your declared schema and the current database.

Examples:
  schemasync diff                 # Show differences in text format
  schemasync diff --visual        # Group changes per table, with colors
  schemasync diff --sql           # Also print the planned statements
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		res, pool, err := plan(commandContext(cmd))
		if err != nil {
			return err
		}
		defer pool.Close()

		if res.Changes.Empty() {
			fmt.Println("✅ No differences found between schema and database")
			printWarnings(res.Warnings)
			return nil
		}

		if diffVisual {
			showVisualDiff(res.Changes)
		} else {
			showTextDiff(res.Changes)
		}
		if diffSQL {
			fmt.Println("\n-- Planned SQL --")
			for _, stmt := range res.Statements {
				fmt.Println(stmt)
			}
		}
		printWarnings(res.Warnings)
		return nil
	},
}

func init() {
	diffCmd.Flags().BoolVarP(&diffVisual, "visual", "v", false, "Show changes grouped per table")
	diffCmd.Flags().BoolVar(&diffSQL, "sql", false, "Print the planned SQL statements")
}

func showTextDiff(cs *diff.ChangeSet) {
	fmt.Println("📋 Schema Changes (Text Format)")
	fmt.Println(strings.Repeat("=", 40))

	for i, op := range cs.Operations {
		fmt.Printf("%d. %s\n", i+1, op.Describe())
	}
}

// opColor paints additions green, removals red and in-place changes yellow.
func opColor(t diff.OperationType) *color.Color {
	switch t {
	case diff.CreateExtension, diff.CreateEnum, diff.AddEnumValue, diff.CreateFunction, diff.SetParameter,
		diff.CreateTable, diff.AddColumn, diff.AddConstraint, diff.CreateIndex, diff.CreateTrigger:
		return color.New(color.FgGreen, color.Bold)
	case diff.DropExtension, diff.DropEnum, diff.DropFunction, diff.ResetParameter,
		diff.DropTable, diff.DropColumn, diff.DropConstraint, diff.DropIndex, diff.DropTrigger:
		return color.New(color.FgRed, color.Bold)
	}
	return color.New(color.FgYellow, color.Bold)
}

func showVisualDiff(cs *diff.ChangeSet) {
	fmt.Println("🌳 Schema Changes (Visual Diff)")
	fmt.Println(strings.Repeat("=", 50))

	var database []diff.Operation
	byTable := map[string][]diff.Operation{}
	for _, op := range cs.Operations {
		if op.TableName == "" {
			database = append(database, op)
			continue
		}
		name := schema.Qualify(op.Schema, op.TableName)
		byTable[name] = append(byTable[name], op)
	}

	if len(database) > 0 {
		fmt.Println("\n🗄️  Database objects:")
		for _, op := range database {
			opColor(op.Type).Printf("  %s\n", op.Describe())
		}
	}

	tables := make([]string, 0, len(byTable))
	for name := range byTable {
		tables = append(tables, name)
	}
	sort.Strings(tables)

	if len(tables) > 0 {
		fmt.Println("\n📋 Tables:")
	}
	for _, name := range tables {
		fmt.Printf("  📋 %s:\n", name)
		for _, op := range byTable[name] {
			showTableOperation(op)
		}
	}
}

func showTableOperation(op diff.Operation) {
	c := opColor(op.Type)
	switch op.Type {
	case diff.CreateTable:
		c.Println("    ➕ CREATE TABLE")
		for _, col := range op.Table.Columns {
			c.Printf("       %s %s%s\n", col.Name, col.SQLType(), columnFlags(col))
		}
		for _, con := range op.Table.Constraints {
			c.Printf("       %s %s\n", con.Kind(), con.ConstraintName())
		}
		for _, idx := range op.Table.Indexes {
			c.Printf("       INDEX %s\n", idx.Name)
		}
		for _, tr := range op.Table.Triggers {
			c.Printf("       TRIGGER %s\n", tr.Name)
		}
	case diff.AlterColumn:
		c.Printf("    🔄 MODIFY %s:\n", op.Column.Name)
		cyan := color.New(color.FgCyan)
		for _, change := range diff.ColumnChanges(*op.OldColumn, *op.Column) {
			cyan.Printf("      %s\n", change)
		}
	default:
		c.Printf("    %s\n", op.Describe())
	}
}

func columnFlags(col schema.Column) string {
	var flags string
	if !col.Nullable {
		flags += " NOT NULL"
	}
	if col.Default != nil {
		flags += " DEFAULT " + *col.Default
	}
	return flags
}
