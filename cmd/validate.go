package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/ridoystarlord/schemasync/normalize"
	"github.com/ridoystarlord/schemasync/validator"
	"github.com/spf13/cobra"
)

var (
	validateFormat string
	validateOnline bool
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the declared schema",
	Long: `Validate the declared schema without touching the database.

Checks include:
- Table and column naming (PostgreSQL identifier rules, reserved keywords)
- Data types and default values
- Foreign key, index and check column references
- Everything the planner requires (unique names, resolvable enums)

With --online the live database is read as well and existing tables are reported.

Examples:
  schemasync validate
  schemasync validate --format json
  schemasync validate --online
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		tree, err := loadDeclaration()
		if err != nil {
			return err
		}

		v := validator.NewSchemaValidator(cfg.Dialect.MaxIdentifierLength)
		if validateOnline {
			ctx := commandContext(cmd)
			pool, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()
			current, err := newIntrospector(pool, tree.Schema).Introspect(ctx)
			if err != nil {
				return err
			}
			v.WithExisting(current)
		}

		result := v.ValidateSchema(tree)
		if result.Valid {
			// the lint passed; the normalizer catches what only shows up once names are resolved
			if _, err := normalize.Normalize(tree, normalizeOptions()); err != nil {
				result.Valid = false
				result.Errors = append(result.Errors, validator.ValidationError{
					Type: "declaration", Message: err.Error(), Severity: "error",
				})
			}
		}

		if validateFormat == "json" {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
		} else {
			outputText(result)
		}
		if !result.Valid {
			return fmt.Errorf("schema validation failed with %d error(s)", len(result.Errors))
		}
		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateFormat, "format", "text", "Output format (text, json)")
	validateCmd.Flags().BoolVar(&validateOnline, "online", false, "Also compare with the live database")
}

func outputText(result *validator.ValidationResult) {
	if result.Valid {
		color.Green("✅ Schema validation passed!")
	} else {
		color.Red("❌ Schema validation failed!")
	}

	printFindings("🔴 Errors", result.Errors)
	printFindings("🟡 Warnings", result.Warnings)
	printFindings("🔵 Info", result.Info)

	fmt.Printf("\n📊 Summary:\n")
	fmt.Printf("  • Errors: %d\n", len(result.Errors))
	fmt.Printf("  • Warnings: %d\n", len(result.Warnings))
	fmt.Printf("  • Info: %d\n", len(result.Info))
}

func printFindings(title string, findings []validator.ValidationError) {
	if len(findings) == 0 {
		return
	}
	fmt.Printf("\n%s (%d):\n", title, len(findings))
	for i, f := range findings {
		fmt.Printf("  %d. %s", i+1, f.String())
		if f.Index != "" {
			fmt.Printf(" (index: %s)", f.Index)
		}
		fmt.Println()
	}
}
