package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ridoystarlord/schemasync/config"
	"github.com/ridoystarlord/schemasync/database"
	"github.com/ridoystarlord/schemasync/definition"
	"github.com/ridoystarlord/schemasync/introspect"
	"github.com/ridoystarlord/schemasync/loader"
	"github.com/ridoystarlord/schemasync/logger"
	"github.com/ridoystarlord/schemasync/normalize"
	"github.com/ridoystarlord/schemasync/pipeline"
	"github.com/ridoystarlord/schemasync/runner"
	"github.com/spf13/cobra"
)

var (
	configFile string
	cfg        *config.Config
	loaderCfg  = config.NewLoader()
)

var rootCmd = &cobra.Command{
	Use:   "schemasync",
	Short: "Declarative PostgreSQL schema synchronization",
	Long: `schemasync compares a declared schema (schema.yaml or annotated Go structs)
with a live PostgreSQL database and plans the DDL that makes them match.

Examples:

  schemasync init
  schemasync diff
  schemasync generate
  schemasync sync --dry-run
  schemasync migrate
`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := loaderCfg.Load(configFile)
		if err != nil {
			return err
		}
		cfg = c
		logger.SetGlobal(logger.New(&logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr}))
		return nil
	},
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		color.New(color.FgRed).Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "Config file (default: ./schemasync.yaml)")
	flags.String("database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flags.StringP("file", "f", "", "Schema YAML file (default: schema.yaml)")
	flags.StringP("models", "m", "", "Models directory scanned when --source=structs")
	flags.String("source", "", "Declaration source: yaml or structs")
	flags.String("schema", "", "Database schema (namespace) to manage")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: console or json")

	loaderCfg.BindFlag("database.url", flags.Lookup("database-url"))
	loaderCfg.BindFlag("schema.file", flags.Lookup("file"))
	loaderCfg.BindFlag("schema.models", flags.Lookup("models"))
	loaderCfg.BindFlag("schema.source", flags.Lookup("source"))
	loaderCfg.BindFlag("schema.name", flags.Lookup("schema"))
	loaderCfg.BindFlag("log.level", flags.Lookup("log-level"))
	loaderCfg.BindFlag("log.format", flags.Lookup("log-format"))

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(docsCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(generateStructsCmd)
}

// commandContext carries the global logger so every stage logs through it.
func commandContext(cmd *cobra.Command) context.Context {
	return logger.L().WithContext(cmd.Context())
}

// loadDeclaration reads the declaration from the configured source.
func loadDeclaration() (definition.Tree, error) {
	var tree definition.Tree
	var err error
	if cfg.Schema.Source == "structs" {
		tree, err = loader.LoadTags(cfg.Schema.Models, cfg.Schema.Database, cfg.Schema.Name)
	} else {
		tree, err = loader.LoadYAML(cfg.Schema.File)
	}
	if err != nil {
		return definition.Tree{}, err
	}
	if tree.Database == "" {
		tree.Database = cfg.Schema.Database
	}
	if tree.Schema == "" {
		tree.Schema = cfg.Schema.Name
	}
	return tree, nil
}

func normalizeOptions() normalize.Options {
	return normalize.Options{
		DatabaseName:        cfg.Schema.Database,
		SchemaName:          cfg.Schema.Name,
		MaxIdentifierLength: cfg.Dialect.MaxIdentifierLength,
	}
}

func connect(ctx context.Context) (*pgxpool.Pool, error) {
	if err := cfg.RequireDatabase(); err != nil {
		return nil, err
	}
	return database.Connect(ctx, database.Config{
		URL:            cfg.Database.URL,
		MaxConns:       cfg.Database.MaxConns,
		MinConns:       cfg.Database.MinConns,
		ConnectTimeout: cfg.Database.ConnectTimeout,
	})
}

func newIntrospector(db database.DB, namespace string) *introspect.Introspector {
	return introspect.New(db, introspect.Options{
		Schema:          namespace,
		Ignore:          cfg.Schema.Ignore,
		MigrationsTable: cfg.Migrations.Table,
	})
}

func newRunner(db database.DB) *runner.Runner {
	return runner.New(db, runner.Options{Dir: cfg.Migrations.Dir, Table: cfg.Migrations.Table})
}

// plan loads the declaration, connects and runs the pipeline. The caller
// closes the returned pool.
func plan(ctx context.Context) (*pipeline.Result, *pgxpool.Pool, error) {
	tree, err := loadDeclaration()
	if err != nil {
		return nil, nil, err
	}
	pool, err := connect(ctx)
	if err != nil {
		return nil, nil, err
	}
	res, err := pipeline.Run(ctx, tree, newIntrospector(pool, tree.Schema), pipeline.Options{Normalize: normalizeOptions()})
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return res, pool, nil
}

func printWarnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	yellow := color.New(color.FgYellow)
	fmt.Println()
	yellow.Printf("⚠️  Warnings (%d):\n", len(warnings))
	for _, w := range warnings {
		yellow.Printf("   - %s\n", w)
	}
}
