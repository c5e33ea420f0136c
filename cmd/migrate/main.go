// Package main provides the schema migration CLI. Migrations are embedded in
// the binary; --dir applies a directory on disk instead.
package main

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/erp/crm/internal/infrastructure/config"
	"github.com/erp/crm/internal/infrastructure/logger"
	"github.com/erp/crm/internal/infrastructure/migration"
	"github.com/erp/crm/migrations"
	_ "github.com/lib/pq"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const defaultMigrationsDir = "migrations"

// Global flag values.
var (
	flagConfig   string
	flagDir      string
	flagLogLevel string
)

var (
	log      *zap.Logger
	db       *sql.DB
	migrator *migration.Migrator
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply and inspect CRM schema migrations",
	Long: `migrate applies the SQL schema migrations to the configured postgres
database. Connection settings come from config.toml and CRM_DATABASE_*
environment variables.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		log, err = logger.New(&logger.Config{
			Level:      flagLogLevel,
			Format:     "console",
			Output:     "stdout",
			TimeFormat: "2006-01-02 15:04:05",
		})
		return err
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeMigrator()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./config.toml or /etc/crm/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagDir, "dir", "", "read migrations from this directory instead of the embedded set")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")

	rootCmd.AddCommand(upCmd, downCmd, stepCmd, gotoCmd, versionCmd, forceCmd, createCmd, listCmd)
}

// openMigrator connects to the database named by the config
func openMigrator() (*migration.Migrator, error) {
	cfg, err := config.LoadFrom(flagConfig)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Database.Driver != config.DriverPostgres {
		return nil, fmt.Errorf("SQL migrations target postgres, got driver %q; sqlite installs use database.auto_migrate", cfg.Database.Driver)
	}

	db, err = sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if flagDir != "" {
		dir, err := filepath.Abs(flagDir)
		if err != nil {
			return nil, err
		}
		log.Info("Using migrations from disk", zap.String("dir", dir))
		migrator, err = migration.NewFromPath(db, dir, log)
		return migrator, err
	}
	migrator, err = migration.New(db, log)
	return migrator, err
}

func closeMigrator() error {
	var err error
	switch {
	case migrator != nil:
		// the postgres driver closes db with it
		err = migrator.Close()
	case db != nil:
		err = db.Close()
	}
	migrator, db = nil, nil
	if log != nil {
		_ = log.Sync()
	}
	return err
}

// withMigrator wraps a command body that needs a live migrator
func withMigrator(run func(m *migration.Migrator, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		m, err := openMigrator()
		if err != nil {
			return err
		}
		return run(m, args)
	}
}

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
		return m.Up()
	}),
}

var downCmd = &cobra.Command{
	Use:   "down",
	Short: "Roll back all migrations",
	Args:  cobra.NoArgs,
	RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
		return m.Down()
	}),
}

var stepCmd = &cobra.Command{
	Use:   "step <n>",
	Short: "Apply n migrations (positive=up, negative=down)",
	Example: `  # Roll back the last migration
  migrate step -- -1`,
	Args: cobra.ExactArgs(1),
	RunE: withMigrator(func(m *migration.Migrator, args []string) error {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid step count %q", args[0])
		}
		return m.Steps(n)
	}),
}

var gotoCmd = &cobra.Command{
	Use:   "goto <version>",
	Short: "Migrate up or down to a specific version",
	Args:  cobra.ExactArgs(1),
	RunE: withMigrator(func(m *migration.Migrator, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.GoTo(uint(version))
	}),
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show the applied migration version",
	Args:  cobra.NoArgs,
	RunE: withMigrator(func(m *migration.Migrator, _ []string) error {
		version, dirty, err := m.Version()
		if err != nil {
			return err
		}
		if version == 0 {
			log.Info("No migrations applied")
			return nil
		}
		log.Info("Current migration version", zap.Uint("version", version), zap.Bool("dirty", dirty))
		return nil
	}),
}

var forceCmd = &cobra.Command{
	Use:   "force <version>",
	Short: "Set the recorded version without running migrations",
	Long:  `force clears a dirty state after a failed migration has been repaired by hand.`,
	Args:  cobra.ExactArgs(1),
	RunE: withMigrator(func(m *migration.Migrator, args []string) error {
		version, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid version %q", args[0])
		}
		return m.Force(version)
	}),
}

var createCmd = &cobra.Command{
	Use:     "create <name> [description]",
	Short:   "Write a new up/down migration pair",
	Example: `  migrate create add_client_notes "Free-text notes on clients"`,
	Args:    cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := flagDir
		if dir == "" {
			dir = defaultMigrationsDir
		}
		description := ""
		if len(args) > 1 {
			description = args[1]
		}

		mf, err := migration.CreateMigration(dir, args[0], description)
		if err != nil {
			return err
		}
		log.Info("Migration created",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var (
			names []string
			err   error
		)
		if flagDir != "" {
			names, err = migration.ListMigrations(os.DirFS(flagDir))
		} else {
			names, err = migration.ListMigrations(migrations.FS)
		}
		if err != nil {
			return err
		}

		if len(names) == 0 {
			log.Info("No migrations found")
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(cmd.OutOrStdout(), name)
		}
		return nil
	},
}
