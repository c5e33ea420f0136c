// Package main provides crmctl, an operator CLI for tag and economic group
// maintenance that runs the same cascades as the HTTP API.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	partnerapp "github.com/erp/crm/internal/application/partner"
	"github.com/erp/crm/internal/infrastructure/config"
	"github.com/erp/crm/internal/infrastructure/logger"
	"github.com/erp/crm/internal/infrastructure/persistence"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Global flag values.
var (
	flagConfig string
	flagJSON   bool
)

var (
	service *partnerapp.ConsistencyService
	db      *persistence.Database
	log     *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "crmctl",
	Short:             "crmctl maintains CRM tags and economic groups",
	SilenceUsage:      true,
	PersistentPreRunE: openService,
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeService()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: ./config.toml or /etc/crm/config.toml)")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output as JSON")

	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(groupsCmd)
}

// openService loads config and connects the consistency service
func openService(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadFrom(flagConfig)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err = logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: "console",
		Output: "stderr",
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	db, err = persistence.NewDatabaseWithLogger(&cfg.Database,
		logger.NewGormLogger(log, logger.MapGormLogLevel("warn")))
	if err != nil {
		return err
	}

	if cfg.Database.AutoMigrate {
		if err := persistence.AutoMigrate(db.DB); err != nil {
			return err
		}
	}

	stores := persistence.NewPartnerStores(db.DB)
	service = partnerapp.NewConsistencyService(partnerapp.Stores{
		Clients:  stores.Clients,
		Contacts: stores.Contacts,
		Links:    stores.Links,
		Tags:     stores.Tags,
		Groups:   stores.Groups,
	}, log, nil)
	return nil
}

// closeService releases the database connection
func closeService() error {
	if log != nil {
		_ = log.Sync()
	}
	if db == nil {
		return nil
	}
	err := db.Close()
	db = nil
	return err
}

// printJSON writes v indented to stdout
func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
