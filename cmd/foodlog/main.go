package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"foodlog/internal/cli"
	"foodlog/internal/config"
	"foodlog/internal/log"
	"foodlog/internal/services"
)

var (
	dbPath      string
	backendFlag string

	cfg    *config.Config
	logger *log.Logger
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "foodlog",
		Short:         "Daily food intake log",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cli.LoadEnvFile()
			cfg = config.Load()
			if cmd.Flags().Changed("db") {
				cfg.SQLiteDBPath = dbPath
			}
			if cmd.Flags().Changed("backend") {
				cfg.DataBackend = backendFlag
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			logger = cli.SetupLogger(cfg)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides SQLITE_DB_PATH)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "data backend: sqlite or memory (overrides DATA_BACKEND)")

	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(removeCmd())
	rootCmd.AddCommand(dayCmd())
	rootCmd.AddCommand(recentCmd())
	rootCmd.AddCommand(popularCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	return rootCmd
}

// withService opens the configured service for the length of fn.
func withService(ctx context.Context, fn func(*services.FoodService) error) error {
	svc, _, err := cli.OpenService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := svc.Close(); cerr != nil {
			logger.Warn("Close failed", log.FieldError, cerr)
		}
	}()
	return fn(svc)
}
