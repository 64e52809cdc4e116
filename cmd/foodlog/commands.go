package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"foodlog/internal/core"
	apphttp "foodlog/internal/http"
	"foodlog/internal/services"
	"foodlog/internal/storage"
)

func parseDayArg(s string) (core.Day, error) {
	return apphttp.ParseDay(s)
}

func addCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <date|today> <name...>",
		Short: "Log one serving of a food",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDayArg(args[0])
			if err != nil {
				return err
			}
			name := strings.Join(args[1:], " ")
			return withService(cmd.Context(), func(svc *services.FoodService) error {
				qty, err := svc.AddFood(cmd.Context(), day, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s x%d\n", day, name, qty)
				return nil
			})
		},
	}
}

func removeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <date|today> <name...>",
		Short: "Remove one serving of a food",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			day, err := parseDayArg(args[0])
			if err != nil {
				return err
			}
			name := strings.Join(args[1:], " ")
			return withService(cmd.Context(), func(svc *services.FoodService) error {
				qty, err := svc.RemoveOne(cmd.Context(), day, name)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s x%d\n", day, name, qty)
				return nil
			})
		},
	}
}

func dayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "day [date|today]",
		Short: "List the foods logged on a day",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			day := core.Today()
			if len(args) == 1 {
				var err error
				if day, err = parseDayArg(args[0]); err != nil {
					return err
				}
			}
			return withService(cmd.Context(), func(svc *services.FoodService) error {
				rows, err := svc.EntriesForDate(cmd.Context(), day)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintf(out, "Nothing logged on %s\n", day)
					return nil
				}
				for _, e := range rows {
					fmt.Fprintf(out, "%-30s %d\n", e.Name, e.Quantity)
				}
				return nil
			})
		},
	}
}

func printNames(w io.Writer, names []string) {
	for i, n := range names {
		fmt.Fprintf(w, "%2d. %s\n", i+1, n)
	}
}

func recentCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recent",
		Short: "Show the most recently logged foods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *services.FoodService) error {
				names, err := svc.RecentNames(cmd.Context())
				if err != nil {
					return err
				}
				printNames(cmd.OutOrStdout(), names)
				return nil
			})
		},
	}
}

func popularCmd() *cobra.Command {
	var since string

	cmd := &cobra.Command{
		Use:   "popular",
		Short: "Show the foods logged on the most days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *services.FoodService) error {
				var (
					names []string
					err   error
				)
				if since != "" {
					day, perr := parseDayArg(since)
					if perr != nil {
						return perr
					}
					names, err = svc.PopularNamesSince(cmd.Context(), day)
				} else {
					names, err = svc.PopularNames(cmd.Context())
				}
				if err != nil {
					return err
				}
				printNames(cmd.OutOrStdout(), names)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "only count days on or after this date")
	return cmd
}

func exportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export [file]",
		Short: "Write all entries as CSV (stdout by default)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd.Context(), func(svc *services.FoodService) error {
				if len(args) == 0 || args[0] == "-" {
					return svc.Export(cmd.Context(), cmd.OutOrStdout())
				}
				f, err := os.Create(args[0])
				if err != nil {
					return fmt.Errorf("create export file: %w", err)
				}
				if err := svc.Export(cmd.Context(), f); err != nil {
					f.Close()
					return err
				}
				return f.Close()
			})
		},
	}
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Add the quantities of a CSV export to the log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open import file: %w", err)
				}
				defer f.Close()
				r = f
			}
			return withService(cmd.Context(), func(svc *services.FoodService) error {
				res, err := svc.Import(cmd.Context(), r)
				fmt.Fprintf(cmd.OutOrStdout(), "applied %d lines (%d servings), skipped %d\n",
					res.Applied, res.Increments, res.Skipped)
				return err
			})
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and print the schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.DataBackend != "sqlite" {
				return errors.New("migrate needs the sqlite backend")
			}
			if err := os.MkdirAll(filepath.Dir(cfg.SQLiteDBPath), 0o755); err != nil {
				return fmt.Errorf("create database directory: %w", err)
			}
			dsn := storage.DSN(cfg.SQLiteDBPath)
			if err := storage.RunMigrations(dsn); err != nil {
				return err
			}
			version, dirty, err := storage.SchemaVersion(dsn)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty=%v)\n", version, dirty)
			return nil
		},
	}
}
