package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"foodlog/internal/cache"
	"foodlog/internal/cli"
	apphttp "foodlog/internal/http"
	"foodlog/internal/log"
	"foodlog/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = cfg.Addr()
			}

			ctx, stop := cli.GracefulShutdown(cmd.Context(), logger)
			defer stop()

			svc, events, err := cli.OpenService(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer func() {
				if cerr := svc.Close(); cerr != nil {
					logger.Error("Close failed", log.FieldError, cerr)
				}
			}()

			cacheManager := cache.NewManager(logger.Logger.With(log.FieldComponent, log.ComponentCache))
			cacheManager.Register(svc.RankingCache())
			cacheManager.StartCleanup(cfg.RankingCacheTTL)
			defer cacheManager.Stop()

			srv := apphttp.NewServer(addr, svc, apphttp.Options{
				Logger:                 logger,
				WriteRequestsPerMinute: cfg.WriteRequestsPerMinute,
				BaseContext:            ctx,
			})

			g, gctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				logger.Info("Starting foodlog server",
					"addr", addr,
					"backend", cfg.DataBackend,
					"amqp_enabled", events != nil,
					log.FieldOperation, log.OpStartup)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})

			g.Go(func() error {
				<-gctx.Done()
				shutdownCtx, cancel := cli.ShutdownContext(shutdownTimeout)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logger.Error("Server shutdown error", log.FieldError, err)
				}
				return nil
			})

			if events != nil {
				changes := worker.NewChangeWorker(svc, logger)
				g.Go(func() error {
					return changes.Run(gctx, events)
				})
			}

			err = g.Wait()
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Server stopped gracefully", log.FieldOperation, log.OpShutdown)
			return nil
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to :$PORT)")
	return cmd
}
