// Package cli provides common initialization for the foodlog commands.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"foodlog/internal/amqp"
	"foodlog/internal/backend"
	"foodlog/internal/config"
	"foodlog/internal/log"
	"foodlog/internal/services"
)

// SetupLogger builds the application logger from the configured level and
// format and installs it as the slog default.
func SetupLogger(cfg *config.Config) *log.Logger {
	lc := log.DefaultConfig()
	lc.Output = os.Stderr
	if cfg != nil {
		if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
			lc.Level = level
		}
		lc.Format = cfg.LogFormat
	}
	logger := log.New(lc)
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// OpenService creates the configured backend and wraps it in a FoodService.
// The returned event client is nil when AMQP is disabled or unreachable;
// closing the service closes it.
func OpenService(ctx context.Context, cfg *config.Config, logger *log.Logger) (*services.FoodService, *amqp.Client, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create backend: %w", err)
	}
	svc := res.Service(services.Options{
		RankingLimit:    cfg.RankingLimit,
		RankingCacheTTL: cfg.RankingCacheTTL,
		Logger:          logger.WithComponent(log.ComponentFood),
	})
	return svc, res.Events, nil
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. The
// returned cancel function also releases the signal handler.
func GracefulShutdown(parent context.Context, logger *log.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigChan)
		select {
		case sig := <-sigChan:
			logger.Info("Shutdown signal received", "signal", sig.String(), log.FieldOperation, log.OpShutdown)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// ShutdownContext bounds cleanup after the main context is gone.
func ShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}
