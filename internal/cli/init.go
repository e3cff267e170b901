// Package cli holds the startup steps shared by cmd/sewa and
// cmd/sewa-worker.
package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"sewa/internal/config"
	"sewa/internal/log"
	"sewa/internal/storage"
)

// SetupLogger builds the application logger at LOG_LEVEL and installs it
// as the slog default.
func SetupLogger() *log.Logger {
	logger := log.New(log.Config{
		Level:     log.ParseLevel(os.Getenv("LOG_LEVEL")),
		Component: log.ComponentApp,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile reads .env when present; deployments set the environment
// directly.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it with check.
// It exits the process on validation failure.
func LoadAndValidateConfig(logger *log.Logger, check func(*config.Config) error) *config.Config {
	cfg := config.Load()
	if err := check(cfg); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	if cfg.UsesDefaultAdminCredential() {
		logger.WithComponent(log.ComponentSecurity).Warn("ADMIN_CREDENTIAL is not set, using the built-in default")
	}
	return cfg
}

// InitSQLite opens the SQLite repository or exits the process.
func InitSQLite(logger *log.Logger, dbPath string) *storage.SQLiteRepository {
	repo, err := storage.NewSQLiteRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// GracefulShutdown returns a context that ends on SIGINT or SIGTERM,
// after cleanup has run with at most timeout to finish. The returned
// channel closes once cleanup is over.
func GracefulShutdown(logger *log.Logger, timeout time.Duration, cleanup func(ctx context.Context)) (context.Context, <-chan struct{}) {
	sigCtx, stopSignals := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		defer close(done)
		<-sigCtx.Done()
		stopSignals()
		logger.Info("Shutdown signal received", log.FieldOperation, log.OpShutdown)

		cleanupCtx, cancelCleanup := context.WithTimeout(context.Background(), timeout)
		defer cancelCleanup()
		if cleanup != nil {
			cleanup(cleanupCtx)
		}
		cancel()

		if errors.Is(cleanupCtx.Err(), context.DeadlineExceeded) {
			logger.Warn("Shutdown timeout reached", "timeout", timeout)
			return
		}
		logger.Info("Shutdown complete")
	}()

	return ctx, done
}

// WaitForShutdown blocks until shutdown has finished.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}
