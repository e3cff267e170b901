package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"sewa/internal/backend"
	"sewa/internal/cli"
	"sewa/internal/config"
	"sewa/internal/directory"
	apphttp "sewa/internal/http"
	"sewa/internal/ledger"
	"sewa/internal/log"
	"sewa/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}

	opts := []services.Option{services.WithLogger(log.NewStructuredLogger(logger.WithComponent(log.ComponentBilling)))}
	if res.Publisher != nil {
		opts = append(opts, services.WithPublisher(res.Publisher))
	}
	svc := services.NewBillingService(
		directory.New(res.Store, directory.RequireLogin(cfg.RequireTenantLogin)),
		ledger.New(res.Store),
		cfg,
		opts...,
	)

	srv := apphttp.NewServer(":"+cfg.Port, svc, res.Ready, apphttp.Options{Logger: logger})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := res.Close(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting sewa server",
		"port", cfg.Port,
		"backend", backendCfg.Type,
		"login_required", cfg.RequireTenantLogin,
		log.FieldOperation, log.OpStartup)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
