package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadmarket-backend/internal/app"
	"leadmarket-backend/internal/config"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	withScheduler := flag.Bool("scheduler", false, "Also run the cron scheduler in this process")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Lead Market Backend...", "log_level", cfg.Log.Level, "log_format", cfg.Log.Format)
	logger.Info("Server configuration", "address", cfg.GetServerAddress(), "driver", cfg.Database.Driver)

	if err := run(cfg, *withScheduler); err != nil {
		logger.Error("Server exited with error", "error", err)
		log.Fatalf("Server exited with error: %v", err)
	}
	logger.Info("Server stopped. Goodbye!")
}

// run owns every resource the server opens, so each exit path closes them.
func run(cfg *config.Config, withScheduler bool) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.Close()

	if err := a.BootstrapAdmin(ctx); err != nil {
		return fmt.Errorf("admin bootstrap failed: %w", err)
	}

	// Accounts whose ledger disagrees with the cached balance are frozen
	// before any traffic is served.
	report, err := a.Services.Ledger.ReconcileAll(ctx)
	if err != nil {
		return fmt.Errorf("startup reconciliation failed: %w", err)
	}
	if len(report.Mismatched) > 0 {
		logger.Warn("Accounts frozen by startup reconciliation", "count", len(report.Mismatched))
	}

	a.Dispatcher.Start(ctx)
	defer a.Dispatcher.Stop()

	if withScheduler {
		cronScheduler, err := scheduler.NewScheduler(a.Jobs)
		if err != nil {
			return fmt.Errorf("failed to create scheduler: %w", err)
		}
		cronScheduler.Start()
		defer cronScheduler.Stop()
	}

	srv := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      a.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "address", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "error", err)
	}
	return serveErr
}
