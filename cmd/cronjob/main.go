package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"leadmarket-backend/internal/app"
	"leadmarket-backend/internal/config"
	"leadmarket-backend/internal/jobs"
	"leadmarket-backend/internal/logger"
	"leadmarket-backend/internal/scheduler"
)

func main() {
	// Parse command-line flags
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	runOnce := flag.String("run-once", "", "Run a specific job once and exit (e.g., 'reconcile-ledgers', 'all')")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)
	logger.Info("Starting Lead Market Cronjob Runner...", "log_level", cfg.Log.Level)

	if err := run(cfg, *runOnce); err != nil {
		logger.Error("Cronjob runner failed", "error", err)
		if *runOnce != "" {
			printJobs()
		}
		log.Fatalf("Cronjob runner failed: %v", err)
	}
}

func run(cfg *config.Config, runOnce string) error {
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.Close()

	// Check if running a single job
	if runOnce != "" {
		logger.Info("Running job once", "job", runOnce)
		if err := a.Jobs.Run(runOnce); err != nil {
			return fmt.Errorf("job %s failed: %w", runOnce, err)
		}
		logger.Info("Job execution completed", "job", runOnce)
		return nil
	}

	// Initialize Scheduler
	cronScheduler, err := scheduler.NewScheduler(a.Jobs)
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	// Start scheduler
	cronScheduler.Start()
	logger.Info("Cronjob scheduler is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	// Graceful shutdown
	logger.Info("Shutting down cronjob scheduler...")
	cronScheduler.Stop()
	logger.Info("Cronjob scheduler stopped. Goodbye!")
	return nil
}

func printJobs() {
	fmt.Printf("Available jobs:\n")
	for _, name := range []string{jobs.JobReconcileLedgers, jobs.JobExpireLeads, jobs.JobRetryNotifications, jobs.JobAll} {
		fmt.Printf("  - %s\n", name)
	}
}
