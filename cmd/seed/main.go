package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"leadmarket-backend/internal/app"
	"leadmarket-backend/internal/config"
	"leadmarket-backend/internal/logger"
)

func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	seedPath := flag.String("seed", "config/seed.dev.yaml", "Path to seed data file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	seed, err := app.LoadSeed(*seedPath)
	if err != nil {
		log.Fatalf("Failed to read seed data: %v", err)
	}

	res, err := run(cfg, seed)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Seed complete: %d accounts, %d deposits, %d leads", res.AccountsCreated, res.DepositsApplied, res.LeadsCreated)
}

func run(cfg *config.Config, seed *app.SeedData) (app.SeedResult, error) {
	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return app.SeedResult{}, fmt.Errorf("failed to initialize application: %w", err)
	}
	defer a.Close()

	if err := a.BootstrapAdmin(ctx); err != nil {
		return app.SeedResult{}, fmt.Errorf("admin bootstrap failed: %w", err)
	}
	res, err := a.Seed(ctx, seed)
	if err != nil {
		return res, fmt.Errorf("failed to populate data: %w", err)
	}
	return res, nil
}
