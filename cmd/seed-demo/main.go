package main

import (
	"context"
	"flag"
	"os"

	"github.com/joho/godotenv"

	"bankos/internal/config"
	"bankos/internal/log"
	"bankos/internal/seed"
	"bankos/internal/storage"
)

func main() {
	_ = godotenv.Load()

	perAccount := flag.Int("transactions", 8, "ledger transactions to apply per seeded account")
	flag.Parse()

	logger := log.New(log.DefaultConfig())
	log.SetDefault(logger)

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	if err := seed.Run(context.Background(), repo, *perAccount, logger); err != nil {
		logger.Error("Seed failed", log.FieldError, err.Error())
		os.Exit(1)
	}
}
