package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"bankos/internal/cdp"
	"bankos/internal/config"
	"bankos/internal/event"
	apphttp "bankos/internal/http"
	"bankos/internal/log"
	"bankos/internal/services"
	"bankos/internal/storage"
)

func main() {
	// Load .env for local development; absent in containers.
	_ = godotenv.Load()

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

	// The event transport is optional at startup: the ledger keeps
	// accepting writes when the broker is down, it just stops announcing
	// them.
	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		client, err := event.NewClient(cfg.AMQPURL, cfg.AMQPExchange,
			event.TopicCustomers, event.TopicAccounts, event.TopicTransactions, event.TopicOutcomes)
		if err != nil {
			logger.Warn("Event transport unavailable, continuing without it", log.FieldError, err.Error())
		} else {
			defer client.Close()
			publisher = client
			logger.Info("Event transport connected", "exchange", cfg.AMQPExchange)
		}
	}

	var notifier services.Notifier
	if cfg.RudderstackWriteKey != "" {
		notifier = cdp.NewClient(cfg.RudderstackDataPlaneURL, cfg.RudderstackWriteKey, cfg.CollaboratorTimeout, logger)
		logger.Info("CDP forwarding enabled", "data_plane", cfg.RudderstackDataPlaneURL)
	}

	txService := services.NewTransactionService(repo, publisher, notifier)
	truthService := services.NewTruthService(repo)

	srv := apphttp.NewServer(apphttp.Config{
		Addr:           ":" + cfg.Port,
		TruthCacheSize: cfg.TruthCacheSize,
		TruthCacheTTL:  cfg.TruthCacheTTL,
	}, txService, truthService, repo, logger)

	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err.Error())
		}
		cancel()
	}()

	logger.Info("Starting bankos server", "port", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
