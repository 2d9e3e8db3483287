package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"bankos/internal/config"
	"bankos/internal/event"
	"bankos/internal/log"
	"bankos/internal/storage"
	"bankos/internal/tracking"
	"bankos/internal/worker"
)

func main() {
	// Load .env for local development; absent in containers.
	_ = godotenv.Load()

	logger := log.New(log.Config{Component: log.ComponentWriteback})
	log.SetDefault(logger)

	logger.Info("Starting writeback-worker")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", log.FieldError, err.Error())
		os.Exit(1)
	}
	if cfg.AMQPURL == "" {
		logger.Error("AMQP_URL is required: the writeback worker is nothing without the broker")
		os.Exit(1)
	}

	repo, err := storage.NewRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize storage", log.FieldError, err.Error(), "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	client, err := event.NewClient(cfg.AMQPURL, cfg.AMQPExchange, event.TopicOutcomes)
	if err != nil {
		logger.Error("Failed to connect event transport", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer client.Close()

	var tracker worker.Tracker
	if cfg.MLflowTrackingURI != "" {
		tracker = tracking.NewClient(cfg.MLflowTrackingURI, cfg.MLflowExperiment, cfg.CollaboratorTimeout, logger)
		logger.Info("Experiment tracking enabled", "uri", cfg.MLflowTrackingURI, "experiment", cfg.MLflowExperiment)
	} else {
		logger.Info("Experiment tracking disabled - no MLFLOW_TRACKING_URI provided")
	}

	writeback := worker.NewWriteback(repo, tracker, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Consuming decision outcomes", log.FieldTopic, event.TopicOutcomes)
		return client.Consume(ctx, event.TopicOutcomes, writeback.HandleOutcome)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Writeback worker stopped with error", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Writeback worker stopped gracefully")
}
