package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tixgate/cmd/consumers/jobs"
	"tixgate/internal/config"
	"tixgate/internal/consumers"
	"tixgate/internal/database"
	"tixgate/internal/logger"
	"tixgate/internal/messaging"
	"tixgate/internal/repository"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogFormat)
	log := logger.Get()

	log.Info("Starting consumers service...")

	// Separate client id so the API and consumers can share a cluster
	cfg.NATS.ClientID = "tixgate-consumers"

	consumerService, err := consumers.NewConsumerService(cfg)
	if err != nil {
		logger.Fatal("Failed to create consumer service", "error", err)
	}

	if err := consumerService.Start(); err != nil {
		logger.Fatal("Failed to start consumers", "error", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	publisher, err := messaging.NewNATSClient(messaging.Config{
		URL:       cfg.NATS.URL,
		ClusterID: cfg.NATS.ClusterID,
		ClientID:  "tixgate-jobs",
	})
	if err != nil {
		logger.Fatal("Failed to connect job publisher to NATS", "error", err)
	}
	defer publisher.Close()

	ctx, stop := context.WithCancel(context.Background())
	expiration := jobs.NewBookingExpirationJob(repository.NewBookingRepository(db), publisher)
	expiration.Start(ctx)

	log.Info("Consumers service started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down consumers service...")
	expiration.Stop()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := consumerService.Shutdown(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
	}

	log.Info("Consumers service stopped")
}
