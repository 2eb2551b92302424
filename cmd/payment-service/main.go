package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/draftea/order-saga/payment-service/config"
	"github.com/draftea/order-saga/shared/server"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

func main() {
	// Load configuration
	cfg, err := config.ReadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Printf("%s: %v", cfg.ServiceName, err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	// Initialize dependencies; an unreachable broker ends the process here
	deps, err := config.BuildDependencies(ctx, cfg)
	if err != nil {
		return errors.Wrap(err, "failed to build dependencies")
	}
	logger := deps.Logger
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Error("error closing dependencies", zap.Error(err))
		}
	}()

	logger.Info("starting service",
		zap.String("env", cfg.Env),
		zap.String("port", cfg.Port),
		zap.String("broker", cfg.Broker.Driver))

	// Start event subscribers
	if err := deps.Subscribe(ctx); err != nil {
		return errors.Wrap(err, "failed to subscribe to saga topics")
	}

	router := server.NewRouter(deps.Telemetry)

	if err := server.Run(ctx, ":"+cfg.Port, router, logger); err != nil {
		return err
	}

	logger.Info("service stopped")
	return nil
}
