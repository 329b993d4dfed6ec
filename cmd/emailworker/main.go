// Email Worker - polls the site-request inbox and republishes parsed
// inquiries onto the broker (component J).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kilang-desa-murni/crm/internal/brokerconsumer"
	"github.com/kilang-desa-murni/crm/internal/emailworker"
	"github.com/kilang-desa-murni/crm/pkg/config"
	"github.com/kilang-desa-murni/crm/pkg/logger"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Caller: cfg.Logger.Caller,
	})
	log = log.With().Service("emailworker").Logger()
	logger.SetGlobal(log)

	log.Info().Str("version", Version).Str("build_time", BuildTime).Msg("Starting email worker")

	publisher, err := brokerconsumer.NewPublisher(&cfg.RabbitMQ)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to broker")
	}
	defer publisher.Close()

	worker := emailworker.NewWorker(cfg.IMAP, publisher, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down email worker...")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("Email worker stopped unexpectedly")
		}
	}
	log.Info().Msg("Email worker stopped")
}
