// Broker Consumer - drains the site-request queue and delivers each
// message to crmsync's ingest endpoint, retrying through a delay queue on
// failure (component K).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kilang-desa-murni/crm/internal/brokerconsumer"
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
	log = log.With().Service("brokerconsumer").Logger()
	logger.SetGlobal(log)

	log.Info().Str("version", Version).Str("build_time", BuildTime).Msg("Starting broker consumer")

	consumer, err := brokerconsumer.NewConsumer(&cfg.RabbitMQ, cfg.RabbitMQ.IngestURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to broker")
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutting down broker consumer...")
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.Error().Err(err).Msg("Broker consumer stopped unexpectedly")
		}
	}
	log.Info().Msg("Broker consumer stopped")
}
