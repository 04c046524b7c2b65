package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/config"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/db"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/events"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := logging.New("prod", "info")
		bootLog.Fatal().Err(err).Msg("config load error")
	}

	logger := logging.New(cfg.Env, cfg.LogLevel).With().Str("service", "event-relay").Logger()

	if len(events.SplitBrokers(cfg.KafkaBrokers)) == 0 {
		logger.Fatal().Msg("KAFKA_BROKERS is required for the event relay")
	}

	logger.Info().
		Str("env", cfg.Env).
		Str("topic", cfg.KafkaTopic).
		Dur("interval", cfg.RelayInterval).
		Int("batch_size", cfg.RelayBatchSize).
		Msg("event-relay starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, db.WithApplicationName("event-relay"), db.WithMaxConns(4))
	cancelPg()
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pgPool.Close()
	logger.Info().Msg("connected to Postgres")

	writer := events.NewKafkaWriter(cfg.KafkaBrokers)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error().Err(err).Msg("error closing kafka writer")
		}
	}()

	relay := events.NewRelay(events.NewPgStore(pgPool), writer, relayConfig(cfg), logger)

	relay.Run(rootCtx)
}

func relayConfig(cfg config.Config) events.RelayConfig {
	return events.RelayConfig{
		Topic:     cfg.KafkaTopic,
		BatchSize: cfg.RelayBatchSize,
		Interval:  cfg.RelayInterval,
	}
}
