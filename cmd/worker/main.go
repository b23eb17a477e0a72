// Worker consumes session events from Kafka and pushes them to Loki.
// Set KAFKA_BROKERS, SESSION_EVENTS_TOPIC, KAFKA_GROUP_ID and LOKI_URL. Config validation still applies,
// so run with SESSION_STORE=memory when no database is reachable.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"bloggers-platform/backend/internal/config"
	"bloggers-platform/backend/internal/logging"
	"bloggers-platform/backend/internal/telemetry/consumer"
	"bloggers-platform/backend/internal/telemetry/loki"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if err := logging.Setup(cfg.LogLevel, cfg.LogFormat); err != nil {
		log.Fatal().Err(err).Msg("logging")
	}

	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 {
		log.Fatal().Msg("worker: KAFKA_BROKERS is required")
	}
	sink, err := loki.NewClient(cfg.LokiURL)
	if err != nil {
		log.Fatal().Err(err).Msg("worker: LOKI_URL is required")
	}

	reader := consumer.NewKafkaReader(brokers, cfg.SessionEventsTopic, cfg.KafkaGroupID)
	defer reader.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info().
		Str("topic", cfg.SessionEventsTopic).
		Str("group", cfg.KafkaGroupID).
		Str("loki", cfg.LokiURL).
		Msg("worker: consuming")

	n := consumer.Run(ctx, reader, sink)
	log.Info().Int("pushed", n).Msg("worker: stopped")
}
