// Package consumer drains session events from Kafka into a log sink such as Loki.
package consumer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

const pushTimeout = 10 * time.Second

// MessageReader is the subset of *kafka.Reader the consumer uses.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Sink receives one raw session event. *loki.Client implements it.
type Sink interface {
	PushEventJSON(ctx context.Context, rawJSON []byte) error
}

// NewKafkaReader returns a group reader for the session events topic.
func NewKafkaReader(brokers []string, topic, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		MaxWait:        time.Second,
		CommitInterval: time.Second,
	})
}

// Run reads messages until ctx is done and pushes each to sink. Push failures are logged and the
// message is skipped; delivery is best-effort. Returns the number of messages pushed.
func Run(ctx context.Context, r MessageReader, sink Sink) int {
	pushed := 0
	for {
		msg, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return pushed
			}
			log.Warn().Err(err).Msg("consumer: kafka read failed")
			continue
		}

		pushCtx, cancel := context.WithTimeout(ctx, pushTimeout)
		if err := sink.PushEventJSON(pushCtx, msg.Value); err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("consumer: push failed")
		} else {
			pushed++
		}
		cancel()
	}
}
