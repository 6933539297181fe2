// Package consumer turns corpus.updated events from Kafka into index
// rebuild requests.
package consumer

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/internal/ingestion"
	apperrors "github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/kafka"
)

// Trigger schedules a rebuild; *indexer.Rebuilder satisfies it.
type Trigger interface {
	Request(ctx context.Context, trigger string) error
}

// IndexConsumer wraps a Kafka consumer to drive index rebuilds.
type IndexConsumer struct {
	consumer *kafka.Consumer
	logger   *slog.Logger
}

func New(kafkaConsumer *kafka.Consumer) *IndexConsumer {
	return &IndexConsumer{
		consumer: kafkaConsumer,
		logger:   slog.Default().With("component", "index-consumer"),
	}
}

// Start blocks until ctx is cancelled.
func (ic *IndexConsumer) Start(ctx context.Context) error {
	ic.logger.Info("index consumer starting")
	return ic.consumer.Start(ctx)
}

// HandleCorpusUpdated returns a MessageHandler that requests a rebuild for
// every corpus.updated event. Undecodable messages and corpora the builder
// rejects are logged and acknowledged, since redelivery cannot fix them;
// source outages are returned so the consumer retries.
func HandleCorpusUpdated(trigger Trigger) kafka.MessageHandler {
	logger := slog.Default().With("component", "index-consumer")
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[ingestion.CorpusUpdatedEvent](value)
		if err != nil {
			logger.Error("failed to decode corpus update",
				"error", err,
				"key", string(key),
			)
			return nil
		}
		logger.Debug("corpus update received",
			"reason", event.Reason,
			"passages", len(event.PassageIDs),
			"updated_at", event.UpdatedAt,
		)

		reason := "kafka"
		if event.Reason != "" {
			reason += ":" + event.Reason
		}
		err = trigger.Request(ctx, reason)
		if errors.Is(err, apperrors.ErrInvalidCorpus) {
			logger.Error("corpus rejected, previous index keeps serving", "error", err)
			return nil
		}
		return err
	}
}
