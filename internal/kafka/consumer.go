package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"ewarn/internal/config"
	"ewarn/internal/logger"
	"ewarn/internal/metrics"
	"ewarn/internal/models"
)

// Consumer is a long-running Kafka consumer
type Consumer interface {
	Start(ctx context.Context) error
	Stop() error
}

// RefreshHandler receives one decoded refresh notice
type RefreshHandler func(ctx context.Context, notice models.RefreshNotice) error

// messageReader is the part of kafka.Reader the consumer uses
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// RefreshConsumer reads refresh notices from the refresh topic. Every
// message is committed once handled: a notice the handler rejects is dropped
// and the next scheduled run picks the disease up.
type RefreshConsumer struct {
	reader  messageReader
	handler RefreshHandler
}

// NewRefreshConsumer creates a consumer group reader for the refresh topic
func NewRefreshConsumer(cfg config.KafkaConfig, handler RefreshHandler) *RefreshConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.RefreshTopic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 1e6,
		MaxWait:  time.Second,
	})
	return &RefreshConsumer{reader: reader, handler: handler}
}

// Start consumes until ctx is cancelled
func (c *RefreshConsumer) Start(ctx context.Context) error {
	log := logger.WithComponent("kafka_consumer")
	log.Info().Msg("refresh consumer started")

	for {
		message, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				log.Info().Msg("refresh consumer stopped")
				return nil
			}
			log.Error().Err(err).Msg("failed to fetch message")
			select {
			case <-time.After(time.Second):
				continue
			case <-ctx.Done():
				return nil
			}
		}

		status := c.handle(ctx, message)
		metrics.KafkaConsumedTotal.WithLabelValues(status).Inc()

		if err := c.reader.CommitMessages(ctx, message); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Int64("offset", message.Offset).Msg("failed to commit message")
		}
	}
}

func (c *RefreshConsumer) handle(ctx context.Context, message kafka.Message) string {
	log := logger.WithComponent("kafka_consumer")

	var notice models.RefreshNotice
	if err := json.Unmarshal(message.Value, &notice); err != nil {
		log.Warn().Err(err).Int64("offset", message.Offset).Msg("failed to unmarshal refresh notice")
		return "invalid"
	}

	if d, ok := models.ParseDisease(string(notice.Disease)); ok {
		notice.Disease = d
	} else {
		log.Warn().Str("disease", string(notice.Disease)).Msg("refresh notice for unknown disease")
		return "invalid"
	}

	if err := c.handler(ctx, notice); err != nil {
		log.Warn().
			Err(err).
			Str("disease", string(notice.Disease)).
			Str("reason", notice.Reason).
			Msg("refresh notice dropped")
		return "dropped"
	}
	return "accepted"
}

// Stop closes the reader
func (c *RefreshConsumer) Stop() error {
	return c.reader.Close()
}
