package worker

import (
	"context"

	"ewarn/internal/logger"
	"ewarn/internal/models"
)

// LogPublisher writes warning batches to the log. It is used when Kafka is
// disabled.
type LogPublisher struct{}

// Publish logs one envelope
func (LogPublisher) Publish(ctx context.Context, envelope *models.Envelope) error {
	log := logger.WithComponent("log_publisher")

	event := log.Info().
		Str("disease", string(envelope.Batch.Disease)).
		Str("trigger", envelope.Trigger).
		Int("warnings", envelope.Batch.Summary.Total).
		Interface("by_category", envelope.Batch.Summary.ByCategory)
	if ref := envelope.Batch.Reference; ref != nil {
		event = event.Str("reference_period", ref.String())
	}
	event.Msg("warning batch")

	for _, w := range envelope.Batch.Warnings {
		log.Debug().Str("warning_id", w.ID).Msg(w.Message())
	}
	return nil
}

// PublishBatch logs each envelope
func (p LogPublisher) PublishBatch(ctx context.Context, envelopes []*models.Envelope) error {
	for _, e := range envelopes {
		if err := p.Publish(ctx, e); err != nil {
			return err
		}
	}
	return nil
}
