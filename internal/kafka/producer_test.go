package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ewarn/internal/config"
	"ewarn/internal/models"
)

type fakeWriter struct {
	mu       sync.Mutex
	failures int
	calls    int
	written  []kafka.Message
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls++
	if w.failures > 0 {
		w.failures--
		return errors.New("leader not available")
	}
	w.written = append(w.written, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func testProducerConfig() config.ProducerConfig {
	return config.ProducerConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}
}

func dengueEnvelope() *models.Envelope {
	batch := &models.WarningBatch{
		Disease:  models.DiseaseDBD,
		Warnings: []models.Warning{{ID: "w1", Disease: models.DiseaseDBD}},
	}
	return models.NewEnvelope(batch, "node-1").WithTrigger("schedule")
}

func TestProducerPublish_KeyAndHeaders(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer("ewarn.warnings", testProducerConfig(), []messageWriter{w})

	require.NoError(t, p.Publish(context.Background(), dengueEnvelope()))
	require.Len(t, w.written, 1)

	msg := w.written[0]
	assert.Equal(t, "dbd", string(msg.Key))

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "dbd", headers["disease"])
	assert.Equal(t, "node-1", headers["node"])
	assert.Equal(t, "schedule", headers["trigger"])
	assert.Equal(t, "1", headers["warning_count"])

	var decoded models.Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "w1", decoded.Batch.Warnings[0].ID)

	stats := p.Stats()
	assert.Equal(t, uint64(1), stats.MessagesSent)
	assert.Equal(t, uint64(len(msg.Value)), stats.BytesWritten)
}

func TestProducerPublishBatch_Retries(t *testing.T) {
	w := &fakeWriter{failures: 2}
	p := newProducer("t", testProducerConfig(), []messageWriter{w})

	err := p.PublishBatch(context.Background(), []*models.Envelope{dengueEnvelope(), dengueEnvelope()})
	require.NoError(t, err)
	assert.Equal(t, 3, w.calls)
	assert.Len(t, w.written, 2)
}

func TestProducerPublishBatch_GivesUp(t *testing.T) {
	w := &fakeWriter{failures: 10}
	p := newProducer("t", testProducerConfig(), []messageWriter{w})

	err := p.PublishBatch(context.Background(), []*models.Envelope{dengueEnvelope()})
	require.Error(t, err)
	assert.Equal(t, 3, w.calls)
	assert.Equal(t, uint64(1), p.Stats().MessagesFailed)
}

func TestProducerPublishBatch_SkipsEmptyEnvelopes(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer("t", testProducerConfig(), []messageWriter{w})

	require.NoError(t, p.PublishBatch(context.Background(), []*models.Envelope{nil, {}}))
	assert.Equal(t, 0, w.calls)
	assert.Equal(t, uint64(2), p.Stats().MessagesFailed)
}

func TestProducerClose(t *testing.T) {
	w := &fakeWriter{}
	p := newProducer("t", testProducerConfig(), []messageWriter{w})

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, p.Publish(context.Background(), dengueEnvelope()), ErrProducerClosed)
}

func TestNewProducer_Validation(t *testing.T) {
	_, err := NewProducer(nil, "t", config.ProducerConfig{})
	assert.Error(t, err)

	_, err = NewProducer([]string{"localhost:9092"}, "", config.ProducerConfig{})
	assert.Error(t, err)
}

// skipIfNoKafka skips the test if Kafka is not available
func skipIfNoKafka(t *testing.T) {
	if os.Getenv("KAFKA_TEST") != "1" {
		t.Skip("Skipping Kafka integration test. Set KAFKA_TEST=1 to run.")
	}
}

func TestProducer_Integration(t *testing.T) {
	skipIfNoKafka(t)

	cfg := config.Default()
	producer, err := NewProducer(cfg.Kafka.Brokers, cfg.Kafka.WarningsTopic, cfg.Kafka.Producer)
	require.NoError(t, err)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, producer.Publish(ctx, dengueEnvelope()))
	assert.Equal(t, uint64(1), producer.Stats().MessagesSent)
}
