package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mvrv/internal/adapters/kafka"
	"mvrv/internal/domain/mvrv"
	"mvrv/internal/metrics"
	"mvrv/pkg/errors"
	"mvrv/pkg/logger"
)

// MessageProducer sends a JSON-encodable event to a topic
type MessageProducer interface {
	Publish(ctx context.Context, topic string, key string, event interface{}) error
}

// Publisher publishes MVRV events to Kafka. A nil *Publisher discards everything,
// so callers never need to check whether publishing is configured.
type Publisher struct {
	producer     MessageProducer
	recordsTopic string
	log          *logger.Logger
	now          func() time.Time
}

// NewPublisher creates a publisher. An empty recordsTopic uses kafka.TopicRecords.
func NewPublisher(producer MessageProducer, recordsTopic string) *Publisher {
	if recordsTopic == "" {
		recordsTopic = kafka.TopicRecords
	}
	return &Publisher{
		producer:     producer,
		recordsTopic: recordsTopic,
		log:          logger.Get().With("component", "event_publisher"),
		now:          time.Now,
	}
}

// PublishRecord publishes a persisted record keyed by timeframe,
// so each timeframe stays ordered on one partition
func (p *Publisher) PublishRecord(ctx context.Context, record *mvrv.Record) error {
	if p == nil || record == nil {
		return nil
	}

	event := NewRecordEvent(record, errors.CycleID(ctx), p.now())
	return p.publish(ctx, p.recordsTopic, string(record.Timeframe), event)
}

// PublishCycle publishes a cycle summary
func (p *Publisher) PublishCycle(ctx context.Context, worker string, duration time.Duration, cycleErr error, fallback bool) error {
	if p == nil {
		return nil
	}

	status := CycleSuccess
	switch {
	case cycleErr != nil:
		status = CycleFailed
	case fallback:
		status = CycleFallback
	}

	event := CycleEvent{
		EventID:    uuid.NewString(),
		Type:       TypeCycleCompleted,
		CycleID:    errors.CycleID(ctx),
		Worker:     worker,
		Status:     status,
		DurationMs: duration.Milliseconds(),
		FinishedAt: p.now().UTC(),
	}
	if cycleErr != nil {
		event.Error = cycleErr.Error()
	}

	return p.publish(ctx, kafka.TopicCycles, worker, event)
}

func (p *Publisher) publish(ctx context.Context, topic, key string, event interface{}) error {
	err := p.producer.Publish(ctx, topic, key, event)
	metrics.RecordKafkaMessage(topic, err)
	if err != nil {
		p.log.Errorw("Failed to publish event", "topic", topic, "error", err)
		return errors.Wrap(err, "send to kafka")
	}

	p.log.Debugw("Event published", "topic", topic, "key", key)
	return nil
}
