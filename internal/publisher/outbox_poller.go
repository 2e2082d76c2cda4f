// Package publisher relays outbox rows written by the store to Kafka.
package publisher

import (
	"context"
	"time"

	"github.com/fjod/go_pharmacy/internal/metrics"
	"github.com/fjod/go_pharmacy/internal/store"
	"github.com/fjod/go_pharmacy/pkg/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type OutboxRepository interface {
	UnpublishedEvents(ctx context.Context, limit int) ([]store.OutboxEvent, error)
	MarkPublished(ctx context.Context, ids []int64) error
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type OutboxPoller struct {
	repo      OutboxRepository
	writer    messageWriter
	tick      time.Duration
	batchSize int
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewKafkaWriter(topic string, brokers ...string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{}, // same order id, same partition
		AllowAutoTopicCreation: true,
		WriteTimeout:           10 * time.Second,
	}
}

func NewOutboxPoller(repo OutboxRepository, w messageWriter, tick time.Duration, batchSize int, log *zap.Logger, m *metrics.Metrics) *OutboxPoller {
	if log == nil {
		log = zap.NewNop()
	}
	return &OutboxPoller{
		repo:      repo,
		writer:    w,
		tick:      tick,
		batchSize: batchSize,
		log:       log,
		metrics:   m,
	}
}

// Run polls until ctx is done, then closes the writer.
func (p *OutboxPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.tick)
	defer ticker.Stop()
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.log.Warn("failed to close kafka writer", zap.Error(err))
		}
	}()

	for {
		select {
		case <-ticker.C:
			p.processUnpublishedEvents(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// processUnpublishedEvents publishes one batch. Events are sent one at a
// time and the batch stops at the first failure, so per-order ordering
// holds across retries.
func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) int {
	events, err := p.repo.UnpublishedEvents(ctx, p.batchSize)
	if err != nil {
		logger.Error(ctx, p.log, "failed to fetch outbox events", zap.Error(err))
		return 0
	}

	published := make([]int64, 0, len(events))
	for _, event := range events {
		if err := p.publish(ctx, event); err != nil {
			p.metrics.OutboxPublished(err, 1)
			logger.Warn(ctx, p.log, "failed to publish outbox event",
				zap.Int64("event_id", event.ID), zap.String("event_type", event.EventType), zap.Error(err))
			break
		}
		published = append(published, event.ID)
	}
	if len(published) == 0 {
		return 0
	}

	if err := p.repo.MarkPublished(ctx, published); err != nil {
		// they will be sent again next tick; consumers see at-least-once delivery
		logger.Error(ctx, p.log, "failed to mark outbox events published", zap.Error(err))
		return 0
	}
	p.metrics.OutboxPublished(nil, len(published))
	return len(published)
}

func (p *OutboxPoller) publish(ctx context.Context, event store.OutboxEvent) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.AggregateID),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	})
}
