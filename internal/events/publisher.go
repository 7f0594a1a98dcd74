// Package events publishes shipment status changes.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/shipping/internal/shipment"
)

// MessageWriter is the subset of *kafka.Writer the publisher uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes StatusChanged events to a topic, keyed by shipment id
// so that one shipment's events stay ordered within a partition.
type KafkaPublisher struct {
	w MessageWriter
}

// NewKafkaPublisher creates a synchronous, fully acknowledged writer.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return NewKafkaPublisherWithWriter(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
		WriteTimeout: 10 * time.Second,
	})
}

// NewKafkaPublisherWithWriter wraps an existing writer.
func NewKafkaPublisherWithWriter(w MessageWriter) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.w.Close()
}

// PublishStatusChanged writes one event.
func (p *KafkaPublisher) PublishStatusChanged(ctx context.Context, e shipment.StatusChanged) error {
	b, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encoding status event: %w", err)
	}

	return p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(e.ShipmentID),
		Value: b,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "event-type", Value: []byte("shipment.status_changed")},
		},
	})
}

// LogPublisher logs events instead of sending them anywhere.
type LogPublisher struct {
	logger *otelzap.Logger
}

// NewLogPublisher creates a publisher for deployments without a broker.
func NewLogPublisher(logger *otelzap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// PublishStatusChanged logs the event.
func (p *LogPublisher) PublishStatusChanged(ctx context.Context, e shipment.StatusChanged) error {
	p.logger.Ctx(ctx).Info("Shipment status event",
		zap.String("shipment_id", e.ShipmentID),
		zap.String("order_number", e.OrderNumber),
		zap.String("from", string(e.From)),
		zap.String("to", string(e.To)),
	)
	return nil
}

var (
	_ shipment.Publisher = (*KafkaPublisher)(nil)
	_ shipment.Publisher = (*LogPublisher)(nil)
)
