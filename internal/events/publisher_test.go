package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/shipping/internal/events"
	"github.com/tournevent/shipping/internal/shipment"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func sampleEvent() shipment.StatusChanged {
	return shipment.StatusChanged{
		ShipmentID:     "s1",
		OrderNumber:    "#1-s1",
		Carrier:        "Colissimo",
		TrackingNumber: "TN1",
		From:           shipment.StatusLabelCreated,
		To:             shipment.StatusInTransit,
		NativeStatus:   "TRANSIT",
		OccurredAt:     time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
}

func TestKafkaPublisher_Publish(t *testing.T) {
	w := &fakeWriter{}
	p := events.NewKafkaPublisherWithWriter(w)

	require.NoError(t, p.PublishStatusChanged(context.Background(), sampleEvent()))

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, "s1", string(msg.Key))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "LABEL_CREATED", decoded["from"])
	assert.Equal(t, "IN_TRANSIT", decoded["to"])
	assert.Equal(t, "TN1", decoded["trackingNumber"])

	headers := map[string]string{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, "application/json", headers["content-type"])
	assert.Equal(t, "shipment.status_changed", headers["event-type"])
}

func TestKafkaPublisher_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	p := events.NewKafkaPublisherWithWriter(w)

	err := p.PublishStatusChanged(context.Background(), sampleEvent())

	assert.EqualError(t, err, "broker down")
}

func TestKafkaPublisher_Close(t *testing.T) {
	w := &fakeWriter{}
	p := events.NewKafkaPublisherWithWriter(w)

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestLogPublisher(t *testing.T) {
	p := events.NewLogPublisher(otelzap.New(zap.NewNop()))

	assert.NoError(t, p.PublishStatusChanged(context.Background(), sampleEvent()))
}
