package shipment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tournevent/shipping/internal/telemetry"
	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

const defaultMaxAttempts = 5

// MetaLastStatusAt is the metadata key holding the carrier date of the latest
// tracking status, RFC3339 in UTC.
const MetaLastStatusAt = "lastStatusAt"

// Manager owns shipment creation and every status transition.
type Manager struct {
	store       Store
	publisher   Publisher
	metrics     *telemetry.Metrics
	clock       clockz.Clock
	logger      *otelzap.Logger
	maxAttempts int
}

// NewManager creates a lifecycle manager. publisher and metrics may be nil.
func NewManager(store Store, publisher Publisher, metrics *telemetry.Metrics, logger *otelzap.Logger) *Manager {
	return &Manager{
		store:       store,
		publisher:   publisher,
		metrics:     metrics,
		clock:       clockz.RealClock,
		logger:      logger,
		maxAttempts: defaultMaxAttempts,
	}
}

// WithClock replaces the clock used for timestamps.
func (m *Manager) WithClock(clock clockz.Clock) *Manager {
	m.clock = clock
	return m
}

// Clock returns the manager's clock.
func (m *Manager) Clock() clockz.Clock {
	return m.clock
}

// Create persists a freshly purchased shipment together with its parcel.
// The shipment starts in LABEL_CREATED unless a status is already set.
func (m *Manager) Create(ctx context.Context, p *Parcel, s *Shipment) error {
	now := m.clock.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if s.Status == "" {
		s.Status = StatusLabelCreated
	}
	s.ParcelID = p.ID
	s.CreatedAt = now
	s.UpdatedAt = now
	s.Version = 1

	if err := m.store.CreateWithParcel(ctx, p, s); err != nil {
		return fmt.Errorf("persisting shipment: %w", err)
	}

	m.logger.Ctx(ctx).Info("Shipment created",
		zap.String("shipment_id", s.ID),
		zap.String("order_number", s.OrderNumber),
		zap.String("carrier", s.Carrier),
		zap.String("tracking_number", s.TrackingNumber),
	)
	return nil
}

// ApplyStatusUpdate records a carrier-native status on a shipment and performs
// the transition it maps to, if any. It is idempotent: terminal states never
// change, lower-ranked targets are ignored, and deliveredAt is set only on the
// first transition into DELIVERED. Unknown native statuses only update the raw
// tracking status. A carrier status date, when given, is kept under
// MetaLastStatusAt if it is newer than the stored one. The boolean result
// reports whether the status changed.
func (m *Manager) ApplyStatusUpdate(ctx context.Context, shipmentID string, family shipper.Variant, native string, at *time.Time) (*Shipment, bool, error) {
	for attempt := 1; ; attempt++ {
		s, err := m.store.Get(ctx, shipmentID)
		if err != nil {
			return nil, false, err
		}

		prev := s.Status
		transitioned, dirty := m.apply(s, family, native, at)
		if !dirty {
			return s, false, nil
		}

		err = m.store.UpdateStatus(ctx, s)
		if errors.Is(err, ErrVersionConflict) && attempt < m.maxAttempts {
			m.logger.Ctx(ctx).Debug("Shipment changed concurrently, retrying status update",
				zap.String("shipment_id", shipmentID),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return nil, false, fmt.Errorf("updating shipment status: %w", err)
		}

		if transitioned {
			m.onTransition(ctx, s, prev, native)
		}
		return s, transitioned, nil
	}
}

// apply mutates s in memory. dirty reports whether anything must be written.
func (m *Manager) apply(s *Shipment, family shipper.Variant, native string, at *time.Time) (transitioned, dirty bool) {
	if native != "" && s.TrackingStatus != native {
		s.TrackingStatus = native
		dirty = true
	}
	if at != nil && newerStatusDate(s.Metadata, *at) {
		meta := make(map[string]interface{}, len(s.Metadata)+1)
		for k, v := range s.Metadata {
			meta[k] = v
		}
		meta[MetaLastStatusAt] = at.UTC().Format(time.RFC3339)
		s.Metadata = meta
		dirty = true
	}

	target, ok := MapNativeStatus(family, native)
	if ok && !s.Status.Terminal() && target.Rank() > s.Status.Rank() {
		s.Status = target
		if target == StatusDelivered && s.DeliveredAt == nil {
			now := m.clock.Now().UTC()
			s.DeliveredAt = &now
		}
		transitioned = true
		dirty = true
	}

	if dirty {
		s.UpdatedAt = m.clock.Now().UTC()
	}
	return transitioned, dirty
}

func newerStatusDate(meta map[string]interface{}, at time.Time) bool {
	raw, _ := meta[MetaLastStatusAt].(string)
	if raw == "" {
		return true
	}
	prev, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return true
	}
	return at.Truncate(time.Second).After(prev)
}

func (m *Manager) onTransition(ctx context.Context, s *Shipment, from Status, native string) {
	m.metrics.RecordTransition(string(from), string(s.Status))

	m.logger.Ctx(ctx).Info("Shipment status changed",
		zap.String("shipment_id", s.ID),
		zap.String("from", string(from)),
		zap.String("to", string(s.Status)),
		zap.String("native_status", native),
	)

	if m.publisher == nil {
		return
	}
	event := StatusChanged{
		ShipmentID:     s.ID,
		OrderNumber:    s.OrderNumber,
		Carrier:        s.Carrier,
		TrackingNumber: s.TrackingNumber,
		From:           from,
		To:             s.Status,
		NativeStatus:   native,
		OccurredAt:     s.UpdatedAt,
	}
	if err := m.publisher.PublishStatusChanged(ctx, event); err != nil {
		m.logger.Ctx(ctx).Warn("Failed to publish status change",
			zap.String("shipment_id", s.ID),
			zap.Error(err),
		)
	}
}
