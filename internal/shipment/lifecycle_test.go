package shipment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipping/internal/shipment"
	"github.com/tournevent/shipping/internal/telemetry"
	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

type memStore struct {
	mu        sync.Mutex
	shipments map[string]shipment.Shipment
	parcels   map[string]shipment.Parcel
	conflicts int
	updates   int
}

func newMemStore() *memStore {
	return &memStore{
		shipments: make(map[string]shipment.Shipment),
		parcels:   make(map[string]shipment.Parcel),
	}
}

func (m *memStore) CreateWithParcel(_ context.Context, p *shipment.Parcel, s *shipment.Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.parcels[p.ID] = *p
	m.shipments[s.ID] = *s
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (*shipment.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.shipments[id]
	if !ok {
		return nil, shipper.ErrNotFound
	}
	return &s, nil
}

func (m *memStore) GetMany(ctx context.Context, ids []string) ([]*shipment.Shipment, error) {
	var out []*shipment.Shipment
	for _, id := range ids {
		s, err := m.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (m *memStore) FindByTrackingNumber(_ context.Context, tn string) (*shipment.Shipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.shipments {
		if s.TrackingNumber == tn {
			return &s, nil
		}
	}
	return nil, shipper.ErrNotFound
}

func (m *memStore) GetParcel(_ context.Context, id string) (*shipment.Parcel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parcels[id]
	if !ok {
		return nil, shipper.ErrNotFound
	}
	return &p, nil
}

func (m *memStore) UpdateStatus(_ context.Context, s *shipment.Shipment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflicts > 0 {
		m.conflicts--
		return shipment.ErrVersionConflict
	}
	stored := m.shipments[s.ID]
	if stored.Version != s.Version {
		return shipment.ErrVersionConflict
	}
	s.Version++
	m.shipments[s.ID] = *s
	m.updates++
	return nil
}

type recordingPublisher struct {
	events []shipment.StatusChanged
	err    error
}

func (p *recordingPublisher) PublishStatusChanged(_ context.Context, e shipment.StatusChanged) error {
	p.events = append(p.events, e)
	return p.err
}

type fixture struct {
	store     *memStore
	publisher *recordingPublisher
	metrics   *telemetry.Metrics
	clock     *clockz.FakeClock
	manager   *shipment.Manager
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:     newMemStore(),
		publisher: &recordingPublisher{},
		metrics:   telemetry.NewMetrics(prometheus.NewRegistry()),
		clock:     clockz.NewFakeClock(),
	}
	f.manager = shipment.NewManager(f.store, f.publisher, f.metrics, otelzap.New(zap.NewNop())).WithClock(f.clock)
	return f
}

func (f *fixture) create(t *testing.T, id string) *shipment.Shipment {
	t.Helper()
	s := &shipment.Shipment{
		ID:             id,
		OrderNumber:    "#1-" + id,
		Gateway:        "shippo",
		Carrier:        "colissimo",
		TrackingNumber: "TN-" + id,
	}
	require.NoError(t, f.manager.Create(context.Background(), &shipment.Parcel{ID: "parcel-" + id}, s))
	return s
}

func TestCreate_InitialState(t *testing.T) {
	f := newFixture(t)

	s := f.create(t, "s1")

	assert.Equal(t, shipment.StatusLabelCreated, s.Status)
	assert.Equal(t, 1, s.Version)
	assert.Equal(t, "parcel-s1", s.ParcelID)
	assert.Equal(t, f.clock.Now().UTC(), s.CreatedAt)
	assert.Nil(t, s.DeliveredAt)

	_, err := f.store.GetParcel(context.Background(), "parcel-s1")
	assert.NoError(t, err)
}

func TestApplyStatusUpdate_Transition(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")

	s, changed, err := f.manager.ApplyStatusUpdate(context.Background(), "s1", shipper.VariantAggregator, "TRANSIT", nil)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, shipment.StatusInTransit, s.Status)
	assert.Equal(t, "TRANSIT", s.TrackingStatus)
	assert.Equal(t, 2, s.Version)
	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, shipment.StatusLabelCreated, f.publisher.events[0].From)
	assert.Equal(t, shipment.StatusInTransit, f.publisher.events[0].To)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.StatusTransitions.WithLabelValues("LABEL_CREATED", "IN_TRANSIT")))
}

func TestApplyStatusUpdate_DeliveredIdempotent(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")
	ctx := context.Background()

	first, changed, err := f.manager.ApplyStatusUpdate(ctx, "s1", shipper.VariantAggregator, "DELIVERED", nil)
	require.NoError(t, err)
	require.True(t, changed)
	require.NotNil(t, first.DeliveredAt)
	deliveredAt := *first.DeliveredAt

	f.clock.Advance(2 * time.Hour)

	second, changed, err := f.manager.ApplyStatusUpdate(ctx, "s1", shipper.VariantAggregator, "delivered", nil)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, shipment.StatusDelivered, second.Status)
	assert.Equal(t, deliveredAt, *second.DeliveredAt)
	assert.Len(t, f.publisher.events, 1)
}

func TestApplyStatusUpdate_NoRegression(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")
	ctx := context.Background()

	_, _, err := f.manager.ApplyStatusUpdate(ctx, "s1", shipper.VariantAggregator, "TRANSIT", nil)
	require.NoError(t, err)

	s, changed, err := f.manager.ApplyStatusUpdate(ctx, "s1", shipper.VariantAggregator, "PRE_TRANSIT", nil)

	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, shipment.StatusInTransit, s.Status)
	assert.Equal(t, "PRE_TRANSIT", s.TrackingStatus)
}

func TestApplyStatusUpdate_TerminalStates(t *testing.T) {
	for _, native := range []string{"DELIVERED", "RETURNED", "FAILURE"} {
		t.Run(native, func(t *testing.T) {
			f := newFixture(t)
			f.create(t, "s1")
			ctx := context.Background()

			_, _, err := f.manager.ApplyStatusUpdate(ctx, "s1", shipper.VariantAggregator, native, nil)
			require.NoError(t, err)

			for _, next := range []string{"TRANSIT", "DELIVERED", "RETURNED", "FAILURE"} {
				_, changed, err := f.manager.ApplyStatusUpdate(ctx, "s1", shipper.VariantAggregator, next, nil)
				require.NoError(t, err)
				assert.False(t, changed, "%s -> %s", native, next)
			}
		})
	}
}

func TestApplyStatusUpdate_UnknownNative(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")

	s, changed, err := f.manager.ApplyStatusUpdate(context.Background(), "s1", shipper.VariantAggregator, "LOST_IN_SPACE", nil)

	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, shipment.StatusLabelCreated, s.Status)
	assert.Equal(t, "LOST_IN_SPACE", s.TrackingStatus)
	assert.Empty(t, f.publisher.events)
}

func TestApplyStatusUpdate_NothingToWrite(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")
	ctx := context.Background()

	_, _, err := f.manager.ApplyStatusUpdate(ctx, "s1", shipper.VariantAggregator, "TRANSIT", nil)
	require.NoError(t, err)
	updates := f.store.updates

	_, changed, err := f.manager.ApplyStatusUpdate(ctx, "s1", shipper.VariantAggregator, "TRANSIT", nil)

	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, updates, f.store.updates)
}

func TestApplyStatusUpdate_KeepsLatestCarrierDate(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")
	ctx := context.Background()
	scanned := time.Date(2026, 3, 14, 9, 15, 0, 0, time.FixedZone("CET", 3600))
	earlier := scanned.Add(-time.Hour)

	s, changed, err := f.manager.ApplyStatusUpdate(ctx, "s1", shipper.VariantAggregator, "TRANSIT", &scanned)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "2026-03-14T08:15:00Z", s.Metadata[shipment.MetaLastStatusAt])

	s, changed, err = f.manager.ApplyStatusUpdate(ctx, "s1", shipper.VariantAggregator, "TRANSIT", &earlier)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, "2026-03-14T08:15:00Z", s.Metadata[shipment.MetaLastStatusAt])
	assert.Equal(t, 2, s.Version)
}

func TestApplyStatusUpdate_DirectFamily(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")

	s, changed, err := f.manager.ApplyStatusUpdate(context.Background(), "s1", shipper.VariantDirect, "82", nil)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, shipment.StatusDelivered, s.Status)
	assert.NotNil(t, s.DeliveredAt)
}

func TestApplyStatusUpdate_RetriesOnConflict(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")
	f.store.conflicts = 2

	s, changed, err := f.manager.ApplyStatusUpdate(context.Background(), "s1", shipper.VariantAggregator, "TRANSIT", nil)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, shipment.StatusInTransit, s.Status)
}

func TestApplyStatusUpdate_GivesUpAfterRepeatedConflicts(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")
	f.store.conflicts = 100

	_, _, err := f.manager.ApplyStatusUpdate(context.Background(), "s1", shipper.VariantAggregator, "TRANSIT", nil)

	assert.ErrorIs(t, err, shipment.ErrVersionConflict)
}

func TestApplyStatusUpdate_PublishFailureIsNotFatal(t *testing.T) {
	f := newFixture(t)
	f.create(t, "s1")
	f.publisher.err = errors.New("broker down")

	s, changed, err := f.manager.ApplyStatusUpdate(context.Background(), "s1", shipper.VariantAggregator, "TRANSIT", nil)

	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, shipment.StatusInTransit, s.Status)
}

func TestApplyStatusUpdate_UnknownShipment(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.manager.ApplyStatusUpdate(context.Background(), "missing", shipper.VariantAggregator, "TRANSIT", nil)

	assert.ErrorIs(t, err, shipper.ErrNotFound)
}

func TestMapNativeStatus(t *testing.T) {
	tests := []struct {
		family shipper.Variant
		native string
		want   shipment.Status
		ok     bool
	}{
		{shipper.VariantAggregator, "UNKNOWN", shipment.StatusPending, true},
		{shipper.VariantAggregator, "pre_transit", shipment.StatusLabelCreated, true},
		{shipper.VariantAggregator, " TRANSIT ", shipment.StatusInTransit, true},
		{shipper.VariantAggregator, "FAILURE", shipment.StatusFailed, true},
		{shipper.VariantAggregator, "82", "", false},
		{shipper.VariantDirect, "80", shipment.StatusLabelCreated, true},
		{shipper.VariantDirect, "83", shipment.StatusFailed, true},
		{shipper.VariantDirect, "DELIVERED", "", false},
		{shipper.Variant("other"), "DELIVERED", "", false},
	}

	for _, tt := range tests {
		got, ok := shipment.MapNativeStatus(tt.family, tt.native)
		assert.Equal(t, tt.ok, ok, "%s/%s", tt.family, tt.native)
		assert.Equal(t, tt.want, got, "%s/%s", tt.family, tt.native)
	}
}

func TestStatus_Rank(t *testing.T) {
	assert.Less(t, shipment.StatusPending.Rank(), shipment.StatusLabelCreated.Rank())
	assert.Less(t, shipment.StatusLabelCreated.Rank(), shipment.StatusInTransit.Rank())
	assert.Less(t, shipment.StatusInTransit.Rank(), shipment.StatusDelivered.Rank())
	assert.Equal(t, -1, shipment.Status("BOGUS").Rank())
	assert.True(t, shipment.StatusReturned.Terminal())
	assert.False(t, shipment.StatusInTransit.Terminal())
}
