package shipper_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/tournevent/shipping/pkg/shipper/mock"
)

func testQuoteRequest() *shipper.QuoteRequest {
	return &shipper.QuoteRequest{
		From: shipper.Address{Name: "Sender", Street1: "1 rue de Rivoli", City: "Paris", Zip: "75001", Country: "FR"},
		To:   shipper.Address{Name: "Receiver", Street1: "2 quai Perrache", City: "Lyon", Zip: "69002", Country: "FR"},
		Parcel: shipper.Parcel{
			Length:       decimal.NewFromInt(30),
			Width:        decimal.NewFromInt(20),
			Height:       decimal.NewFromInt(10),
			Weight:       decimal.RequireFromString("0.8"),
			DistanceUnit: shipper.DimensionCM,
			MassUnit:     shipper.WeightKG,
		},
	}
}

func TestRegistry_Register(t *testing.T) {
	registry := shipper.NewRegistry()

	registry.Register(mock.New("test-shipper"))

	got, err := registry.Get("test-shipper")
	require.NoError(t, err, "shipper should be registered")
	assert.Equal(t, "test-shipper", got.Name())
}

func TestRegistry_Register_Override(t *testing.T) {
	registry := shipper.NewRegistry()

	registry.Register(mock.New("test-shipper"))
	assert.Equal(t, 1, registry.Count())

	registry.Register(mock.New("test-shipper"))
	assert.Equal(t, 1, registry.Count())
	assert.Equal(t, []string{"test-shipper"}, registry.Names())
}

func TestRegistry_Get_NotFound(t *testing.T) {
	registry := shipper.NewRegistry()

	_, err := registry.Get("nonexistent")
	assert.Error(t, err, "should return error for unregistered shipper")
	assert.True(t, errors.Is(err, shipper.ErrCarrierNotFound))
}

func TestRegistry_Names_RegistrationOrder(t *testing.T) {
	registry := shipper.NewRegistry()

	registry.Register(mock.New("shippo"))
	registry.Register(mock.New("mondialrelay"))
	registry.Register(mock.New("alpha"))

	assert.Equal(t, []string{"shippo", "mondialrelay", "alpha"}, registry.Names())
	assert.Len(t, registry.All(), 3)
}

func TestRegistry_QuoteAll(t *testing.T) {
	registry := shipper.NewRegistry()
	registry.Register(mock.New("shipper-a"))
	registry.Register(mock.New("shipper-b"))

	rates, errs := registry.QuoteAll(context.Background(), testQuoteRequest(), time.Second)

	assert.Empty(t, errs)
	require.Len(t, rates, 4)
	assert.Equal(t, "shipper-a", rates[0].Gateway)
	assert.Equal(t, "shipper-a", rates[1].Gateway)
	assert.Equal(t, "shipper-b", rates[2].Gateway)
}

func TestRegistry_QuoteAll_PartialFailure(t *testing.T) {
	registry := shipper.NewRegistry()

	failing := mock.New("failing")
	failing.OnQuoteRates = func(ctx context.Context, req *shipper.QuoteRequest) ([]shipper.NativeRate, error) {
		return nil, shipper.Rejected("failing", "400", "address not serviceable")
	}
	registry.Register(failing)
	registry.Register(mock.New("healthy"))

	rates, errs := registry.QuoteAll(context.Background(), testQuoteRequest(), time.Second)

	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], shipper.ErrCarrierRejected))
	assert.Contains(t, errs[0].Error(), "address not serviceable")
	assert.Len(t, rates, 2)
}

func TestRegistry_QuoteAll_TimeoutIsUnavailable(t *testing.T) {
	registry := shipper.NewRegistry()

	slow := mock.New("slow")
	slow.OnQuoteRates = func(ctx context.Context, req *shipper.QuoteRequest) ([]shipper.NativeRate, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	registry.Register(slow)

	rates, errs := registry.QuoteAll(context.Background(), testQuoteRequest(), 20*time.Millisecond)

	assert.Empty(t, rates)
	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], shipper.ErrCarrierUnavailable))
}

func TestRegistry_QuoteAll_Empty(t *testing.T) {
	registry := shipper.NewRegistry()

	_, errs := registry.QuoteAll(context.Background(), testQuoteRequest(), time.Second)

	require.Len(t, errs, 1)
	assert.True(t, errors.Is(errs[0], shipper.ErrCarrierNotFound))
}

func TestParcel_Validate(t *testing.T) {
	p := testQuoteRequest().Parcel
	assert.NoError(t, p.Validate())

	p.Height = decimal.Zero
	assert.ErrorIs(t, p.Validate(), shipper.ErrInvalidParcel)
}

func TestParcel_WeightGrams(t *testing.T) {
	tests := []struct {
		weight string
		unit   shipper.WeightUnit
		want   int64
	}{
		{"0.8", shipper.WeightKG, 800},
		{"1.0004", shipper.WeightKG, 1001},
		{"250", shipper.WeightG, 250},
		{"1", shipper.WeightLB, 454},
	}

	for _, tt := range tests {
		p := shipper.Parcel{Weight: decimal.RequireFromString(tt.weight), MassUnit: tt.unit}
		assert.Equal(t, tt.want, p.WeightGrams(), "%s %s", tt.weight, tt.unit)
	}
}
