package purchase_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipping/internal/config"
	"github.com/tournevent/shipping/internal/purchase"
	"github.com/tournevent/shipping/internal/rating"
	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/tournevent/shipping/pkg/shipper/mock"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

func newPurchaser(t *testing.T, gateways ...shipper.Shipper) *purchase.Purchaser {
	t.Helper()
	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)

	registry := shipper.NewRegistry()
	for _, gw := range gateways {
		registry.Register(gw)
	}
	timeouts := purchase.Timeouts{Quote: time.Second, Purchase: time.Second}
	return purchase.New(registry, rating.NewSelector(catalog), timeouts, nil, otelzap.New(zap.NewNop()))
}

func testRequest(country string) purchase.Request {
	return purchase.Request{
		From: shipper.Address{Name: "Seller", Street1: "1 rue de Rivoli", City: "Paris", Zip: "75001", Country: "FR"},
		To:   shipper.Address{Name: "Buyer", Street1: "2 rue Neuve", City: "Lyon", Zip: "69001", Country: country},
		Parcel: shipper.Parcel{
			Length: decimal.NewFromInt(30), Width: decimal.NewFromInt(20), Height: decimal.NewFromInt(10),
			Weight: decimal.NewFromInt(1), DistanceUnit: shipper.DimensionCM, MassUnit: shipper.WeightKG,
		},
	}
}

func withDHL(m *mock.Client) *mock.Client {
	one := 1
	m.Rates = append(m.Rates, shipper.AggregatorRate{
		ObjectID:      "rate-dhl",
		Amount:        "3.00",
		Currency:      "EUR",
		Provider:      "DHL Express",
		ServiceLevel:  &shipper.ServiceLevel{Name: "Express Worldwide", Token: "dhl_express_worldwide"},
		EstimatedDays: &one,
	})
	return m
}

func TestQuoteRates_DomesticFilter(t *testing.T) {
	p := newPurchaser(t, withDHL(mock.New("shippo")))
	req := testRequest("FR")

	q, err := p.QuoteRates(context.Background(), &shipper.QuoteRequest{From: req.From, To: req.To, Parcel: req.Parcel})

	require.NoError(t, err)
	require.Len(t, q.Candidates, 2)
	for _, r := range q.Candidates {
		assert.NotEqual(t, "DHL Express", r.Carrier)
		assert.Equal(t, config.ZoneDomestic, r.Zone)
		assert.Equal(t, "shippo", r.Gateway)
	}
	assert.Equal(t, 1, q.Discarded)
}

func TestQuoteRates_RegionalKeepsInternationalCarriers(t *testing.T) {
	p := newPurchaser(t, withDHL(mock.New("shippo")))
	req := testRequest("BE")

	q, err := p.QuoteRates(context.Background(), &shipper.QuoteRequest{From: req.From, To: req.To, Parcel: req.Parcel})

	require.NoError(t, err)
	assert.Len(t, q.Candidates, 3)
}

func TestQuoteRates_PartialFailure(t *testing.T) {
	failing := mock.New("broken")
	failing.OnQuoteRates = func(context.Context, *shipper.QuoteRequest) ([]shipper.NativeRate, error) {
		return nil, shipper.Unavailable("broken", errors.New("connection refused"))
	}
	p := newPurchaser(t, mock.New("shippo"), failing)
	req := testRequest("FR")

	q, err := p.QuoteRates(context.Background(), &shipper.QuoteRequest{From: req.From, To: req.To, Parcel: req.Parcel})

	require.NoError(t, err)
	assert.Len(t, q.Candidates, 2)
	assert.Len(t, q.Errors, 1)
}

func TestQuoteRates_AllUnavailable(t *testing.T) {
	failing := mock.New("shippo")
	failing.OnQuoteRates = func(context.Context, *shipper.QuoteRequest) ([]shipper.NativeRate, error) {
		return nil, shipper.Unavailable("shippo", context.DeadlineExceeded)
	}
	p := newPurchaser(t, failing)
	req := testRequest("FR")

	_, err := p.QuoteRates(context.Background(), &shipper.QuoteRequest{From: req.From, To: req.To, Parcel: req.Parcel})

	assert.ErrorIs(t, err, shipper.ErrCarrierUnavailable)
}

func TestQuoteRates_AllRejected(t *testing.T) {
	failing := mock.New("shippo")
	failing.OnQuoteRates = func(context.Context, *shipper.QuoteRequest) ([]shipper.NativeRate, error) {
		return nil, shipper.Rejected("shippo", "400", "Invalid zip")
	}
	p := newPurchaser(t, failing)
	req := testRequest("FR")

	_, err := p.QuoteRates(context.Background(), &shipper.QuoteRequest{From: req.From, To: req.To, Parcel: req.Parcel})

	assert.ErrorIs(t, err, shipper.ErrCarrierRejected)
	assert.Contains(t, err.Error(), "Invalid zip")
}

func TestQuoteRates_MixedFailuresAreUnavailable(t *testing.T) {
	rejecting := mock.New("shippo")
	rejecting.OnQuoteRates = func(context.Context, *shipper.QuoteRequest) ([]shipper.NativeRate, error) {
		return nil, shipper.Rejected("shippo", "400", "Invalid zip")
	}
	down := mock.New("mondialrelay")
	down.OnQuoteRates = func(context.Context, *shipper.QuoteRequest) ([]shipper.NativeRate, error) {
		return nil, shipper.Unavailable("mondialrelay", context.DeadlineExceeded)
	}
	p := newPurchaser(t, rejecting, down)
	req := testRequest("FR")

	_, err := p.QuoteRates(context.Background(), &shipper.QuoteRequest{From: req.From, To: req.To, Parcel: req.Parcel})

	assert.ErrorIs(t, err, shipper.ErrCarrierUnavailable)
	assert.NotErrorIs(t, err, shipper.ErrCarrierRejected)
	assert.Contains(t, err.Error(), "Invalid zip")
}

func TestPurchase_CheapestByDefault(t *testing.T) {
	m := mock.New("shippo")
	var bought string
	m.OnPurchaseLabel = func(_ context.Context, req *shipper.LabelRequest) (*shipper.Transaction, error) {
		bought = req.RateID
		return &shipper.Transaction{ObjectID: "txn-1", Status: "SUCCESS", TrackingNumber: "TN1", LabelURL: "https://l/1.pdf"}, nil
	}
	p := newPurchaser(t, m)

	res, err := p.Purchase(context.Background(), testRequest("FR"))

	require.NoError(t, err)
	assert.Equal(t, "rate-standard", bought)
	assert.Equal(t, "shippo:rate-standard", res.Rate.Reference)
	assert.Equal(t, "8.9", res.Rate.Amount.String())
	assert.Equal(t, "TN1", res.Transaction.TrackingNumber)
	assert.Equal(t, "shippo", res.Gateway.Name())
}

func TestPurchase_Fastest(t *testing.T) {
	m := mock.New("shippo")
	p := newPurchaser(t, m)
	req := testRequest("FR")
	req.Criterion = rating.Fastest

	res, err := p.Purchase(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "Chronopost", res.Rate.Carrier)
}

func TestPurchase_NoRates(t *testing.T) {
	m := mock.New("shippo")
	m.Rates = nil
	p := newPurchaser(t, m)

	_, err := p.Purchase(context.Background(), testRequest("FR"))

	assert.ErrorIs(t, err, shipper.ErrNoRatesAvailable)
	assert.Equal(t, int64(0), m.PurchaseCalls())
}

func TestPurchase_WithReference(t *testing.T) {
	m := mock.New("shippo")
	p := newPurchaser(t, m)
	req := testRequest("FR")
	req.RateReference = "shippo:rate-express"

	res, err := p.Purchase(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "Chronopost", res.Rate.Carrier)
	assert.Equal(t, int64(0), m.QuoteCalls())
	assert.Equal(t, int64(1), m.PurchaseCalls())
}

func TestPurchase_ReferenceMustServeDestinationZone(t *testing.T) {
	m := withDHL(mock.New("shippo"))
	p := newPurchaser(t, m)
	req := testRequest("FR")
	req.RateReference = "shippo:rate-dhl"

	_, err := p.Purchase(context.Background(), req)

	assert.ErrorIs(t, err, shipper.ErrRateExpired)
	assert.Equal(t, int64(0), m.PurchaseCalls())

	req = testRequest("BE")
	req.RateReference = "shippo:rate-dhl"

	res, err := p.Purchase(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "DHL Express", res.Rate.Carrier)
	assert.Equal(t, config.ZoneRegional, res.Rate.Zone)
}

func TestPurchase_ReferencePassesRouteAndParcel(t *testing.T) {
	m := mock.New("shippo")
	var seen *shipper.RateLookup
	m.OnLookupRate = func(_ context.Context, req *shipper.RateLookup) (*shipper.NativeRate, error) {
		seen = req
		return nil, shipper.NewShipperError("shippo", "RATE_MISMATCH", "quoted for another parcel").
			WithKind(shipper.ErrRateExpired)
	}
	p := newPurchaser(t, m)
	req := testRequest("BE")
	req.RateReference = "shippo:rate-standard"

	_, err := p.Purchase(context.Background(), req)

	assert.ErrorIs(t, err, shipper.ErrRateExpired)
	require.NotNil(t, seen)
	assert.Equal(t, "rate-standard", seen.RateID)
	assert.Equal(t, "BE", seen.To.Country)
	assert.Equal(t, int64(1000), seen.Parcel.WeightGrams())
}

func TestPurchase_UnqualifiedReference(t *testing.T) {
	p := newPurchaser(t, mock.New("first").WithVariant(shipper.VariantAggregator), mock.New("shippo"))
	req := testRequest("FR")
	req.RateReference = "rate-express"

	res, err := p.Purchase(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, "first", res.Gateway.Name())
}

func TestPurchase_ExpiredReference(t *testing.T) {
	m := mock.New("shippo")
	p := newPurchaser(t, m)

	for _, ref := range []string{"shippo:gone", "unknown:rate-express", "gone"} {
		req := testRequest("FR")
		req.RateReference = ref

		_, err := p.Purchase(context.Background(), req)

		assert.ErrorIs(t, err, shipper.ErrRateExpired, ref)
	}
	assert.Equal(t, int64(0), m.PurchaseCalls())
}

func TestPurchase_LabelFailurePropagates(t *testing.T) {
	m := mock.New("shippo")
	m.OnPurchaseLabel = func(context.Context, *shipper.LabelRequest) (*shipper.Transaction, error) {
		return nil, shipper.NewShipperError("shippo", "TRANSACTION_ERROR", "Address not found").
			WithKind(shipper.ErrLabelPurchaseFailed)
	}
	p := newPurchaser(t, m)

	_, err := p.Purchase(context.Background(), testRequest("FR"))

	assert.ErrorIs(t, err, shipper.ErrLabelPurchaseFailed)
	assert.Contains(t, err.Error(), "Address not found")
}

func TestPurchase_TimeoutIsUnavailable(t *testing.T) {
	m := mock.New("shippo")
	m.OnPurchaseLabel = func(ctx context.Context, _ *shipper.LabelRequest) (*shipper.Transaction, error) {
		return nil, context.DeadlineExceeded
	}
	p := newPurchaser(t, m)

	_, err := p.Purchase(context.Background(), testRequest("FR"))

	assert.ErrorIs(t, err, shipper.ErrCarrierUnavailable)
}

func TestRegisterWebhook_FailureIsSwallowed(t *testing.T) {
	m := mock.New("shippo")
	m.OnRegisterWebhook = func(context.Context, *shipper.WebhookRequest) error {
		return errors.New("webhook subsystem down")
	}
	p := newPurchaser(t, m)

	assert.NotPanics(t, func() {
		p.RegisterWebhook(context.Background(), m, "colissimo", "TN1", "order #1")
	})
	assert.Equal(t, int64(1), m.WebhookCalls())
}

func TestRegisterWebhook_SkipsWithoutTrackingNumber(t *testing.T) {
	m := mock.New("shippo")
	p := newPurchaser(t, m)

	p.RegisterWebhook(context.Background(), m, "colissimo", "", "")

	assert.Equal(t, int64(0), m.WebhookCalls())
}
