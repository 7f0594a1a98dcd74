// Package mock provides a mock shipper implementation for testing.
package mock

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tournevent/shipping/pkg/shipper"
)

// Client is a mock aggregator-style shipper that counts every call.
type Client struct {
	name    string
	variant shipper.Variant

	Rates []shipper.AggregatorRate

	OnQuoteRates      func(ctx context.Context, req *shipper.QuoteRequest) ([]shipper.NativeRate, error)
	OnLookupRate      func(ctx context.Context, req *shipper.RateLookup) (*shipper.NativeRate, error)
	OnPurchaseLabel   func(ctx context.Context, req *shipper.LabelRequest) (*shipper.Transaction, error)
	OnTrack           func(ctx context.Context, req *shipper.TrackRequest) (*shipper.TrackingStatus, error)
	OnRegisterWebhook func(ctx context.Context, req *shipper.WebhookRequest) error

	quoteCalls    atomic.Int64
	lookupCalls   atomic.Int64
	purchaseCalls atomic.Int64
	trackCalls    atomic.Int64
	webhookCalls  atomic.Int64
}

// New creates a new mock shipper returning two colissimo rates by default.
func New(name string) *Client {
	five, two := 5, 2
	return &Client{
		name:    name,
		variant: shipper.VariantAggregator,
		Rates: []shipper.AggregatorRate{
			{
				ObjectID: "rate-standard",
				Amount:   "8.90",
				Currency: "EUR",
				Provider: "Colissimo",
				ServiceLevel: &shipper.ServiceLevel{
					Name: "Colissimo Home", Token: "colissimo_home", Terms: "Delivery in 3-5 days",
				},
				EstimatedDays: &five,
			},
			{
				ObjectID: "rate-express",
				Amount:   "14.50",
				Currency: "EUR",
				Provider: "Chronopost",
				ServiceLevel: &shipper.ServiceLevel{
					Name: "Chrono 13", Token: "chronopost_13",
				},
				EstimatedDays: &two,
			},
		},
	}
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return c.name
}

// Variant returns the configured integration variant.
func (c *Client) Variant() shipper.Variant {
	return c.variant
}

// WithVariant overrides the reported variant.
func (c *Client) WithVariant(v shipper.Variant) *Client {
	c.variant = v
	return c
}

// Calls returns the total number of carrier calls made.
func (c *Client) Calls() int64 {
	return c.quoteCalls.Load() + c.lookupCalls.Load() + c.purchaseCalls.Load() +
		c.trackCalls.Load() + c.webhookCalls.Load()
}

// QuoteCalls returns the number of QuoteRates calls.
func (c *Client) QuoteCalls() int64 { return c.quoteCalls.Load() }

// PurchaseCalls returns the number of PurchaseLabel calls.
func (c *Client) PurchaseCalls() int64 { return c.purchaseCalls.Load() }

// WebhookCalls returns the number of RegisterWebhook calls.
func (c *Client) WebhookCalls() int64 { return c.webhookCalls.Load() }

// QuoteRates returns the configured rates.
func (c *Client) QuoteRates(ctx context.Context, req *shipper.QuoteRequest) ([]shipper.NativeRate, error) {
	c.quoteCalls.Add(1)
	if c.OnQuoteRates != nil {
		return c.OnQuoteRates(ctx, req)
	}

	rates := make([]shipper.NativeRate, len(c.Rates))
	for i := range c.Rates {
		r := c.Rates[i]
		rates[i] = shipper.NativeRate{Gateway: c.name, Variant: c.variant, Aggregated: &r}
	}
	return rates, nil
}

// LookupRate finds a configured rate by id.
func (c *Client) LookupRate(ctx context.Context, req *shipper.RateLookup) (*shipper.NativeRate, error) {
	c.lookupCalls.Add(1)
	if c.OnLookupRate != nil {
		return c.OnLookupRate(ctx, req)
	}

	rateID := req.RateID
	for i := range c.Rates {
		if c.Rates[i].ObjectID == rateID {
			r := c.Rates[i]
			return &shipper.NativeRate{Gateway: c.name, Variant: c.variant, Aggregated: &r}, nil
		}
	}
	return nil, shipper.NewShipperError(c.name, "RATE_NOT_FOUND", "rate "+rateID+" not found").
		WithKind(shipper.ErrRateExpired)
}

// PurchaseLabel returns a mock transaction.
func (c *Client) PurchaseLabel(ctx context.Context, req *shipper.LabelRequest) (*shipper.Transaction, error) {
	c.purchaseCalls.Add(1)
	if c.OnPurchaseLabel != nil {
		return c.OnPurchaseLabel(ctx, req)
	}

	tracking := fmt.Sprintf("TRK%d", time.Now().UnixNano()%1000000000)
	return &shipper.Transaction{
		ObjectID:       "txn-" + uuid.New().String()[:8],
		Status:         "SUCCESS",
		RateID:         req.RateID,
		TrackingNumber: tracking,
		TrackingURL:    "https://tracking.example.com/" + tracking,
		LabelURL:       "https://labels.example.com/" + tracking + ".pdf",
		CreatedAt:      time.Now(),
	}, nil
}

// Track returns a mock tracking status.
func (c *Client) Track(ctx context.Context, req *shipper.TrackRequest) (*shipper.TrackingStatus, error) {
	c.trackCalls.Add(1)
	if c.OnTrack != nil {
		return c.OnTrack(ctx, req)
	}

	return &shipper.TrackingStatus{
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		Status:         "TRANSIT",
	}, nil
}

// RegisterWebhook records the call.
func (c *Client) RegisterWebhook(ctx context.Context, req *shipper.WebhookRequest) error {
	c.webhookCalls.Add(1)
	if c.OnRegisterWebhook != nil {
		return c.OnRegisterWebhook(ctx, req)
	}
	return nil
}

var _ shipper.Shipper = (*Client)(nil)
