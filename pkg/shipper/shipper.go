// Package shipper provides an abstraction layer for shipping carriers.
package shipper

import (
	"context"
)

// Shipper defines the interface that all shipping carriers must implement.
type Shipper interface {
	// Name returns the gateway identifier (e.g., "shippo", "mondialrelay").
	Name() string

	// Variant reports how the carrier is integrated.
	Variant() Variant

	// QuoteRates returns carrier-native rates for a route and parcel.
	QuoteRates(ctx context.Context, req *QuoteRequest) ([]NativeRate, error)

	// LookupRate resolves a previously quoted rate id, failing with ErrRateExpired
	// when the carrier no longer recognizes it or it was quoted for another route
	// or parcel.
	LookupRate(ctx context.Context, req *RateLookup) (*NativeRate, error)

	// PurchaseLabel buys a label for a quoted rate.
	PurchaseLabel(ctx context.Context, req *LabelRequest) (*Transaction, error)

	// Track returns the current native tracking status of a parcel.
	Track(ctx context.Context, req *TrackRequest) (*TrackingStatus, error)

	// RegisterWebhook subscribes to tracking pushes for a parcel.
	RegisterWebhook(ctx context.Context, req *WebhookRequest) error
}
