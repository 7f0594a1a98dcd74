package shipping

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipping/internal/rating"
	"github.com/tournevent/shipping/pkg/shipper"
)

// Product is the part of a marketplace listing shipping needs.
type Product struct {
	ID               string          `json:"id"`
	SellerID         string          `json:"sellerId"`
	Title            string          `json:"title"`
	SKU              string          `json:"sku,omitempty"`
	ShippingCategory string          `json:"shippingCategory,omitempty"`
	Price            decimal.Decimal `json:"price"`
	Currency         string          `json:"currency"`
}

// ProductCatalog looks products up. Unknown ids return shipper.ErrNotFound.
type ProductCatalog interface {
	Product(ctx context.Context, id string) (*Product, error)
}

// RateAudit records every quote round for debugging. Records are never read
// back as live data.
type RateAudit interface {
	RecordQuote(ctx context.Context, quoteID string, rates []rating.Rate, selected *rating.Rate) error
}

// ReceiptStore remembers processed webhook deliveries for a bounded time.
type ReceiptStore interface {
	IsProcessed(ctx context.Context, key string) (bool, error)
	// MarkProcessed returns false when key was already marked and not expired.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// AccountStore manages carrier credentials.
type AccountStore interface {
	shipper.AccountSource
	ListAccounts(ctx context.Context) ([]shipper.CarrierAccount, error)
	UpsertAccount(ctx context.Context, account *shipper.CarrierAccount) error
}
