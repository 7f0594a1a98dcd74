package shipper

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Variant identifies how a carrier integration is reached.
type Variant string

const (
	// VariantAggregator is an HTTP aggregator fronting several carriers.
	VariantAggregator Variant = "aggregator"
	// VariantDirect is a carrier integrated directly over its native protocol.
	VariantDirect Variant = "direct"
)

// WeightUnit represents weight measurement unit.
type WeightUnit string

const (
	WeightKG WeightUnit = "kg"
	WeightG  WeightUnit = "g"
	WeightLB WeightUnit = "lb"
)

// DimensionUnit represents dimension measurement unit.
type DimensionUnit string

const (
	DimensionCM DimensionUnit = "cm"
	DimensionIN DimensionUnit = "in"
)

// LabelFormat represents the format of shipping labels.
type LabelFormat string

const (
	LabelPDF LabelFormat = "PDF"
	LabelPNG LabelFormat = "PNG"
	LabelZPL LabelFormat = "ZPLII"
)

// Address represents a shipping address snapshot.
type Address struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip"`
	Country string `json:"country"` // ISO 3166-1 alpha-2
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Parcel describes the physical package.
type Parcel struct {
	Length       decimal.Decimal `json:"length"`
	Width        decimal.Decimal `json:"width"`
	Height       decimal.Decimal `json:"height"`
	Weight       decimal.Decimal `json:"weight"`
	DistanceUnit DimensionUnit   `json:"distanceUnit"`
	MassUnit     WeightUnit      `json:"massUnit"`
}

var (
	gramsPerKG = decimal.NewFromInt(1000)
	gramsPerLB = decimal.RequireFromString("453.59237")
)

// Validate reports ErrInvalidParcel unless every dimension and the weight are positive.
func (p Parcel) Validate() error {
	for _, v := range []decimal.Decimal{p.Length, p.Width, p.Height, p.Weight} {
		if !v.IsPositive() {
			return ErrInvalidParcel
		}
	}
	return nil
}

// WeightGrams returns the parcel weight in whole grams, rounded up.
func (p Parcel) WeightGrams() int64 {
	var grams decimal.Decimal
	switch p.MassUnit {
	case WeightG:
		grams = p.Weight
	case WeightLB:
		grams = p.Weight.Mul(gramsPerLB)
	default:
		grams = p.Weight.Mul(gramsPerKG)
	}
	return grams.Ceil().IntPart()
}

// QuoteRequest is the input to QuoteRates.
type QuoteRequest struct {
	From   Address
	To     Address
	Parcel Parcel
}

// RateLookup identifies a quoted rate and the shipment it is about to be bought for.
type RateLookup struct {
	RateID string
	To     Address
	Parcel Parcel
}

// ServiceLevel is the aggregator's nested service description.
type ServiceLevel struct {
	Name  string `json:"name"`
	Token string `json:"token"`
	Terms string `json:"terms,omitempty"`
}

// AggregatorRate is a rate as returned by the HTTP aggregator. Older payloads
// carry carrier and service_level instead of provider and servicelevel.
type AggregatorRate struct {
	ObjectID       string        `json:"object_id"`
	Amount         string        `json:"amount"`
	Currency       string        `json:"currency"`
	Provider       string        `json:"provider,omitempty"`
	Carrier        string        `json:"carrier,omitempty"`
	CarrierAccount string        `json:"carrier_account,omitempty"`
	ServiceLevel   *ServiceLevel `json:"servicelevel,omitempty"`
	LegacyService  *ServiceLevel `json:"service_level,omitempty"`
	EstimatedDays  *int          `json:"estimated_days,omitempty"`
	DurationTerms  string        `json:"duration_terms,omitempty"`
	Attributes     []string      `json:"attributes,omitempty"`
}

// DirectRate is a flat rate computed by a directly integrated carrier.
type DirectRate struct {
	Reference     string
	Carrier       string
	ServiceName   string
	ServiceToken  string
	Amount        decimal.Decimal
	Currency      string
	EstimatedDays *int
	Terms         string
	Attributes    []string
}

// NativeRate wraps a carrier-native rate together with the gateway that produced it.
// Exactly one of Aggregated or Direct is set, matching Variant.
type NativeRate struct {
	Gateway    string
	Variant    Variant
	Aggregated *AggregatorRate
	Direct     *DirectRate
}

// LabelRequest is the input to PurchaseLabel.
type LabelRequest struct {
	RateID         string
	From           Address
	To             Address
	Parcel         Parcel
	OrderReference string
	PickupPointID  string
	Format         LabelFormat
	Metadata       string
}

// Transaction is the purchased label artifact.
type Transaction struct {
	ObjectID       string    `json:"objectId"`
	Status         string    `json:"status"`
	RateID         string    `json:"rateId"`
	TrackingNumber string    `json:"trackingNumber"`
	TrackingURL    string    `json:"trackingUrl,omitempty"`
	LabelURL       string    `json:"labelUrl"`
	ETA            string    `json:"eta,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

// TrackRequest identifies a parcel at its carrier.
type TrackRequest struct {
	Carrier         string
	TrackingNumber  string
	CarrierObjectID string
}

// TrackingEvent is a single carrier scan.
type TrackingEvent struct {
	Status      string     `json:"status"`
	Description string     `json:"description,omitempty"`
	Location    string     `json:"location,omitempty"`
	OccurredAt  *time.Time `json:"occurredAt,omitempty"`
}

// TrackingStatus is the carrier-native tracking answer.
type TrackingStatus struct {
	Carrier        string          `json:"carrier"`
	TrackingNumber string          `json:"trackingNumber"`
	Status         string          `json:"status"`
	StatusDetails  string          `json:"statusDetails,omitempty"`
	StatusDate     *time.Time      `json:"statusDate,omitempty"`
	Events         []TrackingEvent `json:"events,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// WebhookRequest asks a carrier to push tracking updates for a parcel.
type WebhookRequest struct {
	Carrier        string
	TrackingNumber string
	Metadata       string
}
