package shipper

import "context"

// CarrierAccount holds the credentials a gateway uses for one carrier.
type CarrierAccount struct {
	ID         string            `json:"id"`
	Carrier    string            `json:"carrier"`
	AccountID  string            `json:"accountId"`
	Active     bool              `json:"active"`
	Test       bool              `json:"test"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// AccountSource is read by gateways at call time to select credentials.
type AccountSource interface {
	// ActiveAccounts lists active accounts for carrier in the given mode.
	// An empty carrier matches every carrier.
	ActiveAccounts(ctx context.Context, carrier string, test bool) ([]CarrierAccount, error)
}

// PickupQuery searches pickup points around a postal code.
type PickupQuery struct {
	Country     string
	PostalCode  string
	WeightGrams int64
	Radius      int
}

// PickupPoint is a carrier relay location.
type PickupPoint struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Address      string              `json:"address"`
	City         string              `json:"city"`
	PostalCode   string              `json:"postalCode"`
	Country      string              `json:"country"`
	Latitude     string              `json:"latitude,omitempty"`
	Longitude    string              `json:"longitude,omitempty"`
	Distance     string              `json:"distance,omitempty"`
	OpeningHours map[string][]string `json:"openingHours,omitempty"`
}

// PickupPointFinder is implemented by gateways that deliver to relay points.
type PickupPointFinder interface {
	PickupPoints(ctx context.Context, q PickupQuery) ([]PickupPoint, error)
}
