package mondialrelay

import (
	"context"
	"fmt"
)

// APIClient defines the interface for Mondial Relay web service operations.
// This abstraction allows for mock implementations during testing
// and real SOAP implementations in production.
type APIClient interface {
	// CreateLabel registers an expedition and returns its label (WSI2_CreationEtiquette).
	CreateLabel(ctx context.Context, creds Credentials, req *LabelRequest) (*LabelResponse, error)

	// TraceParcel returns the tracing history of an expedition (WSI2_TracingColisDetaille).
	TraceParcel(ctx context.Context, creds Credentials, req *TraceRequest) (*TraceResponse, error)

	// SearchPickupPoints lists relay points near a postal code (WSI4_PointRelais_Recherche).
	SearchPickupPoints(ctx context.Context, creds Credentials, req *PickupSearchRequest) (*PickupSearchResponse, error)
}

// ============================================================================
// API Request/Response Types (match Mondial Relay SOAP API structure)
// ============================================================================

// Credentials identify the merchant and sign every call.
type Credentials struct {
	Enseigne   string
	PrivateKey string
	Brand      string
}

// Party is a sender or recipient as the web service expects it.
type Party struct {
	Language string
	Name     string
	Company  string
	Street   string
	Street2  string
	Zip      string
	City     string
	Country  string
	Phone    string
	Mobile   string
	Email    string
}

// LabelRequest represents a WSI2_CreationEtiquette call.
type LabelRequest struct {
	CollectionMode    string // ModeCol, e.g. "CCC"
	DeliveryMode      string // ModeLiv, e.g. "24R" or "HOM"
	OrderNumber       string // NDossier
	CustomerNumber    string // NClient
	Sender            Party
	Recipient         Party
	WeightGrams       int64
	ParcelCount       int
	CollectionCountry string
	CollectionPoint   string
	DeliveryCountry   string
	DeliveryPoint     string
	Instructions      string
}

// LabelResponse represents the WSI2_CreationEtiquette result.
type LabelResponse struct {
	Stat          string
	ExpeditionNum string
	LabelURL      string
}

// TraceRequest represents a WSI2_TracingColisDetaille call.
type TraceRequest struct {
	ExpeditionNum string
	Language      string
}

// TraceEvent is one line of the tracing history.
type TraceEvent struct {
	Label        string `json:"label"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	Location     string `json:"location"`
	RelayNum     string `json:"relayNum,omitempty"`
	RelayCountry string `json:"relayCountry,omitempty"`
}

// TraceResponse represents the WSI2_TracingColisDetaille result.
type TraceResponse struct {
	Stat       string       `json:"stat"`
	Label      string       `json:"label"`
	RelayLabel string       `json:"relayLabel,omitempty"`
	RelayNum   string       `json:"relayNum,omitempty"`
	Events     []TraceEvent `json:"events,omitempty"`
}

// PickupSearchRequest represents a WSI4_PointRelais_Recherche call.
type PickupSearchRequest struct {
	Country     string
	PostalCode  string
	City        string
	WeightGrams int64
	Radius      int
}

// RelayPoint is one pickup point of a search result.
type RelayPoint struct {
	Num       string
	Name      string
	Name2     string
	Street    string
	Locality  string
	Zip       string
	City      string
	Country   string
	Latitude  string
	Longitude string
	Distance  string
	Hours     map[string][]string
}

// PickupSearchResponse represents the WSI4_PointRelais_Recherche result.
type PickupSearchResponse struct {
	Stat   string
	Points []RelayPoint
}

// APIError represents an error from the Mondial Relay web service.
type APIError struct {
	Code        string
	Description string
	StatusCode  int
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Description
}

// statError builds the error for a non-zero STAT code.
func statError(stat string) *APIError {
	desc, ok := statMessages[stat]
	if !ok {
		desc = fmt.Sprintf("web service returned STAT %s", stat)
	}
	return &APIError{Code: stat, Description: desc}
}

var statMessages = map[string]string{
	"1":  "invalid merchant code",
	"2":  "merchant number empty or unknown",
	"3":  "invalid merchant account number",
	"5":  "invalid merchant file number",
	"7":  "invalid customer number",
	"8":  "invalid password or security hash",
	"9":  "unknown or ambiguous city",
	"10": "invalid collection mode",
	"11": "invalid collection relay number",
	"12": "invalid collection relay country",
	"13": "invalid delivery mode",
	"14": "invalid delivery relay number",
	"15": "invalid delivery relay country",
	"20": "invalid parcel weight",
	"21": "invalid developed size",
	"22": "invalid parcel size",
	"24": "invalid expedition number",
	"30": "invalid address line",
	"31": "invalid postal code",
	"33": "invalid country",
	"35": "invalid phone number",
	"36": "invalid email address",
	"38": "invalid parcel count",
	"40": "missing parameters",
	"80": "tracing code recorded",
	"81": "tracing data being processed",
	"82": "tracing data delivered",
	"83": "tracing anomaly",
	"94": "unknown parcel",
	"97": "invalid security key",
	"98": "service temporarily unavailable",
	"99": "generic service error",
}
