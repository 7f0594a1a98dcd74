package shippo

import (
	"context"
	"strings"

	"github.com/tournevent/shipping/pkg/shipper"
)

// APIClient defines the interface for Shippo API operations.
// This abstraction allows for mock implementations during testing
// and real HTTP implementations in production.
type APIClient interface {
	// CreateShipment creates a shipment synchronously and returns its rates.
	CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error)

	// GetRate fetches a previously quoted rate by object id.
	GetRate(ctx context.Context, rateID string) (*shipper.AggregatorRate, error)

	// CreateTransaction purchases the label for a rate.
	CreateTransaction(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)

	// GetTrack returns the tracking state of a parcel.
	GetTrack(ctx context.Context, carrier, trackingNumber string) (*TrackResponse, error)

	// RegisterTrack subscribes the account webhook to a parcel's updates.
	RegisterTrack(ctx context.Context, req *TrackRegistration) (*TrackResponse, error)
}

// ============================================================================
// API Request/Response Types (match Shippo API structure)
// ============================================================================

// Address is a Shippo address object.
type Address struct {
	Name    string `json:"name"`
	Company string `json:"company,omitempty"`
	Street1 string `json:"street1"`
	Street2 string `json:"street2,omitempty"`
	City    string `json:"city"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
}

// Parcel is a Shippo parcel object. Dimensions are strings on the wire.
type Parcel struct {
	Length       string `json:"length"`
	Width        string `json:"width"`
	Height       string `json:"height"`
	DistanceUnit string `json:"distance_unit"`
	Weight       string `json:"weight"`
	MassUnit     string `json:"mass_unit"`
}

// ShipmentRequest represents a POST /shipments/ request.
type ShipmentRequest struct {
	AddressFrom     Address  `json:"address_from"`
	AddressTo       Address  `json:"address_to"`
	Parcels         []Parcel `json:"parcels"`
	CarrierAccounts []string `json:"carrier_accounts,omitempty"`
	Async           bool     `json:"async"`
	Metadata        string   `json:"metadata,omitempty"`
}

// ShipmentResponse represents a Shippo shipment with its rates.
type ShipmentResponse struct {
	ObjectID string                   `json:"object_id"`
	Status   string                   `json:"status"`
	Rates    []shipper.AggregatorRate `json:"rates"`
	Messages []Message                `json:"messages,omitempty"`
}

// TransactionRequest represents a POST /transactions/ request.
type TransactionRequest struct {
	Rate          string `json:"rate"`
	LabelFileType string `json:"label_file_type"`
	Async         bool   `json:"async"`
	Metadata      string `json:"metadata,omitempty"`
}

// TransactionResponse represents a Shippo transaction.
type TransactionResponse struct {
	ObjectID            string    `json:"object_id"`
	ObjectCreated       string    `json:"object_created,omitempty"`
	Status              string    `json:"status"`
	Rate                string    `json:"rate"`
	TrackingNumber      string    `json:"tracking_number"`
	TrackingURLProvider string    `json:"tracking_url_provider"`
	LabelURL            string    `json:"label_url"`
	ETA                 string    `json:"eta,omitempty"`
	Metadata            string    `json:"metadata,omitempty"`
	Messages            []Message `json:"messages,omitempty"`
}

// Message is an informational or error message attached to a Shippo object.
type Message struct {
	Source string `json:"source,omitempty"`
	Code   string `json:"code,omitempty"`
	Text   string `json:"text"`
}

// TrackLocation is where a tracking status was recorded.
type TrackLocation struct {
	City    string `json:"city,omitempty"`
	State   string `json:"state,omitempty"`
	Zip     string `json:"zip,omitempty"`
	Country string `json:"country,omitempty"`
}

func (l *TrackLocation) String() string {
	if l == nil {
		return ""
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{l.City, l.Zip, l.Country} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// TrackStatus is a Shippo tracking_status object.
type TrackStatus struct {
	Status        string         `json:"status"`
	StatusDetails string         `json:"status_details,omitempty"`
	StatusDate    string         `json:"status_date,omitempty"`
	Location      *TrackLocation `json:"location,omitempty"`
}

// TrackResponse represents a Shippo track object.
type TrackResponse struct {
	Carrier         string        `json:"carrier"`
	TrackingNumber  string        `json:"tracking_number"`
	ETA             string        `json:"eta,omitempty"`
	TrackingStatus  *TrackStatus  `json:"tracking_status"`
	TrackingHistory []TrackStatus `json:"tracking_history,omitempty"`
	Metadata        string        `json:"metadata,omitempty"`
}

// TrackRegistration represents a POST /tracks/ request.
type TrackRegistration struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	Metadata       string `json:"metadata,omitempty"`
}

// APIError represents an error from the Shippo API.
type APIError struct {
	Code       string            `json:"code"`
	Message    string            `json:"detail"`
	Errors     map[string]string `json:"errors,omitempty"`
	StatusCode int               `json:"-"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}
