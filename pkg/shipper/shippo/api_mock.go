package shippo

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tournevent/shipping/pkg/shipper"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCreateShipment    func(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error)
	OnGetRate           func(ctx context.Context, rateID string) (*shipper.AggregatorRate, error)
	OnCreateTransaction func(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error)
	OnGetTrack          func(ctx context.Context, carrier, trackingNumber string) (*TrackResponse, error)
	OnRegisterTrack     func(ctx context.Context, req *TrackRegistration) (*TrackResponse, error)
}

// NewMockAPIClient creates a new mock API client with default behavior.
func NewMockAPIClient() *MockAPIClient {
	return &MockAPIClient{}
}

func (m *MockAPIClient) simulate(ctx context.Context) error {
	if m.SimulateLatency > 0 {
		select {
		case <-time.After(m.SimulateLatency):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if m.SimulateErrors {
		return &APIError{Code: "MOCK_ERROR", Message: "Simulated API error", StatusCode: http.StatusBadRequest}
	}
	return nil
}

// CreateShipment returns three mock rates: two domestic carriers and one international.
func (m *MockAPIClient) CreateShipment(ctx context.Context, req *ShipmentRequest) (*ShipmentResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}

	if m.OnCreateShipment != nil {
		return m.OnCreateShipment(ctx, req)
	}

	shipmentID := "shp_" + uuid.New().String()[:8]
	two, three, four := 2, 3, 4
	return &ShipmentResponse{
		ObjectID: shipmentID,
		Status:   "SUCCESS",
		Rates: []shipper.AggregatorRate{
			{
				ObjectID:      "rate_" + uuid.New().String()[:8],
				Amount:        "7.45",
				Currency:      "EUR",
				Provider:      "Colissimo",
				ServiceLevel:  &shipper.ServiceLevel{Name: "Colissimo Domicile", Token: "colissimo_home"},
				EstimatedDays: &three,
				Attributes:    []string{"CHEAPEST"},
			},
			{
				ObjectID:      "rate_" + uuid.New().String()[:8],
				Amount:        "13.90",
				Currency:      "EUR",
				Provider:      "Chronopost",
				ServiceLevel:  &shipper.ServiceLevel{Name: "Chrono 13", Token: "chronopost_13"},
				EstimatedDays: &two,
				Attributes:    []string{"FASTEST"},
			},
			{
				ObjectID:      "rate_" + uuid.New().String()[:8],
				Amount:        "24.10",
				Currency:      "EUR",
				Provider:      "DHL Express",
				ServiceLevel:  &shipper.ServiceLevel{Name: "Express Worldwide", Token: "dhl_express_worldwide"},
				EstimatedDays: &four,
			},
		},
	}, nil
}

// GetRate echoes a mock rate for any id.
func (m *MockAPIClient) GetRate(ctx context.Context, rateID string) (*shipper.AggregatorRate, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}

	if m.OnGetRate != nil {
		return m.OnGetRate(ctx, rateID)
	}

	three := 3
	return &shipper.AggregatorRate{
		ObjectID:      rateID,
		Amount:        "7.45",
		Currency:      "EUR",
		Provider:      "Colissimo",
		ServiceLevel:  &shipper.ServiceLevel{Name: "Colissimo Domicile", Token: "colissimo_home"},
		EstimatedDays: &three,
	}, nil
}

// CreateTransaction returns a successful mock transaction.
func (m *MockAPIClient) CreateTransaction(ctx context.Context, req *TransactionRequest) (*TransactionResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}

	if m.OnCreateTransaction != nil {
		return m.OnCreateTransaction(ctx, req)
	}

	trackingNumber := fmt.Sprintf("6A%09d", time.Now().UnixNano()%1000000000)
	return &TransactionResponse{
		ObjectID:            "txn_" + uuid.New().String()[:8],
		ObjectCreated:       time.Now().UTC().Format(time.RFC3339),
		Status:              "SUCCESS",
		Rate:                req.Rate,
		TrackingNumber:      trackingNumber,
		TrackingURLProvider: "https://www.laposte.fr/outils/suivre-vos-envois?code=" + trackingNumber,
		LabelURL:            "https://shippo-delivery.s3.amazonaws.com/" + trackingNumber + ".pdf",
		Metadata:            req.Metadata,
	}, nil
}

// GetTrack returns a mock in-transit track.
func (m *MockAPIClient) GetTrack(ctx context.Context, carrier, trackingNumber string) (*TrackResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}

	if m.OnGetTrack != nil {
		return m.OnGetTrack(ctx, carrier, trackingNumber)
	}

	return &TrackResponse{
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		TrackingStatus: &TrackStatus{
			Status:        "TRANSIT",
			StatusDetails: "Le colis est en cours d'acheminement",
			StatusDate:    time.Now().UTC().Format(time.RFC3339),
		},
	}, nil
}

// RegisterTrack accepts any registration.
func (m *MockAPIClient) RegisterTrack(ctx context.Context, req *TrackRegistration) (*TrackResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}

	if m.OnRegisterTrack != nil {
		return m.OnRegisterTrack(ctx, req)
	}

	return &TrackResponse{
		Carrier:        req.Carrier,
		TrackingNumber: req.TrackingNumber,
		Metadata:       req.Metadata,
		TrackingStatus: &TrackStatus{Status: "UNKNOWN"},
	}, nil
}

var _ APIClient = (*MockAPIClient)(nil)
