package mondialrelay

import (
	"context"
	"fmt"
	"time"
)

// MockAPIClient is a mock implementation of APIClient for testing.
type MockAPIClient struct {
	SimulateErrors  bool
	SimulateLatency time.Duration

	OnCreateLabel        func(ctx context.Context, creds Credentials, req *LabelRequest) (*LabelResponse, error)
	OnTraceParcel        func(ctx context.Context, creds Credentials, req *TraceRequest) (*TraceResponse, error)
	OnSearchPickupPoints func(ctx context.Context, creds Credentials, req *PickupSearchRequest) (*PickupSearchResponse, error)
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
		return statError("99")
	}
	return nil
}

// CreateLabel returns a mock expedition.
func (m *MockAPIClient) CreateLabel(ctx context.Context, creds Credentials, req *LabelRequest) (*LabelResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}

	if m.OnCreateLabel != nil {
		return m.OnCreateLabel(ctx, creds, req)
	}

	num := fmt.Sprintf("%08d", time.Now().UnixNano()%100000000)
	return &LabelResponse{
		Stat:          "0",
		ExpeditionNum: num,
		LabelURL:      "/ww2/PDF/StickerMaker2.aspx?ens=" + creds.Enseigne + "&expedition=" + num + "&format=A4",
	}, nil
}

// TraceParcel returns a mock in-transit tracing.
func (m *MockAPIClient) TraceParcel(ctx context.Context, creds Credentials, req *TraceRequest) (*TraceResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}

	if m.OnTraceParcel != nil {
		return m.OnTraceParcel(ctx, creds, req)
	}

	return &TraceResponse{
		Stat:  "81",
		Label: "COLIS EN COURS D'ACHEMINEMENT",
		Events: []TraceEvent{
			{Label: "PRISE EN CHARGE EN AGENCE", Date: time.Now().Format("02/01/2006"), Time: "08:30", Location: "AGENCE PARIS"},
		},
	}, nil
}

// SearchPickupPoints returns two mock relay points.
func (m *MockAPIClient) SearchPickupPoints(ctx context.Context, creds Credentials, req *PickupSearchRequest) (*PickupSearchResponse, error) {
	if err := m.simulate(ctx); err != nil {
		return nil, err
	}

	if m.OnSearchPickupPoints != nil {
		return m.OnSearchPickupPoints(ctx, creds, req)
	}

	hours := map[string][]string{"monday": {"0900", "1900"}}
	return &PickupSearchResponse{
		Stat: "0",
		Points: []RelayPoint{
			{Num: "020154", Name: "TABAC DE LA GARE", Street: "12 RUE DE LA GARE", Zip: req.PostalCode, City: "PARIS", Country: req.Country, Distance: "350", Hours: hours},
			{Num: "020871", Name: "PRESSING DU CENTRE", Street: "4 PLACE DU MARCHE", Zip: req.PostalCode, City: "PARIS", Country: req.Country, Distance: "820", Hours: hours},
		},
	}, nil
}

var _ APIClient = (*MockAPIClient)(nil)
