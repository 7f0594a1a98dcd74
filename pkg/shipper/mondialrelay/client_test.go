package mondialrelay_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/tournevent/shipping/pkg/shipper/mondialrelay"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/zoobzio/clockz"
	"go.uber.org/zap"
)

func newTestClient(mockClient mondialrelay.APIClient) *mondialrelay.Client {
	logger := otelzap.New(zap.NewNop())
	return mondialrelay.NewWithAPIClient(
		mondialrelay.Config{Enseigne: "BDTEST13", PrivateKey: "TestAPI1key"},
		mockClient,
		logger,
		nil,
	)
}

func quoteRequest() *shipper.QuoteRequest {
	return &shipper.QuoteRequest{
		From: shipper.Address{Name: "Boutique", Street1: "10 rue de Paris", City: "Paris", Zip: "75001", Country: "FR"},
		To:   shipper.Address{Name: "Jean Dupont", Street1: "5 avenue Foch", City: "Lyon", Zip: "69002", Country: "fr"},
		Parcel: shipper.Parcel{
			Length:   decimal.NewFromInt(30),
			Width:    decimal.NewFromInt(20),
			Height:   decimal.NewFromInt(10),
			Weight:   decimal.RequireFromString("0.8"),
			MassUnit: shipper.WeightKG,
		},
	}
}

type staticAccounts []shipper.CarrierAccount

func (s staticAccounts) ActiveAccounts(_ context.Context, carrier string, _ bool) ([]shipper.CarrierAccount, error) {
	var out []shipper.CarrierAccount
	for _, a := range s {
		if carrier == "" || a.Carrier == carrier {
			out = append(out, a)
		}
	}
	return out, nil
}

func TestClient_QuoteRates(t *testing.T) {
	client := newTestClient(mondialrelay.NewMockAPIClient())

	rates, err := client.QuoteRates(context.Background(), quoteRequest())

	require.NoError(t, err)
	require.Len(t, rates, 2)
	for _, r := range rates {
		assert.Equal(t, "mondialrelay", r.Gateway)
		assert.Equal(t, shipper.VariantDirect, r.Variant)
		require.NotNil(t, r.Direct)
		assert.Equal(t, "EUR", r.Direct.Currency)
		assert.True(t, strings.HasPrefix(r.Direct.Reference, r.Direct.ServiceToken+".800.FR."))
	}
	assert.Equal(t, "5.95", rates[0].Direct.Amount.StringFixed(2))
	assert.Equal(t, "8.93", rates[1].Direct.Amount.StringFixed(2))
	assert.Equal(t, 4, *rates[0].Direct.EstimatedDays)
}

func TestClient_QuoteRates_InvalidParcel(t *testing.T) {
	client := newTestClient(mondialrelay.NewMockAPIClient())
	req := quoteRequest()
	req.Parcel.Weight = decimal.Zero

	_, err := client.QuoteRates(context.Background(), req)

	assert.ErrorIs(t, err, shipper.ErrInvalidParcel)
}

func TestClient_LookupRate_Expired(t *testing.T) {
	clock := clockz.NewFakeClock()
	client := newTestClient(mondialrelay.NewMockAPIClient()).WithClock(clock)
	ctx := context.Background()

	rates, err := client.QuoteRates(ctx, quoteRequest())
	require.NoError(t, err)
	ref := rates[0].Direct.Reference

	rate, err := client.LookupRate(ctx, &shipper.RateLookup{RateID: ref})
	require.NoError(t, err)
	assert.Equal(t, ref, rate.Direct.Reference)

	clock.Advance(31 * time.Minute)

	_, err = client.LookupRate(ctx, &shipper.RateLookup{RateID: ref})
	assert.ErrorIs(t, err, shipper.ErrRateExpired)
}

func TestClient_LookupRate_Malformed(t *testing.T) {
	client := newTestClient(mondialrelay.NewMockAPIClient())

	_, err := client.LookupRate(context.Background(), &shipper.RateLookup{RateID: "rate-standard"})

	assert.ErrorIs(t, err, shipper.ErrRateExpired)
}

func TestClient_LookupRate_RouteAndWeight(t *testing.T) {
	client := newTestClient(mondialrelay.NewMockAPIClient())
	ctx := context.Background()
	q := quoteRequest()

	rates, err := client.QuoteRates(ctx, q)
	require.NoError(t, err)
	ref := rates[1].Direct.Reference

	heavier := q.Parcel
	heavier.Weight = decimal.RequireFromString("0.95")
	rate, err := client.LookupRate(ctx, &shipper.RateLookup{RateID: ref, To: q.To, Parcel: heavier})
	require.NoError(t, err)
	assert.Equal(t, "8.93", rate.Direct.Amount.StringFixed(2))

	belgium := q.To
	belgium.Country = "BE"
	_, err = client.LookupRate(ctx, &shipper.RateLookup{RateID: ref, To: belgium, Parcel: q.Parcel})
	assert.ErrorIs(t, err, shipper.ErrRateExpired)

	heavier.Weight = decimal.NewFromInt(20)
	_, err = client.LookupRate(ctx, &shipper.RateLookup{RateID: ref, To: q.To, Parcel: heavier})
	assert.ErrorIs(t, err, shipper.ErrRateExpired)
}

func TestClient_PurchaseLabel_WeightBandChanged(t *testing.T) {
	called := false
	mockAPI := mondialrelay.NewMockAPIClient()
	mockAPI.OnCreateLabel = func(ctx context.Context, creds mondialrelay.Credentials, req *mondialrelay.LabelRequest) (*mondialrelay.LabelResponse, error) {
		called = true
		return &mondialrelay.LabelResponse{Stat: "0", ExpeditionNum: "31415926"}, nil
	}
	client := newTestClient(mockAPI)
	ctx := context.Background()
	q := quoteRequest()

	rates, err := client.QuoteRates(ctx, q)
	require.NoError(t, err)

	heavy := q.Parcel
	heavy.Weight = decimal.NewFromInt(20)
	_, err = client.PurchaseLabel(ctx, &shipper.LabelRequest{
		RateID: rates[1].Direct.Reference,
		From:   q.From,
		To:     q.To,
		Parcel: heavy,
	})

	assert.ErrorIs(t, err, shipper.ErrRateExpired)
	assert.False(t, called)
}

func TestClient_PurchaseLabel_RelayRequiresPickupPoint(t *testing.T) {
	mockAPI := mondialrelay.NewMockAPIClient()
	client := newTestClient(mockAPI)
	ctx := context.Background()

	rates, err := client.QuoteRates(ctx, quoteRequest())
	require.NoError(t, err)

	_, err = client.PurchaseLabel(ctx, &shipper.LabelRequest{RateID: rates[0].Direct.Reference})

	assert.ErrorIs(t, err, shipper.ErrLabelPurchaseFailed)
}

func TestClient_PurchaseLabel_Success(t *testing.T) {
	var captured *mondialrelay.LabelRequest
	mockAPI := mondialrelay.NewMockAPIClient()
	mockAPI.OnCreateLabel = func(ctx context.Context, creds mondialrelay.Credentials, req *mondialrelay.LabelRequest) (*mondialrelay.LabelResponse, error) {
		captured = req
		return &mondialrelay.LabelResponse{
			Stat:          "0",
			ExpeditionNum: "31415926",
			LabelURL:      "/ww2/PDF/StickerMaker2.aspx?expedition=31415926",
		}, nil
	}
	client := newTestClient(mockAPI)
	ctx := context.Background()

	q := quoteRequest()
	rates, err := client.QuoteRates(ctx, q)
	require.NoError(t, err)

	tx, err := client.PurchaseLabel(ctx, &shipper.LabelRequest{
		RateID:         rates[0].Direct.Reference,
		From:           q.From,
		To:             q.To,
		Parcel:         q.Parcel,
		OrderReference: "ORDER42",
		PickupPointID:  "020154",
	})

	require.NoError(t, err)
	assert.Equal(t, "31415926", tx.TrackingNumber)
	assert.Equal(t, "https://www.mondialrelay.com/ww2/PDF/StickerMaker2.aspx?expedition=31415926", tx.LabelURL)
	assert.Equal(t, "https://www.mondialrelay.fr/suivi-de-colis/?NumeroExpedition=31415926", tx.TrackingURL)

	require.NotNil(t, captured)
	assert.Equal(t, "CCC", captured.CollectionMode)
	assert.Equal(t, "24R", captured.DeliveryMode)
	assert.Equal(t, "FR", captured.DeliveryCountry)
	assert.Equal(t, "020154", captured.DeliveryPoint)
	assert.Equal(t, int64(800), captured.WeightGrams)
}

func TestClient_PurchaseLabel_Rejected(t *testing.T) {
	mockAPI := mondialrelay.NewMockAPIClient()
	mockAPI.SimulateErrors = true
	client := newTestClient(mockAPI)
	ctx := context.Background()

	rates, err := client.QuoteRates(ctx, quoteRequest())
	require.NoError(t, err)

	_, err = client.PurchaseLabel(ctx, &shipper.LabelRequest{RateID: rates[1].Direct.Reference})

	assert.ErrorIs(t, err, shipper.ErrCarrierRejected)
}

func TestClient_PurchaseLabel_TransportFailure(t *testing.T) {
	mockAPI := mondialrelay.NewMockAPIClient()
	mockAPI.OnCreateLabel = func(ctx context.Context, creds mondialrelay.Credentials, req *mondialrelay.LabelRequest) (*mondialrelay.LabelResponse, error) {
		return nil, context.DeadlineExceeded
	}
	client := newTestClient(mockAPI)
	ctx := context.Background()

	rates, err := client.QuoteRates(ctx, quoteRequest())
	require.NoError(t, err)

	_, err = client.PurchaseLabel(ctx, &shipper.LabelRequest{RateID: rates[1].Direct.Reference})

	assert.ErrorIs(t, err, shipper.ErrCarrierUnavailable)
	assert.True(t, shipper.IsRetryable(err))
}

func TestClient_AccountOverridesCredentials(t *testing.T) {
	var used mondialrelay.Credentials
	mockAPI := mondialrelay.NewMockAPIClient()
	mockAPI.OnTraceParcel = func(ctx context.Context, creds mondialrelay.Credentials, req *mondialrelay.TraceRequest) (*mondialrelay.TraceResponse, error) {
		used = creds
		return &mondialrelay.TraceResponse{Stat: "82", Label: "COLIS LIVRE"}, nil
	}
	client := newTestClient(mockAPI).WithAccounts(staticAccounts{
		{Carrier: "mondialrelay", AccountID: "CC22XXXX", Active: true, Parameters: map[string]string{"private_key": "secret"}},
		{Carrier: "colissimo", AccountID: "other", Active: true},
	})

	status, err := client.Track(context.Background(), &shipper.TrackRequest{TrackingNumber: "31415926"})

	require.NoError(t, err)
	assert.Equal(t, "82", status.Status)
	assert.Equal(t, "CC22XXXX", used.Enseigne)
	assert.Equal(t, "secret", used.PrivateKey)
}

func TestClient_Track_ParsesEvents(t *testing.T) {
	mockAPI := mondialrelay.NewMockAPIClient()
	mockAPI.OnTraceParcel = func(ctx context.Context, creds mondialrelay.Credentials, req *mondialrelay.TraceRequest) (*mondialrelay.TraceResponse, error) {
		return &mondialrelay.TraceResponse{
			Stat:  "81",
			Label: "EN COURS",
			Events: []mondialrelay.TraceEvent{
				{Label: "PRISE EN CHARGE", Date: "14/03/2026", Time: "09:15", Location: "PARIS"},
			},
		}, nil
	}
	client := newTestClient(mockAPI)

	status, err := client.Track(context.Background(), &shipper.TrackRequest{TrackingNumber: "31415926"})

	require.NoError(t, err)
	require.Len(t, status.Events, 1)
	require.NotNil(t, status.StatusDate)
	assert.Equal(t, time.Date(2026, 3, 14, 9, 15, 0, 0, time.UTC), *status.StatusDate)
	assert.NotEmpty(t, status.Raw)
}

func TestClient_PickupPoints(t *testing.T) {
	var captured *mondialrelay.PickupSearchRequest
	mockAPI := mondialrelay.NewMockAPIClient()
	mockAPI.OnSearchPickupPoints = func(ctx context.Context, creds mondialrelay.Credentials, req *mondialrelay.PickupSearchRequest) (*mondialrelay.PickupSearchResponse, error) {
		captured = req
		return mondialrelay.NewMockAPIClient().SearchPickupPoints(ctx, creds, req)
	}
	client := newTestClient(mockAPI)

	points, err := client.PickupPoints(context.Background(), shipper.PickupQuery{PostalCode: "75001"})

	require.NoError(t, err)
	assert.Len(t, points, 2)
	assert.Equal(t, "020154", points[0].ID)
	assert.Equal(t, "FR", captured.Country)
	assert.Equal(t, int64(1000), captured.WeightGrams)
	assert.Equal(t, 20000, captured.Radius)
}

func TestClient_RegisterWebhook_NoOp(t *testing.T) {
	client := newTestClient(mondialrelay.NewMockAPIClient())

	err := client.RegisterWebhook(context.Background(), &shipper.WebhookRequest{TrackingNumber: "31415926"})

	assert.NoError(t, err)
}

func TestSOAPAPIClient_CreateLabel(t *testing.T) {
	var action, body string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		action = r.Header.Get("SOAPAction")
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Header().Set("Content-Type", "text/xml")
		_, _ = w.Write([]byte(`<?xml version="1.0" encoding="utf-8"?>
<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
<WSI2_CreationEtiquetteResponse xmlns="http://www.mondialrelay.fr/webservice/">
<WSI2_CreationEtiquetteResult><STAT>0</STAT><ExpeditionNum>31415926</ExpeditionNum>
<URL_Etiquette>/ww2/PDF/StickerMaker2.aspx?expedition=31415926</URL_Etiquette></WSI2_CreationEtiquetteResult>
</WSI2_CreationEtiquetteResponse></soap:Body></soap:Envelope>`))
	}))
	defer server.Close()

	api := mondialrelay.NewSOAPAPIClient(mondialrelay.SOAPAPIClientConfig{Endpoint: server.URL + "?WSDL"})
	resp, err := api.CreateLabel(context.Background(),
		mondialrelay.Credentials{Enseigne: "BDTEST13", PrivateKey: "TestAPI1key"},
		&mondialrelay.LabelRequest{CollectionMode: "CCC", DeliveryMode: "HOM", OrderNumber: "ORDER42", WeightGrams: 800},
	)

	require.NoError(t, err)
	assert.Equal(t, "31415926", resp.ExpeditionNum)
	assert.Equal(t, `"http://www.mondialrelay.fr/webservice/WSI2_CreationEtiquette"`, action)
	assert.Contains(t, body, "<Enseigne>BDTEST13</Enseigne>")
	assert.Contains(t, body, "<Security>")
}

func TestSOAPAPIClient_StatError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<soap:Envelope xmlns:soap="http://schemas.xmlsoap.org/soap/envelope/"><soap:Body>
<WSI2_CreationEtiquetteResponse xmlns="http://www.mondialrelay.fr/webservice/">
<WSI2_CreationEtiquetteResult><STAT>8</STAT></WSI2_CreationEtiquetteResult>
</WSI2_CreationEtiquetteResponse></soap:Body></soap:Envelope>`))
	}))
	defer server.Close()

	api := mondialrelay.NewSOAPAPIClient(mondialrelay.SOAPAPIClientConfig{Endpoint: server.URL})
	_, err := api.CreateLabel(context.Background(), mondialrelay.Credentials{}, &mondialrelay.LabelRequest{})

	var apiErr *mondialrelay.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "8", apiErr.Code)
}

func TestSOAPAPIClient_ServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("maintenance"))
	}))
	defer server.Close()

	api := mondialrelay.NewSOAPAPIClient(mondialrelay.SOAPAPIClientConfig{Endpoint: server.URL})
	client := newTestClient(api)

	_, err := client.Track(context.Background(), &shipper.TrackRequest{TrackingNumber: "31415926"})

	assert.ErrorIs(t, err, shipper.ErrCarrierUnavailable)
}
