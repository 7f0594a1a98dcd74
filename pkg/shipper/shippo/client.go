// Package shippo provides integration with the Shippo multi-carrier API.
package shippo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const carrierName = "shippo"

// Config holds Shippo configuration.
type Config struct {
	APIKey   string
	BaseURL  string
	Test     bool // selects test-mode carrier accounts
	UseMock  bool // When true, uses mock API client
	Timeout  time.Duration
	Metadata string
}

// Client is the Shippo shipper client.
// It implements the shipper.Shipper interface and delegates
// API calls to the underlying APIClient (mock or HTTP).
type Client struct {
	config    Config
	apiClient APIClient
	accounts  shipper.AccountSource
	excluded  map[string]bool
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Shippo client.
// If cfg.UseMock is true, it uses a mock API client for testing.
// Otherwise, it uses the real HTTP API client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		apiClient = NewHTTPAPIClient(HTTPAPIClientConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Timeout: cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Shippo client with a custom API client.
// This is useful for injecting mock clients in tests.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if tracer == nil {
		tracer = otel.Tracer("shipping/" + carrierName)
	}
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		logger:    logger,
		tracer:    tracer,
	}
}

// WithAccounts restricts rating to the active carrier accounts of src.
func (c *Client) WithAccounts(src shipper.AccountSource) *Client {
	c.accounts = src
	return c
}

// WithoutCarriers keeps the accounts of the given carriers out of rating
// requests. Gateways integrated directly store their credentials alongside.
func (c *Client) WithoutCarriers(carriers ...string) *Client {
	if c.excluded == nil {
		c.excluded = make(map[string]bool, len(carriers))
	}
	for _, carrier := range carriers {
		c.excluded[strings.ToLower(carrier)] = true
	}
	return c
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// Variant reports an aggregator integration.
func (c *Client) Variant() shipper.Variant {
	return shipper.VariantAggregator
}

// QuoteRates creates a Shippo shipment and returns its rates unchanged.
func (c *Client) QuoteRates(ctx context.Context, req *shipper.QuoteRequest) ([]shipper.NativeRate, error) {
	ctx, span := c.tracer.Start(ctx, "shippo.QuoteRates")
	defer span.End()

	if err := req.Parcel.Validate(); err != nil {
		return nil, err
	}

	c.logger.Ctx(ctx).Info("Getting Shippo rates",
		zap.String("origin_country", req.From.Country),
		zap.String("destination_country", req.To.Country),
		zap.String("destination_zip", req.To.Zip),
	)

	apiReq := &ShipmentRequest{
		AddressFrom: addressToAPI(req.From),
		AddressTo:   addressToAPI(req.To),
		Parcels:     []Parcel{parcelToAPI(req.Parcel)},
		Metadata:    c.config.Metadata,
	}

	accounts, err := c.carrierAccounts(ctx)
	if err != nil {
		c.logger.Ctx(ctx).Warn("Failed to load carrier accounts, quoting with account defaults", zap.Error(err))
	}
	apiReq.CarrierAccounts = accounts

	apiResp, err := c.apiClient.CreateShipment(ctx, apiReq)
	if err != nil {
		c.logger.Ctx(ctx).Error("Shippo API error", zap.Error(err))
		return nil, c.mapError(err)
	}
	span.SetAttributes(
		attribute.String("shippo.shipment", apiResp.ObjectID),
		attribute.Int("shippo.rates", len(apiResp.Rates)),
	)

	if len(apiResp.Rates) == 0 && len(apiResp.Messages) > 0 {
		c.logger.Ctx(ctx).Warn("Shippo returned no rates",
			zap.String("shipment_id", apiResp.ObjectID),
			zap.String("messages", joinMessages(apiResp.Messages)),
		)
	}

	rates := make([]shipper.NativeRate, 0, len(apiResp.Rates))
	for i := range apiResp.Rates {
		rates = append(rates, nativeRate(apiResp.Rates[i]))
	}
	return rates, nil
}

// LookupRate re-fetches a rate. An unknown id means the quote expired.
func (c *Client) LookupRate(ctx context.Context, req *shipper.RateLookup) (*shipper.NativeRate, error) {
	rate, err := c.apiClient.GetRate(ctx, req.RateID)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, shipper.NewShipperError(carrierName, apiErr.Code, apiErr.Message).
				WithStatusCode(apiErr.StatusCode).
				WithKind(shipper.ErrRateExpired)
		}
		c.logger.Ctx(ctx).Error("Shippo API error", zap.Error(err))
		return nil, c.mapError(err)
	}

	native := nativeRate(*rate)
	return &native, nil
}

// PurchaseLabel buys the label for a rate through a Shippo transaction.
func (c *Client) PurchaseLabel(ctx context.Context, req *shipper.LabelRequest) (*shipper.Transaction, error) {
	ctx, span := c.tracer.Start(ctx, "shippo.PurchaseLabel")
	defer span.End()

	format := req.Format
	if format == "" {
		format = shipper.LabelPDF
	}

	c.logger.Ctx(ctx).Info("Purchasing Shippo label",
		zap.String("rate_id", req.RateID),
		zap.String("format", string(format)),
	)

	apiResp, err := c.apiClient.CreateTransaction(ctx, &TransactionRequest{
		Rate:          req.RateID,
		LabelFileType: string(format),
		Metadata:      req.Metadata,
	})
	if err != nil {
		c.logger.Ctx(ctx).Error("Shippo API error", zap.Error(err))
		return nil, c.mapError(err)
	}
	span.SetAttributes(attribute.String("shippo.transaction", apiResp.ObjectID))

	if apiResp.Status != "SUCCESS" {
		details := joinMessages(apiResp.Messages)
		if details == "" {
			details = apiResp.Status
		}
		c.logger.Ctx(ctx).Error("Shippo transaction failed",
			zap.String("transaction_id", apiResp.ObjectID),
			zap.String("status", apiResp.Status),
			zap.String("details", details),
		)
		return nil, shipper.NewShipperError(carrierName, "TRANSACTION_"+apiResp.Status, details).
			WithKind(shipper.ErrLabelPurchaseFailed)
	}

	createdAt := time.Now().UTC()
	if t, err := time.Parse(time.RFC3339, apiResp.ObjectCreated); err == nil {
		createdAt = t
	}

	return &shipper.Transaction{
		ObjectID:       apiResp.ObjectID,
		Status:         apiResp.Status,
		RateID:         req.RateID,
		TrackingNumber: apiResp.TrackingNumber,
		TrackingURL:    apiResp.TrackingURLProvider,
		LabelURL:       apiResp.LabelURL,
		ETA:            apiResp.ETA,
		CreatedAt:      createdAt,
	}, nil
}

// Track returns the current Shippo tracking status.
func (c *Client) Track(ctx context.Context, req *shipper.TrackRequest) (*shipper.TrackingStatus, error) {
	carrier := CarrierToken(req.Carrier)

	c.logger.Ctx(ctx).Info("Getting Shippo tracking",
		zap.String("carrier", carrier),
		zap.String("tracking_number", req.TrackingNumber),
	)

	apiResp, err := c.apiClient.GetTrack(ctx, carrier, req.TrackingNumber)
	if err != nil {
		c.logger.Ctx(ctx).Error("Shippo API error", zap.Error(err))
		return nil, c.mapError(err)
	}

	return trackToShipper(apiResp, req)
}

// RegisterWebhook subscribes the account's tracking webhook to a parcel.
func (c *Client) RegisterWebhook(ctx context.Context, req *shipper.WebhookRequest) error {
	carrier := CarrierToken(req.Carrier)

	c.logger.Ctx(ctx).Info("Registering Shippo tracking webhook",
		zap.String("carrier", carrier),
		zap.String("tracking_number", req.TrackingNumber),
	)

	_, err := c.apiClient.RegisterTrack(ctx, &TrackRegistration{
		Carrier:        carrier,
		TrackingNumber: req.TrackingNumber,
		Metadata:       req.Metadata,
	})
	if err != nil {
		return c.mapError(err)
	}
	return nil
}

// CarrierToken converts a provider display name into a Shippo carrier token,
// e.g. "DHL Express" -> "dhl_express".
func CarrierToken(provider string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(provider)), " ", "_")
}

// ============================================================================
// Conversion helpers
// ============================================================================

func (c *Client) carrierAccounts(ctx context.Context) ([]string, error) {
	if c.accounts == nil {
		return nil, nil
	}
	accounts, err := c.accounts.ActiveAccounts(ctx, "", c.config.Test)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(accounts))
	for _, a := range accounts {
		if a.AccountID == "" || c.excluded[strings.ToLower(a.Carrier)] {
			continue
		}
		ids = append(ids, a.AccountID)
	}
	return ids, nil
}

func (c *Client) mapError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 {
			return shipper.NewShipperError(carrierName, apiErr.Code, apiErr.Message).
				WithStatusCode(apiErr.StatusCode).
				WithRetryable(true).
				WithKind(shipper.ErrCarrierUnavailable)
		}
		return shipper.Rejected(carrierName, apiErr.Code, apiErr.Message).WithStatusCode(apiErr.StatusCode)
	}
	return shipper.Unavailable(carrierName, err)
}

func nativeRate(r shipper.AggregatorRate) shipper.NativeRate {
	return shipper.NativeRate{
		Gateway:    carrierName,
		Variant:    shipper.VariantAggregator,
		Aggregated: &r,
	}
}

func addressToAPI(a shipper.Address) Address {
	return Address{
		Name:    a.Name,
		Company: a.Company,
		Street1: a.Street1,
		Street2: a.Street2,
		City:    a.City,
		State:   a.State,
		Zip:     a.Zip,
		Country: strings.ToUpper(a.Country),
		Phone:   a.Phone,
		Email:   a.Email,
	}
}

func parcelToAPI(p shipper.Parcel) Parcel {
	distance := p.DistanceUnit
	if distance == "" {
		distance = shipper.DimensionCM
	}
	mass := p.MassUnit
	if mass == "" {
		mass = shipper.WeightKG
	}
	return Parcel{
		Length:       p.Length.String(),
		Width:        p.Width.String(),
		Height:       p.Height.String(),
		DistanceUnit: string(distance),
		Weight:       p.Weight.String(),
		MassUnit:     string(mass),
	}
}

func trackToShipper(t *TrackResponse, req *shipper.TrackRequest) (*shipper.TrackingStatus, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}

	status := &shipper.TrackingStatus{
		Carrier:        t.Carrier,
		TrackingNumber: t.TrackingNumber,
		Status:         "UNKNOWN",
		Raw:            raw,
	}
	if status.Carrier == "" {
		status.Carrier = req.Carrier
	}
	if status.TrackingNumber == "" {
		status.TrackingNumber = req.TrackingNumber
	}
	if t.TrackingStatus != nil {
		status.Status = t.TrackingStatus.Status
		status.StatusDetails = t.TrackingStatus.StatusDetails
		status.StatusDate = parseTime(t.TrackingStatus.StatusDate)
	}
	for _, h := range t.TrackingHistory {
		status.Events = append(status.Events, shipper.TrackingEvent{
			Status:      h.Status,
			Description: h.StatusDetails,
			Location:    h.Location.String(),
			OccurredAt:  parseTime(h.StatusDate),
		})
	}
	return status, nil
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil
	}
	return &t
}

func joinMessages(msgs []Message) string {
	texts := make([]string, 0, len(msgs))
	for _, m := range msgs {
		if m.Text != "" {
			texts = append(texts, m.Text)
		}
	}
	return strings.Join(texts, ", ")
}

var _ shipper.Shipper = (*Client)(nil)
