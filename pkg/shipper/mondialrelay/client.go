// Package mondialrelay provides integration with the Mondial Relay web services.
package mondialrelay

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const (
	carrierName = "mondialrelay"
	displayName = "Mondial Relay"

	defaultEndpoint  = "https://api.mondialrelay.com/Web_Services.asmx"
	labelHost        = "https://www.mondialrelay.com"
	trackingURLBase  = "https://www.mondialrelay.fr/suivi-de-colis/?NumeroExpedition="
	defaultQuoteTTL  = 30 * time.Minute
	collectionMode   = "CCC"
	defaultRadius    = 20000
	defaultPickupKgs = 1000
)

// Config holds Mondial Relay configuration.
type Config struct {
	Enseigne   string
	PrivateKey string
	Brand      string
	Endpoint   string
	UseMock    bool
	Test       bool
	QuoteTTL   time.Duration
	Timeout    time.Duration
}

// Client is the Mondial Relay gateway.
type Client struct {
	config    Config
	apiClient APIClient
	accounts  shipper.AccountSource
	clock     clockz.Clock
	logger    *otelzap.Logger
	tracer    trace.Tracer
}

// New creates a new Mondial Relay client.
func New(cfg Config, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	var apiClient APIClient

	if cfg.UseMock {
		apiClient = NewMockAPIClient()
	} else {
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = defaultEndpoint
		}
		apiClient = NewSOAPAPIClient(SOAPAPIClientConfig{
			Endpoint: endpoint,
			Timeout:  cfg.Timeout,
		})
	}

	return NewWithAPIClient(cfg, apiClient, logger, tracer)
}

// NewWithAPIClient creates a new Mondial Relay client with a custom API client.
func NewWithAPIClient(cfg Config, apiClient APIClient, logger *otelzap.Logger, tracer trace.Tracer) *Client {
	if cfg.QuoteTTL == 0 {
		cfg.QuoteTTL = defaultQuoteTTL
	}
	if tracer == nil {
		tracer = otel.Tracer("shipping/" + carrierName)
	}
	return &Client{
		config:    cfg,
		apiClient: apiClient,
		clock:     clockz.RealClock,
		logger:    logger,
		tracer:    tracer,
	}
}

// WithAccounts lets an active carrier account override configured credentials.
func (c *Client) WithAccounts(src shipper.AccountSource) *Client {
	c.accounts = src
	return c
}

// WithClock replaces the clock used to stamp and expire quotes.
func (c *Client) WithClock(clock clockz.Clock) *Client {
	c.clock = clock
	return c
}

// Name returns the carrier name.
func (c *Client) Name() string {
	return carrierName
}

// Variant reports a direct SOAP integration.
func (c *Client) Variant() shipper.Variant {
	return shipper.VariantDirect
}

// QuoteRates prices the parcel from the static weight bands. No network call is made.
func (c *Client) QuoteRates(ctx context.Context, req *shipper.QuoteRequest) ([]shipper.NativeRate, error) {
	if err := req.Parcel.Validate(); err != nil {
		return nil, err
	}

	grams := req.Parcel.WeightGrams()
	country := strings.ToUpper(req.To.Country)
	now := c.clock.Now()

	c.logger.Ctx(ctx).Info("Computing Mondial Relay rates",
		zap.Int64("weight_grams", grams),
		zap.String("destination_country", country),
	)

	rates := make([]shipper.NativeRate, 0, len(services))
	for _, svc := range services {
		ref := rateRef{service: svc, grams: grams, country: country, quotedAt: now}
		rates = append(rates, c.nativeRate(ref))
	}
	return rates, nil
}

// LookupRate decodes a quoted rate id, failing with ErrRateExpired once the quote
// TTL has passed or when the destination or weight band differs from the quote.
func (c *Client) LookupRate(ctx context.Context, req *shipper.RateLookup) (*shipper.NativeRate, error) {
	ref, err := c.resolve(req.RateID, req.To.Country, req.Parcel.WeightGrams())
	if err != nil {
		return nil, err
	}
	rate := c.nativeRate(ref)
	return &rate, nil
}

// PurchaseLabel creates the expedition and returns its label.
func (c *Client) PurchaseLabel(ctx context.Context, req *shipper.LabelRequest) (*shipper.Transaction, error) {
	ctx, span := c.tracer.Start(ctx, "mondialrelay.PurchaseLabel")
	defer span.End()

	ref, err := c.resolve(req.RateID, req.To.Country, req.Parcel.WeightGrams())
	if err != nil {
		return nil, err
	}
	if ref.service.Relay && req.PickupPointID == "" {
		return nil, shipper.NewShipperError(carrierName, "PICKUP_POINT_REQUIRED",
			"a pickup point is required for "+ref.service.Name).WithKind(shipper.ErrLabelPurchaseFailed)
	}

	creds, err := c.credentials(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Ctx(ctx).Info("Creating Mondial Relay label",
		zap.String("mode", ref.service.Mode),
		zap.String("order_reference", req.OrderReference),
		zap.String("pickup_point", req.PickupPointID),
	)

	grams := req.Parcel.WeightGrams()
	if grams <= 0 {
		grams = ref.grams
	}

	apiReq := &LabelRequest{
		CollectionMode: collectionMode,
		DeliveryMode:   ref.service.Mode,
		OrderNumber:    req.OrderReference,
		Sender:         partyFromAddress(req.From),
		Recipient:      partyFromAddress(req.To),
		WeightGrams:    grams,
		ParcelCount:    1,
	}
	if ref.service.Relay {
		apiReq.DeliveryCountry = strings.ToUpper(req.To.Country)
		apiReq.DeliveryPoint = req.PickupPointID
	}

	apiResp, err := c.apiClient.CreateLabel(ctx, creds, apiReq)
	if err != nil {
		c.logger.Ctx(ctx).Error("Mondial Relay API error", zap.Error(err))
		return nil, c.mapError(err)
	}
	span.SetAttributes(attribute.String("mondialrelay.expedition", apiResp.ExpeditionNum))

	labelURL := apiResp.LabelURL
	if strings.HasPrefix(labelURL, "/") {
		labelURL = labelHost + labelURL
	}

	return &shipper.Transaction{
		ObjectID:       apiResp.ExpeditionNum,
		Status:         "SUCCESS",
		RateID:         req.RateID,
		TrackingNumber: apiResp.ExpeditionNum,
		TrackingURL:    trackingURLBase + apiResp.ExpeditionNum,
		LabelURL:       labelURL,
		CreatedAt:      c.clock.Now(),
	}, nil
}

// Track returns the tracing state of an expedition. The status is the raw tracing STAT code.
func (c *Client) Track(ctx context.Context, req *shipper.TrackRequest) (*shipper.TrackingStatus, error) {
	expedition := req.TrackingNumber
	if expedition == "" {
		expedition = req.CarrierObjectID
	}

	creds, err := c.credentials(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Ctx(ctx).Info("Tracing Mondial Relay parcel", zap.String("expedition", expedition))

	apiResp, err := c.apiClient.TraceParcel(ctx, creds, &TraceRequest{ExpeditionNum: expedition})
	if err != nil {
		c.logger.Ctx(ctx).Error("Mondial Relay API error", zap.Error(err))
		return nil, c.mapError(err)
	}

	raw, err := json.Marshal(apiResp)
	if err != nil {
		return nil, err
	}

	status := &shipper.TrackingStatus{
		Carrier:        carrierName,
		TrackingNumber: expedition,
		Status:         apiResp.Stat,
		StatusDetails:  apiResp.Label,
		Raw:            raw,
	}
	for _, e := range apiResp.Events {
		event := shipper.TrackingEvent{Status: apiResp.Stat, Description: e.Label, Location: e.Location}
		if t, err := time.ParseInLocation("02/01/2006 15:04", e.Date+" "+e.Time, time.UTC); err == nil {
			event.OccurredAt = &t
			status.StatusDate = &t
		}
		status.Events = append(status.Events, event)
	}
	return status, nil
}

// RegisterWebhook is a no-op: Mondial Relay does not push tracking updates.
func (c *Client) RegisterWebhook(ctx context.Context, req *shipper.WebhookRequest) error {
	c.logger.Ctx(ctx).Debug("Mondial Relay has no tracking webhooks, skipping registration",
		zap.String("tracking_number", req.TrackingNumber),
	)
	return nil
}

// PickupPoints searches relay points around a postal code.
func (c *Client) PickupPoints(ctx context.Context, q shipper.PickupQuery) ([]shipper.PickupPoint, error) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return nil, err
	}

	req := &PickupSearchRequest{
		Country:     strings.ToUpper(q.Country),
		PostalCode:  q.PostalCode,
		WeightGrams: q.WeightGrams,
		Radius:      q.Radius,
	}
	if req.Country == "" {
		req.Country = "FR"
	}
	if req.WeightGrams <= 0 {
		req.WeightGrams = defaultPickupKgs
	}
	if req.Radius <= 0 {
		req.Radius = defaultRadius
	}

	apiResp, err := c.apiClient.SearchPickupPoints(ctx, creds, req)
	if err != nil {
		c.logger.Ctx(ctx).Error("Mondial Relay API error", zap.Error(err))
		return nil, c.mapError(err)
	}

	points := make([]shipper.PickupPoint, 0, len(apiResp.Points))
	for _, p := range apiResp.Points {
		points = append(points, shipper.PickupPoint{
			ID:           p.Num,
			Name:         p.Name,
			Address:      strings.TrimSpace(p.Street + " " + p.Locality),
			City:         p.City,
			PostalCode:   p.Zip,
			Country:      p.Country,
			Latitude:     p.Latitude,
			Longitude:    p.Longitude,
			Distance:     p.Distance,
			OpeningHours: p.Hours,
		})
	}
	return points, nil
}

// ============================================================================
// Conversion helpers
// ============================================================================

func (c *Client) resolve(rateID, country string, grams int64) (rateRef, error) {
	ref, err := parseRateRef(rateID)
	if err != nil {
		return rateRef{}, shipper.NewShipperError(carrierName, "RATE_UNKNOWN", err.Error()).
			WithKind(shipper.ErrRateExpired)
	}
	if c.clock.Since(ref.quotedAt) > c.config.QuoteTTL {
		return rateRef{}, shipper.NewShipperError(carrierName, "RATE_EXPIRED",
			"quote "+rateID+" is older than "+c.config.QuoteTTL.String()).WithKind(shipper.ErrRateExpired)
	}
	if err := ref.covers(country, grams); err != nil {
		return rateRef{}, shipper.NewShipperError(carrierName, "RATE_MISMATCH",
			"quote "+rateID+" "+err.Error()).WithKind(shipper.ErrRateExpired)
	}
	return ref, nil
}

func (c *Client) nativeRate(ref rateRef) shipper.NativeRate {
	days := ref.service.Days
	return shipper.NativeRate{
		Gateway: carrierName,
		Variant: shipper.VariantDirect,
		Direct: &shipper.DirectRate{
			Reference:     ref.String(),
			Carrier:       displayName,
			ServiceName:   ref.service.Name,
			ServiceToken:  ref.service.Token,
			Amount:        ref.service.price(ref.grams),
			Currency:      "EUR",
			EstimatedDays: &days,
			Terms:         ref.service.Terms,
		},
	}
}

// credentials returns the configured credentials, overridden by an active account when one exists.
func (c *Client) credentials(ctx context.Context) (Credentials, error) {
	creds := Credentials{
		Enseigne:   c.config.Enseigne,
		PrivateKey: c.config.PrivateKey,
		Brand:      c.config.Brand,
	}
	if c.accounts == nil {
		return creds, nil
	}

	accounts, err := c.accounts.ActiveAccounts(ctx, carrierName, c.config.Test)
	if err != nil {
		return creds, err
	}
	if len(accounts) == 0 {
		return creds, nil
	}
	if len(accounts) > 1 {
		c.logger.Ctx(ctx).Warn("Multiple active Mondial Relay accounts, using the first",
			zap.Int("count", len(accounts)),
		)
	}

	params := accounts[0].Parameters
	if v := params["enseigne"]; v != "" {
		creds.Enseigne = v
	} else if accounts[0].AccountID != "" {
		creds.Enseigne = accounts[0].AccountID
	}
	if v := params["private_key"]; v != "" {
		creds.PrivateKey = v
	}
	if v := params["brand"]; v != "" {
		creds.Brand = v
	}
	return creds, nil
}

func (c *Client) mapError(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode >= 500 || apiErr.Code == "98" {
			return shipper.NewShipperError(carrierName, apiErr.Code, apiErr.Description).
				WithStatusCode(apiErr.StatusCode).
				WithRetryable(true).
				WithKind(shipper.ErrCarrierUnavailable)
		}
		return shipper.Rejected(carrierName, apiErr.Code, apiErr.Description).WithStatusCode(apiErr.StatusCode)
	}
	return shipper.Unavailable(carrierName, err)
}

func partyFromAddress(a shipper.Address) Party {
	return Party{
		Name:    a.Name,
		Company: a.Company,
		Street:  a.Street1,
		Street2: a.Street2,
		Zip:     a.Zip,
		City:    a.City,
		Country: a.Country,
		Phone:   a.Phone,
		Email:   a.Email,
	}
}

var (
	_ shipper.Shipper           = (*Client)(nil)
	_ shipper.PickupPointFinder = (*Client)(nil)
)
