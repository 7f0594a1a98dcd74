// Package shipping composes quoting, label purchase, tracking and webhook
// reconciliation into the workflows the API exposes.
package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"github.com/zoobzio/clockz"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/tournevent/shipping/internal/config"
	"github.com/tournevent/shipping/internal/parcel"
	"github.com/tournevent/shipping/internal/purchase"
	"github.com/tournevent/shipping/internal/rating"
	"github.com/tournevent/shipping/internal/shipment"
	"github.com/tournevent/shipping/internal/telemetry"
	"github.com/tournevent/shipping/pkg/shipper"
)

// NoRatesMessage is returned with an empty quote.
const NoRatesMessage = "no rates available, check address/parcel"

// Deps are the collaborators of a Service. Products, Audit, Receipts,
// Accounts and Metrics may be nil.
type Deps struct {
	Registry  *shipper.Registry
	Catalog   *config.Catalog
	Purchaser *purchase.Purchaser
	Lifecycle *shipment.Manager
	Shipments shipment.Store
	Products  ProductCatalog
	Audit     RateAudit
	Receipts  ReceiptStore
	Accounts  AccountStore
	Metrics   *telemetry.Metrics
	Logger    *otelzap.Logger

	TrackTimeout time.Duration
	ReceiptTTL   time.Duration
}

// Service runs the shipping workflows.
type Service struct {
	registry  *shipper.Registry
	catalog   *config.Catalog
	resolver  *parcel.Resolver
	purchaser *purchase.Purchaser
	lifecycle *shipment.Manager
	shipments shipment.Store
	products  ProductCatalog
	audit     RateAudit
	receipts  ReceiptStore
	accounts  AccountStore
	metrics   *telemetry.Metrics
	logger    *otelzap.Logger
	tracer    trace.Tracer
	clock     clockz.Clock

	trackTimeout time.Duration
	receiptTTL   time.Duration
}

// New creates a Service.
func New(d Deps) *Service {
	clock := clockz.RealClock
	if d.Lifecycle != nil {
		clock = d.Lifecycle.Clock()
	}
	return &Service{
		registry:     d.Registry,
		catalog:      d.Catalog,
		resolver:     parcel.NewResolver(d.Catalog),
		purchaser:    d.Purchaser,
		lifecycle:    d.Lifecycle,
		shipments:    d.Shipments,
		products:     d.Products,
		audit:        d.Audit,
		receipts:     d.Receipts,
		accounts:     d.Accounts,
		metrics:      d.Metrics,
		logger:       d.Logger,
		tracer:       otel.Tracer("shipping/orchestrator"),
		clock:        clock,
		trackTimeout: d.TrackTimeout,
		receiptTTL:   d.ReceiptTTL,
	}
}

// ParcelSpec selects the parcel of a request: an explicit parcel wins, then the
// product's shipping category, then the fallback size.
type ParcelSpec struct {
	Parcel       *shipper.Parcel
	Category     string
	FallbackSize string
}

// QuoteRequest asks for rates on a route.
type QuoteRequest struct {
	ProductID string
	From      shipper.Address
	To        shipper.Address
	Parcel    ParcelSpec
	Criterion rating.Criterion
}

// QuoteResult is the candidate list of a quote and the policy's pick.
type QuoteResult struct {
	QuoteID  string         `json:"shipmentQuoteId"`
	Rates    []rating.Rate  `json:"rates"`
	Selected *rating.Rate   `json:"selectedRate"`
	Parcel   shipper.Parcel `json:"parcel"`
	Message  string         `json:"message,omitempty"`
}

// Quote resolves the parcel, quotes every gateway and selects the best rate.
// An empty candidate list is not an error: Selected is nil and Message says so.
func (s *Service) Quote(ctx context.Context, req QuoteRequest) (*QuoteResult, error) {
	ctx, span := s.tracer.Start(ctx, "shipping.Quote")
	defer span.End()

	if err := s.checkRoute(req.From, req.To); err != nil {
		return nil, s.fail(span, err)
	}

	p, err := s.resolveParcel(ctx, req.ProductID, req.Parcel)
	if err != nil {
		return nil, s.fail(span, err)
	}

	quote, err := s.purchaser.QuoteRates(ctx, &shipper.QuoteRequest{From: req.From, To: req.To, Parcel: p})
	if err != nil {
		return nil, s.fail(span, err)
	}

	result := &QuoteResult{
		QuoteID:  uuid.New().String(),
		Rates:    quote.Candidates,
		Selected: rating.SelectBest(quote.Candidates, req.Criterion),
		Parcel:   p,
	}
	if result.Selected == nil {
		result.Message = NoRatesMessage
	}

	if s.audit != nil {
		if err := s.audit.RecordQuote(ctx, result.QuoteID, result.Rates, result.Selected); err != nil {
			s.logger.Ctx(ctx).Warn("Failed to record quote", zap.String("quote_id", result.QuoteID), zap.Error(err))
		}
	}

	span.SetAttributes(
		attribute.String("shipping.quote_id", result.QuoteID),
		attribute.Int("shipping.candidates", len(result.Rates)),
	)
	s.logger.Ctx(ctx).Info("Quoted shipment",
		zap.String("quote_id", result.QuoteID),
		zap.String("to_country", req.To.Country),
		zap.Int("candidates", len(result.Rates)),
		zap.Int("gateway_errors", len(quote.Errors)),
	)
	return result, nil
}

// CreateRequest asks for a label purchase and a persisted shipment.
type CreateRequest struct {
	ProductID     string
	BuyerID       string
	From          shipper.Address
	To            shipper.Address
	Parcel        ParcelSpec
	RateReference string
	OrderNumber   string
	PickupPointID string
	Criterion     rating.Criterion
}

// CreateResult is the persisted shipment with the label and the rate it used.
type CreateResult struct {
	Shipment    *shipment.Shipment   `json:"shipment"`
	Transaction *shipper.Transaction `json:"transaction"`
	Rate        rating.Rate          `json:"rate"`
}

// Create validates the route, purchases a label, persists the parcel and the
// shipment together and then registers the tracking webhook best-effort.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*CreateResult, error) {
	ctx, span := s.tracer.Start(ctx, "shipping.Create")
	defer span.End()

	if err := s.checkRoute(req.From, req.To); err != nil {
		return nil, s.fail(span, err)
	}

	var product *Product
	if s.products != nil {
		p, err := s.products.Product(ctx, req.ProductID)
		if err != nil {
			return nil, s.fail(span, err)
		}
		product = p
	}

	spec := req.Parcel
	if spec.Category == "" && product != nil {
		spec.Category = product.ShippingCategory
	}
	p, err := s.resolveParcel(ctx, "", spec)
	if err != nil {
		return nil, s.fail(span, err)
	}

	id := uuid.New().String()
	orderNumber := req.OrderNumber
	if orderNumber == "" {
		orderNumber = s.orderNumber(id)
	}

	result, err := s.purchaser.Purchase(ctx, purchase.Request{
		From:           req.From,
		To:             req.To,
		Parcel:         p,
		RateReference:  req.RateReference,
		Criterion:      req.Criterion,
		OrderReference: orderNumber,
		PickupPointID:  req.PickupPointID,
	})
	if err != nil {
		return nil, s.fail(span, err)
	}

	tx, rate := result.Transaction, result.Rate
	sh := &shipment.Shipment{
		ID:              id,
		ProductID:       req.ProductID,
		BuyerID:         req.BuyerID,
		OrderNumber:     orderNumber,
		Gateway:         result.Gateway.Name(),
		Carrier:         rate.Carrier,
		ServiceName:     rate.ServiceName,
		ServiceToken:    rate.ServiceToken,
		CarrierObjectID: tx.ObjectID,
		TrackingNumber:  tx.TrackingNumber,
		TrackingURL:     tx.TrackingURL,
		LabelURL:        tx.LabelURL,
		PickupPointID:   req.PickupPointID,
		Amount:          rate.Amount,
		Currency:        rate.Currency,
		From:            req.From,
		To:              req.To,
		Metadata: map[string]interface{}{
			"transactionStatus": tx.Status,
			"rateReference":     rate.Reference,
			"zone":              rate.Zone,
		},
	}
	if product != nil {
		sh.SellerID = product.SellerID
	}
	if tx.ETA != "" {
		sh.Metadata["eta"] = tx.ETA
	}
	if rate.EstimateKnown {
		sh.Metadata["estimatedDays"] = rate.EstimatedDays
	}

	pr := &shipment.Parcel{ID: uuid.New().String(), Parcel: p}
	if err := s.lifecycle.Create(ctx, pr, sh); err != nil {
		// The label is already bought; keep enough context to reconcile by hand.
		s.logger.Ctx(ctx).Error("Label purchased but shipment not persisted",
			zap.String("gateway", sh.Gateway),
			zap.String("carrier_object_id", tx.ObjectID),
			zap.String("tracking_number", tx.TrackingNumber),
			zap.Error(err),
		)
		return nil, s.fail(span, err)
	}

	s.purchaser.RegisterWebhook(ctx, result.Gateway, rate.Carrier, tx.TrackingNumber, "Order "+orderNumber)

	span.SetAttributes(
		attribute.String("shipping.shipment_id", sh.ID),
		attribute.String("shipping.carrier", sh.Carrier),
	)
	return &CreateResult{Shipment: sh, Transaction: tx, Rate: rate}, nil
}

// Get loads a shipment.
func (s *Service) Get(ctx context.Context, id string) (*shipment.Shipment, error) {
	return s.shipments.Get(ctx, id)
}

// TrackResult is a shipment after a tracking refresh, with the carrier's answer.
type TrackResult struct {
	Shipment *shipment.Shipment      `json:"shipment"`
	Tracking *shipper.TrackingStatus `json:"tracking"`
	Changed  bool                    `json:"changed"`
}

// Track asks the shipment's carrier for its status and applies it.
func (s *Service) Track(ctx context.Context, id string) (*TrackResult, error) {
	ctx, span := s.tracer.Start(ctx, "shipping.Track")
	defer span.End()
	span.SetAttributes(attribute.String("shipping.shipment_id", id))

	sh, err := s.shipments.Get(ctx, id)
	if err != nil {
		return nil, s.fail(span, err)
	}
	if !sh.Trackable() {
		return nil, s.fail(span, fmt.Errorf("%w: shipment %s", shipper.ErrTrackingNotAvailable, id))
	}

	gw, err := s.registry.Get(sh.Gateway)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("%w: %w", shipper.ErrCarrierUnavailable, err))
	}

	callCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.trackTimeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, s.trackTimeout)
	}
	defer cancel()

	start := time.Now()
	status, err := gw.Track(callCtx, &shipper.TrackRequest{
		Carrier:         sh.Carrier,
		TrackingNumber:  sh.TrackingNumber,
		CarrierObjectID: sh.CarrierObjectID,
	})
	if err != nil {
		if !errors.Is(err, shipper.ErrCarrierUnavailable) && shipper.IsTransport(err) {
			err = shipper.Unavailable(gw.Name(), err)
		}
		s.metrics.RecordRequest("track", gw.Name(), "error", time.Since(start).Seconds())
		return nil, s.fail(span, err)
	}
	s.metrics.RecordRequest("track", gw.Name(), "success", time.Since(start).Seconds())

	updated, changed, err := s.lifecycle.ApplyStatusUpdate(ctx, sh.ID, gw.Variant(), status.Status, status.StatusDate)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return &TrackResult{Shipment: updated, Tracking: status, Changed: changed}, nil
}

// WebhookEvent is one carrier tracking push.
type WebhookEvent struct {
	TrackingNumber string
	Carrier        string
	Status         string
	StatusDate     *time.Time
	Metadata       string
}

// WebhookResult reports what a webhook delivery did.
type WebhookResult struct {
	Accepted   bool            `json:"accepted"`
	Duplicate  bool            `json:"duplicate,omitempty"`
	ShipmentID string          `json:"shipmentId,omitempty"`
	Status     shipment.Status `json:"status,omitempty"`
	Changed    bool            `json:"changed"`
}

// Webhook reconciles a tracking push with the stored shipment. Unknown
// tracking numbers fail with ErrNotFound and create nothing. Deliveries are
// deduplicated on (tracking number, status, status date).
func (s *Service) Webhook(ctx context.Context, e WebhookEvent) (*WebhookResult, error) {
	ctx, span := s.tracer.Start(ctx, "shipping.Webhook")
	defer span.End()
	span.SetAttributes(
		attribute.String("shipping.tracking_number", e.TrackingNumber),
		attribute.String("shipping.native_status", e.Status),
	)

	sh, err := s.shipments.FindByTrackingNumber(ctx, strings.TrimSpace(e.TrackingNumber))
	if err != nil {
		if errors.Is(err, shipper.ErrNotFound) {
			s.metrics.RecordWebhook("unknown")
			s.logger.Ctx(ctx).Warn("Webhook for unknown tracking number",
				zap.String("tracking_number", e.TrackingNumber),
				zap.String("carrier", e.Carrier),
			)
		}
		return nil, s.fail(span, err)
	}

	key := receiptKey(e)
	if s.receipts != nil {
		seen, err := s.receipts.IsProcessed(ctx, key)
		if err != nil {
			s.logger.Ctx(ctx).Warn("Webhook receipt lookup failed", zap.Error(err))
		}
		if seen {
			s.metrics.RecordWebhook("duplicate")
			return &WebhookResult{Accepted: true, Duplicate: true, ShipmentID: sh.ID, Status: sh.Status}, nil
		}
	}

	family := shipper.VariantAggregator
	if gw, err := s.registry.Get(sh.Gateway); err == nil {
		family = gw.Variant()
	}

	updated, changed, err := s.lifecycle.ApplyStatusUpdate(ctx, sh.ID, family, e.Status, e.StatusDate)
	if err != nil {
		s.metrics.RecordWebhook("error")
		return nil, s.fail(span, err)
	}

	if s.receipts != nil {
		if _, err := s.receipts.MarkProcessed(ctx, key, s.receiptTTL); err != nil {
			s.logger.Ctx(ctx).Warn("Failed to record webhook receipt", zap.Error(err))
		}
	}

	outcome := "ignored"
	if changed {
		outcome = "applied"
	}
	s.metrics.RecordWebhook(outcome)

	return &WebhookResult{Accepted: true, ShipmentID: updated.ID, Status: updated.Status, Changed: changed}, nil
}

func receiptKey(e WebhookEvent) string {
	date := ""
	if e.StatusDate != nil {
		date = e.StatusDate.UTC().Format(time.RFC3339)
	}
	return strings.Join([]string{
		strings.TrimSpace(e.TrackingNumber),
		strings.ToUpper(strings.TrimSpace(e.Status)),
		date,
	}, "|")
}

// checkRoute rejects addresses outside the allow-list before any carrier call.
func (s *Service) checkRoute(from, to shipper.Address) error {
	for _, addr := range []shipper.Address{from, to} {
		if !s.catalog.Supported(addr.Country) {
			msg := s.catalog.UnsupportedMessage
			if msg == "" {
				msg = "shipping is not available for this country"
			}
			return fmt.Errorf("%w: %s (%q)", shipper.ErrUnsupportedDestination, msg, addr.Country)
		}
	}
	return nil
}

func (s *Service) resolveParcel(ctx context.Context, productID string, spec ParcelSpec) (shipper.Parcel, error) {
	if spec.Parcel != nil {
		p := *spec.Parcel
		if p.DistanceUnit == "" {
			p.DistanceUnit = shipper.DimensionCM
		}
		if p.MassUnit == "" {
			p.MassUnit = shipper.WeightKG
		}
		if err := p.Validate(); err != nil {
			return shipper.Parcel{}, err
		}
		return p, nil
	}

	category := spec.Category
	if category == "" && productID != "" && s.products != nil {
		product, err := s.products.Product(ctx, productID)
		switch {
		case err == nil:
			category = product.ShippingCategory
		case errors.Is(err, shipper.ErrNotFound):
			s.logger.Ctx(ctx).Debug("Unknown product, using fallback parcel", zap.String("product_id", productID))
		default:
			s.logger.Ctx(ctx).Warn("Product lookup failed, using fallback parcel", zap.Error(err))
		}
	}
	return s.resolver.Resolve(category, spec.FallbackSize), nil
}

// orderNumber builds "#<unix millis>-<first 8 hex of the shipment id>".
func (s *Service) orderNumber(id string) string {
	short := strings.ReplaceAll(id, "-", "")
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("#%d-%s", s.clock.Now().UnixMilli(), short)
}

// ParcelTemplates lists the configured category templates and fallback sizes.
func (s *Service) ParcelTemplates() ([]config.ParcelTemplate, map[string]config.ParcelSize) {
	return s.resolver.Templates(), s.resolver.FallbackSizes()
}

// PickupPoints searches relay points at the first gateway that offers them.
func (s *Service) PickupPoints(ctx context.Context, q shipper.PickupQuery) ([]shipper.PickupPoint, error) {
	for _, gw := range s.registry.All() {
		finder, ok := gw.(shipper.PickupPointFinder)
		if !ok {
			continue
		}
		points, err := finder.PickupPoints(ctx, q)
		if err != nil && !errors.Is(err, shipper.ErrCarrierUnavailable) && shipper.IsTransport(err) {
			err = shipper.Unavailable(gw.Name(), err)
		}
		return points, err
	}
	return nil, fmt.Errorf("%w: no gateway offers pickup points", shipper.ErrCarrierNotFound)
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
