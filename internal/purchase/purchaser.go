// Package purchase chooses a rate and buys its label.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tournevent/shipping/internal/rating"
	"github.com/tournevent/shipping/internal/telemetry"
	"github.com/tournevent/shipping/pkg/shipper"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Timeouts bounds every carrier call the purchaser makes.
type Timeouts struct {
	Quote    time.Duration
	Purchase time.Duration
}

// Purchaser quotes across the registered gateways and purchases labels.
type Purchaser struct {
	registry *shipper.Registry
	selector *rating.Selector
	timeouts Timeouts
	metrics  *telemetry.Metrics
	logger   *otelzap.Logger
	tracer   trace.Tracer
}

// New creates a purchaser. metrics may be nil.
func New(registry *shipper.Registry, selector *rating.Selector, timeouts Timeouts, metrics *telemetry.Metrics, logger *otelzap.Logger) *Purchaser {
	return &Purchaser{
		registry: registry,
		selector: selector,
		timeouts: timeouts,
		metrics:  metrics,
		logger:   logger,
		tracer:   otel.Tracer("shipping/purchase"),
	}
}

// Quote is the outcome of one quoting round.
type Quote struct {
	// Candidates are the normalized rates that survived zone filtering.
	Candidates []rating.Rate
	// Discarded counts rates dropped by normalization or the zone filter.
	Discarded int
	// Errors holds per-gateway failures; they never fail the round on their own.
	Errors []error
}

// Request describes a label purchase.
type Request struct {
	From   shipper.Address
	To     shipper.Address
	Parcel shipper.Parcel
	// RateReference, when set, skips quoting and buys that rate.
	RateReference  string
	Criterion      rating.Criterion
	OrderReference string
	PickupPointID  string
	Metadata       string
}

// Result is a purchased label and the rate it was bought at.
type Result struct {
	Transaction *shipper.Transaction
	Rate        rating.Rate
	Gateway     shipper.Shipper
}

// QuoteRates fans the request out to every gateway, normalizes the answers and
// keeps the rates whose carrier serves the destination zone. When every gateway
// fails the round fails: with the carrier's rejection if all of them rejected,
// with ErrCarrierUnavailable otherwise.
func (p *Purchaser) QuoteRates(ctx context.Context, req *shipper.QuoteRequest) (*Quote, error) {
	ctx, span := p.tracer.Start(ctx, "purchase.QuoteRates")
	defer span.End()
	span.SetAttributes(
		attribute.String("shipping.to_country", req.To.Country),
		attribute.Int("shipping.gateways", p.registry.Count()),
	)

	start := time.Now()
	natives, errs := p.registry.QuoteAll(ctx, req, p.timeouts.Quote)
	for _, err := range errs {
		p.logger.Ctx(ctx).Warn("Gateway failed to quote", zap.Error(err))
		p.metrics.RecordError(gatewayOf(err), errorType(err))
	}

	if len(natives) == 0 && len(errs) > 0 && len(errs) >= p.registry.Count() {
		p.metrics.RecordRequest("quote", "all", "error", time.Since(start).Seconds())
		err := allFailed(errs)
		span.RecordError(err)
		span.SetStatus(codes.Error, "every gateway failed")
		return nil, err
	}

	rates, malformed := rating.NormalizeAll(natives, p.selector.Zone(req.To.Country))
	for _, err := range malformed {
		p.logger.Ctx(ctx).Warn("Dropping malformed rate", zap.Error(err))
	}
	candidates := p.selector.FilterByZone(rates, req.To.Country)

	p.metrics.RecordRequest("quote", "all", "success", time.Since(start).Seconds())
	span.SetAttributes(
		attribute.Int("shipping.rates", len(natives)),
		attribute.Int("shipping.candidates", len(candidates)),
	)

	return &Quote{
		Candidates: candidates,
		Discarded:  len(natives) - len(candidates),
		Errors:     errs,
	}, nil
}

// allFailed keeps the per-gateway detail as text only, so a mixed round matches
// ErrCarrierUnavailable and never ErrCarrierRejected.
func allFailed(errs []error) error {
	for _, err := range errs {
		if !errors.Is(err, shipper.ErrCarrierRejected) {
			return fmt.Errorf("%w: %v", shipper.ErrCarrierUnavailable, errors.Join(errs...))
		}
	}
	return errs[0]
}

// Purchase resolves the rate to buy and purchases its label. A supplied
// reference must still resolve at its gateway for this destination and parcel
// and its carrier must serve the destination zone, otherwise ErrRateExpired. Without
// a reference the best quoted candidate under req.Criterion is bought, and
// ErrNoRatesAvailable is returned when there is none.
func (p *Purchaser) Purchase(ctx context.Context, req Request) (*Result, error) {
	ctx, span := p.tracer.Start(ctx, "purchase.Purchase")
	defer span.End()

	var (
		rate *rating.Rate
		gw   shipper.Shipper
		err  error
	)
	if req.RateReference != "" {
		rate, gw, err = p.resolve(ctx, req)
	} else {
		rate, gw, err = p.choose(ctx, req)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("shipping.gateway", gw.Name()),
		attribute.String("shipping.carrier", rate.Carrier),
		attribute.String("shipping.rate", rate.Reference),
	)

	tx, err := p.buy(ctx, gw, rate, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return &Result{Transaction: tx, Rate: *rate, Gateway: gw}, nil
}

func (p *Purchaser) choose(ctx context.Context, req Request) (*rating.Rate, shipper.Shipper, error) {
	quote, err := p.QuoteRates(ctx, &shipper.QuoteRequest{From: req.From, To: req.To, Parcel: req.Parcel})
	if err != nil {
		return nil, nil, err
	}

	best := rating.SelectBest(quote.Candidates, req.Criterion)
	if best == nil {
		return nil, nil, fmt.Errorf("%w for %s", shipper.ErrNoRatesAvailable, req.To.Country)
	}

	gw, err := p.registry.Get(best.Gateway)
	if err != nil {
		return nil, nil, err
	}
	return best, gw, nil
}

// resolve re-validates a caller-supplied rate reference. Unqualified references
// are tried against every gateway in registration order.
func (p *Purchaser) resolve(ctx context.Context, req Request) (*rating.Rate, shipper.Shipper, error) {
	reference, country := req.RateReference, req.To.Country
	candidates := p.registry.All()
	id := reference
	if gateway, native, ok := rating.SplitReference(reference); ok {
		gw, err := p.registry.Get(gateway)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: unknown gateway in reference %q", shipper.ErrRateExpired, reference)
		}
		candidates = []shipper.Shipper{gw}
		id = native
	}

	var lastErr error
	for _, gw := range candidates {
		native, err := p.lookup(ctx, gw, &shipper.RateLookup{RateID: id, To: req.To, Parcel: req.Parcel})
		if err != nil {
			lastErr = err
			if errors.Is(err, shipper.ErrRateExpired) {
				continue
			}
			return nil, nil, err
		}

		rate, err := rating.Normalize(*native)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", shipper.ErrRateExpired, err)
		}
		rate.Zone = p.selector.Zone(country)
		if len(p.selector.FilterByZone([]rating.Rate{rate}, country)) == 0 {
			return nil, nil, fmt.Errorf("%w: %s does not serve %s", shipper.ErrRateExpired, rate.Carrier, country)
		}
		return &rate, gw, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("%w: %s", shipper.ErrRateExpired, reference)
	}
	return nil, nil, lastErr
}

func (p *Purchaser) lookup(ctx context.Context, gw shipper.Shipper, req *shipper.RateLookup) (*shipper.NativeRate, error) {
	ctx, cancel := withTimeout(ctx, p.timeouts.Quote)
	defer cancel()

	native, err := gw.LookupRate(ctx, req)
	if err != nil {
		return nil, transport(gw.Name(), err)
	}
	return native, nil
}

func (p *Purchaser) buy(ctx context.Context, gw shipper.Shipper, rate *rating.Rate, req Request) (*shipper.Transaction, error) {
	_, native, ok := rating.SplitReference(rate.Reference)
	if !ok {
		native = rate.Reference
	}

	// Bounded by the purchase timeout, detached from caller cancellation.
	callCtx, cancel := withTimeout(context.WithoutCancel(ctx), p.timeouts.Purchase)
	defer cancel()

	start := time.Now()
	tx, err := gw.PurchaseLabel(callCtx, &shipper.LabelRequest{
		RateID:         native,
		From:           req.From,
		To:             req.To,
		Parcel:         req.Parcel,
		OrderReference: req.OrderReference,
		PickupPointID:  req.PickupPointID,
		Format:         shipper.LabelPDF,
		Metadata:       req.Metadata,
	})
	if err != nil {
		err = transport(gw.Name(), err)
		p.metrics.RecordRequest("purchase", gw.Name(), "error", time.Since(start).Seconds())
		p.metrics.RecordError(gw.Name(), errorType(err))
		p.logger.Ctx(ctx).Error("Label purchase failed",
			zap.String("gateway", gw.Name()),
			zap.String("rate", rate.Reference),
			zap.Error(err),
		)
		return nil, err
	}

	p.metrics.RecordRequest("purchase", gw.Name(), "success", time.Since(start).Seconds())
	p.logger.Ctx(ctx).Info("Label purchased",
		zap.String("gateway", gw.Name()),
		zap.String("carrier", rate.Carrier),
		zap.String("tracking_number", tx.TrackingNumber),
		zap.String("amount", rate.Amount.StringFixed(2)),
	)
	return tx, nil
}

// RegisterWebhook subscribes to tracking pushes for a purchased label. Failures
// are logged and swallowed.
func (p *Purchaser) RegisterWebhook(ctx context.Context, gw shipper.Shipper, carrier, trackingNumber, metadata string) {
	if trackingNumber == "" {
		return
	}
	ctx, cancel := withTimeout(ctx, p.timeouts.Quote)
	defer cancel()

	err := gw.RegisterWebhook(ctx, &shipper.WebhookRequest{
		Carrier:        carrier,
		TrackingNumber: trackingNumber,
		Metadata:       metadata,
	})
	if err != nil {
		p.metrics.RecordError(gw.Name(), "webhook")
		p.logger.Ctx(ctx).Warn("Failed to register tracking webhook",
			zap.String("gateway", gw.Name()),
			zap.String("tracking_number", trackingNumber),
			zap.Error(err),
		)
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// transport classifies bare timeouts and network failures as ErrCarrierUnavailable.
func transport(gateway string, err error) error {
	if !errors.Is(err, shipper.ErrCarrierUnavailable) && shipper.IsTransport(err) {
		return shipper.Unavailable(gateway, err)
	}
	return err
}

func gatewayOf(err error) string {
	var se *shipper.ShipperError
	if errors.As(err, &se) && se.Carrier != "" {
		return se.Carrier
	}
	return "unknown"
}

func errorType(err error) string {
	switch {
	case errors.Is(err, shipper.ErrCarrierUnavailable):
		return "unavailable"
	case errors.Is(err, shipper.ErrCarrierRejected):
		return "rejected"
	case errors.Is(err, shipper.ErrRateExpired):
		return "rate_expired"
	case errors.Is(err, shipper.ErrLabelPurchaseFailed):
		return "label_failed"
	default:
		return "other"
	}
}
