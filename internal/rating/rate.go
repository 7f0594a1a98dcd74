// Package rating turns carrier-native rates into one canonical shape and
// selects among them.
package rating

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipping/pkg/shipper"
)

// Rate is a normalized, carrier-independent shipping offer.
type Rate struct {
	// Reference is gateway-qualified: "<gateway>:<native id>".
	Reference     string          `json:"objectId"`
	Gateway       string          `json:"gateway"`
	Carrier       string          `json:"carrier"`
	ServiceName   string          `json:"serviceName"`
	ServiceToken  string          `json:"serviceToken"`
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	EstimatedDays int             `json:"estimatedDays"`
	EstimateKnown bool            `json:"estimateKnown"`
	Terms         string          `json:"terms,omitempty"`
	Zone          string          `json:"zone,omitempty"`
	Attributes    []string        `json:"attributes,omitempty"`
}

// ErrMalformedRate is returned for a native rate that cannot be normalized.
var ErrMalformedRate = errors.New("malformed rate")

// Normalize converts a carrier-native rate into a Rate. The input is not modified.
func Normalize(n shipper.NativeRate) (Rate, error) {
	switch n.Variant {
	case shipper.VariantAggregator:
		if n.Aggregated == nil {
			return Rate{}, fmt.Errorf("%w: %s aggregator rate without payload", ErrMalformedRate, n.Gateway)
		}
		return normalizeAggregated(n.Gateway, n.Aggregated)
	case shipper.VariantDirect:
		if n.Direct == nil {
			return Rate{}, fmt.Errorf("%w: %s direct rate without payload", ErrMalformedRate, n.Gateway)
		}
		return normalizeDirect(n.Gateway, n.Direct)
	default:
		return Rate{}, fmt.Errorf("%w: %s has unknown variant %q", ErrMalformedRate, n.Gateway, n.Variant)
	}
}

func normalizeAggregated(gateway string, r *shipper.AggregatorRate) (Rate, error) {
	amount, err := decimal.NewFromString(strings.TrimSpace(r.Amount))
	if err != nil {
		return Rate{}, fmt.Errorf("%w: %s rate %s amount %q", ErrMalformedRate, gateway, r.ObjectID, r.Amount)
	}
	if amount.IsNegative() {
		return Rate{}, fmt.Errorf("%w: %s rate %s has negative amount", ErrMalformedRate, gateway, r.ObjectID)
	}

	carrier := r.Provider
	if carrier == "" {
		carrier = r.Carrier
	}

	service := r.ServiceLevel
	if service == nil {
		service = r.LegacyService
	}

	rate := Rate{
		Reference:  Qualify(gateway, r.ObjectID),
		Gateway:    gateway,
		Carrier:    carrier,
		Amount:     amount.Round(2),
		Currency:   strings.ToUpper(r.Currency),
		Terms:      r.DurationTerms,
		Attributes: append([]string(nil), r.Attributes...),
	}
	if service != nil {
		rate.ServiceName = service.Name
		rate.ServiceToken = service.Token
		if rate.Terms == "" {
			rate.Terms = service.Terms
		}
	}
	setEstimate(&rate, r.EstimatedDays)
	return rate, nil
}

func normalizeDirect(gateway string, r *shipper.DirectRate) (Rate, error) {
	if r.Amount.IsNegative() {
		return Rate{}, fmt.Errorf("%w: %s rate %s has negative amount", ErrMalformedRate, gateway, r.Reference)
	}

	rate := Rate{
		Reference:    Qualify(gateway, r.Reference),
		Gateway:      gateway,
		Carrier:      r.Carrier,
		ServiceName:  r.ServiceName,
		ServiceToken: r.ServiceToken,
		Amount:       r.Amount.Round(2),
		Currency:     strings.ToUpper(r.Currency),
		Terms:        r.Terms,
		Attributes:   append([]string(nil), r.Attributes...),
	}
	setEstimate(&rate, r.EstimatedDays)
	return rate, nil
}

func setEstimate(r *Rate, days *int) {
	if days == nil || *days < 0 {
		return
	}
	r.EstimatedDays = *days
	r.EstimateKnown = true
}

// NormalizeAll normalizes every native rate, tagging each with zone.
// Rates that fail normalization are skipped and reported.
func NormalizeAll(natives []shipper.NativeRate, zone string) ([]Rate, []error) {
	rates := make([]Rate, 0, len(natives))
	var errs []error
	for _, n := range natives {
		r, err := Normalize(n)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r.Zone = zone
		rates = append(rates, r)
	}
	return rates, errs
}

// Qualify builds a gateway-qualified rate reference.
func Qualify(gateway, id string) string {
	return gateway + ":" + id
}

// SplitReference splits a gateway-qualified reference. ok is false when ref
// carries no gateway prefix.
func SplitReference(ref string) (gateway, id string, ok bool) {
	gateway, id, ok = strings.Cut(ref, ":")
	if !ok || gateway == "" || id == "" {
		return "", ref, false
	}
	return gateway, id, true
}
