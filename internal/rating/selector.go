package rating

import (
	"strings"
	"unicode"

	"github.com/tournevent/shipping/internal/config"
)

// Criterion is a rate selection policy.
type Criterion string

const (
	Cheapest Criterion = "cheapest"
	Fastest  Criterion = "fastest"
)

// ParseCriterion returns the criterion named s, defaulting to Cheapest.
func ParseCriterion(s string) Criterion {
	if Criterion(strings.ToLower(strings.TrimSpace(s))) == Fastest {
		return Fastest
	}
	return Cheapest
}

// Selector applies zone filtering and selection policy.
type Selector struct {
	catalog *config.Catalog
}

// NewSelector creates a selector over the catalog's zone tags.
func NewSelector(catalog *config.Catalog) *Selector {
	return &Selector{catalog: catalog}
}

// Zone classifies a destination country.
func (s *Selector) Zone(country string) string {
	if strings.EqualFold(strings.TrimSpace(country), s.catalog.HomeCountry) {
		return config.ZoneDomestic
	}
	return config.ZoneRegional
}

// FilterByZone keeps the rates whose carrier serves the destination's zone.
// Domestic destinations keep domestic carriers only. Other supported destinations
// keep regional carriers and domestic carriers flagged international. Destinations
// off the allow-list yield no rates.
func (s *Selector) FilterByZone(rates []Rate, country string) []Rate {
	out := make([]Rate, 0, len(rates))
	if !s.catalog.Supported(country) {
		return out
	}

	domestic := s.Zone(country) == config.ZoneDomestic
	for _, r := range rates {
		carrier, ok := s.carrierFor(r.Carrier)
		if !ok {
			continue
		}
		if domestic {
			if carrier.HasZone(config.ZoneDomestic) {
				out = append(out, r)
			}
			continue
		}
		if carrier.HasZone(config.ZoneRegional) || (carrier.HasZone(config.ZoneDomestic) && carrier.International) {
			out = append(out, r)
		}
	}
	return out
}

// carrierFor matches a rate's carrier name against catalog ids by substring,
// ignoring case, spaces and punctuation.
func (s *Selector) carrierFor(name string) (config.CarrierZone, bool) {
	key := compact(name)
	if key == "" {
		return config.CarrierZone{}, false
	}
	for _, c := range s.catalog.Carriers {
		if id := compact(c.ID); id != "" && strings.Contains(key, id) {
			return c, true
		}
	}
	return config.CarrierZone{}, false
}

func compact(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// SelectBest returns the best rate under criterion, or nil when rates is empty.
// Ties keep the first rate encountered. For Fastest an unknown estimate never wins.
func SelectBest(rates []Rate, criterion Criterion) *Rate {
	if len(rates) == 0 {
		return nil
	}

	best := 0
	for i := 1; i < len(rates); i++ {
		if better(rates[i], rates[best], criterion) {
			best = i
		}
	}
	r := rates[best]
	return &r
}

func better(a, b Rate, criterion Criterion) bool {
	if criterion == Fastest {
		switch {
		case !a.EstimateKnown:
			return false
		case !b.EstimateKnown:
			return true
		default:
			return a.EstimatedDays < b.EstimatedDays
		}
	}
	return a.Amount.LessThan(b.Amount)
}
