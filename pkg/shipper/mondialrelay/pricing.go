package mondialrelay

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Prices are a static approximation for metropolitan France, in EUR.
// The contracted integration has no live rating call.
var weightBands = []struct {
	maxGrams int64
	price    decimal.Decimal
}{
	{500, decimal.RequireFromString("4.95")},
	{1000, decimal.RequireFromString("5.95")},
	{2000, decimal.RequireFromString("6.95")},
	{5000, decimal.RequireFromString("8.95")},
	{10000, decimal.RequireFromString("11.95")},
	{20000, decimal.RequireFromString("16.95")},
}

var overweightPrice = decimal.RequireFromString("21.95")

// service is a delivery offer derived from the weight band.
type service struct {
	Token  string
	Name   string
	Mode   string // ModeLiv
	Days   int
	Factor decimal.Decimal
	Terms  string
	Relay  bool
}

var services = []service{
	{
		Token:  "mondialrelay_24r",
		Name:   "Point Relais",
		Mode:   "24R",
		Days:   4,
		Factor: decimal.NewFromInt(1),
		Terms:  "Delivery to a pickup point in 3 to 5 business days",
		Relay:  true,
	},
	{
		Token:  "mondialrelay_hom",
		Name:   "Home Delivery",
		Mode:   "HOM",
		Days:   3,
		Factor: decimal.RequireFromString("1.5"),
		Terms:  "Home delivery in 2 to 4 business days",
	},
}

// StandardPrice returns the banded price for a parcel weight in grams.
func StandardPrice(grams int64) decimal.Decimal {
	for _, b := range weightBands {
		if grams <= b.maxGrams {
			return b.price
		}
	}
	return overweightPrice
}

// band returns the index of the weight band grams falls in.
func band(grams int64) int {
	for i, b := range weightBands {
		if grams <= b.maxGrams {
			return i
		}
	}
	return len(weightBands)
}

func (s service) price(grams int64) decimal.Decimal {
	return StandardPrice(grams).Mul(s.Factor).Round(2)
}

func serviceByToken(token string) (service, bool) {
	for _, s := range services {
		if s.Token == token {
			return s, true
		}
	}
	return service{}, false
}

// rateRef is the decoded form of a quoted rate id: <token>.<grams>.<country>.<unix>.
type rateRef struct {
	service  service
	grams    int64
	country  string
	quotedAt time.Time
}

func (r rateRef) String() string {
	return fmt.Sprintf("%s.%d.%s.%d", r.service.Token, r.grams, r.country, r.quotedAt.Unix())
}

// covers reports whether the quote priced a parcel of grams to country.
// Zero values are not checked.
func (r rateRef) covers(country string, grams int64) error {
	if country != "" && !strings.EqualFold(country, r.country) {
		return fmt.Errorf("quoted for %s, not %s", r.country, strings.ToUpper(country))
	}
	if grams > 0 && band(grams) != band(r.grams) {
		return fmt.Errorf("quoted for %dg, parcel weighs %dg", r.grams, grams)
	}
	return nil
}

func parseRateRef(id string) (rateRef, error) {
	parts := strings.Split(id, ".")
	if len(parts) != 4 {
		return rateRef{}, fmt.Errorf("malformed rate id %q", id)
	}
	svc, ok := serviceByToken(parts[0])
	if !ok {
		return rateRef{}, fmt.Errorf("unknown service %q", parts[0])
	}
	grams, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || grams <= 0 {
		return rateRef{}, fmt.Errorf("malformed weight in rate id %q", id)
	}
	ts, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return rateRef{}, fmt.Errorf("malformed timestamp in rate id %q", id)
	}
	return rateRef{service: svc, grams: grams, country: parts[2], quotedAt: time.Unix(ts, 0)}, nil
}
