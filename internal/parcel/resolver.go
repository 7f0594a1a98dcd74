// Package parcel resolves default parcel dimensions for product categories.
package parcel

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipping/internal/config"
	"github.com/tournevent/shipping/pkg/shipper"
)

// lastResort is used only if the catalog has no usable fallback size.
var lastResort = config.ParcelSize{Length: 40, Width: 30, Height: 20, Weight: 2}

// Resolver maps a product category to a parcel.
type Resolver struct {
	catalog *config.Catalog
}

// NewResolver creates a resolver over the catalog's templates.
func NewResolver(catalog *config.Catalog) *Resolver {
	return &Resolver{catalog: catalog}
}

// Resolve returns the template for category, matched on the category id or one
// of its aliases, or the fallback size when nothing matches. Unknown sizes fall
// back to medium. The result always has positive dimensions.
func (r *Resolver) Resolve(category, fallbackSize string) shipper.Parcel {
	if t, ok := r.Template(category); ok {
		return toParcel(t.ParcelSize)
	}

	size := strings.ToLower(strings.TrimSpace(fallbackSize))
	if s, ok := r.catalog.FallbackSizes[size]; ok && valid(s) {
		return toParcel(s)
	}
	if s, ok := r.catalog.FallbackSizes[config.SizeMedium]; ok && valid(s) {
		return toParcel(s)
	}
	return toParcel(lastResort)
}

// Template looks up the template for a category id or alias.
func (r *Resolver) Template(category string) (config.ParcelTemplate, bool) {
	category = strings.TrimSpace(category)
	if category == "" {
		return config.ParcelTemplate{}, false
	}
	for _, t := range r.catalog.ParcelTemplates {
		if strings.EqualFold(t.Category, category) {
			return t, true
		}
		for _, alias := range t.Aliases {
			if strings.EqualFold(alias, category) {
				return t, true
			}
		}
	}
	return config.ParcelTemplate{}, false
}

// Templates lists the configured category templates.
func (r *Resolver) Templates() []config.ParcelTemplate {
	return r.catalog.ParcelTemplates
}

// FallbackSizes lists the fixed-size templates.
func (r *Resolver) FallbackSizes() map[string]config.ParcelSize {
	return r.catalog.FallbackSizes
}

func valid(s config.ParcelSize) bool {
	return s.Length > 0 && s.Width > 0 && s.Height > 0 && s.Weight > 0
}

func toParcel(s config.ParcelSize) shipper.Parcel {
	return shipper.Parcel{
		Length:       decimal.NewFromFloat(s.Length),
		Width:        decimal.NewFromFloat(s.Width),
		Height:       decimal.NewFromFloat(s.Height),
		Weight:       decimal.NewFromFloat(s.Weight),
		DistanceUnit: shipper.DimensionCM,
		MassUnit:     shipper.WeightKG,
	}
}
