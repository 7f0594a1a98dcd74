package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// Zone tags a carrier can carry.
const (
	ZoneDomestic = "domestic"
	ZoneRegional = "regional"
)

// Fallback parcel sizes.
const (
	SizeSmall  = "small"
	SizeMedium = "medium"
	SizeLarge  = "large"
)

// Catalog is the static shipping catalog.
type Catalog struct {
	HomeCountry        string                `yaml:"home_country"`
	SupportedCountries []string              `yaml:"supported_countries"`
	UnsupportedMessage string                `yaml:"unsupported_message"`
	Carriers           []CarrierZone         `yaml:"carriers"`
	ParcelTemplates    []ParcelTemplate      `yaml:"parcel_templates"`
	FallbackSizes      map[string]ParcelSize `yaml:"fallback_sizes"`
}

// CarrierZone tags a carrier with the zones it serves. International marks a
// domestic carrier that also delivers cross-border.
type CarrierZone struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Zones         []string `yaml:"zones"`
	International bool     `yaml:"international"`
}

// HasZone reports whether the carrier is tagged for zone.
func (c CarrierZone) HasZone(zone string) bool {
	for _, z := range c.Zones {
		if z == zone {
			return true
		}
	}
	return false
}

// ParcelSize is a parcel in centimeters and kilograms.
type ParcelSize struct {
	Length float64 `yaml:"length" json:"length"`
	Width  float64 `yaml:"width" json:"width"`
	Height float64 `yaml:"height" json:"height"`
	Weight float64 `yaml:"weight" json:"weight"`
}

func (s ParcelSize) valid() bool {
	return s.Length > 0 && s.Width > 0 && s.Height > 0 && s.Weight > 0
}

// ParcelTemplate is the default parcel for a product category.
type ParcelTemplate struct {
	Category   string   `yaml:"category" json:"category"`
	Name       string   `yaml:"name" json:"name"`
	Aliases    []string `yaml:"aliases" json:"aliases,omitempty"`
	ParcelSize `yaml:",inline"`
}

// LoadCatalog reads the catalog at path, or the embedded default when path is empty.
func LoadCatalog(path string) (*Catalog, error) {
	data := defaultCatalog
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading catalog: %w", err)
		}
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	c.HomeCountry = strings.ToUpper(c.HomeCountry)
	for i, country := range c.SupportedCountries {
		c.SupportedCountries[i] = strings.ToUpper(country)
	}
	return &c, nil
}

// Validate checks that every template and all three fallback sizes are usable.
func (c *Catalog) Validate() error {
	if c.HomeCountry == "" {
		return fmt.Errorf("catalog: home_country is required")
	}
	for _, carrier := range c.Carriers {
		for _, z := range carrier.Zones {
			if z != ZoneDomestic && z != ZoneRegional {
				return fmt.Errorf("catalog: carrier %s has unknown zone %q", carrier.ID, z)
			}
		}
	}
	for _, t := range c.ParcelTemplates {
		if t.Category == "" {
			return fmt.Errorf("catalog: parcel template without category")
		}
		if !t.valid() {
			return fmt.Errorf("catalog: parcel template %s has a non-positive dimension", t.Category)
		}
	}
	for _, size := range []string{SizeSmall, SizeMedium, SizeLarge} {
		s, ok := c.FallbackSizes[size]
		if !ok {
			return fmt.Errorf("catalog: fallback size %s is missing", size)
		}
		if !s.valid() {
			return fmt.Errorf("catalog: fallback size %s has a non-positive dimension", size)
		}
	}
	return nil
}

// Supported reports whether country is on the shipping allow-list.
func (c *Catalog) Supported(country string) bool {
	country = strings.ToUpper(strings.TrimSpace(country))
	for _, s := range c.SupportedCountries {
		if s == country {
			return true
		}
	}
	return false
}

// WithCountries overrides the home country and allow-list, typically from environment.
func (c *Catalog) WithCountries(home string, supported []string) *Catalog {
	if home != "" {
		c.HomeCountry = strings.ToUpper(home)
	}
	if len(supported) > 0 {
		c.SupportedCountries = make([]string, len(supported))
		for i, s := range supported {
			c.SupportedCountries[i] = strings.ToUpper(strings.TrimSpace(s))
		}
	}
	return c
}
