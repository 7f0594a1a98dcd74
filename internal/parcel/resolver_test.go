package parcel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tournevent/shipping/internal/config"
	"github.com/tournevent/shipping/internal/parcel"
)

func newResolver(t *testing.T) *parcel.Resolver {
	catalog, err := config.LoadCatalog("")
	require.NoError(t, err)
	return parcel.NewResolver(catalog)
}

func TestResolve_Category(t *testing.T) {
	r := newResolver(t)

	p := r.Resolve("CAT_3", "small")

	assert.Equal(t, "90", p.Length.String())
	assert.Equal(t, "30", p.Width.String())
	assert.Equal(t, "12", p.Height.String())
	assert.Equal(t, "4", p.Weight.String())
	assert.NoError(t, p.Validate())
}

func TestResolve_Alias(t *testing.T) {
	r := newResolver(t)

	p := r.Resolve("Sniper", "")

	assert.Equal(t, "120", p.Length.String())
}

func TestResolve_FallbackSizes(t *testing.T) {
	r := newResolver(t)

	assert.Equal(t, "30", r.Resolve("", "small").Length.String())
	assert.Equal(t, "2.5", r.Resolve("unknown", "MEDIUM").Weight.String())
	assert.Equal(t, "60", r.Resolve("unknown", "large").Length.String())
	assert.Equal(t, "40", r.Resolve("unknown", "gigantic").Length.String())
}

func TestResolve_NeverFails(t *testing.T) {
	r := parcel.NewResolver(&config.Catalog{HomeCountry: "FR"})

	p := r.Resolve("anything", "small")

	assert.NoError(t, p.Validate())
	assert.Equal(t, "cm", string(p.DistanceUnit))
	assert.Equal(t, "kg", string(p.MassUnit))
}

func TestTemplates(t *testing.T) {
	r := newResolver(t)

	assert.Len(t, r.Templates(), 5)
	assert.Len(t, r.FallbackSizes(), 3)
}
