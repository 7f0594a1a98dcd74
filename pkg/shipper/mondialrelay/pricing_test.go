package mondialrelay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardPrice(t *testing.T) {
	tests := []struct {
		grams int64
		want  string
	}{
		{1, "4.95"},
		{500, "4.95"},
		{501, "5.95"},
		{2000, "6.95"},
		{4999, "8.95"},
		{10000, "11.95"},
		{20000, "16.95"},
		{20001, "21.95"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, StandardPrice(tt.grams).StringFixed(2), "grams=%d", tt.grams)
	}
}

func TestServicePrice_HomeFactor(t *testing.T) {
	home, ok := serviceByToken("mondialrelay_hom")
	require.True(t, ok)

	assert.Equal(t, "8.93", home.price(800).StringFixed(2))
}

func TestRateRef_RoundTrip(t *testing.T) {
	relay, _ := serviceByToken("mondialrelay_24r")
	ref := rateRef{service: relay, grams: 1200, country: "BE", quotedAt: time.Unix(1700000000, 0)}

	assert.Equal(t, "mondialrelay_24r.1200.BE.1700000000", ref.String())

	parsed, err := parseRateRef(ref.String())
	require.NoError(t, err)
	assert.Equal(t, relay.Token, parsed.service.Token)
	assert.Equal(t, int64(1200), parsed.grams)
	assert.Equal(t, "BE", parsed.country)
	assert.True(t, parsed.quotedAt.Equal(ref.quotedAt))
}

func TestParseRateRef_Malformed(t *testing.T) {
	for _, id := range []string{
		"",
		"rate-standard",
		"mondialrelay_xxx.1200.FR.1700000000",
		"mondialrelay_24r.heavy.FR.1700000000",
		"mondialrelay_24r.1200.FR.yesterday",
	} {
		_, err := parseRateRef(id)
		assert.Error(t, err, id)
	}
}
