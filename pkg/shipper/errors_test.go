package shipper_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/tournevent/shipping/pkg/shipper"
)

func TestShipperError_Error(t *testing.T) {
	err := shipper.NewShipperError("shippo", "INVALID_ADDRESS", "Invalid postal code")
	assert.Equal(t, "shippo error (INVALID_ADDRESS): Invalid postal code", err.Error())
}

func TestShipperError_ErrorWithCause(t *testing.T) {
	cause := errors.New("network timeout")
	err := shipper.NewShipperError("shippo", "API_ERROR", "API call failed").WithCause(cause)
	assert.Contains(t, err.Error(), "API call failed")
	assert.Contains(t, err.Error(), "network timeout")
}

func TestShipperError_Unwrap(t *testing.T) {
	cause := errors.New("network timeout")
	err := shipper.NewShipperError("shippo", "API_ERROR", "API call failed").WithCause(cause)
	assert.True(t, errors.Is(err, cause))
}

func TestShipperError_Is(t *testing.T) {
	err1 := shipper.NewShipperError("shippo", "INVALID_ADDRESS", "Invalid postal code")
	err2 := shipper.NewShipperError("mondialrelay", "INVALID_ADDRESS", "Different message")

	assert.True(t, errors.Is(err1, err2))
}

func TestShipperError_IsNot(t *testing.T) {
	err1 := shipper.NewShipperError("shippo", "INVALID_ADDRESS", "Invalid postal code")
	err2 := shipper.NewShipperError("shippo", "DIFFERENT_CODE", "Different error")

	assert.False(t, errors.Is(err1, err2))
}

func TestShipperError_IsKind(t *testing.T) {
	err := shipper.Rejected("mondialrelay", "97", "Invalid security key")

	wrapped := fmt.Errorf("purchase: %w", err)
	assert.True(t, errors.Is(wrapped, shipper.ErrCarrierRejected))
	assert.False(t, errors.Is(wrapped, shipper.ErrCarrierUnavailable))
	assert.Contains(t, wrapped.Error(), "Invalid security key")
}

func TestShipperError_WithStatusCode(t *testing.T) {
	err := shipper.NewShipperError("shippo", "AUTH_ERROR", "Unauthorized").WithStatusCode(401)
	assert.Equal(t, 401, err.StatusCode)
}

func TestUnavailable_Timeout(t *testing.T) {
	err := shipper.Unavailable("shippo", context.DeadlineExceeded)

	assert.Equal(t, "TIMEOUT", err.Code)
	assert.True(t, errors.Is(err, shipper.ErrCarrierUnavailable))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.True(t, shipper.IsRetryable(err))
}

func TestIsRetryable_ShipperErrorNotRetryable(t *testing.T) {
	err := shipper.NewShipperError("shippo", "INVALID_ADDRESS", "Bad address").WithRetryable(false)
	assert.False(t, shipper.IsRetryable(err))
}

func TestIsRetryable_Sentinels(t *testing.T) {
	assert.True(t, shipper.IsRetryable(shipper.ErrCarrierUnavailable))
	assert.False(t, shipper.IsRetryable(shipper.ErrCarrierRejected))
	assert.False(t, shipper.IsRetryable(shipper.ErrRateExpired))
}

func TestSentinelErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"CarrierUnavailable", shipper.ErrCarrierUnavailable, "carrier unavailable"},
		{"CarrierRejected", shipper.ErrCarrierRejected, "carrier rejected request"},
		{"NoRatesAvailable", shipper.ErrNoRatesAvailable, "no rates available"},
		{"RateExpired", shipper.ErrRateExpired, "rate expired"},
		{"UnsupportedDestination", shipper.ErrUnsupportedDestination, "unsupported destination"},
		{"NotFound", shipper.ErrNotFound, "not found"},
		{"TrackingNotAvailable", shipper.ErrTrackingNotAvailable, "tracking not available"},
		{"LabelPurchaseFailed", shipper.ErrLabelPurchaseFailed, "label purchase failed"},
		{"CarrierNotFound", shipper.ErrCarrierNotFound, "carrier not found"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.msg, tt.err.Error())
		})
	}
}
