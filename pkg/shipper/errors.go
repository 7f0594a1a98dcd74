package shipper

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ShipperError represents an error from a shipping carrier.
type ShipperError struct {
	Carrier    string
	Code       string
	Message    string
	StatusCode int
	Retryable  bool
	Kind       error
	Cause      error
}

// Error implements the error interface.
func (e *ShipperError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Carrier, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Carrier, e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *ShipperError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for ShipperError. It matches another ShipperError
// with the same code, or the sentinel recorded as Kind.
func (e *ShipperError) Is(target error) bool {
	if e.Kind != nil && e.Kind == target {
		return true
	}
	t, ok := target.(*ShipperError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewShipperError creates a new ShipperError.
func NewShipperError(carrier, code, message string) *ShipperError {
	return &ShipperError{
		Carrier: carrier,
		Code:    code,
		Message: message,
	}
}

// WithCause adds a cause to the error.
func (e *ShipperError) WithCause(err error) *ShipperError {
	e.Cause = err
	return e
}

// WithStatusCode adds an HTTP status code to the error.
func (e *ShipperError) WithStatusCode(code int) *ShipperError {
	e.StatusCode = code
	return e
}

// WithRetryable marks the error as retryable.
func (e *ShipperError) WithRetryable(retryable bool) *ShipperError {
	e.Retryable = retryable
	return e
}

// WithKind classifies the error under one of the package sentinels.
func (e *ShipperError) WithKind(kind error) *ShipperError {
	e.Kind = kind
	return e
}

// Sentinel errors for common shipping scenarios.
var (
	// ErrCarrierUnavailable indicates a network failure or timeout talking to a carrier.
	ErrCarrierUnavailable = errors.New("carrier unavailable")

	// ErrCarrierRejected indicates a carrier-side business rejection.
	ErrCarrierRejected = errors.New("carrier rejected request")

	// ErrNoRatesAvailable indicates no candidate rate survived filtering.
	ErrNoRatesAvailable = errors.New("no rates available")

	// ErrRateExpired indicates a stale rate reference was reused.
	ErrRateExpired = errors.New("rate expired")

	// ErrUnsupportedDestination indicates an address outside the shipping allow-list.
	ErrUnsupportedDestination = errors.New("unsupported destination")

	// ErrNotFound indicates an unknown shipment or tracking number.
	ErrNotFound = errors.New("not found")

	// ErrTrackingNotAvailable indicates a shipment without carrier and tracking number yet.
	ErrTrackingNotAvailable = errors.New("tracking not available")

	// ErrLabelPurchaseFailed indicates the carrier refused to issue the label.
	ErrLabelPurchaseFailed = errors.New("label purchase failed")

	// ErrInvalidParcel indicates parcel dimensions or weight are invalid.
	ErrInvalidParcel = errors.New("invalid parcel")

	// ErrCarrierNotFound indicates the requested carrier is not registered.
	ErrCarrierNotFound = errors.New("carrier not found")
)

// Unavailable wraps a transport failure as a retryable ErrCarrierUnavailable.
func Unavailable(carrier string, err error) *ShipperError {
	code := "NETWORK"
	if errors.Is(err, context.DeadlineExceeded) {
		code = "TIMEOUT"
	}
	return NewShipperError(carrier, code, "carrier did not answer").
		WithCause(err).
		WithRetryable(true).
		WithKind(ErrCarrierUnavailable)
}

// Rejected wraps a carrier business rejection, keeping the upstream message verbatim.
func Rejected(carrier, code, message string) *ShipperError {
	return NewShipperError(carrier, code, message).WithKind(ErrCarrierRejected)
}

// IsTransport reports whether err is a timeout or network failure rather than a carrier answer.
func IsTransport(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// IsRetryable returns true if the error is retryable.
func IsRetryable(err error) bool {
	var shipperErr *ShipperError
	if errors.As(err, &shipperErr) {
		return shipperErr.Retryable
	}
	return errors.Is(err, ErrCarrierUnavailable)
}
