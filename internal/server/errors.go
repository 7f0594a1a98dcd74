package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/tournevent/shipping/internal/shipping"
	"github.com/tournevent/shipping/pkg/shipper"
)

// errorBody is the error envelope of every failed request.
type errorBody struct {
	Error   string        `json:"error"`
	Message string        `json:"message"`
	Details []fieldDetail `json:"details,omitempty"`
}

type fieldDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type errorMapping struct {
	kind   error
	status int
	code   string
}

// First match wins. A label purchase failure may also carry a rejection, and
// an unregistered gateway is reported as unavailable.
var errorMappings = []errorMapping{
	{shipper.ErrUnsupportedDestination, http.StatusUnprocessableEntity, "UNSUPPORTED_DESTINATION"},
	{shipper.ErrNoRatesAvailable, http.StatusUnprocessableEntity, "NO_RATES_AVAILABLE"},
	{shipper.ErrRateExpired, http.StatusConflict, "RATE_EXPIRED"},
	{shipper.ErrTrackingNotAvailable, http.StatusConflict, "TRACKING_NOT_AVAILABLE"},
	{shipper.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{shipper.ErrInvalidParcel, http.StatusBadRequest, "INVALID_PARCEL"},
	{shipping.ErrInvalidAccount, http.StatusBadRequest, "INVALID_ACCOUNT"},
	{shipping.ErrAccountsUnavailable, http.StatusNotImplemented, "ACCOUNTS_UNAVAILABLE"},
	{shipper.ErrLabelPurchaseFailed, http.StatusBadGateway, "LABEL_PURCHASE_FAILED"},
	{shipper.ErrCarrierRejected, http.StatusBadGateway, "CARRIER_REJECTED"},
	{shipper.ErrCarrierUnavailable, http.StatusServiceUnavailable, "CARRIER_UNAVAILABLE"},
	{shipper.ErrCarrierNotFound, http.StatusNotFound, "CARRIER_NOT_FOUND"},
}

// classify returns the HTTP status and error code of err.
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.kind) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	message := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Ctx(r.Context()).Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		message = "internal error"
	} else {
		s.logger.Ctx(r.Context()).Info("Request rejected",
			zap.String("path", r.URL.Path),
			zap.String("code", code),
			zap.String("message", message),
		)
	}
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: "INVALID_REQUEST", Message: message})
}

func writeValidationError(w http.ResponseWriter, err error) {
	body := errorBody{Error: "VALIDATION_ERROR", Message: "request validation failed"}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, e := range verrs {
			body.Details = append(body.Details, fieldDetail{
				Field:   fieldPath(e.Namespace()),
				Message: validationMessage(e),
			})
		}
	} else {
		body.Message = err.Error()
	}
	writeJSON(w, http.StatusBadRequest, body)
}

// fieldPath drops the root struct name from a validator namespace.
func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required", "required_without_all":
		return "this field is required"
	case "email":
		return "invalid email format"
	case "len":
		return "must be exactly " + e.Param() + " characters"
	case "oneof":
		return "must be one of: " + e.Param()
	case "min":
		return "must contain at least " + e.Param() + " item(s)"
	default:
		return "invalid value"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
