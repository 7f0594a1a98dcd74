package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/tournevent/shipping/internal/config"
	"github.com/tournevent/shipping/internal/rating"
	"github.com/tournevent/shipping/internal/shipping"
	"github.com/tournevent/shipping/pkg/shipper"
)

const maxBodyBytes = 1 << 20

// newValidator reports JSON field names in validation errors.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler may continue.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeBadRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	if err := s.validate.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

type addressDTO struct {
	Name    string `json:"name" validate:"required"`
	Company string `json:"company"`
	Street1 string `json:"street1" validate:"required"`
	Street2 string `json:"street2"`
	City    string `json:"city" validate:"required"`
	State   string `json:"state"`
	Zip     string `json:"zip" validate:"required"`
	Country string `json:"country" validate:"required,len=2"`
	Phone   string `json:"phone"`
	Email   string `json:"email" validate:"omitempty,email"`
}

func (a addressDTO) toModel() shipper.Address {
	return shipper.Address{
		Name:    strings.TrimSpace(a.Name),
		Company: a.Company,
		Street1: a.Street1,
		Street2: a.Street2,
		City:    a.City,
		State:   a.State,
		Zip:     strings.TrimSpace(a.Zip),
		Country: strings.ToUpper(strings.TrimSpace(a.Country)),
		Phone:   a.Phone,
		Email:   a.Email,
	}
}

// parcelDTO accepts dimensions as JSON numbers or decimal strings.
type parcelDTO struct {
	Length       decimal.Decimal `json:"length"`
	Width        decimal.Decimal `json:"width"`
	Height       decimal.Decimal `json:"height"`
	Weight       decimal.Decimal `json:"weight"`
	DistanceUnit string          `json:"distanceUnit" validate:"omitempty,oneof=cm in"`
	MassUnit     string          `json:"massUnit" validate:"omitempty,oneof=kg g lb"`
}

func (p *parcelDTO) toModel() *shipper.Parcel {
	if p == nil {
		return nil
	}
	return &shipper.Parcel{
		Length:       p.Length,
		Width:        p.Width,
		Height:       p.Height,
		Weight:       p.Weight,
		DistanceUnit: shipper.DimensionUnit(p.DistanceUnit),
		MassUnit:     shipper.WeightUnit(p.MassUnit),
	}
}

type calculateRatesRequest struct {
	ProductID    string     `json:"productId" validate:"required_without_all=Parcel Category FallbackSize"`
	Parcel       *parcelDTO `json:"parcel"`
	Category     string     `json:"category"`
	FallbackSize string     `json:"fallbackSize" validate:"omitempty,oneof=small medium large"`
	FromAddress  addressDTO `json:"fromAddress"`
	ToAddress    addressDTO `json:"toAddress"`
	Criterion    string     `json:"criterion" validate:"omitempty,oneof=cheapest fastest"`
}

func (req calculateRatesRequest) toQuery() shipping.QuoteRequest {
	return shipping.QuoteRequest{
		ProductID: req.ProductID,
		From:      req.FromAddress.toModel(),
		To:        req.ToAddress.toModel(),
		Parcel: shipping.ParcelSpec{
			Parcel:       req.Parcel.toModel(),
			Category:     req.Category,
			FallbackSize: req.FallbackSize,
		},
		Criterion: rating.ParseCriterion(req.Criterion),
	}
}

type createShipmentRequest struct {
	ProductID     string     `json:"productId" validate:"required"`
	BuyerID       string     `json:"buyerId" validate:"required"`
	FromAddress   addressDTO `json:"fromAddress"`
	ToAddress     addressDTO `json:"toAddress"`
	Parcel        *parcelDTO `json:"parcel"`
	Category      string     `json:"category"`
	FallbackSize  string     `json:"fallbackSize" validate:"omitempty,oneof=small medium large"`
	RateReference string     `json:"rateReference"`
	OrderNumber   string     `json:"orderNumber"`
	PickupPointID string     `json:"pickupPointId"`
	Criterion     string     `json:"criterion" validate:"omitempty,oneof=cheapest fastest"`
}

func (req createShipmentRequest) toCreate() shipping.CreateRequest {
	return shipping.CreateRequest{
		ProductID: req.ProductID,
		BuyerID:   req.BuyerID,
		From:      req.FromAddress.toModel(),
		To:        req.ToAddress.toModel(),
		Parcel: shipping.ParcelSpec{
			Parcel:       req.Parcel.toModel(),
			Category:     req.Category,
			FallbackSize: req.FallbackSize,
		},
		RateReference: strings.TrimSpace(req.RateReference),
		OrderNumber:   strings.TrimSpace(req.OrderNumber),
		PickupPointID: req.PickupPointID,
		Criterion:     rating.ParseCriterion(req.Criterion),
	}
}

type trackingStatusDTO struct {
	Status     string `json:"status"`
	StatusDate string `json:"status_date"`
}

// trackingWebhookBody is the aggregator's track_updated payload. The fields
// may be sent flat or nested under data.
type trackingWebhookBody struct {
	Event          string             `json:"event"`
	TrackingNumber string             `json:"tracking_number"`
	Carrier        string             `json:"carrier"`
	TrackingStatus *trackingStatusDTO `json:"tracking_status"`
	Metadata       string             `json:"metadata"`
	Data           *struct {
		TrackingNumber string             `json:"tracking_number"`
		Carrier        string             `json:"carrier"`
		TrackingStatus *trackingStatusDTO `json:"tracking_status"`
		Metadata       string             `json:"metadata"`
	} `json:"data"`
}

func (b trackingWebhookBody) toEvent() (shipping.WebhookEvent, error) {
	e := shipping.WebhookEvent{
		TrackingNumber: b.TrackingNumber,
		Carrier:        b.Carrier,
		Metadata:       b.Metadata,
	}
	status := b.TrackingStatus
	if b.Data != nil {
		e.TrackingNumber = b.Data.TrackingNumber
		e.Carrier = b.Data.Carrier
		e.Metadata = b.Data.Metadata
		status = b.Data.TrackingStatus
	}
	if strings.TrimSpace(e.TrackingNumber) == "" {
		return e, fmt.Errorf("tracking_number is required")
	}
	if status != nil {
		e.Status = status.Status
		if status.StatusDate != "" {
			at, err := time.Parse(time.RFC3339, status.StatusDate)
			if err != nil {
				return e, fmt.Errorf("invalid status_date: %w", err)
			}
			e.StatusDate = &at
		}
	}
	return e, nil
}

type exportCSVRequest struct {
	ShipmentIDs []string `json:"shipmentIds" validate:"required,min=1"`
}

type carrierAccountRequest struct {
	ID         string            `json:"id"`
	Carrier    string            `json:"carrier" validate:"required"`
	AccountID  string            `json:"accountId" validate:"required"`
	Active     *bool             `json:"active"`
	Test       bool              `json:"test"`
	Parameters map[string]string `json:"parameters"`
}

func (req carrierAccountRequest) toModel() *shipper.CarrierAccount {
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return &shipper.CarrierAccount{
		ID:         req.ID,
		Carrier:    req.Carrier,
		AccountID:  req.AccountID,
		Active:     active,
		Test:       req.Test,
		Parameters: req.Parameters,
	}
}

type parcelTemplatesResponse struct {
	Templates     []config.ParcelTemplate      `json:"templates"`
	FallbackSizes map[string]config.ParcelSize `json:"fallbackSizes"`
}
