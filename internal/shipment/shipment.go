// Package shipment holds the shipment record and its status lifecycle.
package shipment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipping/pkg/shipper"
)

// Status is the normalized lifecycle state of a shipment.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusLabelCreated Status = "LABEL_CREATED"
	StatusInTransit    Status = "IN_TRANSIT"
	StatusDelivered    Status = "DELIVERED"
	StatusReturned     Status = "RETURNED"
	StatusFailed       Status = "FAILED"
)

var ranks = map[Status]int{
	StatusPending:      0,
	StatusLabelCreated: 1,
	StatusInTransit:    2,
	StatusDelivered:    3,
	StatusReturned:     3,
	StatusFailed:       3,
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusDelivered || s == StatusReturned || s == StatusFailed
}

// Rank orders statuses along the lifecycle. Unknown statuses rank lowest.
func (s Status) Rank() int {
	if r, ok := ranks[s]; ok {
		return r
	}
	return -1
}

// ErrVersionConflict is returned by Store.UpdateStatus when the stored version moved.
var ErrVersionConflict = errors.New("shipment version conflict")

// Parcel is the persisted parcel a shipment references.
type Parcel struct {
	ID        string
	Parcel    shipper.Parcel
	CreatedAt time.Time
}

// Shipment is the persistent record of a purchased label.
type Shipment struct {
	ID          string `json:"id"`
	ProductID   string `json:"productId,omitempty"`
	BuyerID     string `json:"buyerId,omitempty"`
	SellerID    string `json:"sellerId,omitempty"`
	OrderNumber string `json:"orderNumber"`

	Gateway         string `json:"gateway"`
	Carrier         string `json:"carrier"`
	ServiceName     string `json:"serviceName,omitempty"`
	ServiceToken    string `json:"serviceToken,omitempty"`
	CarrierObjectID string `json:"carrierObjectId,omitempty"`
	TrackingNumber  string `json:"trackingNumber,omitempty"`
	TrackingURL     string `json:"trackingUrl,omitempty"`
	LabelURL        string `json:"labelUrl,omitempty"`
	PickupPointID   string `json:"pickupPointId,omitempty"`

	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`

	From     shipper.Address `json:"fromAddress"`
	To       shipper.Address `json:"toAddress"`
	ParcelID string          `json:"parcelId"`

	Status         Status                 `json:"status"`
	TrackingStatus string                 `json:"trackingStatus,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	DeliveredAt *time.Time `json:"deliveredAt,omitempty"`
	Version     int        `json:"version"`
}

// Trackable reports whether the shipment has what a carrier needs to track it.
func (s *Shipment) Trackable() bool {
	return s.Carrier != "" && s.TrackingNumber != ""
}

// Store persists shipments. Lookups of unknown records return shipper.ErrNotFound.
type Store interface {
	// CreateWithParcel persists the parcel and the shipment in one unit.
	CreateWithParcel(ctx context.Context, p *Parcel, s *Shipment) error
	Get(ctx context.Context, id string) (*Shipment, error)
	GetMany(ctx context.Context, ids []string) ([]*Shipment, error)
	FindByTrackingNumber(ctx context.Context, trackingNumber string) (*Shipment, error)
	GetParcel(ctx context.Context, id string) (*Parcel, error)
	// UpdateStatus writes the lifecycle fields if the stored version still equals
	// s.Version, then increments s.Version. Otherwise it returns ErrVersionConflict.
	UpdateStatus(ctx context.Context, s *Shipment) error
}

// StatusChanged is emitted on every effective transition.
type StatusChanged struct {
	ShipmentID     string    `json:"shipmentId"`
	OrderNumber    string    `json:"orderNumber"`
	Carrier        string    `json:"carrier"`
	TrackingNumber string    `json:"trackingNumber"`
	From           Status    `json:"from"`
	To             Status    `json:"to"`
	NativeStatus   string    `json:"nativeStatus"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Publisher delivers status events.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, e StatusChanged) error
}
