package store

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tournevent/shipping/pkg/shipper"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONB is a free-form JSON object column.
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]interface{}(j))
	return string(b), err
}

func (j *JSONB) Scan(value interface{}) error {
	*j = make(JSONB)
	return scanJSON(value, (*map[string]interface{})(j))
}

func (JSONB) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonType(db)
}

// StringMap is a JSON object column of string values.
type StringMap map[string]string

func (m StringMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(m))
	return string(b), err
}

func (m *StringMap) Scan(value interface{}) error {
	*m = make(StringMap)
	return scanJSON(value, (*map[string]string)(m))
}

func (StringMap) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonType(db)
}

// AddressJSON is an immutable address snapshot column.
type AddressJSON shipper.Address

func (a AddressJSON) Value() (driver.Value, error) {
	b, err := json.Marshal(shipper.Address(a))
	return string(b), err
}

func (a *AddressJSON) Scan(value interface{}) error {
	return scanJSON(value, (*shipper.Address)(a))
}

func (AddressJSON) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	return jsonType(db)
}

func scanJSON(value interface{}, dst interface{}) error {
	var b []byte
	switch v := value.(type) {
	case nil:
		return nil
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return fmt.Errorf("unsupported JSON column type %T", value)
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, dst)
}

func jsonType(db *gorm.DB) string {
	if db.Dialector.Name() == "postgres" {
		return "jsonb"
	}
	return "text"
}

// ParcelModel is the parcels table.
type ParcelModel struct {
	ID           string          `gorm:"type:varchar(36);primaryKey"`
	Length       decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Width        decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Height       decimal.Decimal `gorm:"type:numeric(10,2);not null"`
	Weight       decimal.Decimal `gorm:"type:numeric(10,3);not null"`
	DistanceUnit string          `gorm:"type:varchar(4);not null"`
	MassUnit     string          `gorm:"type:varchar(4);not null"`
	CreatedAt    time.Time
}

func (ParcelModel) TableName() string { return "parcels" }

// ShipmentModel is the shipments table.
type ShipmentModel struct {
	ID          string `gorm:"type:varchar(36);primaryKey"`
	ProductID   string `gorm:"type:varchar(64);index"`
	BuyerID     string `gorm:"type:varchar(64);index"`
	SellerID    string `gorm:"type:varchar(64);index"`
	OrderNumber string `gorm:"type:varchar(64);uniqueIndex;not null"`

	Gateway         string `gorm:"type:varchar(32);not null"`
	Carrier         string `gorm:"type:varchar(64)"`
	ServiceName     string `gorm:"type:varchar(128)"`
	ServiceToken    string `gorm:"type:varchar(128)"`
	CarrierObjectID string `gorm:"type:varchar(128)"`
	TrackingNumber  string `gorm:"type:varchar(128);index"`
	TrackingURL     string `gorm:"type:text"`
	LabelURL        string `gorm:"type:text"`
	PickupPointID   string `gorm:"type:varchar(32)"`

	Amount   decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	Currency string          `gorm:"type:varchar(3);not null"`

	FromAddress AddressJSON
	ToAddress   AddressJSON
	ParcelID    string `gorm:"type:varchar(36);index;not null"`

	Status         string `gorm:"type:varchar(20);index;not null"`
	TrackingStatus string `gorm:"type:varchar(64)"`
	Metadata       JSONB

	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeliveredAt *time.Time
	Version     int `gorm:"not null;default:1"`
}

func (ShipmentModel) TableName() string { return "shipments" }

// ShippingRateModel is the write-only quote audit table.
type ShippingRateModel struct {
	ID            string          `gorm:"type:varchar(36);primaryKey"`
	QuoteID       string          `gorm:"type:varchar(36);index;not null"`
	Reference     string          `gorm:"type:varchar(160);not null"`
	Gateway       string          `gorm:"type:varchar(32)"`
	Carrier       string          `gorm:"type:varchar(64)"`
	ServiceName   string          `gorm:"type:varchar(128)"`
	ServiceToken  string          `gorm:"type:varchar(128)"`
	Amount        decimal.Decimal `gorm:"type:numeric(12,2)"`
	Currency      string          `gorm:"type:varchar(3)"`
	EstimatedDays *int
	Terms         string `gorm:"type:text"`
	Zone          string `gorm:"type:varchar(16)"`
	Selected      bool
	CreatedAt     time.Time
}

func (ShippingRateModel) TableName() string { return "shipping_rates" }

// CarrierAccountModel is the carrier_accounts table.
type CarrierAccountModel struct {
	ID         string `gorm:"type:varchar(36);primaryKey"`
	Carrier    string `gorm:"type:varchar(64);index;not null"`
	AccountID  string `gorm:"type:varchar(128);not null"`
	Active     bool
	Test       bool
	Parameters StringMap
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (CarrierAccountModel) TableName() string { return "carrier_accounts" }

// ProductModel is the read projection of marketplace products.
type ProductModel struct {
	ID               string          `gorm:"type:varchar(64);primaryKey"`
	SellerID         string          `gorm:"type:varchar(64);index"`
	Title            string          `gorm:"type:varchar(255)"`
	SKU              string          `gorm:"type:varchar(64)"`
	ShippingCategory string          `gorm:"type:varchar(32)"`
	Price            decimal.Decimal `gorm:"type:numeric(12,2)"`
	Currency         string          `gorm:"type:varchar(3)"`
	UpdatedAt        time.Time
}

func (ProductModel) TableName() string { return "products" }

// WebhookReceiptModel records processed webhook deliveries until ExpiresAt.
type WebhookReceiptModel struct {
	Key       string    `gorm:"column:receipt_key;type:varchar(255);primaryKey"`
	ExpiresAt time.Time `gorm:"index;not null"`
	CreatedAt time.Time
}

func (WebhookReceiptModel) TableName() string { return "webhook_receipts" }

func allModels() []interface{} {
	return []interface{}{
		&ParcelModel{},
		&ShipmentModel{},
		&ShippingRateModel{},
		&CarrierAccountModel{},
		&ProductModel{},
		&WebhookReceiptModel{},
	}
}
