package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tournevent/shipping/internal/shipment"
	"github.com/tournevent/shipping/pkg/shipper"
)

// CreateWithParcel inserts the parcel and the shipment in one transaction.
func (s *Store) CreateWithParcel(ctx context.Context, p *shipment.Parcel, sh *shipment.Shipment) error {
	parcel := parcelToModel(p)
	model := shipmentToModel(sh)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&parcel).Error; err != nil {
			return fmt.Errorf("inserting parcel: %w", err)
		}
		if err := tx.Create(&model).Error; err != nil {
			return fmt.Errorf("inserting shipment: %w", err)
		}
		return nil
	})
}

// Get loads a shipment by id.
func (s *Store) Get(ctx context.Context, id string) (*shipment.Shipment, error) {
	var m ShipmentModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, "shipment", id)
	}
	return modelToShipment(&m), nil
}

// GetMany loads shipments in the order of ids. Any unknown id fails the call.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]*shipment.Shipment, error) {
	if len(ids) == 0 {
		return []*shipment.Shipment{}, nil
	}

	var models []ShipmentModel
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}

	byID := make(map[string]*ShipmentModel, len(models))
	for i := range models {
		byID[models[i].ID] = &models[i]
	}

	result := make([]*shipment.Shipment, 0, len(ids))
	for _, id := range ids {
		m, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: shipment %s", shipper.ErrNotFound, id)
		}
		result = append(result, modelToShipment(m))
	}
	return result, nil
}

// FindByTrackingNumber loads the shipment carrying trackingNumber.
func (s *Store) FindByTrackingNumber(ctx context.Context, trackingNumber string) (*shipment.Shipment, error) {
	if trackingNumber == "" {
		return nil, fmt.Errorf("%w: empty tracking number", shipper.ErrNotFound)
	}
	var m ShipmentModel
	err := s.db.WithContext(ctx).
		Where("tracking_number = ?", trackingNumber).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		return nil, notFound(err, "tracking number", trackingNumber)
	}
	return modelToShipment(&m), nil
}

// GetParcel loads a parcel by id.
func (s *Store) GetParcel(ctx context.Context, id string) (*shipment.Parcel, error) {
	var m ParcelModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, "parcel", id)
	}
	return modelToParcel(&m), nil
}

// UpdateStatus writes the lifecycle fields when the stored version still equals
// sh.Version and bumps the version.
func (s *Store) UpdateStatus(ctx context.Context, sh *shipment.Shipment) error {
	next := sh.Version + 1
	result := s.db.WithContext(ctx).
		Model(&ShipmentModel{}).
		Where("id = ? AND version = ?", sh.ID, sh.Version).
		Updates(map[string]interface{}{
			"status":          string(sh.Status),
			"tracking_status": sh.TrackingStatus,
			"delivered_at":    sh.DeliveredAt,
			"metadata":        JSONB(sh.Metadata),
			"updated_at":      sh.UpdatedAt,
			"version":         next,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&ShipmentModel{}).Where("id = ?", sh.ID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return fmt.Errorf("%w: shipment %s", shipper.ErrNotFound, sh.ID)
		}
		return shipment.ErrVersionConflict
	}
	sh.Version = next
	return nil
}

func parcelToModel(p *shipment.Parcel) ParcelModel {
	return ParcelModel{
		ID:           p.ID,
		Length:       p.Parcel.Length,
		Width:        p.Parcel.Width,
		Height:       p.Parcel.Height,
		Weight:       p.Parcel.Weight,
		DistanceUnit: string(p.Parcel.DistanceUnit),
		MassUnit:     string(p.Parcel.MassUnit),
		CreatedAt:    p.CreatedAt,
	}
}

func modelToParcel(m *ParcelModel) *shipment.Parcel {
	return &shipment.Parcel{
		ID: m.ID,
		Parcel: shipper.Parcel{
			Length:       m.Length,
			Width:        m.Width,
			Height:       m.Height,
			Weight:       m.Weight,
			DistanceUnit: shipper.DimensionUnit(m.DistanceUnit),
			MassUnit:     shipper.WeightUnit(m.MassUnit),
		},
		CreatedAt: m.CreatedAt,
	}
}

func shipmentToModel(sh *shipment.Shipment) ShipmentModel {
	return ShipmentModel{
		ID:              sh.ID,
		ProductID:       sh.ProductID,
		BuyerID:         sh.BuyerID,
		SellerID:        sh.SellerID,
		OrderNumber:     sh.OrderNumber,
		Gateway:         sh.Gateway,
		Carrier:         sh.Carrier,
		ServiceName:     sh.ServiceName,
		ServiceToken:    sh.ServiceToken,
		CarrierObjectID: sh.CarrierObjectID,
		TrackingNumber:  sh.TrackingNumber,
		TrackingURL:     sh.TrackingURL,
		LabelURL:        sh.LabelURL,
		PickupPointID:   sh.PickupPointID,
		Amount:          sh.Amount,
		Currency:        sh.Currency,
		FromAddress:     AddressJSON(sh.From),
		ToAddress:       AddressJSON(sh.To),
		ParcelID:        sh.ParcelID,
		Status:          string(sh.Status),
		TrackingStatus:  sh.TrackingStatus,
		Metadata:        JSONB(sh.Metadata),
		CreatedAt:       sh.CreatedAt,
		UpdatedAt:       sh.UpdatedAt,
		DeliveredAt:     sh.DeliveredAt,
		Version:         sh.Version,
	}
}

func modelToShipment(m *ShipmentModel) *shipment.Shipment {
	return &shipment.Shipment{
		ID:              m.ID,
		ProductID:       m.ProductID,
		BuyerID:         m.BuyerID,
		SellerID:        m.SellerID,
		OrderNumber:     m.OrderNumber,
		Gateway:         m.Gateway,
		Carrier:         m.Carrier,
		ServiceName:     m.ServiceName,
		ServiceToken:    m.ServiceToken,
		CarrierObjectID: m.CarrierObjectID,
		TrackingNumber:  m.TrackingNumber,
		TrackingURL:     m.TrackingURL,
		LabelURL:        m.LabelURL,
		PickupPointID:   m.PickupPointID,
		Amount:          m.Amount,
		Currency:        m.Currency,
		From:            shipper.Address(m.FromAddress),
		To:              shipper.Address(m.ToAddress),
		ParcelID:        m.ParcelID,
		Status:          shipment.Status(m.Status),
		TrackingStatus:  m.TrackingStatus,
		Metadata:        map[string]interface{}(m.Metadata),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
		DeliveredAt:     m.DeliveredAt,
		Version:         m.Version,
	}
}

var _ shipment.Store = (*Store)(nil)
