package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tournevent/shipping/internal/rating"
	"github.com/tournevent/shipping/internal/shipping"
	"github.com/tournevent/shipping/pkg/shipper"
)

// RecordQuote stores the candidate rates of one quote round.
func (s *Store) RecordQuote(ctx context.Context, quoteID string, rates []rating.Rate, selected *rating.Rate) error {
	if len(rates) == 0 {
		return nil
	}

	now := s.clock.Now().UTC()
	models := make([]ShippingRateModel, len(rates))
	for i, r := range rates {
		m := ShippingRateModel{
			ID:           uuid.New().String(),
			QuoteID:      quoteID,
			Reference:    r.Reference,
			Gateway:      r.Gateway,
			Carrier:      r.Carrier,
			ServiceName:  r.ServiceName,
			ServiceToken: r.ServiceToken,
			Amount:       r.Amount,
			Currency:     r.Currency,
			Terms:        r.Terms,
			Zone:         r.Zone,
			Selected:     selected != nil && selected.Reference == r.Reference,
			CreatedAt:    now,
		}
		if r.EstimateKnown {
			days := r.EstimatedDays
			m.EstimatedDays = &days
		}
		models[i] = m
	}

	if err := s.db.WithContext(ctx).Create(&models).Error; err != nil {
		return fmt.Errorf("recording quote %s: %w", quoteID, err)
	}
	return nil
}

// QuoteRates returns the audit rows of a quote round in insertion order.
func (s *Store) QuoteRates(ctx context.Context, quoteID string) ([]ShippingRateModel, error) {
	var models []ShippingRateModel
	err := s.db.WithContext(ctx).Where("quote_id = ?", quoteID).Order("created_at, id").Find(&models).Error
	return models, err
}

// Product loads a product from the projection table.
func (s *Store) Product(ctx context.Context, id string) (*shipping.Product, error) {
	var m ProductModel
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, notFound(err, "product", id)
	}
	return &shipping.Product{
		ID:               m.ID,
		SellerID:         m.SellerID,
		Title:            m.Title,
		SKU:              m.SKU,
		ShippingCategory: m.ShippingCategory,
		Price:            m.Price,
		Currency:         m.Currency,
	}, nil
}

// SaveProduct inserts or replaces a product in the projection table.
func (s *Store) SaveProduct(ctx context.Context, p *shipping.Product) error {
	m := ProductModel{
		ID:               p.ID,
		SellerID:         p.SellerID,
		Title:            p.Title,
		SKU:              p.SKU,
		ShippingCategory: p.ShippingCategory,
		Price:            p.Price,
		Currency:         p.Currency,
		UpdatedAt:        s.clock.Now().UTC(),
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&m).Error
}

// ListAccounts returns every carrier account ordered by carrier.
func (s *Store) ListAccounts(ctx context.Context) ([]shipper.CarrierAccount, error) {
	var models []CarrierAccountModel
	if err := s.db.WithContext(ctx).Order("carrier, test, created_at").Find(&models).Error; err != nil {
		return nil, err
	}
	return accountsFromModels(models), nil
}

// ActiveAccounts lists active accounts for carrier in the given mode. An empty
// carrier matches every carrier.
func (s *Store) ActiveAccounts(ctx context.Context, carrier string, test bool) ([]shipper.CarrierAccount, error) {
	q := s.db.WithContext(ctx).Where("active = ? AND test = ?", true, test)
	if carrier != "" {
		q = q.Where("carrier = ?", strings.ToLower(carrier))
	}
	var models []CarrierAccountModel
	if err := q.Order("created_at").Find(&models).Error; err != nil {
		return nil, err
	}
	return accountsFromModels(models), nil
}

// UpsertAccount creates the account, or updates it when its id already exists.
// A new account gets a generated id.
func (s *Store) UpsertAccount(ctx context.Context, a *shipper.CarrierAccount) error {
	now := s.clock.Now().UTC()
	a.Carrier = strings.ToLower(strings.TrimSpace(a.Carrier))

	if a.ID != "" {
		var existing CarrierAccountModel
		err := s.db.WithContext(ctx).Where("id = ?", a.ID).First(&existing).Error
		switch {
		case err == nil:
			return s.db.WithContext(ctx).Model(&existing).Updates(map[string]interface{}{
				"carrier":    a.Carrier,
				"account_id": a.AccountID,
				"active":     a.Active,
				"test":       a.Test,
				"parameters": StringMap(a.Parameters),
				"updated_at": now,
			}).Error
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
	} else {
		a.ID = uuid.New().String()
	}

	m := CarrierAccountModel{
		ID:         a.ID,
		Carrier:    a.Carrier,
		AccountID:  a.AccountID,
		Active:     a.Active,
		Test:       a.Test,
		Parameters: StringMap(a.Parameters),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return s.db.WithContext(ctx).Create(&m).Error
}

func accountsFromModels(models []CarrierAccountModel) []shipper.CarrierAccount {
	accounts := make([]shipper.CarrierAccount, len(models))
	for i, m := range models {
		accounts[i] = shipper.CarrierAccount{
			ID:         m.ID,
			Carrier:    m.Carrier,
			AccountID:  m.AccountID,
			Active:     m.Active,
			Test:       m.Test,
			Parameters: map[string]string(m.Parameters),
		}
	}
	return accounts
}

// IsProcessed reports whether key was marked and has not expired yet.
func (s *Store) IsProcessed(ctx context.Context, key string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&WebhookReceiptModel{}).
		Where("receipt_key = ? AND expires_at > ?", key, s.clock.Now().UTC()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking webhook receipt: %w", err)
	}
	return count > 0, nil
}

// MarkProcessed records key until ttl elapses. It returns false when an
// unexpired receipt already exists.
func (s *Store) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	now := s.clock.Now().UTC()
	marked := false

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing WebhookReceiptModel
		err := tx.Where("receipt_key = ?", key).First(&existing).Error
		switch {
		case err == nil && existing.ExpiresAt.After(now):
			return nil
		case err == nil:
			marked = true
			return tx.Model(&existing).Updates(map[string]interface{}{
				"expires_at": now.Add(ttl),
				"created_at": now,
			}).Error
		case errors.Is(err, gorm.ErrRecordNotFound):
			marked = true
			return tx.Create(&WebhookReceiptModel{Key: key, ExpiresAt: now.Add(ttl), CreatedAt: now}).Error
		default:
			return err
		}
	})
	if err != nil {
		return false, fmt.Errorf("marking webhook receipt: %w", err)
	}
	return marked, nil
}

// PurgeReceipts deletes expired webhook receipts.
func (s *Store) PurgeReceipts(ctx context.Context) (int64, error) {
	result := s.db.WithContext(ctx).Where("expires_at <= ?", s.clock.Now().UTC()).Delete(&WebhookReceiptModel{})
	return result.RowsAffected, result.Error
}

var (
	_ shipping.ProductCatalog = (*Store)(nil)
	_ shipping.RateAudit      = (*Store)(nil)
	_ shipping.ReceiptStore   = (*Store)(nil)
	_ shipping.AccountStore   = (*Store)(nil)
)
