package shipping

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/tournevent/shipping/internal/shipment"
	"github.com/tournevent/shipping/pkg/shipper"
)

// CSVColumns is the fixed column order of the bulk label import file.
var CSVColumns = []string{
	"Order Number",
	"Order Date",
	"Recipient Name",
	"Company",
	"Email",
	"Phone",
	"Street Line 1",
	"Street Number",
	"Street Line 2",
	"City",
	"State/Province",
	"Zip/Postal Code",
	"Country",
	"Item Title",
	"SKU",
	"Quantity",
	"Item Weight",
	"Item Weight Unit",
	"Item Price",
	"Item Currency",
	"Order Weight",
	"Order Weight Unit",
	"Order Amount",
	"Order Currency",
}

const csvDateLayout = "01/02/2006"

// ExportCSV renders one row per distinct shipment id, in request order. It
// reads only persisted data. Any unknown id fails the export with ErrNotFound.
func (s *Service) ExportCSV(ctx context.Context, ids []string) ([]byte, error) {
	distinct := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		distinct = append(distinct, id)
	}

	shipments, err := s.shipments.GetMany(ctx, distinct)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(CSVColumns); err != nil {
		return nil, err
	}

	for _, sh := range shipments {
		p, err := s.shipments.GetParcel(ctx, sh.ParcelID)
		if err != nil {
			return nil, fmt.Errorf("loading parcel of shipment %s: %w", sh.ID, err)
		}
		if err := w.Write(s.csvRow(ctx, sh, p)); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Service) csvRow(ctx context.Context, sh *shipment.Shipment, p *shipment.Parcel) []string {
	title, sku := sh.ProductID, sh.ProductID
	if s.products != nil && sh.ProductID != "" {
		product, err := s.products.Product(ctx, sh.ProductID)
		switch {
		case err == nil:
			if product.Title != "" {
				title = product.Title
			}
			if product.SKU != "" {
				sku = product.SKU
			}
		case !errors.Is(err, shipper.ErrNotFound):
			s.logger.Ctx(ctx).Warn("Product lookup failed during export",
				zap.String("product_id", sh.ProductID),
				zap.Error(err),
			)
		}
	}

	currency := sh.Currency
	if currency == "" {
		currency = "EUR"
	}
	unit := string(p.Parcel.MassUnit)
	if unit == "" {
		unit = string(shipper.WeightKG)
	}
	weight := p.Parcel.Weight.String()
	amount := sh.Amount.StringFixed(2)
	to := sh.To

	return []string{
		sh.OrderNumber,
		sh.CreatedAt.Format(csvDateLayout),
		to.Name,
		to.Company,
		to.Email,
		to.Phone,
		to.Street1,
		"",
		to.Street2,
		to.City,
		to.State,
		to.Zip,
		to.Country,
		title,
		sku,
		"1",
		weight,
		unit,
		amount,
		currency,
		weight,
		unit,
		amount,
		currency,
	}
}
