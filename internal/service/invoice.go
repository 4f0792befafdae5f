package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/events"
	"pharmapos/backend/internal/xid"
)

const unnamedProduct = "Unnamed product"

type invoiceLine struct {
	barcode     string
	qrCode      string
	name        string
	quantity    int
	price       decimal.Decimal
	productType domain.ProductType
	expiry      *time.Time
	skip        bool
}

func normalizeInvoice(items []domain.InvoiceItem) ([]invoiceLine, error) {
	if len(items) == 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "invoice has no items")
	}
	lines := make([]invoiceLine, 0, len(items))
	for i, item := range items {
		line := invoiceLine{
			barcode:  strings.TrimSpace(item.Barcode),
			qrCode:   strings.TrimSpace(item.QRCode),
			name:     strings.TrimSpace(item.Name),
			quantity: item.Quantity,
		}
		if line.qrCode == line.barcode {
			line.qrCode = ""
		}
		if line.name == "" {
			line.name = unnamedProduct
		}
		if line.quantity > domain.MaxItemQuantity {
			return nil, domain.Errorf(domain.KindInvalidInput, "item %d: quantity must be at most %d", i+1, domain.MaxItemQuantity)
		}
		if raw := strings.TrimSpace(item.Price); raw != "" {
			price, err := decimal.NewFromString(raw)
			if err != nil {
				return nil, domain.Wrap(domain.KindInvalidInput, err, "invalid price")
			}
			if price.IsNegative() {
				return nil, domain.Errorf(domain.KindInvalidInput, "item %d: price must not be negative", i+1)
			}
			line.price = price.Round(2)
		}
		switch pt := domain.ProductType(strings.ToUpper(strings.TrimSpace(item.ProductType))); pt {
		case "", domain.ProductTypeGeneral, domain.ProductTypeAntibiotic:
			line.productType = pt
		default:
			return nil, domain.Errorf(domain.KindInvalidInput, "item %d: unknown product type %q", i+1, item.ProductType)
		}
		if item.ExpiryDate != nil {
			expiry := item.ExpiryDate.UTC()
			line.expiry = &expiry
		}
		line.skip = (line.barcode == "" && line.qrCode == "") || line.quantity <= 0
		lines = append(lines, line)
	}
	return lines, nil
}

// ImportWarehouseInvoice books a supplier invoice in one unit of work.
// Known products (by barcode, then QR code) get the quantity added and
// their price, type and expiry refreshed; unknown products with a barcode
// are created. Lines without any code or with a non-positive quantity are
// skipped and counted.
func (s *Service) ImportWarehouseInvoice(ctx context.Context, pharmacyID string, userID string, req domain.WarehouseInvoiceRequest) (summary domain.InvoiceImportSummary, err error) {
	ctx, span := s.startSpan(ctx, "ImportWarehouseInvoice", pharmacyID, attribute.Int("invoice.items", len(req.Items)))
	defer func() { endSpan(span, err) }()

	if err := requireTenant(pharmacyID); err != nil {
		return domain.InvoiceImportSummary{}, err
	}
	lines, err := normalizeInvoice(req.Items)
	if err != nil {
		return domain.InvoiceImportSummary{}, err
	}
	reference := strings.TrimSpace(req.InvoiceNo)
	if reference == "" {
		reference = xid.New("inv")
	}

	err = s.atomic(ctx, "import_invoice", func(ctx context.Context) error {
		summary = domain.InvoiceImportSummary{}
		now := s.clock.Now()
		for _, line := range lines {
			if line.skip {
				summary.Skipped++
				continue
			}
			existing, err := s.lookupInvoiceProduct(ctx, pharmacyID, line)
			switch {
			case err == nil:
				if err := s.refreshFromInvoice(ctx, existing, line, reference, userID, now); err != nil {
					return err
				}
				summary.Updated++
			case errors.Is(err, domain.ErrProductNotFound):
				if line.barcode == "" {
					summary.Skipped++
					continue
				}
				if err := s.createFromInvoice(ctx, pharmacyID, line, reference, userID, now); err != nil {
					return err
				}
				summary.Created++
			default:
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domain.InvoiceImportSummary{}, err
	}

	s.logger.Info("warehouse invoice imported",
		zap.String("pharmacy_id", pharmacyID),
		zap.String("invoice", reference),
		zap.String("user_id", userID),
		zap.Int("created", summary.Created),
		zap.Int("updated", summary.Updated),
		zap.Int("skipped", summary.Skipped),
	)
	s.publish(ctx, events.Event{
		Type:       events.InvoiceImported,
		PharmacyID: pharmacyID,
		RefID:      reference,
		UserID:     userID,
		Quantity:   summary.Created + summary.Updated,
	})
	return summary, nil
}

func (s *Service) lookupInvoiceProduct(ctx context.Context, pharmacyID string, line invoiceLine) (domain.Product, error) {
	for _, code := range []string{line.barcode, line.qrCode} {
		if code == "" {
			continue
		}
		product, err := s.repo.FindProduct(ctx, pharmacyID, domain.ProductRef{Code: code})
		if err == nil || !errors.Is(err, domain.ErrProductNotFound) {
			return product, err
		}
	}
	return domain.Product{}, domain.ErrProductNotFound
}

func (s *Service) refreshFromInvoice(ctx context.Context, product domain.Product, line invoiceLine, reference string, userID string, now time.Time) error {
	if _, err := s.repo.UpdateStock(ctx, domain.StockChange{
		PharmacyID:  product.PharmacyID,
		ProductID:   product.ID,
		Delta:       line.quantity,
		Reason:      domain.StockReasonEntry,
		ReferenceID: reference,
		UserID:      userID,
		At:          now,
	}); err != nil {
		return err
	}

	update := domain.ProductUpdate{
		PharmacyID:  product.PharmacyID,
		ProductID:   product.ID,
		ProductType: line.productType,
		ExpiryDate:  line.expiry,
		At:          now,
	}
	if line.price.IsPositive() {
		price := line.price
		update.Price = &price
	}
	_, err := s.repo.UpdateProduct(ctx, update)
	return err
}

func (s *Service) createFromInvoice(ctx context.Context, pharmacyID string, line invoiceLine, reference string, userID string, now time.Time) error {
	productType := line.productType
	if productType == "" {
		productType = domain.ProductTypeGeneral
	}
	created, err := s.repo.CreateProduct(ctx, domain.Product{
		ID:                xid.New("prd"),
		PharmacyID:        pharmacyID,
		Barcode:           line.barcode,
		QRCode:            line.qrCode,
		Name:              line.name,
		Price:             line.price,
		LowStockThreshold: domain.DefaultLowStockThreshold,
		ProductType:       productType,
		ExpiryDate:        line.expiry,
		CreatedAt:         now,
		UpdatedAt:         now,
	})
	if err != nil {
		return err
	}
	_, err = s.repo.UpdateStock(ctx, domain.StockChange{
		PharmacyID:  pharmacyID,
		ProductID:   created.ID,
		Delta:       line.quantity,
		Reason:      domain.StockReasonEntry,
		ReferenceID: reference,
		UserID:      userID,
		At:          now,
	})
	return err
}
