package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/events"
	"pharmapos/backend/internal/xid"
)

func (s *Service) CreateProduct(ctx context.Context, pharmacyID string, req domain.CreateProductRequest) (domain.Product, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.Product{}, err
	}

	req.Barcode = strings.TrimSpace(req.Barcode)
	req.QRCode = strings.TrimSpace(req.QRCode)
	req.Name = strings.TrimSpace(req.Name)
	if req.Barcode == "" || req.Name == "" {
		return domain.Product{}, domain.Errorf(domain.KindInvalidInput, "barcode and name are required")
	}
	if req.QRCode != "" && req.QRCode == req.Barcode {
		return domain.Product{}, domain.Errorf(domain.KindInvalidInput, "qr code must differ from barcode")
	}

	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		return domain.Product{}, domain.Wrap(domain.KindInvalidInput, err, "invalid price")
	}
	if price.IsNegative() {
		return domain.Product{}, domain.Errorf(domain.KindInvalidInput, "price must not be negative")
	}
	if req.Stock < 0 {
		return domain.Product{}, domain.Errorf(domain.KindInvalidInput, "stock must not be negative")
	}

	threshold := domain.DefaultLowStockThreshold
	if req.LowStockThreshold != nil {
		if *req.LowStockThreshold < 0 {
			return domain.Product{}, domain.Errorf(domain.KindInvalidInput, "low stock threshold must not be negative")
		}
		threshold = *req.LowStockThreshold
	}

	productType := domain.ProductType(strings.ToUpper(strings.TrimSpace(req.ProductType)))
	switch productType {
	case "":
		productType = domain.ProductTypeGeneral
	case domain.ProductTypeGeneral, domain.ProductTypeAntibiotic:
	default:
		return domain.Product{}, domain.Errorf(domain.KindInvalidInput, "unknown product type %q", req.ProductType)
	}

	now := s.clock.Now()
	product := domain.Product{
		ID:                xid.New("prd"),
		PharmacyID:        pharmacyID,
		Barcode:           req.Barcode,
		QRCode:            req.QRCode,
		Name:              req.Name,
		Price:             price.Round(2),
		Stock:             req.Stock,
		LowStockThreshold: threshold,
		ProductType:       productType,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if req.ExpiryDate != nil {
		expiry := req.ExpiryDate.UTC()
		product.ExpiryDate = &expiry
	}

	var created domain.Product
	err = s.atomic(ctx, "create_product", func(ctx context.Context) error {
		var err error
		created, err = s.repo.CreateProduct(ctx, product)
		return err
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("product created",
		zap.String("pharmacy_id", pharmacyID),
		zap.String("product_id", created.ID),
		zap.String("product_type", string(created.ProductType)),
		zap.Int("stock", created.Stock),
	)
	return created, nil
}

func (s *Service) ListProducts(ctx context.Context, pharmacyID string) (domain.ProductListResponse, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.ProductListResponse{}, err
	}
	products, err := s.repo.ListProducts(ctx, pharmacyID)
	if err != nil {
		return domain.ProductListResponse{}, err
	}
	return domain.ProductListResponse{Items: products}, nil
}

// StockEntry books incoming goods against one product.
func (s *Service) StockEntry(ctx context.Context, pharmacyID string, userID string, req domain.StockEntryRequest) (product domain.Product, err error) {
	ctx, span := s.startSpan(ctx, "StockEntry", pharmacyID, attribute.Int("stock.quantity", req.Quantity))
	defer func() { endSpan(span, err) }()

	if err := requireTenant(pharmacyID); err != nil {
		return domain.Product{}, err
	}
	lines, err := normalizeItems([]domain.ItemRequest{{ProductID: req.ProductID, Barcode: req.Barcode, Quantity: req.Quantity}})
	if err != nil {
		return domain.Product{}, err
	}
	line := lines[0]
	codes := s.primeCodes(ctx, pharmacyID, lines)

	err = s.atomic(ctx, "stock_entry", func(ctx context.Context) error {
		found, err := s.findProduct(ctx, pharmacyID, line.ref, codes)
		if err != nil {
			return err
		}
		after, err := s.repo.UpdateStock(ctx, domain.StockChange{
			PharmacyID: pharmacyID,
			ProductID:  found.ID,
			Delta:      line.quantity,
			Reason:     domain.StockReasonEntry,
			UserID:     userID,
			At:         s.clock.Now(),
		})
		if err != nil {
			return err
		}
		found.Stock = after
		product = found
		return nil
	})
	s.rememberCodes(ctx, pharmacyID, codes)
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("stock entry booked",
		zap.String("pharmacy_id", pharmacyID),
		zap.String("product_id", product.ID),
		zap.Int("quantity", line.quantity),
		zap.Int("stock", product.Stock),
	)
	s.publish(ctx, events.Event{
		Type:       events.StockEntry,
		PharmacyID: pharmacyID,
		ProductID:  product.ID,
		UserID:     userID,
		Quantity:   line.quantity,
	})
	return product, nil
}

func (s *Service) ListLowStock(ctx context.Context, pharmacyID string) (domain.ProductListResponse, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.ProductListResponse{}, err
	}
	products, err := s.repo.ListLowStock(ctx, pharmacyID)
	if err != nil {
		return domain.ProductListResponse{}, err
	}
	return domain.ProductListResponse{Items: products}, nil
}

// ListExpiring returns products expiring within days from now, soonest
// first. Already expired products are included.
func (s *Service) ListExpiring(ctx context.Context, pharmacyID string, days int) (domain.ProductListResponse, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.ProductListResponse{}, err
	}
	if days < 1 {
		days = DefaultExpiryWindow
	}
	if days > 3650 {
		return domain.ProductListResponse{}, domain.Errorf(domain.KindInvalidInput, "days must be at most 3650")
	}
	cutoff := s.clock.Now().AddDate(0, 0, days)
	products, err := s.repo.ListExpiring(ctx, pharmacyID, cutoff)
	if err != nil {
		return domain.ProductListResponse{}, err
	}
	return domain.ProductListResponse{Items: products}, nil
}

func (s *Service) ListStockMovements(ctx context.Context, pharmacyID string, productID string, limit int) (domain.StockMovementListResponse, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.StockMovementListResponse{}, err
	}
	if limit < 1 || limit > 1000 {
		limit = 200
	}
	movements, err := s.repo.ListStockMovements(ctx, pharmacyID, strings.TrimSpace(productID), limit)
	if err != nil {
		return domain.StockMovementListResponse{}, err
	}
	return domain.StockMovementListResponse{Items: movements}, nil
}
