package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/events"
	"pharmapos/backend/internal/xid"
)

// CreateSale resolves, gates and decrements every requested line inside one
// unit of work and records the sale. Any failure leaves stock untouched.
func (s *Service) CreateSale(ctx context.Context, pharmacyID string, userID string, req domain.CreateSaleRequest) (sale domain.Sale, err error) {
	ctx, span := s.startSpan(ctx, "CreateSale", pharmacyID, attribute.Int("sale.items", len(req.Items)))
	defer func() { endSpan(span, err) }()

	if err := requireTenant(pharmacyID); err != nil {
		return domain.Sale{}, err
	}
	lines, err := normalizeItems(req.Items)
	if err != nil {
		return domain.Sale{}, err
	}
	paymentType := domain.ParsePaymentType(req.PaymentType)
	codes := s.primeCodes(ctx, pharmacyID, lines)

	err = s.atomic(ctx, "create_sale", func(ctx context.Context) error {
		prescriptionID, verified, err := s.attachedPrescription(ctx, pharmacyID, req.PrescriptionID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		draft := domain.Sale{
			ID:             xid.New("sale"),
			PharmacyID:     pharmacyID,
			UserID:         userID,
			PaymentType:    paymentType,
			Status:         domain.SaleStatusCompleted,
			PrescriptionID: prescriptionID,
			Items:          make([]domain.SaleLineItem, 0, len(lines)),
			CreatedAt:      now,
			UpdatedAt:      now,
		}

		for _, line := range lines {
			product, err := s.findProduct(ctx, pharmacyID, line.ref, codes)
			if err != nil {
				return err
			}
			if err := checkPrescription(product, verified); err != nil {
				return err
			}
			if err := checkStock(product, line.quantity); err != nil {
				return err
			}
			draft.Items = append(draft.Items, lineItem(product, line.quantity))
			if _, err := s.repo.UpdateStock(ctx, domain.StockChange{
				PharmacyID:  pharmacyID,
				ProductID:   product.ID,
				Delta:       -line.quantity,
				Reason:      domain.StockReasonSale,
				ReferenceID: draft.ID,
				UserID:      userID,
				At:          now,
			}); err != nil {
				return err
			}
		}
		draft.Total = sumLines(draft.Items)

		if err := s.repo.CreateSale(ctx, draft); err != nil {
			return err
		}
		sale = draft
		return nil
	})
	s.rememberCodes(ctx, pharmacyID, codes)
	if err != nil {
		return domain.Sale{}, err
	}

	s.logger.Info("sale created",
		zap.String("pharmacy_id", pharmacyID),
		zap.String("sale_id", sale.ID),
		zap.String("user_id", userID),
		zap.String("total", sale.Total.StringFixed(2)),
		zap.Int("items", len(sale.Items)),
	)
	total := sale.Total
	s.publish(ctx, events.Event{
		Type:       events.SaleCompleted,
		PharmacyID: pharmacyID,
		SaleID:     sale.ID,
		UserID:     userID,
		Total:      &total,
		Status:     string(sale.Status),
		OccurredAt: sale.CreatedAt,
	})
	return sale, nil
}

func (s *Service) GetSale(ctx context.Context, pharmacyID string, saleID string) (domain.Sale, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.Sale{}, err
	}
	saleID, err := requireID("sale", saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	return s.repo.FindSale(ctx, pharmacyID, saleID)
}

func (s *Service) ListSales(ctx context.Context, pharmacyID string, limit int) (domain.SaleListResponse, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.SaleListResponse{}, err
	}
	if limit < 1 || limit > 500 {
		limit = 200
	}
	sales, err := s.repo.ListSales(ctx, pharmacyID, limit)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{Items: sales}, nil
}
