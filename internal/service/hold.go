package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/events"
	"pharmapos/backend/internal/xid"
)

// CreateHold runs the sale checks as an availability check only. Nothing is
// reserved, so CompleteHold validates everything again.
func (s *Service) CreateHold(ctx context.Context, pharmacyID string, userID string, req domain.CreateHoldRequest) (held domain.HeldSale, err error) {
	ctx, span := s.startSpan(ctx, "CreateHold", pharmacyID, attribute.Int("hold.items", len(req.Items)))
	defer func() { endSpan(span, err) }()

	if err := requireTenant(pharmacyID); err != nil {
		return domain.HeldSale{}, err
	}
	lines, err := normalizeItems(req.Items)
	if err != nil {
		return domain.HeldSale{}, err
	}
	codes := s.primeCodes(ctx, pharmacyID, lines)

	err = s.atomic(ctx, "create_hold", func(ctx context.Context) error {
		prescriptionID, verified, err := s.attachedPrescription(ctx, pharmacyID, req.PrescriptionID)
		if err != nil {
			return err
		}

		draft := domain.HeldSale{
			ID:             xid.New("hold"),
			PharmacyID:     pharmacyID,
			CreatedByID:    userID,
			Note:           strings.TrimSpace(req.Note),
			PrescriptionID: prescriptionID,
			Items:          make([]domain.SaleLineItem, 0, len(lines)),
			CreatedAt:      s.clock.Now(),
		}

		// Repeated products must fit in stock together.
		requested := make(map[string]int, len(lines))
		for _, line := range lines {
			product, err := s.findProduct(ctx, pharmacyID, line.ref, codes)
			if err != nil {
				return err
			}
			if err := checkPrescription(product, verified); err != nil {
				return err
			}
			requested[product.ID] += line.quantity
			if requested[product.ID] > domain.MaxItemQuantity {
				return domain.Errorf(domain.KindInvalidInput, "total quantity for %s exceeds %d", product.Name, domain.MaxItemQuantity)
			}
			if err := checkStock(product, requested[product.ID]); err != nil {
				return err
			}
			draft.Items = append(draft.Items, lineItem(product, line.quantity))
		}
		draft.Total = sumLines(draft.Items)

		if err := s.repo.CreateHeldSale(ctx, draft); err != nil {
			return err
		}
		held = draft
		return nil
	})
	s.rememberCodes(ctx, pharmacyID, codes)
	if err != nil {
		return domain.HeldSale{}, err
	}

	s.logger.Info("hold created",
		zap.String("pharmacy_id", pharmacyID),
		zap.String("hold_id", held.ID),
		zap.String("user_id", userID),
		zap.Int("items", len(held.Items)),
	)
	total := held.Total
	s.publish(ctx, events.Event{
		Type:       events.HoldCreated,
		PharmacyID: pharmacyID,
		HoldID:     held.ID,
		UserID:     userID,
		Total:      &total,
		OccurredAt: held.CreatedAt,
	})
	return held, nil
}

func (s *Service) ListHolds(ctx context.Context, pharmacyID string) (domain.HeldSaleListResponse, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.HeldSaleListResponse{}, err
	}
	items, err := s.repo.ListHeldSales(ctx, pharmacyID)
	if err != nil {
		return domain.HeldSaleListResponse{}, err
	}
	return domain.HeldSaleListResponse{Items: items}, nil
}

// CompleteHold turns a hold into a sale against the products as they are
// now: current stock, current type and current price. The hold's recorded
// prescription is what opens the antibiotic gate. On any failure the hold
// stays in place.
func (s *Service) CompleteHold(ctx context.Context, pharmacyID string, userID string, holdID string, paymentType string) (sale domain.Sale, err error) {
	ctx, span := s.startSpan(ctx, "CompleteHold", pharmacyID, attribute.String("hold.id", holdID))
	defer func() { endSpan(span, err) }()

	if err := requireTenant(pharmacyID); err != nil {
		return domain.Sale{}, err
	}
	holdID, err = requireID("hold", holdID)
	if err != nil {
		return domain.Sale{}, err
	}
	payment := domain.ParsePaymentType(paymentType)

	var operator string
	err = s.atomic(ctx, "complete_hold", func(ctx context.Context) error {
		held, err := s.repo.FindHeldSale(ctx, pharmacyID, holdID)
		if err != nil {
			return err
		}
		if len(held.Items) == 0 {
			return domain.Errorf(domain.KindInvalidInput, "held sale %s has no items", holdID)
		}
		operator = userID
		if operator == "" {
			operator = held.CreatedByID
		}

		now := s.clock.Now()
		draft := domain.Sale{
			ID:             xid.New("sale"),
			PharmacyID:     pharmacyID,
			UserID:         operator,
			PaymentType:    payment,
			Status:         domain.SaleStatusCompleted,
			PrescriptionID: held.PrescriptionID,
			Items:          make([]domain.SaleLineItem, 0, len(held.Items)),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		attached := held.PrescriptionID != nil

		for _, item := range held.Items {
			product, err := s.repo.FindProduct(ctx, pharmacyID, domain.ProductRef{ProductID: item.ProductID})
			if err != nil {
				return err
			}
			if err := checkPrescription(product, attached); err != nil {
				return err
			}
			if err := checkStock(product, item.Quantity); err != nil {
				return err
			}
			draft.Items = append(draft.Items, lineItem(product, item.Quantity))
			if _, err := s.repo.UpdateStock(ctx, domain.StockChange{
				PharmacyID:  pharmacyID,
				ProductID:   product.ID,
				Delta:       -item.Quantity,
				Reason:      domain.StockReasonHoldCompletion,
				ReferenceID: draft.ID,
				UserID:      operator,
				At:          now,
			}); err != nil {
				return err
			}
		}
		draft.Total = sumLines(draft.Items)

		if err := s.repo.CreateSale(ctx, draft); err != nil {
			return err
		}
		if err := s.repo.DeleteHeldSale(ctx, pharmacyID, holdID); err != nil {
			return err
		}
		sale = draft
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logger.Info("hold completed",
		zap.String("pharmacy_id", pharmacyID),
		zap.String("hold_id", holdID),
		zap.String("sale_id", sale.ID),
		zap.String("user_id", operator),
		zap.String("total", sale.Total.StringFixed(2)),
	)
	total := sale.Total
	s.publish(ctx, events.Event{
		Type:       events.SaleCompleted,
		PharmacyID: pharmacyID,
		SaleID:     sale.ID,
		HoldID:     holdID,
		UserID:     operator,
		Total:      &total,
		Status:     string(sale.Status),
		OccurredAt: sale.CreatedAt,
	})
	s.publish(ctx, events.Event{
		Type:       events.HoldCompleted,
		PharmacyID: pharmacyID,
		SaleID:     sale.ID,
		HoldID:     holdID,
		UserID:     operator,
		Total:      &total,
		OccurredAt: sale.CreatedAt,
	})
	return sale, nil
}

// DiscardHold drops a hold. No stock moves because none was reserved.
func (s *Service) DiscardHold(ctx context.Context, pharmacyID string, holdID string) (err error) {
	ctx, span := s.startSpan(ctx, "DiscardHold", pharmacyID, attribute.String("hold.id", holdID))
	defer func() { endSpan(span, err) }()

	if err := requireTenant(pharmacyID); err != nil {
		return err
	}
	holdID, err = requireID("hold", holdID)
	if err != nil {
		return err
	}

	err = s.atomic(ctx, "discard_hold", func(ctx context.Context) error {
		return s.repo.DeleteHeldSale(ctx, pharmacyID, holdID)
	})
	if err != nil {
		return err
	}

	s.logger.Info("hold discarded", zap.String("pharmacy_id", pharmacyID), zap.String("hold_id", holdID))
	s.publish(ctx, events.Event{
		Type:       events.HoldDiscarded,
		PharmacyID: pharmacyID,
		HoldID:     holdID,
		UserID:     actorUserID(ctx),
	})
	return nil
}
