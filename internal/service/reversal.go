package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/events"
)

func (s *Service) CancelSale(ctx context.Context, pharmacyID string, saleID string) (domain.Sale, error) {
	return s.reverse(ctx, pharmacyID, saleID, domain.SaleStatusCancelled)
}

func (s *Service) RefundSale(ctx context.Context, pharmacyID string, saleID string) (domain.Sale, error) {
	return s.reverse(ctx, pharmacyID, saleID, domain.SaleStatusRefunded)
}

// reverse restores every line's stock and moves a COMPLETED sale to target.
// Terminal statuses are sticky: a second reversal fails with InvalidStatus
// and restores nothing.
func (s *Service) reverse(ctx context.Context, pharmacyID string, saleID string, target domain.SaleStatus) (sale domain.Sale, err error) {
	ctx, span := s.startSpan(ctx, "ReverseSale", pharmacyID,
		attribute.String("sale.id", saleID),
		attribute.String("sale.target_status", string(target)),
	)
	defer func() { endSpan(span, err) }()

	if err := requireTenant(pharmacyID); err != nil {
		return domain.Sale{}, err
	}
	saleID, err = requireID("sale", saleID)
	if err != nil {
		return domain.Sale{}, err
	}

	reason := domain.StockReasonCancel
	eventType := events.SaleCancelled
	if target == domain.SaleStatusRefunded {
		reason = domain.StockReasonRefund
		eventType = events.SaleRefunded
	}
	userID := actorUserID(ctx)

	err = s.atomic(ctx, "reverse_sale", func(ctx context.Context) error {
		current, err := s.repo.FindSale(ctx, pharmacyID, saleID)
		if err != nil {
			return err
		}
		if current.Status != domain.SaleStatusCompleted {
			return domain.Errorf(domain.KindInvalidStatus, "sale %s is %s", saleID, current.Status)
		}
		now := s.clock.Now()
		if err := s.restoreStock(ctx, current, reason, userID, now); err != nil {
			return err
		}

		if err := s.repo.UpdateSaleStatus(ctx, pharmacyID, saleID, domain.SaleStatusCompleted, target, now); err != nil {
			return err
		}
		current.Status = target
		current.UpdatedAt = now
		sale = current
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logger.Info("sale reversed",
		zap.String("pharmacy_id", pharmacyID),
		zap.String("sale_id", saleID),
		zap.String("status", string(target)),
		zap.String("user_id", userID),
	)
	total := sale.Total
	s.publish(ctx, events.Event{
		Type:       eventType,
		PharmacyID: pharmacyID,
		SaleID:     saleID,
		UserID:     userID,
		Total:      &total,
		Status:     string(target),
		OccurredAt: sale.UpdatedAt,
	})
	return sale, nil
}

// DeleteSale erases a sale. A COMPLETED sale gets its stock back first;
// cancelled and refunded sales already returned theirs.
func (s *Service) DeleteSale(ctx context.Context, pharmacyID string, saleID string) (err error) {
	ctx, span := s.startSpan(ctx, "DeleteSale", pharmacyID, attribute.String("sale.id", saleID))
	defer func() { endSpan(span, err) }()

	if err := requireTenant(pharmacyID); err != nil {
		return err
	}
	saleID, err = requireID("sale", saleID)
	if err != nil {
		return err
	}
	userID := actorUserID(ctx)

	var deleted domain.Sale
	err = s.atomic(ctx, "delete_sale", func(ctx context.Context) error {
		current, err := s.repo.FindSale(ctx, pharmacyID, saleID)
		if err != nil {
			return err
		}
		if current.Status == domain.SaleStatusCompleted {
			if err := s.restoreStock(ctx, current, domain.StockReasonDelete, userID, s.clock.Now()); err != nil {
				return err
			}
		}
		if err := s.repo.DeleteSale(ctx, pharmacyID, saleID); err != nil {
			return err
		}
		deleted = current
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("sale deleted",
		zap.String("pharmacy_id", pharmacyID),
		zap.String("sale_id", saleID),
		zap.String("previous_status", string(deleted.Status)),
		zap.String("user_id", userID),
	)
	s.publish(ctx, events.Event{
		Type:       events.SaleDeleted,
		PharmacyID: pharmacyID,
		SaleID:     saleID,
		UserID:     userID,
		Status:     string(deleted.Status),
	})
	return nil
}

func (s *Service) restoreStock(ctx context.Context, sale domain.Sale, reason domain.StockReason, userID string, at time.Time) error {
	for _, item := range sale.Items {
		if _, err := s.repo.UpdateStock(ctx, domain.StockChange{
			PharmacyID:  sale.PharmacyID,
			ProductID:   item.ProductID,
			Delta:       item.Quantity,
			Reason:      reason,
			ReferenceID: sale.ID,
			UserID:      userID,
			At:          at,
		}); err != nil {
			return err
		}
	}
	return nil
}
