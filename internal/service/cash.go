package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/events"
	"pharmapos/backend/internal/xid"
)

// parseCash reads a non-negative money amount. Empty means zero.
func parseCash(raw string, field string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, domain.Wrap(domain.KindInvalidInput, err, "invalid "+field)
	}
	if amount.IsNegative() {
		return decimal.Decimal{}, domain.Errorf(domain.KindInvalidInput, "%s must not be negative", field)
	}
	return amount.Round(2), nil
}

// CashStatus reports the open register, or a nil Open when the till is
// closed.
func (s *Service) CashStatus(ctx context.Context, pharmacyID string) (domain.CashStatusResponse, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.CashStatusResponse{}, err
	}
	reg, err := s.repo.GetActiveRegister(ctx, pharmacyID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.CashStatusResponse{}, nil
		}
		return domain.CashStatusResponse{}, err
	}
	return domain.CashStatusResponse{Open: &reg}, nil
}

func (s *Service) OpenRegister(ctx context.Context, pharmacyID string, userID string, req domain.OpenRegisterRequest) (reg domain.CashRegister, err error) {
	ctx, span := s.startSpan(ctx, "OpenRegister", pharmacyID)
	defer func() { endSpan(span, err) }()

	if err := requireTenant(pharmacyID); err != nil {
		return domain.CashRegister{}, err
	}
	openingCash, err := parseCash(req.OpeningCash, "opening cash")
	if err != nil {
		return domain.CashRegister{}, err
	}

	err = s.atomic(ctx, "open_register", func(ctx context.Context) error {
		if _, err := s.repo.GetActiveRegister(ctx, pharmacyID); err == nil {
			return domain.Errorf(domain.KindInvalidStatus, "cash register already open")
		} else if !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		draft := domain.CashRegister{
			ID:          xid.New("reg"),
			PharmacyID:  pharmacyID,
			OpeningCash: openingCash,
			Status:      domain.RegisterOpen,
			OpenedByID:  userID,
			OpenedAt:    s.clock.Now(),
		}
		if err := s.repo.OpenRegister(ctx, draft); err != nil {
			return err
		}
		reg = draft
		return nil
	})
	if err != nil {
		return domain.CashRegister{}, err
	}

	s.logger.Info("cash register opened",
		zap.String("pharmacy_id", pharmacyID),
		zap.String("register_id", reg.ID),
		zap.String("user_id", userID),
		zap.String("opening_cash", reg.OpeningCash.StringFixed(2)),
	)
	amount := reg.OpeningCash
	s.publish(ctx, events.Event{
		Type:       events.RegisterOpened,
		PharmacyID: pharmacyID,
		RefID:      reg.ID,
		UserID:     userID,
		Total:      &amount,
		OccurredAt: reg.OpenedAt,
	})
	return reg, nil
}

func (s *Service) CloseRegister(ctx context.Context, pharmacyID string, userID string, req domain.CloseRegisterRequest) (reg domain.CashRegister, err error) {
	ctx, span := s.startSpan(ctx, "CloseRegister", pharmacyID)
	defer func() { endSpan(span, err) }()

	if err := requireTenant(pharmacyID); err != nil {
		return domain.CashRegister{}, err
	}
	closingCash, err := parseCash(req.ClosingCash, "closing cash")
	if err != nil {
		return domain.CashRegister{}, err
	}

	err = s.atomic(ctx, "close_register", func(ctx context.Context) error {
		var err error
		reg, err = s.repo.CloseActiveRegister(ctx, pharmacyID, closingCash, s.clock.Now())
		return err
	})
	if err != nil {
		return domain.CashRegister{}, err
	}

	s.logger.Info("cash register closed",
		zap.String("pharmacy_id", pharmacyID),
		zap.String("register_id", reg.ID),
		zap.String("user_id", userID),
		zap.String("closing_cash", closingCash.StringFixed(2)),
	)
	s.publish(ctx, events.Event{
		Type:       events.RegisterClosed,
		PharmacyID: pharmacyID,
		RefID:      reg.ID,
		UserID:     userID,
		Total:      &closingCash,
	})
	return reg, nil
}

func (s *Service) CreatePurchaseOrder(ctx context.Context, pharmacyID string, req domain.CreatePurchaseOrderRequest) (po domain.PurchaseOrder, err error) {
	ctx, span := s.startSpan(ctx, "CreatePurchaseOrder", pharmacyID, attribute.Int("order.items", len(req.Items)))
	defer func() { endSpan(span, err) }()

	if err := requireTenant(pharmacyID); err != nil {
		return domain.PurchaseOrder{}, err
	}
	supplier := strings.TrimSpace(req.SupplierName)
	if supplier == "" || len(req.Items) == 0 {
		return domain.PurchaseOrder{}, domain.Errorf(domain.KindInvalidInput, "supplier name and at least one item are required")
	}

	items := make([]domain.PurchaseOrderItem, 0, len(req.Items))
	for i, item := range req.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		item.Barcode = strings.TrimSpace(item.Barcode)
		item.Name = strings.TrimSpace(item.Name)
		switch {
		case item.ProductID == "" && item.Barcode == "" && item.Name == "":
			return domain.PurchaseOrder{}, domain.Errorf(domain.KindInvalidInput, "item %d: product_id, barcode or name is required", i+1)
		case item.Quantity < 1 || item.Quantity > domain.MaxItemQuantity:
			return domain.PurchaseOrder{}, domain.Errorf(domain.KindInvalidInput, "item %d: quantity must be between 1 and %d", i+1, domain.MaxItemQuantity)
		case item.UnitCost.Valid && item.UnitCost.Decimal.IsNegative():
			return domain.PurchaseOrder{}, domain.Errorf(domain.KindInvalidInput, "item %d: unit cost must not be negative", i+1)
		}
		items = append(items, item)
	}

	draft := domain.PurchaseOrder{
		ID:           xid.New("po"),
		PharmacyID:   pharmacyID,
		SupplierName: supplier,
		Status:       domain.PurchaseOrderDraft,
		Notes:        strings.TrimSpace(req.Notes),
		Items:        items,
		CreatedAt:    s.clock.Now(),
	}
	if req.ExpectedAt != nil {
		expected := req.ExpectedAt.UTC()
		draft.ExpectedAt = &expected
	}
	if strings.TrimSpace(req.Total) != "" {
		total, err := parseCash(req.Total, "total")
		if err != nil {
			return domain.PurchaseOrder{}, err
		}
		draft.Total = decimal.NewNullDecimal(total)
	}

	err = s.atomic(ctx, "create_purchase_order", func(ctx context.Context) error {
		return s.repo.CreatePurchaseOrder(ctx, draft)
	})
	if err != nil {
		return domain.PurchaseOrder{}, err
	}

	s.logger.Info("purchase order created",
		zap.String("pharmacy_id", pharmacyID),
		zap.String("order_id", draft.ID),
		zap.String("supplier", supplier),
		zap.Int("items", len(items)),
	)
	s.publish(ctx, events.Event{
		Type:       events.PurchaseOrderCreated,
		PharmacyID: pharmacyID,
		RefID:      draft.ID,
		UserID:     actorUserID(ctx),
		OccurredAt: draft.CreatedAt,
	})
	return draft, nil
}

func (s *Service) ListPurchaseOrders(ctx context.Context, pharmacyID string, limit int) (domain.PurchaseOrderListResponse, error) {
	if err := requireTenant(pharmacyID); err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	if limit < 1 || limit > 1000 {
		limit = 200
	}
	orders, err := s.repo.ListPurchaseOrders(ctx, pharmacyID, limit)
	if err != nil {
		return domain.PurchaseOrderListResponse{}, err
	}
	return domain.PurchaseOrderListResponse{Items: orders}, nil
}
