package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

const registerColumns = `id, pharmacy_id, opening_cash, closing_cash, status, opened_by_id, opened_at, closed_at`

func (s *Store) GetActiveRegister(ctx context.Context, pharmacyID string) (domain.CashRegister, error) {
	var reg domain.CashRegister
	err := s.get(ctx, &reg, `
		SELECT `+registerColumns+`
		FROM cash_registers
		WHERE pharmacy_id = ? AND status = ?
		ORDER BY opened_at DESC
		LIMIT 1
	`, pharmacyID, string(domain.RegisterOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CashRegister{}, domain.Errorf(domain.KindNotFound, "no open cash register")
		}
		return domain.CashRegister{}, s.classify(err, "find open register")
	}
	return reg, nil
}

// OpenRegister relies on the partial unique index over open registers, so
// two concurrent opens cannot both succeed.
func (s *Store) OpenRegister(ctx context.Context, register domain.CashRegister) error {
	_, err := s.exec(ctx, `
		INSERT INTO cash_registers (id, pharmacy_id, opening_cash, closing_cash, status, opened_by_id, opened_at, closed_at)
		VALUES (?, ?, ?, NULL, ?, ?, ?, NULL)
	`, register.ID, register.PharmacyID, register.OpeningCash.StringFixed(2), string(domain.RegisterOpen),
		register.OpenedByID, register.OpenedAt)
	if isUniqueViolation(err) {
		return domain.Wrap(domain.KindInvalidStatus, err, "cash register already open")
	}
	return s.classify(err, "insert cash register")
}

func (s *Store) CloseActiveRegister(ctx context.Context, pharmacyID string, closingCash decimal.Decimal, closedAt time.Time) (domain.CashRegister, error) {
	var reg domain.CashRegister
	err := s.get(ctx, &reg, `
		UPDATE cash_registers
		SET status = ?, closing_cash = ?, closed_at = ?
		WHERE pharmacy_id = ? AND status = ?
		RETURNING `+registerColumns,
		string(domain.RegisterClosed), closingCash.StringFixed(2), closedAt, pharmacyID, string(domain.RegisterOpen))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.CashRegister{}, domain.Errorf(domain.KindInvalidStatus, "no open cash register")
		}
		return domain.CashRegister{}, s.classify(err, "close cash register")
	}
	return reg, nil
}

type purchaseOrderRow struct {
	ID           string              `db:"id"`
	PharmacyID   string              `db:"pharmacy_id"`
	SupplierName string              `db:"supplier_name"`
	Status       string              `db:"status"`
	ExpectedAt   *time.Time          `db:"expected_at"`
	Total        decimal.NullDecimal `db:"total"`
	Notes        string              `db:"notes"`
	Items        string              `db:"items"`
	CreatedAt    time.Time           `db:"created_at"`
}

func (r purchaseOrderRow) toDomain() (domain.PurchaseOrder, error) {
	po := domain.PurchaseOrder{
		ID:           r.ID,
		PharmacyID:   r.PharmacyID,
		SupplierName: r.SupplierName,
		Status:       domain.PurchaseOrderStatus(r.Status),
		ExpectedAt:   r.ExpectedAt,
		Total:        r.Total,
		Notes:        r.Notes,
		CreatedAt:    r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Items), &po.Items); err != nil {
		return domain.PurchaseOrder{}, err
	}
	return po, nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	items, err := json.Marshal(po.Items)
	if err != nil {
		return err
	}
	var total any
	if po.Total.Valid {
		total = po.Total.Decimal.StringFixed(2)
	}
	_, err = s.exec(ctx, `
		INSERT INTO purchase_orders (id, pharmacy_id, supplier_name, status, expected_at, total, notes, items, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, po.ID, po.PharmacyID, po.SupplierName, string(po.Status), nullTime(po.ExpectedAt), total, po.Notes,
		string(items), po.CreatedAt)
	return s.classify(err, "insert purchase order")
}

func (s *Store) ListPurchaseOrders(ctx context.Context, pharmacyID string, limit int) ([]domain.PurchaseOrder, error) {
	if limit < 1 {
		limit = 200
	}
	rows := make([]purchaseOrderRow, 0, 16)
	if err := s.selectAll(ctx, &rows, `
		SELECT id, pharmacy_id, supplier_name, status, expected_at, total, notes, items, created_at
		FROM purchase_orders
		WHERE pharmacy_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, pharmacyID, limit); err != nil {
		return nil, s.classify(err, "list purchase orders")
	}

	out := make([]domain.PurchaseOrder, 0, len(rows))
	for _, row := range rows {
		po, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, po)
	}
	return out, nil
}
