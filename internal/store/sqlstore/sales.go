package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

func (s *Store) FindPrescription(ctx context.Context, pharmacyID string, id string) (domain.Prescription, error) {
	var p domain.Prescription
	err := s.get(ctx, &p, `
		SELECT id, pharmacy_id, patient_tc, prescription_no, status, created_by_id, created_at
		FROM prescriptions
		WHERE pharmacy_id = ? AND id = ?
	`, pharmacyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Prescription{}, domain.Errorf(domain.KindPrescriptionNotFound, "prescription %s not found", id)
		}
		return domain.Prescription{}, s.classify(err, "find prescription")
	}
	return p, nil
}

func (s *Store) FindOrCreatePrescription(ctx context.Context, p domain.Prescription) (domain.Prescription, bool, error) {
	var (
		found   domain.Prescription
		created bool
	)
	err := s.RunAtomic(ctx, func(ctx context.Context) error {
		res, err := s.exec(ctx, `
			INSERT INTO prescriptions (id, pharmacy_id, patient_tc, prescription_no, status, created_by_id, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (pharmacy_id, patient_tc, prescription_no) DO NOTHING
		`, p.ID, p.PharmacyID, p.PatientTC, p.PrescriptionNo, string(p.Status), p.CreatedByID, p.CreatedAt)
		if err != nil {
			return s.classify(err, "insert prescription")
		}
		if n, err := res.RowsAffected(); err == nil && n == 1 {
			created = true
		}
		err = s.get(ctx, &found, `
			SELECT id, pharmacy_id, patient_tc, prescription_no, status, created_by_id, created_at
			FROM prescriptions
			WHERE pharmacy_id = ? AND patient_tc = ? AND prescription_no = ?
		`, p.PharmacyID, p.PatientTC, p.PrescriptionNo)
		return s.classify(err, "read prescription")
	})
	if err != nil {
		return domain.Prescription{}, false, err
	}
	return found, created, nil
}

func (s *Store) ListPrescriptions(ctx context.Context, pharmacyID string) ([]domain.Prescription, error) {
	out := make([]domain.Prescription, 0, 32)
	if err := s.selectAll(ctx, &out, `
		SELECT id, pharmacy_id, patient_tc, prescription_no, status, created_by_id, created_at
		FROM prescriptions
		WHERE pharmacy_id = ?
		ORDER BY created_at DESC, id DESC
	`, pharmacyID); err != nil {
		return nil, s.classify(err, "list prescriptions")
	}
	return out, nil
}

type saleItemRow struct {
	SaleID   string `db:"sale_id"`
	Position int    `db:"position"`
	domain.SaleLineItem
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) error {
	return s.RunAtomic(ctx, func(ctx context.Context) error {
		_, err := s.exec(ctx, `
			INSERT INTO sales (id, pharmacy_id, user_id, total, payment_type, status, prescription_id, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sale.ID, sale.PharmacyID, sale.UserID, sale.Total.StringFixed(2), string(sale.PaymentType),
			string(sale.Status), sale.PrescriptionID, sale.CreatedAt, sale.UpdatedAt)
		if err != nil {
			return s.classify(err, "insert sale")
		}

		for i, item := range sale.Items {
			_, err := s.exec(ctx, `
				INSERT INTO sale_items (sale_id, position, product_id, product_name, quantity, unit_price, line_total)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, sale.ID, i, item.ProductID, item.ProductName, item.Quantity, item.UnitPrice.StringFixed(2), item.LineTotal.StringFixed(2))
			if err != nil {
				return s.classify(err, "insert sale item")
			}
		}
		return nil
	})
}

const saleColumns = `id, pharmacy_id, user_id, total, payment_type, status, prescription_id, created_at, updated_at`

func (s *Store) FindSale(ctx context.Context, pharmacyID string, id string) (domain.Sale, error) {
	var sale domain.Sale
	err := s.get(ctx, &sale, `SELECT `+saleColumns+` FROM sales WHERE pharmacy_id = ? AND id = ?`, pharmacyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Sale{}, domain.Errorf(domain.KindNotFound, "sale %s not found", id)
		}
		return domain.Sale{}, s.classify(err, "find sale")
	}

	sales := []domain.Sale{sale}
	if err := s.attachItems(ctx, sales); err != nil {
		return domain.Sale{}, err
	}
	return sales[0], nil
}

func (s *Store) attachItems(ctx context.Context, sales []domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]string, 0, len(sales))
	index := make(map[string]int, len(sales))
	for i, sale := range sales {
		ids = append(ids, sale.ID)
		index[sale.ID] = i
		sales[i].Items = make([]domain.SaleLineItem, 0, 4)
	}

	query, args, err := sqlx.In(`
		SELECT sale_id, position, product_id, product_name, quantity, unit_price, line_total
		FROM sale_items
		WHERE sale_id IN (?)
		ORDER BY sale_id, position
	`, ids)
	if err != nil {
		return err
	}
	rows := make([]saleItemRow, 0, len(ids)*2)
	if err := s.selectAll(ctx, &rows, query, args...); err != nil {
		return s.classify(err, "load sale items")
	}
	for _, row := range rows {
		i := index[row.SaleID]
		sales[i].Items = append(sales[i].Items, row.SaleLineItem)
	}
	return nil
}

func (s *Store) UpdateSaleStatus(ctx context.Context, pharmacyID string, id string, from domain.SaleStatus, to domain.SaleStatus, at time.Time) error {
	return s.RunAtomic(ctx, func(ctx context.Context) error {
		res, err := s.exec(ctx, `
			UPDATE sales SET status = ?, updated_at = ?
			WHERE pharmacy_id = ? AND id = ? AND status = ?
		`, string(to), at, pharmacyID, id, string(from))
		if err != nil {
			return s.classify(err, "update sale status")
		}
		if n, err := res.RowsAffected(); err != nil {
			return s.classify(err, "update sale status")
		} else if n == 1 {
			return nil
		}

		var current string
		err = s.get(ctx, &current, `SELECT status FROM sales WHERE pharmacy_id = ? AND id = ?`, pharmacyID, id)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Errorf(domain.KindNotFound, "sale %s not found", id)
		}
		if err != nil {
			return s.classify(err, "read sale status")
		}
		return domain.Errorf(domain.KindInvalidStatus, "sale %s is %s", id, current)
	})
}

func (s *Store) DeleteSale(ctx context.Context, pharmacyID string, id string) error {
	return s.RunAtomic(ctx, func(ctx context.Context) error {
		res, err := s.exec(ctx, `DELETE FROM sales WHERE pharmacy_id = ? AND id = ?`, pharmacyID, id)
		if err != nil {
			return s.classify(err, "delete sale")
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return domain.Errorf(domain.KindNotFound, "sale %s not found", id)
		}
		_, err = s.exec(ctx, `DELETE FROM sale_items WHERE sale_id = ?`, id)
		return s.classify(err, "delete sale items")
	})
}

func (s *Store) ListSales(ctx context.Context, pharmacyID string, limit int) ([]domain.Sale, error) {
	if limit < 1 {
		limit = 200
	}
	sales := make([]domain.Sale, 0, limit)
	if err := s.selectAll(ctx, &sales, `
		SELECT `+saleColumns+`
		FROM sales
		WHERE pharmacy_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`, pharmacyID, limit); err != nil {
		return nil, s.classify(err, "list sales")
	}
	if err := s.attachItems(ctx, sales); err != nil {
		return nil, err
	}
	return sales, nil
}

type heldSaleRow struct {
	ID             string          `db:"id"`
	PharmacyID     string          `db:"pharmacy_id"`
	CreatedByID    string          `db:"created_by_id"`
	Note           string          `db:"note"`
	PrescriptionID *string         `db:"prescription_id"`
	Items          string          `db:"items"`
	Total          decimal.Decimal `db:"total"`
	CreatedAt      time.Time       `db:"created_at"`
}

func (r heldSaleRow) toDomain() (domain.HeldSale, error) {
	held := domain.HeldSale{
		ID:             r.ID,
		PharmacyID:     r.PharmacyID,
		CreatedByID:    r.CreatedByID,
		Note:           r.Note,
		PrescriptionID: r.PrescriptionID,
		Total:          r.Total,
		CreatedAt:      r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.Items), &held.Items); err != nil {
		return domain.HeldSale{}, err
	}
	return held, nil
}

const heldSaleColumns = `id, pharmacy_id, created_by_id, note, prescription_id, items, total, created_at`

func (s *Store) CreateHeldSale(ctx context.Context, held domain.HeldSale) error {
	items, err := json.Marshal(held.Items)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `
		INSERT INTO held_sales (id, pharmacy_id, created_by_id, note, prescription_id, items, total, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, held.ID, held.PharmacyID, held.CreatedByID, held.Note, held.PrescriptionID, string(items),
		held.Total.StringFixed(2), held.CreatedAt)
	return s.classify(err, "insert held sale")
}

func (s *Store) FindHeldSale(ctx context.Context, pharmacyID string, id string) (domain.HeldSale, error) {
	var row heldSaleRow
	err := s.get(ctx, &row, `SELECT `+heldSaleColumns+` FROM held_sales WHERE pharmacy_id = ? AND id = ?`, pharmacyID, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.HeldSale{}, domain.Errorf(domain.KindHoldNotFound, "held sale %s not found", id)
		}
		return domain.HeldSale{}, s.classify(err, "find held sale")
	}
	return row.toDomain()
}

func (s *Store) ListHeldSales(ctx context.Context, pharmacyID string) ([]domain.HeldSale, error) {
	rows := make([]heldSaleRow, 0, 16)
	if err := s.selectAll(ctx, &rows, `
		SELECT `+heldSaleColumns+`
		FROM held_sales
		WHERE pharmacy_id = ?
		ORDER BY created_at DESC, id DESC
	`, pharmacyID); err != nil {
		return nil, s.classify(err, "list held sales")
	}

	out := make([]domain.HeldSale, 0, len(rows))
	for _, row := range rows {
		held, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, held)
	}
	return out, nil
}

func (s *Store) DeleteHeldSale(ctx context.Context, pharmacyID string, id string) error {
	res, err := s.exec(ctx, `DELETE FROM held_sales WHERE pharmacy_id = ? AND id = ?`, pharmacyID, id)
	if err != nil {
		return s.classify(err, "delete held sale")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.Errorf(domain.KindHoldNotFound, "held sale %s not found", id)
	}
	return nil
}
