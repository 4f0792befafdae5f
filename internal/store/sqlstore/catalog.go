package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/xid"
)

const productColumns = `
	id, pharmacy_id, barcode, COALESCE(qr_code, '') AS qr_code, name, price, stock,
	low_stock_threshold, product_type, expiry_date, created_at, updated_at`

func (s *Store) FindProduct(ctx context.Context, pharmacyID string, ref domain.ProductRef) (domain.Product, error) {
	var product domain.Product
	var err error
	if ref.ProductID != "" {
		err = s.get(ctx, &product, `
			SELECT `+productColumns+`
			FROM products
			WHERE pharmacy_id = ? AND id = ?
		`, pharmacyID, ref.ProductID)
	} else {
		// Barcode matches win over QR matches.
		err = s.get(ctx, &product, `
			SELECT `+productColumns+`
			FROM products
			WHERE pharmacy_id = ? AND (barcode = ? OR qr_code = ?)
			ORDER BY CASE WHEN barcode = ? THEN 0 ELSE 1 END
			LIMIT 1
		`, pharmacyID, ref.Code, ref.Code, ref.Code)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.Errorf(domain.KindProductNotFound, "product %s%s not found", ref.ProductID, ref.Code)
		}
		return domain.Product{}, s.classify(err, "find product")
	}
	return product, nil
}

// UpdateStock applies the delta with a guarded UPDATE so the row itself can
// never go negative, then records the movement in the same transaction.
func (s *Store) UpdateStock(ctx context.Context, change domain.StockChange) (int, error) {
	var after int
	err := s.RunAtomic(ctx, func(ctx context.Context) error {
		now := change.At.UTC()
		if change.At.IsZero() {
			now = time.Now().UTC()
		}
		if change.Delta > domain.MaxItemQuantity {
			return domain.Errorf(domain.KindInvalidInput, "stock change %d exceeds %d", change.Delta, domain.MaxItemQuantity)
		}
		err := s.get(ctx, &after, `
			UPDATE products
			SET stock = stock + ?, updated_at = ?
			WHERE pharmacy_id = ? AND id = ? AND stock + ? >= 0
			RETURNING stock
		`, change.Delta, now, change.PharmacyID, change.ProductID, change.Delta)
		if errors.Is(err, sql.ErrNoRows) {
			var current int
			lookupErr := s.get(ctx, &current, `SELECT stock FROM products WHERE pharmacy_id = ? AND id = ?`, change.PharmacyID, change.ProductID)
			if errors.Is(lookupErr, sql.ErrNoRows) {
				return domain.Errorf(domain.KindProductNotFound, "product %s not found", change.ProductID)
			}
			if lookupErr != nil {
				return s.classify(lookupErr, "read stock")
			}
			return domain.Errorf(domain.KindInsufficientStock, "insufficient stock for %s: have %d, need %d", change.ProductID, current, -change.Delta)
		}
		if err != nil {
			return s.classify(err, "update stock")
		}

		_, err = s.exec(ctx, `
			INSERT INTO stock_movements (
				id, pharmacy_id, product_id, change_qty, stock_before, stock_after,
				reason, reference_id, user_id, created_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, xid.New("mov"), change.PharmacyID, change.ProductID, change.Delta, after-change.Delta, after,
			string(change.Reason), change.ReferenceID, change.UserID, now)
		return s.classify(err, "insert stock movement")
	})
	if err != nil {
		return 0, err
	}
	return after, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	err := s.RunAtomic(ctx, func(ctx context.Context) error {
		var clashes int
		if err := s.get(ctx, &clashes, `
			SELECT COUNT(*)
			FROM products
			WHERE pharmacy_id = ? AND (barcode IN (?, ?) OR qr_code IN (?, ?))
		`, product.PharmacyID, product.Barcode, product.QRCode, product.Barcode, product.QRCode); err != nil {
			return s.classify(err, "check product codes")
		}
		if clashes > 0 {
			return domain.Errorf(domain.KindInvalidInput, "barcode or qr code already in use")
		}

		_, err := s.exec(ctx, `
			INSERT INTO products (
				id, pharmacy_id, barcode, qr_code, name, price, stock, low_stock_threshold,
				product_type, expiry_date, created_at, updated_at
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, product.ID, product.PharmacyID, product.Barcode, nullIfEmpty(product.QRCode), product.Name,
			product.Price.StringFixed(2), product.Stock, product.LowStockThreshold, string(product.ProductType),
			nullTime(product.ExpiryDate), product.CreatedAt, product.UpdatedAt)
		return s.classify(err, "insert product")
	})
	if err != nil {
		return domain.Product{}, err
	}
	return product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, update domain.ProductUpdate) (domain.Product, error) {
	at := update.At.UTC()
	if update.At.IsZero() {
		at = time.Now().UTC()
	}
	query := `UPDATE products SET updated_at = ?`
	args := []any{at}
	if update.Price != nil {
		query += `, price = ?`
		args = append(args, update.Price.StringFixed(2))
	}
	if update.ProductType != "" {
		query += `, product_type = ?`
		args = append(args, string(update.ProductType))
	}
	if update.ExpiryDate != nil {
		query += `, expiry_date = ?`
		args = append(args, update.ExpiryDate.UTC())
	}
	query += ` WHERE pharmacy_id = ? AND id = ? RETURNING ` + productColumns
	args = append(args, update.PharmacyID, update.ProductID)

	var product domain.Product
	if err := s.get(ctx, &product, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Product{}, domain.Errorf(domain.KindProductNotFound, "product %s not found", update.ProductID)
		}
		return domain.Product{}, s.classify(err, "update product")
	}
	return product, nil
}

func (s *Store) ListProducts(ctx context.Context, pharmacyID string) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 64)
	if err := s.selectAll(ctx, &products, `
		SELECT `+productColumns+`
		FROM products
		WHERE pharmacy_id = ?
		ORDER BY name
	`, pharmacyID); err != nil {
		return nil, s.classify(err, "list products")
	}
	return products, nil
}

func (s *Store) ListLowStock(ctx context.Context, pharmacyID string) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 16)
	if err := s.selectAll(ctx, &products, `
		SELECT `+productColumns+`
		FROM products
		WHERE pharmacy_id = ? AND stock <= low_stock_threshold
		ORDER BY stock ASC, name
	`, pharmacyID); err != nil {
		return nil, s.classify(err, "list low stock")
	}
	return products, nil
}

func (s *Store) ListExpiring(ctx context.Context, pharmacyID string, cutoff time.Time) ([]domain.Product, error) {
	products := make([]domain.Product, 0, 16)
	if err := s.selectAll(ctx, &products, `
		SELECT `+productColumns+`
		FROM products
		WHERE pharmacy_id = ? AND expiry_date IS NOT NULL AND expiry_date <= ?
		ORDER BY expiry_date ASC
	`, pharmacyID, cutoff.UTC()); err != nil {
		return nil, s.classify(err, "list expiring")
	}
	return products, nil
}

func (s *Store) ListStockMovements(ctx context.Context, pharmacyID string, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 200
	}
	movements := make([]domain.StockMovement, 0, 32)
	query := `
		SELECT id, pharmacy_id, product_id, change_qty, stock_before, stock_after,
			reason, reference_id, user_id, created_at
		FROM stock_movements
		WHERE pharmacy_id = ?`
	args := []any{pharmacyID}
	if productID != "" {
		query += ` AND product_id = ?`
		args = append(args, productID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	if err := s.selectAll(ctx, &movements, query, args...); err != nil {
		return nil, s.classify(err, "list stock movements")
	}
	return movements, nil
}
