package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

func TestPostgresConcurrentDecrementsNeverOversell(t *testing.T) {
	databaseURL := os.Getenv("PHARMAPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set PHARMAPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := Open(ctx, DialectPostgres, databaseURL, Options{Migrate: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	pharmacyID := fmt.Sprintf("ph-it-%d", stamp)
	productID := fmt.Sprintf("prd-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE pharmacy_id = $1`, pharmacyID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE pharmacy_id = $1`, pharmacyID)
	})

	now := time.Now().UTC()
	if _, err := s.CreateProduct(ctx, domain.Product{
		ID: productID, PharmacyID: pharmacyID, Barcode: "BC-" + productID, Name: "Integration product",
		Price: decimal.RequireFromString("9.90"), Stock: 5, LowStockThreshold: domain.DefaultLowStockThreshold,
		ProductType: domain.ProductTypeGeneral, CreatedAt: now, UpdatedAt: now,
	}); err != nil {
		t.Fatalf("create product: %v", err)
	}

	const workers = 10
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for attempt := 0; attempt < 20; attempt++ {
				err := s.RunAtomic(ctx, func(ctx context.Context) error {
					_, err := s.UpdateStock(ctx, domain.StockChange{PharmacyID: pharmacyID, ProductID: productID, Delta: -1, Reason: domain.StockReasonSale})
					return err
				})
				if errors.Is(err, domain.ErrStorageConflict) {
					continue
				}
				if err == nil {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
				return
			}
		}()
	}
	wg.Wait()

	product, err := s.FindProduct(ctx, pharmacyID, domain.ProductRef{ProductID: productID})
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if succeeded != 5 || product.Stock != 0 {
		t.Fatalf("expected exactly 5 successful decrements and stock 0, got %d and %d", succeeded, product.Stock)
	}

	movements, err := s.ListStockMovements(ctx, pharmacyID, productID, 0)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 5 {
		t.Fatalf("expected 5 movements, got %d", len(movements))
	}
}
