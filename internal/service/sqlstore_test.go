package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/clock/clocktest"
	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/store/sqlstore"
)

func newSQLiteService(t *testing.T) (*Service, *sqlstore.Store) {
	t.Helper()
	repo, err := sqlstore.Open(context.Background(), sqlstore.DialectSQLite, ":memory:", sqlstore.Options{Migrate: true})
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	clk := clocktest.NewManual(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), time.Second)
	return New(repo, WithClock(clk)), repo
}

func sqliteProduct(t *testing.T, svc *Service, barcode string, price string, stock int, productType string) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(context.Background(), testPharmacy, domain.CreateProductRequest{
		Barcode: barcode, Name: "Product " + barcode, Price: price, Stock: stock, ProductType: productType,
	})
	if err != nil {
		t.Fatalf("create product %s: %v", barcode, err)
	}
	return product
}

func sqliteStock(t *testing.T, repo *sqlstore.Store, productID string) int {
	t.Helper()
	product, err := repo.FindProduct(context.Background(), testPharmacy, domain.ProductRef{ProductID: productID})
	if err != nil {
		t.Fatalf("find product %s: %v", productID, err)
	}
	return product.Stock
}

func TestSQLiteSaleAndCancelLifecycle(t *testing.T) {
	svc, repo := newSQLiteService(t)
	ctx := context.Background()
	product := sqliteProduct(t, svc, "869-A", "7.50", 10, "")

	sale, err := svc.CreateSale(ctx, testPharmacy, "cashier-1", domain.CreateSaleRequest{
		Items: []domain.ItemRequest{{Barcode: "869-A", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if !sale.Total.Equal(decimal.RequireFromString("15")) {
		t.Fatalf("expected total 15, got %s", sale.Total)
	}
	if got := sqliteStock(t, repo, product.ID); got != 8 {
		t.Fatalf("expected stock 8 after sale, got %d", got)
	}

	cancelled, err := svc.CancelSale(ctx, testPharmacy, sale.ID)
	if err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if cancelled.Status != domain.SaleStatusCancelled || !cancelled.Total.Equal(decimal.RequireFromString("15")) {
		t.Fatalf("unexpected cancelled sale: %+v", cancelled)
	}
	if got := sqliteStock(t, repo, product.ID); got != 10 {
		t.Fatalf("expected stock restored to 10, got %d", got)
	}
	if _, err := svc.RefundSale(ctx, testPharmacy, sale.ID); !errors.Is(err, domain.ErrInvalidStatus) {
		t.Fatalf("expected refund of cancelled sale to fail, got %v", err)
	}

	stored, err := svc.GetSale(ctx, testPharmacy, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if stored.Status != domain.SaleStatusCancelled || len(stored.Items) != 1 || stored.Items[0].Quantity != 2 {
		t.Fatalf("unexpected stored sale: %+v", stored)
	}
}

func TestSQLiteHoldCompletion(t *testing.T) {
	svc, repo := newSQLiteService(t)
	ctx := context.Background()
	general := sqliteProduct(t, svc, "869-G", "4.00", 6, "GENERAL")
	antibiotic := sqliteProduct(t, svc, "869-X", "30.00", 2, "ANTIBIOTIC")

	if _, err := svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{
		Items: []domain.ItemRequest{{ProductID: antibiotic.ID, Quantity: 1}},
	}); !errors.Is(err, domain.ErrPrescriptionRequired) {
		t.Fatalf("expected prescription required, got %v", err)
	}

	held, err := svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{
		Items: []domain.ItemRequest{{ProductID: general.ID, Quantity: 3}},
		Note:  "customer back in 10 minutes",
	})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if got := sqliteStock(t, repo, general.ID); got != 6 {
		t.Fatalf("expected hold to reserve nothing, got stock %d", got)
	}

	sale, err := svc.CompleteHold(ctx, testPharmacy, "", held.ID, "card")
	if err != nil {
		t.Fatalf("complete hold: %v", err)
	}
	if sale.PaymentType != domain.PaymentCard || !sale.Total.Equal(decimal.RequireFromString("12")) || sale.UserID != "cashier-1" {
		t.Fatalf("unexpected sale: %+v", sale)
	}
	if got := sqliteStock(t, repo, general.ID); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
	if holds, _ := svc.ListHolds(ctx, testPharmacy); len(holds.Items) != 0 {
		t.Fatalf("expected hold consumed, got %+v", holds.Items)
	}
}

func TestSQLiteConcurrentSalesNeverOversell(t *testing.T) {
	svc, repo := newSQLiteService(t)
	ctx := context.Background()
	product := sqliteProduct(t, svc, "869-C", "1.00", 5, "")

	const buyers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		sold      int
		shortfall int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateSale(ctx, testPharmacy, "cashier-1", domain.CreateSaleRequest{
				Items: []domain.ItemRequest{{ProductID: product.ID, Quantity: 1}},
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
			case errors.Is(err, domain.ErrInsufficientStock):
				shortfall++
			default:
				t.Errorf("unexpected sale error: %v", err)
			}
		}()
	}
	wg.Wait()

	if sold != 5 || shortfall != buyers-5 {
		t.Fatalf("expected 5 sold and %d refused, got %d and %d", buyers-5, sold, shortfall)
	}
	if got := sqliteStock(t, repo, product.ID); got != 0 {
		t.Fatalf("expected stock 0, got %d", got)
	}
}
