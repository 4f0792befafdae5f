package service

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

func TestImportWarehouseInvoiceUpsertsProducts(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addProduct(t, testPharmacy, "A", "10.00", 4, domain.ProductTypeGeneral)
	expiry := time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC)

	summary, err := env.svc.ImportWarehouseInvoice(ctx, testPharmacy, "pharmacist-1", domain.WarehouseInvoiceRequest{
		InvoiceNo: "INV-77",
		Items: []domain.InvoiceItem{
			{Barcode: "BC-A", Quantity: 6, Price: "11.50", ProductType: "antibiotic", ExpiryDate: &expiry},
			{Barcode: "869-NEW", QRCode: "QR-NEW", Name: "Majezik", Quantity: 12, Price: "78.00"},
			{QRCode: "QR-A", Quantity: 1},
			{Name: "no code", Quantity: 3},
			{Barcode: "869-ZERO", Quantity: 0},
			{QRCode: "QR-ONLY-UNKNOWN", Quantity: 2},
		},
	})
	if err != nil {
		t.Fatalf("import invoice: %v", err)
	}
	if summary != (domain.InvoiceImportSummary{Created: 1, Updated: 2, Skipped: 3}) {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	a, _ := env.repo.FindProduct(ctx, testPharmacy, domain.ProductRef{ProductID: "A"})
	if a.Stock != 11 || !a.Price.Equal(decimal.RequireFromString("11.50")) || a.ProductType != domain.ProductTypeAntibiotic {
		t.Fatalf("unexpected updated product: %+v", a)
	}
	if a.ExpiryDate == nil || !a.ExpiryDate.Equal(expiry) {
		t.Fatalf("expected expiry refreshed, got %v", a.ExpiryDate)
	}

	created, err := env.repo.FindProduct(ctx, testPharmacy, domain.ProductRef{Code: "869-NEW"})
	if err != nil {
		t.Fatalf("find created product: %v", err)
	}
	if created.Stock != 12 || created.Name != "Majezik" || created.ProductType != domain.ProductTypeGeneral || created.LowStockThreshold != domain.DefaultLowStockThreshold {
		t.Fatalf("unexpected created product: %+v", created)
	}

	movements, err := env.svc.ListStockMovements(ctx, testPharmacy, "", 0)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements.Items) != 3 {
		t.Fatalf("expected three movements, got %d", len(movements.Items))
	}
	for _, mv := range movements.Items {
		if mv.Reason != domain.StockReasonEntry || mv.ReferenceID != "INV-77" || mv.UserID != "pharmacist-1" {
			t.Fatalf("unexpected movement: %+v", mv)
		}
	}
}

func TestImportWarehouseInvoiceIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addProduct(t, testPharmacy, "A", "10.00", 4, domain.ProductTypeGeneral)
	env.addProduct(t, testPharmacy, "B", "10.00", math.MaxInt-1, domain.ProductTypeGeneral)

	_, err := env.svc.ImportWarehouseInvoice(ctx, testPharmacy, "pharmacist-1", domain.WarehouseInvoiceRequest{
		Items: []domain.InvoiceItem{
			{Barcode: "BC-A", Quantity: 5, Price: "12.00"},
			{Barcode: "BC-B", Quantity: 5},
		},
	})
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected the overflowing line to fail the import, got %v", err)
	}
	a, _ := env.repo.FindProduct(ctx, testPharmacy, domain.ProductRef{ProductID: "A"})
	if a.Stock != 4 || !a.Price.Equal(decimal.RequireFromString("10.00")) {
		t.Fatalf("expected product A untouched, got %+v", a)
	}
	if movements, _ := env.svc.ListStockMovements(ctx, testPharmacy, "", 0); len(movements.Items) != 0 {
		t.Fatalf("expected no movements, got %+v", movements.Items)
	}
}

func TestImportWarehouseInvoiceValidatesRequest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	for name, req := range map[string]domain.WarehouseInvoiceRequest{
		"empty":     {},
		"bad price": {Items: []domain.InvoiceItem{{Barcode: "1", Quantity: 1, Price: "x"}}},
		"bad type":  {Items: []domain.InvoiceItem{{Barcode: "1", Quantity: 1, ProductType: "VITAMIN"}}},
		"too many":  {Items: []domain.InvoiceItem{{Barcode: "1", Quantity: domain.MaxItemQuantity + 1}}},
	} {
		if _, err := env.svc.ImportWarehouseInvoice(ctx, testPharmacy, "pharmacist-1", req); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
}

func TestInvoiceReclassificationGatesHeldAntibiotic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addProduct(t, testPharmacy, "A", "5.00", 5, domain.ProductTypeGeneral)

	held, err := env.svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{
		Items: []domain.ItemRequest{{ProductID: "A", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if _, err := env.svc.ImportWarehouseInvoice(ctx, testPharmacy, "pharmacist-1", domain.WarehouseInvoiceRequest{
		Items: []domain.InvoiceItem{{Barcode: "BC-A", Quantity: 1, Price: "7.00", ProductType: "ANTIBIOTIC"}},
	}); err != nil {
		t.Fatalf("import invoice: %v", err)
	}

	if _, err := env.svc.CompleteHold(ctx, testPharmacy, "cashier-1", held.ID, "cash"); !errors.Is(err, domain.ErrPrescriptionRequired) {
		t.Fatalf("expected prescription required after reclassification, got %v", err)
	}
	if got := env.stock(t, testPharmacy, "A"); got != 6 {
		t.Fatalf("expected stock 6 after invoice only, got %d", got)
	}
}
