package service

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/events"
)

func TestHoldReservesNothingAndCompletes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addProduct(t, testPharmacy, "A", "4.00", 6, domain.ProductTypeGeneral)

	held, err := env.svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{
		Items: []domain.ItemRequest{{Barcode: "BC-A", Quantity: 2}},
		Note:  "  customer comes back at noon ",
	})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if got := env.stock(t, testPharmacy, "A"); got != 6 {
		t.Fatalf("expected hold to reserve nothing, got stock %d", got)
	}
	if held.Note != "customer comes back at noon" || !held.Total.Equal(decimal.RequireFromString("8.00")) {
		t.Fatalf("unexpected hold: %+v", held)
	}

	sale, err := env.svc.CompleteHold(ctx, testPharmacy, "cashier-2", held.ID, "card")
	if err != nil {
		t.Fatalf("complete hold: %v", err)
	}
	if sale.PaymentType != domain.PaymentCard || sale.UserID != "cashier-2" || sale.Status != domain.SaleStatusCompleted {
		t.Fatalf("unexpected sale: %+v", sale)
	}
	if got := env.stock(t, testPharmacy, "A"); got != 4 {
		t.Fatalf("expected stock 4, got %d", got)
	}
	if _, err := env.repo.FindHeldSale(ctx, testPharmacy, held.ID); !errors.Is(err, domain.ErrHoldNotFound) {
		t.Fatalf("expected hold deleted, got %v", err)
	}
	if _, err := env.svc.CompleteHold(ctx, testPharmacy, "cashier-2", held.ID, "card"); !errors.Is(err, domain.ErrHoldNotFound) {
		t.Fatalf("expected second completion to fail, got %v", err)
	}

	types := env.publisher.Types()
	want := []events.Type{events.HoldCreated, events.SaleCompleted, events.HoldCompleted}
	if len(types) != len(want) {
		t.Fatalf("expected events %v, got %v", want, types)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, types)
		}
	}
}

func TestCreateHoldChecksAvailability(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addProduct(t, testPharmacy, "A", "4.00", 3, domain.ProductTypeGeneral)
	env.addProduct(t, testPharmacy, "Q", "9.00", 3, domain.ProductTypeAntibiotic)

	if _, err := env.svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{
		Items: []domain.ItemRequest{{ProductID: "A", Quantity: 2}, {ProductID: "A", Quantity: 2}},
	}); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock for accumulated quantity, got %v", err)
	}
	if _, err := env.svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{
		Items: []domain.ItemRequest{{ProductID: "Q", Quantity: 1}},
	}); !errors.Is(err, domain.ErrPrescriptionRequired) {
		t.Fatalf("expected prescription required, got %v", err)
	}
	if _, err := env.svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{
		Items: []domain.ItemRequest{{ProductID: "missing", Quantity: 1}},
	}); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
	if list, _ := env.svc.ListHolds(ctx, testPharmacy); len(list.Items) != 0 {
		t.Fatalf("expected no holds, got %d", len(list.Items))
	}
}

func TestCompleteHoldRevalidatesStock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addProduct(t, testPharmacy, "A", "4.00", 5, domain.ProductTypeGeneral)

	held, err := env.svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{
		Items: []domain.ItemRequest{{ProductID: "A", Quantity: 4}},
	})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	if _, err := env.svc.CreateSale(ctx, testPharmacy, "cashier-2", domain.CreateSaleRequest{
		Items: []domain.ItemRequest{{ProductID: "A", Quantity: 3}},
	}); err != nil {
		t.Fatalf("intervening sale: %v", err)
	}

	if _, err := env.svc.CompleteHold(ctx, testPharmacy, "cashier-1", held.ID, "cash"); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := env.stock(t, testPharmacy, "A"); got != 2 {
		t.Fatalf("expected stock 2, got %d", got)
	}
	if _, err := env.repo.FindHeldSale(ctx, testPharmacy, held.ID); err != nil {
		t.Fatalf("expected hold to remain for retry, got %v", err)
	}

	if _, err := env.svc.StockEntry(ctx, testPharmacy, "pharmacist-1", domain.StockEntryRequest{ProductID: "A", Quantity: 10}); err != nil {
		t.Fatalf("stock entry: %v", err)
	}
	if _, err := env.svc.CompleteHold(ctx, testPharmacy, "cashier-1", held.ID, "cash"); err != nil {
		t.Fatalf("expected completion after restock, got %v", err)
	}
	if got := env.stock(t, testPharmacy, "A"); got != 8 {
		t.Fatalf("expected stock 8, got %d", got)
	}
}

func TestCompleteHoldUsesCurrentProductState(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addProduct(t, testPharmacy, "A", "4.00", 5, domain.ProductTypeGeneral)

	held, err := env.svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{
		Items: []domain.ItemRequest{{ProductID: "A", Quantity: 1}},
	})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}

	// Reclassify the product behind the hold's back.
	reclassified := env.reclassify(t, "A", domain.ProductTypeAntibiotic, "6.00")
	if !reclassified.RequiresPrescription() {
		t.Fatalf("expected antibiotic")
	}

	if _, err := env.svc.CompleteHold(ctx, testPharmacy, "cashier-1", held.ID, "cash"); !errors.Is(err, domain.ErrPrescriptionRequired) {
		t.Fatalf("expected prescription required at completion, got %v", err)
	}
	if _, err := env.repo.FindHeldSale(ctx, testPharmacy, held.ID); err != nil {
		t.Fatalf("expected hold intact, got %v", err)
	}
	if got := env.stock(t, testPharmacy, "A"); got != 5 {
		t.Fatalf("expected stock 5, got %d", got)
	}
}

func TestCompleteHoldWithPrescriptionAndCurrentPrice(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addProduct(t, testPharmacy, "Q", "10.00", 5, domain.ProductTypeAntibiotic)
	rx := env.prescription(t, testPharmacy)

	held, err := env.svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{
		Items:          []domain.ItemRequest{{ProductID: "Q", Quantity: 2}},
		PrescriptionID: rx.ID,
	})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	env.reclassify(t, "Q", domain.ProductTypeAntibiotic, "12.00")

	sale, err := env.svc.CompleteHold(ctx, testPharmacy, "", held.ID, "")
	if err != nil {
		t.Fatalf("complete hold: %v", err)
	}
	if sale.PrescriptionID == nil || *sale.PrescriptionID != rx.ID {
		t.Fatalf("expected hold prescription carried to sale, got %v", sale.PrescriptionID)
	}
	if !sale.Total.Equal(decimal.RequireFromString("24.00")) {
		t.Fatalf("expected total at current price 24.00, got %s", sale.Total)
	}
	if sale.UserID != "cashier-1" {
		t.Fatalf("expected hold creator as operator, got %q", sale.UserID)
	}
	if got := env.stock(t, testPharmacy, "Q"); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
}

func TestCompleteHoldFailsWhenProductIsGone(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	held := domain.HeldSale{
		ID: "hold_orphan", PharmacyID: testPharmacy, CreatedByID: "cashier-1",
		Items: []domain.SaleLineItem{{ProductID: "gone", ProductName: "Gone", Quantity: 1, UnitPrice: decimal.NewFromInt(1), LineTotal: decimal.NewFromInt(1)}},
		Total: decimal.NewFromInt(1),
	}
	if err := env.repo.CreateHeldSale(ctx, held); err != nil {
		t.Fatalf("seed hold: %v", err)
	}

	if _, err := env.svc.CompleteHold(ctx, testPharmacy, "cashier-1", held.ID, "cash"); !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("expected product not found, got %v", err)
	}
	if _, err := env.repo.FindHeldSale(ctx, testPharmacy, held.ID); err != nil {
		t.Fatalf("expected hold intact, got %v", err)
	}
}

func TestDiscardHold(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addProduct(t, testPharmacy, "A", "4.00", 5, domain.ProductTypeGeneral)

	first, err := env.svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{Items: []domain.ItemRequest{{ProductID: "A", Quantity: 1}}})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}
	second, err := env.svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{Items: []domain.ItemRequest{{ProductID: "A", Quantity: 2}}})
	if err != nil {
		t.Fatalf("create hold: %v", err)
	}

	list, err := env.svc.ListHolds(ctx, testPharmacy)
	if err != nil {
		t.Fatalf("list holds: %v", err)
	}
	if len(list.Items) != 2 || list.Items[0].ID != second.ID {
		t.Fatalf("expected newest hold first, got %+v", list.Items)
	}

	if err := env.svc.DiscardHold(ctx, "ph-other", first.ID); !errors.Is(err, domain.ErrHoldNotFound) {
		t.Fatalf("expected hold not found for other tenant, got %v", err)
	}
	if err := env.svc.DiscardHold(ctx, testPharmacy, first.ID); err != nil {
		t.Fatalf("discard hold: %v", err)
	}
	if err := env.svc.DiscardHold(ctx, testPharmacy, first.ID); !errors.Is(err, domain.ErrHoldNotFound) {
		t.Fatalf("expected hold not found on second discard, got %v", err)
	}
	if got := env.stock(t, testPharmacy, "A"); got != 5 {
		t.Fatalf("expected discard to leave stock at 5, got %d", got)
	}
	if list, _ := env.svc.ListHolds(ctx, testPharmacy); len(list.Items) != 1 {
		t.Fatalf("expected one hold left, got %d", len(list.Items))
	}
}

// reclassify edits a product's type and price between operations.
func (e *testEnv) reclassify(t *testing.T, id string, productType domain.ProductType, price string) domain.Product {
	t.Helper()
	newPrice := decimal.RequireFromString(price)
	product, err := e.repo.UpdateProduct(context.Background(), domain.ProductUpdate{
		PharmacyID:  testPharmacy,
		ProductID:   id,
		Price:       &newPrice,
		ProductType: productType,
		At:          e.clock.Now(),
	})
	if err != nil {
		t.Fatalf("update product %s: %v", id, err)
	}
	return product
}

func TestCreateHoldRejectsOversizedQuantities(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.addProduct(t, testPharmacy, "A", "1.00", 10, domain.ProductTypeGeneral)

	for name, items := range map[string][]domain.ItemRequest{
		"max int line": {{ProductID: "A", Quantity: 5}, {ProductID: "A", Quantity: math.MaxInt}},
		"summed lines": {{ProductID: "A", Quantity: domain.MaxItemQuantity}, {Barcode: "BC-A", Quantity: domain.MaxItemQuantity}},
	} {
		if _, err := env.svc.CreateHold(ctx, testPharmacy, "cashier-1", domain.CreateHoldRequest{Items: items}); !errors.Is(err, domain.ErrInvalidInput) {
			t.Fatalf("%s: expected invalid input, got %v", name, err)
		}
	}
	if holds, _ := env.svc.ListHolds(ctx, testPharmacy); len(holds.Items) != 0 {
		t.Fatalf("expected no holds, got %d", len(holds.Items))
	}
}
