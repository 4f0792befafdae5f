package memory

import (
	"context"
	"math"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
	"pharmapos/backend/internal/xid"
)

// Store keeps everything in maps behind a single mutex. RunAtomic holds the
// mutex for the whole unit, which makes units fully serial; writes made
// inside a unit register undo closures that run if the unit fails.
type Store struct {
	mu            sync.Mutex
	products      map[string]domain.Product
	prescriptions map[string]domain.Prescription
	sales         map[string]domain.Sale
	heldSales     map[string]domain.HeldSale
	registers     map[string]domain.CashRegister
	orders        map[string]domain.PurchaseOrder
	movements     []domain.StockMovement
}

func New() *Store {
	return &Store{
		products:      make(map[string]domain.Product),
		prescriptions: make(map[string]domain.Prescription),
		sales:         make(map[string]domain.Sale),
		heldSales:     make(map[string]domain.HeldSale),
		registers:     make(map[string]domain.CashRegister),
		orders:        make(map[string]domain.PurchaseOrder),
	}
}

type unitKey struct{}

type unit struct {
	owner *Store
	undo  []func()
}

func (u *unit) onRollback(fn func()) {
	if u != nil {
		u.undo = append(u.undo, fn)
	}
}

func (u *unit) rollback() {
	for i := len(u.undo) - 1; i >= 0; i-- {
		u.undo[i]()
	}
	u.undo = nil
}

func (s *Store) RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error {
	if u, ok := ctx.Value(unitKey{}).(*unit); ok && u.owner == s {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	u := &unit{owner: s}
	defer func() {
		if r := recover(); r != nil {
			u.rollback()
			panic(r)
		}
	}()

	if err := fn(context.WithValue(ctx, unitKey{}, u)); err != nil {
		u.rollback()
		return err
	}
	return nil
}

// acquire locks the store unless ctx already belongs to a unit of this
// store, in which case the unit's lock is reused.
func (s *Store) acquire(ctx context.Context) (*unit, func()) {
	if u, ok := ctx.Value(unitKey{}).(*unit); ok && u.owner == s {
		return u, func() {}
	}
	s.mu.Lock()
	return nil, s.mu.Unlock
}

func (s *Store) FindProduct(ctx context.Context, pharmacyID string, ref domain.ProductRef) (domain.Product, error) {
	_, release := s.acquire(ctx)
	defer release()

	if ref.ProductID != "" {
		product, ok := s.products[ref.ProductID]
		if !ok || product.PharmacyID != pharmacyID {
			return domain.Product{}, domain.Errorf(domain.KindProductNotFound, "product %s not found", ref.ProductID)
		}
		return cloneProduct(product), nil
	}

	code := strings.TrimSpace(ref.Code)
	if code == "" {
		return domain.Product{}, domain.ErrProductNotFound
	}
	var qrMatch *domain.Product
	for _, product := range s.products {
		if product.PharmacyID != pharmacyID {
			continue
		}
		if product.Barcode == code {
			return cloneProduct(product), nil
		}
		if qrMatch == nil && product.QRCode != "" && product.QRCode == code {
			p := product
			qrMatch = &p
		}
	}
	if qrMatch != nil {
		return cloneProduct(*qrMatch), nil
	}
	return domain.Product{}, domain.Errorf(domain.KindProductNotFound, "no product with code %s", code)
}

func (s *Store) UpdateStock(ctx context.Context, change domain.StockChange) (int, error) {
	u, release := s.acquire(ctx)
	defer release()

	product, ok := s.products[change.ProductID]
	if !ok || product.PharmacyID != change.PharmacyID {
		return 0, domain.Errorf(domain.KindProductNotFound, "product %s not found", change.ProductID)
	}
	before := product.Stock
	if change.Delta > 0 && before > math.MaxInt-change.Delta {
		return before, domain.Errorf(domain.KindInvalidInput, "stock for %s would overflow", product.Name)
	}
	after := before + change.Delta
	if after < 0 {
		return before, domain.Errorf(domain.KindInsufficientStock, "insufficient stock for %s: have %d, need %d", product.Name, before, -change.Delta)
	}

	previous := product
	now := change.At
	if now.IsZero() {
		now = time.Now().UTC()
	}
	product.Stock = after
	product.UpdatedAt = now
	s.products[product.ID] = product

	movement := domain.StockMovement{
		ID:          xid.New("mov"),
		PharmacyID:  change.PharmacyID,
		ProductID:   change.ProductID,
		Change:      change.Delta,
		StockBefore: before,
		StockAfter:  after,
		Reason:      change.Reason,
		ReferenceID: change.ReferenceID,
		UserID:      change.UserID,
		CreatedAt:   now,
	}
	s.movements = append(s.movements, movement)

	u.onRollback(func() {
		s.products[change.ProductID] = previous
		for i := len(s.movements) - 1; i >= 0; i-- {
			if s.movements[i].ID == movement.ID {
				s.movements = slices.Delete(s.movements, i, i+1)
				break
			}
		}
	})
	return after, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error) {
	u, release := s.acquire(ctx)
	defer release()

	for _, existing := range s.products {
		if existing.PharmacyID != product.PharmacyID {
			continue
		}
		if codeClash(existing, product) {
			return domain.Product{}, domain.Errorf(domain.KindInvalidInput, "barcode or qr code already in use")
		}
	}
	if _, exists := s.products[product.ID]; exists {
		return domain.Product{}, domain.Errorf(domain.KindInvalidInput, "product %s already exists", product.ID)
	}

	s.products[product.ID] = cloneProduct(product)
	u.onRollback(func() { delete(s.products, product.ID) })
	return cloneProduct(product), nil
}

func (s *Store) UpdateProduct(ctx context.Context, update domain.ProductUpdate) (domain.Product, error) {
	u, release := s.acquire(ctx)
	defer release()

	product, ok := s.products[update.ProductID]
	if !ok || product.PharmacyID != update.PharmacyID {
		return domain.Product{}, domain.Errorf(domain.KindProductNotFound, "product %s not found", update.ProductID)
	}
	previous := cloneProduct(product)
	if update.Price != nil {
		product.Price = *update.Price
	}
	if update.ProductType != "" {
		product.ProductType = update.ProductType
	}
	if update.ExpiryDate != nil {
		expiry := *update.ExpiryDate
		product.ExpiryDate = &expiry
	}
	product.UpdatedAt = update.At
	if product.UpdatedAt.IsZero() {
		product.UpdatedAt = time.Now().UTC()
	}
	s.products[product.ID] = product
	u.onRollback(func() { s.products[previous.ID] = previous })
	return cloneProduct(product), nil
}

func codeClash(a domain.Product, b domain.Product) bool {
	codes := []string{a.Barcode, a.QRCode}
	for _, code := range []string{b.Barcode, b.QRCode} {
		if code != "" && slices.Contains(codes, code) {
			return true
		}
	}
	return false
}

func (s *Store) ListProducts(ctx context.Context, pharmacyID string) ([]domain.Product, error) {
	return s.filterProducts(ctx, pharmacyID, func(domain.Product) bool { return true }, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	}), nil
}

func (s *Store) ListLowStock(ctx context.Context, pharmacyID string) ([]domain.Product, error) {
	return s.filterProducts(ctx, pharmacyID, func(p domain.Product) bool {
		return p.Stock <= p.LowStockThreshold
	}, func(a, b domain.Product) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return strings.Compare(a.Name, b.Name)
	}), nil
}

func (s *Store) ListExpiring(ctx context.Context, pharmacyID string, cutoff time.Time) ([]domain.Product, error) {
	return s.filterProducts(ctx, pharmacyID, func(p domain.Product) bool {
		return p.ExpiryDate != nil && !p.ExpiryDate.After(cutoff)
	}, func(a, b domain.Product) int {
		return a.ExpiryDate.Compare(*b.ExpiryDate)
	}), nil
}

func (s *Store) filterProducts(ctx context.Context, pharmacyID string, keep func(domain.Product) bool, cmp func(a, b domain.Product) int) []domain.Product {
	_, release := s.acquire(ctx)
	defer release()

	out := make([]domain.Product, 0, 16)
	for _, product := range s.products {
		if product.PharmacyID == pharmacyID && keep(product) {
			out = append(out, cloneProduct(product))
		}
	}
	slices.SortFunc(out, cmp)
	return out
}

func (s *Store) ListStockMovements(ctx context.Context, pharmacyID string, productID string, limit int) ([]domain.StockMovement, error) {
	_, release := s.acquire(ctx)
	defer release()

	out := make([]domain.StockMovement, 0, 16)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if m.PharmacyID != pharmacyID || (productID != "" && m.ProductID != productID) {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *Store) FindPrescription(ctx context.Context, pharmacyID string, id string) (domain.Prescription, error) {
	_, release := s.acquire(ctx)
	defer release()

	p, ok := s.prescriptions[id]
	if !ok || p.PharmacyID != pharmacyID {
		return domain.Prescription{}, domain.Errorf(domain.KindPrescriptionNotFound, "prescription %s not found", id)
	}
	return p, nil
}

func (s *Store) FindOrCreatePrescription(ctx context.Context, p domain.Prescription) (domain.Prescription, bool, error) {
	u, release := s.acquire(ctx)
	defer release()

	for _, existing := range s.prescriptions {
		if existing.PharmacyID == p.PharmacyID && existing.PatientTC == p.PatientTC && existing.PrescriptionNo == p.PrescriptionNo {
			return existing, false, nil
		}
	}
	s.prescriptions[p.ID] = p
	u.onRollback(func() { delete(s.prescriptions, p.ID) })
	return p, true, nil
}

func (s *Store) ListPrescriptions(ctx context.Context, pharmacyID string) ([]domain.Prescription, error) {
	_, release := s.acquire(ctx)
	defer release()

	out := make([]domain.Prescription, 0, 16)
	for _, p := range s.prescriptions {
		if p.PharmacyID == pharmacyID {
			out = append(out, p)
		}
	}
	slices.SortFunc(out, func(a, b domain.Prescription) int {
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return out, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) error {
	u, release := s.acquire(ctx)
	defer release()

	if _, exists := s.sales[sale.ID]; exists {
		return domain.Errorf(domain.KindInvalidInput, "sale %s already exists", sale.ID)
	}
	s.sales[sale.ID] = cloneSale(sale)
	u.onRollback(func() { delete(s.sales, sale.ID) })
	return nil
}

func (s *Store) FindSale(ctx context.Context, pharmacyID string, id string) (domain.Sale, error) {
	_, release := s.acquire(ctx)
	defer release()

	sale, ok := s.sales[id]
	if !ok || sale.PharmacyID != pharmacyID {
		return domain.Sale{}, domain.Errorf(domain.KindNotFound, "sale %s not found", id)
	}
	return cloneSale(sale), nil
}

func (s *Store) UpdateSaleStatus(ctx context.Context, pharmacyID string, id string, from domain.SaleStatus, to domain.SaleStatus, at time.Time) error {
	u, release := s.acquire(ctx)
	defer release()

	sale, ok := s.sales[id]
	if !ok || sale.PharmacyID != pharmacyID {
		return domain.Errorf(domain.KindNotFound, "sale %s not found", id)
	}
	if sale.Status != from {
		return domain.Errorf(domain.KindInvalidStatus, "sale %s is %s", id, sale.Status)
	}
	previous := sale
	sale.Status = to
	sale.UpdatedAt = at
	s.sales[id] = sale
	u.onRollback(func() { s.sales[id] = previous })
	return nil
}

func (s *Store) DeleteSale(ctx context.Context, pharmacyID string, id string) error {
	u, release := s.acquire(ctx)
	defer release()

	sale, ok := s.sales[id]
	if !ok || sale.PharmacyID != pharmacyID {
		return domain.Errorf(domain.KindNotFound, "sale %s not found", id)
	}
	delete(s.sales, id)
	u.onRollback(func() { s.sales[id] = sale })
	return nil
}

func (s *Store) ListSales(ctx context.Context, pharmacyID string, limit int) ([]domain.Sale, error) {
	_, release := s.acquire(ctx)
	defer release()

	out := make([]domain.Sale, 0, 16)
	for _, sale := range s.sales {
		if sale.PharmacyID == pharmacyID {
			out = append(out, cloneSale(sale))
		}
	}
	slices.SortFunc(out, func(a, b domain.Sale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CreateHeldSale(ctx context.Context, held domain.HeldSale) error {
	u, release := s.acquire(ctx)
	defer release()

	if _, exists := s.heldSales[held.ID]; exists {
		return domain.Errorf(domain.KindInvalidInput, "held sale %s already exists", held.ID)
	}
	s.heldSales[held.ID] = cloneHeldSale(held)
	u.onRollback(func() { delete(s.heldSales, held.ID) })
	return nil
}

func (s *Store) FindHeldSale(ctx context.Context, pharmacyID string, id string) (domain.HeldSale, error) {
	_, release := s.acquire(ctx)
	defer release()

	held, ok := s.heldSales[id]
	if !ok || held.PharmacyID != pharmacyID {
		return domain.HeldSale{}, domain.Errorf(domain.KindHoldNotFound, "held sale %s not found", id)
	}
	return cloneHeldSale(held), nil
}

func (s *Store) ListHeldSales(ctx context.Context, pharmacyID string) ([]domain.HeldSale, error) {
	_, release := s.acquire(ctx)
	defer release()

	out := make([]domain.HeldSale, 0, 8)
	for _, held := range s.heldSales {
		if held.PharmacyID == pharmacyID {
			out = append(out, cloneHeldSale(held))
		}
	}
	slices.SortFunc(out, func(a, b domain.HeldSale) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) DeleteHeldSale(ctx context.Context, pharmacyID string, id string) error {
	u, release := s.acquire(ctx)
	defer release()

	held, ok := s.heldSales[id]
	if !ok || held.PharmacyID != pharmacyID {
		return domain.Errorf(domain.KindHoldNotFound, "held sale %s not found", id)
	}
	delete(s.heldSales, id)
	u.onRollback(func() { s.heldSales[id] = held })
	return nil
}

// activeRegister returns the newest OPEN register. Callers hold the lock.
func (s *Store) activeRegister(pharmacyID string) (domain.CashRegister, bool) {
	var (
		active domain.CashRegister
		found  bool
	)
	for _, reg := range s.registers {
		if reg.PharmacyID != pharmacyID || reg.Status != domain.RegisterOpen {
			continue
		}
		if !found || reg.OpenedAt.After(active.OpenedAt) {
			active = reg
			found = true
		}
	}
	return active, found
}

func (s *Store) GetActiveRegister(ctx context.Context, pharmacyID string) (domain.CashRegister, error) {
	_, release := s.acquire(ctx)
	defer release()

	reg, ok := s.activeRegister(pharmacyID)
	if !ok {
		return domain.CashRegister{}, domain.Errorf(domain.KindNotFound, "no open cash register")
	}
	return cloneRegister(reg), nil
}

func (s *Store) OpenRegister(ctx context.Context, register domain.CashRegister) error {
	u, release := s.acquire(ctx)
	defer release()

	if _, open := s.activeRegister(register.PharmacyID); open {
		return domain.Errorf(domain.KindInvalidStatus, "cash register already open")
	}
	if _, exists := s.registers[register.ID]; exists {
		return domain.Errorf(domain.KindInvalidInput, "cash register %s already exists", register.ID)
	}
	register.Status = domain.RegisterOpen
	register.ClosedAt = nil
	register.ClosingCash = decimal.NullDecimal{}
	s.registers[register.ID] = register
	u.onRollback(func() { delete(s.registers, register.ID) })
	return nil
}

func (s *Store) CloseActiveRegister(ctx context.Context, pharmacyID string, closingCash decimal.Decimal, closedAt time.Time) (domain.CashRegister, error) {
	u, release := s.acquire(ctx)
	defer release()

	reg, ok := s.activeRegister(pharmacyID)
	if !ok {
		return domain.CashRegister{}, domain.Errorf(domain.KindInvalidStatus, "no open cash register")
	}
	previous := reg
	at := closedAt
	reg.Status = domain.RegisterClosed
	reg.ClosingCash = decimal.NewNullDecimal(closingCash)
	reg.ClosedAt = &at
	s.registers[reg.ID] = reg
	u.onRollback(func() { s.registers[previous.ID] = previous })
	return cloneRegister(reg), nil
}

func (s *Store) CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error {
	u, release := s.acquire(ctx)
	defer release()

	if _, exists := s.orders[po.ID]; exists {
		return domain.Errorf(domain.KindInvalidInput, "purchase order %s already exists", po.ID)
	}
	s.orders[po.ID] = clonePurchaseOrder(po)
	u.onRollback(func() { delete(s.orders, po.ID) })
	return nil
}

func (s *Store) ListPurchaseOrders(ctx context.Context, pharmacyID string, limit int) ([]domain.PurchaseOrder, error) {
	_, release := s.acquire(ctx)
	defer release()

	out := make([]domain.PurchaseOrder, 0, 8)
	for _, po := range s.orders {
		if po.PharmacyID == pharmacyID {
			out = append(out, clonePurchaseOrder(po))
		}
	}
	slices.SortFunc(out, func(a, b domain.PurchaseOrder) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneRegister(reg domain.CashRegister) domain.CashRegister {
	if reg.ClosedAt != nil {
		at := *reg.ClosedAt
		reg.ClosedAt = &at
	}
	return reg
}

func clonePurchaseOrder(po domain.PurchaseOrder) domain.PurchaseOrder {
	po.Items = slices.Clone(po.Items)
	if po.ExpectedAt != nil {
		at := *po.ExpectedAt
		po.ExpectedAt = &at
	}
	return po
}

func cloneProduct(p domain.Product) domain.Product {
	if p.ExpiryDate != nil {
		expiry := *p.ExpiryDate
		p.ExpiryDate = &expiry
	}
	return p
}

func cloneSale(sale domain.Sale) domain.Sale {
	sale.Items = slices.Clone(sale.Items)
	if sale.PrescriptionID != nil {
		id := *sale.PrescriptionID
		sale.PrescriptionID = &id
	}
	return sale
}

func cloneHeldSale(held domain.HeldSale) domain.HeldSale {
	held.Items = slices.Clone(held.Items)
	if held.PrescriptionID != nil {
		id := *held.PrescriptionID
		held.PrescriptionID = &id
	}
	return held
}
