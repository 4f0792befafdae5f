package service

import (
	"context"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pharmapos/backend/internal/domain"
)

type lineRequest struct {
	ref      domain.ProductRef
	quantity int
}

// normalizeItems validates the whole list up front. Any malformed item
// rejects the request; nothing is dropped silently.
func normalizeItems(items []domain.ItemRequest) ([]lineRequest, error) {
	if len(items) == 0 {
		return nil, domain.Errorf(domain.KindInvalidInput, "at least one item is required")
	}

	lines := make([]lineRequest, 0, len(items))
	for i, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		barcode := strings.TrimSpace(item.Barcode)
		switch {
		case item.Quantity < 1:
			return nil, domain.Errorf(domain.KindInvalidInput, "item %d: quantity must be positive", i+1)
		case item.Quantity > domain.MaxItemQuantity:
			return nil, domain.Errorf(domain.KindInvalidInput, "item %d: quantity must be at most %d", i+1, domain.MaxItemQuantity)
		case productID == "" && barcode == "":
			return nil, domain.Errorf(domain.KindInvalidInput, "item %d: product_id or barcode is required", i+1)
		case productID != "" && barcode != "":
			return nil, domain.Errorf(domain.KindInvalidInput, "item %d: use either product_id or barcode", i+1)
		}
		lines = append(lines, lineRequest{
			ref:      domain.ProductRef{ProductID: productID, Code: barcode},
			quantity: item.Quantity,
		})
	}
	return lines, nil
}

// codeLookups carries barcode cache hints into a unit of work and collects
// what the unit learned, so cache I/O happens only outside the unit.
type codeLookups struct {
	hints   map[string]string
	learned map[string]string
	stale   map[string]struct{}
}

func (s *Service) primeCodes(ctx context.Context, pharmacyID string, lines []lineRequest) *codeLookups {
	codes := &codeLookups{
		hints:   make(map[string]string),
		learned: make(map[string]string),
		stale:   make(map[string]struct{}),
	}
	for _, line := range lines {
		code := line.ref.Code
		if code == "" {
			continue
		}
		if _, seen := codes.hints[code]; seen {
			continue
		}
		productID, ok, err := s.codes.Get(ctx, pharmacyID, code)
		if err != nil {
			s.logger.Warn("barcode cache read failed", zap.String("pharmacy_id", pharmacyID), zap.String("code", code), zap.Error(err))
			continue
		}
		if ok {
			codes.hints[code] = productID
		}
	}
	return codes
}

// findProduct resolves ref inside the current unit. A cached id is only a
// hint: the product is always re-read and must still carry the code.
func (s *Service) findProduct(ctx context.Context, pharmacyID string, ref domain.ProductRef, codes *codeLookups) (domain.Product, error) {
	if ref.Code == "" || codes == nil {
		return s.repo.FindProduct(ctx, pharmacyID, ref)
	}

	if productID, ok := codes.hints[ref.Code]; ok {
		product, err := s.repo.FindProduct(ctx, pharmacyID, domain.ProductRef{ProductID: productID})
		switch {
		case err == nil && (product.Barcode == ref.Code || product.QRCode == ref.Code):
			return product, nil
		case err != nil && !errors.Is(err, domain.ErrProductNotFound):
			return domain.Product{}, err
		}
		codes.stale[ref.Code] = struct{}{}
	}

	product, err := s.repo.FindProduct(ctx, pharmacyID, ref)
	if err != nil {
		return domain.Product{}, err
	}
	codes.learned[ref.Code] = product.ID
	return product, nil
}

func (s *Service) rememberCodes(ctx context.Context, pharmacyID string, codes *codeLookups) {
	if codes == nil {
		return
	}
	for code := range codes.stale {
		if _, relearned := codes.learned[code]; relearned {
			continue
		}
		if err := s.codes.Delete(ctx, pharmacyID, code); err != nil {
			s.logger.Warn("barcode cache delete failed", zap.String("pharmacy_id", pharmacyID), zap.String("code", code), zap.Error(err))
		}
	}
	for code, productID := range codes.learned {
		if err := s.codes.Set(ctx, pharmacyID, code, productID); err != nil {
			s.logger.Warn("barcode cache write failed", zap.String("pharmacy_id", pharmacyID), zap.String("code", code), zap.Error(err))
		}
	}
}

// checkPrescription enforces the antibiotic gate. attached reports whether a
// verified prescription backs the transaction.
func checkPrescription(product domain.Product, attached bool) error {
	if product.RequiresPrescription() && !attached {
		return domain.Errorf(domain.KindPrescriptionRequired, "%s requires a verified prescription", product.Name)
	}
	return nil
}

func checkStock(product domain.Product, quantity int) error {
	if product.Stock < quantity {
		return domain.Errorf(domain.KindInsufficientStock, "insufficient stock for %s: have %d, need %d", product.Name, product.Stock, quantity)
	}
	return nil
}

func lineItem(product domain.Product, quantity int) domain.SaleLineItem {
	return domain.SaleLineItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		Quantity:    quantity,
		UnitPrice:   product.Price,
		LineTotal:   product.Price.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

func sumLines(items []domain.SaleLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal)
	}
	return total
}

// attachedPrescription resolves an optional prescription id within the
// tenant. Only a VERIFIED record opens the antibiotic gate.
func (s *Service) attachedPrescription(ctx context.Context, pharmacyID string, prescriptionID string) (*string, bool, error) {
	prescriptionID = strings.TrimSpace(prescriptionID)
	if prescriptionID == "" {
		return nil, false, nil
	}
	prescription, err := s.repo.FindPrescription(ctx, pharmacyID, prescriptionID)
	if err != nil {
		return nil, false, err
	}
	id := prescription.ID
	return &id, prescription.Status == domain.PrescriptionVerified, nil
}
