package memory

import (
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

const DemoPharmacyID = "pharmacy-demo"

// NewSeeded returns a store with a small demo catalog for local runs.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	soon := now.AddDate(0, 0, 30).Truncate(24 * time.Hour)
	later := now.AddDate(1, 0, 0).Truncate(24 * time.Hour)

	seed := []domain.Product{
		{ID: "prd-parol-500", Barcode: "8699546090019", QRCode: "QR-PAROL-500", Name: "Parol 500mg 20 tablet", Price: decimal.RequireFromString("42.50"), Stock: 120, ProductType: domain.ProductTypeGeneral, ExpiryDate: &later},
		{ID: "prd-augmentin-1g", Barcode: "8699522095021", QRCode: "QR-AUGMENTIN-1G", Name: "Augmentin BID 1000mg 10 tablet", Price: decimal.RequireFromString("186.90"), Stock: 24, ProductType: domain.ProductTypeAntibiotic, ExpiryDate: &later},
		{ID: "prd-majezik-100", Barcode: "8699832090104", Name: "Majezik 100mg 15 tablet", Price: decimal.RequireFromString("78.00"), Stock: 4, ProductType: domain.ProductTypeGeneral, ExpiryDate: &soon},
		{ID: "prd-cipro-500", Barcode: "8699504010012", Name: "Cipro 500mg 14 tablet", Price: decimal.RequireFromString("129.75"), Stock: 10, ProductType: domain.ProductTypeAntibiotic, ExpiryDate: &soon},
		{ID: "prd-vitamin-c", Barcode: "8680400120025", Name: "Vitamin C 1000mg 30 efervesan", Price: decimal.RequireFromString("95.00"), Stock: 60, ProductType: domain.ProductTypeGeneral},
	}
	for _, product := range seed {
		product.PharmacyID = DemoPharmacyID
		product.LowStockThreshold = domain.DefaultLowStockThreshold
		product.CreatedAt = now
		product.UpdatedAt = now
		s.products[product.ID] = product
	}
	return s
}
