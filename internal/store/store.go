package store

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"pharmapos/backend/internal/domain"
)

// Catalog owns products and their stock. UpdateStock never lets stock go
// below zero: it fails with domain.ErrInsufficientStock instead.
type Catalog interface {
	FindProduct(ctx context.Context, pharmacyID string, ref domain.ProductRef) (domain.Product, error)
	UpdateStock(ctx context.Context, change domain.StockChange) (int, error)
	CreateProduct(ctx context.Context, product domain.Product) (domain.Product, error)
	UpdateProduct(ctx context.Context, update domain.ProductUpdate) (domain.Product, error)
	ListProducts(ctx context.Context, pharmacyID string) ([]domain.Product, error)
	ListLowStock(ctx context.Context, pharmacyID string) ([]domain.Product, error)
	ListExpiring(ctx context.Context, pharmacyID string, cutoff time.Time) ([]domain.Product, error)
	ListStockMovements(ctx context.Context, pharmacyID string, productID string, limit int) ([]domain.StockMovement, error)
}

type Prescriptions interface {
	FindPrescription(ctx context.Context, pharmacyID string, id string) (domain.Prescription, error)
	// FindOrCreatePrescription returns the existing record for the
	// (pharmacy, patient, prescription number) triple or stores p.
	FindOrCreatePrescription(ctx context.Context, p domain.Prescription) (domain.Prescription, bool, error)
	ListPrescriptions(ctx context.Context, pharmacyID string) ([]domain.Prescription, error)
}

type Sales interface {
	CreateSale(ctx context.Context, sale domain.Sale) error
	FindSale(ctx context.Context, pharmacyID string, id string) (domain.Sale, error)
	// UpdateSaleStatus moves a sale from one status to another and fails
	// with domain.ErrInvalidStatus when the current status is not from.
	UpdateSaleStatus(ctx context.Context, pharmacyID string, id string, from domain.SaleStatus, to domain.SaleStatus, at time.Time) error
	DeleteSale(ctx context.Context, pharmacyID string, id string) error
	ListSales(ctx context.Context, pharmacyID string, limit int) ([]domain.Sale, error)
}

type Holds interface {
	CreateHeldSale(ctx context.Context, held domain.HeldSale) error
	FindHeldSale(ctx context.Context, pharmacyID string, id string) (domain.HeldSale, error)
	ListHeldSales(ctx context.Context, pharmacyID string) ([]domain.HeldSale, error)
	DeleteHeldSale(ctx context.Context, pharmacyID string, id string) error
}

// Registers tracks cash register sessions. OpenRegister fails with
// domain.ErrInvalidStatus while another register of the pharmacy is open.
type Registers interface {
	GetActiveRegister(ctx context.Context, pharmacyID string) (domain.CashRegister, error)
	OpenRegister(ctx context.Context, register domain.CashRegister) error
	CloseActiveRegister(ctx context.Context, pharmacyID string, closingCash decimal.Decimal, closedAt time.Time) (domain.CashRegister, error)
}

type PurchaseOrders interface {
	CreatePurchaseOrder(ctx context.Context, po domain.PurchaseOrder) error
	ListPurchaseOrders(ctx context.Context, pharmacyID string, limit int) ([]domain.PurchaseOrder, error)
}

// UnitOfWork runs fn as one all-or-nothing unit. Repository calls made with
// the context passed to fn join the unit; nested RunAtomic calls join the
// outer unit instead of starting a new one.
type UnitOfWork interface {
	RunAtomic(ctx context.Context, fn func(ctx context.Context) error) error
}

type Repository interface {
	Catalog
	Prescriptions
	Sales
	Holds
	Registers
	PurchaseOrders
	UnitOfWork
}
