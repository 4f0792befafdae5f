package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type ProductType string

const (
	ProductTypeGeneral    ProductType = "GENERAL"
	ProductTypeAntibiotic ProductType = "ANTIBIOTIC"
)

type PaymentType string

const (
	PaymentCash  PaymentType = "CASH"
	PaymentCard  PaymentType = "CARD"
	PaymentOther PaymentType = "OTHER"
)

// ParsePaymentType falls back to CASH for anything it does not recognise.
func ParsePaymentType(raw string) PaymentType {
	switch PaymentType(strings.ToUpper(strings.TrimSpace(raw))) {
	case PaymentCard:
		return PaymentCard
	case PaymentOther:
		return PaymentOther
	default:
		return PaymentCash
	}
}

type SaleStatus string

const (
	SaleStatusCompleted SaleStatus = "COMPLETED"
	SaleStatusCancelled SaleStatus = "CANCELLED"
	SaleStatusRefunded  SaleStatus = "REFUNDED"
)

type PrescriptionStatus string

const (
	PrescriptionVerified PrescriptionStatus = "VERIFIED"
	PrescriptionPending  PrescriptionStatus = "PENDING"
)

type Role string

const (
	RolePharmacist Role = "PHARMACIST"
	RoleCashier    Role = "CASHIER"
)

type StockReason string

const (
	StockReasonSale           StockReason = "SALE"
	StockReasonHoldCompletion StockReason = "HOLD_COMPLETION"
	StockReasonCancel         StockReason = "CANCEL"
	StockReasonRefund         StockReason = "REFUND"
	StockReasonDelete         StockReason = "DELETE"
	StockReasonEntry          StockReason = "STOCK_ENTRY"
)

const DefaultLowStockThreshold = 5

// MaxItemQuantity caps a single requested quantity so stock arithmetic
// stays far away from integer overflow.
const MaxItemQuantity = 1_000_000

type Product struct {
	ID                string          `json:"id" db:"id"`
	PharmacyID        string          `json:"pharmacy_id" db:"pharmacy_id"`
	Barcode           string          `json:"barcode" db:"barcode"`
	QRCode            string          `json:"qr_code,omitempty" db:"qr_code"`
	Name              string          `json:"name" db:"name"`
	Price             decimal.Decimal `json:"price" db:"price"`
	Stock             int             `json:"stock" db:"stock"`
	LowStockThreshold int             `json:"low_stock_threshold" db:"low_stock_threshold"`
	ProductType       ProductType     `json:"product_type" db:"product_type"`
	ExpiryDate        *time.Time      `json:"expiry_date,omitempty" db:"expiry_date"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

func (p Product) RequiresPrescription() bool {
	return p.ProductType == ProductTypeAntibiotic
}

type Prescription struct {
	ID             string             `json:"id" db:"id"`
	PharmacyID     string             `json:"pharmacy_id" db:"pharmacy_id"`
	PatientTC      string             `json:"patient_tc" db:"patient_tc"`
	PrescriptionNo string             `json:"prescription_no" db:"prescription_no"`
	Status         PrescriptionStatus `json:"status" db:"status"`
	CreatedByID    string             `json:"created_by_id" db:"created_by_id"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
}

type SaleLineItem struct {
	ProductID   string          `json:"product_id" db:"product_id"`
	ProductName string          `json:"product_name" db:"product_name"`
	Quantity    int             `json:"quantity" db:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price" db:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total" db:"line_total"`
}

type Sale struct {
	ID             string          `json:"id" db:"id"`
	PharmacyID     string          `json:"pharmacy_id" db:"pharmacy_id"`
	UserID         string          `json:"user_id" db:"user_id"`
	Total          decimal.Decimal `json:"total" db:"total"`
	PaymentType    PaymentType     `json:"payment_type" db:"payment_type"`
	Status         SaleStatus      `json:"status" db:"status"`
	PrescriptionID *string         `json:"prescription_id,omitempty" db:"prescription_id"`
	Items          []SaleLineItem  `json:"items" db:"-"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

type HeldSale struct {
	ID             string          `json:"id"`
	PharmacyID     string          `json:"pharmacy_id"`
	CreatedByID    string          `json:"created_by_id"`
	Note           string          `json:"note,omitempty"`
	PrescriptionID *string         `json:"prescription_id,omitempty"`
	Items          []SaleLineItem  `json:"items"`
	Total          decimal.Decimal `json:"total"`
	CreatedAt      time.Time       `json:"created_at"`
}

type StockMovement struct {
	ID          string      `json:"id" db:"id"`
	PharmacyID  string      `json:"pharmacy_id" db:"pharmacy_id"`
	ProductID   string      `json:"product_id" db:"product_id"`
	Change      int         `json:"change" db:"change_qty"`
	StockBefore int         `json:"stock_before" db:"stock_before"`
	StockAfter  int         `json:"stock_after" db:"stock_after"`
	Reason      StockReason `json:"reason" db:"reason"`
	ReferenceID string      `json:"reference_id,omitempty" db:"reference_id"`
	UserID      string      `json:"user_id,omitempty" db:"user_id"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// StockChange is one signed adjustment applied through the catalog.
type StockChange struct {
	PharmacyID  string
	ProductID   string
	Delta       int
	Reason      StockReason
	ReferenceID string
	UserID      string
	// At stamps the movement and the product's updated_at. Zero means now.
	At time.Time
}

// ProductRef identifies a product either by id or by a scanned code
// (barcode or QR code). Exactly one of the two is set.
type ProductRef struct {
	ProductID string
	Code      string
}

type Actor struct {
	UserID     string
	PharmacyID string
	Role       Role
}

type ItemRequest struct {
	ProductID string `json:"product_id,omitempty"`
	Barcode   string `json:"barcode,omitempty"`
	Quantity  int    `json:"quantity"`
}

type CreateSaleRequest struct {
	Items          []ItemRequest `json:"items"`
	PaymentType    string        `json:"payment_type,omitempty"`
	PrescriptionID string        `json:"prescription_id,omitempty"`
}

type CreateHoldRequest struct {
	Items          []ItemRequest `json:"items"`
	Note           string        `json:"note,omitempty"`
	PrescriptionID string        `json:"prescription_id,omitempty"`
}

type CompleteHoldRequest struct {
	PaymentType string `json:"payment_type,omitempty"`
}

type PrescriptionLookupRequest struct {
	PatientTC      string `json:"patient_tc"`
	PrescriptionNo string `json:"prescription_no"`
}

type CreateProductRequest struct {
	Barcode           string     `json:"barcode"`
	QRCode            string     `json:"qr_code,omitempty"`
	Name              string     `json:"name"`
	Price             string     `json:"price"`
	Stock             int        `json:"stock"`
	LowStockThreshold *int       `json:"low_stock_threshold,omitempty"`
	ProductType       string     `json:"product_type,omitempty"`
	ExpiryDate        *time.Time `json:"expiry_date,omitempty"`
}

type StockEntryRequest struct {
	ProductID string `json:"product_id,omitempty"`
	Barcode   string `json:"barcode,omitempty"`
	Quantity  int    `json:"quantity"`
}

type SaleListResponse struct {
	Items []Sale `json:"items"`
}

type HeldSaleListResponse struct {
	Items []HeldSale `json:"items"`
}

type ProductListResponse struct {
	Items []Product `json:"items"`
}

type PrescriptionListResponse struct {
	Items []Prescription `json:"items"`
}

type StockMovementListResponse struct {
	Items []StockMovement `json:"items"`
}

type RegisterStatus string

const (
	RegisterOpen   RegisterStatus = "OPEN"
	RegisterClosed RegisterStatus = "CLOSED"
)

// CashRegister is one till session. A pharmacy has at most one OPEN
// register at a time.
type CashRegister struct {
	ID          string              `json:"id" db:"id"`
	PharmacyID  string              `json:"pharmacy_id" db:"pharmacy_id"`
	OpeningCash decimal.Decimal     `json:"opening_cash" db:"opening_cash"`
	ClosingCash decimal.NullDecimal `json:"closing_cash" db:"closing_cash"`
	Status      RegisterStatus      `json:"status" db:"status"`
	OpenedByID  string              `json:"opened_by_id" db:"opened_by_id"`
	OpenedAt    time.Time           `json:"opened_at" db:"opened_at"`
	ClosedAt    *time.Time          `json:"closed_at,omitempty" db:"closed_at"`
}

type PurchaseOrderStatus string

const PurchaseOrderDraft PurchaseOrderStatus = "DRAFT"

type PurchaseOrderItem struct {
	ProductID string              `json:"product_id,omitempty"`
	Barcode   string              `json:"barcode,omitempty"`
	Name      string              `json:"name"`
	Quantity  int                 `json:"quantity"`
	UnitCost  decimal.NullDecimal `json:"unit_cost"`
}

type PurchaseOrder struct {
	ID           string              `json:"id"`
	PharmacyID   string              `json:"pharmacy_id"`
	SupplierName string              `json:"supplier_name"`
	Status       PurchaseOrderStatus `json:"status"`
	ExpectedAt   *time.Time          `json:"expected_at,omitempty"`
	Total        decimal.NullDecimal `json:"total"`
	Notes        string              `json:"notes,omitempty"`
	Items        []PurchaseOrderItem `json:"items"`
	CreatedAt    time.Time           `json:"created_at"`
}

// ProductUpdate carries the catalog fields a warehouse invoice may change on
// an existing product. Nil or empty fields are left untouched.
type ProductUpdate struct {
	PharmacyID  string
	ProductID   string
	Price       *decimal.Decimal
	ProductType ProductType
	ExpiryDate  *time.Time
	At          time.Time
}

type OpenRegisterRequest struct {
	OpeningCash string `json:"opening_cash"`
}

type CloseRegisterRequest struct {
	ClosingCash string `json:"closing_cash"`
}

type CashStatusResponse struct {
	Open *CashRegister `json:"open"`
}

type CreatePurchaseOrderRequest struct {
	SupplierName string              `json:"supplier_name"`
	ExpectedAt   *time.Time          `json:"expected_at,omitempty"`
	Total        string              `json:"total,omitempty"`
	Notes        string              `json:"notes,omitempty"`
	Items        []PurchaseOrderItem `json:"items"`
}

type PurchaseOrderListResponse struct {
	Items []PurchaseOrder `json:"items"`
}

type InvoiceItem struct {
	Barcode     string     `json:"barcode,omitempty"`
	QRCode      string     `json:"qr_code,omitempty"`
	Name        string     `json:"name,omitempty"`
	Quantity    int        `json:"quantity"`
	Price       string     `json:"price,omitempty"`
	ProductType string     `json:"product_type,omitempty"`
	ExpiryDate  *time.Time `json:"expiry_date,omitempty"`
}

type WarehouseInvoiceRequest struct {
	InvoiceNo string        `json:"invoice_no,omitempty"`
	Items     []InvoiceItem `json:"items"`
}

// InvoiceImportSummary counts what an invoice import did per line.
type InvoiceImportSummary struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}
