package events

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type Type string

const (
	SaleCompleted Type = "sale.completed"
	SaleCancelled Type = "sale.cancelled"
	SaleRefunded  Type = "sale.refunded"
	SaleDeleted   Type = "sale.deleted"
	HoldCreated   Type = "hold.created"
	HoldCompleted Type = "hold.completed"
	HoldDiscarded Type = "hold.discarded"
	StockEntry    Type = "stock.entry"

	RegisterOpened       Type = "register.opened"
	RegisterClosed       Type = "register.closed"
	PurchaseOrderCreated Type = "purchase_order.created"
	InvoiceImported      Type = "invoice.imported"
)

// Event describes a committed state change. Publishers only ever see events
// for work that has already been persisted.
type Event struct {
	Type       Type             `json:"type"`
	PharmacyID string           `json:"pharmacy_id"`
	SaleID     string           `json:"sale_id,omitempty"`
	HoldID     string           `json:"hold_id,omitempty"`
	ProductID  string           `json:"product_id,omitempty"`
	RefID      string           `json:"ref_id,omitempty"`
	UserID     string           `json:"user_id,omitempty"`
	Total      *decimal.Decimal `json:"total,omitempty"`
	Status     string           `json:"status,omitempty"`
	Quantity   int              `json:"quantity,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(_ context.Context, _ Event) error {
	return nil
}

func (NoopPublisher) Close() error {
	return nil
}
