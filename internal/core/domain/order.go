package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusFulfillable   OrderStatus = "FULFILLABLE"
	OrderStatusUnfulfillable OrderStatus = "UNFULFILLABLE"
	OrderStatusCancelled     OrderStatus = "CANCELLED"
	OrderStatusInvoiced      OrderStatus = "INVOICED"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusFulfillable:   {OrderStatusFulfillable, OrderStatusUnfulfillable, OrderStatusCancelled, OrderStatusInvoiced},
	OrderStatusUnfulfillable: {OrderStatusFulfillable, OrderStatusUnfulfillable, OrderStatusCancelled},
}

// ParseOrderStatus returns the status named by s, or false when s is unknown.
func ParseOrderStatus(s string) (OrderStatus, bool) {
	switch st := OrderStatus(s); st {
	case OrderStatusFulfillable, OrderStatusUnfulfillable, OrderStatusCancelled, OrderStatusInvoiced:
		return st, true
	}
	return "", false
}

// IsTerminal reports whether no further edits, cancels or invoicing are allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusInvoiced
}

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ReservesStock reports whether an order in this status holds deducted stock.
func (s OrderStatus) ReservesStock() bool {
	return s == OrderStatusFulfillable || s == OrderStatusInvoiced
}

type OrderItem struct {
	ProductID    int64
	Barcode      string
	Quantity     int
	SellingPrice decimal.Decimal
}

// LineTotal is quantity times the selling price snapshot.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.SellingPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID        int64
	Reference string
	OrderTime time.Time
	Status    OrderStatus
	Items     []OrderItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Total sums the line totals of the order.
func (o Order) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// OrderLine is a caller supplied line item before product resolution.
type OrderLine struct {
	Barcode      string          `json:"barcode" validate:"required,max=64"`
	Quantity     int             `json:"quantity" validate:"required,gt=0"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

type OrderFilter struct {
	ReferenceContains string
	Status            OrderStatus
	From              time.Time
	To                time.Time
	Page              int
	Size              int
}

type OrderPage struct {
	Orders []Order
	Total  int64
	Page   int
	Size   int
}

// Invoice is the record returned by the invoicing collaborator.
type Invoice struct {
	OrderReference string
	InvoiceNumber  string
	InvoicedAt     time.Time
	Total          decimal.Decimal
}
