package invoice

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

const (
	ServiceName = "pos.invoice.v1.InvoiceService"

	generateInvoiceMethod = "/" + ServiceName + "/GenerateInvoice"
	getInvoiceMethod      = "/" + ServiceName + "/GetInvoice"
)

type LineItem struct {
	Barcode      string          `json:"barcode"`
	Quantity     int             `json:"quantity"`
	SellingPrice decimal.Decimal `json:"selling_price"`
}

type GenerateInvoiceRequest struct {
	OrderReference string     `json:"order_reference"`
	OrderTime      time.Time  `json:"order_time"`
	Items          []LineItem `json:"items"`
}

type GetInvoiceRequest struct {
	OrderReference string `json:"order_reference"`
}

type InvoiceResponse struct {
	OrderReference string          `json:"order_reference"`
	InvoiceNumber  string          `json:"invoice_number"`
	InvoicedAt     time.Time       `json:"invoiced_at"`
	Total          decimal.Decimal `json:"total"`
}

func requestFromOrder(order domain.Order) *GenerateInvoiceRequest {
	items := make([]LineItem, len(order.Items))
	for i, item := range order.Items {
		items[i] = LineItem{
			Barcode:      item.Barcode,
			Quantity:     item.Quantity,
			SellingPrice: item.SellingPrice,
		}
	}
	return &GenerateInvoiceRequest{
		OrderReference: order.Reference,
		OrderTime:      order.OrderTime,
		Items:          items,
	}
}

func (r *InvoiceResponse) toDomain() *domain.Invoice {
	return &domain.Invoice{
		OrderReference: r.OrderReference,
		InvoiceNumber:  r.InvoiceNumber,
		InvoicedAt:     r.InvoicedAt,
		Total:          r.Total,
	}
}

func responseFromDomain(inv *domain.Invoice) *InvoiceResponse {
	return &InvoiceResponse{
		OrderReference: inv.OrderReference,
		InvoiceNumber:  inv.InvoiceNumber,
		InvoicedAt:     inv.InvoicedAt,
		Total:          inv.Total,
	}
}
