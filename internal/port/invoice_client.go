package port

import (
	"context"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

type InvoiceClient interface {
	// GenerateInvoice must be idempotent per order reference
	GenerateInvoice(ctx context.Context, order domain.Order) (*domain.Invoice, error)

	GetInvoice(ctx context.Context, reference string) (*domain.Invoice, error)
}
