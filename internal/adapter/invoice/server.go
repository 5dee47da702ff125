package invoice

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/pos-backoffice/internal/adapter/rpc"
	"github.com/rl1809/pos-backoffice/internal/core/domain"
)

// InvoiceServer is the service contract registered under ServiceName.
type InvoiceServer interface {
	GenerateInvoice(ctx context.Context, req *GenerateInvoiceRequest) (*InvoiceResponse, error)
	GetInvoice(ctx context.Context, req *GetInvoiceRequest) (*InvoiceResponse, error)
}

var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*InvoiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GenerateInvoice", Handler: generateInvoiceHandler},
		{MethodName: "GetInvoice", Handler: getInvoiceHandler},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterInvoiceServer(s grpc.ServiceRegistrar, srv InvoiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func generateInvoiceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GenerateInvoiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InvoiceServer).GenerateInvoice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: generateInvoiceMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InvoiceServer).GenerateInvoice(ctx, req.(*GenerateInvoiceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func getInvoiceHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetInvoiceRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(InvoiceServer).GetInvoice(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: getInvoiceMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(InvoiceServer).GetInvoice(ctx, req.(*GetInvoiceRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// Service issues invoices and keeps them in memory. Generating twice for one
// order reference returns the first invoice.
type Service struct {
	mu       sync.Mutex
	seq      int64
	invoices map[string]*domain.Invoice
	now      func() time.Time
	logger   *zap.Logger
}

var _ InvoiceServer = (*Service)(nil)

func NewService(logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		invoices: make(map[string]*domain.Invoice),
		now:      time.Now,
		logger:   logger.Named("invoice_service"),
	}
}

func (s *Service) GenerateInvoice(ctx context.Context, req *GenerateInvoiceRequest) (*InvoiceResponse, error) {
	if req.OrderReference == "" {
		return nil, rpc.ToStatus(domain.Validation("order reference is required"))
	}
	if len(req.Items) == 0 {
		return nil, rpc.ToStatus(domain.Validation("order %s has no items", req.OrderReference))
	}

	total := decimal.Zero
	for _, item := range req.Items {
		if item.Quantity <= 0 {
			return nil, rpc.ToStatus(domain.Validation("item %s has non-positive quantity", item.Barcode))
		}
		total = total.Add(item.SellingPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if inv, ok := s.invoices[req.OrderReference]; ok {
		return responseFromDomain(inv), nil
	}

	s.seq++
	now := s.now()
	inv := &domain.Invoice{
		OrderReference: req.OrderReference,
		InvoiceNumber:  fmt.Sprintf("INV-%s-%06d", now.Format("20060102"), s.seq),
		InvoicedAt:     now,
		Total:          total.Round(2),
	}
	s.invoices[req.OrderReference] = inv

	s.logger.Info("Invoice generated",
		zap.String("reference", inv.OrderReference),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.String("total", inv.Total.StringFixed(2)),
	)
	return responseFromDomain(inv), nil
}

func (s *Service) GetInvoice(ctx context.Context, req *GetInvoiceRequest) (*InvoiceResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invoices[req.OrderReference]
	if !ok {
		return nil, rpc.ToStatus(domain.NotFound("invoice for order %s not found", req.OrderReference))
	}
	return responseFromDomain(inv), nil
}
