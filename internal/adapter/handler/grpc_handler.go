package handler

import (
	"context"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/pos-backoffice/internal/adapter/rpc"
	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/core/service"
)

const OrderServiceName = "pos.order.v1.OrderService"

type OrderLinesRequest struct {
	Reference string             `json:"reference,omitempty"`
	Items     []domain.OrderLine `json:"items"`
}

type ReferenceRequest struct {
	Reference string `json:"reference"`
}

// OrderServiceServer is the gRPC contract of the order API.
type OrderServiceServer interface {
	Create(ctx context.Context, req *OrderLinesRequest) (*OrderResponse, error)
	Update(ctx context.Context, req *OrderLinesRequest) (*OrderResponse, error)
	Cancel(ctx context.Context, req *ReferenceRequest) (*OrderResponse, error)
	MarkInvoiced(ctx context.Context, req *ReferenceRequest) (*InvoiceResponse, error)
	Get(ctx context.Context, req *ReferenceRequest) (*OrderResponse, error)
}

var OrderServiceDesc = grpc.ServiceDesc{
	ServiceName: OrderServiceName,
	HandlerType: (*OrderServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Create", Handler: unaryHandler("Create", func(s OrderServiceServer, ctx context.Context, req *OrderLinesRequest) (any, error) {
			return s.Create(ctx, req)
		})},
		{MethodName: "Update", Handler: unaryHandler("Update", func(s OrderServiceServer, ctx context.Context, req *OrderLinesRequest) (any, error) {
			return s.Update(ctx, req)
		})},
		{MethodName: "Cancel", Handler: unaryHandler("Cancel", func(s OrderServiceServer, ctx context.Context, req *ReferenceRequest) (any, error) {
			return s.Cancel(ctx, req)
		})},
		{MethodName: "MarkInvoiced", Handler: unaryHandler("MarkInvoiced", func(s OrderServiceServer, ctx context.Context, req *ReferenceRequest) (any, error) {
			return s.MarkInvoiced(ctx, req)
		})},
		{MethodName: "Get", Handler: unaryHandler("Get", func(s OrderServiceServer, ctx context.Context, req *ReferenceRequest) (any, error) {
			return s.Get(ctx, req)
		})},
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterOrderServiceServer(s grpc.ServiceRegistrar, srv OrderServiceServer) {
	s.RegisterService(&OrderServiceDesc, srv)
}

func unaryHandler[Req any](method string, call func(OrderServiceServer, context.Context, *Req) (any, error)) grpc.MethodHandler {
	fullMethod := "/" + OrderServiceName + "/" + method
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(OrderServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(OrderServiceServer), ctx, req.(*Req))
		})
	}
}

type GRPCHandler struct {
	orders *service.OrderService
	logger *zap.Logger
}

var _ OrderServiceServer = (*GRPCHandler)(nil)

func NewGRPCHandler(orders *service.OrderService, logger *zap.Logger) *GRPCHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GRPCHandler{orders: orders, logger: logger.Named("grpc")}
}

func (h *GRPCHandler) Create(ctx context.Context, req *OrderLinesRequest) (*OrderResponse, error) {
	order, err := h.orders.Create(ctx, req.Items)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	resp := orderResponse(order)
	return &resp, nil
}

func (h *GRPCHandler) Update(ctx context.Context, req *OrderLinesRequest) (*OrderResponse, error) {
	order, err := h.orders.Update(ctx, req.Reference, req.Items)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	resp := orderResponse(order)
	return &resp, nil
}

func (h *GRPCHandler) Cancel(ctx context.Context, req *ReferenceRequest) (*OrderResponse, error) {
	order, err := h.orders.Cancel(ctx, req.Reference)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	resp := orderResponse(order)
	return &resp, nil
}

func (h *GRPCHandler) MarkInvoiced(ctx context.Context, req *ReferenceRequest) (*InvoiceResponse, error) {
	inv, err := h.orders.MarkInvoiced(ctx, req.Reference)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	resp := invoiceResponse(inv)
	return &resp, nil
}

func (h *GRPCHandler) Get(ctx context.Context, req *ReferenceRequest) (*OrderResponse, error) {
	order, err := h.orders.GetByRef(ctx, req.Reference)
	if err != nil {
		return nil, rpc.ToStatus(err)
	}
	resp := orderResponse(order)
	return &resp, nil
}

// OrderClient calls a remote OrderService over the JSON codec. Errors come
// back as core errors.
type OrderClient struct {
	conn grpc.ClientConnInterface
}

func NewOrderClient(conn grpc.ClientConnInterface) *OrderClient {
	return &OrderClient{conn: conn}
}

func (c *OrderClient) Create(ctx context.Context, lines []domain.OrderLine) (*OrderResponse, error) {
	out := new(OrderResponse)
	err := c.invoke(ctx, "Create", &OrderLinesRequest{Items: lines}, out)
	return out, err
}

func (c *OrderClient) Update(ctx context.Context, ref string, lines []domain.OrderLine) (*OrderResponse, error) {
	out := new(OrderResponse)
	err := c.invoke(ctx, "Update", &OrderLinesRequest{Reference: ref, Items: lines}, out)
	return out, err
}

func (c *OrderClient) Cancel(ctx context.Context, ref string) (*OrderResponse, error) {
	out := new(OrderResponse)
	err := c.invoke(ctx, "Cancel", &ReferenceRequest{Reference: ref}, out)
	return out, err
}

func (c *OrderClient) MarkInvoiced(ctx context.Context, ref string) (*InvoiceResponse, error) {
	out := new(InvoiceResponse)
	err := c.invoke(ctx, "MarkInvoiced", &ReferenceRequest{Reference: ref}, out)
	return out, err
}

func (c *OrderClient) Get(ctx context.Context, ref string) (*OrderResponse, error) {
	out := new(OrderResponse)
	err := c.invoke(ctx, "Get", &ReferenceRequest{Reference: ref}, out)
	return out, err
}

func (c *OrderClient) invoke(ctx context.Context, method string, in, out any) error {
	err := c.conn.Invoke(ctx, "/"+OrderServiceName+"/"+method, in, out, grpc.CallContentSubtype(rpc.CodecName))
	if err != nil {
		return rpc.FromStatus(err, "order service "+method)
	}
	return nil
}
