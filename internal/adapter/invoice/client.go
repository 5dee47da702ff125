package invoice

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/pos-backoffice/internal/adapter/rpc"
	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/port"
)

type ClientConfig struct {
	BreakerName     string
	BreakerTimeout  time.Duration // open to half-open
	BreakerFailures uint32        // consecutive transport failures that trip the breaker
}

// Client calls the invoicing service over gRPC through a circuit breaker.
// Only transport failures count against the breaker; business answers such as
// NotFound pass through untouched.
type Client struct {
	conn    grpc.ClientConnInterface
	breaker *gobreaker.CircuitBreaker
	logger  *zap.Logger
}

var _ port.InvoiceClient = (*Client)(nil)

func NewClient(conn grpc.ClientConnInterface, cfg ClientConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BreakerName == "" {
		cfg.BreakerName = "invoice"
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = 5
	}
	logger = logger.Named("invoice_client")

	settings := gobreaker.Settings{
		Name:    cfg.BreakerName,
		Timeout: cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.BreakerFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Client{
		conn:    conn,
		breaker: gobreaker.NewCircuitBreaker(settings),
		logger:  logger,
	}
}

func (c *Client) GenerateInvoice(ctx context.Context, order domain.Order) (*domain.Invoice, error) {
	out := new(InvoiceResponse)
	if err := c.invoke(ctx, generateInvoiceMethod, requestFromOrder(order), out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

func (c *Client) GetInvoice(ctx context.Context, reference string) (*domain.Invoice, error) {
	out := new(InvoiceResponse)
	if err := c.invoke(ctx, getInvoiceMethod, &GetInvoiceRequest{OrderReference: reference}, out); err != nil {
		return nil, err
	}
	return out.toDomain(), nil
}

// businessError carries a non-transport failure through the breaker without
// counting it as one.
type businessError struct {
	err error
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	result, err := c.breaker.Execute(func() (interface{}, error) {
		callErr := c.conn.Invoke(ctx, method, in, out, grpc.CallContentSubtype(rpc.CodecName))
		if callErr == nil {
			return nil, nil
		}
		converted := rpc.FromStatus(callErr, method)
		if rpc.IsBusiness(converted) {
			return businessError{err: converted}, nil
		}
		return nil, converted
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		c.logger.Warn("Invoice call rejected by circuit breaker", zap.String("method", method))
		return domain.ExternalDependency(err, "invoicing service unavailable")
	}
	if err != nil {
		return err
	}
	if be, ok := result.(businessError); ok {
		return be.err
	}
	return nil
}

func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}
