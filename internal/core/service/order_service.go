package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/metrics"
	"github.com/rl1809/pos-backoffice/internal/port"
)

const (
	maxPageSize      = 100
	invoiceLockScope = "invoice:"
)

type OrderConfig struct {
	MaxQuantity       int
	ReferenceAttempts int
	InvoiceTimeout    time.Duration
	InvoiceLockTTL    time.Duration
}

func DefaultOrderConfig() OrderConfig {
	return OrderConfig{
		MaxQuantity:       domain.MaxQuantity,
		ReferenceAttempts: defaultReferenceAttempts,
		InvoiceTimeout:    5 * time.Second,
		InvoiceLockTTL:    30 * time.Second,
	}
}

type OrderOption func(*OrderService)

func WithReferenceGenerator(gen ReferenceGenerator) OrderOption {
	return func(s *OrderService) { s.refs = gen }
}

func WithClock(now func() time.Time) OrderOption {
	return func(s *OrderService) { s.now = now }
}

func WithMetrics(m *metrics.Metrics) OrderOption {
	return func(s *OrderService) { s.metrics = m }
}

// OrderService owns the order state machine. Every write runs inside one
// unit of work of the transaction scope.
type OrderService struct {
	tx       port.TransactionScope
	invoices port.InvoiceClient
	locks    port.LockRepository
	refs     ReferenceGenerator
	cfg      OrderConfig
	metrics  *metrics.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

func NewOrderService(tx port.TransactionScope, invoices port.InvoiceClient, locks port.LockRepository, cfg OrderConfig, logger *zap.Logger, opts ...OrderOption) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := DefaultOrderConfig()
	if cfg.MaxQuantity <= 0 {
		cfg.MaxQuantity = defaults.MaxQuantity
	}
	if cfg.ReferenceAttempts <= 0 {
		cfg.ReferenceAttempts = defaults.ReferenceAttempts
	}
	if cfg.InvoiceTimeout <= 0 {
		cfg.InvoiceTimeout = defaults.InvoiceTimeout
	}
	if cfg.InvoiceLockTTL <= 0 {
		cfg.InvoiceLockTTL = defaults.InvoiceLockTTL
	}

	s := &OrderService{
		tx:       tx,
		invoices: invoices,
		locks:    locks,
		refs:     UUIDReferenceGenerator{},
		cfg:      cfg,
		logger:   logger.Named("orders"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create places a new order. The order is FULFILLABLE when every line could be
// reserved and UNFULFILLABLE otherwise, in which case no stock is held.
func (s *OrderService) Create(ctx context.Context, lines []domain.OrderLine) (*domain.Order, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}

	var created *domain.Order
	err := s.tx.Execute(ctx, func(repos port.Repositories) (err error) {
		items, err := resolveItems(ctx, repos.Products(), lines)
		if err != nil {
			return err
		}

		ref, err := allocateReference(ctx, s.refs, repos.Orders(), s.cfg.ReferenceAttempts, s.logger)
		if err != nil {
			return err
		}

		now := s.now()
		order := &domain.Order{
			Reference: ref,
			OrderTime: now,
			Items:     items,
			CreatedAt: now,
			UpdatedAt: now,
		}

		uow := NewUnitOfWork(s.logger)
		defer rollbackInto(ctx, uow, &err)

		ledger := NewLedger(repos.Inventory(), s.cfg.MaxQuantity)
		if order.Status, err = s.reserve(ctx, ledger, uow, items); err != nil {
			return err
		}

		if err := repos.Orders().CreateOrder(ctx, order); err != nil {
			return err
		}
		uow.Commit()
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderCreated(string(created.Status))
	s.logger.Info("Order created",
		zap.String("reference", created.Reference),
		zap.String("status", string(created.Status)),
		zap.Int("items", len(created.Items)),
	)
	return created, nil
}

// Update replaces the items of a non-terminal order and re-reserves stock.
func (s *OrderService) Update(ctx context.Context, ref string, lines []domain.OrderLine) (*domain.Order, error) {
	if err := validateLines(lines); err != nil {
		return nil, err
	}

	var updated *domain.Order
	err := s.tx.Execute(ctx, func(repos port.Repositories) (err error) {
		order, err := repos.Orders().GetOrderByReference(ctx, ref)
		if err != nil {
			return err
		}
		if order.Status.IsTerminal() {
			return domain.InvalidTransition("order %s is %s and can no longer be edited", ref, order.Status)
		}

		items, err := resolveItems(ctx, repos.Products(), lines)
		if err != nil {
			return err
		}

		uow := NewUnitOfWork(s.logger)
		defer rollbackInto(ctx, uow, &err)

		ledger := NewLedger(repos.Inventory(), s.cfg.MaxQuantity)
		if order.Status.ReservesStock() {
			if err := s.release(ctx, ledger, uow, order.Items); err != nil {
				return err
			}
		}

		status, err := s.reserve(ctx, ledger, uow, items)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(status) {
			return domain.InvalidTransition("order %s cannot move from %s to %s", ref, order.Status, status)
		}

		order.Items = items
		order.Status = status
		order.UpdatedAt = s.now()
		if err := repos.Orders().UpdateOrder(ctx, order); err != nil {
			return err
		}
		uow.Commit()
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransitioned(string(updated.Status))
	s.logger.Info("Order updated",
		zap.String("reference", updated.Reference),
		zap.String("status", string(updated.Status)),
	)
	return updated, nil
}

// Cancel releases any reserved stock and moves the order to CANCELLED.
func (s *OrderService) Cancel(ctx context.Context, ref string) (*domain.Order, error) {
	var cancelled *domain.Order
	err := s.tx.Execute(ctx, func(repos port.Repositories) (err error) {
		order, err := repos.Orders().GetOrderByReference(ctx, ref)
		if err != nil {
			return err
		}
		if !order.Status.CanTransitionTo(domain.OrderStatusCancelled) {
			return domain.InvalidTransition("order %s is %s and cannot be cancelled", ref, order.Status)
		}

		uow := NewUnitOfWork(s.logger)
		defer rollbackInto(ctx, uow, &err)

		if order.Status.ReservesStock() {
			ledger := NewLedger(repos.Inventory(), s.cfg.MaxQuantity)
			if err := s.release(ctx, ledger, uow, order.Items); err != nil {
				return err
			}
		}

		order.Status = domain.OrderStatusCancelled
		order.UpdatedAt = s.now()
		if err := repos.Orders().UpdateOrder(ctx, order); err != nil {
			return err
		}
		uow.Commit()
		cancelled = order
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransitioned(string(domain.OrderStatusCancelled))
	s.logger.Info("Order cancelled", zap.String("reference", ref))
	return cancelled, nil
}

// MarkInvoiced generates the invoice and then moves the order to INVOICED.
// Any failure of the invoicing call leaves the order FULFILLABLE, so the call
// can be retried.
func (s *OrderService) MarkInvoiced(ctx context.Context, ref string) (*domain.Invoice, error) {
	release, err := s.lockInvoice(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer release()

	order, err := s.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := checkInvoiceable(order); err != nil {
		return nil, err
	}

	invoice, err := s.generateInvoice(ctx, *order)
	if err != nil {
		return nil, err
	}

	err = s.tx.Execute(ctx, func(repos port.Repositories) error {
		current, err := repos.Orders().GetOrderByReference(ctx, ref)
		if err != nil {
			return err
		}
		if err := checkInvoiceable(current); err != nil {
			return err
		}
		current.Status = domain.OrderStatusInvoiced
		current.UpdatedAt = s.now()
		return repos.Orders().UpdateOrder(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransitioned(string(domain.OrderStatusInvoiced))
	s.logger.Info("Order invoiced",
		zap.String("reference", ref),
		zap.String("invoice_number", invoice.InvoiceNumber),
	)
	return invoice, nil
}

// GetInvoice fetches the invoice of an INVOICED order.
func (s *OrderService) GetInvoice(ctx context.Context, ref string) (*domain.Invoice, error) {
	order, err := s.GetByRef(ctx, ref)
	if err != nil {
		return nil, err
	}
	if order.Status != domain.OrderStatusInvoiced {
		return nil, domain.InvalidTransition("order %s has not been invoiced", ref)
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.InvoiceTimeout)
	defer cancel()

	invoice, err := s.invoices.GetInvoice(callCtx, ref)
	if err != nil {
		return nil, asExternal(err, "fetch invoice for order %s", ref)
	}
	return invoice, nil
}

func (s *OrderService) GetByRef(ctx context.Context, ref string) (*domain.Order, error) {
	var order *domain.Order
	err := s.tx.Execute(ctx, func(repos port.Repositories) error {
		var err error
		order, err = repos.Orders().GetOrderByReference(ctx, ref)
		return err
	})
	return order, err
}

// Search returns one page of orders matching filter, newest first.
func (s *OrderService) Search(ctx context.Context, filter domain.OrderFilter) (*domain.OrderPage, error) {
	if filter.Page < 0 {
		return nil, domain.Validation("page cannot be negative: %d", filter.Page)
	}
	if filter.Size < 1 || filter.Size > maxPageSize {
		return nil, domain.Validation("page size must be between 1 and %d: %d", maxPageSize, filter.Size)
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && filter.From.After(filter.To) {
		return nil, domain.Validation("from must not be after to")
	}
	if filter.Status != "" {
		if _, ok := domain.ParseOrderStatus(string(filter.Status)); !ok {
			return nil, domain.Validation("unknown order status %q", filter.Status)
		}
	}

	page := &domain.OrderPage{Page: filter.Page, Size: filter.Size}
	err := s.tx.Execute(ctx, func(repos port.Repositories) error {
		var err error
		page.Orders, page.Total, err = repos.Orders().SearchOrders(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

// reserve deducts every item or none. On the first shortfall the deductions
// made so far are compensated and UNFULFILLABLE is returned. On success the
// compensations move to uow so a later failure in the same call undoes them.
func (s *OrderService) reserve(ctx context.Context, ledger *Ledger, uow *UnitOfWork, items []domain.OrderItem) (domain.OrderStatus, error) {
	held := NewUnitOfWork(s.logger)
	for _, item := range items {
		ok, err := ledger.DeductAtomically(ctx, item.ProductID, item.Quantity)
		if err != nil {
			uow.Adopt(held)
			return "", err
		}
		if !ok {
			s.metrics.ReservationFailed()
			s.logger.Debug("Insufficient stock",
				zap.String("barcode", item.Barcode),
				zap.Int("requested", item.Quantity),
			)
			if err := held.Rollback(ctx); err != nil {
				return "", err
			}
			return domain.OrderStatusUnfulfillable, nil
		}

		held.Defer("restore "+item.Barcode, func(ctx context.Context) error {
			return ledger.Restore(ctx, item.ProductID, item.Quantity)
		})
	}

	uow.Adopt(held)
	return domain.OrderStatusFulfillable, nil
}

// release returns the stock held by items and records the re-deduction that
// undoes it.
func (s *OrderService) release(ctx context.Context, ledger *Ledger, uow *UnitOfWork, items []domain.OrderItem) error {
	for _, item := range items {
		if err := ledger.Restore(ctx, item.ProductID, item.Quantity); err != nil {
			return err
		}

		uow.Defer("deduct "+item.Barcode, func(ctx context.Context) error {
			ok, err := ledger.DeductAtomically(ctx, item.ProductID, item.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return domain.Conflict("stock for %s changed during rollback", item.Barcode)
			}
			return nil
		})
	}
	return nil
}

func (s *OrderService) lockInvoice(ctx context.Context, ref string) (func(), error) {
	key := invoiceLockScope + ref
	token := uuid.NewString()

	ok, err := s.locks.AcquireLock(ctx, key, token, s.cfg.InvoiceLockTTL)
	if err != nil {
		return nil, domain.ExternalDependency(err, "acquire invoice lock for order %s", ref)
	}
	if !ok {
		return nil, domain.Conflict("order %s is already being invoiced", ref)
	}

	return func() {
		if err := s.locks.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			s.logger.Warn("Failed to release invoice lock", zap.String("reference", ref), zap.Error(err))
		}
	}, nil
}

func (s *OrderService) generateInvoice(ctx context.Context, order domain.Order) (*domain.Invoice, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.InvoiceTimeout)
	defer cancel()

	start := time.Now()
	invoice, err := s.invoices.GenerateInvoice(callCtx, order)
	if err != nil {
		s.metrics.InvoiceRequest("error", time.Since(start))
		s.logger.Warn("Invoice generation failed", zap.String("reference", order.Reference), zap.Error(err))
		return nil, asExternal(err, "generate invoice for order %s", order.Reference)
	}
	s.metrics.InvoiceRequest("ok", time.Since(start))
	return invoice, nil
}

func checkInvoiceable(order *domain.Order) error {
	switch {
	case order.Status == domain.OrderStatusInvoiced:
		return domain.InvalidTransition("order %s already invoiced", order.Reference)
	case order.Status != domain.OrderStatusFulfillable:
		return domain.InvalidTransition("only fulfillable orders can be invoiced; order %s is %s", order.Reference, order.Status)
	}
	return nil
}

// asExternal reports collaborator failures as ExternalDependency unless they
// already carry that code.
func asExternal(err error, format string, args ...any) error {
	if domain.CodeOf(err) == domain.CodeExternalDependency {
		return err
	}
	return domain.ExternalDependency(err, format, args...)
}

func validateLines(lines []domain.OrderLine) error {
	if len(lines) == 0 {
		return domain.Validation("order must contain at least one item")
	}
	for i, line := range lines {
		if err := validate.Struct(line); err != nil {
			return domain.Validation("item %d: %s", i+1, describeValidation(err))
		}
		if line.SellingPrice.IsNegative() {
			return domain.Validation("item %d: selling_price cannot be negative", i+1)
		}
	}
	return nil
}

func resolveItems(ctx context.Context, products port.ProductRepository, lines []domain.OrderLine) ([]domain.OrderItem, error) {
	barcodes := make([]string, len(lines))
	for i, line := range lines {
		barcodes[i] = line.Barcode
	}

	found, err := products.GetProductsByBarcodes(ctx, barcodes)
	if err != nil {
		return nil, err
	}

	items := make([]domain.OrderItem, len(lines))
	for i, line := range lines {
		p, ok := found[line.Barcode]
		if !ok {
			return nil, domain.NotFound("product with barcode %s not found", line.Barcode)
		}
		items[i] = domain.OrderItem{
			ProductID:    p.ID,
			Barcode:      p.Barcode,
			Quantity:     line.Quantity,
			SellingPrice: line.SellingPrice,
		}
	}
	return items, nil
}
