package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rl1809/pos-backoffice/internal/core/domain"
	"github.com/rl1809/pos-backoffice/internal/port"
)

// MemoryAdapter keeps every repository in process memory. Units of work are
// serialized and restored from a snapshot when they fail, so it gives the
// same all-or-nothing guarantee as a database transaction.
type MemoryAdapter struct {
	txMu sync.Mutex
	mu   sync.Mutex

	nextID       int64
	nextClientID int64
	clients      map[int64]domain.Client
	products     map[int64]domain.Product
	barcodes     map[string]int64
	inventory    map[int64]domain.Inventory
	orders       map[int64]domain.Order
	refs         map[string]int64
	locks        map[string]memoryLock

	now func() time.Time
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

type memorySnapshot struct {
	nextID    int64
	products  map[int64]domain.Product
	barcodes  map[string]int64
	inventory map[int64]domain.Inventory
	orders    map[int64]domain.Order
	refs      map[string]int64
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		clients:   make(map[int64]domain.Client),
		products:  make(map[int64]domain.Product),
		barcodes:  make(map[string]int64),
		inventory: make(map[int64]domain.Inventory),
		orders:    make(map[int64]domain.Order),
		refs:      make(map[string]int64),
		locks:     make(map[string]memoryLock),
		now:       time.Now,
	}
}

var (
	_ port.TransactionScope = (*MemoryAdapter)(nil)
	_ port.Repositories     = (*MemoryAdapter)(nil)
	_ port.LockRepository   = (*MemoryAdapter)(nil)
)

func (m *MemoryAdapter) Execute(ctx context.Context, fn func(repos port.Repositories) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	snap := m.snapshot()
	if err := fn(m); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

func (m *MemoryAdapter) Inventory() port.InventoryRepository { return m }
func (m *MemoryAdapter) Orders() port.OrderRepository        { return m }
func (m *MemoryAdapter) Products() port.ProductRepository    { return m }
func (m *MemoryAdapter) Clients() port.ClientRepository      { return m }

// AddClient registers a client directly; clients are managed outside the core.
func (m *MemoryAdapter) AddClient(client domain.Client) domain.Client {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextClientID++
	client.ID = m.nextClientID
	m.clients[client.ID] = client
	return client
}

func (m *MemoryAdapter) snapshot() memorySnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := memorySnapshot{
		nextID:    m.nextID,
		products:  make(map[int64]domain.Product, len(m.products)),
		barcodes:  make(map[string]int64, len(m.barcodes)),
		inventory: make(map[int64]domain.Inventory, len(m.inventory)),
		orders:    make(map[int64]domain.Order, len(m.orders)),
		refs:      make(map[string]int64, len(m.refs)),
	}
	for k, v := range m.products {
		snap.products[k] = v
	}
	for k, v := range m.barcodes {
		snap.barcodes[k] = v
	}
	for k, v := range m.inventory {
		snap.inventory[k] = v
	}
	for k, v := range m.orders {
		snap.orders[k] = copyOrder(v)
	}
	for k, v := range m.refs {
		snap.refs[k] = v
	}
	return snap
}

func (m *MemoryAdapter) restore(snap memorySnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID = snap.nextID
	m.products = snap.products
	m.barcodes = snap.barcodes
	m.inventory = snap.inventory
	m.orders = snap.orders
	m.refs = snap.refs
}

// Inventory

func (m *MemoryAdapter) GetInventory(ctx context.Context, productID int64) (*domain.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.inventory[productID]
	if !ok {
		return nil, domain.NotFound("inventory for product %d not found", productID)
	}
	return &inv, nil
}

func (m *MemoryAdapter) GetInventories(ctx context.Context, productIDs []int64) ([]domain.Inventory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]domain.Inventory, 0, len(productIDs))
	for _, id := range productIDs {
		if inv, ok := m.inventory[id]; ok {
			result = append(result, inv)
		}
	}
	return result, nil
}

func (m *MemoryAdapter) DeductStock(ctx context.Context, productID int64, quantity int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.inventory[productID]
	if !ok || inv.Quantity < quantity {
		return false, nil
	}
	inv.Quantity -= quantity
	inv.UpdatedAt = m.now()
	m.inventory[productID] = inv
	return true, nil
}

func (m *MemoryAdapter) RestoreStock(ctx context.Context, productID int64, quantity, limit int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inv, ok := m.inventory[productID]
	if !ok || inv.Quantity+quantity > limit {
		return false, nil
	}
	inv.Quantity += quantity
	inv.UpdatedAt = m.now()
	m.inventory[productID] = inv
	return true, nil
}

func (m *MemoryAdapter) SaveInventory(ctx context.Context, inventory domain.Inventory) error {
	return m.SaveInventories(ctx, []domain.Inventory{inventory})
}

func (m *MemoryAdapter) SaveInventories(ctx context.Context, inventories []domain.Inventory) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for _, inv := range inventories {
		if existing, ok := m.inventory[inv.ProductID]; ok {
			inv.CreatedAt = existing.CreatedAt
		} else {
			inv.CreatedAt = now
		}
		inv.UpdatedAt = now
		m.inventory[inv.ProductID] = inv
	}
	return nil
}

// Orders

func (m *MemoryAdapter) CreateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.refs[order.Reference]; exists {
		return domain.Conflict("order reference %s already exists", order.Reference)
	}
	m.nextID++
	order.ID = m.nextID
	m.orders[order.ID] = copyOrder(*order)
	m.refs[order.Reference] = order.ID
	return nil
}

func (m *MemoryAdapter) UpdateOrder(ctx context.Context, order *domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.orders[order.ID]; !ok {
		return domain.NotFound("order %s not found", order.Reference)
	}
	m.orders[order.ID] = copyOrder(*order)
	return nil
}

func (m *MemoryAdapter) GetOrderByReference(ctx context.Context, reference string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.refs[reference]
	if !ok {
		return nil, domain.NotFound("order %s not found", reference)
	}
	order := copyOrder(m.orders[id])
	return &order, nil
}

func (m *MemoryAdapter) ReferenceExists(ctx context.Context, reference string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.refs[reference]
	return ok, nil
}

func (m *MemoryAdapter) SearchOrders(ctx context.Context, filter domain.OrderFilter) ([]domain.Order, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var matched []domain.Order
	for _, o := range m.orders {
		if filter.ReferenceContains != "" && !strings.Contains(o.Reference, filter.ReferenceContains) {
			continue
		}
		if filter.Status != "" && o.Status != filter.Status {
			continue
		}
		if !filter.From.IsZero() && o.OrderTime.Before(filter.From) {
			continue
		}
		if !filter.To.IsZero() && o.OrderTime.After(filter.To) {
			continue
		}
		matched = append(matched, copyOrder(o))
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].OrderTime.Equal(matched[j].OrderTime) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].OrderTime.After(matched[j].OrderTime)
	})

	total := int64(len(matched))
	start := filter.Page * filter.Size
	if start >= len(matched) {
		return []domain.Order{}, total, nil
	}
	end := start + filter.Size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// Products and clients

func (m *MemoryAdapter) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.products[id]
	if !ok {
		return nil, domain.NotFound("product %d not found", id)
	}
	return &p, nil
}

func (m *MemoryAdapter) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.barcodes[barcode]
	if !ok {
		return nil, domain.NotFound("product with barcode %s not found", barcode)
	}
	p := m.products[id]
	return &p, nil
}

func (m *MemoryAdapter) GetProductsByBarcodes(ctx context.Context, barcodes []string) (map[string]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	result := make(map[string]domain.Product, len(barcodes))
	for _, b := range barcodes {
		if id, ok := m.barcodes[b]; ok {
			result[b] = m.products[id]
		}
	}
	return result, nil
}

func (m *MemoryAdapter) CreateProducts(ctx context.Context, products []domain.Product) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]bool, len(products))
	for _, p := range products {
		if _, exists := m.barcodes[p.Barcode]; exists || seen[p.Barcode] {
			return domain.Conflict("product with barcode %s already exists", p.Barcode)
		}
		seen[p.Barcode] = true
	}

	now := m.now()
	for i := range products {
		m.nextID++
		products[i].ID = m.nextID
		products[i].CreatedAt = now
		products[i].UpdatedAt = now
		m.products[products[i].ID] = products[i]
		m.barcodes[products[i].Barcode] = products[i].ID
	}
	return nil
}

func (m *MemoryAdapter) GetClientsByEmails(ctx context.Context, emails []string) (map[string]domain.Client, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	wanted := make(map[string]bool, len(emails))
	for _, e := range emails {
		wanted[e] = true
	}
	result := make(map[string]domain.Client, len(emails))
	for _, c := range m.clients {
		if wanted[c.Email] {
			result[c.Email] = c
		}
	}
	return result, nil
}

// Locks

func (m *MemoryAdapter) AcquireLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if l, held := m.locks[key]; held && now.Before(l.expiresAt) {
		return false, nil
	}
	m.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (m *MemoryAdapter) ReleaseLock(ctx context.Context, key, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, held := m.locks[key]; held && l.token == token {
		delete(m.locks, key)
	}
	return nil
}

func copyOrder(o domain.Order) domain.Order {
	items := make([]domain.OrderItem, len(o.Items))
	copy(items, o.Items)
	o.Items = items
	return o
}
