package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/port"
)

// MemoryAdapter is a transactional store kept in process memory. Transactions
// stage their writes privately and validate every written version at commit,
// the same fence the SQL adapters get from `WHERE version = ?`.
type MemoryAdapter struct {
	mu          sync.RWMutex
	products    map[int64]domain.Product
	orders      map[int64]*domain.Order
	nextOrderID int64
	now         func() time.Time
	tracer      trace.Tracer
}

func NewMemoryAdapter() *MemoryAdapter {
	return &MemoryAdapter{
		products: make(map[int64]domain.Product),
		orders:   make(map[int64]*domain.Order),
		now:      time.Now,
		tracer:   otel.Tracer("memory_adapter"),
	}
}

type memoryTx struct {
	store  *MemoryAdapter
	base   map[int64]int64
	writes map[int64]domain.Product
	orders []*domain.Order
}

func (m *MemoryAdapter) WithinTx(ctx context.Context, fn func(tx port.InventoryTx) error) error {
	ctx, span := m.tracer.Start(ctx, "MemoryAdapter.WithinTx")
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{
		store:  m,
		base:   make(map[int64]int64),
		writes: make(map[int64]domain.Product),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := m.commit(tx); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

func (m *MemoryAdapter) commit(tx *memoryTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for id, version := range tx.base {
		current, ok := m.products[id]
		if !ok {
			return domain.ErrProductNotFound
		}
		if current.Version != version {
			return domain.ErrConflict
		}
	}

	for id, staged := range tx.writes {
		m.products[id] = staged
	}
	for _, order := range tx.orders {
		m.nextOrderID++
		order.ID = m.nextOrderID
		m.orders[order.ID] = order.Clone()
	}

	return nil
}

func (tx *memoryTx) current(productID int64) (domain.Product, error) {
	if staged, ok := tx.writes[productID]; ok {
		return staged, nil
	}

	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	product, ok := tx.store.products[productID]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func (tx *memoryTx) GetInventory(ctx context.Context, productID int64) (domain.Inventory, error) {
	product, err := tx.current(productID)
	if err != nil {
		return domain.Inventory{}, err
	}
	return product.Inventory(), nil
}

func (tx *memoryTx) UnitPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	product, err := tx.current(productID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return product.Price, nil
}

func (tx *memoryTx) TryDecrement(ctx context.Context, productID int64, quantity int, expectedVersion int64) (int64, error) {
	if quantity < 1 {
		return 0, domain.ErrInvalidQuantity
	}

	product, err := tx.current(productID)
	if err != nil {
		return 0, err
	}
	if product.Version != expectedVersion {
		return 0, domain.ErrConflict
	}
	if product.Stock < quantity {
		return 0, &domain.InsufficientStockError{
			ProductID: productID,
			Requested: quantity,
			Available: product.Stock,
		}
	}

	if _, staged := tx.base[productID]; !staged {
		tx.base[productID] = product.Version
	}

	product.Stock -= quantity
	product.Version++
	product.UpdatedAt = tx.store.now()
	tx.writes[productID] = product

	return product.Version, nil
}

func (tx *memoryTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	if len(order.Lines) == 0 {
		return domain.ErrEmptyOrder
	}
	tx.orders = append(tx.orders, order)
	return nil
}

func (m *MemoryAdapter) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	product, ok := m.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	return &product, nil
}

func (m *MemoryAdapter) SaveProduct(ctx context.Context, product *domain.Product) error {
	if product.Stock < 0 {
		return domain.ErrInvalidQuantity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	saved := *product
	if current, ok := m.products[product.ID]; ok {
		saved.Version = current.Version + 1
		saved.CreatedAt = current.CreatedAt
	} else {
		saved.CreatedAt = now
	}
	saved.UpdatedAt = now
	m.products[product.ID] = saved

	product.Version = saved.Version
	return nil
}

func (m *MemoryAdapter) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Price = price
	product.Version++
	product.UpdatedAt = m.now()
	m.products[id] = product

	return nil
}

func (m *MemoryAdapter) GetInventory(ctx context.Context, productID int64) (domain.Inventory, error) {
	product, err := m.GetProduct(ctx, productID)
	if err != nil {
		return domain.Inventory{}, err
	}
	return product.Inventory(), nil
}

func (m *MemoryAdapter) IncreaseStock(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	product, ok := m.products[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	product.Stock += quantity
	product.Version++
	product.UpdatedAt = m.now()
	m.products[productID] = product

	return nil
}

func (m *MemoryAdapter) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	order, ok := m.orders[id]
	if !ok {
		return nil, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

func (m *MemoryAdapter) ListOrdersByCustomerEmail(ctx context.Context, email string) ([]domain.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var orders []domain.Order
	for _, order := range m.orders {
		if order.Customer.Email == email {
			orders = append(orders, *order.Clone())
		}
	}
	sort.Slice(orders, func(i, j int) bool {
		return orders[i].ID < orders[j].ID
	})

	return orders, nil
}

func (m *MemoryAdapter) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	order, ok := m.orders[id]
	if !ok {
		return domain.ErrOrderNotFound
	}
	order.Status = status

	return nil
}

// OrderCount returns the number of persisted orders.
func (m *MemoryAdapter) OrderCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.orders)
}
