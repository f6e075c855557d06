package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

// InventoryTx is the view of the store inside one transaction. Nothing written
// through it is visible to other transactions until the transaction commits.
type InventoryTx interface {
	// GetInventory reads the current stock and version of a product
	GetInventory(ctx context.Context, productID int64) (domain.Inventory, error)

	// UnitPrice returns the current catalog price of a product
	UnitPrice(ctx context.Context, productID int64) (decimal.Decimal, error)

	// TryDecrement takes quantity units if the stored version still equals
	// expectedVersion. It returns domain.ErrConflict on a version mismatch and
	// *domain.InsufficientStockError when stock cannot cover quantity.
	TryDecrement(ctx context.Context, productID int64, quantity int, expectedVersion int64) (int64, error)

	// InsertOrder persists the order with its lines and assigns its ID
	InsertOrder(ctx context.Context, order *domain.Order) error
}

type TxRunner interface {
	// WithinTx runs fn in a single transaction. It commits when fn returns nil
	// and rolls everything back otherwise.
	WithinTx(ctx context.Context, fn func(tx InventoryTx) error) error
}

type CatalogRepository interface {
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)

	// SaveProduct creates or replaces a catalog entry, used for seeding
	SaveProduct(ctx context.Context, product *domain.Product) error

	SetPrice(ctx context.Context, id int64, price decimal.Decimal) error
}

type InventoryRepository interface {
	GetInventory(ctx context.Context, productID int64) (domain.Inventory, error)

	// IncreaseStock restocks a product regardless of its version
	IncreaseStock(ctx context.Context, productID int64, quantity int) error
}

type OrderRepository interface {
	GetOrder(ctx context.Context, id int64) (*domain.Order, error)
	ListOrdersByCustomerEmail(ctx context.Context, email string) ([]domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error
}

type DatabaseRepository interface {
	TxRunner
	CatalogRepository
	InventoryRepository
	OrderRepository
}
