package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/port"
)

const mysqlDeadlock = 1213

type MySQLAdapter struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{
		db:     db,
		tracer: otel.Tracer("mysql_adapter"),
	}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func mapMySQLError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDeadlock {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

func (m *MySQLAdapter) WithinTx(ctx context.Context, fn func(tx port.InventoryTx) error) error {
	ctx, span := m.tracer.Start(ctx, "MySQLAdapter.WithinTx")
	defer span.End()

	tx, err := m.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&mysqlTx{tx: tx}); err != nil {
		return mapMySQLError(err)
	}

	if err := tx.Commit(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("commit: %w", mapMySQLError(err))
	}

	return nil
}

type mysqlTx struct {
	tx *sql.Tx
}

func (t *mysqlTx) GetInventory(ctx context.Context, productID int64) (domain.Inventory, error) {
	return getMySQLInventory(ctx, t.tx, productID)
}

func (t *mysqlTx) UnitPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var price decimal.Decimal
	err := t.tx.QueryRowContext(ctx, `SELECT price FROM products WHERE id = ?`, productID).Scan(&price)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Decimal{}, domain.ErrProductNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("query price: %w", err)
	}
	return price, nil
}

func (t *mysqlTx) TryDecrement(ctx context.Context, productID int64, quantity int, expectedVersion int64) (int64, error) {
	if quantity < 1 {
		return 0, domain.ErrInvalidQuantity
	}

	result, err := t.tx.ExecContext(ctx, `
		UPDATE products
		SET stock = stock - ?, version = version + 1, updated_at = NOW(6)
		WHERE id = ? AND version = ? AND stock >= ?`,
		quantity, productID, expectedVersion, quantity,
	)
	if err != nil {
		return 0, fmt.Errorf("update inventory: %w", mapMySQLError(err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if rows == 1 {
		return expectedVersion + 1, nil
	}

	inv, err := getMySQLInventory(ctx, t.tx, productID)
	if err != nil {
		return 0, err
	}
	return 0, decrementFailure(inv, quantity, expectedVersion)
}

// decrementFailure explains why a guarded decrement matched no row.
func decrementFailure(inv domain.Inventory, quantity int, expectedVersion int64) error {
	if inv.Version != expectedVersion {
		return domain.ErrConflict
	}
	if !inv.CanDecrement(quantity) {
		return &domain.InsufficientStockError{
			ProductID: inv.ProductID,
			Requested: quantity,
			Available: inv.Stock,
		}
	}
	return domain.ErrConflict
}

func (t *mysqlTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	if len(order.Lines) == 0 {
		return domain.ErrEmptyOrder
	}

	result, err := t.tx.ExecContext(ctx, `
		INSERT INTO orders (customer_name, customer_email, customer_address, total_amount, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		order.Customer.Name, order.Customer.Email, order.Customer.Address,
		order.TotalAmount.String(), string(order.Status), order.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", mapMySQLError(err))
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}

	for _, line := range order.Lines {
		_, err := t.tx.ExecContext(ctx, `
			INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
			VALUES (?, ?, ?, ?)`,
			id, line.ProductID, line.Quantity, line.UnitPrice.String(),
		)
		if err != nil {
			return fmt.Errorf("insert order line: %w", mapMySQLError(err))
		}
	}

	order.ID = id
	return nil
}

func getMySQLInventory(ctx context.Context, q queryer, productID int64) (domain.Inventory, error) {
	inv := domain.Inventory{ProductID: productID}
	err := q.QueryRowContext(ctx, `
		SELECT stock, version, updated_at FROM products WHERE id = ?`, productID,
	).Scan(&inv.Stock, &inv.Version, &inv.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return domain.Inventory{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Inventory{}, fmt.Errorf("query inventory: %w", err)
	}

	return inv, nil
}

func (m *MySQLAdapter) GetInventory(ctx context.Context, productID int64) (domain.Inventory, error) {
	return getMySQLInventory(ctx, m.db, productID)
}

func (m *MySQLAdapter) IncreaseStock(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}

	result, err := m.db.ExecContext(ctx, `
		UPDATE products
		SET stock = stock + ?, version = version + 1, updated_at = NOW(6)
		WHERE id = ?`,
		quantity, productID,
	)
	if err != nil {
		return fmt.Errorf("increase stock: %w", mapMySQLError(err))
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := m.db.QueryRowContext(ctx, `
		SELECT id, name, category, price, stock, version, created_at, updated_at
		FROM products WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Category, &p.Price, &p.Stock, &p.Version, &p.CreatedAt, &p.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	return &p, nil
}

func (m *MySQLAdapter) SaveProduct(ctx context.Context, product *domain.Product) error {
	if product.Stock < 0 {
		return domain.ErrInvalidQuantity
	}

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, price, stock, version)
		VALUES (?, ?, ?, ?, ?, 0)
		ON DUPLICATE KEY UPDATE
			name = VALUES(name), category = VALUES(category), price = VALUES(price),
			stock = VALUES(stock), version = version + 1, updated_at = NOW(6)`,
		product.ID, product.Name, product.Category, product.Price.String(), product.Stock,
	)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}

	saved, err := m.GetProduct(ctx, product.ID)
	if err != nil {
		return err
	}
	product.Version = saved.Version
	return nil
}

func (m *MySQLAdapter) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	result, err := m.db.ExecContext(ctx, `
		UPDATE products SET price = ?, version = version + 1, updated_at = NOW(6)
		WHERE id = ?`, price.String(), id,
	)
	if err != nil {
		return fmt.Errorf("set price: %w", mapMySQLError(err))
	}

	if rows, _ := result.RowsAffected(); rows == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (m *MySQLAdapter) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := m.tracer.Start(ctx, "MySQLAdapter.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("order_id", id))

	orders, err := m.queryOrders(ctx, `WHERE id = ?`, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.ErrOrderNotFound
	}

	return &orders[0], nil
}

func (m *MySQLAdapter) ListOrdersByCustomerEmail(ctx context.Context, email string) ([]domain.Order, error) {
	ctx, span := m.tracer.Start(ctx, "MySQLAdapter.ListOrdersByCustomerEmail")
	defer span.End()

	orders, err := m.queryOrders(ctx, `WHERE customer_email = ?`, email)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return orders, nil
}

func (m *MySQLAdapter) queryOrders(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := m.db.QueryContext(ctx, `
		SELECT id, customer_name, customer_email, customer_address, total_amount, status, created_at
		FROM orders `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var status string
		if err := rows.Scan(&o.ID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Address,
			&o.TotalAmount, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	for i := range orders {
		lines, err := queryMySQLOrderLines(ctx, m.db, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

func queryMySQLOrderLines(ctx context.Context, q queryer, orderID int64) ([]domain.OrderLine, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT product_id, quantity, unit_price
		FROM order_lines WHERE order_id = ? ORDER BY product_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		if err := rows.Scan(&line.ProductID, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

func (m *MySQLAdapter) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	result, err := m.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if rows, _ := result.RowsAffected(); rows > 0 {
		return nil
	}

	// MySQL reports zero affected rows when the status is unchanged.
	var exists int
	err = m.db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return fmt.Errorf("query order: %w", err)
	}
	return nil
}
