package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/mylogger"
	"github.com/rl1809/order-fulfillment/internal/port"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

type PostgresAdapter struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tracer trace.Tracer
}

func NewPostgresAdapter(pool *pgxpool.Pool, logger *zap.Logger) *PostgresAdapter {
	return &PostgresAdapter{
		pool:   pool,
		logger: logger,
		tracer: otel.Tracer("postgres_adapter"),
	}
}

// pgQuerier is satisfied by both *pgxpool.Pool and pgx.Tx.
type pgQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected) {
		return fmt.Errorf("%w: %v", domain.ErrConflict, err)
	}
	return err
}

func (p *PostgresAdapter) WithinTx(ctx context.Context, fn func(tx port.InventoryTx) error) error {
	ctx, span := p.tracer.Start(ctx, "PostgresAdapter.WithinTx")
	defer span.End()

	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, p.logger, "Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return mapPgError(err)
	}

	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		mylogger.Warn(ctx, p.logger, "Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("commit: %w", mapPgError(err))
	}

	return nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetInventory(ctx context.Context, productID int64) (domain.Inventory, error) {
	return getPgInventory(ctx, t.tx, productID)
}

func (t *pgTx) UnitPrice(ctx context.Context, productID int64) (decimal.Decimal, error) {
	var raw string
	err := t.tx.QueryRow(ctx, `SELECT price::text FROM products WHERE id = $1`, productID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Decimal{}, domain.ErrProductNotFound
	}
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("query price: %w", err)
	}
	return decimal.NewFromString(raw)
}

func (t *pgTx) TryDecrement(ctx context.Context, productID int64, quantity int, expectedVersion int64) (int64, error) {
	if quantity < 1 {
		return 0, domain.ErrInvalidQuantity
	}

	var newVersion int64
	err := t.tx.QueryRow(ctx, `
		UPDATE products
		SET stock = stock - $1, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3 AND stock >= $1
		RETURNING version`,
		quantity, productID, expectedVersion,
	).Scan(&newVersion)
	if err == nil {
		return newVersion, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("update inventory: %w", mapPgError(err))
	}

	inv, err := getPgInventory(ctx, t.tx, productID)
	if err != nil {
		return 0, err
	}
	return 0, decrementFailure(inv, quantity, expectedVersion)
}

func (t *pgTx) InsertOrder(ctx context.Context, order *domain.Order) error {
	if len(order.Lines) == 0 {
		return domain.ErrEmptyOrder
	}

	var id int64
	err := t.tx.QueryRow(ctx, `
		INSERT INTO orders (customer_name, customer_email, customer_address, total_amount, status, created_at)
		VALUES ($1, $2, $3, $4::numeric, $5, $6)
		RETURNING id`,
		order.Customer.Name, order.Customer.Email, order.Customer.Address,
		order.TotalAmount.String(), string(order.Status), order.CreatedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert order: %w", mapPgError(err))
	}

	batch := &pgx.Batch{}
	for _, line := range order.Lines {
		batch.Queue(`
			INSERT INTO order_lines (order_id, product_id, quantity, unit_price)
			VALUES ($1, $2, $3, $4::numeric)`,
			id, line.ProductID, line.Quantity, line.UnitPrice.String(),
		)
	}
	if err := t.tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert order lines: %w", mapPgError(err))
	}

	order.ID = id
	return nil
}

func getPgInventory(ctx context.Context, q pgQuerier, productID int64) (domain.Inventory, error) {
	inv := domain.Inventory{ProductID: productID}
	err := q.QueryRow(ctx, `
		SELECT stock, version, updated_at FROM products WHERE id = $1`, productID,
	).Scan(&inv.Stock, &inv.Version, &inv.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Inventory{}, domain.ErrProductNotFound
	}
	if err != nil {
		return domain.Inventory{}, fmt.Errorf("query inventory: %w", err)
	}

	return inv, nil
}

func (p *PostgresAdapter) GetInventory(ctx context.Context, productID int64) (domain.Inventory, error) {
	return getPgInventory(ctx, p.pool, productID)
}

func (p *PostgresAdapter) IncreaseStock(ctx context.Context, productID int64, quantity int) error {
	if quantity < 1 {
		return domain.ErrInvalidQuantity
	}

	tag, err := p.pool.Exec(ctx, `
		UPDATE products
		SET stock = stock + $1, version = version + 1, updated_at = NOW()
		WHERE id = $2`,
		quantity, productID,
	)
	if err != nil {
		return fmt.Errorf("increase stock: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (p *PostgresAdapter) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var product domain.Product
	var price string
	err := p.pool.QueryRow(ctx, `
		SELECT id, name, category, price::text, stock, version, created_at, updated_at
		FROM products WHERE id = $1`, id,
	).Scan(&product.ID, &product.Name, &product.Category, &price, &product.Stock,
		&product.Version, &product.CreatedAt, &product.UpdatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query product: %w", err)
	}

	if product.Price, err = decimal.NewFromString(price); err != nil {
		return nil, fmt.Errorf("parse price %q: %w", price, err)
	}
	return &product, nil
}

func (p *PostgresAdapter) SaveProduct(ctx context.Context, product *domain.Product) error {
	if product.Stock < 0 {
		return domain.ErrInvalidQuantity
	}

	err := p.pool.QueryRow(ctx, `
		INSERT INTO products (id, name, category, price, stock, version)
		VALUES ($1, $2, $3, $4::numeric, $5, 0)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name, category = EXCLUDED.category, price = EXCLUDED.price,
			stock = EXCLUDED.stock, version = products.version + 1, updated_at = NOW()
		RETURNING version`,
		product.ID, product.Name, product.Category, product.Price.String(), product.Stock,
	).Scan(&product.Version)
	if err != nil {
		return fmt.Errorf("save product: %w", err)
	}

	return nil
}

func (p *PostgresAdapter) SetPrice(ctx context.Context, id int64, price decimal.Decimal) error {
	tag, err := p.pool.Exec(ctx, `
		UPDATE products SET price = $1::numeric, version = version + 1, updated_at = NOW()
		WHERE id = $2`, price.String(), id,
	)
	if err != nil {
		return fmt.Errorf("set price: %w", mapPgError(err))
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (p *PostgresAdapter) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := p.tracer.Start(ctx, "PostgresAdapter.GetOrder")
	defer span.End()
	span.SetAttributes(attribute.Int64("order_id", id))

	orders, err := p.queryOrders(ctx, `WHERE id = $1`, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if len(orders) == 0 {
		return nil, domain.ErrOrderNotFound
	}

	return &orders[0], nil
}

func (p *PostgresAdapter) ListOrdersByCustomerEmail(ctx context.Context, email string) ([]domain.Order, error) {
	ctx, span := p.tracer.Start(ctx, "PostgresAdapter.ListOrdersByCustomerEmail")
	defer span.End()

	orders, err := p.queryOrders(ctx, `WHERE customer_email = $1`, email)
	if err != nil {
		span.RecordError(err)
		mylogger.Error(ctx, p.logger, "Failed to list orders", zap.Error(err))
		return nil, err
	}
	return orders, nil
}

func (p *PostgresAdapter) queryOrders(ctx context.Context, where string, args ...any) ([]domain.Order, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, customer_name, customer_email, customer_address, total_amount::text, status, created_at
		FROM orders `+where+` ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		var o domain.Order
		var total, status string
		if err := rows.Scan(&o.ID, &o.Customer.Name, &o.Customer.Email, &o.Customer.Address,
			&total, &status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		if o.TotalAmount, err = decimal.NewFromString(total); err != nil {
			return nil, fmt.Errorf("parse total %q: %w", total, err)
		}
		o.Status = domain.OrderStatus(status)
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}

	for i := range orders {
		lines, err := queryPgOrderLines(ctx, p.pool, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}

	return orders, nil
}

func queryPgOrderLines(ctx context.Context, q pgQuerier, orderID int64) ([]domain.OrderLine, error) {
	rows, err := q.Query(ctx, `
		SELECT product_id, quantity, unit_price::text
		FROM order_lines WHERE order_id = $1 ORDER BY product_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order lines: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine
	for rows.Next() {
		var line domain.OrderLine
		var price string
		if err := rows.Scan(&line.ProductID, &line.Quantity, &price); err != nil {
			return nil, fmt.Errorf("scan order line: %w", err)
		}
		if line.UnitPrice, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse unit price %q: %w", price, err)
		}
		lines = append(lines, line)
	}

	return lines, rows.Err()
}

func (p *PostgresAdapter) UpdateOrderStatus(ctx context.Context, id int64, status domain.OrderStatus) error {
	ctx, span := p.tracer.Start(ctx, "PostgresAdapter.UpdateOrderStatus")
	defer span.End()

	span.SetAttributes(
		attribute.Int64("order_id", id),
		attribute.String("status", string(status)),
	)

	tag, err := p.pool.Exec(ctx, `UPDATE orders SET status = $1 WHERE id = $2`, string(status), id)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("update order status: %w", err)
	}

	if tag.RowsAffected() == 0 {
		mylogger.Warn(ctx, p.logger, "Order not found", zap.Int64("order_id", id))
		return domain.ErrOrderNotFound
	}

	return nil
}
