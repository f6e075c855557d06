package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/mylogger"
	"github.com/rl1809/order-fulfillment/internal/port"
)

var ErrDuplicateRequest = errors.New("duplicate request")

type OrderService struct {
	db          port.DatabaseRepository
	carts       port.CartRepository
	idempotency port.IdempotencyRepository
	retry       RetryPolicy
	logger      *zap.Logger
	tracer      trace.Tracer
	metrics     orderMetrics
	now         func() time.Time
}

type Option func(*OrderService)

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(s *OrderService) {
		s.retry = policy
	}
}

// WithIdempotency enables duplicate detection for PlaceOrder.
func WithIdempotency(repo port.IdempotencyRepository) Option {
	return func(s *OrderService) {
		s.idempotency = repo
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *OrderService) {
		s.now = now
	}
}

func NewOrderService(db port.DatabaseRepository, carts port.CartRepository, logger *zap.Logger, opts ...Option) *OrderService {
	s := &OrderService{
		db:      db,
		carts:   carts,
		retry:   DefaultRetryPolicy(),
		logger:  logger,
		tracer:  otel.Tracer("order_service"),
		metrics: newOrderMetrics(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateOrder turns the cart of sessionKey into an order. Either every line
// is taken from stock and the order is stored, or nothing changes. Attempts
// that lose a version race are rerun from scratch under the retry policy.
func (s *OrderService) CreateOrder(ctx context.Context, sessionKey string, customer domain.CustomerInfo) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.CreateOrder")
	defer span.End()

	span.SetAttributes(attribute.String("session_key", sessionKey))

	var order *domain.Order
	err := s.retry.Do(ctx, func(ctx context.Context, attempt int) error {
		placed, err := s.attempt(ctx, sessionKey, customer)
		if errors.Is(err, domain.ErrConflict) {
			s.metrics.conflicts.Add(ctx, 1)
			mylogger.Debug(ctx, s.logger, "Order attempt lost a version race",
				zap.String("session_key", sessionKey),
				zap.Int("attempt", attempt),
			)
		}
		order = placed
		return err
	})
	if err != nil {
		span.RecordError(err)
		s.recordFailure(ctx, sessionKey, err)
		return nil, err
	}

	// The order is committed at this point. A cart that cannot be cleared is
	// left for the customer to empty.
	if err := s.carts.ClearCart(ctx, sessionKey); err != nil {
		mylogger.Error(ctx, s.logger, "Failed to clear cart after order",
			zap.String("session_key", sessionKey),
			zap.Int64("order_id", order.ID),
			zap.Error(err),
		)
	}

	s.metrics.created.Add(ctx, 1)
	span.SetAttributes(attribute.Int64("order_id", order.ID))
	mylogger.Info(ctx, s.logger, "Order created",
		zap.Int64("order_id", order.ID),
		zap.String("customer_email", order.Customer.Email),
		zap.String("total_amount", order.TotalAmount.String()),
	)

	return order, nil
}

func (s *OrderService) attempt(ctx context.Context, sessionKey string, customer domain.CustomerInfo) (*domain.Order, error) {
	cart, err := s.carts.GetCart(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}

	lines := cart.SortedLines()

	var order *domain.Order
	err = s.db.WithinTx(ctx, func(tx port.InventoryTx) error {
		orderLines := make([]domain.OrderLine, 0, len(lines))

		for _, line := range lines {
			inv, err := tx.GetInventory(ctx, line.ProductID)
			if err != nil {
				return err
			}

			price, err := tx.UnitPrice(ctx, line.ProductID)
			if err != nil {
				return err
			}

			if _, err := tx.TryDecrement(ctx, line.ProductID, line.Quantity, inv.Version); err != nil {
				return err
			}

			orderLines = append(orderLines, domain.OrderLine{
				ProductID: line.ProductID,
				Quantity:  line.Quantity,
				UnitPrice: price,
			})
		}

		placed, err := domain.NewOrder(customer, orderLines, s.now())
		if err != nil {
			return err
		}
		if err := tx.InsertOrder(ctx, placed); err != nil {
			return err
		}

		order = placed
		return nil
	})
	if err != nil {
		return nil, err
	}

	return order, nil
}

func (s *OrderService) recordFailure(ctx context.Context, sessionKey string, err error) {
	reason := "storage"
	var stockErr *domain.InsufficientStockError

	switch {
	case errors.Is(err, domain.ErrEmptyCart):
		reason = "empty_cart"
		mylogger.Debug(ctx, s.logger, "Order rejected, cart is empty", zap.String("session_key", sessionKey))
	case errors.As(err, &stockErr):
		reason = "insufficient_stock"
		mylogger.Info(ctx, s.logger, "Order rejected, insufficient stock",
			zap.String("session_key", sessionKey),
			zap.Int64("product_id", stockErr.ProductID),
			zap.Int("requested", stockErr.Requested),
			zap.Int("available", stockErr.Available),
		)
	case errors.Is(err, domain.ErrConcurrencyExhausted):
		reason = "concurrency_exhausted"
		mylogger.Warn(ctx, s.logger, "Order rejected, retries exhausted",
			zap.String("session_key", sessionKey),
			zap.Int("max_attempts", s.retry.MaxAttempts),
		)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		reason = "canceled"
	default:
		mylogger.Error(ctx, s.logger, "Failed to create order", zap.String("session_key", sessionKey), zap.Error(err))
	}

	s.metrics.failed.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

// PlaceOrder is CreateOrder guarded by a client supplied idempotency key. A
// key is held only while its order succeeds; failed submissions release it.
func (s *OrderService) PlaceOrder(ctx context.Context, idempotencyKey, sessionKey string, customer domain.CustomerInfo) (*domain.Order, error) {
	if idempotencyKey == "" || s.idempotency == nil {
		return s.CreateOrder(ctx, sessionKey, customer)
	}

	key := fmt.Sprintf("order:%s:%s", sessionKey, idempotencyKey)

	ok, err := s.idempotency.SetIdempotency(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("idempotency check failed: %w", err)
	}
	if !ok {
		return nil, ErrDuplicateRequest
	}

	order, err := s.CreateOrder(ctx, sessionKey, customer)
	if err != nil {
		if relErr := s.idempotency.ReleaseIdempotency(context.WithoutCancel(ctx), key); relErr != nil {
			mylogger.Error(ctx, s.logger, "Failed to release idempotency key", zap.String("key", key), zap.Error(relErr))
		}
		return nil, err
	}

	return order, nil
}

func (s *OrderService) GetOrder(ctx context.Context, id int64) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.GetOrder")
	defer span.End()

	return s.db.GetOrder(ctx, id)
}

func (s *OrderService) ListOrdersByCustomerEmail(ctx context.Context, email string) ([]domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.ListOrdersByCustomerEmail")
	defer span.End()

	orders, err := s.db.ListOrdersByCustomerEmail(ctx, email)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return orders, nil
}

// UpdateOrderStatus moves an order to status, given by name, and returns the
// updated order.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, id int64, status string) (*domain.Order, error) {
	ctx, span := s.tracer.Start(ctx, "OrderService.UpdateOrderStatus")
	defer span.End()

	parsed, err := domain.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	if err := s.db.UpdateOrderStatus(ctx, id, parsed); err != nil {
		span.RecordError(err)
		return nil, err
	}

	mylogger.Info(ctx, s.logger, "Order status updated", zap.Int64("order_id", id), zap.String("status", string(parsed)))

	return s.db.GetOrder(ctx, id)
}
