//go:build integration

package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/port"
)

type PostgresAdapterSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	pool      *pgxpool.Pool
	adapter   *PostgresAdapter
}

func TestPostgresAdapterSuite(t *testing.T) {
	suite.Run(t, new(PostgresAdapterSuite))
}

func (s *PostgresAdapterSuite) SetupSuite() {
	s.ctx = context.Background()

	var err error
	s.container, err = postgres.Run(
		s.ctx,
		"postgres:17-alpine",
		postgres.WithDatabase("shop"),
		postgres.WithUsername("shop"),
		postgres.WithPassword("shop"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)

	connStr, err := s.container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	s.Require().NoError(MigratePostgres(connStr))

	s.pool, err = pgxpool.New(s.ctx, connStr)
	s.Require().NoError(err)

	s.adapter = NewPostgresAdapter(s.pool, zap.NewNop())
}

func (s *PostgresAdapterSuite) TearDownSuite() {
	if s.pool != nil {
		s.pool.Close()
	}
	if s.container != nil {
		s.NoError(s.container.Terminate(s.ctx))
	}
}

func (s *PostgresAdapterSuite) SetupTest() {
	_, err := s.pool.Exec(s.ctx, `TRUNCATE order_lines, orders, products CASCADE`)
	s.Require().NoError(err)
}

func (s *PostgresAdapterSuite) seed(id int64, stock int) {
	s.Require().NoError(s.adapter.SaveProduct(s.ctx, &domain.Product{
		ID:       id,
		Name:     "pg test item",
		Category: "test",
		Price:    decimal.RequireFromString("12500.50"),
		Stock:    stock,
	}))
}

func (s *PostgresAdapterSuite) decrement(productID int64, quantity int) error {
	return s.adapter.WithinTx(s.ctx, func(tx port.InventoryTx) error {
		inv, err := tx.GetInventory(s.ctx, productID)
		if err != nil {
			return err
		}
		_, err = tx.TryDecrement(s.ctx, productID, quantity, inv.Version)
		return err
	})
}

func (s *PostgresAdapterSuite) TestTryDecrement() {
	s.seed(1, 10)

	s.Require().NoError(s.decrement(1, 4))

	inv, err := s.adapter.GetInventory(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(6, inv.Stock)
	s.Equal(int64(1), inv.Version)

	err = s.decrement(1, 7)
	var stockErr *domain.InsufficientStockError
	s.Require().ErrorAs(err, &stockErr)
	s.Equal(6, stockErr.Available)

	err = s.adapter.WithinTx(s.ctx, func(tx port.InventoryTx) error {
		_, err := tx.TryDecrement(s.ctx, 1, 1, 0)
		return err
	})
	s.ErrorIs(err, domain.ErrConflict)
}

func (s *PostgresAdapterSuite) TestRollbackOnLaterFailure() {
	s.seed(1, 10)
	s.seed(2, 1)

	err := s.adapter.WithinTx(s.ctx, func(tx port.InventoryTx) error {
		for _, id := range []int64{1, 2} {
			inv, err := tx.GetInventory(s.ctx, id)
			if err != nil {
				return err
			}
			if _, err := tx.TryDecrement(s.ctx, id, 2, inv.Version); err != nil {
				return err
			}
		}
		return nil
	})
	s.ErrorIs(err, domain.ErrInsufficientStock)

	inv, _ := s.adapter.GetInventory(s.ctx, 1)
	s.Equal(10, inv.Stock)
}

func (s *PostgresAdapterSuite) TestOrderRoundTrip() {
	s.seed(1, 10)

	order, err := domain.NewOrder(
		domain.CustomerInfo{Name: "Lee", Email: "lee@test.com", Address: "Busan"},
		[]domain.OrderLine{{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("12500.50")}},
		time.Now().UTC().Truncate(time.Microsecond),
	)
	s.Require().NoError(err)

	s.Require().NoError(s.adapter.WithinTx(s.ctx, func(tx port.InventoryTx) error {
		return tx.InsertOrder(s.ctx, order)
	}))
	s.NotZero(order.ID)

	saved, err := s.adapter.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.True(saved.TotalAmount.Equal(decimal.RequireFromString("25001")))
	s.Require().Len(saved.Lines, 1)
	s.True(saved.Lines[0].UnitPrice.Equal(decimal.RequireFromString("12500.50")))

	s.Require().NoError(s.adapter.SetPrice(s.ctx, 1, decimal.NewFromInt(1)))
	saved, err = s.adapter.GetOrder(s.ctx, order.ID)
	s.Require().NoError(err)
	s.True(saved.Lines[0].UnitPrice.Equal(decimal.RequireFromString("12500.50")))

	orders, err := s.adapter.ListOrdersByCustomerEmail(s.ctx, "lee@test.com")
	s.Require().NoError(err)
	s.Len(orders, 1)

	s.Require().NoError(s.adapter.UpdateOrderStatus(s.ctx, order.ID, domain.OrderStatusDelivered))
	s.ErrorIs(s.adapter.UpdateOrderStatus(s.ctx, 999, domain.OrderStatusDelivered), domain.ErrOrderNotFound)

	_, err = s.adapter.GetOrder(s.ctx, 999)
	s.ErrorIs(err, domain.ErrOrderNotFound)
}

func (s *PostgresAdapterSuite) TestConcurrentDecrements() {
	initialStock := 20
	s.seed(1, initialStock)

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := s.decrement(1, 1)
				if errors.Is(err, domain.ErrConflict) {
					continue
				}
				if err == nil {
					successCount.Add(1)
				}
				return
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(initialStock), successCount.Load())

	inv, err := s.adapter.GetInventory(s.ctx, 1)
	s.Require().NoError(err)
	s.Equal(0, inv.Stock)
	s.Equal(int64(initialStock), inv.Version)
}
