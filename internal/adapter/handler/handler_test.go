package handler

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/adapter/storage"
	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/core/service"
)

type testApp struct {
	store  *storage.MemoryAdapter
	carts  *storage.MemoryCartRepository
	orders *service.OrderService
	cart   *service.CartService
}

func newTestApp(t *testing.T, opts ...service.Option) *testApp {
	t.Helper()

	store := storage.NewMemoryAdapter()
	for _, p := range []domain.Product{
		{ID: 1, Name: "Laptop", Category: "electronics", Price: decimal.NewFromInt(1290000), Stock: 2},
		{ID: 2, Name: "Cable", Category: "accessories", Price: decimal.RequireFromString("9900.50"), Stock: 100},
	} {
		p := p
		require.NoError(t, store.SaveProduct(context.Background(), &p))
	}

	carts := storage.NewMemoryCartRepository()
	logger := zap.NewNop()

	return &testApp{
		store:  store,
		carts:  carts,
		orders: service.NewOrderService(store, carts, logger, opts...),
		cart:   service.NewCartService(carts, store, logger),
	}
}
