package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrder_ComputesTotal(t *testing.T) {
	now := time.Now()
	order, err := NewOrder(CustomerInfo{Name: "Kim", Email: "kim@example.com"}, []OrderLine{
		{ProductID: 1, Quantity: 2, UnitPrice: decimal.RequireFromString("10000")},
		{ProductID: 2, Quantity: 3, UnitPrice: decimal.RequireFromString("0.50")},
	}, now)
	require.NoError(t, err)

	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("20001.50")), "got %s", order.TotalAmount)
	assert.Equal(t, OrderStatusPending, order.Status)
	assert.Equal(t, now, order.CreatedAt)
	assert.Equal(t, 2, order.Quantity(1))
}

func TestNewOrder_RejectsEmptyLines(t *testing.T) {
	_, err := NewOrder(CustomerInfo{}, nil, time.Now())
	assert.ErrorIs(t, err, ErrEmptyOrder)
}

func TestParseOrderStatus(t *testing.T) {
	status, err := ParseOrderStatus(" shipped ")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusShipped, status)

	_, err = ParseOrderStatus("LOST")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestInsufficientStockError_MatchesSentinel(t *testing.T) {
	var err error = &InsufficientStockError{ProductID: 4, Requested: 5, Available: 2}

	assert.True(t, errors.Is(err, ErrInsufficientStock))
	assert.False(t, errors.Is(err, ErrConflict))
	assert.Contains(t, err.Error(), "product 4")

	var stockErr *InsufficientStockError
	require.ErrorAs(t, err, &stockErr)
	assert.Equal(t, 3, stockErr.Shortfall())
}

func TestInventory_CanDecrement(t *testing.T) {
	inv := Inventory{ProductID: 1, Stock: 3}
	assert.True(t, inv.CanDecrement(3))
	assert.False(t, inv.CanDecrement(4))
	assert.False(t, inv.CanDecrement(0))
}
