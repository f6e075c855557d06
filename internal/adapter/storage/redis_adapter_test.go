package storage

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return mr, client
}

func TestRedisAdapter_GetCart_EmptySession(t *testing.T) {
	_, client := newTestRedis(t)
	adapter := NewRedisAdapter(client, time.Hour)

	cart, err := adapter.GetCart(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", cart.SessionKey)
	assert.True(t, cart.IsEmpty())
}

func TestRedisAdapter_AddLine_Merges(t *testing.T) {
	mr, client := newTestRedis(t)
	adapter := NewRedisAdapter(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, adapter.AddLine(ctx, "s1", 20, 1))
	require.NoError(t, adapter.AddLine(ctx, "s1", 10, 2))
	require.NoError(t, adapter.AddLine(ctx, "s1", 20, 3))

	cart, err := adapter.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{
		{ProductID: 10, Quantity: 2},
		{ProductID: 20, Quantity: 4},
	}, cart.Lines)

	assert.Equal(t, time.Hour, mr.TTL("cart:s1"))
}

func TestRedisAdapter_UpdateLine(t *testing.T) {
	_, client := newTestRedis(t)
	adapter := NewRedisAdapter(client, time.Hour)
	ctx := context.Background()

	require.NoError(t, adapter.AddLine(ctx, "s1", 1, 2))
	require.NoError(t, adapter.AddLine(ctx, "s1", 2, 2))

	ok, err := adapter.UpdateLine(ctx, "s1", 1, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.UpdateLine(ctx, "s1", 2, 0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = adapter.UpdateLine(ctx, "s1", 3, 5)
	require.NoError(t, err)
	assert.False(t, ok, "update must not create a line")

	cart, err := adapter.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []domain.CartLine{{ProductID: 1, Quantity: 7}}, cart.Lines)
}

func TestRedisAdapter_ClearCart(t *testing.T) {
	mr, client := newTestRedis(t)
	adapter := NewRedisAdapter(client, 0)
	ctx := context.Background()

	require.NoError(t, adapter.AddLine(ctx, "s1", 1, 1))
	require.NoError(t, adapter.ClearCart(ctx, "s1"))

	assert.False(t, mr.Exists("cart:s1"))
	cart, err := adapter.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())
}

func TestRedisAdapter_AddLine_Concurrent(t *testing.T) {
	_, client := newTestRedis(t)
	adapter := NewRedisAdapter(client, time.Hour)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := adapter.AddLine(ctx, "shared", 1, 1); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	cart, err := adapter.GetCart(ctx, "shared")
	require.NoError(t, err)
	line, ok := cart.Line(1)
	require.True(t, ok)
	assert.Equal(t, 50, line.Quantity)
}

func TestSetIdempotency_Success(t *testing.T) {
	_, client := newTestRedis(t)
	adapter := NewRedisAdapter(client, 0)
	ctx := context.Background()

	ok, err := adapter.SetIdempotency(ctx, "test-idem-key")
	require.NoError(t, err)
	assert.True(t, ok, "expected first call to succeed")

	ok, err = adapter.SetIdempotency(ctx, "test-idem-key")
	require.NoError(t, err)
	assert.False(t, ok, "expected second call to fail")

	require.NoError(t, adapter.ReleaseIdempotency(ctx, "test-idem-key"))
	ok, err = adapter.SetIdempotency(ctx, "test-idem-key")
	require.NoError(t, err)
	assert.True(t, ok, "released key can be taken again")
}

func TestSetIdempotency_Concurrent(t *testing.T) {
	_, client := newTestRedis(t)
	adapter := NewRedisAdapter(client, 0)
	ctx := context.Background()

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := adapter.SetIdempotency(ctx, "concurrent-idem-key")
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), successCount.Load())
}

func TestRedisAdapter_GetCart_PropagatesErrors(t *testing.T) {
	db, mock := redismock.NewClientMock()
	adapter := NewRedisAdapter(db, 0)

	mock.ExpectHGetAll("cart:s1").SetErr(errors.New("connection refused"))

	_, err := adapter.GetCart(context.Background(), "s1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load cart")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisAdapter_GetCart_RejectsCorruptQuantity(t *testing.T) {
	db, mock := redismock.NewClientMock()
	adapter := NewRedisAdapter(db, 0)

	mock.ExpectHGetAll("cart:s1").SetVal(map[string]string{"1": "many"})

	_, err := adapter.GetCart(context.Background(), "s1")
	assert.ErrorContains(t, err, "parse cart quantity")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSetIdempotency_Duplicate(t *testing.T) {
	db, mock := redismock.NewClientMock()
	adapter := NewRedisAdapter(db, 0)

	mock.ExpectSetNX("idempotency:req-1", 1, idempotencyKeyTTL).SetVal(false)

	ok, err := adapter.SetIdempotency(context.Background(), "req-1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, mock.ExpectationsWereMet())
}
