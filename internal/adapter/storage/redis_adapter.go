package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

const (
	cartKeyPrefix        = "cart:"
	idempotencyKeyPrefix = "idempotency:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// updateCartLineScript replaces the quantity of an existing cart line, or
// removes the line when the new quantity is not positive. Returns 0 when the
// line does not exist.
var updateCartLineScript = redis.NewScript(`
local key = KEYS[1]
local field = ARGV[1]
local quantity = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

if redis.call('HEXISTS', key, field) == 0 then
	return 0
end

if quantity <= 0 then
	redis.call('HDEL', key, field)
else
	redis.call('HSET', key, field, quantity)
end

if ttl > 0 then
	redis.call('PEXPIRE', key, ttl)
end

return 1
`)

// RedisAdapter stores each cart as a hash of product ID to quantity, and keeps
// idempotency keys for order submissions.
type RedisAdapter struct {
	client  *redis.Client
	cartTTL time.Duration
}

func NewRedisAdapter(client *redis.Client, cartTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, cartTTL: cartTTL}
}

func cartKey(sessionKey string) string {
	return cartKeyPrefix + sessionKey
}

func (r *RedisAdapter) GetCart(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	fields, err := r.client.HGetAll(ctx, cartKey(sessionKey)).Result()
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	cart := domain.NewCart(sessionKey)
	for field, value := range fields {
		productID, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse cart product %q: %w", field, err)
		}
		quantity, err := strconv.Atoi(value)
		if err != nil {
			return nil, fmt.Errorf("parse cart quantity %q: %w", value, err)
		}
		if quantity > 0 {
			cart.Lines = append(cart.Lines, domain.CartLine{ProductID: productID, Quantity: quantity})
		}
	}
	sort.Slice(cart.Lines, func(i, j int) bool {
		return cart.Lines[i].ProductID < cart.Lines[j].ProductID
	})

	return cart, nil
}

func (r *RedisAdapter) AddLine(ctx context.Context, sessionKey string, productID int64, quantity int) error {
	key := cartKey(sessionKey)

	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, strconv.FormatInt(productID, 10), int64(quantity))
		if r.cartTTL > 0 {
			pipe.Expire(ctx, key, r.cartTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("add cart line: %w", err)
	}

	return nil
}

func (r *RedisAdapter) UpdateLine(ctx context.Context, sessionKey string, productID int64, quantity int) (bool, error) {
	result, err := updateCartLineScript.Run(ctx, r.client,
		[]string{cartKey(sessionKey)},
		strconv.FormatInt(productID, 10), quantity, r.cartTTL.Milliseconds(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("update cart line: %w", err)
	}

	return result == 1, nil
}

func (r *RedisAdapter) ClearCart(ctx context.Context, sessionKey string) error {
	if err := r.client.Del(ctx, cartKey(sessionKey)).Err(); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, err
	}

	return ok, nil
}

func (r *RedisAdapter) ReleaseIdempotency(ctx context.Context, key string) error {
	return r.client.Del(ctx, idempotencyKeyPrefix+key).Err()
}
