package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/port"
)

// BreakerCartRepository fails fast with domain.ErrUnavailable while the
// wrapped cart store keeps failing.
type BreakerCartRepository struct {
	next port.CartRepository
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerCartRepository(next port.CartRepository, logger *zap.Logger) *BreakerCartRepository {
	settings := gobreaker.Settings{
		Name:        "CartStore",
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn(
				"Circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
	}

	return &BreakerCartRepository{
		next: next,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func execute[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	result, err := cb.Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("%w: cart store: %v", domain.ErrUnavailable, err)
		}
		return zero, err
	}
	return result.(T), nil
}

func (b *BreakerCartRepository) GetCart(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	return execute(b.cb, func() (*domain.Cart, error) {
		return b.next.GetCart(ctx, sessionKey)
	})
}

func (b *BreakerCartRepository) AddLine(ctx context.Context, sessionKey string, productID int64, quantity int) error {
	_, err := execute(b.cb, func() (struct{}, error) {
		return struct{}{}, b.next.AddLine(ctx, sessionKey, productID, quantity)
	})
	return err
}

func (b *BreakerCartRepository) UpdateLine(ctx context.Context, sessionKey string, productID int64, quantity int) (bool, error) {
	return execute(b.cb, func() (bool, error) {
		return b.next.UpdateLine(ctx, sessionKey, productID, quantity)
	})
}

func (b *BreakerCartRepository) ClearCart(ctx context.Context, sessionKey string) error {
	_, err := execute(b.cb, func() (struct{}, error) {
		return struct{}{}, b.next.ClearCart(ctx, sessionKey)
	})
	return err
}
