package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

const (
	defaultMaxAttempts = 3
	defaultRetryDelay  = 100 * time.Millisecond
)

// RetryPolicy bounds how often an operation that lost an optimistic lock race
// is run again.
type RetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
	// Jitter adds a random duration in [0, Jitter) to every delay
	Jitter time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		Delay:       defaultRetryDelay,
	}
}

func (p RetryPolicy) backoff() time.Duration {
	d := p.Delay
	if p.Jitter > 0 {
		d += time.Duration(rand.Int63n(int64(p.Jitter)))
	}
	return d
}

// Do calls fn until it returns something other than domain.ErrConflict. When
// every attempt conflicts it returns domain.ErrConcurrencyExhausted.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	attempts := max(p.MaxAttempts, 1)

	for attempt := 1; ; attempt++ {
		err := fn(ctx, attempt)
		if !errors.Is(err, domain.ErrConflict) {
			return err
		}
		if attempt >= attempts {
			return fmt.Errorf("%w after %d attempts", domain.ErrConcurrencyExhausted, attempt)
		}
		if err := sleep(ctx, p.backoff()); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
