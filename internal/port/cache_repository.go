package port

import (
	"context"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

type CartRepository interface {
	// GetCart returns the cart of a session, empty if none was stored yet
	GetCart(ctx context.Context, sessionKey string) (*domain.Cart, error)

	// AddLine merges quantity into the line of productID
	AddLine(ctx context.Context, sessionKey string, productID int64, quantity int) error

	// UpdateLine replaces or, for quantity <= 0, removes an existing line.
	// It reports whether the line existed.
	UpdateLine(ctx context.Context, sessionKey string, productID int64, quantity int) (bool, error)

	ClearCart(ctx context.Context, sessionKey string) error
}

type IdempotencyRepository interface {
	// SetIdempotency sets a key for idempotency check, returns false if already exists
	SetIdempotency(ctx context.Context, key string) (bool, error)

	// ReleaseIdempotency removes a key so the request may be submitted again
	ReleaseIdempotency(ctx context.Context, key string) error
}
