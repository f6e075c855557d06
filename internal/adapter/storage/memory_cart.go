package storage

import (
	"context"
	"sync"

	"github.com/rl1809/order-fulfillment/internal/core/domain"
)

// MemoryCartRepository keeps carts in process memory, keyed by session.
type MemoryCartRepository struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
}

func NewMemoryCartRepository() *MemoryCartRepository {
	return &MemoryCartRepository{carts: make(map[string]*domain.Cart)}
}

func (r *MemoryCartRepository) GetCart(ctx context.Context, sessionKey string) (*domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[sessionKey]
	if !ok {
		return domain.NewCart(sessionKey), nil
	}
	return cart.Clone(), nil
}

func (r *MemoryCartRepository) AddLine(ctx context.Context, sessionKey string, productID int64, quantity int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cart(sessionKey).Add(productID, quantity)
	return nil
}

func (r *MemoryCartRepository) UpdateLine(ctx context.Context, sessionKey string, productID int64, quantity int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.cart(sessionKey).Update(productID, quantity), nil
}

func (r *MemoryCartRepository) ClearCart(ctx context.Context, sessionKey string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cart, ok := r.carts[sessionKey]; ok {
		cart.Clear()
	}
	return nil
}

func (r *MemoryCartRepository) cart(sessionKey string) *domain.Cart {
	cart, ok := r.carts[sessionKey]
	if !ok {
		cart = domain.NewCart(sessionKey)
		r.carts[sessionKey] = cart
	}
	return cart
}
