package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rl1809/order-fulfillment/internal/adapter/storage"
	"github.com/rl1809/order-fulfillment/internal/core/domain"
	"github.com/rl1809/order-fulfillment/internal/port"
)

// flakyDB makes the next n transactions lose their version race.
type flakyDB struct {
	*storage.MemoryAdapter

	mu        sync.Mutex
	conflicts int
	attempts  int
}

func (f *flakyDB) WithinTx(ctx context.Context, fn func(tx port.InventoryTx) error) error {
	f.mu.Lock()
	f.attempts++
	inject := f.conflicts > 0
	if inject {
		f.conflicts--
	}
	f.mu.Unlock()

	return f.MemoryAdapter.WithinTx(ctx, func(tx port.InventoryTx) error {
		if inject {
			return fn(conflictTx{tx})
		}
		return fn(tx)
	})
}

func (f *flakyDB) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

type conflictTx struct {
	port.InventoryTx
}

func (conflictTx) TryDecrement(ctx context.Context, productID int64, quantity int, expectedVersion int64) (int64, error) {
	return 0, domain.ErrConflict
}

// interleavingDB commits a competing write right before the first decrement
// of the first transaction, so that transaction holds a stale version.
type interleavingDB struct {
	*storage.MemoryAdapter

	once      sync.Once
	interfere func()
}

func (d *interleavingDB) WithinTx(ctx context.Context, fn func(tx port.InventoryTx) error) error {
	return d.MemoryAdapter.WithinTx(ctx, func(tx port.InventoryTx) error {
		return fn(&interleavingTx{InventoryTx: tx, db: d})
	})
}

type interleavingTx struct {
	port.InventoryTx
	db *interleavingDB
}

func (t *interleavingTx) TryDecrement(ctx context.Context, productID int64, quantity int, expectedVersion int64) (int64, error) {
	t.db.once.Do(t.db.interfere)
	return t.InventoryTx.TryDecrement(ctx, productID, quantity, expectedVersion)
}

// racingDB holds the first transactions of a burst right after their first
// inventory read until all of them have read, so they all carry the same
// version into TryDecrement. Later transactions only yield between the read
// and the write.
type racingDB struct {
	*storage.MemoryAdapter
	gate *barrier

	txs       atomic.Int32
	conflicts atomic.Int32
}

func newRacingDB(store *storage.MemoryAdapter, parties int) *racingDB {
	return &racingDB{MemoryAdapter: store, gate: newBarrier(parties)}
}

func (d *racingDB) WithinTx(ctx context.Context, fn func(tx port.InventoryTx) error) error {
	d.txs.Add(1)
	err := d.MemoryAdapter.WithinTx(ctx, func(tx port.InventoryTx) error {
		return fn(&racingTx{InventoryTx: tx, gate: d.gate})
	})
	if errors.Is(err, domain.ErrConflict) {
		d.conflicts.Add(1)
	}
	return err
}

type racingTx struct {
	port.InventoryTx
	gate *barrier
	read bool
}

func (t *racingTx) GetInventory(ctx context.Context, productID int64) (domain.Inventory, error) {
	inv, err := t.InventoryTx.GetInventory(ctx, productID)
	if err != nil {
		return inv, err
	}
	if !t.read {
		t.read = true
		t.gate.arrive()
	}
	runtime.Gosched()
	return inv, nil
}

// barrier releases its first parties arrivals together. Arrivals past that
// pass straight through; a missing party releases the rest after a second.
type barrier struct {
	mu      sync.Mutex
	parties int
	arrived int
	release chan struct{}
}

func newBarrier(parties int) *barrier {
	return &barrier{parties: parties, release: make(chan struct{})}
}

func (b *barrier) arrive() {
	b.mu.Lock()
	if b.arrived >= b.parties {
		b.mu.Unlock()
		return
	}
	b.arrived++
	if b.arrived == b.parties {
		close(b.release)
	}
	b.mu.Unlock()

	timer := time.NewTimer(time.Second)
	defer timer.Stop()
	select {
	case <-b.release:
	case <-timer.C:
	}
}

// failingCarts fails ClearCart while delegating everything else.
type failingCarts struct {
	port.CartRepository
}

func (failingCarts) ClearCart(ctx context.Context, sessionKey string) error {
	return errors.New("cart store unavailable")
}

type mockIdempotencyRepo struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newMockIdempotencyRepo() *mockIdempotencyRepo {
	return &mockIdempotencyRepo{keys: make(map[string]bool)}
}

func (m *mockIdempotencyRepo) SetIdempotency(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.keys[key] {
		return false, nil
	}
	m.keys[key] = true
	return true, nil
}

func (m *mockIdempotencyRepo) ReleaseIdempotency(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}

func seedStore(t *testing.T, products map[int64]int) *storage.MemoryAdapter {
	t.Helper()

	store := storage.NewMemoryAdapter()
	for id, stock := range products {
		require.NoError(t, store.SaveProduct(context.Background(), &domain.Product{
			ID:       id,
			Name:     "product",
			Category: "test",
			Price:    decimal.NewFromInt(1000 * id),
			Stock:    stock,
		}))
	}
	return store
}

func fillCart(t *testing.T, carts port.CartRepository, sessionKey string, lines map[int64]int) {
	t.Helper()

	for productID, quantity := range lines {
		require.NoError(t, carts.AddLine(context.Background(), sessionKey, productID, quantity))
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func customer(email string) domain.CustomerInfo {
	return domain.CustomerInfo{Name: "Buyer", Email: email, Address: "1 Main St"}
}
