package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryCartRepository(t *testing.T) {
	repo := NewMemoryCartRepository()
	ctx := context.Background()

	cart, err := repo.GetCart(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, cart.IsEmpty())

	require.NoError(t, repo.AddLine(ctx, "s1", 1, 2))
	require.NoError(t, repo.AddLine(ctx, "s1", 1, 1))

	ok, err := repo.UpdateLine(ctx, "s1", 9, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	cart, err = repo.GetCart(ctx, "s1")
	require.NoError(t, err)
	line, found := cart.Line(1)
	require.True(t, found)
	assert.Equal(t, 3, line.Quantity)

	// mutating the returned cart does not touch the stored one
	cart.Add(1, 100)
	stored, _ := repo.GetCart(ctx, "s1")
	line, _ = stored.Line(1)
	assert.Equal(t, 3, line.Quantity)

	require.NoError(t, repo.ClearCart(ctx, "s1"))
	cart, _ = repo.GetCart(ctx, "s1")
	assert.True(t, cart.IsEmpty())

	require.NoError(t, repo.ClearCart(ctx, "unknown"))
}
