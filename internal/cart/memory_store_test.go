package cart

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedAvail(m map[string]int) Availability {
	return func(_ context.Context, productID string) (int, error) {
		return m[productID], nil
	}
}

func TestAddUpdateRemove(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fixedAvail(nil))

	c, err := s.AddItem(ctx, "u1", "A", "", 2)
	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Qty)

	// same pair accumulates, distinct variant is its own line
	c, err = s.AddItem(ctx, "u1", "A", "", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Lines[0].Qty)
	c, err = s.AddItem(ctx, "u1", "A", "red", 1)
	require.NoError(t, err)
	assert.Len(t, c.Lines, 2)

	c, err = s.UpdateItem(ctx, "u1", "A", "", 5)
	require.NoError(t, err)
	l, ok := c.Find("A", "")
	require.True(t, ok)
	assert.Equal(t, 5, l.Qty)

	c, err = s.RemoveItem(ctx, "u1", "A", "red")
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)
}

func TestValidationErrors(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fixedAvail(nil))

	_, err := s.AddItem(ctx, "u1", "A", "", 0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.AddItem(ctx, "u1", "", "", 1)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = s.UpdateItem(ctx, "u1", "A", "", 0)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.UpdateItem(ctx, "u1", "missing", "", 2)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.RemoveItem(ctx, "u1", "missing", "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClear(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fixedAvail(nil))
	_, err := s.AddItem(ctx, "u1", "A", "", 2)
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx, "u1"))
	c, err := s.Get(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, c.Empty())
}

func TestMergeGuestCartSums(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fixedAvail(map[string]int{"A": 10}))

	_, err := s.AddItem(ctx, "guest-tok", "A", "", 2)
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "u1", "A", "", 1)
	require.NoError(t, err)

	merged, err := s.MergeGuestCart(ctx, "guest-tok", "u1")
	require.NoError(t, err)
	require.Len(t, merged.Lines, 1)
	assert.Equal(t, 3, merged.Lines[0].Qty)

	// guest cart is gone
	g, err := s.Get(ctx, "guest-tok")
	require.NoError(t, err)
	assert.True(t, g.Empty())
}

func TestMergeGuestCartClamps(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fixedAvail(map[string]int{"A": 2, "B": 0}))

	_, err := s.AddItem(ctx, "guest-tok", "A", "", 2)
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "guest-tok", "B", "", 1)
	require.NoError(t, err)
	_, err = s.AddItem(ctx, "u1", "A", "", 1)
	require.NoError(t, err)

	merged, err := s.MergeGuestCart(ctx, "guest-tok", "u1")
	require.NoError(t, err)

	// A clamped from 3 to 2, B dropped entirely
	require.Len(t, merged.Lines, 1)
	assert.Equal(t, "A", merged.Lines[0].ProductID)
	assert.Equal(t, 2, merged.Lines[0].Qty)
}

func TestMergeValidation(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fixedAvail(nil))

	_, err := s.MergeGuestCart(ctx, "", "u1")
	assert.ErrorIs(t, err, ErrValidation)
	_, err = s.MergeGuestCart(ctx, "u1", "u1")
	assert.ErrorIs(t, err, ErrValidation)
}
