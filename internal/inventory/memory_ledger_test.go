package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLedger(t *testing.T, productID string, stock int) *MemoryLedger {
	t.Helper()
	l := NewMemoryLedger()
	require.NoError(t, l.SetStock(context.Background(), productID, stock))
	return l
}

func TestReserveAndCounters(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t, "p1", 10)

	res, err := l.Reserve(ctx, "p1", 3, "r1", "o1", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, ReservationActive, res.Status)
	assert.Equal(t, "o1", res.OrderID)

	rec, err := l.Stock(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, 10, rec.TotalStock)
	assert.Equal(t, 3, rec.Reserved)
	assert.Equal(t, 0, rec.Committed)
	assert.Equal(t, 7, rec.Available())
}

func TestReserveInsufficient(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t, "p1", 2)

	_, err := l.Reserve(ctx, "p1", 3, "r1", "o1", time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	var ie *InsufficientError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "p1", ie.ProductID)
	assert.Equal(t, 3, ie.Requested)
	assert.Equal(t, 2, ie.Available)

	// failed reserve changes nothing
	rec, _ := l.Stock(ctx, "p1")
	assert.Equal(t, 0, rec.Reserved)
}

func TestReserveUnknownProduct(t *testing.T) {
	l := NewMemoryLedger()
	_, err := l.Reserve(context.Background(), "nope", 1, "r1", "o1", time.Minute)
	assert.ErrorIs(t, err, ErrProductNotFound)
}

func TestCommitMovesReservedToCommitted(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t, "p1", 10)
	_, err := l.Reserve(ctx, "p1", 4, "r1", "o1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, l.Commit(ctx, "r1"))
	rec, _ := l.Stock(ctx, "p1")
	assert.Equal(t, 0, rec.Reserved)
	assert.Equal(t, 4, rec.Committed)
	assert.Equal(t, 6, rec.Available())

	// second commit is a no-op
	require.NoError(t, l.Commit(ctx, "r1"))
	rec, _ = l.Stock(ctx, "p1")
	assert.Equal(t, 4, rec.Committed)
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t, "p1", 10)
	_, err := l.Reserve(ctx, "p1", 4, "r1", "o1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, "r1"))
	require.NoError(t, l.Release(ctx, "r1"))

	rec, _ := l.Stock(ctx, "p1")
	assert.Equal(t, 0, rec.Reserved)
	assert.Equal(t, 10, rec.Available())
}

func TestCommitAfterReleaseFails(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t, "p1", 10)
	_, err := l.Reserve(ctx, "p1", 4, "r1", "o1", time.Minute)
	require.NoError(t, err)

	require.NoError(t, l.Release(ctx, "r1"))
	assert.ErrorIs(t, l.Commit(ctx, "r1"), ErrInvalidState)

	// release after commit is a quiet no-op
	_, err = l.Reserve(ctx, "p1", 2, "r2", "o2", time.Minute)
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, "r2"))
	require.NoError(t, l.Release(ctx, "r2"))
	rec, _ := l.Stock(ctx, "p1")
	assert.Equal(t, 2, rec.Committed)
}

func TestRestockAndSetStock(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t, "p1", 5)

	require.NoError(t, l.Restock(ctx, "p1", 3))
	rec, _ := l.Stock(ctx, "p1")
	assert.Equal(t, 8, rec.TotalStock)

	// SUBTRACT below available is rejected
	err := l.Restock(ctx, "p1", -9)
	assert.ErrorIs(t, err, ErrInsufficientStock)

	// SET below reserved+committed is rejected
	_, err = l.Reserve(ctx, "p1", 4, "r1", "o1", time.Minute)
	require.NoError(t, err)
	assert.Error(t, l.SetStock(ctx, "p1", 3))
	require.NoError(t, l.SetStock(ctx, "p1", 4))
}

// Two concurrent checkouts fight over 5 units, each wanting 3. Exactly one
// wins.
func TestConcurrentReserveContention(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t, "p1", 5)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.Reserve(ctx, "p1", 3, []string{"r-a", "r-b"}[i], "o", time.Minute)
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		if err == nil {
			won++
		} else if errors.Is(err, ErrInsufficientStock) {
			lost++
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)

	rec, _ := l.Stock(ctx, "p1")
	assert.Equal(t, 3, rec.Reserved)
	assert.Equal(t, 2, rec.Available())
}

// Hammer one product from many goroutines and verify no oversell and the
// counter identity holds afterwards.
func TestNoOversellUnderLoad(t *testing.T) {
	ctx := context.Background()
	const total = 50
	l := setupLedger(t, "p1", total)

	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := uuidLike(i)
			if _, err := l.Reserve(ctx, "p1", 2, id, "o", time.Minute); err == nil {
				mu.Lock()
				granted += 2
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	rec, _ := l.Stock(ctx, "p1")
	assert.LessOrEqual(t, granted, total)
	assert.Equal(t, granted, rec.Reserved)
	assert.GreaterOrEqual(t, rec.Available(), 0)
}

func uuidLike(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i/26))
}

func TestReleaseExpired(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t, "p1", 10)

	_, err := l.Reserve(ctx, "p1", 3, "r-exp", "o1", -time.Second) // already expired
	require.NoError(t, err)
	_, err = l.Reserve(ctx, "p1", 2, "r-live", "o2", time.Hour)
	require.NoError(t, err)

	released, err := l.ReleaseExpired(ctx, time.Now())
	require.NoError(t, err)
	require.Len(t, released, 1)
	assert.Equal(t, "r-exp", released[0].ID)
	assert.Equal(t, ReservationReleased, released[0].Status)

	rec, _ := l.Stock(ctx, "p1")
	assert.Equal(t, 2, rec.Reserved)

	// a second sweep releases nothing more
	released, err = l.ReleaseExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, released)
}

func TestSweepLosesRaceToCommit(t *testing.T) {
	ctx := context.Background()
	l := setupLedger(t, "p1", 10)

	_, err := l.Reserve(ctx, "p1", 3, "r1", "o1", -time.Second)
	require.NoError(t, err)
	require.NoError(t, l.Commit(ctx, "r1"))

	released, err := l.ReleaseExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Empty(t, released)

	rec, _ := l.Stock(ctx, "p1")
	assert.Equal(t, 3, rec.Committed)
	assert.Equal(t, 0, rec.Reserved)
}
