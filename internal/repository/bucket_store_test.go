package repository

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBucketStartsFull(t *testing.T) {
	store := NewMemoryBucketStore(clock.NewMock())
	p := BucketPolicy{Capacity: 3, RefillInterval: time.Minute}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := store.Admit(ctx, "k", p)
		require.NoError(t, err)
		assert.True(t, ok, "admit %d", i)
	}
	ok, err := store.Admit(ctx, "k", p)
	require.NoError(t, err)
	assert.False(t, ok, "bucket should be empty")
}

func TestMemoryBucketCheckDoesNotConsume(t *testing.T) {
	store := NewMemoryBucketStore(clock.NewMock())
	p := BucketPolicy{Capacity: 1, RefillInterval: time.Minute}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := store.Check(ctx, "k", p)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	ok, _ := store.Admit(ctx, "k", p)
	assert.True(t, ok)
	ok, _ = store.Check(ctx, "k", p)
	assert.False(t, ok)
}

func TestMemoryBucketRefill(t *testing.T) {
	clk := clock.NewMock()
	store := NewMemoryBucketStore(clk)
	p := BucketPolicy{Capacity: 2, RefillInterval: 30 * time.Second}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, _ := store.Admit(ctx, "k", p)
		require.True(t, ok)
	}

	clk.Add(29 * time.Second)
	ok, _ := store.Admit(ctx, "k", p)
	assert.False(t, ok, "no refill before the interval elapses")

	clk.Add(1 * time.Second)
	ok, _ = store.Admit(ctx, "k", p)
	assert.True(t, ok, "one token after one interval")
	ok, _ = store.Admit(ctx, "k", p)
	assert.False(t, ok)
}

// The refill keeps the fractional remainder of a partially elapsed
// interval rather than restarting the countdown on every access.
func TestMemoryBucketRefillKeepsFraction(t *testing.T) {
	clk := clock.NewMock()
	store := NewMemoryBucketStore(clk)
	p := BucketPolicy{Capacity: 5, RefillInterval: 10 * time.Second}
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, _ := store.Admit(ctx, "k", p)
		require.True(t, ok)
	}

	clk.Add(15 * time.Second)
	ok, _ := store.Admit(ctx, "k", p) // consumes the one refilled token
	require.True(t, ok)

	clk.Add(5 * time.Second) // 5s remainder + 5s = one full interval
	ok, _ = store.Admit(ctx, "k", p)
	assert.True(t, ok)
}

func TestMemoryBucketCreditCapsAtCapacity(t *testing.T) {
	store := NewMemoryBucketStore(clock.NewMock())
	p := BucketPolicy{Capacity: 2, RefillInterval: time.Minute}
	ctx := context.Background()

	require.NoError(t, store.Credit(ctx, "k", p))
	require.NoError(t, store.Credit(ctx, "k", p))

	ok, _ := store.Admit(ctx, "k", p)
	assert.True(t, ok)
	ok, _ = store.Admit(ctx, "k", p)
	assert.True(t, ok)
	ok, _ = store.Admit(ctx, "k", p)
	assert.False(t, ok, "credits must not exceed capacity")
}

func TestMemoryBucketCreditRestoresToken(t *testing.T) {
	store := NewMemoryBucketStore(clock.NewMock())
	p := BucketPolicy{Capacity: 1, RefillInterval: time.Hour}
	ctx := context.Background()

	ok, _ := store.Admit(ctx, "k", p)
	require.True(t, ok)
	ok, _ = store.Admit(ctx, "k", p)
	require.False(t, ok)

	require.NoError(t, store.Credit(ctx, "k", p))
	ok, _ = store.Admit(ctx, "k", p)
	assert.True(t, ok)
}

func TestMemoryBucketConcurrentAdmits(t *testing.T) {
	store := NewMemoryBucketStore(clock.NewMock())
	p := BucketPolicy{Capacity: 10, RefillInterval: time.Hour}
	ctx := context.Background()

	var admitted int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.Admit(ctx, "k", p)
			assert.NoError(t, err)
			if ok {
				atomic.AddInt64(&admitted, 1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(10), admitted)
}

func TestMemoryBucketKeysAreIndependent(t *testing.T) {
	store := NewMemoryBucketStore(clock.NewMock())
	p := BucketPolicy{Capacity: 1, RefillInterval: time.Hour}
	ctx := context.Background()

	ok, _ := store.Admit(ctx, "a", p)
	require.True(t, ok)
	ok, _ = store.Admit(ctx, "a", p)
	require.False(t, ok)

	ok, _ = store.Admit(ctx, "b", p)
	assert.True(t, ok)
}
