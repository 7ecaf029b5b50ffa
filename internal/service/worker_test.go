package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsTasks(t *testing.T) {
	pool := NewWorkerPool(2, 8, time.Second)

	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		ok := pool.Submit("count", func(context.Context) {
			defer wg.Done()
			ran.Add(1)
		})
		require.True(t, ok)
	}
	wg.Wait()
	assert.Equal(t, int64(8), ran.Load())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Shutdown(ctx)
}

func TestWorkerPoolDropsWhenFull(t *testing.T) {
	pool := NewWorkerPool(1, 1, time.Second)

	block := make(chan struct{})
	pool.Submit("blocker", func(context.Context) { <-block })

	// Let the worker pick up the blocker, then fill the queue
	time.Sleep(20 * time.Millisecond)
	require.True(t, pool.Submit("queued", func(context.Context) {}))

	dropped := !pool.Submit("overflow", func(context.Context) {})
	assert.True(t, dropped)

	close(block)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Shutdown(ctx)
}

func TestWorkerPoolRecoversFromPanic(t *testing.T) {
	pool := NewWorkerPool(1, 4, time.Second)

	done := make(chan struct{})
	pool.Submit("panics", func(context.Context) { panic("boom") })
	pool.Submit("after", func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive the panic")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Shutdown(ctx)
}

func TestWorkerPoolTaskTimeout(t *testing.T) {
	pool := NewWorkerPool(1, 4, 20*time.Millisecond)

	expired := make(chan struct{})
	pool.Submit("waits", func(ctx context.Context) {
		<-ctx.Done()
		close(expired)
	})

	select {
	case <-expired:
	case <-time.After(time.Second):
		t.Fatal("task context did not expire")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Shutdown(ctx)
}
