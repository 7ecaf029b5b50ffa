package service

import (
	"context"
	"sync"
	"time"

	"github.com/darkpool-labs/relaygate/internal/pkg/logger"
)

type task struct {
	name string
	fn   func(context.Context)
}

// WorkerPool runs the detached post-response work: exchange logging,
// settlement tracking, limit credits, sponsorship finalization. Tasks
// get a fresh context so they run to completion regardless of whether
// the originating caller is still connected; the response path never
// awaits them. The queue is bounded, so at saturation tasks are dropped
// (with a log line) rather than growing without bound.
type WorkerPool struct {
	tasks       chan task
	taskTimeout time.Duration
	wg          sync.WaitGroup
}

func NewWorkerPool(workers, queueSize int, taskTimeout time.Duration) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	if taskTimeout <= 0 {
		taskTimeout = 5 * time.Minute
	}
	p := &WorkerPool{
		tasks:       make(chan task, queueSize),
		taskTimeout: taskTimeout,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues a task without blocking. Returns false when the queue is
// full and the task was dropped.
func (p *WorkerPool) Submit(name string, fn func(context.Context)) bool {
	select {
	case p.tasks <- task{name: name, fn: fn}:
		return true
	default:
		logger.Warn("background queue full, dropping task", "task", name)
		return false
	}
}

// Shutdown stops accepting tasks and waits for in-flight ones, bounded
// by the given context.
func (p *WorkerPool) Shutdown(ctx context.Context) {
	close(p.tasks)
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Warn("shutdown deadline reached with background tasks still running")
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		p.run(t)
	}
}

func (p *WorkerPool) run(t task) {
	ctx, cancel := context.WithTimeout(context.Background(), p.taskTimeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("background task panicked", "task", t.name, "panic", r)
		}
	}()
	t.fn(ctx)
}
