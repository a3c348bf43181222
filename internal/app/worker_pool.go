package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/nhdinh03/Download-Video/internal/domain"
)

// PoolStats is a snapshot of worker pool activity
type PoolStats struct {
	Size       int   `json:"size"`
	QueueSize  int   `json:"queue_size"`
	Queued     int   `json:"queued"`
	Active     int64 `json:"active"`
	CallerRuns int64 `json:"caller_runs"`
	Closed     bool  `json:"closed"`
}

// WorkerPool runs tasks on a fixed set of workers behind a bounded queue.
// When the queue is full the submitting goroutine runs the task itself.
type WorkerPool struct {
	size   int
	tasks  chan func()
	logger *zap.Logger

	mu         sync.RWMutex
	closed     bool
	wg         sync.WaitGroup
	active     atomic.Int64
	callerRuns atomic.Int64
}

// NewWorkerPool creates and starts a worker pool
func NewWorkerPool(size, queueSize int, logger *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &WorkerPool{
		size:   size,
		tasks:  make(chan func(), queueSize),
		logger: logger,
	}

	p.wg.Add(size)
	for i := 0; i < size; i++ {
		go p.worker()
	}
	return p
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// Submit schedules a task. It returns domain.ErrShuttingDown after Shutdown.
func (p *WorkerPool) Submit(task func()) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return domain.ErrShuttingDown
	}
	select {
	case p.tasks <- task:
		p.mu.RUnlock()
		return nil
	default:
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	p.callerRuns.Add(1)
	p.logger.Debug("Worker queue full, running task on caller")
	defer p.wg.Done()
	p.run(task)
	return nil
}

func (p *WorkerPool) run(task func()) {
	p.active.Add(1)
	defer p.active.Add(-1)
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Task panicked", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
		}
	}()
	task()
}

// Shutdown stops accepting tasks and waits for queued and running tasks
// until ctx is done.
func (p *WorkerPool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("worker pool did not drain: %w", ctx.Err())
	}
}

// Stats returns current pool activity
func (p *WorkerPool) Stats() PoolStats {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	return PoolStats{
		Size:       p.size,
		QueueSize:  cap(p.tasks),
		Queued:     len(p.tasks),
		Active:     p.active.Load(),
		CallerRuns: p.callerRuns.Load(),
		Closed:     closed,
	}
}

// Accepting reports whether new tasks are admitted
func (p *WorkerPool) Accepting() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return !p.closed
}
