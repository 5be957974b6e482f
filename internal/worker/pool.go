// Package worker provides a bounded pool for background download tasks.
package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrQueueFull is returned by Submit when the task buffer is at capacity.
var ErrQueueFull = errors.New("task queue is full")

// Config represents pool configuration.
type Config struct {
	MaxWorkers int // number of worker goroutines
	QueueSize  int // task buffer size
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		MaxWorkers: 4,
		QueueSize:  100,
	}
}

// Validate validates configuration.
func (cfg Config) Validate() error {
	if cfg.MaxWorkers < 1 {
		return errors.New("max workers must be greater than 0")
	}
	if cfg.QueueSize < 1 {
		return errors.New("queue size must be greater than 0")
	}
	return nil
}

// Metrics tracks the pool's operational counters.
type Metrics struct {
	Active    atomic.Int64
	Queued    atomic.Int64
	Completed atomic.Int64
	Panics    atomic.Int64
}

// Pool runs submitted tasks on a fixed set of worker goroutines. A burst of
// submissions beyond the buffer is rejected rather than spawning unbounded
// work.
type Pool struct {
	tasks   chan func()
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	metrics Metrics
}

// NewPool creates a pool with the given configuration.
func NewPool(cfg Config) *Pool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan func(), cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := 0; i < cfg.MaxWorkers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues a task for execution. It never blocks: when the buffer is
// full it returns ErrQueueFull immediately.
func (p *Pool) Submit(task func()) error {
	select {
	case p.tasks <- task:
		p.metrics.Queued.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop shuts the pool down and waits for in-flight tasks until ctx expires.
func (p *Pool) Stop(ctx context.Context) {
	p.cancel()
	close(p.tasks)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			p.run(task)
		}
	}
}

// run executes a single task. A panicking task must not take the worker or
// the process down with it.
func (p *Pool) run(task func()) {
	p.metrics.Queued.Add(-1)
	p.metrics.Active.Add(1)
	defer func() {
		p.metrics.Active.Add(-1)
		if r := recover(); r != nil {
			p.metrics.Panics.Add(1)
			return
		}
		p.metrics.Completed.Add(1)
	}()
	task()
}

// Snapshot returns the current metrics.
func (p *Pool) Snapshot() map[string]int64 {
	return map[string]int64{
		"active":    p.metrics.Active.Load(),
		"queued":    p.metrics.Queued.Load(),
		"completed": p.metrics.Completed.Load(),
		"panics":    p.metrics.Panics.Load(),
	}
}
