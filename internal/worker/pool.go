// Package worker runs fire-and-forget background tasks (cache writes,
// telemetry) with bounded concurrency.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/ricesearch/quickquery/internal/pkg/logger"
)

// Task is a unit of background work.
type Task func(ctx context.Context)

// Defaults for Config fields left zero.
const (
	DefaultWorkers     = 4
	DefaultMaxPending  = 1000
	DefaultTaskTimeout = 10 * time.Second
)

// Config configures a Pool.
type Config struct {
	// Workers bounds the number of tasks running at once.
	Workers int

	// MaxPending bounds queued plus running tasks. Submissions beyond it
	// are dropped.
	MaxPending int

	// TaskTimeout bounds each task's context.
	TaskTimeout time.Duration
}

// Pool runs submitted tasks on background goroutines. Submit never blocks
// the caller; task failures and panics are logged and discarded.
type Pool struct {
	sem        *semaphore.Weighted
	maxPending int64
	timeout    time.Duration
	log        *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	pending atomic.Int64
	dropped atomic.Int64

	// mu orders Submit's wg.Add against Close's wg.Wait.
	mu     sync.Mutex
	closed bool
}

// New creates a pool.
func New(cfg Config, log *logger.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.MaxPending <= 0 {
		cfg.MaxPending = DefaultMaxPending
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = DefaultTaskTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Pool{
		sem:        semaphore.NewWeighted(int64(cfg.Workers)),
		maxPending: int64(cfg.MaxPending),
		timeout:    cfg.TaskTimeout,
		log:        logger.OrDefault(log).WithComponent("worker"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Submit schedules task and reports whether it was accepted. Tasks are
// rejected after Close or when MaxPending tasks are outstanding.
func (p *Pool) Submit(name string, task Task) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		p.dropped.Add(1)
		return false
	}
	if p.pending.Add(1) > p.maxPending {
		p.pending.Add(-1)
		p.mu.Unlock()
		p.dropped.Add(1)
		p.log.Warn("Background queue full, dropping task", "task", name)
		return false
	}
	p.wg.Add(1)
	p.mu.Unlock()

	go func() {
		defer p.wg.Done()
		defer p.pending.Add(-1)

		if err := p.sem.Acquire(p.ctx, 1); err != nil {
			p.dropped.Add(1)
			return
		}
		defer p.sem.Release(1)

		p.run(name, task)
	}()
	return true
}

func (p *Pool) run(name string, task Task) {
	ctx, cancel := context.WithTimeout(p.ctx, p.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			p.log.Error("Background task panicked", "task", name, "panic", r)
		}
	}()
	task(ctx)
}

// Pending returns the number of queued and running tasks.
func (p *Pool) Pending() int {
	return int(p.pending.Load())
}

// Dropped returns the number of tasks that were never run.
func (p *Pool) Dropped() int {
	return int(p.dropped.Load())
}

// Wait blocks until every accepted task has finished.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Close stops accepting tasks and waits for outstanding ones until ctx is
// done, after which queued tasks are abandoned and running tasks see their
// context cancelled.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}
