// Package workerpool provides a bounded worker pool with a bounded queue.
//
// A pool keeps MinWorkers goroutines alive for its whole life and grows up to
// MaxWorkers when every worker is busy. Workers above the minimum exit after
// IdleTimeout without work. Submit never blocks: a full queue rejects the task.
package workerpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

// Config sizes a pool.
type Config struct {
	// Name identifies the pool in logs.
	Name string

	// MinWorkers is the number of workers that never expire.
	MinWorkers int

	// MaxWorkers is the upper bound on concurrent workers.
	MaxWorkers int

	// QueueSize is the number of tasks that may wait for a worker.
	QueueSize int

	// IdleTimeout is how long a worker above MinWorkers waits before exiting.
	IdleTimeout time.Duration
}

// Validate checks the configuration for errors.
func (c Config) Validate() error {
	if c.MinWorkers < 1 {
		return fmt.Errorf("%s pool: min workers must be at least 1", c.Name)
	}
	if c.MaxWorkers < c.MinWorkers {
		return fmt.Errorf("%s pool: max workers (%d) below min workers (%d)", c.Name, c.MaxWorkers, c.MinWorkers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("%s pool: queue size must be at least 1", c.Name)
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%s pool: idle timeout must be positive", c.Name)
	}
	return nil
}

// Task is a unit of work. Panics inside a task are recovered and logged.
type Task func()

// Pool runs submitted tasks on a bounded set of goroutines.
type Pool struct {
	cfg    Config
	tasks  chan Task
	extra  *semaphore.Weighted
	logger ports.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	workers atomic.Int32
	idle    atomic.Int32
}

// New creates a pool and starts its MinWorkers workers.
func New(cfg Config, logger ports.Logger) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		cfg:    cfg,
		tasks:  make(chan Task, cfg.QueueSize),
		extra:  semaphore.NewWeighted(int64(cfg.MaxWorkers - cfg.MinWorkers)),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	for i := 0; i < cfg.MinWorkers; i++ {
		p.spawn(true)
	}
	return p, nil
}

// Submit enqueues a task without blocking.
// Returns domain.ErrQueueFull when the queue is at capacity and
// domain.ErrOutputStopped after Stop.
func (p *Pool) Submit(task Task) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return domain.ErrOutputStopped
	}

	select {
	case p.tasks <- task:
	default:
		return domain.ErrQueueFull
	}

	if p.idle.Load() == 0 && p.extra.TryAcquire(1) {
		p.spawn(false)
	}
	return nil
}

// Stop closes the queue, lets workers drain it and waits up to timeout.
// Tasks still queued when the timeout expires are abandoned.
// Returns domain.ErrShutdownTimeout if the pool did not drain in time.
// Calling Stop more than once is a no-op.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.tasks)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-timer.C:
		p.cancel()
		p.logger.Warn("worker pool shutdown timeout, abandoning queued tasks",
			ports.String("pool", p.cfg.Name),
			ports.Int("queued", len(p.tasks)),
			ports.Duration("timeout", timeout),
		)
		return domain.ErrShutdownTimeout
	}
}

// Workers returns the number of live workers.
func (p *Pool) Workers() int {
	return int(p.workers.Load())
}

// Queued returns the number of tasks waiting for a worker.
func (p *Pool) Queued() int {
	return len(p.tasks)
}

// Config returns the pool configuration.
func (p *Pool) Config() Config {
	return p.cfg
}

func (p *Pool) spawn(core bool) {
	p.wg.Add(1)
	p.workers.Add(1)
	go p.work(core)
}

func (p *Pool) work(core bool) {
	defer p.wg.Done()
	defer p.workers.Add(-1)
	if !core {
		defer p.extra.Release(1)
	}

	var idleTimer *time.Timer
	if !core {
		idleTimer = time.NewTimer(p.cfg.IdleTimeout)
		defer idleTimer.Stop()
	}

	for {
		var (
			task Task
			ok   bool
		)

		p.idle.Add(1)
		if core {
			task, ok = <-p.tasks
		} else {
			select {
			case task, ok = <-p.tasks:
			case <-idleTimer.C:
				p.idle.Add(-1)
				return
			}
		}
		p.idle.Add(-1)

		if !ok {
			return
		}
		if p.ctx.Err() != nil {
			// Stop timed out; drop what is left.
			continue
		}
		p.run(task)

		if idleTimer != nil {
			if !idleTimer.Stop() {
				select {
				case <-idleTimer.C:
				default:
				}
			}
			idleTimer.Reset(p.cfg.IdleTimeout)
		}
	}
}

func (p *Pool) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("worker pool task panicked",
				ports.String("pool", p.cfg.Name),
				ports.Any("panic", r),
			)
		}
	}()
	task()
}
