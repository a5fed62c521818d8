package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

// Loader defaults.
const (
	DefaultLoaderWorkers      = 1
	MaxLoaderWorkers          = 9
	DefaultLoaderIdleInterval = 2 * time.Second
)

// ReplaySource is what the loader drains: a store of persisted transmissions
// plus a dispatcher that paces retries.
type ReplaySource interface {
	FetchOldest() (*domain.Transmission, error)
	Dispatch(t *domain.Transmission) domain.SendResult
	RetryDelay() time.Duration
}

// Loader replays persisted transmissions through the dispatcher on a fixed
// set of background workers.
type Loader struct {
	source   ReplaySource
	workers  int
	idle     time.Duration
	logger   ports.Logger
	observer Observer

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
	stopped bool
}

// NewLoader creates a loader with the given number of workers (1 to MaxLoaderWorkers).
// idle is the sleep between polls of an empty store; zero selects the default.
func NewLoader(source ReplaySource, workers int, idle time.Duration, logger ports.Logger, observer Observer) (*Loader, error) {
	if workers < 1 || workers > MaxLoaderWorkers {
		return nil, fmt.Errorf("%w: loader workers must be between 1 and %d, got %d",
			domain.ErrInvalidConfig, MaxLoaderWorkers, workers)
	}
	if idle <= 0 {
		idle = DefaultLoaderIdleInterval
	}
	return &Loader{
		source:   source,
		workers:  workers,
		idle:     idle,
		logger:   logger,
		observer: orNop(observer),
	}, nil
}

// Start launches the workers. They run until Stop or until ctx is canceled.
func (l *Loader) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.started {
		return domain.ErrAlreadyRunning
	}
	l.started = true

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := range l.workers {
		g.Go(func() error {
			l.run(gctx, i)
			return nil
		})
	}

	l.cancel = cancel
	l.done = make(chan struct{})
	go func() {
		_ = g.Wait()
		close(l.done)
	}()

	l.logger.Info("loader started", ports.Int("workers", l.workers))
	return nil
}

// Stop signals the workers and waits up to timeout for them to exit.
// A dispatch already in progress is allowed to finish. Calling Stop again,
// or on a loader that never started, is a no-op.
func (l *Loader) Stop(timeout time.Duration) error {
	l.mu.Lock()
	if !l.started || l.stopped {
		l.mu.Unlock()
		return nil
	}
	l.stopped = true
	cancel, done := l.cancel, l.done
	l.mu.Unlock()

	cancel()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return nil
	case <-timer.C:
		l.logger.Warn("loader shutdown timeout", ports.Duration("timeout", timeout))
		return domain.ErrShutdownTimeout
	}
}

func (l *Loader) run(ctx context.Context, id int) {
	for {
		if delay := l.source.RetryDelay(); delay > 0 {
			l.logger.Debug("replay backing off",
				ports.Int("worker", id),
				ports.Duration("delay", delay),
			)
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		if ctx.Err() != nil {
			return
		}

		t, err := l.source.FetchOldest()
		if err != nil {
			l.logger.Warn("failed to fetch persisted transmission",
				ports.Int("worker", id),
				ports.Err(err),
			)
		}
		if t == nil {
			if !sleep(ctx, l.idle) {
				return
			}
			continue
		}

		l.logger.Debug("replaying transmission",
			ports.Int("worker", id),
			ports.Int("bytes", t.Size()),
		)
		l.observer.Replayed(t)
		l.source.Dispatch(t)
	}
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
