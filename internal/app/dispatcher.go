package app

import (
	"errors"
	"sync"
	"time"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/internal/workerpool"
)

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	NetworkPool    workerpool.Config
	FileSystemPool workerpool.Config
	Backoff        BackoffPolicy
}

// DefaultDispatcherConfig returns the default pool sizes and the exponential policy.
func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		NetworkPool:    DefaultNetworkPool,
		FileSystemPool: DefaultFileSystemPool,
		Backoff:        DefaultExponentialPolicy(),
	}
}

// Dispatcher routes each transmission to the network first and to the retry
// directory when the network attempt fails for any reason.
// It also paces disk replay: consecutive network failures select a delay
// from the backoff schedule, and a success resets it.
type Dispatcher struct {
	network    *ActiveOutput
	filesystem *ActiveOutput
	store      ports.TransmissionStore
	schedule   []time.Duration
	logger     ports.Logger
	observer   Observer
	now        func() time.Time

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	stopped     bool
}

// NewDispatcher wraps network and store in active outputs.
func NewDispatcher(network ports.TransmissionOutput, store ports.TransmissionStore, cfg DispatcherConfig, logger ports.Logger, observer Observer) (*Dispatcher, error) {
	if cfg.Backoff == nil {
		cfg.Backoff = DefaultExponentialPolicy()
	}

	d := &Dispatcher{
		store:    store,
		schedule: cfg.Backoff.Schedule(),
		logger:   logger,
		observer: orNop(observer),
		now:      time.Now,
	}

	fsOut, err := NewActiveOutput(store, cfg.FileSystemPool, d.onFileSystemResult, logger)
	if err != nil {
		return nil, err
	}
	netOut, err := NewActiveOutput(network, cfg.NetworkPool, d.onNetworkResult, logger)
	if err != nil {
		_ = fsOut.Stop(0)
		return nil, err
	}
	d.network = netOut
	d.filesystem = fsOut
	return d, nil
}

// Dispatch hands t to the network output. If the network pool cannot take it
// the transmission goes straight to disk. The returned result describes only
// the hand-off; delivery outcomes are reported to the observer.
func (d *Dispatcher) Dispatch(t *domain.Transmission) domain.SendResult {
	res := d.network.Send(t)
	if res.OK() {
		return res
	}

	d.logger.Warn("network output rejected transmission, persisting",
		ports.Int("bytes", t.Size()),
		ports.Err(res.Err),
	)
	return d.persist(t)
}

// FetchOldest claims the oldest persisted transmission.
func (d *Dispatcher) FetchOldest() (*domain.Transmission, error) {
	return d.store.FetchOldest()
}

// RetryDelay returns how long disk replay should still wait before the next
// attempt. It is zero when the last network attempt succeeded.
func (d *Dispatcher) RetryDelay() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()

	delay := delayFor(d.schedule, d.failures)
	if delay == 0 {
		return 0
	}
	return max(delay-d.now().Sub(d.lastFailure), 0)
}

// ConsecutiveFailures returns the number of network failures since the last success.
func (d *Dispatcher) ConsecutiveFailures() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.failures
}

// Stop stops the network output, then the filesystem output, within one
// deadline. Transmissions still queued for the network when it stops are
// persisted. Calling Stop again is a no-op.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return nil
	}
	d.stopped = true
	d.mu.Unlock()

	deadline := time.Now().Add(timeout)

	netErr := d.network.Stop(timeout)
	if netErr != nil {
		d.logger.Warn("network output did not stop cleanly", ports.Err(netErr))
	}
	fsErr := d.filesystem.Stop(max(time.Until(deadline), 0))
	if fsErr != nil {
		d.logger.Warn("filesystem output did not stop cleanly", ports.Err(fsErr))
	}
	return errors.Join(netErr, fsErr)
}

func (d *Dispatcher) persist(t *domain.Transmission) domain.SendResult {
	res := d.filesystem.Send(t)
	if !res.OK() {
		d.drop(t, dropReason(res.Err), res.Err)
	}
	return res
}

func (d *Dispatcher) onNetworkResult(t *domain.Transmission, res domain.SendResult) {
	d.observer.Sent(t, res)

	switch {
	case res.OK():
		d.mu.Lock()
		recovered := d.failures > 0
		d.failures = 0
		d.mu.Unlock()

		d.logger.Debug("transmission delivered",
			ports.Int("bytes", t.Size()),
			ports.Int("status", res.StatusCode),
			ports.Duration("duration", res.Duration),
		)
		if recovered {
			d.logger.Info("endpoint recovered, resuming replay")
		}

	case res.Status == domain.StatusRejected:
		// Output stopped with this transmission still queued.
		d.persist(t)

	default:
		d.mu.Lock()
		d.failures++
		d.lastFailure = d.now()
		failures := d.failures
		d.mu.Unlock()

		d.logger.Warn("transmission failed, persisting for retry",
			ports.Int("bytes", t.Size()),
			ports.Int("status", res.StatusCode),
			ports.Bool("retryable", res.Retryable),
			ports.Int("consecutive_failures", failures),
			ports.Err(res.Err),
		)
		d.persist(t)
	}
}

func (d *Dispatcher) onFileSystemResult(t *domain.Transmission, res domain.SendResult) {
	if res.OK() {
		d.logger.Debug("transmission persisted", ports.Int("bytes", t.Size()))
		d.observer.Persisted(t)
		return
	}

	d.drop(t, dropReason(res.Err), res.Err)
}

func (d *Dispatcher) drop(t *domain.Transmission, reason string, err error) {
	d.logger.Error("dropping transmission",
		ports.String("reason", reason),
		ports.Int("bytes", t.Size()),
		ports.Err(err),
	)
	d.observer.Dropped(t, reason, err)
}

func dropReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrQueueFull):
		return DropQueueFull
	case errors.Is(err, domain.ErrCapacityExceeded):
		return DropCapacity
	case errors.Is(err, domain.ErrOutputStopped):
		return DropStopped
	default:
		return DropPersistFailed
	}
}
