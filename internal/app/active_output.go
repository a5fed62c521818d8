package app

import (
	"fmt"
	"time"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/internal/workerpool"
)

// Worker pool sizing for the two active outputs.
var (
	DefaultNetworkPool = workerpool.Config{
		Name:        "network",
		MinWorkers:  1,
		MaxWorkers:  7,
		QueueSize:   1024,
		IdleTimeout: 60 * time.Second,
	}
	DefaultFileSystemPool = workerpool.Config{
		Name:        "filesystem",
		MinWorkers:  1,
		MaxWorkers:  3,
		QueueSize:   1024,
		IdleTimeout: 20 * time.Second,
	}
)

// ResultFunc receives the outcome of a send performed on a pool worker.
type ResultFunc func(t *domain.Transmission, res domain.SendResult)

// ActiveOutput decorates a TransmissionOutput with a worker pool so Send
// returns as soon as the work is queued. The wrapped output's result is
// delivered to onResult from the worker.
type ActiveOutput struct {
	out      ports.TransmissionOutput
	pool     *workerpool.Pool
	onResult ResultFunc
	logger   ports.Logger
}

var _ ports.TransmissionOutput = (*ActiveOutput)(nil)

// NewActiveOutput wraps out with a pool sized by cfg.
func NewActiveOutput(out ports.TransmissionOutput, cfg workerpool.Config, onResult ResultFunc, logger ports.Logger) (*ActiveOutput, error) {
	pool, err := workerpool.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	return &ActiveOutput{
		out:      out,
		pool:     pool,
		onResult: onResult,
		logger:   logger,
	}, nil
}

// Send queues the transmission. It returns a Queued result, or a Rejected one
// when the pool queue is full or the output has been stopped.
func (a *ActiveOutput) Send(t *domain.Transmission) domain.SendResult {
	if err := a.pool.Submit(func() { a.deliver(t) }); err != nil {
		return domain.Rejected(err)
	}
	return domain.Queued()
}

// Stop stops the wrapped output, then drains the pool, sharing one deadline.
// Work still queued when the wrapped output stops is handed back through
// onResult as rejected.
func (a *ActiveOutput) Stop(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	outErr := a.out.Stop(timeout)
	poolErr := a.pool.Stop(max(time.Until(deadline), 0))

	if outErr != nil {
		return outErr
	}
	return poolErr
}

// Pool returns the underlying worker pool.
func (a *ActiveOutput) Pool() *workerpool.Pool {
	return a.pool
}

func (a *ActiveOutput) deliver(t *domain.Transmission) {
	res := a.safeSend(t)
	if a.onResult != nil {
		a.onResult(t, res)
	}
}

// safeSend turns a panic in the wrapped output into a failed result.
func (a *ActiveOutput) safeSend(t *domain.Transmission) (res domain.SendResult) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("output panicked",
				ports.String("pool", a.pool.Config().Name),
				ports.Any("panic", r),
			)
			res = domain.Failed(fmt.Errorf("output panic: %v", r), 0, true, 0)
		}
	}()
	return a.out.Send(t)
}
