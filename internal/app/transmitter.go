package app

import (
	"errors"
	"time"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
	"github.com/bft-labs/telship/internal/workerpool"
)

// TransmitterQueueSize bounds the batches waiting for serialization.
const TransmitterQueueSize = 1024

// TransmissionDispatcher accepts one transmission for delivery.
type TransmissionDispatcher interface {
	Dispatch(t *domain.Transmission) domain.SendResult
}

// Transmitter serializes flushed batches and hands them to the dispatcher on
// its own goroutine, so the producer that triggered a flush never pays for
// compression.
type Transmitter struct {
	serializer ports.BatchSerializer
	dispatcher TransmissionDispatcher
	pool       *workerpool.Pool
	logger     ports.Logger
	observer   Observer
}

// NewTransmitter creates a transmitter backed by a single-worker pool.
func NewTransmitter(serializer ports.BatchSerializer, dispatcher TransmissionDispatcher, logger ports.Logger, observer Observer) (*Transmitter, error) {
	pool, err := workerpool.New(workerpool.Config{
		Name:        "transmitter",
		MinWorkers:  1,
		MaxWorkers:  1,
		QueueSize:   TransmitterQueueSize,
		IdleTimeout: time.Minute,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &Transmitter{
		serializer: serializer,
		dispatcher: dispatcher,
		pool:       pool,
		logger:     logger,
		observer:   orNop(observer),
	}, nil
}

// SendNow queues a batch for serialization and dispatch. It never blocks.
// When the queue is full the batch is dropped.
// It has the FlushFunc signature so it can be passed to NewBuffer directly.
func (t *Transmitter) SendNow(records [][]byte) {
	if len(records) == 0 {
		return
	}

	err := t.pool.Submit(func() { t.transmit(records) })
	if err == nil {
		return
	}

	reason := DropQueueFull
	if errors.Is(err, domain.ErrOutputStopped) {
		reason = DropStopped
	}
	t.logger.Warn("dropping batch",
		ports.String("reason", reason),
		ports.Int("records", len(records)),
		ports.Err(err),
	)
	t.observer.Dropped(nil, reason, err)
}

// Stop waits up to timeout for queued batches to be dispatched.
func (t *Transmitter) Stop(timeout time.Duration) error {
	return t.pool.Stop(timeout)
}

func (t *Transmitter) transmit(records [][]byte) {
	tr, err := t.serializer.Serialize(records)
	if err != nil {
		t.logger.Error("failed to serialize batch",
			ports.Int("records", len(records)),
			ports.Err(err),
		)
		t.observer.Dropped(nil, DropSerialize, err)
		return
	}

	t.logger.Debug("batch serialized",
		ports.Int("records", len(records)),
		ports.Int("bytes", tr.Size()),
	)
	t.dispatcher.Dispatch(tr)
}
