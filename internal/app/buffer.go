package app

import (
	"sync"
	"time"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

// Buffer defaults.
const (
	DefaultMaxBatchSize  = 500
	DeveloperBatchSize   = 1
	DefaultFlushInterval = 10 * time.Second
)

// FlushFunc receives a full batch. It must not block.
type FlushFunc func(records [][]byte)

// Buffer accumulates serialized records and hands them off in batches.
// A batch is flushed when it reaches the item threshold or when the flush
// interval elapses, whichever comes first. The interval restarts on every
// flush.
type Buffer struct {
	flush    FlushFunc
	interval time.Duration
	logger   ports.Logger
	observer Observer

	mu       sync.Mutex
	items    [][]byte
	maxItems int
	timer    *time.Timer
	gen      uint64
	stopped  bool
}

// NewBuffer creates a buffer and starts its flush timer.
// maxItems below 1 is treated as 1; a non-positive interval disables the timer.
func NewBuffer(maxItems int, interval time.Duration, flush FlushFunc, logger ports.Logger, observer Observer) *Buffer {
	b := &Buffer{
		flush:    flush,
		interval: interval,
		logger:   logger,
		observer: orNop(observer),
		maxItems: max(maxItems, 1),
	}
	b.mu.Lock()
	b.armLocked()
	b.mu.Unlock()
	return b
}

// Add appends a record. It never waits on anything but the buffer lock.
func (b *Buffer) Add(record []byte) error {
	if record == nil {
		return domain.ErrNilRecord
	}

	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return domain.ErrNotRunning
	}
	b.items = append(b.items, record)
	var batch [][]byte
	if len(b.items) >= b.maxItems {
		batch = b.swapLocked()
	}
	b.mu.Unlock()

	b.observer.RecordAdded()
	b.handOff(batch)
	return nil
}

// Flush hands off whatever is pending, if anything.
func (b *Buffer) Flush() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	batch := b.swapLocked()
	b.mu.Unlock()

	b.handOff(batch)
}

// SetMaxItems changes the flush threshold. A pending batch that already meets
// the new threshold is flushed immediately.
func (b *Buffer) SetMaxItems(n int) {
	n = max(n, 1)

	b.mu.Lock()
	b.maxItems = n
	var batch [][]byte
	if !b.stopped && len(b.items) >= n {
		batch = b.swapLocked()
	}
	b.mu.Unlock()

	b.handOff(batch)
}

// MaxItems returns the current flush threshold.
func (b *Buffer) MaxItems() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxItems
}

// Len returns the number of pending records.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Stop cancels the timer and flushes the remaining records.
// Add fails with domain.ErrNotRunning afterwards. Calling Stop again is a no-op.
func (b *Buffer) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	batch := b.swapLocked()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()

	b.handOff(batch)
}

// swapLocked installs a fresh collection, restarts the timer and returns the
// previous collection (nil if it was empty).
func (b *Buffer) swapLocked() [][]byte {
	var batch [][]byte
	if len(b.items) > 0 {
		batch = b.items
		b.items = make([][]byte, 0, min(b.maxItems, DefaultMaxBatchSize))
	}
	b.armLocked()
	return batch
}

// armLocked (re)starts the flush timer. Fires from a superseded timer are
// ignored by generation.
func (b *Buffer) armLocked() {
	if b.interval <= 0 {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.timer = time.AfterFunc(b.interval, func() { b.onTimer(gen) })
}

func (b *Buffer) onTimer(gen uint64) {
	b.mu.Lock()
	if b.stopped || gen != b.gen {
		b.mu.Unlock()
		return
	}
	batch := b.swapLocked()
	b.mu.Unlock()

	if batch != nil {
		b.logger.Debug("flush interval elapsed", ports.Int("records", len(batch)))
	}
	b.handOff(batch)
}

func (b *Buffer) handOff(batch [][]byte) {
	if len(batch) == 0 {
		return
	}
	b.observer.BatchFlushed(len(batch))
	b.flush(batch)
}
