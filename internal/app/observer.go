package app

import "github.com/bft-labs/telship/internal/domain"

// Reasons passed to Observer.Dropped.
const (
	DropQueueFull     = "queue_full"
	DropSerialize     = "serialize_error"
	DropCapacity      = "capacity_exceeded"
	DropPersistFailed = "persist_failed"
	DropStopped       = "stopped"
)

// Observer is notified of pipeline activity. Metrics and the public event
// handler both hang off this. Implementations must be safe for concurrent use
// and must not block.
type Observer interface {
	// RecordAdded is called once per record accepted by the buffer.
	RecordAdded()

	// BatchFlushed is called when the buffer hands a batch to the transmitter.
	BatchFlushed(records int)

	// Sent is called with the result of every network delivery attempt.
	Sent(t *domain.Transmission, res domain.SendResult)

	// Persisted is called when a transmission reaches the retry directory.
	Persisted(t *domain.Transmission)

	// Replayed is called when the loader picks a transmission off disk.
	Replayed(t *domain.Transmission)

	// Dropped is called whenever data is lost. t is nil when the loss
	// happened before a transmission existed.
	Dropped(t *domain.Transmission, reason string, err error)
}

// NopObserver ignores everything.
type NopObserver struct{}

func (NopObserver) RecordAdded()                                 {}
func (NopObserver) BatchFlushed(int)                             {}
func (NopObserver) Sent(*domain.Transmission, domain.SendResult) {}
func (NopObserver) Persisted(*domain.Transmission)               {}
func (NopObserver) Replayed(*domain.Transmission)                {}
func (NopObserver) Dropped(*domain.Transmission, string, error)  {}

// Observers fans out to several observers in order.
type Observers []Observer

func (o Observers) RecordAdded() {
	for _, obs := range o {
		obs.RecordAdded()
	}
}

func (o Observers) BatchFlushed(records int) {
	for _, obs := range o {
		obs.BatchFlushed(records)
	}
}

func (o Observers) Sent(t *domain.Transmission, res domain.SendResult) {
	for _, obs := range o {
		obs.Sent(t, res)
	}
}

func (o Observers) Persisted(t *domain.Transmission) {
	for _, obs := range o {
		obs.Persisted(t)
	}
}

func (o Observers) Replayed(t *domain.Transmission) {
	for _, obs := range o {
		obs.Replayed(t)
	}
}

func (o Observers) Dropped(t *domain.Transmission, reason string, err error) {
	for _, obs := range o {
		obs.Dropped(t, reason, err)
	}
}

func orNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}
