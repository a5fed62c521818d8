package telship

import (
	"time"

	"github.com/bft-labs/telship/internal/app"
	"github.com/bft-labs/telship/internal/domain"
)

// State is the lifecycle state of a Channel.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateFailed
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	return app.State(s).String()
}

func convertState(s app.State) State {
	switch s {
	case app.StateStopped:
		return StateStopped
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateFailed:
		return StateFailed
	default:
		return StateStopped
	}
}

// StateChangeEvent is emitted after every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// DeliveredEvent is emitted when the endpoint accepts a transmission.
type DeliveredEvent struct {
	Bytes      int
	StatusCode int
	Duration   time.Duration
}

// PersistedEvent is emitted when a transmission is written to the retry directory.
type PersistedEvent struct {
	Bytes int
}

// DroppedEvent is emitted when data is lost. Bytes is zero when the loss
// happened before the batch was serialized.
type DroppedEvent struct {
	Bytes  int
	Reason string
	Err    error
}

// EventHandler receives channel events. Methods are called from pipeline
// goroutines and must return quickly. Embed NopEventHandler to implement
// only the events you need.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnDelivered(DeliveredEvent)
	OnPersisted(PersistedEvent)
	OnDropped(DroppedEvent)
}

// NopEventHandler ignores every event.
type NopEventHandler struct{}

func (NopEventHandler) OnStateChange(StateChangeEvent) {}
func (NopEventHandler) OnDelivered(DeliveredEvent)     {}
func (NopEventHandler) OnPersisted(PersistedEvent)     {}
func (NopEventHandler) OnDropped(DroppedEvent)         {}

// eventEmitter adapts an EventHandler to app.Observer and app.StateListener.
type eventEmitter struct {
	handler EventHandler
}

var (
	_ app.Observer      = (*eventEmitter)(nil)
	_ app.StateListener = (*eventEmitter)(nil)
)

func (e *eventEmitter) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitter) Sent(t *domain.Transmission, res domain.SendResult) {
	if e.handler == nil || !res.OK() {
		return
	}
	e.handler.OnDelivered(DeliveredEvent{
		Bytes:      t.Size(),
		StatusCode: res.StatusCode,
		Duration:   res.Duration,
	})
}

func (e *eventEmitter) Persisted(t *domain.Transmission) {
	if e.handler == nil {
		return
	}
	e.handler.OnPersisted(PersistedEvent{Bytes: t.Size()})
}

func (e *eventEmitter) Dropped(t *domain.Transmission, reason string, err error) {
	if e.handler == nil {
		return
	}
	ev := DroppedEvent{Reason: reason, Err: err}
	if t != nil {
		ev.Bytes = t.Size()
	}
	e.handler.OnDropped(ev)
}

func (e *eventEmitter) RecordAdded() {}

func (e *eventEmitter) BatchFlushed(int) {}

func (e *eventEmitter) Replayed(*domain.Transmission) {}
