package app

import (
	"slices"
	"sync"

	"github.com/bft-labs/telship/internal/domain"
	"github.com/bft-labs/telship/internal/ports"
)

// State is the lifecycle state of a channel.
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
	switch s {
	case StateStopped:
		return "Stopped"
	case StateStarting:
		return "Starting"
	case StateRunning:
		return "Running"
	case StateStopping:
		return "Stopping"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateFailed},
	StateRunning:  {StateStopping, StateFailed},
	StateStopping: {StateStopped, StateFailed},
	StateFailed:   {StateStarting},
}

// StateListener is called after every successful transition.
type StateListener interface {
	OnStateChange(previous, current State, reason string)
}

// Lifecycle guards a channel's state machine.
type Lifecycle struct {
	mu       sync.RWMutex
	state    State
	logger   ports.Logger
	listener StateListener
}

// NewLifecycle creates a lifecycle in StateStopped. listener may be nil.
func NewLifecycle(logger ports.Logger, listener StateListener) *Lifecycle {
	return &Lifecycle{
		state:    StateStopped,
		logger:   logger,
		listener: listener,
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// TransitionTo moves to next if the current state allows it.
// From Stopped or Failed an invalid target yields domain.ErrNotRunning;
// from any other state it yields domain.ErrAlreadyRunning.
func (l *Lifecycle) TransitionTo(next State, reason string) error {
	l.mu.Lock()
	prev := l.state
	if !allowed(prev, next) {
		l.mu.Unlock()
		if prev == StateStopped || prev == StateFailed {
			return domain.ErrNotRunning
		}
		return domain.ErrAlreadyRunning
	}
	l.state = next
	l.mu.Unlock()

	if l.listener != nil {
		l.listener.OnStateChange(prev, next, reason)
	}
	l.logger.Info("state transition",
		ports.String("from", prev.String()),
		ports.String("to", next.String()),
		ports.String("reason", reason),
	)
	return nil
}

// CanStart reports whether the channel may be started.
func (l *Lifecycle) CanStart() bool {
	return allowed(l.State(), StateStarting)
}

// CanStop reports whether the channel may be stopped.
func (l *Lifecycle) CanStop() bool {
	return allowed(l.State(), StateStopping)
}

func allowed(from, to State) bool {
	return slices.Contains(transitions[from], to)
}
