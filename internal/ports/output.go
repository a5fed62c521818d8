package ports

import (
	"time"

	"github.com/bft-labs/telship/internal/domain"
)

// TransmissionOutput delivers one Transmission to one destination, either the
// remote endpoint or the local retry directory.
type TransmissionOutput interface {
	// Send hands the transmission to the output.
	// An OK result means accepted for delivery or storage, not delivered.
	// Implementations report every failure through the result and never panic
	// outward.
	Send(t *domain.Transmission) domain.SendResult

	// Stop drains outstanding work within timeout and shuts down.
	// After Stop returns, Send rejects new work.
	Stop(timeout time.Duration) error
}

// TransmissionStore is an output that keeps transmissions until they are
// fetched back for another delivery attempt.
type TransmissionStore interface {
	TransmissionOutput

	// FetchOldest atomically claims and removes the oldest stored transmission.
	// Returns nil, nil when the store is empty. Two callers never receive the
	// same transmission.
	FetchOldest() (*domain.Transmission, error)
}

// BatchSerializer turns serialized records into one compressed Transmission.
type BatchSerializer interface {
	// Serialize joins records with newlines, compresses the result and wraps it.
	// Returns domain.ErrEmptyBatch for an empty input.
	Serialize(records [][]byte) (*domain.Transmission, error)
}
