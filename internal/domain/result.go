package domain

import (
	"fmt"
	"time"
)

// SendStatus is the outcome category of a single output Send.
type SendStatus int

const (
	// StatusDelivered means the remote endpoint accepted the transmission.
	StatusDelivered SendStatus = iota
	// StatusQueued means a worker pool accepted the transmission for later delivery.
	StatusQueued
	// StatusPersisted means the transmission was written to the retry directory.
	StatusPersisted
	// StatusRejected means the output refused the work without attempting it.
	StatusRejected
	// StatusFailed means the output attempted the work and it failed.
	StatusFailed
)

// String returns a human-readable representation of the status.
func (s SendStatus) String() string {
	switch s {
	case StatusDelivered:
		return "delivered"
	case StatusQueued:
		return "queued"
	case StatusPersisted:
		return "persisted"
	case StatusRejected:
		return "rejected"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// SendResult is returned by every output's Send.
// Outputs never panic or return errors out of band; everything lands here.
type SendResult struct {
	Status     SendStatus
	StatusCode int
	Err        error
	Retryable  bool
	Duration   time.Duration
}

// Delivered builds a successful network result.
func Delivered(statusCode int, d time.Duration) SendResult {
	return SendResult{Status: StatusDelivered, StatusCode: statusCode, Duration: d}
}

// Queued builds a result for work accepted by a worker pool.
func Queued() SendResult {
	return SendResult{Status: StatusQueued}
}

// Persisted builds a result for a transmission written to disk.
func Persisted(d time.Duration) SendResult {
	return SendResult{Status: StatusPersisted, Duration: d}
}

// Rejected builds a result for work that was refused without an attempt.
func Rejected(err error) SendResult {
	return SendResult{Status: StatusRejected, Err: err}
}

// Failed builds a result for an attempt that did not succeed.
func Failed(err error, statusCode int, retryable bool, d time.Duration) SendResult {
	return SendResult{
		Status:     StatusFailed,
		StatusCode: statusCode,
		Err:        err,
		Retryable:  retryable,
		Duration:   d,
	}
}

// OK reports whether the output accepted the transmission.
// Accepted is not a delivery guarantee for queued work.
func (r SendResult) OK() bool {
	switch r.Status {
	case StatusDelivered, StatusQueued, StatusPersisted:
		return true
	default:
		return false
	}
}

// Reason returns a short description suitable for logs and metric labels.
func (r SendResult) Reason() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if r.StatusCode != 0 {
		return fmt.Sprintf("%s (%d)", r.Status, r.StatusCode)
	}
	return r.Status.String()
}
