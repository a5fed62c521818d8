package domain

import "errors"

// Domain errors represent error conditions in the telship domain.
// These errors are returned by the public API and can be checked with errors.Is.
var (
	// ErrNilContent is returned when a Transmission is built without content.
	ErrNilContent = errors.New("telship: transmission content is nil")

	// ErrEmptyContentType is returned when a Transmission has no content type.
	ErrEmptyContentType = errors.New("telship: transmission content type is empty")

	// ErrEmptyContentEncoding is returned when a Transmission has no content encoding.
	ErrEmptyContentEncoding = errors.New("telship: transmission content encoding is empty")

	// ErrEmptyBatch is returned when serializing an empty record collection.
	ErrEmptyBatch = errors.New("telship: batch is empty")

	// ErrNilRecord is returned when Send is called with a nil record.
	ErrNilRecord = errors.New("telship: record is nil")

	// ErrInvalidEndpoint is returned when the endpoint is neither empty nor a valid URI.
	ErrInvalidEndpoint = errors.New("telship: invalid endpoint address")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("telship: invalid configuration")

	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("telship: already running")

	// ErrNotRunning is returned when an operation requires a running instance.
	ErrNotRunning = errors.New("telship: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("telship: shutdown timeout")

	// ErrQueueFull is returned when a worker pool queue cannot accept more work.
	ErrQueueFull = errors.New("telship: queue full")

	// ErrOutputStopped is returned when an output receives work after Stop.
	ErrOutputStopped = errors.New("telship: output stopped")

	// ErrCapacityExceeded is returned when the retry directory is full.
	ErrCapacityExceeded = errors.New("telship: retry directory capacity exceeded")
)
