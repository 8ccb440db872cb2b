package model

import "errors"

// Error taxonomy shared by all packages. Callers test with errors.Is.
var (
	// ErrConfig marks a missing or invalid required parameter. Never retried.
	ErrConfig = errors.New("config error")

	// ErrNotFound marks a series with no stored rows to resume from.
	ErrNotFound = errors.New("not found")

	// ErrTimeout is returned by queue reads when no item arrives in time.
	ErrTimeout = errors.New("timeout")

	// ErrExhausted is returned by a stream cursor after its sentinel was emitted.
	ErrExhausted = errors.New("stream exhausted")

	// ErrUnordered marks a batch whose timestamps are not strictly increasing.
	ErrUnordered = errors.New("bars not strictly increasing")

	// ErrDuplicate marks an insert that would store a timestamp twice.
	ErrDuplicate = errors.New("duplicate timestamp")

	// ErrEmptyBatch marks a merge request with nothing to write.
	ErrEmptyBatch = errors.New("empty batch")

	// ErrClosed is returned when using a closed queue.
	ErrClosed = errors.New("closed")
)
