package queue

import "errors"

// Sentinel kinds for enqueue failures.
var (
	ErrFull   = errors.New("queue full")
	ErrClosed = errors.New("queue closed")
)
