package queue

import "errors"

// Sentinel errors reported by Enqueue.
var (
	ErrClosed = errors.New("queue closed")
	ErrFull   = errors.New("queue full")
)
