package es

import "errors"

var (
	ErrAggregateNotFound   = errors.New("aggregate not found")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrUnknownEventType    = errors.New("unknown event type")
	ErrCorruptEvent        = errors.New("corrupt event")
	ErrStorage             = errors.New("storage error")
	ErrStoreNoEvents       = errors.New("no events to store")
)

// IsRetryable reports whether the operation that produced err can be retried
// after reloading the aggregate.
func IsRetryable(err error) bool { return errors.Is(err, ErrConcurrencyConflict) }
