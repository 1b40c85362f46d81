package history

import "errors"

// Sentinel errors for history persistence.
var (
	// ErrPersistence is returned when the store rejects a read or write.
	ErrPersistence = errors.New("history: persistence failed")

	// ErrQueueFull is logged when a record is dropped because the writer is saturated.
	ErrQueueFull = errors.New("history: write queue full")

	// ErrInvalidRecord is returned when a record is missing required fields.
	ErrInvalidRecord = errors.New("history: invalid record")
)
