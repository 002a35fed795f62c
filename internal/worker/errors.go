package worker

import "errors"

// Worker lifecycle errors.
var (
	// ErrAlreadyStarted is returned when Start is called a second time.
	ErrAlreadyStarted = errors.New("worker already started")

	// ErrNotStarted is returned by Wait on a worker that was never started.
	ErrNotStarted = errors.New("worker not started")

	// ErrPanic wraps a panic recovered inside a stage.
	ErrPanic = errors.New("worker panicked")
)
