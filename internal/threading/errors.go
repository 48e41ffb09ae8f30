package threading

import "errors"

var (
	// ErrExecutorClosed is returned by Post/PostFunc once an executor has
	// been shut down.
	ErrExecutorClosed = errors.New("threading: executor closed")

	// ErrExecutorNotStarted is returned when an operation requires a
	// started executor.
	ErrExecutorNotStarted = errors.New("threading: executor not started")

	// ErrQueueFull names a saturated task backlog. Neither executor
	// returns it: Post waits for room in the backlog (or for Stop)
	// whatever wait is set to; wait only decides whether Post also
	// waits for the task's result.
	ErrQueueFull = errors.New("threading: task queue full")

	// ErrTaskCancelled is the error recorded on a task cancelled before
	// it ran.
	ErrTaskCancelled = errors.New("threading: task cancelled")
)
