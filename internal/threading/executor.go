package threading

import "context"

// Executor runs Tasks. It binds every task it accepts into the
// diagnostics Registry before running it, mirroring the original
// Executor base class's getBusyCount/join/post/extend surface.
type Executor interface {
	// Name identifies the executor in diagnostics output.
	Name() string

	// MaxCount returns the executor's current worker/thread budget.
	MaxCount() int

	// BusyCount returns the number of workers currently running a task.
	BusyCount() int

	// Post submits t for execution. If wait is true, Post blocks until
	// the task reaches a terminal state and returns its error; otherwise
	// it returns as soon as the task is queued.
	Post(t *Task, wait bool) error

	// PostFunc is the common-case convenience wrapping fn in a new Task.
	PostFunc(name string, fn func(context.Context) error, wait bool) (*Task, error)

	// Extend grows the executor's worker budget by delta (which may be
	// negative for shrink-capable executors) and returns the new total.
	Extend(delta int) int

	// Join blocks until the executor's worker (or dispatch) goroutines
	// have exited, or ctx is done. They exit only after Stop, so Join
	// neither stops the executor nor returns when the queue drains while
	// the executor is still running.
	Join(ctx context.Context) error

	// Stop tears the executor down. Queued-but-not-started tasks are
	// still run before the executor's goroutines exit; Post returns
	// ErrExecutorClosed afterward.
	Stop()
}

// PostFunc is a package-level convenience equivalent to
// executor.PostFunc(name, fn, false) for callers that only hold an
// Executor value and want fire-and-forget semantics.
func PostFunc(exec Executor, name string, fn func(context.Context) error) (*Task, error) {
	return exec.PostFunc(name, fn, false)
}

// Sync runs fn on exec and blocks for its result, folding a context
// timeout and the task's own error into a single return value.
func Sync(ctx context.Context, exec Executor, name string, fn func(context.Context) error) error {
	task, err := exec.PostFunc(name, fn, false)
	if err != nil {
		return err
	}
	return task.Join(ctx)
}
