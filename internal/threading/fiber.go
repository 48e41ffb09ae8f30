package threading

import (
	"context"
	"fmt"
	"sync"

	"github.com/falconqueue/taskcore/internal/diagnose"
)

// FiberExecutor is a single-goroutine, cooperative Executor: every task
// posted to it runs to completion, in FIFO order, on one dispatch
// goroutine before the next task starts. It is the Go realization of the
// original's single-threaded fiber executor, where "handing off" to the
// next task is just the dispatch loop moving to the next channel receive
// rather than a user-mode stack switch, since Go has no portable
// user-mode fiber primitive to swap to.
//
// Because there is exactly one dispatch goroutine, MaxCount and BusyCount
// are always 0 or 1, and Extend is a no-op: a fiber executor's whole
// point is serialized execution, not parallelism.
type FiberExecutor struct {
	name     string
	registry *diagnose.Registry

	taskCh chan *Task
	stopCh chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	started bool
	stopped bool
	busy    bool
}

// NewFiberExecutor builds a FiberExecutor registered under name.
func NewFiberExecutor(name string, bufferSize int, registry *diagnose.Registry) *FiberExecutor {
	if registry == nil {
		registry = diagnose.Global()
	}
	return &FiberExecutor{
		name:     name,
		registry: registry,
		taskCh:   make(chan *Task, bufferSize),
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the single dispatch goroutine.
func (f *FiberExecutor) Start() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return ErrExecutorClosed
	}
	if f.started {
		return fmt.Errorf("threading: fiber executor %q already started", f.name)
	}
	f.started = true
	f.registry.RegisterExecutor(f.name, 1)
	go f.dispatch()
	return nil
}

func (f *FiberExecutor) dispatch() {
	defer close(f.done)
	for {
		select {
		case t, ok := <-f.taskCh:
			if !ok {
				return
			}
			f.runTask(t)
		case <-f.stopCh:
			// Drain remaining queued tasks so Post-then-Stop callers
			// always observe a terminal state via Join, instead of
			// hanging forever.
			for {
				select {
				case t, ok := <-f.taskCh:
					if !ok {
						return
					}
					f.runTask(t)
				default:
					return
				}
			}
		}
	}
}

func (f *FiberExecutor) runTask(t *Task) {
	if t.Cancelled() {
		// Cancellation observed at the queuing->running edge skips running
		// entirely: no TaskRunning event, and the task still finishes
		// cleanly rather than going abnormal.
		t.setError(ErrTaskCancelled)
		t.setState(Finished)
		f.registry.TaskFinished(f.name, t.id, 0, f.name)
		return
	}

	f.mu.Lock()
	f.busy = true
	f.mu.Unlock()

	t.setState(Running)
	f.registry.TaskRunning(f.name, t.id, 0, f.name)

	err := t.run(context.Background())

	f.mu.Lock()
	f.busy = false
	f.mu.Unlock()

	t.setError(err)
	if err != nil {
		t.setState(Abnormal)
		f.registry.TaskException(f.name, t.id, 0, f.name, err.Error())
		return
	}
	t.setState(Finished)
	f.registry.TaskFinished(f.name, t.id, 0, f.name)
}

// Name implements Executor.
func (f *FiberExecutor) Name() string { return f.name }

// MaxCount implements Executor; always 1 once started.
func (f *FiberExecutor) MaxCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return 1
	}
	return 0
}

// BusyCount implements Executor; 1 while a task is running, else 0.
func (f *FiberExecutor) BusyCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return 1
	}
	return 0
}

// Post implements Executor, queuing t behind every previously posted
// task.
func (f *FiberExecutor) Post(t *Task, wait bool) error {
	f.mu.Lock()
	if !f.started {
		f.mu.Unlock()
		return ErrExecutorNotStarted
	}
	if f.stopped {
		f.mu.Unlock()
		return ErrExecutorClosed
	}
	f.mu.Unlock()

	t.setState(Queuing)
	f.registry.BindTask(f.name, t.id, t.name)

	select {
	case f.taskCh <- t:
	case <-f.stopCh:
		return ErrExecutorClosed
	}

	if wait {
		return t.Join(context.Background())
	}
	return nil
}

// PostFunc implements Executor.
func (f *FiberExecutor) PostFunc(name string, fn func(context.Context) error, wait bool) (*Task, error) {
	t := NewTask(name, fn)
	if err := f.Post(t, wait); err != nil {
		if s := t.State(); s == Finished || s == Abnormal {
			return t, err
		}
		return nil, err
	}
	return t, nil
}

// Extend is a no-op for FiberExecutor: serialization is the point. It
// always returns 1 (or 0 if not yet started).
func (f *FiberExecutor) Extend(int) int { return f.MaxCount() }

// Join blocks until the dispatch goroutine has exited, or ctx is done.
func (f *FiberExecutor) Join(ctx context.Context) error {
	select {
	case <-f.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the task channel, drains any queued tasks on the dispatch
// goroutine, and unregisters the executor from diagnostics.
func (f *FiberExecutor) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	started := f.started
	f.mu.Unlock()

	close(f.stopCh)
	if started {
		close(f.taskCh)
		<-f.done
	}
	f.registry.UnregisterExecutor(f.name)
}
