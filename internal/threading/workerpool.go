package threading

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/falconqueue/taskcore/internal/diagnose"
)

// WorkerPool is an OS-thread-backed Executor: a fixed-ish set of goroutines
// pulling Tasks off a shared channel, the same shape as a classic thread
// pool. It is the Go realization of the original's generic Executor base
// class for the common "many independent tasks, no ordering" case.
//
// Submit races Stop the same way a boost-style thread pool does: a task
// handed to a channel that Stop is concurrently closing is a data race by
// definition of "concurrently mutate the same channel", but it is benign
// here because the race is resolved by select, not by a read of stale
// memory, and the worst outcome is ErrExecutorClosed instead of silent
// acceptance.
type WorkerPool struct {
	name     string
	registry *diagnose.Registry

	taskCh chan *Task
	stopCh chan struct{}
	wg     sync.WaitGroup

	mu       sync.Mutex
	workers  int
	started  bool
	stopped  bool

	busy    atomic.Int32
	nextTID atomic.Int32
}

// NewWorkerPool builds a WorkerPool registered under name in registry (or
// diagnose.Global() if registry is nil). bufferSize bounds the pending
// task backlog.
func NewWorkerPool(name string, bufferSize int, registry *diagnose.Registry) *WorkerPool {
	if registry == nil {
		registry = diagnose.Global()
	}
	return &WorkerPool{
		name:     name,
		registry: registry,
		taskCh:   make(chan *Task, bufferSize),
		stopCh:   make(chan struct{}),
	}
}

// Start spawns n worker goroutines. It is an error to call Start twice or
// after Stop.
func (p *WorkerPool) Start(n int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.stopped {
		return ErrExecutorClosed
	}
	if p.started {
		return fmt.Errorf("threading: worker pool %q already started", p.name)
	}

	p.started = true
	p.workers = n
	p.registry.RegisterExecutor(p.name, n)

	p.wg.Add(n)
	for i := 0; i < n; i++ {
		id := int(p.nextTID.Add(1))
		go p.loop(id)
	}
	return nil
}

func (p *WorkerPool) loop(workerID int) {
	defer p.wg.Done()
	threadName := fmt.Sprintf("%s-worker-%d", p.name, workerID)
	for task := range p.taskCh {
		p.runTask(workerID, threadName, task)
	}
}

func (p *WorkerPool) runTask(workerID int, threadName string, t *Task) {
	if t.Cancelled() {
		// Cancellation observed at the queuing->running edge skips running
		// entirely: no TaskRunning event, and the task still finishes
		// cleanly rather than going abnormal.
		t.setError(ErrTaskCancelled)
		t.setState(Finished)
		p.registry.TaskFinished(p.name, t.id, workerID, threadName)
		return
	}

	p.busy.Add(1)
	t.setState(Running)
	p.registry.TaskRunning(p.name, t.id, workerID, threadName)

	err := t.run(context.Background())

	p.busy.Add(-1)
	t.setError(err)
	if err != nil {
		t.setState(Abnormal)
		p.registry.TaskException(p.name, t.id, workerID, threadName, err.Error())
		return
	}
	t.setState(Finished)
	p.registry.TaskFinished(p.name, t.id, workerID, threadName)
}

// Name implements Executor.
func (p *WorkerPool) Name() string { return p.name }

// MaxCount implements Executor.
func (p *WorkerPool) MaxCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.workers
}

// BusyCount implements Executor.
func (p *WorkerPool) BusyCount() int { return int(p.busy.Load()) }

// Post implements Executor.
func (p *WorkerPool) Post(t *Task, wait bool) error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return ErrExecutorNotStarted
	}
	if p.stopped {
		p.mu.Unlock()
		return ErrExecutorClosed
	}
	p.mu.Unlock()

	t.setState(Queuing)
	p.registry.BindTask(p.name, t.id, t.name)

	select {
	case p.taskCh <- t:
	case <-p.stopCh:
		return ErrExecutorClosed
	}

	if wait {
		return t.Join(context.Background())
	}
	return nil
}

// PostFunc implements Executor.
func (p *WorkerPool) PostFunc(name string, fn func(context.Context) error, wait bool) (*Task, error) {
	t := NewTask(name, fn)
	if err := p.Post(t, wait); err != nil {
		if s := t.State(); s == Finished || s == Abnormal {
			return t, err
		}
		return nil, err
	}
	return t, nil
}

// Extend grows the pool by delta workers and returns the new total.
// WorkerPool only supports growth; a non-positive delta is a no-op.
func (p *WorkerPool) Extend(delta int) int {
	if delta <= 0 {
		return p.MaxCount()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return p.workers
	}

	p.wg.Add(delta)
	for i := 0; i < delta; i++ {
		id := int(p.nextTID.Add(1))
		go p.loop(id)
	}
	p.workers += delta
	p.registry.SetExecutorCounts(p.name, p.workers, int(p.busy.Load()))
	return p.workers
}

// Join blocks until every worker goroutine has exited (i.e. after Stop),
// or ctx is done.
func (p *WorkerPool) Join(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop closes the task channel, waits for every worker to drain it, and
// unregisters the pool from diagnostics. Stop is idempotent.
func (p *WorkerPool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	close(p.stopCh)
	if started {
		close(p.taskCh)
		p.wg.Wait()
	}
	p.registry.UnregisterExecutor(p.name)
}
