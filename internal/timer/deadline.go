package timer

import (
	"context"
	"sync"
	"time"

	"github.com/falconqueue/taskcore/internal/threading"
)

// DeadlineTimer fires once at an absolute wall-clock instant rather than
// after a relative delay. It underlies the auth-timeout, reconnect-retry
// and per-request timeout timers of tclient.AccessCtrl (the offline check
// is a SteadyTimer), where "fire at connectedAt + timeout"
// must not drift even if the timer is armed slightly late.
type DeadlineTimer struct {
	name     string
	deadline time.Time
	executor threading.Executor
	fn       func(context.Context)

	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
}

// NewDeadlineTimer builds a timer that runs fn on executor at deadline.
// A deadline already in the past fires on the next scheduler tick.
func NewDeadlineTimer(name string, deadline time.Time, executor threading.Executor, fn func(context.Context)) *DeadlineTimer {
	return &DeadlineTimer{
		name:     name,
		deadline: deadline,
		executor: executor,
		fn:       fn,
	}
}

// Start arms the timer.
func (t *DeadlineTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.timer != nil {
		return
	}
	wait := time.Until(t.deadline)
	if wait < 0 {
		wait = 0
	}
	t.timer = time.AfterFunc(wait, t.fire)
}

func (t *DeadlineTimer) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	_, _ = t.executor.PostFunc(t.name, func(ctx context.Context) error {
		t.fn(ctx)
		return nil
	}, false)
}

// Stop disarms the timer. Cancellation is silent: a Stop racing a fire
// simply means the callback either runs once or not at all, with no
// error surfaced either way, matching the original's teardown behavior.
func (t *DeadlineTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Deadline returns the absolute instant the timer is armed to fire at.
func (t *DeadlineTimer) Deadline() time.Time { return t.deadline }
