// Package timer provides drift-free steady (relative) and deadline
// (absolute) timers whose callbacks are dispatched through a
// threading.Executor task, so every fired callback shows up in the
// diagnostics Registry the same way any other piece of work does.
package timer

import (
	"context"
	"sync"
	"time"

	"github.com/falconqueue/taskcore/internal/threading"
)

// SteadyTimer fires once after an initial delay, then (if Interval is
// non-zero) repeats every Interval, accruing from the originally
// scheduled fire time rather than the actual fire time. A slow callback
// or a scheduler hiccup therefore does not push later firings later —
// the same drift-free re-arming as the original's heartbeat/offline-check
// timers.
type SteadyTimer struct {
	name     string
	delay    time.Duration
	interval time.Duration
	executor threading.Executor
	fn       func(context.Context)

	mu        sync.Mutex
	timer     *time.Timer
	nextFire  time.Time
	running   bool
	stopped   bool
}

// NewSteadyTimer builds a timer that runs fn on executor after delay,
// then every interval thereafter. interval == 0 means fire once.
func NewSteadyTimer(name string, delay, interval time.Duration, executor threading.Executor, fn func(context.Context)) *SteadyTimer {
	return &SteadyTimer{
		name:     name,
		delay:    delay,
		interval: interval,
		executor: executor,
		fn:       fn,
	}
}

// Start arms the timer. Calling Start on an already-running timer is a
// no-op.
func (t *SteadyTimer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running || t.stopped {
		return
	}
	t.running = true
	t.nextFire = time.Now().Add(t.delay)
	t.timer = time.AfterFunc(t.delay, t.fire)
}

func (t *SteadyTimer) fire() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	interval := t.interval
	t.mu.Unlock()

	_, _ = t.executor.PostFunc(t.name, func(ctx context.Context) error {
		t.fn(ctx)
		return nil
	}, false)

	if interval <= 0 {
		t.mu.Lock()
		t.running = false
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.nextFire = t.nextFire.Add(interval)
	wait := time.Until(t.nextFire)
	if wait < 0 {
		// The schedule has fallen behind by more than one interval
		// (e.g. the process was suspended); catch up to "now" instead
		// of firing a burst of overdue ticks.
		t.nextFire = time.Now().Add(interval)
		wait = interval
	}
	t.timer = time.AfterFunc(wait, t.fire)
	t.mu.Unlock()
}

// Stop disarms the timer. Stop is idempotent and safe to call whether or
// not the timer is currently running.
func (t *SteadyTimer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	t.running = false
	if t.timer != nil {
		t.timer.Stop()
	}
}

// Reset disarms and rearms the timer with its original delay/interval,
// as if freshly started. Used by callers (e.g. a heartbeat timer after
// a successful round-trip) that want to push the next firing out.
func (t *SteadyTimer) Reset() {
	t.mu.Lock()
	if t.timer != nil {
		t.timer.Stop()
	}
	t.stopped = false
	t.running = true
	t.nextFire = time.Now().Add(t.delay)
	t.timer = time.AfterFunc(t.delay, t.fire)
	t.mu.Unlock()
}

// Running reports whether the timer is currently armed.
func (t *SteadyTimer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}
