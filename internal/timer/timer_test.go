package timer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/falconqueue/taskcore/internal/threading"
)

func TestSteadyTimerFiresOnce(t *testing.T) {
	exec := threading.NewFiberExecutor("timer-once", 8, nil)
	exec.Start()
	defer exec.Stop()

	var fired atomic.Int32
	tm := NewSteadyTimer("once", 10*time.Millisecond, 0, exec, func(ctx context.Context) {
		fired.Add(1)
	})
	tm.Start()
	defer tm.Stop()

	time.Sleep(80 * time.Millisecond)
	if fired.Load() != 1 {
		t.Fatalf("want exactly one fire, got %d", fired.Load())
	}
}

func TestSteadyTimerRepeats(t *testing.T) {
	exec := threading.NewFiberExecutor("timer-repeat", 16, nil)
	exec.Start()
	defer exec.Stop()

	var fired atomic.Int32
	tm := NewSteadyTimer("repeat", 5*time.Millisecond, 15*time.Millisecond, exec, func(ctx context.Context) {
		fired.Add(1)
	})
	tm.Start()
	defer tm.Stop()

	time.Sleep(100 * time.Millisecond)
	if got := fired.Load(); got < 3 {
		t.Fatalf("want at least 3 fires in 100ms at 15ms interval, got %d", got)
	}
}

func TestSteadyTimerStopPreventsFiring(t *testing.T) {
	exec := threading.NewFiberExecutor("timer-stop", 8, nil)
	exec.Start()
	defer exec.Stop()

	var fired atomic.Int32
	tm := NewSteadyTimer("stoppable", 20*time.Millisecond, 0, exec, func(ctx context.Context) {
		fired.Add(1)
	})
	tm.Start()
	tm.Stop()

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("want zero fires after Stop, got %d", fired.Load())
	}
}

func TestDeadlineTimerFiresAtDeadline(t *testing.T) {
	exec := threading.NewFiberExecutor("deadline", 8, nil)
	exec.Start()
	defer exec.Stop()

	done := make(chan struct{})
	dt := NewDeadlineTimer("deadline-fire", time.Now().Add(15*time.Millisecond), exec, func(ctx context.Context) {
		close(done)
	})
	dt.Start()
	defer dt.Stop()

	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("deadline timer never fired")
	}
}

func TestDeadlineTimerStopIsSilent(t *testing.T) {
	exec := threading.NewFiberExecutor("deadline-stop", 8, nil)
	exec.Start()
	defer exec.Stop()

	var fired atomic.Int32
	dt := NewDeadlineTimer("deadline-cancel", time.Now().Add(30*time.Millisecond), exec, func(ctx context.Context) {
		fired.Add(1)
	})
	dt.Start()
	dt.Stop()

	time.Sleep(60 * time.Millisecond)
	if fired.Load() != 0 {
		t.Fatalf("want zero fires after Stop, got %d", fired.Load())
	}
}
