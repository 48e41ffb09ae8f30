package threading

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestTaskLifecycle(t *testing.T) {
	task := NewTask("noop", func(ctx context.Context) error { return nil })
	if task.State() != Created {
		t.Fatalf("want Created, got %s", task.State())
	}

	task.setState(Queuing)
	task.setState(Running)
	go func() {
		time.Sleep(10 * time.Millisecond)
		task.setState(Finished)
	}()

	if err := task.Join(context.Background()); err != nil {
		t.Fatalf("Join returned error: %v", err)
	}
	if task.State() != Finished {
		t.Fatalf("want Finished, got %s", task.State())
	}
}

func TestTaskJoinContextCancel(t *testing.T) {
	task := NewTask("blocked", func(ctx context.Context) error { return nil })
	task.setState(Running)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	if err := task.Join(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("want DeadlineExceeded, got %v", err)
	}
}

func TestTaskCancel(t *testing.T) {
	task := NewTask("cancellable", func(ctx context.Context) error { return nil })
	if task.Cancelled() {
		t.Fatal("new task must not be cancelled")
	}
	task.Cancel()
	if !task.Cancelled() {
		t.Fatal("Cancel must set Cancelled")
	}
}

func TestTaskRunRecoversPanic(t *testing.T) {
	task := NewTask("panicky", func(ctx context.Context) error {
		panic("boom")
	})
	err := task.run(context.Background())
	if err == nil {
		t.Fatal("want non-nil error from recovered panic")
	}
}

func TestTaskRunPropagatesError(t *testing.T) {
	want := errors.New("fail")
	task := NewTask("failing", func(ctx context.Context) error { return want })
	if err := task.run(context.Background()); !errors.Is(err, want) {
		t.Fatalf("want %v, got %v", want, err)
	}
}
