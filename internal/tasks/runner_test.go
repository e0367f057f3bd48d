package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunnerExecutesSubmittedTasks(t *testing.T) {
	r := NewRunner(8, time.Second, nil)

	var ran atomic.Int64
	for i := 0; i < 5; i++ {
		r.Submit(func(context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	r.Close()

	if got := ran.Load(); got != 5 {
		t.Fatalf("ran %d tasks, want 5", got)
	}
}

func TestCloseDrainsQueue(t *testing.T) {
	// Block the worker so every submit after the first queues up, then make
	// sure Close runs the backlog before returning.
	r := NewRunner(16, time.Second, nil)

	gate := make(chan struct{})
	r.Submit(func(context.Context) error {
		<-gate
		return nil
	})

	var ran atomic.Int64
	for i := 0; i < 10; i++ {
		r.Submit(func(context.Context) error {
			ran.Add(1)
			return nil
		})
	}

	close(gate)
	r.Close()

	if got := ran.Load(); got != 10 {
		t.Fatalf("drained %d tasks, want 10", got)
	}
}

func TestSubmitDropsWhenFull(t *testing.T) {
	r := NewRunner(1, time.Second, nil)
	defer r.Close()

	gate := make(chan struct{})
	r.Submit(func(context.Context) error {
		<-gate
		return nil
	})

	// Give the worker a moment to take the blocking task off the channel,
	// then one submit fills the buffer and the rest must drop.
	time.Sleep(10 * time.Millisecond)
	for i := 0; i < 5; i++ {
		r.Submit(func(context.Context) error { return nil })
	}

	if got := r.Dropped(); got == 0 {
		t.Fatal("no tasks dropped with a full buffer")
	}
	close(gate)
}

func TestSubmitAfterCloseIsIgnored(t *testing.T) {
	r := NewRunner(8, time.Second, nil)
	r.Close()

	// Must not panic or block.
	r.Submit(func(context.Context) error {
		t.Error("task ran after close")
		return nil
	})
	time.Sleep(10 * time.Millisecond)
}

func TestTaskErrorsDoNotStopRunner(t *testing.T) {
	r := NewRunner(8, time.Second, nil)

	var ran atomic.Int64
	r.Submit(func(context.Context) error { return errors.New("boom") })
	r.Submit(func(context.Context) error {
		ran.Add(1)
		return nil
	})

	r.Close()

	if ran.Load() != 1 {
		t.Fatal("task after a failing one did not run")
	}
}

func TestTaskContextCarriesTimeout(t *testing.T) {
	r := NewRunner(1, 20*time.Millisecond, nil)

	deadlineSeen := make(chan bool, 1)
	r.Submit(func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		deadlineSeen <- ok
		return nil
	})
	r.Close()

	if !<-deadlineSeen {
		t.Fatal("task context has no deadline")
	}
}

func TestNilRunnerIsSafe(t *testing.T) {
	var r *Runner
	r.Submit(func(context.Context) error { return nil })
	r.Close()
	if r.Dropped() != 0 {
		t.Fatal("nil runner reported drops")
	}
}
