package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingObserver struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *countingObserver) ObserveTask(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.counts == nil {
		o.counts = make(map[string]int)
	}
	o.counts[outcome]++
}

func (o *countingObserver) get(outcome string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.counts[outcome]
}

func TestPool_RunsTasks(t *testing.T) {
	obs := &countingObserver{}
	p := New(Config{Workers: 2, QueueSize: 8}, nil, WithObserver(obs))

	var ran atomic.Int32
	for i := 0; i < 5; i++ {
		if err := p.Submit("task", func(context.Context) error {
			ran.Add(1)
			return nil
		}); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	if err := p.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if ran.Load() != 5 {
		t.Errorf("ran = %d, want 5", ran.Load())
	}
	if obs.get(OutcomeSucceeded) != 5 {
		t.Errorf("succeeded = %d, want 5", obs.get(OutcomeSucceeded))
	}
}

func TestPool_QueueFull(t *testing.T) {
	p := New(Config{Workers: 1, QueueSize: 1}, nil)
	block := make(chan struct{})
	started := make(chan struct{})

	if err := p.Submit("blocker", func(context.Context) error {
		close(started)
		<-block
		return nil
	}); err != nil {
		t.Fatalf("Submit blocker: %v", err)
	}
	<-started

	if err := p.Submit("queued", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("Submit queued: %v", err)
	}
	err := p.Submit("overflow", func(context.Context) error { return nil })
	if !errors.Is(err, ErrQueueFull) {
		t.Errorf("expected ErrQueueFull, got %v", err)
	}

	close(block)
	if err := p.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func TestPool_SubmitAfterStop(t *testing.T) {
	p := New(Config{}, nil)
	if err := p.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := p.Submit("late", func(context.Context) error { return nil }); !errors.Is(err, ErrPoolStopped) {
		t.Errorf("expected ErrPoolStopped, got %v", err)
	}
	if err := p.Stop(time.Second); err != nil {
		t.Errorf("second Stop: %v", err)
	}
}

func TestPool_FailuresAndPanicsAreContained(t *testing.T) {
	obs := &countingObserver{}
	p := New(Config{Workers: 1}, nil, WithObserver(obs))

	_ = p.Submit("fails", func(context.Context) error { return errors.New("nope") })
	_ = p.Submit("panics", func(context.Context) error { panic("boom") })
	var after atomic.Bool
	_ = p.Submit("after", func(context.Context) error {
		after.Store(true)
		return nil
	})

	if err := p.Stop(time.Second); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !after.Load() {
		t.Error("worker should survive a panicking task")
	}
	if obs.get(OutcomeFailed) != 1 || obs.get(OutcomePanicked) != 1 {
		t.Errorf("outcomes = %v", obs.counts)
	}
}

func TestPool_StopTimeoutCancelsTasks(t *testing.T) {
	p := New(Config{Workers: 1}, nil)
	started := make(chan struct{})
	cancelled := make(chan struct{})

	_ = p.Submit("slow", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	<-started

	if err := p.Stop(20 * time.Millisecond); !errors.Is(err, ErrStopTimeout) {
		t.Errorf("expected ErrStopTimeout, got %v", err)
	}
	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task context was not cancelled")
	}
}

func TestPool_NilTask(t *testing.T) {
	p := New(Config{}, nil)
	defer p.Stop(time.Second)
	if err := p.Submit("nil", nil); err != nil {
		t.Errorf("Submit(nil) = %v", err)
	}
}
