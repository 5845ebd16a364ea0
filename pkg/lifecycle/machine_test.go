package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestMachine_ZeroValueIsClosed(t *testing.T) {
	c := newTestComponent("a", nil)
	if c.State() != StateClosed {
		t.Errorf("initial state = %v, want Closed", c.State())
	}
	if c.Name() != "a" {
		t.Errorf("Name() = %q, want a", c.Name())
	}
}

func TestMachine_StartFromClosedRunsInitThenStart(t *testing.T) {
	rec := &recorder{}
	c := newTestComponent("a", rec)

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []string{"a:init", "a:start"}
	if got := rec.Calls(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if c.State() != StateStarted {
		t.Errorf("state = %v, want Started", c.State())
	}
}

func TestMachine_CloseFromStartedRunsStopThenClose(t *testing.T) {
	rec := &recorder{}
	c := newTestComponent("a", rec)
	ctx := context.Background()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	rec.Reset()

	c.Close(ctx)

	want := []string{"a:stop", "a:close"}
	if got := rec.Calls(); !equalCalls(got, want) {
		t.Errorf("calls = %v, want %v", got, want)
	}
	if c.State() != StateClosed {
		t.Errorf("state = %v, want Closed", c.State())
	}
}

// drive moves a fresh component into the given state.
func drive(t *testing.T, c *testComponent, target State) {
	t.Helper()
	ctx := context.Background()
	switch target {
	case StateClosed:
	case StateInitialised:
		if err := c.Init(ctx); err != nil {
			t.Fatalf("Init() error = %v", err)
		}
	case StateStarted:
		if err := c.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
	case StateStopped:
		if err := c.Start(ctx); err != nil {
			t.Fatalf("Start() error = %v", err)
		}
		c.Stop(ctx)
	}
	if c.State() != target {
		t.Fatalf("setup state = %v, want %v", c.State(), target)
	}
}

func TestMachine_UndefinedRequestIsNoop(t *testing.T) {
	tests := []struct {
		from State
		req  Request
	}{
		{StateClosed, RequestStop},
		{StateClosed, RequestClose},
		{StateInitialised, RequestInit},
		{StateInitialised, RequestStop},
		{StateStarted, RequestInit},
		{StateStarted, RequestStart},
		{StateStopped, RequestInit},
		{StateStopped, RequestStop},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"/"+tt.req.String(), func(t *testing.T) {
			rec := &recorder{}
			c := newTestComponent("a", rec)
			drive(t, c, tt.from)
			rec.Reset()

			if err := c.Request(context.Background(), tt.req); err != nil {
				t.Errorf("Request() error = %v, want nil", err)
			}
			if got := rec.Calls(); len(got) != 0 {
				t.Errorf("hooks ran: %v", got)
			}
			if c.State() != tt.from {
				t.Errorf("state = %v, want %v", c.State(), tt.from)
			}
		})
	}
}

func TestMachine_StartFailureKeepsPriorState(t *testing.T) {
	boom := errors.New("boom")

	t.Run("from initialised", func(t *testing.T) {
		rec := &recorder{}
		c := newTestComponent("a", rec)
		drive(t, c, StateInitialised)
		c.fail[StepStart] = boom

		err := c.Start(context.Background())
		if !errors.Is(err, boom) {
			t.Fatalf("Start() error = %v, want %v", err, boom)
		}
		if c.State() != StateInitialised {
			t.Errorf("state = %v, want Initialised", c.State())
		}
	})

	t.Run("from closed undoes init", func(t *testing.T) {
		rec := &recorder{}
		c := newTestComponent("a", rec)
		c.fail[StepStart] = boom

		err := c.Start(context.Background())
		if !errors.Is(err, boom) {
			t.Fatalf("Start() error = %v, want %v", err, boom)
		}
		if c.State() != StateClosed {
			t.Errorf("state = %v, want Closed", c.State())
		}
		want := []string{"a:init", "a:start", "a:close"}
		if got := rec.Calls(); !equalCalls(got, want) {
			t.Errorf("calls = %v, want %v", got, want)
		}
	})

	t.Run("init failure", func(t *testing.T) {
		c := newTestComponent("a", nil)
		c.fail[StepInit] = boom

		if err := c.Init(context.Background()); !errors.Is(err, boom) {
			t.Fatalf("Init() error = %v, want %v", err, boom)
		}
		if c.State() != StateClosed {
			t.Errorf("state = %v, want Closed", c.State())
		}
		if c.starts.Load() != 0 {
			t.Error("OnStart should not run")
		}
	})
}

func TestMachine_TeardownFailureStillAdvances(t *testing.T) {
	boom := errors.New("stop failed")
	c := newTestComponent("a", nil)
	drive(t, c, StateStarted)
	c.fail[StepStop] = boom

	// Stop never reports; the state moves on regardless.
	c.Stop(context.Background())
	if c.State() != StateStopped {
		t.Fatalf("state = %v, want Stopped", c.State())
	}

	c.fail[StepClose] = boom
	if err := c.Request(context.Background(), RequestClose); !errors.Is(err, boom) {
		t.Errorf("Request(close) error = %v, want %v", err, boom)
	}
	if c.State() != StateClosed {
		t.Errorf("state = %v, want Closed", c.State())
	}
}

func TestMachine_ConcurrentStartRunsHooksOnce(t *testing.T) {
	c := newTestComponent("a", nil)
	c.delay = 10 * time.Millisecond

	const n = 32
	var wg sync.WaitGroup
	start := make(chan struct{})
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errs <- c.Start(context.Background())
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("Start() error = %v", err)
		}
	}
	if got := c.inits.Load(); got != 1 {
		t.Errorf("OnInit ran %d times, want 1", got)
	}
	if got := c.starts.Load(); got != 1 {
		t.Errorf("OnStart ran %d times, want 1", got)
	}
	if c.State() != StateStarted {
		t.Errorf("state = %v, want Started", c.State())
	}
}

func TestMachine_EmitsStateChange(t *testing.T) {
	em := &mockEmitter{}
	c := newTestComponent("a", nil)
	c.Observe(mockLogger{}, em)
	ctx := context.Background()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	c.Stop(ctx)

	events := em.Events()
	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if events[0] != (stateChangeEvent{"a", StateClosed, StateStarted, "start"}) {
		t.Errorf("events[0] = %+v", events[0])
	}
	if events[1] != (stateChangeEvent{"a", StateStarted, StateStopped, "stop"}) {
		t.Errorf("events[1] = %+v", events[1])
	}
}

func TestMachine_FailedTransitionEmitsNothing(t *testing.T) {
	em := &mockEmitter{}
	c := newTestComponent("a", nil)
	c.Observe(nil, em)
	c.fail[StepInit] = errors.New("nope")

	_ = c.Init(context.Background())
	if n := len(em.Events()); n != 0 {
		t.Errorf("events = %d, want 0", n)
	}
}
