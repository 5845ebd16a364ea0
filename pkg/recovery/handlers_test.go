package recovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/message"
)

type restartCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func (r *restartCounter) ObserveRestart(target, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.counts == nil {
		r.counts = make(map[string]int)
	}
	r.counts[target+"/"+outcome]++
}

func TestCloseOnErrorHandler(t *testing.T) {
	ctx := context.Background()
	a, b := newFakeChannel("a"), newFakeChannel("b")
	b.closeErr = errors.New("close failed")
	for _, ch := range []*fakeChannel{a, b} {
		if err := ch.Start(ctx); err != nil {
			t.Fatalf("Start: %v", err)
		}
	}

	exec := &syncExecutor{}
	h := NewCloseOnErrorHandler(exec, nil)
	h.Register(a)
	h.Register(b)
	h.Register(a)

	h.HandleConnectionError(ctx, errors.New("connection reset"))

	for _, ch := range []*fakeChannel{a, b} {
		if ch.Available() {
			t.Errorf("%s should be unavailable", ch.Name())
		}
		if ch.State() != lifecycle.StateClosed {
			t.Errorf("%s state = %v, want Closed", ch.Name(), ch.State())
		}
		if ch.closes.Load() != 1 {
			t.Errorf("%s closed %d times, want 1", ch.Name(), ch.closes.Load())
		}
	}
	if len(exec.tasks) != 2 {
		t.Errorf("executor tasks = %v, want 2", exec.tasks)
	}
}

func TestCloseOnErrorHandler_WithoutExecutorDoesNotBlockCaller(t *testing.T) {
	ctx := context.Background()
	ch := newFakeChannel("direct")
	_ = ch.Start(ctx)
	// The close waits for the reporting goroutine, like a transport loop
	// the channel joins on stop.
	ch.closeGate = make(chan struct{})

	h := NewCloseOnErrorHandler(nil, nil)
	h.Register(ch)

	returned := make(chan struct{})
	go func() {
		h.HandleConnectionError(ctx, errors.New("gone"))
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleConnectionError blocked on the channel close")
	}
	if ch.Available() {
		t.Error("channel should be unavailable")
	}

	close(ch.closeGate)
	deadline := time.Now().Add(2 * time.Second)
	for ch.State() != lifecycle.StateClosed {
		if time.Now().After(deadline) {
			t.Fatalf("state = %v, want Closed", ch.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNullConnectionErrorHandler(t *testing.T) {
	ch := newFakeChannel("c")
	ch.MarkUnavailable()

	h := NewNullConnectionErrorHandler(nil)
	h.Register(ch)
	h.HandleConnectionError(context.Background(), errors.New("gone"))

	if !ch.Available() {
		t.Error("null handler should mark the channel available")
	}
}

func TestRestartWorkflowHandler(t *testing.T) {
	ctx := context.Background()
	wf := newFakeChannel("wf")
	_ = wf.Start(ctx)

	obs := &restartCounter{}
	h := NewRestartWorkflowHandler(&syncExecutor{}, nil, WithRestartObserver(obs))
	h.HandleProduceFailure(ctx, ProduceFailure{Workflow: wf, Message: message.New(nil), Err: errors.New("send")})

	if wf.State() != lifecycle.StateStarted {
		t.Errorf("state = %v, want Started", wf.State())
	}
	if wf.starts.Load() != 2 || wf.closes.Load() != 1 {
		t.Errorf("starts=%d closes=%d, want 2 and 1", wf.starts.Load(), wf.closes.Load())
	}
	if obs.counts["workflow/succeeded"] != 1 {
		t.Errorf("restart outcomes = %v", obs.counts)
	}
}

func TestRestartWorkflowHandler_Rejected(t *testing.T) {
	wf := newFakeChannel("wf")
	obs := &restartCounter{}
	h := NewRestartWorkflowHandler(&syncExecutor{reject: errors.New("queue is full")}, nil, WithRestartObserver(obs))
	h.HandleProduceFailure(context.Background(), ProduceFailure{Workflow: wf, Err: errors.New("send")})

	if obs.counts["workflow/rejected"] != 1 {
		t.Errorf("restart outcomes = %v", obs.counts)
	}
}

func TestRestartChannelHandler(t *testing.T) {
	ctx := context.Background()
	wf := newFakeChannel("wf")
	ch := newFakeChannel("ch")
	_ = ch.Start(ctx)

	exec := &syncExecutor{}
	h := NewRestartChannelHandler(exec, nil)
	h.HandleProduceFailure(ctx, ProduceFailure{Workflow: wf, Channel: ch, Err: errors.New("send")})

	if ch.starts.Load() != 2 {
		t.Errorf("channel starts = %d, want 2", ch.starts.Load())
	}
	if !ch.Available() {
		t.Error("channel should be available again after restart")
	}
	if wf.starts.Load() != 0 {
		t.Error("workflow should not be restarted directly")
	}
}

func TestRestartChannelHandler_SkipsUnavailable(t *testing.T) {
	ch := newFakeChannel("ch")
	ch.MarkUnavailable()

	exec := &syncExecutor{}
	h := NewRestartChannelHandler(exec, nil)
	h.HandleProduceFailure(context.Background(), ProduceFailure{Workflow: newFakeChannel("wf"), Channel: ch})

	if len(exec.tasks) != 0 {
		t.Errorf("restart scheduled for unavailable channel: %v", exec.tasks)
	}
}

func TestRestartChannelHandler_FailedRestartStaysUnavailable(t *testing.T) {
	ctx := context.Background()
	ch := newFakeChannel("ch")
	_ = ch.Start(ctx)
	ch.startErr = errors.New("cannot start")

	obs := &restartCounter{}
	h := NewRestartChannelHandler(&syncExecutor{}, nil, WithRestartObserver(obs))
	h.HandleProduceFailure(ctx, ProduceFailure{Workflow: newFakeChannel("wf"), Channel: ch})

	if ch.Available() {
		t.Error("channel should stay unavailable after a failed restart")
	}
	if obs.counts["channel/failed"] != 1 {
		t.Errorf("restart outcomes = %v", obs.counts)
	}
}

func TestRestartChannelHandler_RejectedKeepsRunningChannelAvailable(t *testing.T) {
	ctx := context.Background()
	ch := newFakeChannel("ch")
	_ = ch.Start(ctx)

	h := NewRestartChannelHandler(&syncExecutor{reject: errors.New("full")}, nil)
	h.HandleProduceFailure(ctx, ProduceFailure{Workflow: newFakeChannel("wf"), Channel: ch})

	if !ch.Available() {
		t.Error("rejected restart should leave the running channel available")
	}
}

func TestRestartChannelHandler_NoChannel(t *testing.T) {
	exec := &syncExecutor{}
	h := NewRestartChannelHandler(exec, nil)
	h.HandleProduceFailure(context.Background(), ProduceFailure{Workflow: newFakeChannel("wf")})
	if len(exec.tasks) != 0 {
		t.Error("no restart expected without a channel")
	}
}

// ownerStates is a parent whose successive State calls follow states.
type ownerStates struct {
	mu     sync.Mutex
	states []lifecycle.State
}

func (o *ownerStates) Name() string { return "adapter" }

func (o *ownerStates) State() lifecycle.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := o.states[0]
	if len(o.states) > 1 {
		o.states = o.states[1:]
	}
	return s
}

func (o *ownerStates) Request(context.Context, lifecycle.Request) error { return nil }

func TestRestartHandlers_SkipWhenParentStopped(t *testing.T) {
	ctx := context.Background()
	stopped := func(name string) *fakeChannel {
		c := newFakeChannel(name)
		_ = c.Start(ctx)
		c.Stop(ctx)
		return c
	}

	tests := []struct {
		name   string
		target *fakeChannel
		handle func(ProduceExceptionHandler, *fakeChannel)
		build  func(Executor, ...HandlerOption) ProduceExceptionHandler
		key    string
	}{
		{
			name:   "workflow under stopped channel",
			target: stopped("wf"),
			build: func(e Executor, opts ...HandlerOption) ProduceExceptionHandler {
				return NewRestartWorkflowHandler(e, nil, opts...)
			},
			handle: func(h ProduceExceptionHandler, wf *fakeChannel) {
				h.HandleProduceFailure(ctx, ProduceFailure{Workflow: wf, Channel: stopped("ch")})
			},
			key: "workflow/skipped",
		},
		{
			name:   "channel under stopped adapter",
			target: stopped("ch"),
			build: func(e Executor, opts ...HandlerOption) ProduceExceptionHandler {
				return NewRestartChannelHandler(e, nil, opts...)
			},
			handle: func(h ProduceExceptionHandler, ch *fakeChannel) {
				h.HandleProduceFailure(ctx, ProduceFailure{
					Workflow: newFakeChannel("wf"),
					Channel:  ch,
					Owner:    &ownerStates{states: []lifecycle.State{lifecycle.StateStopped}},
				})
			},
			key: "channel/skipped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obs := &restartCounter{}
			exec := &syncExecutor{}
			tt.handle(tt.build(exec, WithRestartObserver(obs)), tt.target)

			if len(exec.tasks) != 1 {
				t.Fatalf("executor tasks = %v, want 1", exec.tasks)
			}
			if tt.target.State() != lifecycle.StateStopped {
				t.Errorf("state = %v, want Stopped", tt.target.State())
			}
			if tt.target.starts.Load() != 1 {
				t.Errorf("starts = %d, want 1", tt.target.starts.Load())
			}
			if obs.counts[tt.key] != 1 {
				t.Errorf("restart outcomes = %v, want %s", obs.counts, tt.key)
			}
		})
	}
}

func TestRestartChannelHandler_OwnerStoppedDuringRestart(t *testing.T) {
	ctx := context.Background()
	ch := newFakeChannel("ch")
	_ = ch.Start(ctx)

	owner := &ownerStates{states: []lifecycle.State{lifecycle.StateStarted, lifecycle.StateStopped}}
	obs := &restartCounter{}
	h := NewRestartChannelHandler(&syncExecutor{}, nil, WithRestartObserver(obs))
	h.HandleProduceFailure(ctx, ProduceFailure{Workflow: newFakeChannel("wf"), Channel: ch, Owner: owner})

	if ch.starts.Load() != 2 {
		t.Errorf("starts = %d, want 2", ch.starts.Load())
	}
	if ch.State() != lifecycle.StateStopped {
		t.Errorf("state = %v, want Stopped", ch.State())
	}
	if obs.counts["channel/skipped"] != 1 || obs.counts["channel/succeeded"] != 0 {
		t.Errorf("restart outcomes = %v", obs.counts)
	}
}

func TestStandardErrorHandler(t *testing.T) {
	sink := &recordingSink{}
	h := StandardErrorHandler{Sink: sink}
	cause := errors.New("bad payload")
	h.HandleProcessingError(context.Background(), message.New(nil), cause)

	if sink.count() != 1 || !errors.Is(sink.causes[0], cause) {
		t.Errorf("sink = %+v", sink.causes)
	}
}

func TestRetryMessageErrorHandler(t *testing.T) {
	sink := &recordingSink{}
	store := NewRetryStore(RetryConfig{Interval: time.Minute, Limit: 1}, &scriptedResubmitter{}, sink, nil)
	h := RetryMessageErrorHandler{Store: store}

	// stopped store: straight to the sink
	h.HandleProcessingError(context.Background(), message.New(nil), errors.New("x"))
	if sink.count() != 1 {
		t.Fatalf("sink calls = %d, want 1", sink.count())
	}

	store.Start(context.Background())
	defer store.Stop()
	m := message.New(nil)
	h.HandleProcessingError(context.Background(), m, errors.New("x"))
	if ids := store.WaitingIDs(); len(ids) != 1 || ids[0] != m.ID {
		t.Errorf("message should be parked, waiting = %v", ids)
	}
	if sink.count() != 1 {
		t.Errorf("sink calls = %d, want 1", sink.count())
	}
}

func TestSinkFunc(t *testing.T) {
	var got *message.Message
	var sink FailureSink = SinkFunc(func(_ context.Context, m *message.Message, _ error) { got = m })
	m := message.New(nil)
	sink.Accept(context.Background(), m, nil)
	if got != m {
		t.Error("SinkFunc did not forward the message")
	}
	LogSink{}.Accept(context.Background(), m, errors.New("logged"))
}
