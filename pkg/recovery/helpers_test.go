package recovery

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/message"
	"github.com/bft-labs/flowhost/pkg/worker"
)

// fakeChannel is a lifecycle-managed channel with an availability flag.
type fakeChannel struct {
	lifecycle.Machine
	available atomic.Bool
	closeErr  error
	startErr  error
	// closeGate, if set, holds OnClose until it is closed.
	closeGate chan struct{}
	closes    atomic.Int32
	starts    atomic.Int32
}

func newFakeChannel(name string) *fakeChannel {
	ch := &fakeChannel{}
	ch.Setup(name, channelHooks{ch})
	ch.available.Store(true)
	return ch
}

func (c *fakeChannel) Available() bool       { return c.available.Load() }
func (c *fakeChannel) MarkAvailable()        { c.available.Store(true) }
func (c *fakeChannel) MarkUnavailable() bool { return c.available.Swap(false) }

type channelHooks struct{ c *fakeChannel }

func (h channelHooks) OnInit(context.Context) error { return nil }
func (h channelHooks) OnStart(context.Context) error {
	h.c.starts.Add(1)
	if h.c.startErr != nil {
		return h.c.startErr
	}
	h.c.MarkAvailable()
	return nil
}
func (h channelHooks) OnStop(context.Context) error { return nil }
func (h channelHooks) OnClose(context.Context) error {
	if h.c.closeGate != nil {
		<-h.c.closeGate
	}
	h.c.closes.Add(1)
	return h.c.closeErr
}

// syncExecutor runs tasks on the caller's goroutine.
type syncExecutor struct {
	reject error
	tasks  []string
}

func (e *syncExecutor) Submit(name string, task worker.Task) error {
	if e.reject != nil {
		return e.reject
	}
	e.tasks = append(e.tasks, name)
	_ = task(context.Background())
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	msgs   []*message.Message
	causes []error
}

func (s *recordingSink) Accept(_ context.Context, msg *message.Message, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	s.causes = append(s.causes, cause)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func (s *recordingSink) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.msgs))
	for i, m := range s.msgs {
		out[i] = m.ID
	}
	return out
}

// scriptedResubmitter fails every resubmission until succeedAfter calls.
type scriptedResubmitter struct {
	calls        atomic.Int32
	succeedAfter int32
	block        chan struct{}
	entered      chan struct{}
}

var errResubmit = errors.New("still failing")

func (r *scriptedResubmitter) Retry(context.Context, *message.Message) error {
	n := r.calls.Add(1)
	if r.entered != nil {
		r.entered <- struct{}{}
	}
	if r.block != nil {
		<-r.block
	}
	if r.succeedAfter > 0 && n >= r.succeedAfter {
		return nil
	}
	return errResubmit
}

// manualClock is a settable clock for scan tests.
type manualClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *manualClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *manualClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type countingRetryObserver struct {
	mu       sync.Mutex
	waiting  int
	outcomes map[string]int
	failed   int
}

func (o *countingRetryObserver) SetRetryWaiting(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.waiting = n
}

func (o *countingRetryObserver) ObserveResubmission(outcome string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.outcomes == nil {
		o.outcomes = make(map[string]int)
	}
	o.outcomes[outcome]++
}

func (o *countingRetryObserver) ObserveRetryFailed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed++
}
