package lifecycle

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/flowhost/pkg/log"
)

// recorder collects hook invocations across components in call order.
type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *recorder) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string{}, r.calls...)
}

func (r *recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = nil
}

// testComponent is a leaf component whose hooks record calls and can fail.
type testComponent struct {
	Machine

	rec   *recorder
	fail  map[Step]error
	delay time.Duration

	inits, starts, stops, closes atomic.Int32
}

func newTestComponent(name string, rec *recorder) *testComponent {
	c := &testComponent{rec: rec, fail: map[Step]error{}}
	c.Setup(name, c)
	return c
}

func (c *testComponent) hook(s Step, n *atomic.Int32) error {
	n.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if c.rec != nil {
		c.rec.add(c.Name() + ":" + s.String())
	}
	return c.fail[s]
}

func (c *testComponent) OnInit(context.Context) error  { return c.hook(StepInit, &c.inits) }
func (c *testComponent) OnStart(context.Context) error { return c.hook(StepStart, &c.starts) }
func (c *testComponent) OnStop(context.Context) error  { return c.hook(StepStop, &c.stops) }
func (c *testComponent) OnClose(context.Context) error { return c.hook(StepClose, &c.closes) }

// ownHooks records a container's own hooks.
type ownHooks struct {
	name string
	rec  *recorder
	fail map[Step]error
}

func (o *ownHooks) call(s Step) error {
	o.rec.add(o.name + ":" + s.String())
	return o.fail[s]
}

func (o *ownHooks) OnInit(context.Context) error  { return o.call(StepInit) }
func (o *ownHooks) OnStart(context.Context) error { return o.call(StepStart) }
func (o *ownHooks) OnStop(context.Context) error  { return o.call(StepStop) }
func (o *ownHooks) OnClose(context.Context) error { return o.call(StepClose) }

// mockLogger implements log.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...log.Field) {}
func (mockLogger) Info(msg string, fields ...log.Field)  {}
func (mockLogger) Warn(msg string, fields ...log.Field)  {}
func (mockLogger) Error(msg string, fields ...log.Field) {}

// mockEmitter tracks state change events for testing.
type mockEmitter struct {
	mu     sync.Mutex
	events []stateChangeEvent
}

type stateChangeEvent struct {
	component string
	previous  State
	current   State
	reason    string
}

func (m *mockEmitter) OnStateChange(component string, previous, current State, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, stateChangeEvent{component, previous, current, reason})
}

func (m *mockEmitter) Events() []stateChangeEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]stateChangeEvent{}, m.events...)
}

func equalCalls(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}
