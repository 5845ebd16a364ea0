package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/flowhost/pkg/log"
)

// Hooks are the side effects a component performs during transitions.
// OnInit and OnStart may allocate resources; OnStop and OnClose release them.
// The machine never runs two hooks of the same component concurrently.
type Hooks interface {
	OnInit(ctx context.Context) error
	OnStart(ctx context.Context) error
	OnStop(ctx context.Context) error
	OnClose(ctx context.Context) error
}

// NopHooks implements Hooks with no side effects.
type NopHooks struct{}

func (NopHooks) OnInit(context.Context) error  { return nil }
func (NopHooks) OnStart(context.Context) error { return nil }
func (NopHooks) OnStop(context.Context) error  { return nil }
func (NopHooks) OnClose(context.Context) error { return nil }

// EventEmitter is called when a component changes state.
type EventEmitter interface {
	OnStateChange(component string, previous, current State, reason string)
}

// Requester is the minimal surface needed to drive a component through requests.
type Requester interface {
	Name() string
	State() State
	Request(ctx context.Context, req Request) error
}

// Component is implemented by every managed entity. Machine provides all of it.
type Component interface {
	Requester

	// Init and Start report failures; the component keeps its previous state.
	Init(ctx context.Context) error
	Start(ctx context.Context) error

	// Stop and Close never fail; hook errors are logged.
	Stop(ctx context.Context)
	Close(ctx context.Context)

	// Observe installs the logger and event emitter used for transitions.
	// Nil arguments leave the current value untouched.
	Observe(logger log.Logger, emitter EventEmitter)
}

// Machine is the lifecycle capability embedded by every component.
// The zero value is a Closed component with no hooks; call Setup before use.
type Machine struct {
	name  string
	hooks Hooks

	// mu serialises transitions and is held while hooks run.
	mu sync.Mutex

	stateMu sync.RWMutex
	state   State

	obsMu   sync.RWMutex
	logger  log.Logger
	emitter EventEmitter
}

// Setup names the machine and binds the hooks run on transitions.
func (m *Machine) Setup(name string, hooks Hooks) {
	if hooks == nil {
		hooks = NopHooks{}
	}
	m.name = name
	m.hooks = hooks
}

// Name returns the unique name of the component.
func (m *Machine) Name() string {
	return m.name
}

// State returns the current lifecycle state.
func (m *Machine) State() State {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

func (m *Machine) setState(s State) {
	m.stateMu.Lock()
	m.state = s
	m.stateMu.Unlock()
}

// Observe installs the logger and event emitter.
func (m *Machine) Observe(logger log.Logger, emitter EventEmitter) {
	m.obsMu.Lock()
	defer m.obsMu.Unlock()
	if logger != nil {
		m.logger = logger
	}
	if emitter != nil {
		m.emitter = emitter
	}
}

// Logger returns the component logger, never nil.
func (m *Machine) Logger() log.Logger {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	return log.OrNoop(m.logger)
}

func (m *Machine) eventEmitter() EventEmitter {
	m.obsMu.RLock()
	defer m.obsMu.RUnlock()
	return m.emitter
}

// Init requests the init transition.
func (m *Machine) Init(ctx context.Context) error {
	return m.Request(ctx, RequestInit)
}

// Start requests the start transition, initialising first when Closed.
func (m *Machine) Start(ctx context.Context) error {
	return m.Request(ctx, RequestStart)
}

// Stop requests the stop transition. Failures are logged only.
func (m *Machine) Stop(ctx context.Context) {
	_ = m.Request(ctx, RequestStop)
}

// Close requests the close transition. Failures are logged only.
func (m *Machine) Close(ctx context.Context) {
	_ = m.Request(ctx, RequestClose)
}

// Request applies req to the component.
//
// Requests that are not defined for the current state are no-ops. If another
// goroutine moves the component while this request waits for the lock, the
// request is dropped. For stop and close the state always advances and any
// hook failures are returned joined; for init and start a failure leaves the
// previous state in place.
func (m *Machine) Request(ctx context.Context, req Request) error {
	origin := m.State()
	if _, ok := Next(origin, req); !ok {
		return nil
	}

	t, reached, err := m.transition(ctx, origin, req)
	if !reached {
		return err
	}

	logger := m.Logger()
	logger.Info("state transition",
		log.Component(m.name),
		log.String("from", t.From.String()),
		log.String("to", t.To.String()),
		log.String("request", req.String()),
	)
	if e := m.eventEmitter(); e != nil {
		e.OnStateChange(m.name, t.From, t.To, req.String())
	}
	return err
}

// transition runs the hooks for req under the machine lock.
func (m *Machine) transition(ctx context.Context, origin State, req Request) (Transition, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if current := m.State(); current != origin {
		m.Logger().Debug("request superseded by concurrent transition",
			log.Component(m.name),
			log.String("request", req.String()),
			log.String("expected", origin.String()),
			log.String("actual", current.String()),
		)
		return Transition{}, false, nil
	}

	t, _ := Next(origin, req)
	if req.teardown() {
		err := m.teardown(ctx, t.Steps)
		m.setState(t.To)
		return t, true, err
	}

	var done []Step
	for _, s := range t.Steps {
		if err := m.invoke(ctx, s); err != nil {
			m.rollback(ctx, done)
			m.Logger().Error("lifecycle transition failed",
				log.Component(m.name),
				log.String("request", req.String()),
				log.String("state", origin.String()),
				log.Err(err),
			)
			return t, false, fmt.Errorf("%s: %s: %w", m.name, s, err)
		}
		done = append(done, s)
	}
	m.setState(t.To)
	return t, true, nil
}

// teardown runs every step, logging failures instead of stopping.
func (m *Machine) teardown(ctx context.Context, steps []Step) error {
	var errs []error
	for _, s := range steps {
		if err := m.invoke(ctx, s); err != nil {
			m.Logger().Error("lifecycle teardown step failed",
				log.Component(m.name),
				log.String("step", s.String()),
				log.Err(err),
			)
			errs = append(errs, fmt.Errorf("%s: %s: %w", m.name, s, err))
		}
	}
	return errors.Join(errs...)
}

// rollback undoes an init that succeeded before a later step failed.
func (m *Machine) rollback(ctx context.Context, done []Step) {
	for i := len(done) - 1; i >= 0; i-- {
		if done[i] != StepInit {
			continue
		}
		if err := m.invoke(ctx, StepClose); err != nil {
			m.Logger().Warn("rollback close failed",
				log.Component(m.name),
				log.Err(err),
			)
		}
	}
}

func (m *Machine) invoke(ctx context.Context, s Step) error {
	h := m.hooks
	if h == nil {
		h = NopHooks{}
	}
	switch s {
	case StepInit:
		return h.OnInit(ctx)
	case StepStart:
		return h.OnStart(ctx)
	case StepStop:
		return h.OnStop(ctx)
	case StepClose:
		return h.OnClose(ctx)
	}
	return nil
}
