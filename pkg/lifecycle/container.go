package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/bft-labs/flowhost/pkg/log"
)

// Container is a component that owns ordered children.
//
// Children are initialised and started in insertion order and stopped and
// closed in reverse order. The container's own hooks run before its children
// come up and after they have gone down. Children may be driven independently
// with RequestChildByName without touching the container's state.
type Container struct {
	Machine

	own Hooks

	childMu  sync.RWMutex
	children []Component
}

// Setup names the container and binds its own hooks. own may be nil.
func (c *Container) Setup(name string, own Hooks) {
	if own == nil {
		own = NopHooks{}
	}
	c.own = own
	c.Machine.Setup(name, containerHooks{c: c})
}

// Add appends a child. The child inherits the container's logger and emitter.
func (c *Container) Add(child Component) error {
	c.childMu.Lock()
	for _, existing := range c.children {
		if existing.Name() == child.Name() {
			c.childMu.Unlock()
			return fmt.Errorf("%w: %s in %s", ErrDuplicateChild, child.Name(), c.Name())
		}
	}
	c.children = append(c.children, child)
	c.childMu.Unlock()

	c.obsMu.RLock()
	logger, emitter := c.logger, c.emitter
	c.obsMu.RUnlock()
	child.Observe(logger, emitter)
	return nil
}

// Children returns a snapshot of the children in insertion order.
func (c *Container) Children() []Component {
	c.childMu.RLock()
	defer c.childMu.RUnlock()
	out := make([]Component, len(c.children))
	copy(out, c.children)
	return out
}

// Child returns the child with the given name.
func (c *Container) Child(name string) (Component, bool) {
	c.childMu.RLock()
	defer c.childMu.RUnlock()
	for _, child := range c.children {
		if child.Name() == name {
			return child, true
		}
	}
	return nil, false
}

// Observe installs the logger and emitter on the container and all children.
func (c *Container) Observe(logger log.Logger, emitter EventEmitter) {
	c.Machine.Observe(logger, emitter)
	for _, child := range c.Children() {
		child.Observe(logger, emitter)
	}
}

// Init requests the init transition.
func (c *Container) Init(ctx context.Context) error {
	return c.Request(ctx, RequestInit)
}

// Start requests the start transition.
func (c *Container) Start(ctx context.Context) error {
	return c.Request(ctx, RequestStart)
}

// Stop requests the stop transition. Failures are logged only.
func (c *Container) Stop(ctx context.Context) {
	_ = c.Request(ctx, RequestStop)
}

// Close requests the close transition. Failures are logged only.
func (c *Container) Close(ctx context.Context) {
	_ = c.Request(ctx, RequestClose)
}

// Request applies req to the container. When the container already sits in
// the state req leads to, its own hooks are not run again; instead req is
// cascaded to the children so that they converge on the same state.
func (c *Container) Request(ctx context.Context, req Request) error {
	if Settled(c.State(), req) {
		return c.RequestChild(ctx, req)
	}
	return c.Machine.Request(ctx, req)
}

// RequestChild applies req to every child without changing the container
// state. It does nothing unless the container already sits in the state req
// leads to, so children never run ahead of their parent.
func (c *Container) RequestChild(ctx context.Context, req Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !Settled(c.State(), req) {
		return nil
	}
	return c.cascade(ctx, req)
}

// RequestChildByName applies req to a single child. The container state is untouched.
func (c *Container) RequestChildByName(ctx context.Context, name string, req Request) error {
	child, ok := c.Child(name)
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrUnknownChild, name, c.Name())
	}
	return child.Request(ctx, req)
}

// cascade forwards req to the children. The caller holds c.mu.
//
// For init and start, the first failure aborts and children moved by this
// call are taken back (closed or stopped) in reverse order. For stop and
// close every child is visited and failures are joined.
func (c *Container) cascade(ctx context.Context, req Request) error {
	children := c.Children()

	if req.teardown() {
		var errs []error
		for i := len(children) - 1; i >= 0; i-- {
			if err := children[i].Request(ctx, req); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	var moved []Component
	for _, child := range children {
		before := child.State()
		if err := child.Request(ctx, req); err != nil {
			c.undo(ctx, req, moved)
			return fmt.Errorf("%s: child %s: %w", c.Name(), child.Name(), err)
		}
		if child.State() != before {
			moved = append(moved, child)
		}
	}
	return nil
}

// undo reverts children moved by a failed init or start, newest first.
func (c *Container) undo(ctx context.Context, req Request, moved []Component) {
	for i := len(moved) - 1; i >= 0; i-- {
		switch req {
		case RequestStart:
			moved[i].Stop(ctx)
		case RequestInit:
			moved[i].Close(ctx)
		}
	}
}

// containerHooks runs the container's own hooks around its children.
type containerHooks struct {
	c *Container
}

func (h containerHooks) OnInit(ctx context.Context) error {
	if err := h.c.own.OnInit(ctx); err != nil {
		return err
	}
	if err := h.c.cascade(ctx, RequestInit); err != nil {
		h.logTeardown("close", h.c.own.OnClose(ctx))
		return err
	}
	return nil
}

func (h containerHooks) OnStart(ctx context.Context) error {
	if err := h.c.own.OnStart(ctx); err != nil {
		return err
	}
	if err := h.c.cascade(ctx, RequestStart); err != nil {
		h.logTeardown("stop", h.c.own.OnStop(ctx))
		return err
	}
	return nil
}

// OnStop stops children first; their failures are already logged by them.
func (h containerHooks) OnStop(ctx context.Context) error {
	_ = h.c.cascade(ctx, RequestStop)
	return h.c.own.OnStop(ctx)
}

// OnClose closes children first; their failures are already logged by them.
func (h containerHooks) OnClose(ctx context.Context) error {
	_ = h.c.cascade(ctx, RequestClose)
	return h.c.own.OnClose(ctx)
}

func (h containerHooks) logTeardown(step string, err error) {
	if err == nil {
		return
	}
	h.c.Logger().Warn("container rollback step failed",
		log.Component(h.c.Name()),
		log.String("step", step),
		log.Err(err),
	)
}
