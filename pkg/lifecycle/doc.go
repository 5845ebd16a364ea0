// Package lifecycle provides the component state machine shared by every
// flowhost component.
//
// A component is always in one of four states: Closed, Initialised, Started
// or Stopped. Callers never set the state directly; they issue requests
// (init, start, stop, close) and the machine decides, from the current state
// alone, which hooks to run and where the component ends up.
//
// # State Machine
//
// Defined transitions (anything else is a no-op):
//   - Closed -> init -> Initialised (OnInit)
//   - Closed -> start -> Started (OnInit, OnStart)
//   - Initialised -> start -> Started (OnStart)
//   - Initialised -> close -> Closed (OnClose)
//   - Started -> stop -> Stopped (OnStop)
//   - Started -> close -> Closed (OnStop, OnClose)
//   - Stopped -> start -> Started (OnStart)
//   - Stopped -> close -> Closed (OnClose)
//
// Init and start may fail; the component then keeps its previous state.
// Stop and close never fail for the caller: hook errors are logged and the
// state still advances. Request reports those errors so that Restart can
// abort on the first failure.
//
// # Usage
//
// Embed a Machine by value and bind it to the hooks of the outer type:
//
//	type Connection struct {
//	    lifecycle.Machine
//	}
//
//	func NewConnection(name string) *Connection {
//	    c := &Connection{}
//	    c.Setup(name, c)
//	    return c
//	}
//
//	func (c *Connection) OnInit(ctx context.Context) error  { ... }
//	func (c *Connection) OnStart(ctx context.Context) error { ... }
//	func (c *Connection) OnStop(ctx context.Context) error  { ... }
//	func (c *Connection) OnClose(ctx context.Context) error { ... }
//
// Containers own ordered children: they are initialised and started in
// insertion order and stopped and closed in reverse order.
//
// # Version
//
// Current version: 2.0.0
// Minimum compatible version: 2.0.0
package lifecycle
