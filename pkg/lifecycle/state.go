package lifecycle

// State represents the lifecycle state of a component.
type State int

const (
	StateClosed State = iota
	StateInitialised
	StateStarted
	StateStopped
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "Closed"
	case StateInitialised:
		return "Initialised"
	case StateStarted:
		return "Started"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Request is a lifecycle operation asked of a component.
type Request int

const (
	RequestInit Request = iota
	RequestStart
	RequestStop
	RequestClose
)

// String returns the request name.
func (r Request) String() string {
	switch r {
	case RequestInit:
		return "init"
	case RequestStart:
		return "start"
	case RequestStop:
		return "stop"
	case RequestClose:
		return "close"
	default:
		return "unknown"
	}
}

// teardown reports whether the request releases resources (stop, close).
func (r Request) teardown() bool {
	return r == RequestStop || r == RequestClose
}

// Step identifies one hook invocation in a transition.
type Step int

const (
	StepInit Step = iota
	StepStart
	StepStop
	StepClose
)

// String returns the step name.
func (s Step) String() string {
	switch s {
	case StepInit:
		return "init"
	case StepStart:
		return "start"
	case StepStop:
		return "stop"
	case StepClose:
		return "close"
	default:
		return "unknown"
	}
}

// Transition is the outcome of applying a request to a state.
type Transition struct {
	From  State
	To    State
	Steps []Step
}

// Next returns the transition for req issued in state from.
// ok is false when the pair is not defined, in which case the request is a no-op.
func Next(from State, req Request) (t Transition, ok bool) {
	t.From = from
	switch from {
	case StateClosed:
		switch req {
		case RequestInit:
			t.To, t.Steps = StateInitialised, []Step{StepInit}
		case RequestStart:
			t.To, t.Steps = StateStarted, []Step{StepInit, StepStart}
		default:
			return t, false
		}
	case StateInitialised:
		switch req {
		case RequestStart:
			t.To, t.Steps = StateStarted, []Step{StepStart}
		case RequestClose:
			t.To, t.Steps = StateClosed, []Step{StepClose}
		default:
			return t, false
		}
	case StateStarted:
		switch req {
		case RequestStop:
			t.To, t.Steps = StateStopped, []Step{StepStop}
		case RequestClose:
			t.To, t.Steps = StateClosed, []Step{StepStop, StepClose}
		default:
			return t, false
		}
	case StateStopped:
		switch req {
		case RequestStart:
			t.To, t.Steps = StateStarted, []Step{StepStart}
		case RequestClose:
			t.To, t.Steps = StateClosed, []Step{StepClose}
		default:
			return t, false
		}
	default:
		return t, false
	}
	return t, true
}

// Settled reports whether a component in state s already satisfies req,
// i.e. the request would leave it where the request leads.
func Settled(s State, req Request) bool {
	switch req {
	case RequestInit:
		return s == StateInitialised
	case RequestStart:
		return s == StateStarted
	case RequestStop:
		return s == StateStopped
	case RequestClose:
		return s == StateClosed
	}
	return false
}
