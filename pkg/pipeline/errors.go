package pipeline

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks an invalid topology. It is fatal to startup.
	ErrConfiguration = errors.New("pipeline: configuration error")

	// ErrNotStarted is returned when a message reaches a component that is not started.
	ErrNotStarted = errors.New("pipeline: component not started")
)

func configError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// ProduceError reports a producer failing to deliver a message.
type ProduceError struct {
	Workflow string
	Err      error
}

func (e *ProduceError) Error() string {
	return fmt.Sprintf("workflow %s: produce: %v", e.Workflow, e.Err)
}

func (e *ProduceError) Unwrap() error {
	return e.Err
}
