package lifecycle

import "errors"

// Common lifecycle errors.
var (
	// ErrUnknownChild is returned when a container has no child with the requested name.
	ErrUnknownChild = errors.New("lifecycle: unknown child")

	// ErrDuplicateChild is returned when a child name is already owned by the container.
	ErrDuplicateChild = errors.New("lifecycle: duplicate child")
)
