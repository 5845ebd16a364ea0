package lifecycle

import (
	"context"
	"fmt"
)

// Restart stops (when started), closes, initialises and starts c, in that order.
// The first failing step aborts the remaining ones and is returned.
func Restart(ctx context.Context, c Requester) error {
	steps := []Request{RequestClose, RequestInit, RequestStart}
	if c.State() == StateStarted {
		steps = append([]Request{RequestStop}, steps...)
	}

	for _, req := range steps {
		if err := c.Request(ctx, req); err != nil {
			return fmt.Errorf("restart %s: %s: %w", c.Name(), req, err)
		}
	}
	return nil
}
