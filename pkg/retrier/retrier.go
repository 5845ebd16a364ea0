// Package retrier routes failed messages back to the workflow that owns them.
//
// Workflows register under their workflow id. The registry runs in strict
// mode by default and rejects a second registration of the same id; lenient
// mode keeps the first registrant and logs a warning.
package retrier

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/message"
)

var (
	// ErrDuplicateWorkflow is returned in strict mode for an id registered twice.
	ErrDuplicateWorkflow = errors.New("retrier: duplicate workflow id")
	// ErrUnknownWorkflow is returned when no workflow is registered under an id.
	ErrUnknownWorkflow = errors.New("retrier: unknown workflow")
	// ErrMissingWorkflowID is returned for a message without a workflow id.
	ErrMissingWorkflowID = errors.New("retrier: message has no workflow id")
)

// Mode controls duplicate registration handling.
type Mode int

const (
	// ModeStrict rejects duplicate workflow ids.
	ModeStrict Mode = iota
	// ModeLenient keeps the first registrant and logs a warning.
	//
	// Deprecated: duplicate workflow ids make resubmission ambiguous. Use ModeStrict.
	ModeLenient
)

// String returns the mode name.
func (m Mode) String() string {
	switch m {
	case ModeStrict:
		return "strict"
	case ModeLenient:
		return "lenient"
	default:
		return "unknown"
	}
}

// ParseMode converts a mode name into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "strict":
		return ModeStrict, nil
	case "lenient":
		return ModeLenient, nil
	default:
		return ModeStrict, fmt.Errorf("retrier: unknown registration mode %q", s)
	}
}

// Workflow is a resubmission target.
type Workflow interface {
	// Reprocess runs msg through the workflow again and returns its failure.
	Reprocess(ctx context.Context, msg *message.Message) error
}

// Registry maps workflow ids to workflows.
type Registry struct {
	mode   Mode
	logger log.Logger

	mu        sync.RWMutex
	workflows map[string]Workflow
}

// NewRegistry creates an empty registry.
func NewRegistry(mode Mode, logger log.Logger) *Registry {
	logger = log.OrNoop(logger)
	if mode == ModeLenient {
		logger.Warn("lenient workflow registration is deprecated, duplicate workflow ids will be rejected in a future release")
	}
	return &Registry{
		mode:      mode,
		logger:    logger,
		workflows: make(map[string]Workflow),
	}
}

// Mode returns the registration mode.
func (r *Registry) Mode() Mode {
	return r.mode
}

// Register adds wf under id.
func (r *Registry) Register(id string, wf Workflow) error {
	if id == "" {
		return ErrMissingWorkflowID
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.workflows[id]; ok {
		if r.mode == ModeStrict {
			return fmt.Errorf("%w: %s", ErrDuplicateWorkflow, id)
		}
		r.logger.Warn("duplicate workflow id, keeping first registrant", log.String("workflow", id))
		return nil
	}
	r.workflows[id] = wf
	return nil
}

// Lookup returns the workflow registered under id.
func (r *Registry) Lookup(id string) (Workflow, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	wf, ok := r.workflows[id]
	return wf, ok
}

// IDs returns all registered ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.workflows))
	for id := range r.workflows {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Retrier resubmits failed messages through a Registry.
type Retrier struct {
	registry *Registry
}

// New creates a Retrier over registry.
func New(registry *Registry) *Retrier {
	return &Retrier{registry: registry}
}

// Retry resubmits msg to the workflow named by its workflow id metadata.
func (r *Retrier) Retry(ctx context.Context, msg *message.Message) error {
	id := msg.WorkflowID()
	if id == "" {
		return ErrMissingWorkflowID
	}
	return r.Resubmit(ctx, id, msg)
}

// Resubmit sends msg to the workflow registered under workflowID.
func (r *Retrier) Resubmit(ctx context.Context, workflowID string, msg *message.Message) error {
	wf, ok := r.registry.Lookup(workflowID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownWorkflow, workflowID)
	}
	return wf.Reprocess(ctx, msg)
}
