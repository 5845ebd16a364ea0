package recovery

import (
	"context"
	"errors"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/message"
)

// Restart targets.
const (
	TargetWorkflow = "workflow"
	TargetChannel  = "channel"
)

// Restart outcomes.
const (
	RestartSucceeded = "succeeded"
	RestartFailed    = "failed"
	RestartRejected  = "rejected"
	RestartSkipped   = "skipped"
)

// ErrRestartSkipped is passed to a restart's completion callback when the
// target's parent was no longer started.
var ErrRestartSkipped = errors.New("restart skipped: parent not started")

// ProduceFailure describes a producer failing to deliver a message.
type ProduceFailure struct {
	// Workflow is the workflow whose producer failed.
	Workflow lifecycle.Requester
	// Channel is the workflow's channel. It may be nil for a detached workflow.
	Channel Channel
	// Owner is the component holding Channel, usually the adapter. It may be nil.
	Owner   lifecycle.Requester
	Message *message.Message
	Err     error
}

// ProduceExceptionHandler reacts to produce failures. It is invoked
// synchronously by the workflow and must not block on the restart itself.
type ProduceExceptionHandler interface {
	HandleProduceFailure(ctx context.Context, f ProduceFailure)
}

// RestartObserver receives one call per restart outcome.
type RestartObserver interface {
	ObserveRestart(target, outcome string)
}

type restarter struct {
	exec     Executor
	logger   log.Logger
	observer RestartObserver
}

// submit schedules a restart of target. The restart only runs while parent,
// if not nil, is started; a parent stopped in the meantime has stopped the
// target too and the restart would revive it. done, if not nil, runs after
// the restart with its result, or with the submit error if it could not be
// scheduled.
func (r restarter) submit(target string, c, parent lifecycle.Requester, done func(error)) {
	err := r.exec.Submit("restart "+target+" "+c.Name(), func(ctx context.Context) error {
		err := r.restart(ctx, target, c, parent)
		if done != nil {
			done(err)
		}
		if errors.Is(err, ErrRestartSkipped) {
			return nil
		}
		return err
	})
	if err != nil {
		r.logger.Error("failed to schedule restart",
			log.String("target", target),
			log.Component(c.Name()),
			log.Err(err),
		)
		r.observe(target, RestartRejected)
		if done != nil {
			done(err)
		}
	}
}

func (r restarter) restart(ctx context.Context, target string, c, parent lifecycle.Requester) error {
	if !parentStarted(parent) {
		r.skipped(target, c, parent)
		return ErrRestartSkipped
	}
	if err := lifecycle.Restart(ctx, c); err != nil {
		r.observe(target, RestartFailed)
		return err
	}
	// The parent may have stopped while the restart ran; its cascade could
	// have reached c before c was started again.
	if !parentStarted(parent) {
		_ = c.Request(ctx, lifecycle.RequestStop)
		r.skipped(target, c, parent)
		return ErrRestartSkipped
	}
	r.logger.Info("restart completed", log.String("target", target), log.Component(c.Name()))
	r.observe(target, RestartSucceeded)
	return nil
}

func (r restarter) skipped(target string, c, parent lifecycle.Requester) {
	r.logger.Info("parent not started, restart skipped",
		log.String("target", target),
		log.Component(c.Name()),
		log.String("parent", parent.Name()),
		log.String("parent_state", parent.State().String()),
	)
	r.observe(target, RestartSkipped)
}

func parentStarted(parent lifecycle.Requester) bool {
	return parent == nil || parent.State() == lifecycle.StateStarted
}

func (r restarter) observe(target, outcome string) {
	if r.observer != nil {
		r.observer.ObserveRestart(target, outcome)
	}
}

// HandlerOption configures a restart handler.
type HandlerOption func(*restarter)

// WithRestartObserver reports restart outcomes to o.
func WithRestartObserver(o RestartObserver) HandlerOption {
	return func(r *restarter) {
		r.observer = o
	}
}

func newRestarter(exec Executor, logger log.Logger, opts []HandlerOption) restarter {
	r := restarter{exec: exec, logger: log.OrNoop(logger)}
	for _, opt := range opts {
		opt(&r)
	}
	return r
}

// RestartWorkflowHandler restarts the failing workflow. The restart is
// skipped when the workflow's channel is no longer started.
type RestartWorkflowHandler struct {
	r restarter
}

// NewRestartWorkflowHandler creates a handler that restarts workflows on exec.
func NewRestartWorkflowHandler(exec Executor, logger log.Logger, opts ...HandlerOption) *RestartWorkflowHandler {
	return &RestartWorkflowHandler{r: newRestarter(exec, logger, opts)}
}

// HandleProduceFailure implements ProduceExceptionHandler.
func (h *RestartWorkflowHandler) HandleProduceFailure(_ context.Context, f ProduceFailure) {
	h.r.logger.Warn("produce failed, restarting workflow",
		log.Component(f.Workflow.Name()),
		log.Err(f.Err),
	)
	h.r.submit(TargetWorkflow, f.Workflow, f.Channel, nil)
}

// RestartChannelHandler restarts the whole channel of the failing workflow.
// The channel is marked unavailable before the restart is scheduled; a
// failure on an already unavailable channel is ignored, so concurrent
// failures trigger a single restart. The channel becomes available again
// when it starts. The restart is skipped when the channel's owner is no
// longer started.
type RestartChannelHandler struct {
	r restarter
}

// NewRestartChannelHandler creates a handler that restarts channels on exec.
func NewRestartChannelHandler(exec Executor, logger log.Logger, opts ...HandlerOption) *RestartChannelHandler {
	return &RestartChannelHandler{r: newRestarter(exec, logger, opts)}
}

// HandleProduceFailure implements ProduceExceptionHandler.
func (h *RestartChannelHandler) HandleProduceFailure(_ context.Context, f ProduceFailure) {
	ch := f.Channel
	if ch == nil {
		h.r.logger.Error("produce failed on a workflow without channel",
			log.Component(f.Workflow.Name()),
			log.Err(f.Err),
		)
		return
	}
	if !ch.MarkUnavailable() {
		h.r.logger.Debug("channel already unavailable, skipping restart", log.Component(ch.Name()))
		return
	}

	h.r.logger.Warn("produce failed, restarting channel",
		log.Component(ch.Name()),
		log.String("workflow", f.Workflow.Name()),
		log.Err(f.Err),
	)
	h.r.submit(TargetChannel, ch, f.Owner, func(err error) {
		// A rejected submit leaves the channel running; keep it usable.
		if err != nil && ch.State() == lifecycle.StateStarted {
			ch.MarkAvailable()
		}
	})
}

// NullProduceExceptionHandler only logs the failure.
type NullProduceExceptionHandler struct {
	Logger log.Logger
}

// HandleProduceFailure implements ProduceExceptionHandler.
func (h NullProduceExceptionHandler) HandleProduceFailure(_ context.Context, f ProduceFailure) {
	log.OrNoop(h.Logger).Warn("produce failed",
		log.Component(f.Workflow.Name()),
		log.Err(f.Err),
	)
}
