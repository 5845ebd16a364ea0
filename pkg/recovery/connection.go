package recovery

import (
	"context"
	"sync"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/worker"
)

// Channel is the part of a pipeline channel the recovery handlers act on.
type Channel interface {
	lifecycle.Requester

	// Available reports whether the channel is accepting work.
	Available() bool
	// MarkAvailable flags the channel as accepting work.
	MarkAvailable()
	// MarkUnavailable flags the channel as not accepting work and reports
	// whether it was available before the call.
	MarkUnavailable() bool
}

// Executor runs tasks asynchronously. *worker.Pool implements it.
type Executor interface {
	Submit(name string, task worker.Task) error
}

// ConnectionErrorHandler reacts to a transport reporting a lost connection.
type ConnectionErrorHandler interface {
	// Register adds a channel affected by this handler's connection.
	Register(ch Channel)
	// HandleConnectionError handles err for every registered channel.
	HandleConnectionError(ctx context.Context, err error)
}

type channelSet struct {
	mu       sync.Mutex
	channels []Channel
}

func (s *channelSet) Register(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.channels {
		if c == ch {
			return
		}
	}
	s.channels = append(s.channels, ch)
}

func (s *channelSet) snapshot() []Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Channel, len(s.channels))
	copy(out, s.channels)
	return out
}

// CloseOnErrorHandler marks every registered channel unavailable and closes it.
//
// Connection errors are usually reported from a transport goroutine that the
// channel itself waits for while closing, so the close always runs on the
// executor and never on the caller's goroutine.
type CloseOnErrorHandler struct {
	channelSet
	exec   Executor
	logger log.Logger
}

// NewCloseOnErrorHandler creates a close-on-error handler. A nil exec
// defaults to GoExecutor.
func NewCloseOnErrorHandler(exec Executor, logger log.Logger) *CloseOnErrorHandler {
	if exec == nil {
		exec = GoExecutor{}
	}
	return &CloseOnErrorHandler{exec: exec, logger: log.OrNoop(logger)}
}

// HandleConnectionError implements ConnectionErrorHandler.
func (h *CloseOnErrorHandler) HandleConnectionError(_ context.Context, err error) {
	for _, ch := range h.snapshot() {
		ch.MarkUnavailable()
		h.logger.Warn("connection error, closing channel",
			log.Component(ch.Name()),
			log.Err(err),
		)

		if serr := h.exec.Submit("close "+ch.Name(), func(ctx context.Context) error {
			h.closeChannel(ctx, ch)
			return nil
		}); serr != nil {
			h.logger.Error("failed to schedule channel close", log.Component(ch.Name()), log.Err(serr))
		}
	}
}

func (h *CloseOnErrorHandler) closeChannel(ctx context.Context, ch Channel) {
	if err := ch.Request(ctx, lifecycle.RequestClose); err != nil {
		h.logger.Warn("channel close reported errors", log.Component(ch.Name()), log.Err(err))
	}
}

// NullConnectionErrorHandler ignores the error and keeps every registered
// channel marked available.
type NullConnectionErrorHandler struct {
	channelSet
	logger log.Logger
}

// NewNullConnectionErrorHandler creates a null connection error handler.
func NewNullConnectionErrorHandler(logger log.Logger) *NullConnectionErrorHandler {
	return &NullConnectionErrorHandler{logger: log.OrNoop(logger)}
}

// HandleConnectionError implements ConnectionErrorHandler.
func (h *NullConnectionErrorHandler) HandleConnectionError(_ context.Context, err error) {
	for _, ch := range h.snapshot() {
		ch.MarkAvailable()
	}
	h.logger.Debug("connection error ignored", log.Err(err))
}

// GoExecutor runs every task on a new goroutine. Task errors are dropped.
type GoExecutor struct{}

// Submit implements Executor.
func (GoExecutor) Submit(_ string, task worker.Task) error {
	go func() {
		_ = task(context.Background())
	}()
	return nil
}
