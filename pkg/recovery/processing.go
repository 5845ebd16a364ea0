package recovery

import (
	"context"
	"errors"

	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/message"
)

// ProcessingErrorHandler captures the failure of a single message.
type ProcessingErrorHandler interface {
	HandleProcessingError(ctx context.Context, msg *message.Message, err error)
}

// StandardErrorHandler forwards failed messages straight to a sink.
type StandardErrorHandler struct {
	Sink FailureSink
}

// HandleProcessingError implements ProcessingErrorHandler.
func (h StandardErrorHandler) HandleProcessingError(ctx context.Context, msg *message.Message, err error) {
	h.Sink.Accept(ctx, msg, err)
}

// RetryMessageErrorHandler parks failed messages in a RetryStore. Messages the
// store does not accept go straight to the store's sink.
type RetryMessageErrorHandler struct {
	Store  *RetryStore
	Logger log.Logger
}

// HandleProcessingError implements ProcessingErrorHandler.
func (h RetryMessageErrorHandler) HandleProcessingError(ctx context.Context, msg *message.Message, err error) {
	addErr := h.Store.Add(msg, err)
	if addErr == nil {
		return
	}
	if errors.Is(addErr, ErrStoreStopped) {
		log.OrNoop(h.Logger).Warn("retry store stopped, failing message",
			log.String("message_id", msg.ID),
		)
	}
	h.Store.sink.Accept(ctx, msg, err)
}
