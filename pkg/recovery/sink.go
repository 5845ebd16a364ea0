package recovery

import (
	"context"

	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/message"
)

// FailureSink accepts messages that failed permanently.
type FailureSink interface {
	Accept(ctx context.Context, msg *message.Message, cause error)
}

// SinkFunc adapts a function to FailureSink.
type SinkFunc func(ctx context.Context, msg *message.Message, cause error)

// Accept calls f.
func (f SinkFunc) Accept(ctx context.Context, msg *message.Message, cause error) {
	f(ctx, msg, cause)
}

// LogSink records failed messages in the log and drops them.
type LogSink struct {
	Logger log.Logger
}

// Accept logs msg at error level.
func (s LogSink) Accept(_ context.Context, msg *message.Message, cause error) {
	log.OrNoop(s.Logger).Error("message failed permanently",
		log.String("message_id", msg.ID),
		log.String("workflow", msg.WorkflowID()),
		log.Int("payload_bytes", len(msg.Payload)),
		log.Err(cause),
	)
}
