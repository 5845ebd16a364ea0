package connector

import (
	"context"

	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/message"
	"github.com/bft-labs/flowhost/pkg/pipeline"
)

// AddMetadata returns a service that sets key to value on every message.
func AddMetadata(key, value string) pipeline.Service {
	return pipeline.ServiceFunc(func(_ context.Context, m *message.Message) (*message.Message, error) {
		m.Set(key, value)
		return m, nil
	})
}

// LogService returns a service that logs every message at debug level and passes it on.
func LogService(name string, logger log.Logger) pipeline.Service {
	logger = log.OrNoop(logger)
	return pipeline.ServiceFunc(func(_ context.Context, m *message.Message) (*message.Message, error) {
		logger.Debug("message passing",
			log.Component(name),
			log.String("message_id", m.ID),
			log.Int("metadata", len(m.Metadata)),
		)
		return m, nil
	})
}
