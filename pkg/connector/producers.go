package connector

import (
	"context"
	"sync"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/message"
	"github.com/bft-labs/flowhost/pkg/pipeline"
)

// NewLogProducer returns a producer that logs every message at info level.
func NewLogProducer(name string, logger log.Logger) *pipeline.FuncProducer {
	logger = log.OrNoop(logger)
	return pipeline.NewFuncProducer(name, func(_ context.Context, m *message.Message) error {
		logger.Info("message produced",
			log.Component(name),
			log.String("message_id", m.ID),
			log.String("workflow", m.WorkflowID()),
			log.String("payload", string(m.Payload)),
		)
		return nil
	})
}

// NewDiscardProducer returns a producer that drops every message.
func NewDiscardProducer(name string) *pipeline.FuncProducer {
	return pipeline.NewFuncProducer(name, func(context.Context, *message.Message) error {
		return nil
	})
}

// CaptureProducer keeps every produced message in memory.
type CaptureProducer struct {
	lifecycle.Machine

	mu       sync.Mutex
	messages []*message.Message
	fail     error
}

var _ pipeline.Producer = (*CaptureProducer)(nil)

// NewCaptureProducer creates a capture producer.
func NewCaptureProducer(name string) *CaptureProducer {
	p := &CaptureProducer{}
	p.Setup(name, lifecycle.NopHooks{})
	return p
}

// Produce implements pipeline.Producer.
func (p *CaptureProducer) Produce(_ context.Context, m *message.Message) error {
	if p.State() != lifecycle.StateStarted {
		return pipeline.ErrNotStarted
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.messages = append(p.messages, m)
	return nil
}

// FailWith makes every following Produce return err. A nil err clears it.
func (p *CaptureProducer) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

// Messages returns the captured messages.
func (p *CaptureProducer) Messages() []*message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*message.Message, len(p.messages))
	copy(out, p.messages)
	return out
}
