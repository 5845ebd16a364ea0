package pipeline

import (
	"context"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/message"
)

// Listener receives what a consumer reads from its transport.
type Listener interface {
	// OnMessage processes one inbound message. Failures are handled by the
	// listener and never reach the consumer.
	OnMessage(ctx context.Context, msg *message.Message)
	// OnConnectionError reports that the consumer lost its transport.
	OnConnectionError(ctx context.Context, err error)
}

// Consumer reads messages from a transport and hands them to a Listener.
type Consumer interface {
	lifecycle.Component
	SetListener(l Listener)
}

// Producer delivers processed messages to a transport.
type Producer interface {
	lifecycle.Component
	Produce(ctx context.Context, msg *message.Message) error
}

// Service transforms a message. Returning a nil message drops it without error.
// A Service that also implements lifecycle.Component is managed by its ServiceList.
type Service interface {
	Process(ctx context.Context, msg *message.Message) (*message.Message, error)
}

// ServiceFunc adapts a function to Service.
type ServiceFunc func(ctx context.Context, msg *message.Message) (*message.Message, error)

// Process calls f.
func (f ServiceFunc) Process(ctx context.Context, msg *message.Message) (*message.Message, error) {
	return f(ctx, msg)
}

// ProduceFunc is the delivery function of a FuncProducer.
type ProduceFunc func(ctx context.Context, msg *message.Message) error

// FuncProducer adapts a function to Producer. It rejects messages unless started.
type FuncProducer struct {
	lifecycle.Machine
	produce ProduceFunc
}

// NewFuncProducer creates a producer named name that delivers with fn.
func NewFuncProducer(name string, fn ProduceFunc) *FuncProducer {
	p := &FuncProducer{produce: fn}
	p.Setup(name, lifecycle.NopHooks{})
	return p
}

// Produce implements Producer.
func (p *FuncProducer) Produce(ctx context.Context, msg *message.Message) error {
	if p.State() != lifecycle.StateStarted {
		return ErrNotStarted
	}
	return p.produce(ctx, msg)
}
