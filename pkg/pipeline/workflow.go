package pipeline

import (
	"context"
	"sync"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/message"
	"github.com/bft-labs/flowhost/pkg/recovery"
)

// ChannelLookup resolves a channel by name.
type ChannelLookup interface {
	LookupChannel(name string) (*Channel, bool)
}

// WorkflowConfig describes a workflow.
type WorkflowConfig struct {
	Name string
	// ID is the key used to route retried messages back to the workflow.
	// Defaults to "<name>@<channel>" when the workflow joins a channel.
	ID       string
	Consumer Consumer
	Services []Service
	Producer Producer

	// Handlers left nil are inherited from the adapter.
	ProcessingErrorHandler  recovery.ProcessingErrorHandler
	ProduceExceptionHandler recovery.ProduceExceptionHandler
}

// Workflow moves messages from its consumer through its services to its producer.
type Workflow struct {
	lifecycle.Container

	consumer Consumer
	services *ServiceList
	producer Producer

	mu         sync.RWMutex
	id         string
	channel    string
	lookup     ChannelLookup
	processing recovery.ProcessingErrorHandler
	produce    recovery.ProduceExceptionHandler
}

// NewWorkflow validates cfg and assembles the workflow.
func NewWorkflow(cfg WorkflowConfig) (*Workflow, error) {
	if cfg.Name == "" {
		return nil, configError("workflow without name")
	}
	if cfg.Consumer == nil {
		return nil, configError("workflow %s: no consumer", cfg.Name)
	}
	if cfg.Producer == nil {
		return nil, configError("workflow %s: no producer", cfg.Name)
	}

	services, err := NewServiceList(cfg.Name+"/services", cfg.Services...)
	if err != nil {
		return nil, err
	}

	w := &Workflow{
		consumer:   cfg.Consumer,
		services:   services,
		producer:   cfg.Producer,
		id:         cfg.ID,
		processing: cfg.ProcessingErrorHandler,
		produce:    cfg.ProduceExceptionHandler,
	}
	w.Setup(cfg.Name, nil)

	// The consumer goes last: it starts once everything downstream is up
	// and stops before anything downstream goes away.
	for _, c := range []lifecycle.Component{cfg.Producer, services, cfg.Consumer} {
		if err := w.Add(c); err != nil {
			return nil, configError("workflow %s: %v", cfg.Name, err)
		}
	}
	cfg.Consumer.SetListener(w)
	return w, nil
}

// ID returns the workflow id.
func (w *Workflow) ID() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.id
}

// ChannelName returns the name of the channel the workflow belongs to.
func (w *Workflow) ChannelName() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.channel
}

// Services returns the workflow's service list.
func (w *Workflow) Services() *ServiceList {
	return w.services
}

// attach records the owning channel and defaults the id.
func (w *Workflow) attach(channel string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.channel = channel
	if w.id == "" {
		w.id = w.Name() + "@" + channel
	}
}

func (w *Workflow) setLookup(l ChannelLookup) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lookup = l
}

// inherit installs handlers for the ones the workflow does not configure itself.
func (w *Workflow) inherit(processing recovery.ProcessingErrorHandler, produce recovery.ProduceExceptionHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processing == nil {
		w.processing = processing
	}
	if w.produce == nil {
		w.produce = produce
	}
}

func (w *Workflow) handlers() (recovery.ProcessingErrorHandler, recovery.ProduceExceptionHandler) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.processing, w.produce
}

// resolveChannel returns the owning channel, or nil if it cannot be resolved.
func (w *Workflow) resolveChannel() *Channel {
	w.mu.RLock()
	lookup, name := w.lookup, w.channel
	w.mu.RUnlock()
	if lookup == nil || name == "" {
		return nil
	}
	ch, ok := lookup.LookupChannel(name)
	if !ok {
		return nil
	}
	return ch
}

// owner returns the component the workflow's channel belongs to, or nil.
func (w *Workflow) owner() lifecycle.Requester {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if r, ok := w.lookup.(lifecycle.Requester); ok {
		return r
	}
	return nil
}

// OnMessage implements Listener. The message is stamped with the workflow
// id, and any failure goes to the processing error handler.
func (w *Workflow) OnMessage(ctx context.Context, msg *message.Message) {
	if !msg.Has(message.WorkflowIDKey) {
		msg.Set(message.WorkflowIDKey, w.ID())
	}
	err := w.process(ctx, msg)
	if err == nil {
		return
	}

	processing, _ := w.handlers()
	if processing == nil {
		w.Logger().Error("message failed without processing error handler",
			log.Component(w.Name()),
			log.String("message_id", msg.ID),
			log.Err(err),
		)
		return
	}
	processing.HandleProcessingError(ctx, msg, err)
}

// Reprocess runs msg through the workflow again and returns its failure
// instead of handing it to the processing error handler.
func (w *Workflow) Reprocess(ctx context.Context, msg *message.Message) error {
	return w.process(ctx, msg)
}

// OnConnectionError implements Listener.
func (w *Workflow) OnConnectionError(ctx context.Context, err error) {
	ch := w.resolveChannel()
	if ch == nil {
		w.Logger().Error("connection error outside a channel", log.Component(w.Name()), log.Err(err))
		return
	}
	ch.handleConnectionError(ctx, err)
}

func (w *Workflow) process(ctx context.Context, msg *message.Message) error {
	out, err := w.services.Process(ctx, msg)
	if err != nil || out == nil {
		return err
	}

	if err := w.producer.Produce(ctx, out); err != nil {
		w.produceFailed(ctx, out, err)
		return &ProduceError{Workflow: w.ID(), Err: err}
	}
	return nil
}

func (w *Workflow) produceFailed(ctx context.Context, msg *message.Message, err error) {
	_, produce := w.handlers()
	if produce == nil {
		return
	}
	f := recovery.ProduceFailure{Workflow: w, Message: msg, Err: err}
	if ch := w.resolveChannel(); ch != nil {
		f.Channel = ch
		f.Owner = w.owner()
	}
	produce.HandleProduceFailure(ctx, f)
}
