package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/message"
	"github.com/bft-labs/flowhost/pkg/recovery"
	"github.com/bft-labs/flowhost/pkg/retrier"
)

// AdapterConfig describes an adapter.
type AdapterConfig struct {
	Name             string
	RegistrationMode retrier.Mode
	Retry            recovery.RetryConfig

	// RetryFailedMessages makes the retry store the default processing
	// error handler. Otherwise failed messages go straight to Sink.
	RetryFailedMessages bool
	// Sink receives permanently failed messages. Defaults to recovery.LogSink.
	Sink recovery.FailureSink

	// Default handlers for workflows that do not configure their own.
	ProcessingErrorHandler  recovery.ProcessingErrorHandler
	ProduceExceptionHandler recovery.ProduceExceptionHandler
}

// Adapter is the root of a flowhost topology. It owns the channels, the
// workflow registry and the retry store.
type Adapter struct {
	lifecycle.Container

	cfg     AdapterConfig
	retries *recovery.RetryStore

	mu       sync.RWMutex
	channels []*Channel
	retrier  *retrier.Retrier
	registry *retrier.Registry
}

var _ ChannelLookup = (*Adapter)(nil)

// AdapterOption configures optional Adapter behaviour.
type AdapterOption func(*adapterOptions)

type adapterOptions struct {
	logger        log.Logger
	emitter       lifecycle.EventEmitter
	retryObserver recovery.RetryObserver
}

// WithLogger sets the logger used by the adapter and everything it owns.
func WithLogger(l log.Logger) AdapterOption {
	return func(o *adapterOptions) {
		o.logger = l
	}
}

// WithEventEmitter reports every state change in the topology to e.
func WithEventEmitter(e lifecycle.EventEmitter) AdapterOption {
	return func(o *adapterOptions) {
		o.emitter = e
	}
}

// WithRetryObserver reports retry store measurements to o.
func WithRetryObserver(o recovery.RetryObserver) AdapterOption {
	return func(opts *adapterOptions) {
		opts.retryObserver = o
	}
}

// NewAdapter creates an adapter without channels.
func NewAdapter(cfg AdapterConfig, opts ...AdapterOption) (*Adapter, error) {
	if cfg.Name == "" {
		return nil, configError("adapter without name")
	}
	var o adapterOptions
	for _, opt := range opts {
		opt(&o)
	}

	a := &Adapter{cfg: cfg}
	a.Setup(cfg.Name, adapterHooks{a})
	a.Observe(o.logger, o.emitter)

	if a.cfg.Sink == nil {
		a.cfg.Sink = recovery.LogSink{Logger: a.Logger()}
	}
	var storeOpts []recovery.RetryOption
	if o.retryObserver != nil {
		storeOpts = append(storeOpts, recovery.WithRetryObserver(o.retryObserver))
	}
	a.retries = recovery.NewRetryStore(cfg.Retry, a, a.cfg.Sink, a.Logger(), storeOpts...)

	if a.cfg.ProcessingErrorHandler == nil {
		if cfg.RetryFailedMessages {
			a.cfg.ProcessingErrorHandler = recovery.RetryMessageErrorHandler{Store: a.retries, Logger: a.Logger()}
		} else {
			a.cfg.ProcessingErrorHandler = recovery.StandardErrorHandler{Sink: a.cfg.Sink}
		}
	}
	if a.cfg.ProduceExceptionHandler == nil {
		a.cfg.ProduceExceptionHandler = recovery.NullProduceExceptionHandler{Logger: a.Logger()}
	}
	return a, nil
}

// AddChannel appends a channel to the adapter.
func (a *Adapter) AddChannel(ch *Channel) error {
	if err := a.Add(ch); err != nil {
		return configError("adapter %s: %v", a.Name(), err)
	}
	ch.bind(a)

	a.mu.Lock()
	defer a.mu.Unlock()
	a.channels = append(a.channels, ch)
	return nil
}

// Channels returns the adapter's channels in insertion order.
func (a *Adapter) Channels() []*Channel {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Channel, len(a.channels))
	copy(out, a.channels)
	return out
}

// LookupChannel implements ChannelLookup.
func (a *Adapter) LookupChannel(name string) (*Channel, bool) {
	for _, ch := range a.Channels() {
		if ch.Name() == name {
			return ch, true
		}
	}
	return nil, false
}

// RequestChannel transitions a single channel without touching the adapter state.
func (a *Adapter) RequestChannel(ctx context.Context, name string, req lifecycle.Request) error {
	return a.RequestChildByName(ctx, name, req)
}

// RetryStore returns the adapter's retry store.
func (a *Adapter) RetryStore() *recovery.RetryStore {
	return a.retries
}

// Registry returns the workflow registry built by the last init, or nil.
func (a *Adapter) Registry() *retrier.Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.registry
}

// Retry implements recovery.Resubmitter by routing msg to its workflow.
func (a *Adapter) Retry(ctx context.Context, msg *message.Message) error {
	a.mu.RLock()
	r := a.retrier
	a.mu.RUnlock()
	if r == nil {
		return ErrNotStarted
	}
	return r.Retry(ctx, msg)
}

// buildRegistry hands default handlers to the workflows and registers them by id.
func (a *Adapter) buildRegistry() error {
	registry := retrier.NewRegistry(a.cfg.RegistrationMode, a.Logger())
	for _, ch := range a.Channels() {
		for _, w := range ch.Workflows() {
			w.inherit(a.cfg.ProcessingErrorHandler, a.cfg.ProduceExceptionHandler)
			if err := registry.Register(w.ID(), w); err != nil {
				return fmt.Errorf("%w: %w", ErrConfiguration, err)
			}
		}
	}

	a.mu.Lock()
	a.registry = registry
	a.retrier = retrier.New(registry)
	a.mu.Unlock()
	return nil
}

type adapterHooks struct{ a *Adapter }

func (h adapterHooks) OnInit(context.Context) error {
	return h.a.buildRegistry()
}

func (h adapterHooks) OnStart(ctx context.Context) error {
	h.a.retries.Start(context.WithoutCancel(ctx))
	return nil
}

// OnStop runs after every channel has stopped. Waiting messages can no
// longer be delivered, so they are failed.
func (h adapterHooks) OnStop(ctx context.Context) error {
	h.a.retries.Stop()
	h.a.retries.FailAll(ctx)
	return nil
}

func (h adapterHooks) OnClose(context.Context) error {
	return nil
}
