package pipeline

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/recovery"
)

// ChannelConfig describes a channel.
type ChannelConfig struct {
	Name string
	// Connection is an optional transport shared by the channel's workflows.
	// It starts before and stops after every workflow.
	Connection lifecycle.Component
	// ConnectionErrorHandler defaults to a recovery.CloseOnErrorHandler
	// closing the channel on its own goroutine.
	ConnectionErrorHandler recovery.ConnectionErrorHandler
}

// Channel groups workflows that share a connection. A channel is available
// while it is started and no failure has taken it out of service.
type Channel struct {
	lifecycle.Container

	available  atomic.Bool
	connection lifecycle.Component
	connErrors recovery.ConnectionErrorHandler

	mu        sync.RWMutex
	workflows []*Workflow
	lookup    ChannelLookup
}

var _ recovery.Channel = (*Channel)(nil)

// NewChannel creates a channel.
func NewChannel(cfg ChannelConfig) (*Channel, error) {
	if cfg.Name == "" {
		return nil, configError("channel without name")
	}
	ch := &Channel{
		connection: cfg.Connection,
		connErrors: cfg.ConnectionErrorHandler,
	}
	ch.Setup(cfg.Name, channelHooks{ch})
	if ch.connErrors == nil {
		ch.connErrors = recovery.NewCloseOnErrorHandler(recovery.GoExecutor{}, nil)
	}
	ch.connErrors.Register(ch)

	if cfg.Connection != nil {
		if err := ch.Add(cfg.Connection); err != nil {
			return nil, configError("channel %s: %v", cfg.Name, err)
		}
	}
	return ch, nil
}

// AddWorkflow appends a workflow to the channel.
func (ch *Channel) AddWorkflow(w *Workflow) error {
	if err := ch.Add(w); err != nil {
		return configError("channel %s: %v", ch.Name(), err)
	}
	w.attach(ch.Name())

	ch.mu.Lock()
	ch.workflows = append(ch.workflows, w)
	lookup := ch.lookup
	ch.mu.Unlock()

	if lookup != nil {
		w.setLookup(lookup)
	}
	return nil
}

// Workflows returns the channel's workflows in insertion order.
func (ch *Channel) Workflows() []*Workflow {
	ch.mu.RLock()
	defer ch.mu.RUnlock()
	out := make([]*Workflow, len(ch.workflows))
	copy(out, ch.workflows)
	return out
}

// Workflow returns the workflow with the given name.
func (ch *Channel) Workflow(name string) (*Workflow, bool) {
	for _, w := range ch.Workflows() {
		if w.Name() == name {
			return w, true
		}
	}
	return nil, false
}

// RequestWorkflow transitions a single workflow without touching the channel state.
func (ch *Channel) RequestWorkflow(ctx context.Context, name string, req lifecycle.Request) error {
	return ch.RequestChildByName(ctx, name, req)
}

// Available reports whether the channel is accepting work.
func (ch *Channel) Available() bool {
	return ch.available.Load()
}

// MarkAvailable implements recovery.Channel.
func (ch *Channel) MarkAvailable() {
	ch.available.Store(true)
}

// MarkUnavailable implements recovery.Channel.
func (ch *Channel) MarkUnavailable() bool {
	return ch.available.Swap(false)
}

func (ch *Channel) bind(lookup ChannelLookup) {
	ch.mu.Lock()
	ch.lookup = lookup
	workflows := ch.workflows
	ch.mu.Unlock()
	for _, w := range workflows {
		w.setLookup(lookup)
	}
}

func (ch *Channel) handleConnectionError(ctx context.Context, err error) {
	ch.Logger().Warn("connection error reported", log.Component(ch.Name()), log.Err(err))
	ch.connErrors.HandleConnectionError(ctx, err)
}

type channelHooks struct{ ch *Channel }

func (h channelHooks) OnInit(context.Context) error { return nil }

func (h channelHooks) OnStart(context.Context) error {
	h.ch.MarkAvailable()
	return nil
}

func (h channelHooks) OnStop(context.Context) error {
	h.ch.MarkUnavailable()
	return nil
}

func (h channelHooks) OnClose(context.Context) error {
	h.ch.MarkUnavailable()
	return nil
}
