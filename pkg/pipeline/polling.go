package pipeline

import (
	"context"
	"sync"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/message"
	"github.com/bft-labs/flowhost/pkg/poll"
)

// Poller fetches the next batch of messages from a transport.
type Poller interface {
	Poll(ctx context.Context) ([]*message.Message, error)
}

// PollingConsumer turns a Poller into a Consumer. Polls run on a
// poll.Scheduler guarded by a poll.Gate, so at most one poll is in flight.
// Poll errors are reported to the listener as connection errors.
type PollingConsumer struct {
	lifecycle.Machine

	poller   Poller
	cfg      poll.SchedulerConfig
	gate     poll.Gate
	observer poll.Observer

	mu        sync.RWMutex
	listener  Listener
	scheduler *poll.Scheduler
}

// PollingOption configures a PollingConsumer.
type PollingOption func(*PollingConsumer)

// WithPollObserver reports every poll trigger to o.
func WithPollObserver(o poll.Observer) PollingOption {
	return func(c *PollingConsumer) {
		c.observer = o
	}
}

// NewPollingConsumer creates a consumer polling p according to cfg.
// cfg.Name defaults to name.
func NewPollingConsumer(name string, p Poller, cfg poll.SchedulerConfig, opts ...PollingOption) *PollingConsumer {
	if cfg.Name == "" {
		cfg.Name = name
	}
	c := &PollingConsumer{poller: p, cfg: cfg}
	for _, opt := range opts {
		opt(c)
	}
	c.Setup(name, pollingHooks{c})
	return c
}

// SetListener implements Consumer.
func (c *PollingConsumer) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

// Gate returns the consumer's poll gate.
func (c *PollingConsumer) Gate() *poll.Gate {
	return &c.gate
}

func (c *PollingConsumer) currentListener() Listener {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.listener
}

func (c *PollingConsumer) pollOnce(ctx context.Context) error {
	msgs, err := c.poller.Poll(ctx)
	if err != nil {
		return err
	}
	l := c.currentListener()
	for _, msg := range msgs {
		if ctx.Err() != nil {
			return nil
		}
		l.OnMessage(ctx, msg)
	}
	return nil
}

func (c *PollingConsumer) onPollError(ctx context.Context, err error) {
	if l := c.currentListener(); l != nil {
		l.OnConnectionError(ctx, err)
	}
}

type pollingHooks struct{ c *PollingConsumer }

func (h pollingHooks) OnInit(context.Context) error {
	c := h.c
	if c.currentListener() == nil {
		return configError("consumer %s has no listener", c.Name())
	}
	if c.cfg.Interval <= 0 {
		return configError("consumer %s: poll interval must be positive", c.Name())
	}
	var opts []poll.SchedulerOption
	if c.observer != nil {
		opts = append(opts, poll.WithObserver(c.observer))
	}
	s := poll.NewScheduler(c.cfg, &c.gate, c.pollOnce, c.onPollError, c.Logger(), opts...)

	c.mu.Lock()
	c.scheduler = s
	c.mu.Unlock()
	return nil
}

func (h pollingHooks) OnStart(ctx context.Context) error {
	// Polling outlives the request that started it.
	return h.scheduler().Start(context.WithoutCancel(ctx))
}

func (h pollingHooks) OnStop(context.Context) error {
	if err := h.scheduler().Stop(); err != nil {
		h.c.Logger().Warn("poll still running after stop", log.Component(h.c.Name()), log.Err(err))
		return err
	}
	return nil
}

func (h pollingHooks) OnClose(ctx context.Context) error {
	if closer, ok := h.c.poller.(interface{ Close(context.Context) error }); ok {
		return closer.Close(ctx)
	}
	return nil
}

func (h pollingHooks) scheduler() *poll.Scheduler {
	h.c.mu.RLock()
	defer h.c.mu.RUnlock()
	return h.c.scheduler
}
