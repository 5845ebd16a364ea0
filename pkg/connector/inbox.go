package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/message"
	"github.com/bft-labs/flowhost/pkg/pipeline"
)

// DefaultInboxSize is the buffer size of an Inbox created with size <= 0.
const DefaultInboxSize = 16

// Inbox is a push consumer. Messages handed to Send are delivered to the
// workflow on the inbox's own goroutine while it is started.
type Inbox struct {
	lifecycle.Machine

	queue chan *message.Message

	mu       sync.RWMutex
	listener pipeline.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

var _ pipeline.Consumer = (*Inbox)(nil)

// NewInbox creates an inbox with a buffer of size messages.
func NewInbox(name string, size int) *Inbox {
	if size <= 0 {
		size = DefaultInboxSize
	}
	in := &Inbox{queue: make(chan *message.Message, size)}
	in.Setup(name, inboxHooks{in})
	return in
}

// SetListener implements pipeline.Consumer.
func (in *Inbox) SetListener(l pipeline.Listener) {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.listener = l
}

// Send queues msg, blocking while the buffer is full.
func (in *Inbox) Send(ctx context.Context, msg *message.Message) error {
	if in.State() != lifecycle.StateStarted {
		return pipeline.ErrNotStarted
	}
	select {
	case in.queue <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of queued, undelivered messages.
func (in *Inbox) Pending() int {
	return len(in.queue)
}

func (in *Inbox) run(ctx context.Context, l pipeline.Listener, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-in.queue:
			l.OnMessage(ctx, msg)
		}
	}
}

type inboxHooks struct{ in *Inbox }

func (h inboxHooks) OnInit(context.Context) error {
	h.in.mu.RLock()
	defer h.in.mu.RUnlock()
	if h.in.listener == nil {
		return fmt.Errorf("%w: inbox %s has no listener", pipeline.ErrConfiguration, h.in.Name())
	}
	return nil
}

func (h inboxHooks) OnStart(ctx context.Context) error {
	in := h.in
	in.mu.Lock()
	defer in.mu.Unlock()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	in.cancel = cancel
	in.done = make(chan struct{})
	go in.run(runCtx, in.listener, in.done)
	return nil
}

func (h inboxHooks) OnStop(context.Context) error {
	in := h.in
	in.mu.Lock()
	cancel, done := in.cancel, in.done
	in.cancel, in.done = nil, nil
	in.mu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
	return nil
}

// OnClose drops anything still queued.
func (h inboxHooks) OnClose(context.Context) error {
	for {
		select {
		case <-h.in.queue:
		default:
			return nil
		}
	}
}
