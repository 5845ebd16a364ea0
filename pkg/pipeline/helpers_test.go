package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/message"
	"github.com/bft-labs/flowhost/pkg/recovery"
)

// journal records lifecycle calls across components.
type journal struct {
	mu    sync.Mutex
	calls []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, s)
}

func (j *journal) snapshot() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]string, len(j.calls))
	copy(out, j.calls)
	return out
}

func (j *journal) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = nil
}

type journalHooks struct {
	name string
	j    *journal
}

func (h journalHooks) OnInit(context.Context) error  { h.add("init"); return nil }
func (h journalHooks) OnStart(context.Context) error { h.add("start"); return nil }
func (h journalHooks) OnStop(context.Context) error  { h.add("stop"); return nil }
func (h journalHooks) OnClose(context.Context) error { h.add("close"); return nil }

func (h journalHooks) add(step string) {
	if h.j != nil {
		h.j.add(h.name + ":" + step)
	}
}

// pushConsumer delivers whatever the test hands it.
type pushConsumer struct {
	lifecycle.Machine
	mu       sync.Mutex
	listener Listener
}

func newPushConsumer(name string, j *journal) *pushConsumer {
	c := &pushConsumer{}
	c.Setup(name, journalHooks{name: name, j: j})
	return c
}

func (c *pushConsumer) SetListener(l Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listener = l
}

func (c *pushConsumer) deliver(ctx context.Context, msg *message.Message) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	l.OnMessage(ctx, msg)
}

func (c *pushConsumer) lose(ctx context.Context, err error) {
	c.mu.Lock()
	l := c.listener
	c.mu.Unlock()
	l.OnConnectionError(ctx, err)
}

// captureProducer records produced messages and fails while failures > 0.
type captureProducer struct {
	lifecycle.Machine
	mu       sync.Mutex
	produced []*message.Message
	failures int
}

var errProduce = errors.New("downstream unavailable")

func newCaptureProducer(name string, j *journal) *captureProducer {
	p := &captureProducer{}
	p.Setup(name, journalHooks{name: name, j: j})
	return p
}

func (p *captureProducer) Produce(_ context.Context, msg *message.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures != 0 {
		if p.failures > 0 {
			p.failures--
		}
		return errProduce
	}
	p.produced = append(p.produced, msg)
	return nil
}

func (p *captureProducer) setFailures(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures = n
}

func (p *captureProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.produced)
}

func (p *captureProducer) last() *message.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.produced) == 0 {
		return nil
	}
	return p.produced[len(p.produced)-1]
}

type recordingProcessing struct {
	mu   sync.Mutex
	errs []error
}

func (r *recordingProcessing) HandleProcessingError(_ context.Context, _ *message.Message, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func (r *recordingProcessing) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

type recordingProduce struct {
	mu       sync.Mutex
	failures []recovery.ProduceFailure
}

func (r *recordingProduce) HandleProduceFailure(_ context.Context, f recovery.ProduceFailure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

type recordingSink struct {
	mu   sync.Mutex
	msgs []*message.Message
}

func (s *recordingSink) Accept(_ context.Context, msg *message.Message, _ error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// fixture is a started adapter with one channel and one workflow.
type fixture struct {
	adapter  *Adapter
	channel  *Channel
	workflow *Workflow
	consumer *pushConsumer
	producer *captureProducer
	sink     *recordingSink
}

func newFixture(t *testing.T, cfg AdapterConfig, services ...Service) *fixture {
	t.Helper()
	f := &fixture{
		consumer: newPushConsumer("in", nil),
		producer: newCaptureProducer("out", nil),
		sink:     &recordingSink{},
	}
	if cfg.Name == "" {
		cfg.Name = "adapter"
	}
	cfg.Sink = f.sink

	var err error
	if f.adapter, err = NewAdapter(cfg); err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if f.channel, err = NewChannel(ChannelConfig{Name: "inbound"}); err != nil {
		t.Fatalf("NewChannel: %v", err)
	}
	if f.workflow, err = NewWorkflow(WorkflowConfig{
		Name:     "orders",
		Consumer: f.consumer,
		Services: services,
		Producer: f.producer,
	}); err != nil {
		t.Fatalf("NewWorkflow: %v", err)
	}
	if err := f.channel.AddWorkflow(f.workflow); err != nil {
		t.Fatalf("AddWorkflow: %v", err)
	}
	if err := f.adapter.AddChannel(f.channel); err != nil {
		t.Fatalf("AddChannel: %v", err)
	}
	if err := f.adapter.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { f.adapter.Close(context.Background()) })
	return f
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before timeout")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func equalCalls(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
