package retrier

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"

	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/message"
)

type warnCapture struct {
	log.NoopLogger
	mu    sync.Mutex
	warns []string
}

func (w *warnCapture) Warn(msg string, _ ...log.Field) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.warns = append(w.warns, msg)
}

type fakeWorkflow struct {
	name string
	got  []*message.Message
	err  error
}

func (f *fakeWorkflow) Reprocess(_ context.Context, msg *message.Message) error {
	f.got = append(f.got, msg)
	return f.err
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		in      string
		want    Mode
		wantErr bool
	}{
		{"", ModeStrict, false},
		{"strict", ModeStrict, false},
		{"lenient", ModeLenient, false},
		{"loose", ModeStrict, true},
	}
	for _, tt := range tests {
		got, err := ParseMode(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseMode(%q) = %v, %v", tt.in, got, err)
		}
	}
}

func TestRegistry_Strict(t *testing.T) {
	r := NewRegistry(ModeStrict, nil)
	first, second := &fakeWorkflow{name: "first"}, &fakeWorkflow{name: "second"}

	if err := r.Register("orders@in", first); err != nil {
		t.Fatalf("Register: %v", err)
	}
	err := r.Register("orders@in", second)
	if !errors.Is(err, ErrDuplicateWorkflow) {
		t.Fatalf("expected ErrDuplicateWorkflow, got %v", err)
	}
	wf, _ := r.Lookup("orders@in")
	if wf != first {
		t.Error("strict registry replaced the first registrant")
	}
}

func TestRegistry_Lenient(t *testing.T) {
	logger := &warnCapture{}
	r := NewRegistry(ModeLenient, logger)
	if len(logger.warns) != 1 {
		t.Fatalf("expected deprecation warning, got %v", logger.warns)
	}

	first, second := &fakeWorkflow{name: "first"}, &fakeWorkflow{name: "second"}
	if err := r.Register("w", first); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("w", second); err != nil {
		t.Fatalf("lenient Register: %v", err)
	}
	if len(logger.warns) != 2 {
		t.Errorf("expected duplicate warning, got %v", logger.warns)
	}
	wf, _ := r.Lookup("w")
	if wf != first {
		t.Error("lenient registry should keep the first registrant")
	}
}

func TestRegistry_EmptyID(t *testing.T) {
	r := NewRegistry(ModeStrict, nil)
	if err := r.Register("", &fakeWorkflow{}); !errors.Is(err, ErrMissingWorkflowID) {
		t.Errorf("expected ErrMissingWorkflowID, got %v", err)
	}
}

func TestRegistry_IDs(t *testing.T) {
	r := NewRegistry(ModeStrict, nil)
	_ = r.Register("b", &fakeWorkflow{})
	_ = r.Register("a", &fakeWorkflow{})
	if got := r.IDs(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("IDs() = %v", got)
	}
}

func TestRetrier_Retry(t *testing.T) {
	r := NewRegistry(ModeStrict, nil)
	wf := &fakeWorkflow{err: errors.New("still broken")}
	_ = r.Register("orders@in", wf)
	rt := New(r)

	msg := message.New(nil)
	if err := rt.Retry(context.Background(), msg); !errors.Is(err, ErrMissingWorkflowID) {
		t.Errorf("expected ErrMissingWorkflowID, got %v", err)
	}

	msg.Set(message.WorkflowIDKey, "orders@in")
	if err := rt.Retry(context.Background(), msg); err == nil || err.Error() != "still broken" {
		t.Errorf("Retry error = %v, want workflow error", err)
	}
	if len(wf.got) != 1 || wf.got[0] != msg {
		t.Error("message not delivered to workflow")
	}

	msg.Set(message.WorkflowIDKey, "gone")
	if err := rt.Retry(context.Background(), msg); !errors.Is(err, ErrUnknownWorkflow) {
		t.Errorf("expected ErrUnknownWorkflow, got %v", err)
	}
}
