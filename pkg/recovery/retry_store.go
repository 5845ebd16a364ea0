package recovery

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/message"
)

// Retry defaults.
const (
	DefaultRetryInterval     = 30 * time.Second
	DefaultRetryLimit        = 3
	DefaultRetryScanInterval = time.Second
)

// Resubmission outcomes.
const (
	ResubmitSucceeded = "succeeded"
	ResubmitFailed    = "failed"
)

// RetryConfig configures a RetryStore.
type RetryConfig struct {
	// Interval is the delay between a failure and the next resubmission.
	Interval time.Duration
	// Limit is the number of failed resubmissions after which a message is
	// sent to the failure sink. A limit <= 0 disables retries.
	Limit int
	// ScanInterval is how often due entries are looked for. It is capped at Interval.
	ScanInterval time.Duration
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Interval:     DefaultRetryInterval,
		Limit:        DefaultRetryLimit,
		ScanInterval: DefaultRetryScanInterval,
	}
}

// Resubmitter hands a message back to the workflow that owns it.
type Resubmitter interface {
	Retry(ctx context.Context, msg *message.Message) error
}

// RetryObserver receives retry store measurements.
type RetryObserver interface {
	SetRetryWaiting(n int)
	ObserveResubmission(outcome string)
	ObserveRetryFailed()
}

type retryEntry struct {
	msg      *message.Message
	attempts int
	due      time.Time
	lastErr  error

	// inFlight is set while the entry is being resubmitted outside the lock.
	inFlight bool
	// abandoned entries go to the sink if their in-flight resubmission fails.
	abandoned bool
}

type failed struct {
	msg   *message.Message
	cause error
}

// RetryStore holds failed messages and resubmits them on a single
// background goroutine until they succeed or exhaust their attempts.
type RetryStore struct {
	cfg      RetryConfig
	resub    Resubmitter
	sink     FailureSink
	logger   log.Logger
	observer RetryObserver
	now      func() time.Time

	mu      sync.Mutex
	entries map[string]*retryEntry
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// RetryOption configures optional RetryStore behaviour.
type RetryOption func(*RetryStore)

// WithRetryObserver reports store measurements to o.
func WithRetryObserver(o RetryObserver) RetryOption {
	return func(s *RetryStore) {
		s.observer = o
	}
}

// NewRetryStore creates a stopped store. Resubmissions go to resub and
// permanently failed messages to sink.
func NewRetryStore(cfg RetryConfig, resub Resubmitter, sink FailureSink, logger log.Logger, opts ...RetryOption) *RetryStore {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultRetryInterval
	}
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = DefaultRetryScanInterval
	}
	if cfg.ScanInterval > cfg.Interval {
		cfg.ScanInterval = cfg.Interval
	}
	if sink == nil {
		sink = LogSink{Logger: logger}
	}
	s := &RetryStore{
		cfg:     cfg,
		resub:   resub,
		sink:    sink,
		logger:  log.OrNoop(logger),
		now:     time.Now,
		entries: make(map[string]*retryEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Config returns the effective configuration.
func (s *RetryStore) Config() RetryConfig {
	return s.cfg
}

// Sink returns the failure sink.
func (s *RetryStore) Sink() FailureSink {
	return s.sink
}

// Start launches the resubmission goroutine. Starting a running store is a no-op.
func (s *RetryStore) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.running = true
	go s.run(runCtx, s.done)

	s.logger.Debug("retry store started",
		log.Duration("interval", s.cfg.Interval),
		log.Int("limit", s.cfg.Limit),
	)
}

// Stop halts the resubmission goroutine and waits for an in-flight scan.
// Waiting entries are kept; use FailAll to drain them.
func (s *RetryStore) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Debug("retry store stopped")
}

// Add parks msg for resubmission after the retry interval. Returns
// ErrStoreStopped if the store is not running. With a limit <= 0 the message
// goes straight to the sink.
func (s *RetryStore) Add(msg *message.Message, cause error) error {
	if s.cfg.Limit <= 0 {
		s.toSink(context.Background(), []failed{{msg: msg, cause: cause}})
		return nil
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return ErrStoreStopped
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if e, ok := s.entries[msg.ID]; ok {
		// Already waiting; a second failure report must not reset its attempts.
		e.lastErr = cause
		s.mu.Unlock()
		return nil
	}
	s.entries[msg.ID] = &retryEntry{
		msg:     msg,
		due:     s.now().Add(s.cfg.Interval),
		lastErr: cause,
	}
	n := len(s.entries)
	s.mu.Unlock()

	s.logger.Debug("message parked for retry",
		log.String("message_id", msg.ID),
		log.String("workflow", msg.WorkflowID()),
		log.Err(cause),
	)
	s.setWaiting(n)
	return nil
}

// WaitingIDs returns the ids of all messages waiting for resubmission, sorted.
func (s *RetryStore) WaitingIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id, e := range s.entries {
		if !e.abandoned {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

// FailAll forwards every waiting message to the failure sink. Messages being
// resubmitted right now go to the sink only if that resubmission fails.
func (s *RetryStore) FailAll(ctx context.Context) {
	s.mu.Lock()
	var out []failed
	for id, e := range s.entries {
		if e.inFlight {
			e.abandoned = true
			continue
		}
		delete(s.entries, id)
		out = append(out, failed{msg: e.msg, cause: abandonCause(e)})
	}
	n := len(s.entries)
	s.mu.Unlock()

	if len(out) > 0 {
		s.logger.Info("failing all waiting messages", log.Int("count", len(out)))
	}
	s.setWaiting(n)
	s.toSink(ctx, out)
}

// Fail forwards the message with the given id to the failure sink.
func (s *RetryStore) Fail(ctx context.Context, id string) error {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok || e.abandoned {
		s.mu.Unlock()
		return ErrUnknownMessage
	}
	if e.inFlight {
		e.abandoned = true
		s.mu.Unlock()
		return nil
	}
	delete(s.entries, id)
	n := len(s.entries)
	s.mu.Unlock()

	s.setWaiting(n)
	s.toSink(ctx, []failed{{msg: e.msg, cause: abandonCause(e)}})
	return nil
}

func (s *RetryStore) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scan(ctx)
		}
	}
}

// scan resubmits every due entry. Resubmission happens outside the lock.
func (s *RetryStore) scan(ctx context.Context) {
	now := s.now()

	s.mu.Lock()
	var due []*retryEntry
	for _, e := range s.entries {
		if !e.inFlight && !e.abandoned && !e.due.After(now) {
			e.inFlight = true
			due = append(due, e)
		}
	}
	s.mu.Unlock()

	for _, e := range due {
		if ctx.Err() != nil {
			s.release(due)
			return
		}
		s.resubmit(ctx, e)
	}
}

// release clears the in-flight flag of entries that were not resubmitted.
func (s *RetryStore) release(entries []*retryEntry) {
	var out []failed
	s.mu.Lock()
	for _, e := range entries {
		if !e.inFlight {
			continue
		}
		e.inFlight = false
		if e.abandoned {
			delete(s.entries, e.msg.ID)
			out = append(out, failed{msg: e.msg, cause: abandonCause(e)})
		}
	}
	s.mu.Unlock()
	s.toSink(context.Background(), out)
}

func (s *RetryStore) resubmit(ctx context.Context, e *retryEntry) {
	err := s.resub.Retry(ctx, e.msg)

	var out []failed
	s.mu.Lock()
	e.inFlight = false
	switch {
	case err == nil:
		delete(s.entries, e.msg.ID)
	case e.abandoned:
		delete(s.entries, e.msg.ID)
		out = append(out, failed{msg: e.msg, cause: err})
	default:
		e.attempts++
		e.lastErr = err
		if e.attempts >= s.cfg.Limit {
			delete(s.entries, e.msg.ID)
			out = append(out, failed{msg: e.msg, cause: err})
		} else {
			e.due = s.now().Add(s.cfg.Interval)
		}
	}
	attempts := e.attempts
	n := len(s.entries)
	s.mu.Unlock()

	if err == nil {
		s.logger.Debug("message resubmitted", log.String("message_id", e.msg.ID))
		s.observeResubmission(ResubmitSucceeded)
	} else {
		s.logger.Warn("message resubmission failed",
			log.String("message_id", e.msg.ID),
			log.Int("attempts", attempts),
			log.Int("limit", s.cfg.Limit),
			log.Err(err),
		)
		s.observeResubmission(ResubmitFailed)
	}
	s.setWaiting(n)
	s.toSink(ctx, out)
}

func (s *RetryStore) toSink(ctx context.Context, out []failed) {
	for _, f := range out {
		s.sink.Accept(ctx, f.msg, f.cause)
		if s.observer != nil {
			s.observer.ObserveRetryFailed()
		}
	}
}

func (s *RetryStore) setWaiting(n int) {
	if s.observer != nil {
		s.observer.SetRetryWaiting(n)
	}
}

func (s *RetryStore) observeResubmission(outcome string) {
	if s.observer != nil {
		s.observer.ObserveResubmission(outcome)
	}
}

func abandonCause(e *retryEntry) error {
	if e.lastErr != nil {
		return e.lastErr
	}
	return ErrRetryAbandoned
}
