package poll

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/bft-labs/flowhost/pkg/log"
)

// Scheduler errors.
var (
	ErrAlreadyRunning  = errors.New("poll: scheduler already running")
	ErrShutdownTimeout = errors.New("poll: shutdown timeout")
)

// DefaultShutdownTimeout bounds how long Stop waits for an in-flight poll.
const DefaultShutdownTimeout = 30 * time.Second

// Policy selects how the next trigger is scheduled.
type Policy int

const (
	// PolicyFixed triggers exactly Interval after the previous scheduled time.
	PolicyFixed Policy = iota
	// PolicyRandom triggers after a uniformly random delay in [0, Interval).
	PolicyRandom
)

// String returns the policy name.
func (p Policy) String() string {
	switch p {
	case PolicyFixed:
		return "fixed"
	case PolicyRandom:
		return "random"
	default:
		return "unknown"
	}
}

// ParsePolicy converts a policy name into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "", "fixed":
		return PolicyFixed, nil
	case "random":
		return PolicyRandom, nil
	default:
		return PolicyFixed, fmt.Errorf("poll: unknown policy %q", s)
	}
}

// Outcome of a single trigger.
const (
	OutcomeRan     = "ran"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
)

// Observer receives one call per trigger.
type Observer interface {
	ObservePoll(name, outcome string)
}

// PollFunc performs one poll cycle.
type PollFunc func(ctx context.Context) error

// ErrorFunc receives errors returned (or panics raised) by a poll cycle.
type ErrorFunc func(ctx context.Context, err error)

// SchedulerConfig configures a Scheduler.
type SchedulerConfig struct {
	Name            string
	Interval        time.Duration
	Policy          Policy
	ShutdownTimeout time.Duration
}

// Scheduler runs a poll function on a single background goroutine.
type Scheduler struct {
	cfg      SchedulerConfig
	gate     *Gate
	poll     PollFunc
	onError  ErrorFunc
	logger   log.Logger
	observer Observer

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// SchedulerOption configures optional Scheduler behaviour.
type SchedulerOption func(*Scheduler)

// WithObserver reports every trigger outcome to o.
func WithObserver(o Observer) SchedulerOption {
	return func(s *Scheduler) {
		s.observer = o
	}
}

// NewScheduler creates a scheduler guarding poll with gate.
// onError may be nil, in which case errors are only logged.
func NewScheduler(cfg SchedulerConfig, gate *Gate, poll PollFunc, onError ErrorFunc, logger log.Logger, opts ...SchedulerOption) *Scheduler {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	if gate == nil {
		gate = &Gate{}
	}
	s := &Scheduler{
		cfg:     cfg,
		gate:    gate,
		poll:    poll,
		onError: onError,
		logger:  log.OrNoop(logger),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Running reports whether the background goroutine has been started and not stopped.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start launches the background goroutine. The scheduler outlives ctx's
// deadline but stops when ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		return fmt.Errorf("poll: %s: interval must be positive", s.cfg.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.running = true

	go s.run(runCtx, done)

	s.logger.Debug("scheduler started",
		log.Component(s.cfg.Name),
		log.String("policy", s.cfg.Policy.String()),
		log.Duration("interval", s.cfg.Interval),
	)
	return nil
}

// Stop cancels the pending trigger and waits for an in-flight poll.
// Returns ErrShutdownTimeout if the poll does not finish within ShutdownTimeout.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	cancel, done := s.cancel, s.done
	s.running = false
	s.cancel = nil
	s.done = nil
	s.mu.Unlock()

	cancel()

	select {
	case <-done:
		return nil
	case <-time.After(s.cfg.ShutdownTimeout):
		s.logger.Warn("scheduler shutdown timeout, forcing stop",
			log.Component(s.cfg.Name),
			log.Duration("timeout", s.cfg.ShutdownTimeout),
		)
		return ErrShutdownTimeout
	}
}

func (s *Scheduler) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	next := time.Now()
	for {
		delay := s.nextDelay(&next)
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
		s.trigger(ctx)
	}
}

// nextDelay advances the schedule and returns how long to wait.
func (s *Scheduler) nextDelay(next *time.Time) time.Duration {
	if s.cfg.Policy == PolicyRandom {
		return time.Duration(rand.Int64N(int64(s.cfg.Interval)))
	}
	*next = next.Add(s.cfg.Interval)
	if d := time.Until(*next); d > 0 {
		return d
	}
	return 0
}

// trigger runs one poll cycle if the gate is free.
func (s *Scheduler) trigger(ctx context.Context) {
	if !s.gate.TryAcquire() {
		s.logger.Debug("poll still in progress, skipping cycle", log.Component(s.cfg.Name))
		s.observe(OutcomeSkipped)
		return
	}
	defer s.gate.Release()

	if err := s.safePoll(ctx); err != nil {
		s.logger.Error("poll failed", log.Component(s.cfg.Name), log.Err(err))
		s.observe(OutcomeFailed)
		if s.onError != nil {
			s.onError(ctx, err)
		}
		return
	}
	s.observe(OutcomeRan)
}

func (s *Scheduler) safePoll(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("poll panic: %v", r)
		}
	}()
	return s.poll(ctx)
}

func (s *Scheduler) observe(outcome string) {
	if s.observer != nil {
		s.observer.ObservePoll(s.cfg.Name, outcome)
	}
}
