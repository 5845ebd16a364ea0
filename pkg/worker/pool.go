// Package worker provides a bounded goroutine pool for fire-and-forget tasks
// such as asynchronous workflow and channel restarts.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bft-labs/flowhost/pkg/log"
)

// Pool errors.
var (
	ErrQueueFull    = errors.New("worker: queue is full")
	ErrPoolStopped  = errors.New("worker: pool stopped")
	ErrStopTimeout  = errors.New("worker: stop timeout")
	errTaskPanicked = errors.New("worker: task panicked")
)

// Task outcomes reported to an Observer.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomePanicked  = "panicked"
	OutcomeRejected  = "rejected"
)

// Default pool sizing.
const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

// Task is a unit of work. The context is cancelled when the pool is forced to stop.
type Task func(ctx context.Context) error

// Observer receives one call per task outcome.
type Observer interface {
	ObserveTask(outcome string)
}

// Config sizes a Pool.
type Config struct {
	Workers   int
	QueueSize int
}

type job struct {
	name string
	run  Task
}

// Pool runs submitted tasks on a fixed number of goroutines.
type Pool struct {
	logger   log.Logger
	observer Observer
	queue    chan job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.RWMutex
	stopped bool
}

// Option configures optional Pool behaviour.
type Option func(*Pool)

// WithObserver reports task outcomes to o.
func WithObserver(o Observer) Option {
	return func(p *Pool) {
		p.observer = o
	}
}

// New creates a pool and starts its workers.
func New(cfg Config, logger log.Logger, opts ...Option) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		logger: log.OrNoop(logger),
		queue:  make(chan job, cfg.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Submit queues a task without blocking.
// Returns ErrQueueFull when the queue is at capacity and ErrPoolStopped after Stop.
func (p *Pool) Submit(name string, task Task) error {
	if task == nil {
		return nil
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		p.observe(OutcomeRejected)
		return ErrPoolStopped
	}

	select {
	case p.queue <- job{name: name, run: task}:
		return nil
	default:
		p.observe(OutcomeRejected)
		return fmt.Errorf("%w: %s", ErrQueueFull, name)
	}
}

// Stop stops accepting tasks and waits for queued and running tasks to finish.
// If they do not finish within timeout, their context is cancelled and
// ErrStopTimeout is returned. A timeout <= 0 waits indefinitely.
func (p *Pool) Stop(timeout time.Duration) error {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return nil
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	if timeout <= 0 {
		<-done
		p.cancel()
		return nil
	}

	select {
	case <-done:
		p.cancel()
		return nil
	case <-time.After(timeout):
		p.cancel()
		p.logger.Warn("worker pool stop timeout, cancelling tasks", log.Duration("timeout", timeout))
		return ErrStopTimeout
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for j := range p.queue {
		p.execute(j)
	}
}

func (p *Pool) execute(j job) {
	err := p.safeRun(j)
	switch {
	case err == nil:
		p.observe(OutcomeSucceeded)
	case errors.Is(err, errTaskPanicked):
		p.logger.Error("task panicked", log.String("task", j.name), log.Err(err))
		p.observe(OutcomePanicked)
	default:
		p.logger.Error("task failed", log.String("task", j.name), log.Err(err))
		p.observe(OutcomeFailed)
	}
}

func (p *Pool) safeRun(j job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v\n%s", errTaskPanicked, r, debug.Stack())
		}
	}()
	return j.run(p.ctx)
}

func (p *Pool) observe(outcome string) {
	if p.observer != nil {
		p.observer.ObserveTask(outcome)
	}
}
