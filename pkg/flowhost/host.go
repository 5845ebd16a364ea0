package flowhost

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/flowhost/pkg/connector"
	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/metrics"
	"github.com/bft-labs/flowhost/pkg/pipeline"
	"github.com/bft-labs/flowhost/pkg/recovery"
	"github.com/bft-labs/flowhost/pkg/worker"
)

var (
	ErrAlreadyRunning = errors.New("flowhost: already running")
	ErrNotRunning     = errors.New("flowhost: not running")
)

// Status describes the host state.
type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
)

// Host runs a flowhost topology built from a Config.
type Host struct {
	config   Config
	opts     options
	logger   log.Logger
	recorder *metrics.Recorder
	adapter  *pipeline.Adapter

	inboxes  map[string]*connector.Inbox
	captures map[string]*connector.CaptureProducer

	// pool is read without mu: pipeline goroutines submit restarts while
	// Stop holds mu and waits for them.
	pool atomic.Pointer[worker.Pool]
	// stopping is set from Stop until the next Start. Submit rejects tasks
	// and queued tasks are dropped so restarts cannot revive the topology.
	stopping atomic.Bool

	mu      sync.Mutex
	running bool
	started []Plugin
}

var _ recovery.Executor = (*Host)(nil)

// New creates a Host. The topology is built but not started.
func New(cfg Config, opts ...Option) (*Host, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if err := validateModuleVersions(); err != nil {
		return nil, err
	}

	recorder, err := metrics.New(o.registerer)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	h := &Host{
		config:   cfg,
		opts:     o,
		logger:   log.OrNoop(o.logger),
		recorder: recorder,
		inboxes:  make(map[string]*connector.Inbox),
		captures: make(map[string]*connector.CaptureProducer),
	}
	if err := h.build(); err != nil {
		return nil, err
	}
	return h, nil
}

// Start initializes the plugins and starts the topology.
func (h *Host) Start(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.running {
		return ErrAlreadyRunning
	}

	h.stopping.Store(false)
	var poolOpts []worker.Option
	if h.recorder != nil {
		poolOpts = append(poolOpts, worker.WithObserver(h.recorder))
	}
	h.pool.Store(worker.New(worker.Config{
		Workers:   h.config.PoolWorkers,
		QueueSize: h.config.PoolQueueSize,
	}, h.logger, poolOpts...))

	pcfg := PluginConfig{Name: h.config.Name, Logger: h.logger}
	h.started = h.started[:0]
	for _, p := range h.opts.plugins {
		if err := p.Initialize(ctx, pcfg); err != nil {
			h.shutdownPlugins(ctx)
			h.stopPool()
			return fmt.Errorf("initialize plugin %s: %w", p.Name(), err)
		}
		h.started = append(h.started, p)
		h.logger.Info("plugin initialized", log.String("plugin", p.Name()))
	}

	if err := h.adapter.Start(ctx); err != nil {
		h.shutdownPlugins(ctx)
		h.stopPool()
		return fmt.Errorf("start adapter: %w", err)
	}

	h.running = true
	h.logger.Info("flowhost started",
		log.String("adapter", h.config.Name),
		log.Int("channels", len(h.config.Channels)),
	)
	return nil
}

// Stop stops the topology, drains the worker pool and shuts down the
// plugins in reverse order. The host can be started again.
func (h *Host) Stop(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrNotRunning
	}

	h.stopping.Store(true)
	var errs []error
	if err := h.adapter.Request(ctx, lifecycle.RequestStop); err != nil {
		errs = append(errs, fmt.Errorf("stop adapter: %w", err))
	}
	if err := h.stopPool(); err != nil {
		errs = append(errs, err)
	}
	h.shutdownPlugins(ctx)

	h.running = false
	h.logger.Info("flowhost stopped")
	return errors.Join(errs...)
}

// Close stops the host if running and releases every component.
func (h *Host) Close(ctx context.Context) error {
	var errs []error
	if err := h.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		errs = append(errs, err)
	}
	if err := h.adapter.Request(ctx, lifecycle.RequestClose); err != nil {
		errs = append(errs, fmt.Errorf("close adapter: %w", err))
	}
	return errors.Join(errs...)
}

// Status reports whether the host is running.
func (h *Host) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running {
		return StatusRunning
	}
	return StatusStopped
}

// Adapter returns the root of the topology.
func (h *Host) Adapter() *pipeline.Adapter {
	return h.adapter
}

// RetryStore returns the store holding messages waiting for resubmission.
func (h *Host) RetryStore() *recovery.RetryStore {
	return h.adapter.RetryStore()
}

// Submit runs task on the host's worker pool. Tasks are rejected once Stop
// has begun, and tasks still queued at that point are skipped.
func (h *Host) Submit(name string, task worker.Task) error {
	pool := h.pool.Load()
	if pool == nil || h.stopping.Load() {
		return worker.ErrPoolStopped
	}
	return pool.Submit(name, func(ctx context.Context) error {
		if h.stopping.Load() {
			h.logger.Debug("host stopping, task skipped", log.String("task", name))
			return nil
		}
		return task(ctx)
	})
}

func (h *Host) stopPool() error {
	pool := h.pool.Load()
	if pool == nil {
		return nil
	}
	return pool.Stop(h.config.ShutdownTimeout)
}

func (h *Host) shutdownPlugins(ctx context.Context) {
	for i := len(h.started) - 1; i >= 0; i-- {
		p := h.started[i]
		if err := p.Shutdown(ctx); err != nil {
			h.logger.Error("failed to shutdown plugin",
				log.String("plugin", p.Name()),
				log.Err(err),
			)
		}
	}
	h.started = h.started[:0]
}
