package flowhost

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/bft-labs/flowhost/pkg/lifecycle"
	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/pkg/recovery"
)

// Option configures optional behavior of a Host.
type Option func(*options)

type options struct {
	logger     log.Logger
	emitter    lifecycle.EventEmitter
	registerer prometheus.Registerer
	sink       recovery.FailureSink
	plugins    []Plugin
}

// WithLogger sets the logger. If not provided, nothing is logged.
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventEmitter receives every lifecycle transition in the topology.
// Events are delivered synchronously from the transitioning goroutine.
func WithEventEmitter(e lifecycle.EventEmitter) Option {
	return func(o *options) {
		o.emitter = e
	}
}

// WithMetrics registers flowhost metrics with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithFailureSink sets where permanently failed messages go.
// If not provided, they are logged and dropped.
func WithFailureSink(s recovery.FailureSink) Option {
	return func(o *options) {
		o.sink = s
	}
}

// WithPlugin registers a plugin to be initialized when the host starts.
// Plugins are initialized in registration order and shut down in reverse order.
func WithPlugin(p Plugin) Option {
	return func(o *options) {
		o.plugins = append(o.plugins, p)
	}
}
