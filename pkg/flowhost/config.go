package flowhost

import (
	"fmt"
	"time"

	"github.com/bft-labs/flowhost/pkg/poll"
	"github.com/bft-labs/flowhost/pkg/recovery"
	"github.com/bft-labs/flowhost/pkg/retrier"
	"github.com/bft-labs/flowhost/pkg/worker"
)

// Produce exception handler kinds.
const (
	ProduceNull            = "null"
	ProduceRestartWorkflow = "restart-workflow"
	ProduceRestartChannel  = "restart-channel"
)

// Connection error handler kinds.
const (
	ConnectionClose = "close"
	ConnectionNull  = "null"
)

// Builtin component kinds.
const (
	ConsumerTicker = "ticker"
	ConsumerInbox  = "inbox"

	ServiceMetadata = "metadata"
	ServiceLog      = "log"

	ProducerLog     = "log"
	ProducerDiscard = "discard"
	ProducerCapture = "capture"
)

// DefaultShutdownTimeout bounds how long Stop waits for pooled restarts.
const DefaultShutdownTimeout = 30 * time.Second

// Config holds the configuration of a Host.
type Config struct {
	// Name names the adapter. Default: "flowhost".
	Name string

	// RegistrationMode is "strict" (default) or "lenient".
	RegistrationMode string

	// RetryFailedMessages parks failed messages for resubmission instead of
	// sending them straight to the failure sink.
	RetryFailedMessages bool
	RetryInterval       time.Duration
	RetryLimit          int
	RetryScanInterval   time.Duration

	// ProduceHandler is "null" (default), "restart-workflow" or "restart-channel".
	ProduceHandler string
	// ConnectionHandler is the default for channels: "close" (default) or "null".
	ConnectionHandler string

	// Worker pool running restarts and connection-error closes.
	PoolWorkers   int
	PoolQueueSize int

	ShutdownTimeout time.Duration

	Channels []ChannelConfig
}

// ChannelConfig describes a channel.
type ChannelConfig struct {
	Name string
	// ConnectionHandler overrides Config.ConnectionHandler.
	ConnectionHandler string
	Workflows         []WorkflowConfig
}

// WorkflowConfig describes a workflow.
type WorkflowConfig struct {
	Name string
	// ID defaults to "<name>@<channel>".
	ID       string
	Consumer ConsumerConfig
	Services []ServiceConfig
	Producer ProducerConfig
}

// ConsumerConfig selects and configures a builtin consumer.
type ConsumerConfig struct {
	Kind string

	// ticker
	Interval time.Duration
	Policy   string
	Payload  string
	Batch    int

	// inbox
	Buffer int
}

// ServiceConfig selects and configures a builtin service.
type ServiceConfig struct {
	Kind  string
	Key   string
	Value string
}

// ProducerConfig selects a builtin producer.
type ProducerConfig struct {
	Kind string
}

// SetDefaults fills unset fields with default values.
func (c *Config) SetDefaults() {
	if c.Name == "" {
		c.Name = "flowhost"
	}
	if c.RegistrationMode == "" {
		c.RegistrationMode = retrier.ModeStrict.String()
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = recovery.DefaultRetryInterval
	}
	if c.RetryLimit == 0 {
		c.RetryLimit = recovery.DefaultRetryLimit
	}
	if c.RetryScanInterval <= 0 {
		c.RetryScanInterval = recovery.DefaultRetryScanInterval
	}
	if c.ProduceHandler == "" {
		c.ProduceHandler = ProduceNull
	}
	if c.ConnectionHandler == "" {
		c.ConnectionHandler = ConnectionClose
	}
	if c.PoolWorkers <= 0 {
		c.PoolWorkers = worker.DefaultWorkers
	}
	if c.PoolQueueSize <= 0 {
		c.PoolQueueSize = worker.DefaultQueueSize
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = DefaultShutdownTimeout
	}
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.ConnectionHandler == "" {
			ch.ConnectionHandler = c.ConnectionHandler
		}
		for j := range ch.Workflows {
			wf := &ch.Workflows[j]
			if wf.Consumer.Kind == ConsumerTicker && wf.Consumer.Interval <= 0 {
				wf.Consumer.Interval = time.Second
			}
			if wf.Producer.Kind == "" {
				wf.Producer.Kind = ProducerLog
			}
		}
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := retrier.ParseMode(c.RegistrationMode); err != nil {
		return err
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be positive")
	}
	switch c.ProduceHandler {
	case ProduceNull, ProduceRestartWorkflow, ProduceRestartChannel:
	default:
		return fmt.Errorf("unknown produce handler %q", c.ProduceHandler)
	}

	seen := make(map[string]bool, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("channel name is required")
		}
		if seen[ch.Name] {
			return fmt.Errorf("duplicate channel %q", ch.Name)
		}
		seen[ch.Name] = true

		switch ch.ConnectionHandler {
		case ConnectionClose, ConnectionNull:
		default:
			return fmt.Errorf("channel %s: unknown connection handler %q", ch.Name, ch.ConnectionHandler)
		}
		for _, wf := range ch.Workflows {
			if err := wf.validate(); err != nil {
				return fmt.Errorf("channel %s: %w", ch.Name, err)
			}
		}
	}
	return nil
}

func (w WorkflowConfig) validate() error {
	if w.Name == "" {
		return fmt.Errorf("workflow name is required")
	}
	switch w.Consumer.Kind {
	case ConsumerTicker:
		if w.Consumer.Interval <= 0 {
			return fmt.Errorf("workflow %s: ticker interval must be positive", w.Name)
		}
		if _, err := poll.ParsePolicy(w.Consumer.Policy); err != nil {
			return fmt.Errorf("workflow %s: %w", w.Name, err)
		}
	case ConsumerInbox:
	default:
		return fmt.Errorf("workflow %s: unknown consumer kind %q", w.Name, w.Consumer.Kind)
	}
	for i, s := range w.Services {
		switch s.Kind {
		case ServiceMetadata:
			if s.Key == "" {
				return fmt.Errorf("workflow %s: service %d: metadata key is required", w.Name, i)
			}
		case ServiceLog:
		default:
			return fmt.Errorf("workflow %s: service %d: unknown kind %q", w.Name, i, s.Kind)
		}
	}
	switch w.Producer.Kind {
	case ProducerLog, ProducerDiscard, ProducerCapture:
	default:
		return fmt.Errorf("workflow %s: unknown producer kind %q", w.Name, w.Producer.Kind)
	}
	return nil
}
