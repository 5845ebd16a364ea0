package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/bft-labs/flowhost/pkg/flowhost"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	LogLevel    string `toml:"log_level"`
	MetricsAddr string `toml:"metrics_addr"`
	WatchConfig *bool  `toml:"watch_config"`

	Name              string `toml:"name"`
	RegistrationMode  string `toml:"registration_mode"`
	ProduceHandler    string `toml:"produce_handler"`
	ConnectionHandler string `toml:"connection_handler"`
	ShutdownTimeout   string `toml:"shutdown_timeout"`

	Retry FileRetry `toml:"retry"`
	Pool  FilePool  `toml:"pool"`

	Channels []FileChannel `toml:"channels"`
}

// FileRetry is the [retry] table.
type FileRetry struct {
	Enabled      *bool  `toml:"enabled"`
	Interval     string `toml:"interval"`
	Limit        *int   `toml:"limit"`
	ScanInterval string `toml:"scan_interval"`
}

// FilePool is the [pool] table.
type FilePool struct {
	Workers   int `toml:"workers"`
	QueueSize int `toml:"queue_size"`
}

// FileChannel is one [[channels]] entry.
type FileChannel struct {
	Name              string         `toml:"name"`
	ConnectionHandler string         `toml:"connection_handler"`
	Workflows         []FileWorkflow `toml:"workflows"`
}

// FileWorkflow is one [[channels.workflows]] entry.
type FileWorkflow struct {
	Name     string        `toml:"name"`
	ID       string        `toml:"id"`
	Consumer FileConsumer  `toml:"consumer"`
	Services []FileService `toml:"services"`
	Producer FileProducer  `toml:"producer"`
}

// FileConsumer configures a workflow's consumer.
type FileConsumer struct {
	Kind     string `toml:"kind"`
	Interval string `toml:"interval"`
	Policy   string `toml:"policy"`
	Payload  string `toml:"payload"`
	Batch    int    `toml:"batch"`
	Buffer   int    `toml:"buffer"`
}

// FileService configures one service of a workflow.
type FileService struct {
	Kind  string `toml:"kind"`
	Key   string `toml:"key"`
	Value string `toml:"value"`
}

// FileProducer configures a workflow's producer.
type FileProducer struct {
	Kind string `toml:"kind"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns the default configuration file path.
// Returns ~/.flowhost/config.toml if user home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".flowhost", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", fc.LogLevel, &cfg.LogLevel)
	s.setString("metrics-addr", fc.MetricsAddr, &cfg.MetricsAddr)
	s.setBool("watch", fc.WatchConfig, &cfg.WatchConfig)
	s.setString("name", fc.Name, &cfg.Name)
	s.setString("registration-mode", fc.RegistrationMode, &cfg.RegistrationMode)
	s.setString("produce-handler", fc.ProduceHandler, &cfg.ProduceHandler)
	s.setString("connection-handler", fc.ConnectionHandler, &cfg.ConnectionHandler)

	if err := s.setDuration("shutdown-timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setBool("retry-failed", fc.Retry.Enabled, &cfg.RetryFailedMessages)
	s.setIntPtr("retry-limit", fc.Retry.Limit, &cfg.RetryLimit)
	if err := s.setDuration("retry-interval", fc.Retry.Interval, &cfg.RetryInterval); err != nil {
		return err
	}
	if err := s.setDuration("retry-scan-interval", fc.Retry.ScanInterval, &cfg.RetryScanInterval); err != nil {
		return err
	}

	s.setInt("pool-workers", fc.Pool.Workers, &cfg.PoolWorkers)
	s.setInt("pool-queue", fc.Pool.QueueSize, &cfg.PoolQueueSize)

	if len(fc.Channels) > 0 {
		channels, err := fc.channels()
		if err != nil {
			return err
		}
		cfg.Channels = channels
	}
	return nil
}

func (fc FileConfig) channels() ([]flowhost.ChannelConfig, error) {
	out := make([]flowhost.ChannelConfig, 0, len(fc.Channels))
	for _, ch := range fc.Channels {
		c := flowhost.ChannelConfig{
			Name:              ch.Name,
			ConnectionHandler: ch.ConnectionHandler,
		}
		for _, wf := range ch.Workflows {
			w := flowhost.WorkflowConfig{
				Name: wf.Name,
				ID:   wf.ID,
				Consumer: flowhost.ConsumerConfig{
					Kind:    wf.Consumer.Kind,
					Policy:  wf.Consumer.Policy,
					Payload: wf.Consumer.Payload,
					Batch:   wf.Consumer.Batch,
					Buffer:  wf.Consumer.Buffer,
				},
				Producer: flowhost.ProducerConfig{Kind: wf.Producer.Kind},
			}
			if wf.Consumer.Interval != "" {
				d, err := time.ParseDuration(wf.Consumer.Interval)
				if err != nil {
					return nil, fmt.Errorf("channel %s: workflow %s: parse interval: %w", ch.Name, wf.Name, err)
				}
				w.Consumer.Interval = d
			}
			for _, svc := range wf.Services {
				w.Services = append(w.Services, flowhost.ServiceConfig{
					Kind:  svc.Kind,
					Key:   svc.Key,
					Value: svc.Value,
				})
			}
			c.Workflows = append(c.Workflows, w)
		}
		out = append(out, c)
	}
	return out, nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
