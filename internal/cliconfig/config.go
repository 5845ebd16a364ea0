package cliconfig

import (
	"fmt"
	"strconv"
	"time"

	"github.com/bft-labs/flowhost/pkg/flowhost"
	"github.com/bft-labs/flowhost/pkg/log"
)

// DefaultMetricsAddr is where the metrics endpoint listens by default.
const DefaultMetricsAddr = ":9464"

// Config holds CLI configuration for flowhost.
type Config struct {
	LogLevel    string
	MetricsAddr string
	WatchConfig bool

	Name             string
	RegistrationMode string

	RetryFailedMessages bool
	RetryInterval       time.Duration
	RetryLimit          int
	RetryScanInterval   time.Duration

	ProduceHandler    string
	ConnectionHandler string

	PoolWorkers     int
	PoolQueueSize   int
	ShutdownTimeout time.Duration

	// Channels is the topology. It can only be set from the config file.
	Channels []flowhost.ChannelConfig
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		LogLevel:          "info",
		MetricsAddr:       DefaultMetricsAddr,
		Name:              "flowhost",
		RegistrationMode:  "strict",
		RetryInterval:     30 * time.Second,
		RetryLimit:        3,
		RetryScanInterval: time.Second,
		ProduceHandler:    flowhost.ProduceNull,
		ConnectionHandler: flowhost.ConnectionClose,
		PoolWorkers:       4,
		PoolQueueSize:     64,
		ShutdownTimeout:   flowhost.DefaultShutdownTimeout,
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be positive")
	}
	if c.RetryScanInterval <= 0 {
		return fmt.Errorf("retry scan interval must be positive")
	}
	if c.PoolWorkers <= 0 {
		return fmt.Errorf("pool workers must be positive")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}

	host := c.HostConfig()
	host.SetDefaults()
	return host.Validate()
}

// HostConfig converts the CLI configuration into a flowhost.Config.
func (c *Config) HostConfig() flowhost.Config {
	return flowhost.Config{
		Name:                c.Name,
		RegistrationMode:    c.RegistrationMode,
		RetryFailedMessages: c.RetryFailedMessages,
		RetryInterval:       c.RetryInterval,
		RetryLimit:          c.RetryLimit,
		RetryScanInterval:   c.RetryScanInterval,
		ProduceHandler:      c.ProduceHandler,
		ConnectionHandler:   c.ConnectionHandler,
		PoolWorkers:         c.PoolWorkers,
		PoolQueueSize:       c.PoolQueueSize,
		ShutdownTimeout:     c.ShutdownTimeout,
		Channels:            c.Channels,
	}
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setIntPtr sets an int value from a pointer, zero and negatives included.
func (s *configSetter) setIntPtr(flag string, value *int, dst *int) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to a positive int and sets the destination.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setSignedIntFromString is setIntFromString without the positive check.
func (s *configSetter) setSignedIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = i
	return nil
}

// setBoolFromString parses a string to bool and sets the destination.
// Accepts "true", "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
