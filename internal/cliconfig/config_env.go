package cliconfig

import "os"

// ApplyEnvConfig applies configuration from environment variables (FLOWHOST_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setString("log-level", os.Getenv("FLOWHOST_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("metrics-addr", os.Getenv("FLOWHOST_METRICS_ADDR"), &cfg.MetricsAddr)
	s.setBoolFromString("watch", os.Getenv("FLOWHOST_WATCH_CONFIG"), &cfg.WatchConfig)
	s.setString("name", os.Getenv("FLOWHOST_NAME"), &cfg.Name)
	s.setString("registration-mode", os.Getenv("FLOWHOST_REGISTRATION_MODE"), &cfg.RegistrationMode)
	s.setString("produce-handler", os.Getenv("FLOWHOST_PRODUCE_HANDLER"), &cfg.ProduceHandler)
	s.setString("connection-handler", os.Getenv("FLOWHOST_CONNECTION_HANDLER"), &cfg.ConnectionHandler)

	if err := s.setDuration("shutdown-timeout", os.Getenv("FLOWHOST_SHUTDOWN_TIMEOUT"), &cfg.ShutdownTimeout); err != nil {
		return err
	}

	s.setBoolFromString("retry-failed", os.Getenv("FLOWHOST_RETRY_FAILED"), &cfg.RetryFailedMessages)
	if err := s.setSignedIntFromString("retry-limit", os.Getenv("FLOWHOST_RETRY_LIMIT"), &cfg.RetryLimit); err != nil {
		return err
	}
	if err := s.setDuration("retry-interval", os.Getenv("FLOWHOST_RETRY_INTERVAL"), &cfg.RetryInterval); err != nil {
		return err
	}
	if err := s.setDuration("retry-scan-interval", os.Getenv("FLOWHOST_RETRY_SCAN_INTERVAL"), &cfg.RetryScanInterval); err != nil {
		return err
	}

	if err := s.setIntFromString("pool-workers", os.Getenv("FLOWHOST_POOL_WORKERS"), &cfg.PoolWorkers); err != nil {
		return err
	}
	if err := s.setIntFromString("pool-queue", os.Getenv("FLOWHOST_POOL_QUEUE"), &cfg.PoolQueueSize); err != nil {
		return err
	}

	return nil
}
