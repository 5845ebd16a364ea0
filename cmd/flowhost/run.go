package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bft-labs/flowhost/internal/cliconfig"
	"github.com/bft-labs/flowhost/pkg/flowhost"
	"github.com/bft-labs/flowhost/pkg/log"
	"github.com/bft-labs/flowhost/plugins/configwatcher"
)

// loadConfig layers the config file and FLOWHOST_* variables over base.
// Flags named in changed keep the value they were given on the command line.
func loadConfig(base cliconfig.Config, cfgPath string, changed map[string]bool) (cliconfig.Config, string, error) {
	cfg := base
	cfg.Channels = nil

	cfgFile := cfgPath
	if cfgFile == "" {
		cfgFile = cliconfig.DefaultConfigPath()
	}

	if cfgFile != "" && cliconfig.FileExists(cfgFile) {
		fc, err := cliconfig.LoadFileConfig(cfgFile)
		if err != nil {
			return cfg, "", fmt.Errorf("load config: %w", err)
		}
		if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
			return cfg, "", err
		}
	} else {
		cfgFile = ""
	}

	if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
		return cfg, "", err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}
	return cfg, cfgFile, nil
}

func run(ctx context.Context, base cliconfig.Config, cfgPath string, changed map[string]bool) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, path, err := loadConfig(base, cfgPath, changed)
	if err != nil {
		return err
	}

	// The log level is fixed for the life of the process; reloads only
	// rebuild the topology.
	logger, err := log.NewConsoleLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	zl := logger.Logger()
	zl.Info().Str("config_file", path).Interface("config", cfg).Msg("configuration")

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if cfg.MetricsAddr != "" {
		srv := serveMetrics(cfg.MetricsAddr, reg, logger)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	reload := make(chan struct{}, 1)
	host, err := startHost(ctx, cfg, path, reg, logger, reload)
	if err != nil {
		return err
	}

	for {
		select {
		case <-sigCh:
			zl.Info().Msg("received signal, stopping...")
			return stopHost(host)

		case <-ctx.Done():
			return stopHost(host)

		case <-reload:
			next, _, err := loadConfig(base, cfgPath, changed)
			if err != nil {
				logger.Error("config reload rejected, keeping current topology", log.Err(err))
				continue
			}
			logger.Info("reloading topology", log.Int("channels", len(next.Channels)))
			if err := stopHost(host); err != nil {
				logger.Warn("previous topology did not stop cleanly", log.Err(err))
			}
			host, err = startHost(ctx, next, path, reg, logger, reload)
			if err != nil {
				return fmt.Errorf("reload: %w", err)
			}
		}
	}
}

func startHost(ctx context.Context, cfg cliconfig.Config, path string, reg prometheus.Registerer, logger log.Logger, reload chan<- struct{}) (*flowhost.Host, error) {
	opts := []flowhost.Option{
		flowhost.WithLogger(logger),
		flowhost.WithMetrics(reg),
	}
	if cfg.WatchConfig && path != "" {
		opts = append(opts, configwatcher.WithConfigWatcher(configwatcher.Config{
			Path: path,
			OnChange: func(context.Context, string) error {
				select {
				case reload <- struct{}{}:
				default:
				}
				return nil
			},
		}))
	}

	host, err := flowhost.New(cfg.HostConfig(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create flowhost: %w", err)
	}
	if err := host.Start(ctx); err != nil {
		host.Close(context.Background())
		return nil, fmt.Errorf("start flowhost: %w", err)
	}
	return host, nil
}

func stopHost(host *flowhost.Host) error {
	if err := host.Close(context.Background()); err != nil {
		return fmt.Errorf("stop flowhost: %w", err)
	}
	return nil
}

// checkTopology builds the host and takes its adapter through init and close,
// which registers every workflow id without starting any consumer.
func checkTopology(ctx context.Context, cfg cliconfig.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	host, err := flowhost.New(cfg.HostConfig())
	if err != nil {
		return err
	}
	adapter := host.Adapter()
	if err := adapter.Init(ctx); err != nil {
		return err
	}
	adapter.Close(ctx)
	return nil
}

func metricsHandler(reg *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return mux
}

func serveMetrics(addr string, reg *prometheus.Registry, logger log.Logger) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metricsHandler(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics endpoint listening", log.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics endpoint failed", log.Err(err))
		}
	}()
	return srv
}

func printTopology(w io.Writer, path string, cfg cliconfig.Config) {
	if path == "" {
		path = "(none)"
	}
	fmt.Fprintf(w, "config file: %s\n", path)
	fmt.Fprintf(w, "adapter %s (registration %s, produce handler %s)\n",
		cfg.Name, cfg.RegistrationMode, cfg.ProduceHandler)
	host := cfg.HostConfig()
	host.SetDefaults()
	for _, ch := range host.Channels {
		fmt.Fprintf(w, "  channel %s (connection handler %s)\n", ch.Name, ch.ConnectionHandler)
		for _, wf := range ch.Workflows {
			id := wf.ID
			if id == "" {
				id = wf.Name + "@" + ch.Name
			}
			fmt.Fprintf(w, "    workflow %s [%s]: %s -> %d service(s) -> %s\n",
				wf.Name, id, wf.Consumer.Kind, len(wf.Services), wf.Producer.Kind)
		}
	}
}
