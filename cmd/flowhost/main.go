package main

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	"github.com/bft-labs/flowhost/internal/cliconfig"
)

const helpDescription = `
Run integration workflows with supervised lifecycles and failure recovery.

Highlights:
  - Channels group workflows; each workflow moves messages from a consumer
    through services to a producer.
  - Failed messages can be parked and resubmitted to the workflow that owns them.
  - Produce failures can restart the failing workflow or its whole channel.
  - Configure via file, env (FLOWHOST_*), or flags; the topology lives in the file.
`

var exampleUsage = strings.TrimSpace(`
  flowhost --config $HOME/.flowhost/config.toml
  flowhost run --config ./flowhost.toml --watch --log-level debug
  flowhost validate --config ./flowhost.toml
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// changedFlags collects the flags set on the command line. They win over
	// the config file and the environment.
	changedFlags := func(cmd *cobra.Command) map[string]bool {
		changed := map[string]bool{}
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
		return changed
	}

	root := &cobra.Command{
		Use:     "flowhost",
		Short:   "Run integration workflows with failure recovery",
		Long:    strings.TrimSpace(helpDescription),
		Example: exampleUsage,
		Version: fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, cfgPath, changedFlags(cmd))
		},
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the topology until interrupted (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg, cfgPath, changedFlags(cmd))
		},
	}

	validate := &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and print the resulting topology",
		RunE: func(cmd *cobra.Command, args []string) error {
			loaded, path, err := loadConfig(cfg, cfgPath, changedFlags(cmd))
			if err != nil {
				return err
			}
			if err := checkTopology(cmd.Context(), loaded); err != nil {
				return err
			}
			printTopology(cmd.OutOrStdout(), path, loaded)
			return nil
		},
	}
	root.AddCommand(runCmd, validate)

	// Flags
	flags := root.PersistentFlags()
	flags.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.flowhost/config.toml)")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	flags.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "address of the Prometheus metrics endpoint (empty disables it)")
	flags.BoolVar(&cfg.WatchConfig, "watch", cfg.WatchConfig, "reload the topology when the config file changes")

	flags.StringVar(&cfg.Name, "name", cfg.Name, "adapter name")
	flags.StringVar(&cfg.RegistrationMode, "registration-mode", cfg.RegistrationMode, "duplicate workflow id handling (strict, lenient)")

	flags.BoolVar(&cfg.RetryFailedMessages, "retry-failed", cfg.RetryFailedMessages, "park failed messages for resubmission")
	flags.DurationVar(&cfg.RetryInterval, "retry-interval", cfg.RetryInterval, "delay before a failed message is resubmitted")
	flags.IntVar(&cfg.RetryLimit, "retry-limit", cfg.RetryLimit, "failed resubmissions before a message is given up (<= 0 disables retries)")
	flags.DurationVar(&cfg.RetryScanInterval, "retry-scan-interval", cfg.RetryScanInterval, "how often due messages are looked for")

	flags.StringVar(&cfg.ProduceHandler, "produce-handler", cfg.ProduceHandler, "reaction to produce failures (null, restart-workflow, restart-channel)")
	flags.StringVar(&cfg.ConnectionHandler, "connection-handler", cfg.ConnectionHandler, "default reaction to connection errors (close, null)")

	flags.IntVar(&cfg.PoolWorkers, "pool-workers", cfg.PoolWorkers, "workers running restarts and closes")
	flags.IntVar(&cfg.PoolQueueSize, "pool-queue", cfg.PoolQueueSize, "pending restarts before new ones are rejected")
	flags.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "how long shutdown waits for running tasks")

	if err := root.Execute(); err != nil {
		logger.Error().Err(err).Msg("flowhost")
		os.Exit(1)
	}
}
