package flowhost

import (
	"context"

	"github.com/bft-labs/flowhost/pkg/log"
)

// Plugin extends a Host with functionality that runs alongside the topology.
type Plugin interface {
	// Name identifies the plugin in logs.
	Name() string
	// Initialize is called by Host.Start before the topology starts.
	Initialize(ctx context.Context, cfg PluginConfig) error
	// Shutdown is called by Host.Stop after the topology has stopped.
	Shutdown(ctx context.Context) error
}

// PluginConfig is handed to plugins on initialization.
type PluginConfig struct {
	// Name is the adapter name.
	Name   string
	Logger log.Logger
}
