package configwatcher

import "github.com/bft-labs/flowhost/pkg/flowhost"

// WithConfigWatcher returns a flowhost Option that enables config file watching.
//
// Usage:
//
//	h, err := flowhost.New(cfg,
//	    configwatcher.WithConfigWatcher(configwatcher.Config{
//	        Path:     path,
//	        OnChange: reload,
//	    }),
//	)
func WithConfigWatcher(cfg Config) flowhost.Option {
	return flowhost.WithPlugin(New(cfg))
}
