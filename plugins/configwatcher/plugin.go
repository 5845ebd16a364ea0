// Package configwatcher provides config file monitoring for flowhost.
// When enabled, it watches the host's config file and calls a reload
// callback after the file changes.
package configwatcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bft-labs/flowhost/pkg/flowhost"
	"github.com/bft-labs/flowhost/pkg/log"
)

// ChangeFunc is called with the path of the changed file.
type ChangeFunc func(ctx context.Context, path string) error

// Plugin watches a config file. The parent directory is watched so editors
// that replace the file on save are seen as well.
type Plugin struct {
	mu sync.Mutex

	path          string
	onChange      ChangeFunc
	retryInterval time.Duration
	debounceDelay time.Duration

	logger   log.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce *time.Timer
}

// Config holds configuration options for the config watcher plugin.
type Config struct {
	// Path is the file to watch. An empty path disables the plugin.
	Path string

	// OnChange is called after Path was written or recreated.
	OnChange ChangeFunc

	// RetryInterval is the delay between attempts to watch a directory
	// that does not exist yet.
	// Default: 5 seconds
	RetryInterval time.Duration

	// DebounceDelay is how long changes are collected before OnChange runs.
	// Default: 100 milliseconds
	DebounceDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		RetryInterval: 5 * time.Second,
		DebounceDelay: 100 * time.Millisecond,
	}
}

// New creates a new config watcher plugin with the given configuration.
func New(cfg Config) *Plugin {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 5 * time.Second
	}
	if cfg.DebounceDelay <= 0 {
		cfg.DebounceDelay = 100 * time.Millisecond
	}

	return &Plugin{
		path:          cfg.Path,
		onChange:      cfg.OnChange,
		retryInterval: cfg.RetryInterval,
		debounceDelay: cfg.DebounceDelay,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "configwatcher"
}

// Initialize starts watching the config file.
func (p *Plugin) Initialize(ctx context.Context, cfg flowhost.PluginConfig) error {
	p.mu.Lock()
	p.logger = log.OrNoop(cfg.Logger)
	p.mu.Unlock()

	if p.path == "" || p.onChange == nil {
		p.logger.Warn("config watcher disabled: no config file or change handler")
		return nil
	}

	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.cancel = cancel

	p.logger.Info("config watcher plugin initialized", log.String("path", p.path))

	p.wg.Add(1)
	go p.watchLoop(watchCtx)

	return nil
}

// Shutdown stops the config watcher. A pending reload is discarded.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()

	p.mu.Lock()
	if p.debounce != nil {
		p.debounce.Stop()
		p.debounce = nil
	}
	p.mu.Unlock()
	return nil
}

func (p *Plugin) watchLoop(ctx context.Context) {
	defer p.wg.Done()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Error("config watcher: failed to create watcher", log.Err(err))
		return
	}
	defer watcher.Close()

	dir := filepath.Dir(p.path)
	for {
		err := watcher.Add(dir)
		if err == nil {
			break
		}
		p.logger.Warn("config watcher: failed to watch directory, retrying",
			log.String("dir", dir),
			log.Err(err),
			log.Duration("retry_in", p.retryInterval),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.retryInterval):
		}
	}

	name := filepath.Base(p.path)
	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != name {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			p.debounceChange(ctx)

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			p.logger.Error("config watcher: watcher error", log.Err(err))
		}
	}
}

func (p *Plugin) debounceChange(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.debounce != nil {
		p.debounce.Stop()
	}

	p.debounce = time.AfterFunc(p.debounceDelay, func() {
		if ctx.Err() != nil {
			return
		}
		p.logger.Info("config file changed", log.String("path", p.path))
		if err := p.onChange(ctx, p.path); err != nil {
			p.logger.Error("config watcher: reload failed", log.String("path", p.path), log.Err(err))
		}
	})
}
