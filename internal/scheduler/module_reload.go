package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/metrics"
	"github.com/MrSnakeDoc/restpub/internal/moduledir"
)

// watchDebounce coalesces bursts of filesystem events into one reload.
const watchDebounce = 250 * time.Millisecond

type loadedModule struct {
	module *host.Module
	dir    string
	digest uint64
}

// ModuleReloader keeps the host registry in sync with the modules directory
type ModuleReloader struct {
	loader        *moduledir.Loader
	catalog       *moduledir.Catalog
	registry      *host.Registry
	logger        logger.Logger
	metrics       *metrics.Metrics
	interval      time.Duration
	watch         bool
	stopCh        chan struct{}
	stopOnce      sync.Once
	manualTrigger chan struct{}

	mu         sync.Mutex // serializes Reload
	loaded     map[string]loadedModule
	lastReload time.Time
}

type ModuleReloaderConfig struct {
	Dir           string
	Catalog       *moduledir.Catalog
	Registry      *host.Registry
	Logger        logger.Logger
	Metrics       *metrics.Metrics
	Interval      time.Duration
	Watch         bool          // react to fsnotify events
	ManualTrigger chan struct{} // POST /system/reload
}

// NewModuleReloader creates a new module reloader
func NewModuleReloader(cfg ModuleReloaderConfig) *ModuleReloader {
	return &ModuleReloader{
		loader:        moduledir.NewLoader(cfg.Dir),
		catalog:       cfg.Catalog,
		registry:      cfg.Registry,
		logger:        cfg.Logger,
		metrics:       cfg.Metrics,
		interval:      cfg.Interval,
		watch:         cfg.Watch,
		stopCh:        make(chan struct{}),
		manualTrigger: cfg.ManualTrigger,
		loaded:        make(map[string]loadedModule),
	}
}

// Start loads the modules directory once, then reloads on every tick, manual
// trigger and (when enabled) filesystem change.
func (mr *ModuleReloader) Start(ctx context.Context) error {
	if err := mr.Reload(ctx); err != nil {
		return fmt.Errorf("initial module load failed: %w", err)
	}

	var events <-chan fsnotify.Event
	var watchErrs <-chan error
	var fw *fsnotify.Watcher
	if mr.watch {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			mr.logger.Warn("filesystem watch unavailable, relying on periodic reloads",
				logger.Error(err))
		} else {
			fw = w
			mr.addWatches(fw)
			events, watchErrs = fw.Events, fw.Errors
		}
	}

	ticker := time.NewTicker(mr.interval)
	go func() {
		defer ticker.Stop()
		if fw != nil {
			defer func() { _ = fw.Close() }()
		}

		var debounce <-chan time.Time
		reload := func(reason string) {
			mr.logger.Debug("reloading modules", logger.String("reason", reason))
			if err := mr.Reload(ctx); err != nil {
				mr.logger.Error("failed to reload modules", logger.Error(err))
			}
			if fw != nil {
				mr.addWatches(fw)
			}
		}

		for {
			select {
			case <-ticker.C:
				reload("interval")
			case <-mr.manualTrigger:
				mr.logger.Info("manual module reload triggered")
				reload("manual")
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				mr.logger.Debug("module directory changed",
					logger.String("path", ev.Name),
					logger.String("op", ev.Op.String()))
				debounce = time.After(watchDebounce)
			case <-debounce:
				debounce = nil
				reload("fsnotify")
			case err, ok := <-watchErrs:
				if !ok {
					watchErrs = nil
					continue
				}
				mr.logger.Warn("module directory watch error", logger.Error(err))
			case <-mr.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// fsnotify is not recursive: watch the root and every module directory.
func (mr *ModuleReloader) addWatches(fw *fsnotify.Watcher) {
	dirs := []string{mr.loader.Dir()}
	mr.mu.Lock()
	for _, lm := range mr.loaded {
		dirs = append(dirs, lm.dir)
	}
	mr.mu.Unlock()

	for _, d := range dirs {
		if err := fw.Add(d); err != nil {
			mr.logger.Debug("cannot watch directory",
				logger.String("dir", d),
				logger.Error(err))
		}
	}
}

// Stop stops the reloader
func (mr *ModuleReloader) Stop() {
	mr.stopOnce.Do(func() { close(mr.stopCh) })
}

// Reload reconciles the registry with the modules directory: vanished and
// changed modules are deactivated, new and changed ones activated.
func (mr *ModuleReloader) Reload(ctx context.Context) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()

	entries, err := mr.loader.Load()
	if entries == nil && err != nil {
		mr.metrics.ModulesReloaded(err)
		return fmt.Errorf("failed to load modules: %w", err)
	}
	if err != nil {
		mr.logger.Warn("some module manifests were skipped", logger.Error(err))
	}

	want := make(map[string]moduledir.Entry, len(entries))
	for _, e := range entries {
		want[e.Manifest.Name] = e
	}

	var deactivated, activated int
	for name, lm := range mr.loaded {
		if e, ok := want[name]; ok && e.Digest == lm.digest {
			continue
		}
		if err := mr.registry.DeactivateModule(name); err != nil && !errors.Is(err, host.ErrModuleInactive) {
			mr.logger.Warn("failed to deactivate module",
				logger.String("module", name),
				logger.Error(err))
		}
		delete(mr.loaded, name)
		deactivated++
	}

	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		if _, ok := mr.loaded[e.Manifest.Name]; ok {
			continue
		}
		if mr.activate(e) {
			activated++
		}
	}

	mr.lastReload = time.Now()
	mr.metrics.ModulesReloaded(nil)
	mr.logger.Info("modules reconciled",
		logger.Int("loaded", len(mr.loaded)),
		logger.Int("activated", activated),
		logger.Int("deactivated", deactivated))
	return nil
}

func (mr *ModuleReloader) activate(e moduledir.Entry) bool {
	m := &host.Module{
		Name:      e.Manifest.Name,
		Headers:   host.Headers(e.Manifest.Headers),
		Resources: os.DirFS(e.Dir),
	}
	if err := mr.registry.ActivateModule(m); err != nil {
		mr.logger.Warn("failed to activate module",
			logger.String("module", m.Name),
			logger.Error(err))
		return false
	}
	mr.loaded[m.Name] = loadedModule{module: m, dir: e.Dir, digest: e.Digest}

	for _, s := range e.Manifest.Services {
		factory, ok := mr.catalog.Lookup(s.Factory)
		if !ok {
			mr.logger.Warn("unknown service factory, skipping service",
				logger.String("module", m.Name),
				logger.String("factory", s.Factory),
				logger.Strings("known", mr.catalog.Names()))
			continue
		}
		props := host.Properties(s.Properties)
		_, err := mr.registry.Register(m, host.ServiceSpec{
			Classes:    s.Classes,
			Impl:       s.Impl,
			Factory:    func() (any, error) { return factory(m, props) },
			Properties: props,
		})
		if err != nil {
			mr.logger.Warn("failed to register service",
				logger.String("module", m.Name),
				logger.String("impl", s.Impl),
				logger.Error(err))
		}
	}
	return true
}

// Loaded lists the names of the modules activated from disk.
func (mr *ModuleReloader) Loaded() []string {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	out := make([]string, 0, len(mr.loaded))
	for name := range mr.loaded {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// LastReload returns when the directory was last reconciled.
func (mr *ModuleReloader) LastReload() time.Time {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	return mr.lastReload
}
