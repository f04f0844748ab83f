// Package publisher assembles the endpoint publishing core: the handler
// table, the dispatch server, the precedence resolver and the two watchers
// that keep them in sync with the host registry.
package publisher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MrSnakeDoc/restpub/internal/dispatch"
	"github.com/MrSnakeDoc/restpub/internal/endpoint"
	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/mount"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/metrics"
	"github.com/MrSnakeDoc/restpub/internal/precedence"
	"github.com/MrSnakeDoc/restpub/internal/resources"
	"github.com/MrSnakeDoc/restpub/internal/rest"
	"github.com/MrSnakeDoc/restpub/internal/watcher"
)

// Paths of the resources restpub publishes about itself.
const (
	InfoPath     = "/restpub/info"
	ServicesPath = "/restpub/services"
)

type Options struct {
	Registry     *host.Registry
	Providers    *rest.Providers // nil means rest.DefaultProviders
	Directory    watcher.Directory
	DocsURL      string
	PathCacheTTL time.Duration
	DrainTimeout time.Duration
	Logger       logger.Logger
	Metrics      *metrics.Metrics
}

// Publisher owns the core components for the lifetime of the process.
type Publisher struct {
	registry  *host.Registry
	paths     *precedence.PathCache
	endpoints *endpoint.Registry
	table     *mount.Table
	server    *dispatch.Server
	services  *watcher.ServiceWatcher
	statics   *watcher.StaticWatcher
	log       logger.Logger

	mu       sync.Mutex
	opened   bool
	untrack  func()
	builtins []*host.ServiceRegistration
}

func New(opts Options) (*Publisher, error) {
	if opts.Registry == nil {
		return nil, errors.New("publisher: nil host registry")
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.DocsURL == "" {
		opts.DocsURL = "/docs.html"
	}

	paths, err := precedence.NewPathCache(opts.Registry, opts.PathCacheTTL, opts.Logger.Named("precedence"))
	if err != nil {
		return nil, err
	}

	p := &Publisher{
		registry:  opts.Registry,
		paths:     paths,
		endpoints: endpoint.NewRegistry(),
		table:     mount.NewTable(),
		log:       opts.Logger,
	}
	p.server = dispatch.NewServer(dispatch.Options{
		Providers:    opts.Providers,
		Resolver:     precedence.NewResolver(paths),
		Logger:       opts.Logger.Named("dispatch"),
		DrainTimeout: opts.DrainTimeout,
		Metrics:      opts.Metrics,
	})
	p.services = watcher.NewServiceWatcher(watcher.ServiceWatcherConfig{
		Registry:  opts.Registry,
		Endpoints: p.endpoints,
		Table:     p.table,
		Server:    p.server,
		Paths:     paths,
		Directory: opts.Directory,
		DocsURL:   opts.DocsURL,
		Logger:    opts.Logger.Named("services"),
		Metrics:   opts.Metrics,
	})
	p.statics = watcher.NewStaticWatcher(opts.Registry, p.table, opts.Logger.Named("static"), opts.Metrics)

	return p, nil
}

// Open starts tracking the host registry. Everything already registered is
// mounted and published before Open returns.
func (p *Publisher) Open() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.opened {
		return
	}
	p.opened = true

	p.untrack = p.table.TrackHandlers(p.registry, p.log.Named("handlers"))
	p.statics.Open()
	p.services.Open()
	p.log.Info("publisher started",
		logger.Int("endpoints", p.endpoints.Count()),
		logger.Int("static_mounts", len(p.statics.Mounts())))
}

// RegisterBuiltins publishes the info and services resources on behalf of
// the system module, activating it if needed.
func (p *Publisher) RegisterBuiltins(node string, started time.Time) error {
	sys := &host.Module{Name: host.SystemModule}
	if err := p.registry.ActivateModule(sys); err != nil {
		if !errors.Is(err, host.ErrModuleActive) {
			return err
		}
		sys, _ = p.registry.Module(host.SystemModule)
	}

	specs := []host.ServiceSpec{
		{
			Classes:  []string{rest.ResourceClass},
			Impl:     "restpub.Info",
			Instance: resources.NewInfo(node, started),
			Properties: host.Properties{
				rest.ServicePathProperty: InfoPath,
				rest.ServiceTypeProperty: "system",
			},
		},
		{
			Classes:  []string{rest.ResourceClass},
			Impl:     "restpub.Services",
			Instance: resources.NewServices(p.endpoints),
			Properties: host.Properties{
				rest.ServicePathProperty: ServicesPath,
				rest.ServiceTypeProperty: "system",
			},
		},
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	for _, spec := range specs {
		reg, err := p.registry.Register(sys, spec)
		if err != nil {
			return fmt.Errorf("register %s: %w", spec.Impl, err)
		}
		p.builtins = append(p.builtins, reg)
	}
	return nil
}

// Close withdraws every endpoint and static mount, then stops the live
// dispatch instance, waiting for in-flight requests until ctx is done.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	builtins := p.builtins
	p.builtins = nil
	untrack := p.untrack
	p.untrack = nil
	p.opened = false
	p.mu.Unlock()

	for _, b := range builtins {
		b.Unregister()
	}
	p.services.Close()
	p.statics.Close()
	if untrack != nil {
		untrack()
	}

	err := p.server.Close(ctx)
	p.paths.Close()
	p.log.Info("publisher stopped")
	return err
}

// Handler serves every mounted endpoint, static mount and raw handler.
func (p *Publisher) Handler() http.Handler { return p.table }

func (p *Publisher) Endpoints() *endpoint.Registry { return p.endpoints }
func (p *Publisher) Table() *mount.Table           { return p.table }
func (p *Publisher) Server() *dispatch.Server      { return p.server }

// StaticMounts lists the current static mounts.
func (p *Publisher) StaticMounts() []watcher.StaticMount { return p.statics.Mounts() }

// Docs lists the routes of the resource published at path.
func (p *Publisher) Docs(path string) ([]dispatch.RouteInfo, error) {
	reg, ok := p.endpoints.Get(path)
	if !ok {
		return nil, fmt.Errorf("no endpoint at %s: %w", path, rest.ErrNotFound)
	}
	return p.server.Routes(reg.Descriptor.RefID)
}
