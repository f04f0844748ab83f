// Package watcher reacts to the host registry: services carrying a service
// path become published endpoints, modules declaring static assets get a
// static mount.
package watcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/restpub/internal/dispatch"
	"github.com/MrSnakeDoc/restpub/internal/endpoint"
	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/mount"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/metrics"
	"github.com/MrSnakeDoc/restpub/internal/rest"
)

const directoryTimeout = 3 * time.Second

// Directory mirrors published endpoints somewhere outside the process.
type Directory interface {
	Published(ctx context.Context, d endpoint.Descriptor) error
	Withdrawn(ctx context.Context, d endpoint.Descriptor) error
}

// PathInvalidator forgets cached service paths of an implementation.
type PathInvalidator interface {
	Invalidate(impl string)
}

type ServiceWatcherConfig struct {
	Registry  *host.Registry
	Endpoints *endpoint.Registry
	Table     *mount.Table
	Server    *dispatch.Server
	Paths     PathInvalidator // optional
	Directory Directory       // optional
	DocsURL   string
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

// ServiceWatcher publishes every resource service that declares a path.
type ServiceWatcher struct {
	cfg ServiceWatcherConfig
	log logger.Logger

	mu      sync.Mutex
	untrack func()
}

func NewServiceWatcher(cfg ServiceWatcherConfig) *ServiceWatcher {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	return &ServiceWatcher{cfg: cfg, log: cfg.Logger}
}

// Filter accepts services with a non-empty service path that are not raw
// http.Handler services.
func Filter(ref *host.ServiceReference) bool {
	if strings.TrimSpace(ref.Property(rest.ServicePathProperty)) == "" {
		return false
	}
	return !ref.Provides(rest.HandlerClass)
}

// Open starts tracking. Services already registered are published before
// Open returns.
func (w *ServiceWatcher) Open() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.untrack != nil {
		return
	}
	w.untrack = w.cfg.Registry.TrackServices(Filter, w)
}

// Close stops tracking and withdraws every endpoint it published.
func (w *ServiceWatcher) Close() {
	w.mu.Lock()
	untrack := w.untrack
	w.untrack = nil
	w.mu.Unlock()

	if untrack != nil {
		untrack()
	}
}

func (w *ServiceWatcher) ServiceAdded(ref *host.ServiceReference) {
	svc := w.cfg.Registry.GetService(ref)
	if svc == nil {
		w.log.Info("service object no longer available, not publishing",
			logger.String("service", ref.String()))
		return
	}

	res, ok := svc.(rest.Resource)
	if !ok {
		w.log.Warn("service declares a path but is not a REST resource",
			logger.String("service", ref.String()),
			logger.String("path", ref.Property(rest.ServicePathProperty)))
		return
	}

	d := endpoint.NewDescriptor(ref)
	_, err := w.cfg.Endpoints.Register(d, func() (endpoint.Handle, error) {
		router := dispatch.NewRouter(w.cfg.Server, d.Path, w.cfg.DocsURL, w.log, w.cfg.Metrics)
		return w.cfg.Table.Register(d.Path, handlerPattern(d.Path), router)
	})
	switch {
	case errors.Is(err, endpoint.ErrAlreadyRegistered):
		w.log.Debug("endpoint already registered",
			logger.String("path", d.Path),
			logger.String("impl", d.Impl))
		return
	case err != nil:
		w.log.Info("failed to register endpoint handler",
			logger.String("path", d.Path),
			logger.String("impl", d.Impl),
			logger.Error(err))
		return
	}

	if w.cfg.Paths != nil {
		w.cfg.Paths.Invalidate(d.Impl)
	}
	w.cfg.Server.AddBean(dispatch.Bean{RefID: d.RefID, Impl: d.Impl, Resource: res})
	if err := w.cfg.Server.Rewire(); err != nil {
		// The previous instance stays live; back the endpoint out entirely.
		w.cfg.Server.RemoveBean(d.RefID)
		if reg, owned := w.cfg.Endpoints.UnregisterOwned(d.Path, d.RefID); owned {
			reg.Handle.Unregister()
		}
		if w.cfg.Paths != nil {
			w.cfg.Paths.Invalidate(d.Impl)
		}
		w.log.Error("failed to rewire dispatch server, endpoint not published",
			logger.String("path", d.Path),
			logger.String("impl", d.Impl),
			logger.Error(err))
		return
	}
	w.cfg.Metrics.SetPublishedEndpoints(w.cfg.Endpoints.Count())

	w.log.Info("REST endpoint published",
		logger.String("path", d.Path),
		logger.String("impl", d.Impl),
		logger.String("module", d.Module),
		logger.Bool("publish", d.Publish),
		logger.Bool("job_producer", d.JobProducer))

	w.mirror(d, true)

	if p, ok := res.(rest.EndpointPublisher); ok {
		p.EndpointPublished()
	}
}

func (w *ServiceWatcher) ServiceRemoved(ref *host.ServiceReference) {
	d := endpoint.NewDescriptor(ref)

	reg, owned := w.cfg.Endpoints.UnregisterOwned(d.Path, ref.ID())
	removed := w.cfg.Server.RemoveBean(ref.ID())
	if !owned && !removed {
		return
	}

	if owned {
		reg.Handle.Unregister()
	}
	if w.cfg.Paths != nil {
		w.cfg.Paths.Invalidate(d.Impl)
	}
	if err := w.cfg.Server.Rewire(); err != nil {
		w.log.Error("failed to rewire dispatch server",
			logger.String("path", d.Path),
			logger.Error(err))
	}
	w.cfg.Metrics.SetPublishedEndpoints(w.cfg.Endpoints.Count())

	w.log.Info("REST endpoint unpublished",
		logger.String("path", d.Path),
		logger.String("impl", d.Impl))

	if owned {
		w.mirror(d, false)
	}
}

func (w *ServiceWatcher) mirror(d endpoint.Descriptor, published bool) {
	if w.cfg.Directory == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), directoryTimeout)
	defer cancel()

	var err error
	if published {
		err = w.cfg.Directory.Published(ctx, d)
	} else {
		err = w.cfg.Directory.Withdrawn(ctx, d)
	}
	if err != nil {
		w.log.Warn("endpoint directory update failed",
			logger.String("path", d.Path),
			logger.Bool("published", published),
			logger.Error(err))
	}
}

// handlerPattern mounts path and everything below it.
func handlerPattern(path string) string {
	return strings.TrimSuffix(path, "/") + "/*"
}
