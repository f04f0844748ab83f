// Package dispatch owns the single live dispatch instance every published
// endpoint forwards into, and rebuilds it whenever the set of resources changes.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/metrics"
	"github.com/MrSnakeDoc/restpub/internal/rest"
)

// DefaultDrainTimeout bounds how long a replaced instance may take to finish
// its in-flight requests.
const DefaultDrainTimeout = 10 * time.Second

// ErrNoInstance is returned by Routes before the first successful rewire.
var ErrNoInstance = errors.New("no dispatch instance")

type Options struct {
	Providers    *rest.Providers
	Resolver     Comparator
	Logger       logger.Logger
	DrainTimeout time.Duration
	Metrics      *metrics.Metrics
}

// Server holds the active resources and the live instance built from them.
type Server struct {
	providers    *rest.Providers
	resolver     Comparator
	log          logger.Logger
	drainTimeout time.Duration
	metrics      *metrics.Metrics

	// mu serializes Rewire and Close.
	mu      sync.Mutex
	current atomic.Pointer[Instance]

	beansMu sync.Mutex
	beans   []Bean
}

func NewServer(opts Options) *Server {
	if opts.Providers == nil {
		opts.Providers = rest.DefaultProviders()
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = DefaultDrainTimeout
	}
	return &Server{
		providers:    opts.Providers,
		resolver:     opts.Resolver,
		log:          opts.Logger,
		drainTimeout: opts.DrainTimeout,
		metrics:      opts.Metrics,
	}
}

// AddBean appends b to the active resources. It takes effect on the next Rewire.
func (s *Server) AddBean(b Bean) {
	s.beansMu.Lock()
	defer s.beansMu.Unlock()
	s.beans = append(s.beans, b)
}

// RemoveBean drops the resource registered for refID.
func (s *Server) RemoveBean(refID uint64) bool {
	s.beansMu.Lock()
	defer s.beansMu.Unlock()
	for i, b := range s.beans {
		if b.RefID == refID {
			s.beans = append(s.beans[:i:i], s.beans[i+1:]...)
			return true
		}
	}
	return false
}

// Beans returns a snapshot of the active resources, in insertion order.
func (s *Server) Beans() []Bean {
	s.beansMu.Lock()
	defer s.beansMu.Unlock()
	out := make([]Bean, len(s.beans))
	copy(out, s.beans)
	return out
}

// Current returns the live instance, or nil.
func (s *Server) Current() *Instance {
	return s.current.Load()
}

// Rewire replaces the live instance with one built from the current active
// resources. With no active resource it does nothing and keeps the previous
// instance. A failed build leaves the previous instance live.
func (s *Server) Rewire() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	beans := s.Beans()
	if len(beans) == 0 {
		s.log.Debug("no active resources, keeping current dispatch instance")
		s.metrics.RewireSkipped()
		return nil
	}

	start := time.Now()
	next, err := buildInstance(beans, s.providers, s.resolver)
	if err != nil {
		s.metrics.RewireDone(time.Since(start), 0, err)
		return fmt.Errorf("build dispatch instance: %w", err)
	}

	if prev := s.current.Load(); prev != nil {
		s.retire(prev)
	}
	s.current.Store(next)

	s.metrics.RewireDone(time.Since(start), len(beans), nil)
	s.log.Info("dispatch instance rewired",
		logger.String("instance", next.ID()),
		logger.Int("resources", len(beans)),
		logger.Duration("took", time.Since(start)))
	return nil
}

func (s *Server) retire(in *Instance) {
	ctx, cancel := context.WithTimeout(context.Background(), s.drainTimeout)
	defer cancel()

	if err := in.Stop(ctx); err != nil {
		s.log.Warn("in-flight requests outlived the drain timeout",
			logger.String("instance", in.ID()),
			logger.Error(err))
	}
	in.Destroy()
}

// Dispatch serves r through the live instance. A request that races a
// rewire waits for it and is served by the new instance.
func (s *Server) Dispatch(w http.ResponseWriter, r *http.Request, basePath, subPath string) {
	for {
		in := s.current.Load()
		if in == nil {
			s.metrics.Dispatched("unavailable")
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		}
		served, matched := in.serve(w, r, basePath, subPath)
		if served {
			if matched {
				s.metrics.Dispatched("served")
			} else {
				s.metrics.Dispatched("not_found")
			}
			return
		}
		// Stopped under our feet: wait for the rewire that stopped it.
		s.mu.Lock()
		s.mu.Unlock() //nolint:staticcheck // barrier
	}
}

// Routes lists the routes of the resource bound for refID in the live instance.
func (s *Server) Routes(refID uint64) ([]RouteInfo, error) {
	in := s.current.Load()
	if in == nil {
		return nil, ErrNoInstance
	}
	routes, ok := in.Routes(refID)
	if !ok {
		return nil, fmt.Errorf("resource %d: %w", refID, rest.ErrNotFound)
	}
	return routes, nil
}

// Close stops and destroys the live instance. Later requests get 503.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	in := s.current.Swap(nil)
	if in == nil {
		return nil
	}
	err := in.Stop(ctx)
	in.Destroy()
	return err
}
