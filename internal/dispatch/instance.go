package dispatch

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrSnakeDoc/restpub/internal/rest"
)

// Bean is one live resource bound into the dispatch server.
type Bean struct {
	RefID    uint64
	Impl     string
	Resource rest.Resource
}

// Comparator orders two resource implementations for a request path
// (negative: first wins, positive: second wins, zero: no preference).
type Comparator interface {
	Compare(ctx context.Context, impl1, impl2, requestPath string) int
}

// RouteInfo is one route exposed by a bound resource.
type RouteInfo struct {
	Method  string `json:"method"`
	Pattern string `json:"pattern"`
}

type boundBean struct {
	Bean
	router *chi.Mux
}

// Instance is one immutable build of the dispatch server. It is replaced
// wholesale on every rewire.
type Instance struct {
	id        string
	createdAt time.Time
	beans     []boundBean
	providers *rest.Providers
	resolver  Comparator

	mu        sync.RWMutex
	stopped   bool
	destroyed bool
	inflight  sync.WaitGroup
}

func buildInstance(beans []Bean, providers *rest.Providers, resolver Comparator) (in *Instance, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			in = nil
			err = fmt.Errorf("resource routes panicked: %v", rec)
		}
	}()

	in = &Instance{
		id:        uuid.NewString(),
		createdAt: time.Now(),
		providers: providers,
		resolver:  resolver,
		beans:     make([]boundBean, 0, len(beans)),
	}
	for _, b := range beans {
		if b.Resource == nil {
			return nil, fmt.Errorf("resource %s has no instance", b.Impl)
		}
		r := chi.NewRouter()
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			rest.WriteError(w, r, rest.ErrNotFound)
		})
		b.Resource.Routes(r)
		in.beans = append(in.beans, boundBean{Bean: b, router: r})
	}
	return in, nil
}

// ID identifies the instance.
func (in *Instance) ID() string { return in.id }

// CreatedAt is when the instance was built.
func (in *Instance) CreatedAt() time.Time { return in.createdAt }

// Beans returns the resources bound into the instance, in bind order.
func (in *Instance) Beans() []Bean {
	out := make([]Bean, 0, len(in.beans))
	for _, b := range in.beans {
		out = append(out, b.Bean)
	}
	return out
}

// Routes lists the routes of the resource bound for refID.
func (in *Instance) Routes(refID uint64) ([]RouteInfo, bool) {
	for _, b := range in.beans {
		if b.RefID != refID {
			continue
		}
		var out []RouteInfo
		_ = chi.Walk(b.router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			out = append(out, RouteInfo{Method: method, Pattern: route})
			return nil
		})
		sort.Slice(out, func(i, j int) bool {
			if out[i].Pattern != out[j].Pattern {
				return out[i].Pattern < out[j].Pattern
			}
			return out[i].Method < out[j].Method
		})
		return out, true
	}
	return nil, false
}

func (in *Instance) acquire() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	if in.stopped {
		return false
	}
	in.inflight.Add(1)
	return true
}

// serve reports false when the instance was already stopped and the request
// was not handled.
func (in *Instance) serve(w http.ResponseWriter, r *http.Request, basePath, subPath string) (served, matched bool) {
	if !in.acquire() {
		return false, false
	}
	defer in.inflight.Done()

	ctx := rest.WithProviders(r.Context(), in.providers)
	ctx = rest.WithBasePath(ctx, basePath)

	best := in.pick(ctx, r.Method, basePath, subPath)
	if best == nil {
		rest.WriteError(w, r.WithContext(ctx), rest.ErrNotFound)
		return true, false
	}

	rctx := chi.NewRouteContext()
	rctx.RoutePath = subPath
	ctx = context.WithValue(ctx, chi.RouteCtxKey, rctx)
	best.router.ServeHTTP(w, r.WithContext(ctx))
	return true, true
}

// pick selects, among the resources whose routes match, the minimum under
// the resolver's order. Ties keep bind order.
func (in *Instance) pick(ctx context.Context, method, basePath, subPath string) *boundBean {
	var best *boundBean
	for i := range in.beans {
		b := &in.beans[i]
		if !b.router.Match(chi.NewRouteContext(), method, subPath) {
			continue
		}
		if best == nil {
			best = b
			continue
		}
		if in.resolver != nil && in.resolver.Compare(ctx, best.Impl, b.Impl, basePath) > 0 {
			best = b
		}
	}
	return best
}

// Stop refuses new requests and waits for in-flight ones until ctx is done.
func (in *Instance) Stop(ctx context.Context) error {
	in.mu.Lock()
	in.stopped = true
	in.mu.Unlock()

	done := make(chan struct{})
	go func() {
		in.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("drain instance %s: %w", in.id, ctx.Err())
	}
}

// Destroy marks the instance dead. Requests that outlived the drain keep
// their router until they return.
func (in *Instance) Destroy() {
	in.mu.Lock()
	defer in.mu.Unlock()
	in.stopped = true
	in.destroyed = true
}

// Destroyed reports whether Destroy was called.
func (in *Instance) Destroyed() bool {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return in.destroyed
}
