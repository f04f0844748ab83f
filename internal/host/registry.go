package host

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	// ErrModuleActive is returned when activating a module that is already active.
	ErrModuleActive = errors.New("module already active")
	// ErrModuleInactive is returned when a module is not (or no longer) active.
	ErrModuleInactive = errors.New("module not active")
	// ErrNoService is returned when a ServiceSpec carries neither instance nor factory.
	ErrNoService = errors.New("service spec has neither instance nor factory")
)

// ServiceSpec describes a service to register.
type ServiceSpec struct {
	// Classes are the capabilities the service is registered under.
	Classes []string
	// Impl names the implementation; precedence lookups key on it.
	Impl string
	// Instance is the live service object. Mutually exclusive with Factory.
	Instance any
	// Factory lazily produces the instance on first GetService. A factory
	// error leaves the service without instance for its whole lifetime.
	Factory    func() (any, error)
	Properties Properties
}

// ServiceListener receives service additions and removals from a tracker.
type ServiceListener interface {
	ServiceAdded(ref *ServiceReference)
	ServiceRemoved(ref *ServiceReference)
}

// ModuleListener receives module activations and deactivations.
type ModuleListener interface {
	ModuleActivated(m *Module)
	ModuleDeactivated(m *Module)
}

type serviceEntry struct {
	ref      *ServiceReference
	instance any
	factory  func() (any, error)
	once     sync.Once
	err      error
}

// Registry is an in-process, event-driven registry of modules and services.
//
// Listeners are invoked synchronously on the goroutine that caused the event,
// outside of the registry lock. Callbacks of one tracker are serialized, so a
// listener must not register or unregister services matching its own tracker
// from inside a callback.
type Registry struct {
	mu              sync.RWMutex
	nextID          uint64
	modules         map[string]*Module
	deactivating    map[*Module]bool
	services        map[uint64]*serviceEntry
	serviceTrackers map[uint64]*serviceTracker
	moduleTrackers  map[uint64]*moduleTracker
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		modules:         make(map[string]*Module),
		deactivating:    make(map[*Module]bool),
		services:        make(map[uint64]*serviceEntry),
		serviceTrackers: make(map[uint64]*serviceTracker),
		moduleTrackers:  make(map[uint64]*moduleTracker),
	}
}

// ─────────────────────────────────────────────────────────────────
// Modules
// ─────────────────────────────────────────────────────────────────

// ActivateModule marks the module active and notifies module trackers.
func (r *Registry) ActivateModule(m *Module) error {
	if m == nil || m.Name == "" {
		return fmt.Errorf("activate module: empty name")
	}

	r.mu.Lock()
	if _, ok := r.modules[m.Name]; ok {
		r.mu.Unlock()
		return fmt.Errorf("activate %s: %w", m.Name, ErrModuleActive)
	}
	r.modules[m.Name] = m
	trackers := r.moduleTrackersLocked()
	r.mu.Unlock()

	for _, t := range trackers {
		t.activated(m)
	}
	return nil
}

// DeactivateModule unregisters every service the module registered, then
// marks it inactive and notifies module trackers. From the moment it is
// called, Register rejects the module.
func (r *Registry) DeactivateModule(name string) error {
	r.mu.Lock()
	m, ok := r.modules[name]
	if !ok || r.deactivating[m] {
		r.mu.Unlock()
		return fmt.Errorf("deactivate %s: %w", name, ErrModuleInactive)
	}
	r.deactivating[m] = true
	var owned []uint64
	for id, e := range r.services {
		if e.ref.module == m {
			owned = append(owned, id)
		}
	}
	r.mu.Unlock()

	sort.Slice(owned, func(i, j int) bool { return owned[i] > owned[j] })
	for _, id := range owned {
		r.unregister(id)
	}

	r.mu.Lock()
	delete(r.modules, name)
	delete(r.deactivating, m)
	trackers := r.moduleTrackersLocked()
	r.mu.Unlock()

	for _, t := range trackers {
		t.deactivated(m)
	}
	return nil
}

// Module returns the active module with the given name.
func (r *Registry) Module(name string) (*Module, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	m, ok := r.modules[name]
	return m, ok
}

// Modules returns the active modules sorted by name.
func (r *Registry) Modules() []*Module {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) moduleActive(m *Module) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.modules[m.Name] == m
}

// ─────────────────────────────────────────────────────────────────
// Services
// ─────────────────────────────────────────────────────────────────

// Register registers a service on behalf of an active module.
func (r *Registry) Register(m *Module, spec ServiceSpec) (*ServiceRegistration, error) {
	if spec.Instance == nil && spec.Factory == nil {
		return nil, ErrNoService
	}
	if m == nil {
		return nil, fmt.Errorf("register %s: %w", spec.Impl, ErrModuleInactive)
	}

	r.mu.Lock()
	if r.modules[m.Name] != m || r.deactivating[m] {
		r.mu.Unlock()
		return nil, fmt.Errorf("register %s for %s: %w", spec.Impl, m.Name, ErrModuleInactive)
	}
	r.nextID++
	ref := &ServiceReference{
		id:      r.nextID,
		module:  m,
		classes: append([]string(nil), spec.Classes...),
		impl:    spec.Impl,
		props:   spec.Properties.clone(),
	}
	r.services[ref.id] = &serviceEntry{
		ref:      ref,
		instance: spec.Instance,
		factory:  spec.Factory,
	}
	trackers := r.serviceTrackersLocked()
	r.mu.Unlock()

	for _, t := range trackers {
		if t.filter(ref) {
			t.add(ref)
		}
	}

	return &ServiceRegistration{registry: r, ref: ref}, nil
}

func (r *Registry) unregister(id uint64) {
	r.mu.Lock()
	e, ok := r.services[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.services, id)
	trackers := r.serviceTrackersLocked()
	r.mu.Unlock()

	for _, t := range trackers {
		t.remove(e.ref)
	}
}

// GetService returns the live instance behind ref, or nil when the service is
// unregistered or could not be instantiated.
func (r *Registry) GetService(ref *ServiceReference) any {
	if ref == nil {
		return nil
	}
	r.mu.RLock()
	e, ok := r.services[ref.id]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	e.once.Do(func() {
		if e.instance != nil || e.factory == nil {
			return
		}
		v, err := e.factory()
		if err != nil {
			e.err = err
			return
		}
		e.instance = v
	})
	return e.instance
}

// ServiceReference returns the registered service with the given
// implementation name. When several match, the oldest registration wins.
func (r *Registry) ServiceReference(impl string) *ServiceReference {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *ServiceReference
	for _, e := range r.services {
		if e.ref.impl != impl {
			continue
		}
		if best == nil || e.ref.id < best.id {
			best = e.ref
		}
	}
	return best
}

// References returns the registered services accepted by filter, oldest first.
// A nil filter accepts everything.
func (r *Registry) References(filter func(*ServiceReference) bool) []*ServiceReference {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.referencesLocked(filter)
}

func (r *Registry) referencesLocked(filter func(*ServiceReference) bool) []*ServiceReference {
	out := make([]*ServiceReference, 0, len(r.services))
	for _, e := range r.services {
		if filter == nil || filter(e.ref) {
			out = append(out, e.ref)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

func (r *Registry) registered(id uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.services[id]
	return ok
}

// ServiceRegistration is returned by Register and owns the registration.
type ServiceRegistration struct {
	registry *Registry
	ref      *ServiceReference
	once     sync.Once
}

// Reference returns the reference for this registration.
func (s *ServiceRegistration) Reference() *ServiceReference { return s.ref }

// Unregister removes the service. Safe to call more than once.
func (s *ServiceRegistration) Unregister() {
	s.once.Do(func() { s.registry.unregister(s.ref.id) })
}
