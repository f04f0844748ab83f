package host

import (
	"sort"
	"sync"
)

type serviceTracker struct {
	registry *Registry
	filter   func(*ServiceReference) bool
	listener ServiceListener

	// deliver serializes callbacks and guards tracked/closed.
	deliver sync.Mutex
	tracked map[uint64]*ServiceReference
	closed  bool
}

func (t *serviceTracker) add(ref *ServiceReference) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	if t.closed || t.tracked[ref.id] != nil {
		return
	}
	// A removal that raced ahead of this addition already happened.
	if !t.registry.registered(ref.id) {
		return
	}
	t.tracked[ref.id] = ref
	t.listener.ServiceAdded(ref)
}

func (t *serviceTracker) remove(ref *ServiceReference) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	if t.tracked[ref.id] == nil {
		return
	}
	delete(t.tracked, ref.id)
	t.listener.ServiceRemoved(ref)
}

func (t *serviceTracker) close() {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.closed = true
	refs := make([]*ServiceReference, 0, len(t.tracked))
	for _, ref := range t.tracked {
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].id > refs[j].id })
	for _, ref := range refs {
		delete(t.tracked, ref.id)
		t.listener.ServiceRemoved(ref)
	}
}

// TrackServices subscribes l to services accepted by filter. Services already
// registered are replayed as additions before TrackServices returns. The
// returned function closes the tracker, replaying removals for everything
// still tracked.
func (r *Registry) TrackServices(filter func(*ServiceReference) bool, l ServiceListener) (untrack func()) {
	if filter == nil {
		filter = func(*ServiceReference) bool { return true }
	}
	t := &serviceTracker{
		registry: r,
		filter:   filter,
		listener: l,
		tracked:  make(map[uint64]*ServiceReference),
	}

	r.mu.Lock()
	r.nextID++
	key := r.nextID
	r.serviceTrackers[key] = t
	existing := r.referencesLocked(filter)
	r.mu.Unlock()

	for _, ref := range existing {
		t.add(ref)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.serviceTrackers, key)
			r.mu.Unlock()
			t.close()
		})
	}
}

func (r *Registry) serviceTrackersLocked() []*serviceTracker {
	keys := make([]uint64, 0, len(r.serviceTrackers))
	for k := range r.serviceTrackers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]*serviceTracker, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.serviceTrackers[k])
	}
	return out
}

type moduleTracker struct {
	registry *Registry
	listener ModuleListener

	deliver sync.Mutex
	tracked map[string]*Module
	closed  bool
}

func (t *moduleTracker) activated(m *Module) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	if t.closed || t.tracked[m.Name] == m {
		return
	}
	if !t.registry.moduleActive(m) {
		return
	}
	t.tracked[m.Name] = m
	t.listener.ModuleActivated(m)
}

func (t *moduleTracker) deactivated(m *Module) {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	if t.tracked[m.Name] != m {
		return
	}
	delete(t.tracked, m.Name)
	t.listener.ModuleDeactivated(m)
}

func (t *moduleTracker) close() {
	t.deliver.Lock()
	defer t.deliver.Unlock()

	t.closed = true
	names := make([]string, 0, len(t.tracked))
	for name := range t.tracked {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		m := t.tracked[name]
		delete(t.tracked, name)
		t.listener.ModuleDeactivated(m)
	}
}

// TrackModules subscribes l to module lifecycle events. Active modules are
// replayed as activations first; closing replays deactivations.
func (r *Registry) TrackModules(l ModuleListener) (untrack func()) {
	t := &moduleTracker{
		registry: r,
		listener: l,
		tracked:  make(map[string]*Module),
	}

	r.mu.Lock()
	r.nextID++
	key := r.nextID
	r.moduleTrackers[key] = t
	active := make([]*Module, 0, len(r.modules))
	for _, m := range r.modules {
		active = append(active, m)
	}
	r.mu.Unlock()

	sort.Slice(active, func(i, j int) bool { return active[i].Name < active[j].Name })
	for _, m := range active {
		t.activated(m)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.moduleTrackers, key)
			r.mu.Unlock()
			t.close()
		})
	}
}

func (r *Registry) moduleTrackersLocked() []*moduleTracker {
	keys := make([]uint64, 0, len(r.moduleTrackers))
	for k := range r.moduleTrackers {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	out := make([]*moduleTracker, 0, len(keys))
	for _, k := range keys {
		out = append(out, r.moduleTrackers[k])
	}
	return out
}
