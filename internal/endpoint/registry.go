// Package endpoint keeps track of which service path is published by whom.
package endpoint

import (
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrAlreadyRegistered is returned when a path already has a registration.
var ErrAlreadyRegistered = errors.New("endpoint already registered")

// Handle is the low-level handler registration behind an endpoint.
type Handle interface {
	Unregister()
}

// Registration maps a published path to its handler handle and descriptor.
type Registration struct {
	Path         string
	Handle       Handle
	Descriptor   Descriptor
	RegisteredAt time.Time
}

// Registry provides in-memory bookkeeping of published endpoints.
// At most one registration exists per path.
type Registry struct {
	mu         sync.RWMutex
	entries    map[string]*Registration // Path -> Registration
	lastChange time.Time                // Timestamp of last register/unregister
}

// NewRegistry creates an empty endpoint registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Registration),
	}
}

// Register records d under d.Path. mount creates the handler registration and
// runs inside the registry's critical section, so two concurrent registers
// for one path can never both mount. If the path is taken, mount is not
// called and ErrAlreadyRegistered is returned; a mount error is returned as-is
// and nothing is recorded.
func (r *Registry) Register(d Descriptor, mount func() (Handle, error)) (*Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[d.Path]; exists {
		return nil, ErrAlreadyRegistered
	}

	h, err := mount()
	if err != nil {
		return nil, err
	}

	reg := &Registration{
		Path:         d.Path,
		Handle:       h,
		Descriptor:   d,
		RegisteredAt: time.Now(),
	}
	r.entries[d.Path] = reg
	r.lastChange = reg.RegisteredAt
	return reg, nil
}

// Unregister removes and returns the registration for path, if any.
func (r *Registry) Unregister(path string) (*Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.entries[path]
	if !ok {
		return nil, false
	}
	delete(r.entries, path)
	r.lastChange = time.Now()
	return reg, true
}

// UnregisterOwned removes the registration for path only when it was created
// for the given host reference.
func (r *Registry) UnregisterOwned(path string, refID uint64) (*Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.entries[path]
	if !ok || reg.Descriptor.RefID != refID {
		return nil, false
	}
	delete(r.entries, path)
	r.lastChange = time.Now()
	return reg, true
}

// Get retrieves the registration for a path
func (r *Registry) Get(path string) (*Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.entries[NormalizePath(path)]
	return reg, ok
}

// All returns every registration sorted by path
func (r *Registry) All() []*Registration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Registration, 0, len(r.entries))
	for _, reg := range r.entries {
		out = append(out, reg)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Count returns the number of published endpoints
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// LastChange returns the timestamp of the last register/unregister
func (r *Registry) LastChange() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastChange
}
