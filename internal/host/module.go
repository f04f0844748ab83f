// Package host models the modular runtime that restpub watches: modules that
// are activated and deactivated, and the services they register while active.
package host

import (
	"io/fs"
	"strings"
)

// SystemModule is the name of the always-active module owning the services
// restpub registers itself.
const SystemModule = "system"

// Headers are the manifest headers a module declares.
type Headers map[string]string

// Get returns the header value, or "" if absent.
func (h Headers) Get(key string) string {
	return h[key]
}

// Lookup returns the header value and whether it was declared at all.
func (h Headers) Lookup(key string) (string, bool) {
	v, ok := h[key]
	return v, ok
}

// Module is a dynamically loadable unit of the host runtime.
type Module struct {
	// Name uniquely identifies the module within a Registry.
	Name string

	// Headers are the manifest headers (static asset metadata and friends).
	Headers Headers

	// Resources is the module's own resource loader. Static files are always
	// resolved through it, never through the process working directory.
	Resources fs.FS
}

// Properties are the metadata attached to a service registration.
type Properties map[string]string

// Lookup returns the property value and whether it was set.
func (p Properties) Lookup(key string) (string, bool) {
	v, ok := p[key]
	return v, ok
}

func (p Properties) clone() Properties {
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// ServiceReference is a handle on one service registration. It stays valid
// (for reading its metadata) after the service is unregistered.
type ServiceReference struct {
	id      uint64
	module  *Module
	classes []string
	impl    string
	props   Properties
}

func (r *ServiceReference) ID() uint64      { return r.id }
func (r *ServiceReference) Module() *Module { return r.module }
func (r *ServiceReference) Impl() string    { return r.impl }
func (r *ServiceReference) Classes() []string {
	out := make([]string, len(r.classes))
	copy(out, r.classes)
	return out
}

// Property returns the property value, or "" when unset.
func (r *ServiceReference) Property(key string) string {
	return r.props[key]
}

// LookupProperty distinguishes an unset property from an empty one.
func (r *ServiceReference) LookupProperty(key string) (string, bool) {
	return r.props.Lookup(key)
}

// Provides reports whether the service was registered under the given class.
func (r *ServiceReference) Provides(class string) bool {
	for _, c := range r.classes {
		if c == class {
			return true
		}
	}
	return false
}

func (r *ServiceReference) String() string {
	var b strings.Builder
	b.WriteString("service[")
	b.WriteString(r.impl)
	if r.module != nil {
		b.WriteString(" from ")
		b.WriteString(r.module.Name)
	}
	b.WriteString("]")
	return b.String()
}
