package moduledir

import (
	"fmt"
	"sort"
	"sync"

	"github.com/MrSnakeDoc/restpub/internal/host"
)

// Factory builds a service object for a module. It runs lazily, the first
// time the host registry is asked for the service.
type Factory func(m *host.Module, props host.Properties) (any, error)

// Catalog maps the factory names used in manifests to Go constructors.
type Catalog struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

func NewCatalog() *Catalog {
	return &Catalog{factories: make(map[string]Factory)}
}

// Register adds a factory. Registering a name twice is a programming error.
func (c *Catalog) Register(name string, f Factory) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.factories[name]; dup {
		panic(fmt.Sprintf("moduledir: factory %q registered twice", name))
	}
	c.factories[name] = f
}

func (c *Catalog) Lookup(name string) (Factory, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[name]
	return f, ok
}

// Names lists the registered factories, sorted.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.factories))
	for name := range c.factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
