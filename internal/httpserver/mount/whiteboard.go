package mount

import (
	"net/http"
	"sync"

	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/rest"
)

// handlerTracker mounts raw http.Handler services registered by modules.
type handlerTracker struct {
	table *Table
	reg   *host.Registry
	log   logger.Logger

	mu     sync.Mutex
	mounts map[uint64]*Registration
}

func isRawHandler(ref *host.ServiceReference) bool {
	return ref.Provides(rest.HandlerClass) && ref.Property(rest.HandlerPatternProperty) != ""
}

func (t *handlerTracker) ServiceAdded(ref *host.ServiceReference) {
	h, ok := t.reg.GetService(ref).(http.Handler)
	if !ok {
		t.log.Warn("raw handler service is not an http.Handler",
			logger.String("service", ref.String()))
		return
	}

	name := ref.Property(rest.HandlerNameProperty)
	if name == "" {
		name = ref.Impl()
	}
	pattern := ref.Property(rest.HandlerPatternProperty)

	m, err := t.table.Register(name, pattern, h)
	if err != nil {
		t.log.Warn("failed to mount raw handler",
			logger.String("name", name),
			logger.String("pattern", pattern),
			logger.Error(err))
		return
	}

	t.mu.Lock()
	t.mounts[ref.ID()] = m
	t.mu.Unlock()

	t.log.Info("raw handler mounted",
		logger.String("name", name),
		logger.String("pattern", pattern))
}

func (t *handlerTracker) ServiceRemoved(ref *host.ServiceReference) {
	t.mu.Lock()
	m, ok := t.mounts[ref.ID()]
	delete(t.mounts, ref.ID())
	t.mu.Unlock()

	if !ok {
		return
	}
	m.Unregister()
	t.log.Info("raw handler unmounted", logger.String("pattern", m.Info().Pattern))
}

// TrackHandlers mounts every http.Handler service carrying an http.pattern
// property for as long as it stays registered. The returned function stops
// tracking and unmounts everything.
func (t *Table) TrackHandlers(reg *host.Registry, log logger.Logger) (untrack func()) {
	ht := &handlerTracker{
		table:  t,
		reg:    reg,
		log:    log,
		mounts: make(map[uint64]*Registration),
	}
	return reg.TrackServices(isRawHandler, ht)
}
