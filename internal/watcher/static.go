package watcher

import (
	"sort"
	"strconv"
	"sync"

	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/mount"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/metrics"
	"github.com/MrSnakeDoc/restpub/internal/rest"
	"github.com/MrSnakeDoc/restpub/internal/static"
)

// StaticMount is the static resource registered for one module.
type StaticMount struct {
	Module    string `json:"module"`
	Classpath string `json:"classpath"`
	Alias     string `json:"alias"`
	Welcome   string `json:"welcome,omitempty"`
	SPA       bool   `json:"spa"`
	Pattern   string `json:"pattern"`

	reg *mount.Registration
}

// StaticWatcher mounts the static assets of every active module that
// declares both a classpath and an alias header.
type StaticWatcher struct {
	registry *host.Registry
	table    *mount.Table
	log      logger.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	mounts  map[string]*StaticMount
	untrack func()
}

func NewStaticWatcher(registry *host.Registry, table *mount.Table, log logger.Logger, m *metrics.Metrics) *StaticWatcher {
	if log == nil {
		log = logger.Nop()
	}
	return &StaticWatcher{
		registry: registry,
		table:    table,
		log:      log,
		metrics:  m,
		mounts:   make(map[string]*StaticMount),
	}
}

// Open starts tracking modules; active modules are mounted before it returns.
func (w *StaticWatcher) Open() {
	w.mu.Lock()
	if w.untrack != nil {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	untrack := w.registry.TrackModules(w)

	w.mu.Lock()
	w.untrack = untrack
	w.mu.Unlock()
}

// Close stops tracking and unmounts everything.
func (w *StaticWatcher) Close() {
	w.mu.Lock()
	untrack := w.untrack
	w.untrack = nil
	w.mu.Unlock()

	if untrack != nil {
		untrack()
	}
}

// staticPattern mounts alias "/" at the root only, anything else as a prefix.
func staticPattern(alias string) string {
	if alias == "/" {
		return "/"
	}
	return handlerPattern(alias)
}

func (w *StaticWatcher) ModuleActivated(m *host.Module) {
	classpath, hasClasspath := m.Headers.Lookup(rest.HeaderClasspath)
	alias, hasAlias := m.Headers.Lookup(rest.HeaderAlias)
	if !hasClasspath || !hasAlias {
		return
	}
	if m.Resources == nil {
		w.log.Warn("module declares static assets but has no resources",
			logger.String("module", m.Name))
		return
	}

	welcome := m.Headers.Get(rest.HeaderWelcome)
	spa, err := strconv.ParseBool(m.Headers.Get(rest.HeaderSPARedirect))
	if err != nil {
		spa = false
	}

	sm := &StaticMount{
		Module:    m.Name,
		Classpath: classpath,
		Alias:     alias,
		Welcome:   welcome,
		SPA:       spa,
		Pattern:   staticPattern(alias),
	}

	res := static.New(m.Resources, classpath, alias, welcome, spa)
	reg, err := w.table.Register("static:"+m.Name, sm.Pattern, res)
	if err != nil {
		w.log.Warn("failed to mount static resources",
			logger.String("module", m.Name),
			logger.String("alias", alias),
			logger.Error(err))
		return
	}
	sm.reg = reg

	w.mu.Lock()
	w.mounts[m.Name] = sm
	n := len(w.mounts)
	w.mu.Unlock()
	w.metrics.SetStaticMounts(n)

	w.log.Info("static resources mounted",
		logger.String("module", m.Name),
		logger.String("classpath", classpath),
		logger.String("alias", alias),
		logger.Bool("spa", spa))
}

func (w *StaticWatcher) ModuleDeactivated(m *host.Module) {
	w.mu.Lock()
	sm, ok := w.mounts[m.Name]
	delete(w.mounts, m.Name)
	n := len(w.mounts)
	w.mu.Unlock()

	if !ok {
		return
	}
	sm.reg.Unregister()
	w.metrics.SetStaticMounts(n)

	w.log.Info("static resources unmounted",
		logger.String("module", m.Name),
		logger.String("alias", sm.Alias))
}

// Mounts lists the current static mounts sorted by module.
func (w *StaticWatcher) Mounts() []StaticMount {
	w.mu.Lock()
	defer w.mu.Unlock()

	out := make([]StaticMount, 0, len(w.mounts))
	for _, sm := range w.mounts {
		out = append(out, *sm)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Module < out[j].Module })
	return out
}
