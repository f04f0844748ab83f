// Package mount is the low-level handler table every published endpoint and
// static mount is registered in. Patterns are either exact ("/", "/status")
// or prefixes ending in "/*" ("/api/*" matches "/api" and "/api/...").
package mount

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrDuplicateName is returned when a registration with the same name exists.
	ErrDuplicateName = errors.New("handler name already registered")
	// ErrPatternInUse is returned when another registration owns the pattern.
	ErrPatternInUse = errors.New("handler pattern already registered")
	// ErrInvalidPattern is returned for patterns that are not "/..." or "/.../*".
	ErrInvalidPattern = errors.New("invalid handler pattern")
)

// Info describes a registration, for listings.
type Info struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Pattern      string    `json:"pattern"`
	RegisteredAt time.Time `json:"registered_at"`
}

type entry struct {
	info    Info
	prefix  string // "" for exact patterns
	exact   string
	handler http.Handler
}

func (e *entry) key() string {
	if e.prefix != "" {
		return e.prefix
	}
	return e.exact
}

func (e *entry) match(path string) bool {
	if e.prefix == "" {
		return path == e.exact
	}
	if e.prefix == "/" {
		return strings.HasPrefix(path, "/")
	}
	return path == e.prefix || strings.HasPrefix(path, e.prefix+"/")
}

// Table routes requests to registered handlers. Reads are lock-free; writers
// publish a new sorted snapshot.
type Table struct {
	mu      sync.Mutex
	byName  map[string]*entry
	entries atomic.Pointer[[]*entry]
}

// NewTable creates an empty handler table.
func NewTable() *Table {
	t := &Table{byName: make(map[string]*entry)}
	empty := []*entry{}
	t.entries.Store(&empty)
	return t
}

func parsePattern(pattern string) (prefix, exact string, err error) {
	if !strings.HasPrefix(pattern, "/") {
		return "", "", fmt.Errorf("%q: %w", pattern, ErrInvalidPattern)
	}
	if strings.HasSuffix(pattern, "/*") {
		prefix = strings.TrimSuffix(pattern, "/*")
		if prefix == "" {
			prefix = "/"
		}
		if strings.Contains(prefix, "*") {
			return "", "", fmt.Errorf("%q: %w", pattern, ErrInvalidPattern)
		}
		return prefix, "", nil
	}
	if strings.Contains(pattern, "*") {
		return "", "", fmt.Errorf("%q: %w", pattern, ErrInvalidPattern)
	}
	return "", pattern, nil
}

// Register adds h under name and pattern.
func (t *Table) Register(name, pattern string, h http.Handler) (*Registration, error) {
	if name == "" || h == nil {
		return nil, fmt.Errorf("register %q: name and handler are required: %w", pattern, ErrInvalidPattern)
	}
	prefix, exact, err := parsePattern(pattern)
	if err != nil {
		return nil, err
	}

	e := &entry{
		info: Info{
			ID:           uuid.NewString(),
			Name:         name,
			Pattern:      pattern,
			RegisteredAt: time.Now(),
		},
		prefix:  prefix,
		exact:   exact,
		handler: h,
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.byName[name]; ok {
		return nil, fmt.Errorf("%q: %w", name, ErrDuplicateName)
	}
	for _, other := range t.byName {
		if other.info.Pattern == pattern {
			return nil, fmt.Errorf("%q (owned by %q): %w", pattern, other.info.Name, ErrPatternInUse)
		}
	}
	t.byName[name] = e
	t.publishLocked()

	return &Registration{table: t, entry: e}, nil
}

func (t *Table) unregister(e *entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.byName[e.info.Name] != e {
		return
	}
	delete(t.byName, e.info.Name)
	t.publishLocked()
}

// publishLocked rebuilds the snapshot: longest key first, exact before
// prefix at equal length.
func (t *Table) publishLocked() {
	snap := make([]*entry, 0, len(t.byName))
	for _, e := range t.byName {
		snap = append(snap, e)
	}
	sort.Slice(snap, func(i, j int) bool {
		ki, kj := snap[i].key(), snap[j].key()
		if len(ki) != len(kj) {
			return len(ki) > len(kj)
		}
		if (snap[i].prefix == "") != (snap[j].prefix == "") {
			return snap[i].prefix == ""
		}
		return ki < kj
	})
	t.entries.Store(&snap)
}

// Lookup returns the handler serving path.
func (t *Table) Lookup(path string) (http.Handler, bool) {
	for _, e := range *t.entries.Load() {
		if e.match(path) {
			return e.handler, true
		}
	}
	return nil, false
}

// ServeHTTP dispatches to the best matching handler, 404 otherwise.
func (t *Table) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h, ok := t.Lookup(r.URL.Path)
	if !ok {
		http.NotFound(w, r)
		return
	}
	h.ServeHTTP(w, r)
}

// Registrations lists the current registrations sorted by pattern.
func (t *Table) Registrations() []Info {
	snap := *t.entries.Load()
	out := make([]Info, 0, len(snap))
	for _, e := range snap {
		out = append(out, e.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pattern < out[j].Pattern })
	return out
}

// Len returns the number of registrations.
func (t *Table) Len() int {
	return len(*t.entries.Load())
}

// Registration is the handle returned by Register.
type Registration struct {
	table *Table
	entry *entry
	once  sync.Once
}

func (r *Registration) Info() Info { return r.entry.info }

// Unregister removes the handler. Safe to call more than once.
func (r *Registration) Unregister() {
	r.once.Do(func() { r.table.unregister(r.entry) })
}
