package precedence

import (
	"context"
	"testing"

	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/rest"
)

type countingLookup struct {
	registry *host.Registry
	calls    map[string]int
}

func (l *countingLookup) ServiceReference(impl string) *host.ServiceReference {
	l.calls[impl]++
	return l.registry.ServiceReference(impl)
}

func newFixture(t *testing.T, paths map[string]string) (*host.Registry, *countingLookup, *PathCache) {
	t.Helper()
	reg := host.NewRegistry()
	mod := &host.Module{Name: "test"}
	if err := reg.ActivateModule(mod); err != nil {
		t.Fatalf("ActivateModule() error = %v", err)
	}
	for impl, path := range paths {
		_, err := reg.Register(mod, host.ServiceSpec{
			Impl:       impl,
			Instance:   impl,
			Properties: host.Properties{rest.ServicePathProperty: path},
		})
		if err != nil {
			t.Fatalf("Register(%s) error = %v", impl, err)
		}
	}

	lookup := &countingLookup{registry: reg, calls: make(map[string]int)}
	cache, err := NewPathCache(lookup, 0, logger.Nop())
	if err != nil {
		t.Fatalf("NewPathCache() error = %v", err)
	}
	t.Cleanup(cache.Close)
	return reg, lookup, cache
}

func TestResolverCompare(t *testing.T) {
	_, _, cache := newFixture(t, map[string]string{
		"A":     "/a",
		"B":     "/b",
		"Blank": "   ",
	})
	resolver := NewResolver(cache)
	ctx := context.Background()

	tests := []struct {
		name    string
		impl1   string
		impl2   string
		request string
		want    int
	}{
		{name: "exact match first", impl1: "A", impl2: "B", request: "/a", want: -1},
		{name: "exact match second", impl1: "A", impl2: "B", request: "/b", want: 1},
		{name: "exact match with trailing slash", impl1: "B", impl2: "A", request: "/a/", want: 1},
		{name: "lexical tie break", impl1: "A", impl2: "B", request: "/c", want: -1},
		{name: "lexical tie break reversed", impl1: "B", impl2: "A", request: "/c", want: 1},
		{name: "root is no preference", impl1: "A", impl2: "B", request: "/", want: 0},
		{name: "empty is no preference", impl1: "A", impl2: "B", request: "", want: 0},
		{name: "same implementation", impl1: "A", impl2: "A", request: "/a", want: 0},
		{name: "unknown implementation", impl1: "A", impl2: "Ghost", request: "/c", want: 0},
		{name: "blank path is no path", impl1: "Blank", impl2: "B", request: "/c", want: 0},
		{name: "exact match beats missing path", impl1: "Ghost", impl2: "B", request: "/b", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolver.Compare(ctx, tt.impl1, tt.impl2, tt.request)
			if sign(got) != tt.want {
				t.Errorf("Compare(%s, %s, %q) = %d, want %d", tt.impl1, tt.impl2, tt.request, got, tt.want)
			}
		})
	}
}

func TestPathCacheReadThrough(t *testing.T) {
	_, lookup, cache := newFixture(t, map[string]string{"A": "/a"})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p, ok := cache.Path(ctx, "A")
		if !ok || p != "/a" {
			t.Fatalf("Path(A) = %q, %v, want /a, true", p, ok)
		}
	}
	if lookup.calls["A"] != 1 {
		t.Errorf("lookup called %d times, want 1", lookup.calls["A"])
	}

	cache.Invalidate("A")
	if _, ok := cache.Path(ctx, "A"); !ok {
		t.Fatal("Path(A) after invalidate should still resolve")
	}
	if lookup.calls["A"] != 2 {
		t.Errorf("lookup called %d times after invalidate, want 2", lookup.calls["A"])
	}
}

func TestPathCacheCachesMisses(t *testing.T) {
	reg, lookup, cache := newFixture(t, nil)
	ctx := context.Background()

	if _, ok := cache.Path(ctx, "Late"); ok {
		t.Fatal("Path(Late) should be missing before registration")
	}

	mod, _ := reg.Module("test")
	if _, err := reg.Register(mod, host.ServiceSpec{
		Impl:       "Late",
		Instance:   "late",
		Properties: host.Properties{rest.ServicePathProperty: "/late"},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	// The miss stays cached until it expires or is invalidated.
	if _, ok := cache.Path(ctx, "Late"); ok {
		t.Error("cached miss should be served until expiry")
	}
	cache.Invalidate("Late")
	if p, ok := cache.Path(ctx, "Late"); !ok || p != "/late" {
		t.Errorf("Path(Late) = %q, %v, want /late, true", p, ok)
	}
	if lookup.calls["Late"] != 2 {
		t.Errorf("lookup called %d times, want 2", lookup.calls["Late"])
	}
}

func sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	default:
		return 0
	}
}
