package precedence

import (
	"context"
	"strings"
)

// PathSource returns the declared service path of an implementation.
type PathSource interface {
	Path(ctx context.Context, impl string) (string, bool)
}

// Resolver orders competing resource implementations for a request path.
//
// A resource whose declared path equals the request path always wins; when
// both declare a path and neither matches exactly, the lexically smaller path
// wins. Registration order never matters.
type Resolver struct {
	paths PathSource
}

func NewResolver(paths PathSource) *Resolver {
	return &Resolver{paths: paths}
}

// Compare returns a negative number when impl1 should handle requestPath, a
// positive one when impl2 should, and 0 for no preference.
func (r *Resolver) Compare(ctx context.Context, impl1, impl2, requestPath string) int {
	if impl1 == impl2 {
		return 0
	}

	path := strings.TrimSuffix(requestPath, "/")
	if strings.TrimSpace(path) == "" {
		return 0
	}

	p1, ok1 := r.paths.Path(ctx, impl1)
	p2, ok2 := r.paths.Path(ctx, impl2)

	switch {
	case ok1 && path == p1:
		return -1
	case ok2 && path == p2:
		return 1
	case ok1 && ok2:
		return strings.Compare(p1, p2)
	default:
		return 0
	}
}
