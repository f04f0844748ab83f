// Package routes collects the /system route groups. Each file registers its
// group from init; server.New mounts them all on the /system sub-router.
package routes

import (
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/restpub/internal/httpserver/deps"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/mw"
	"github.com/MrSnakeDoc/restpub/internal/logger"
)

type Registrar func(r chi.Router, d deps.Deps)

// Group is a named set of /system routes.
type Group struct {
	Name     string
	Register Registrar
	// Restricted groups are only reachable from deps.AllowedCIDRS.
	Restricted bool
}

var groups = map[string]Group{}

// Register adds g. Names are unique; registering a name twice panics.
func Register(g Group) {
	if _, dup := groups[g.Name]; dup {
		panic("routes: duplicate group " + g.Name)
	}
	groups[g.Name] = g
}

// Groups returns the registered group names, sorted.
func Groups() []string {
	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterAll mounts every group on r, restricted ones behind the CIDR guard.
func RegisterAll(r chi.Router, d deps.Deps) {
	guard := mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)
	for _, name := range Groups() {
		g := groups[name]
		if g.Restricted {
			g.Register(r.With(guard), d)
		} else {
			g.Register(r, d)
		}
		if d.Logger != nil {
			d.Logger.Debug("system routes mounted",
				logger.String("group", name),
				logger.Bool("restricted", g.Restricted))
		}
	}
}
