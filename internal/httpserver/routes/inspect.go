package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/restpub/internal/httpserver/deps"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/handlers"
)

func init() { Register(Group{Name: "inspect", Register: registerInspect, Restricted: true}) }

func registerInspect(r chi.Router, d deps.Deps) {
	r.Get("/infra", handlers.Infra(d))
	r.Get("/endpoints", handlers.Endpoints(d))
	r.Method("GET", "/metrics", d.Metrics.Handler())
}
