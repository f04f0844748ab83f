package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/restpub/internal/httpserver/deps"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/handlers"
)

func init() {
	Register(Group{Name: "health", Register: registerHealth})
	Register(Group{Name: "readiness", Register: registerReadiness, Restricted: true})
}

func registerHealth(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))
}

func registerReadiness(r chi.Router, d deps.Deps) {
	r.Get("/readyz", handlers.Readyz(d))
}
