package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/restpub/internal/httpserver/deps"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/mw"
)

func init() { Register(Group{Name: "reload", Register: registerReload, Restricted: true}) }

func registerReload(r chi.Router, d deps.Deps) {
	r.With(
		mw.EnforceHost(d.AllowedHosts, d.Logger),
		mw.RateLimit(mw.RateLimitConfig{
			Burst:             d.ReloadBurst,
			RefillPerIPPerMin: d.ReloadRatePerMin,
			MaxEntries:        1024,
			TrustProxy:        d.TrustProxy,
		}),
	).Post("/reload", handlers.Reload(d))
}
