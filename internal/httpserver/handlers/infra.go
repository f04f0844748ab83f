package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/restpub/internal/httpserver/deps"
)

type componentStatus struct {
	OK         bool   `json:"ok"`
	Count      *int   `json:"count,omitempty"`
	Instance   string `json:"instance,omitempty"`
	LastReload string `json:"last_reload,omitempty"`
	Mode       string `json:"mode,omitempty"`
	Impact     string `json:"impact,omitempty"`
	Error      string `json:"error,omitempty"`
}

type infraResponse struct {
	Status     string                     `json:"status"`
	Components map[string]componentStatus `json:"components"`
}

func Infra(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		components := map[string]componentStatus{
			"dispatch":  checkDispatch(d),
			"static":    checkStatic(d),
			"modules":   checkModules(d),
			"directory": checkDirectory(r.Context(), d),
		}

		response := infraResponse{
			Status:     determineStatus(components),
			Components: components,
		}

		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(response)
	}
}

func determineStatus(components map[string]componentStatus) string {
	// Endpoints published without a live instance = requests get 503
	if c, ok := components["dispatch"]; ok && !c.OK {
		return "critical"
	}

	// Directory down is non-critical, endpoints are still served
	if c, ok := components["directory"]; ok && !c.OK {
		return "degraded"
	}
	if c, ok := components["modules"]; ok && !c.OK {
		return "degraded"
	}

	return "ok"
}

func checkDispatch(d deps.Deps) componentStatus {
	endpoints := d.Publisher.Endpoints().Count()
	in := d.Publisher.Server().Current()
	if in == nil {
		return componentStatus{
			OK:    endpoints == 0,
			Count: &endpoints,
			Mode:  "idle",
		}
	}
	return componentStatus{
		OK:       true,
		Count:    &endpoints,
		Instance: in.ID(),
		Mode:     "live",
	}
}

func checkStatic(d deps.Deps) componentStatus {
	n := len(d.Publisher.StaticMounts())
	return componentStatus{OK: true, Count: &n}
}

func checkModules(d deps.Deps) componentStatus {
	if d.Modules == nil {
		return componentStatus{OK: true, Mode: "disabled"}
	}
	loaded := len(d.Modules.Loaded())
	last := d.Modules.LastReload()
	lastStr := "never"
	if !last.IsZero() {
		lastStr = last.Format("2006-01-02 15:04:05")
	}
	return componentStatus{
		OK:         !last.IsZero(),
		Count:      &loaded,
		LastReload: lastStr,
	}
}

func checkDirectory(ctx context.Context, d deps.Deps) componentStatus {
	if d.Directory == nil {
		return componentStatus{
			OK:     true,
			Mode:   "disabled",
			Impact: "endpoints-not-mirrored",
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := d.Directory.Ping(ctx); err != nil {
		return componentStatus{
			OK:     false,
			Mode:   "degraded",
			Impact: "endpoints-not-mirrored",
			Error:  err.Error(),
		}
	}

	return componentStatus{
		OK:     true,
		Mode:   "optimal",
		Impact: "endpoints-mirrored",
	}
}
