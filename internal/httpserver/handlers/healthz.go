package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/restpub/internal/httpserver/deps"
)

// dispatchHealth summarizes what this node is publishing right now.
type dispatchHealth struct {
	Instance     string `json:"instance,omitempty"`
	Resources    int    `json:"resources"`
	Endpoints    int    `json:"endpoints"`
	StaticMounts int    `json:"static_mounts"`
}

type healthzResponse struct {
	Status        string          `json:"status"`
	Node          string          `json:"node,omitempty"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Dispatch      *dispatchHealth `json:"dispatch,omitempty"`
	Version       string          `json:"version,omitempty"`
	Commit        string          `json:"commit,omitempty"`
}

// Healthz is the liveness probe: always 200 while the process serves HTTP.
// An idle node (no dispatch instance yet) is still alive.
func Healthz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthzResponse{
			Status:        "ok",
			Node:          d.Node,
			UptimeSeconds: d.Now().Sub(d.StartTime).Seconds(),
			Version:       d.Version,
			Commit:        d.Commit,
		}
		if p := d.Publisher; p != nil {
			dh := &dispatchHealth{
				Endpoints:    p.Endpoints().Count(),
				StaticMounts: len(p.StaticMounts()),
			}
			if in := p.Server().Current(); in != nil {
				dh.Instance = in.ID()
				dh.Resources = len(in.Beans())
			}
			resp.Dispatch = dh
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
