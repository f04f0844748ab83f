package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/restpub/internal/httpserver/deps"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/mount"
	"github.com/MrSnakeDoc/restpub/internal/watcher"
)

type endpointStatus struct {
	Path         string `json:"path"`
	Type         string `json:"type,omitempty"`
	Module       string `json:"module"`
	Impl         string `json:"impl"`
	Publish      bool   `json:"publish"`
	JobProducer  bool   `json:"job_producer"`
	RegisteredAt string `json:"registered_at"`
}

type endpointsResponse struct {
	Node         string                `json:"node,omitempty"`
	Instance     string                `json:"instance,omitempty"`
	LastChange   string                `json:"last_change,omitempty"`
	Endpoints    []endpointStatus      `json:"endpoints"`
	StaticMounts []watcher.StaticMount `json:"static_mounts"`
	Handlers     []mount.Info          `json:"handlers"`
}

// Endpoints dumps everything mounted on this node: published endpoints,
// static mounts and the raw handler table.
func Endpoints(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := endpointsResponse{
			Node:         d.Node,
			Endpoints:    []endpointStatus{},
			StaticMounts: d.Publisher.StaticMounts(),
			Handlers:     d.Publisher.Table().Registrations(),
		}
		if in := d.Publisher.Server().Current(); in != nil {
			resp.Instance = in.ID()
		}
		if lc := d.Publisher.Endpoints().LastChange(); !lc.IsZero() {
			resp.LastChange = lc.UTC().Format(time.RFC3339)
		}
		for _, reg := range d.Publisher.Endpoints().All() {
			resp.Endpoints = append(resp.Endpoints, endpointStatus{
				Path:         reg.Path,
				Type:         reg.Descriptor.Type,
				Module:       reg.Descriptor.Module,
				Impl:         reg.Descriptor.Impl,
				Publish:      reg.Descriptor.Publish,
				JobProducer:  reg.Descriptor.JobProducer,
				RegisteredAt: reg.RegisteredAt.UTC().Format(time.RFC3339),
			})
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(resp)
	}
}
