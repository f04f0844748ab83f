package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/MrSnakeDoc/restpub/internal/httpserver/deps"
)

type readyzResponse struct {
	Ready  bool   `json:"ready"`
	Reason string `json:"reason,omitempty"`
}

// Readyz reports ready once the modules directory has been reconciled at
// least once. Without a modules directory the node is always ready.
func Readyz(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-store")

		resp := readyzResponse{Ready: true}
		if d.Modules != nil && d.Modules.LastReload().IsZero() {
			resp = readyzResponse{Ready: false, Reason: "modules not loaded yet"}
		}

		status := http.StatusOK
		if !resp.Ready {
			status = http.StatusServiceUnavailable
		}
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(resp)
	}
}
