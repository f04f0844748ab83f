// Package resources holds the resources restpub publishes about itself. They
// go through the same watcher and dispatch pipeline as any module resource.
package resources

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/restpub/internal/rest"
	"github.com/MrSnakeDoc/restpub/internal/version"
)

// InfoResponse describes the running node.
type InfoResponse struct {
	Node      string `json:"node" xml:"node" msgpack:"node"`
	Version   string `json:"version" xml:"version" msgpack:"version"`
	Commit    string `json:"commit" xml:"commit" msgpack:"commit"`
	BuildDate string `json:"build_date" xml:"build_date" msgpack:"build_date"`
	GoVersion string `json:"go_version" xml:"go_version" msgpack:"go_version"`
	StartedAt string `json:"started_at" xml:"started_at" msgpack:"started_at"`
	Uptime    string `json:"uptime" xml:"uptime" msgpack:"uptime"`
	BasePath  string `json:"base_path" xml:"base_path" msgpack:"base_path"`
}

// Info answers GET / with build and uptime information.
type Info struct {
	node    string
	started time.Time
	now     func() time.Time
}

func NewInfo(node string, started time.Time) *Info {
	return &Info{node: node, started: started, now: time.Now}
}

func (i *Info) Routes(r chi.Router) {
	r.Get("/", rest.Handle(i.get))
}

func (i *Info) get(w http.ResponseWriter, r *http.Request) error {
	return rest.Write(w, r, http.StatusOK, InfoResponse{
		Node:      i.node,
		Version:   version.Version,
		Commit:    version.Commit,
		BuildDate: version.BuildDate,
		GoVersion: version.GoVersion,
		StartedAt: i.started.UTC().Format(time.RFC3339),
		Uptime:    i.now().Sub(i.started).Truncate(time.Second).String(),
		BasePath:  rest.BasePath(r.Context()),
	})
}
