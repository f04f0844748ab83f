package resources

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/restpub/internal/endpoint"
	"github.com/MrSnakeDoc/restpub/internal/rest"
)

// EndpointLister is what Services reads from.
type EndpointLister interface {
	All() []*endpoint.Registration
	Get(path string) (*endpoint.Registration, bool)
}

// EndpointView is the public shape of a published endpoint.
type EndpointView struct {
	Path         string `json:"path" xml:"path" msgpack:"path"`
	Type         string `json:"type,omitempty" xml:"type,omitempty" msgpack:"type,omitempty"`
	Module       string `json:"module" xml:"module" msgpack:"module"`
	Impl         string `json:"impl" xml:"impl" msgpack:"impl"`
	Publish      bool   `json:"publish" xml:"publish" msgpack:"publish"`
	JobProducer  bool   `json:"job_producer" xml:"job_producer" msgpack:"job_producer"`
	RegisteredAt string `json:"registered_at" xml:"registered_at" msgpack:"registered_at"`
}

// EndpointList wraps the list so XML gets a root element.
type EndpointList struct {
	Endpoints []EndpointView `json:"endpoints" xml:"endpoint" msgpack:"endpoints"`
	Count     int            `json:"count" xml:"count,attr" msgpack:"count"`
}

// Services lists the endpoints published on this node. Endpoints registered
// with publish=false are hidden unless ?all=true.
type Services struct {
	endpoints EndpointLister
}

func NewServices(endpoints EndpointLister) *Services {
	return &Services{endpoints: endpoints}
}

func (s *Services) Routes(r chi.Router) {
	r.Get("/", rest.Handle(s.list))
}

func (s *Services) list(w http.ResponseWriter, r *http.Request) error {
	q := r.URL.Query()

	if p := strings.TrimSpace(q.Get("path")); p != "" {
		reg, ok := s.endpoints.Get(p)
		if !ok {
			return rest.ErrNotFound
		}
		return rest.Write(w, r, http.StatusOK, view(reg))
	}

	all := q.Get("all") == "true"
	typ := q.Get("type")
	out := EndpointList{Endpoints: []EndpointView{}}
	for _, reg := range s.endpoints.All() {
		if !reg.Descriptor.Publish && !all {
			continue
		}
		if typ != "" && reg.Descriptor.Type != typ {
			continue
		}
		out.Endpoints = append(out.Endpoints, view(reg))
	}
	out.Count = len(out.Endpoints)
	return rest.Write(w, r, http.StatusOK, out)
}

func view(reg *endpoint.Registration) EndpointView {
	d := reg.Descriptor
	return EndpointView{
		Path:         reg.Path,
		Type:         d.Type,
		Module:       d.Module,
		Impl:         d.Impl,
		Publish:      d.Publish,
		JobProducer:  d.JobProducer,
		RegisteredAt: reg.RegisteredAt.UTC().Format(time.RFC3339),
	}
}
