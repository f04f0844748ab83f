package dispatch

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/metrics"
)

// Router is the handler mounted for one published path. It forwards into
// whatever instance is live at request time.
type Router struct {
	server   *Server
	basePath string // without trailing slash, "" for the root path
	docsPath string // the published path, as the docs page looks it up
	docsURL  string
	log      logger.Logger
	metrics  *metrics.Metrics
}

func NewRouter(server *Server, basePath, docsURL string, log logger.Logger, m *metrics.Metrics) *Router {
	return &Router{
		server:   server,
		basePath: strings.TrimSuffix(basePath, "/"),
		docsPath: basePath,
		docsURL:  docsURL,
		log:      log,
		metrics:  m,
	}
}

// BasePath returns the published path this router serves.
func (rt *Router) BasePath() string { return rt.basePath }

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasSuffix(r.URL.Path, "/docs") {
		target := rt.docsURL + "?path=" + url.QueryEscape(rt.docsPath)
		rt.log.Debug("redirecting to docs",
			logger.String("path", r.URL.Path),
			logger.String("target", target))
		rt.metrics.DocsRedirected()
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	rt.server.Dispatch(w, r, rt.basePath, subPath(r.URL.Path, rt.basePath))
}

// subPath is the part of path after base, always starting with "/".
func subPath(path, base string) string {
	sub := strings.TrimPrefix(path, base)
	if sub == "" {
		return "/"
	}
	if sub[0] != '/' {
		return "/" + sub
	}
	return sub
}
