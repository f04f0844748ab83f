package handlers

import (
	"errors"
	"html/template"
	"net/http"
	"strings"

	"github.com/MrSnakeDoc/restpub/internal/dispatch"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/deps"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/rest"
)

var docsPage = template.Must(template.New("docs").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Path}}</title></head>
<body>
<h1>{{.Path}}</h1>
<table>
<thead><tr><th>Method</th><th>Route</th></tr></thead>
<tbody>
{{- range .Routes}}
<tr><td>{{.Method}}</td><td>{{$.Path}}{{.Pattern}}</td></tr>
{{- end}}
</tbody>
</table>
</body>
</html>
`))

type docsView struct {
	Path   string
	Routes []dispatch.RouteInfo
}

// Docs renders the routes of the resource published at ?path=.
func Docs(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimSpace(r.URL.Query().Get("path"))
		if path == "" {
			http.Error(w, "missing path parameter", http.StatusBadRequest)
			return
		}

		routes, err := d.Publisher.Docs(path)
		switch {
		case errors.Is(err, rest.ErrNotFound):
			http.Error(w, "no endpoint published at "+path, http.StatusNotFound)
			return
		case errors.Is(err, dispatch.ErrNoInstance):
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
			return
		case err != nil:
			d.Logger.Error("failed to list routes",
				logger.String("path", path),
				logger.Error(err))
			http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := docsPage.Execute(w, docsView{Path: strings.TrimSuffix(path, "/"), Routes: routes}); err != nil {
			d.Logger.Debug("failed to write docs page", logger.Error(err))
		}
	}
}
