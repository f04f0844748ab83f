package static

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

var files = fstest.MapFS{
	"ui/index.html":      {Data: []byte("<h1>home</h1>")},
	"ui/app.js":          {Data: []byte("console.log(1)")},
	"ui/docs/index.html": {Data: []byte("docs")},
	"secret.txt":         {Data: []byte("do not serve")},
}

func do(h http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestServeFiles(t *testing.T) {
	res := New(files, "/ui", "/admin", "index.html", false)

	tests := []struct {
		name     string
		target   string
		wantCode int
		wantBody string
	}{
		{name: "alias root", target: "/admin", wantCode: http.StatusOK, wantBody: "<h1>home</h1>"},
		{name: "alias root slash", target: "/admin/", wantCode: http.StatusOK, wantBody: "<h1>home</h1>"},
		{name: "file", target: "/admin/app.js", wantCode: http.StatusOK, wantBody: "console.log(1)"},
		{name: "nested welcome", target: "/admin/docs/", wantCode: http.StatusOK, wantBody: "docs"},
		{name: "missing", target: "/admin/nope.css", wantCode: http.StatusNotFound},
		{name: "directory without slash", target: "/admin/docs", wantCode: http.StatusNotFound},
		{name: "escape", target: "/admin/../secret.txt", wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(res, http.MethodGet, tt.target)
			assert.Equal(t, tt.wantCode, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestSPAFallback(t *testing.T) {
	res := New(files, "ui", "/admin", "index.html", true)

	rec := do(res, http.MethodGet, "/admin/orders/42")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>home</h1>", rec.Body.String())

	// Existing files still win over the fallback.
	rec = do(res, http.MethodGet, "/admin/app.js")
	assert.Equal(t, "console.log(1)", rec.Body.String())
}

func TestRootAliasAndMethods(t *testing.T) {
	res := New(files, "/ui", "/", "index.html", false)

	rec := do(res, http.MethodGet, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<h1>home</h1>", rec.Body.String())

	rec = do(res, http.MethodPost, "/app.js")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))
}
