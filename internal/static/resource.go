// Package static serves files shipped inside a module.
package static

import (
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"
)

// Resource serves files below classpath in fsys, under the URL prefix alias.
type Resource struct {
	fsys      fs.FS
	classpath string
	alias     string
	welcome   string
	spa       bool
}

// New creates a static resource. classpath is a directory of fsys ("/" or ""
// for its root), alias the URL prefix, welcome the file served for directory
// requests, and spa enables falling back to the welcome file for unknown paths.
func New(fsys fs.FS, classpath, alias, welcome string, spa bool) *Resource {
	cp := strings.Trim(path.Clean("/"+classpath), "/")
	if cp == "" {
		cp = "."
	}
	a := strings.TrimSuffix(alias, "/")
	return &Resource{
		fsys:      fsys,
		classpath: cp,
		alias:     a,
		welcome:   strings.Trim(welcome, "/"),
		spa:       spa,
	}
}

func (s *Resource) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
		return
	}

	rel := strings.TrimPrefix(r.URL.Path, s.alias)
	// Cleaning under a rooted path strips any "..".
	clean := strings.TrimPrefix(path.Clean("/"+rel), "/")
	if clean == "" || strings.HasSuffix(rel, "/") {
		clean = path.Join(clean, s.welcome)
	}

	if s.serveFile(w, r, clean) {
		return
	}
	if s.spa && s.welcome != "" && s.serveFile(w, r, s.welcome) {
		return
	}
	http.NotFound(w, r)
}

func (s *Resource) serveFile(w http.ResponseWriter, r *http.Request, name string) bool {
	if name == "" {
		return false
	}
	full := path.Join(s.classpath, name)
	if !fs.ValidPath(full) {
		return false
	}

	f, err := s.fsys.Open(full)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}

	rs, ok := f.(io.ReadSeeker)
	if !ok {
		data, err := fs.ReadFile(s.fsys, full)
		if err != nil {
			return false
		}
		rs = strings.NewReader(string(data))
	}
	http.ServeContent(w, r, info.Name(), info.ModTime(), rs)
	return true
}
