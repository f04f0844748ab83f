package watcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrSnakeDoc/restpub/internal/dispatch"
	"github.com/MrSnakeDoc/restpub/internal/endpoint"
	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/mount"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/rest"
)

type echoResource struct {
	body      string
	published chan struct{}
}

func (e *echoResource) Routes(r chi.Router) {
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, e.body)
	})
}

func (e *echoResource) EndpointPublished() {
	if e.published != nil {
		close(e.published)
	}
}

type fakeDirectory struct {
	mu        sync.Mutex
	published []string
	withdrawn []string
}

func (f *fakeDirectory) Published(_ context.Context, d endpoint.Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, d.Path)
	return nil
}

func (f *fakeDirectory) Withdrawn(_ context.Context, d endpoint.Descriptor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.withdrawn = append(f.withdrawn, d.Path)
	return nil
}

type fixture struct {
	registry  *host.Registry
	module    *host.Module
	endpoints *endpoint.Registry
	table     *mount.Table
	server    *dispatch.Server
	directory *fakeDirectory
	watcher   *ServiceWatcher
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		registry:  host.NewRegistry(),
		module:    &host.Module{Name: "orders"},
		endpoints: endpoint.NewRegistry(),
		table:     mount.NewTable(),
		server:    dispatch.NewServer(dispatch.Options{Logger: logger.Nop(), DrainTimeout: time.Second}),
		directory: &fakeDirectory{},
	}
	require.NoError(t, f.registry.ActivateModule(f.module))
	f.watcher = NewServiceWatcher(ServiceWatcherConfig{
		Registry:  f.registry,
		Endpoints: f.endpoints,
		Table:     f.table,
		Server:    f.server,
		Directory: f.directory,
		DocsURL:   "/docs.html",
		Logger:    logger.Nop(),
	})
	f.watcher.Open()
	t.Cleanup(f.watcher.Close)
	return f
}

func (f *fixture) publish(t *testing.T, impl, path string, svc any) *host.ServiceRegistration {
	t.Helper()
	sr, err := f.registry.Register(f.module, host.ServiceSpec{
		Classes:    []string{rest.ResourceClass},
		Impl:       impl,
		Instance:   svc,
		Properties: host.Properties{rest.ServicePathProperty: path},
	})
	require.NoError(t, err)
	return sr
}

func (f *fixture) get(path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	f.table.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestPublishAndRemove(t *testing.T) {
	f := newFixture(t)
	res := &echoResource{body: "a", published: make(chan struct{})}
	sr := f.publish(t, "orders.A", "/api/a", res)

	select {
	case <-res.published:
	default:
		t.Fatal("EndpointPublished was not called")
	}
	rec := f.get("/api/a")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "a", rec.Body.String())
	assert.Equal(t, 1, f.endpoints.Count())
	assert.Equal(t, []string{"/api/a"}, f.directory.published)

	f.publish(t, "orders.B", "/api/b", &echoResource{body: "b"})

	sr.Unregister()
	assert.Equal(t, http.StatusNotFound, f.get("/api/a").Code)
	assert.Equal(t, "b", f.get("/api/b").Body.String())
	assert.Equal(t, []string{"/api/a"}, f.directory.withdrawn)
	assert.Len(t, f.server.Beans(), 1)
}

type brokenResource struct {
	notified int
}

func (b *brokenResource) Routes(chi.Router) { panic("bad route table") }

func (b *brokenResource) EndpointPublished() { b.notified++ }

func TestRewireFailureBacksOutEndpoint(t *testing.T) {
	f := newFixture(t)
	bad := &brokenResource{}
	f.publish(t, "orders.Broken", "/bad", bad)

	assert.Equal(t, 0, bad.notified)
	assert.Equal(t, 0, f.endpoints.Count())
	assert.Empty(t, f.server.Beans())
	assert.Empty(t, f.directory.published)
	assert.Equal(t, http.StatusNotFound, f.get("/bad").Code)

	f.publish(t, "orders.Good", "/good", &echoResource{body: "good"})

	rec := f.get("/good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "good", rec.Body.String())
	assert.Equal(t, 1, f.endpoints.Count())
	assert.Len(t, f.server.Beans(), 1)
	assert.NotNil(t, f.server.Current())
	assert.Equal(t, []string{"/good"}, f.directory.published)
}

func TestDuplicatePathKeepsFirst(t *testing.T) {
	f := newFixture(t)
	f.publish(t, "orders.A", "/api/a", &echoResource{body: "first"})
	dup := f.publish(t, "orders.A2", "/api/a", &echoResource{body: "second"})

	assert.Equal(t, "first", f.get("/api/a").Body.String())
	assert.Len(t, f.server.Beans(), 1)

	// Removing the skipped duplicate leaves the first registration alone.
	dup.Unregister()
	assert.Equal(t, "first", f.get("/api/a").Body.String())
	assert.Equal(t, 1, f.endpoints.Count())
}

func TestSkipsNonResources(t *testing.T) {
	f := newFixture(t)
	f.publish(t, "orders.Plain", "/plain", struct{}{})

	_, err := f.registry.Register(f.module, host.ServiceSpec{
		Impl:       "orders.Broken",
		Factory:    func() (any, error) { return nil, errors.New("boom") },
		Properties: host.Properties{rest.ServicePathProperty: "/broken"},
	})
	require.NoError(t, err)

	assert.Equal(t, 0, f.endpoints.Count())
	assert.Nil(t, f.server.Current())
}

func TestMountFailureCreatesNoEndpoint(t *testing.T) {
	f := newFixture(t)
	_, err := f.table.Register("/taken", "/taken/*", http.NotFoundHandler())
	require.NoError(t, err)

	f.publish(t, "orders.Taken", "/taken", &echoResource{body: "x"})

	_, ok := f.endpoints.Get("/taken")
	assert.False(t, ok)
	assert.Empty(t, f.server.Beans())
	assert.Nil(t, f.server.Current())
}

func TestFilter(t *testing.T) {
	reg := host.NewRegistry()
	mod := &host.Module{Name: "m"}
	require.NoError(t, reg.ActivateModule(mod))

	tests := []struct {
		name    string
		classes []string
		props   host.Properties
		want    bool
	}{
		{name: "resource with path", props: host.Properties{rest.ServicePathProperty: "/a"}, want: true},
		{name: "blank path", props: host.Properties{rest.ServicePathProperty: "  "}, want: false},
		{name: "no path", props: host.Properties{}, want: false},
		{
			name:    "raw handler",
			classes: []string{rest.HandlerClass},
			props:   host.Properties{rest.ServicePathProperty: "/a"},
			want:    false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sr, err := reg.Register(mod, host.ServiceSpec{Classes: tt.classes, Impl: "x", Instance: 1, Properties: tt.props})
			require.NoError(t, err)
			defer sr.Unregister()
			assert.Equal(t, tt.want, Filter(sr.Reference()))
		})
	}
}

func TestCloseWithdrawsEverything(t *testing.T) {
	f := newFixture(t)
	f.publish(t, "orders.A", "/api/a", &echoResource{body: "a"})
	f.publish(t, "orders.B", "/api/b", &echoResource{body: "b"})

	f.watcher.Close()
	assert.Equal(t, 0, f.endpoints.Count())
	assert.Equal(t, 0, f.table.Len())
	assert.ElementsMatch(t, []string{"/api/a", "/api/b"}, f.directory.withdrawn)
}

func TestStaticWatcher(t *testing.T) {
	reg := host.NewRegistry()
	table := mount.NewTable()
	w := NewStaticWatcher(reg, table, logger.Nop(), nil)
	w.Open()
	defer w.Close()

	ui := &host.Module{
		Name: "admin-ui",
		Headers: host.Headers{
			rest.HeaderClasspath:   "/ui",
			rest.HeaderAlias:       "/admin",
			rest.HeaderWelcome:     "index.html",
			rest.HeaderSPARedirect: "TRUE",
		},
		Resources: fstest.MapFS{"ui/index.html": {Data: []byte("admin")}},
	}
	noAlias := &host.Module{
		Name:      "half",
		Headers:   host.Headers{rest.HeaderClasspath: "/ui"},
		Resources: fstest.MapFS{},
	}
	require.NoError(t, reg.ActivateModule(ui))
	require.NoError(t, reg.ActivateModule(noAlias))

	mounts := w.Mounts()
	require.Len(t, mounts, 1)
	assert.Equal(t, "admin-ui", mounts[0].Module)
	assert.Equal(t, "/admin/*", mounts[0].Pattern)
	assert.True(t, mounts[0].SPA)

	rec := httptest.NewRecorder()
	table.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/some/route", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "admin", rec.Body.String())

	require.NoError(t, reg.DeactivateModule("admin-ui"))
	assert.Empty(t, w.Mounts())
	assert.Equal(t, 0, table.Len())
}

func TestStaticWatcherSPAHeader(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"true", true},
		{"1", true},
		{"false", false},
		{"maybe", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			reg := host.NewRegistry()
			w := NewStaticWatcher(reg, mount.NewTable(), logger.Nop(), nil)
			w.Open()
			defer w.Close()

			require.NoError(t, reg.ActivateModule(&host.Module{
				Name: "m",
				Headers: host.Headers{
					rest.HeaderClasspath:   "/",
					rest.HeaderAlias:       "/",
					rest.HeaderSPARedirect: tt.value,
				},
				Resources: fstest.MapFS{},
			}))
			mounts := w.Mounts()
			require.Len(t, mounts, 1)
			assert.Equal(t, tt.want, mounts[0].SPA)
			assert.Equal(t, "/", mounts[0].Pattern)
		})
	}
}

func TestStaticWatcherRootAliasIsExact(t *testing.T) {
	reg := host.NewRegistry()
	table := mount.NewTable()
	w := NewStaticWatcher(reg, table, logger.Nop(), nil)
	w.Open()
	defer w.Close()

	require.NoError(t, reg.ActivateModule(&host.Module{
		Name: "landing",
		Headers: host.Headers{
			rest.HeaderClasspath: "/www",
			rest.HeaderAlias:     "/",
			rest.HeaderWelcome:   "index.html",
		},
		Resources: fstest.MapFS{
			"www/index.html": {Data: []byte("home")},
			"www/app.js":     {Data: []byte("js")},
		},
	}))

	rec := httptest.NewRecorder()
	table.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "home", rec.Body.String())

	rec = httptest.NewRecorder()
	table.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
