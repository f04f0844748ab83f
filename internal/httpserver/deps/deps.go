package deps

import (
	"context"
	"net/http"
	"time"

	"github.com/MrSnakeDoc/restpub/internal/dispatch"
	"github.com/MrSnakeDoc/restpub/internal/endpoint"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/mount"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/metrics"
	"github.com/MrSnakeDoc/restpub/internal/watcher"
)

// Publisher is the part of the publishing core the system routes read.
// *publisher.Publisher satisfies it.
type Publisher interface {
	Handler() http.Handler
	Endpoints() *endpoint.Registry
	Table() *mount.Table
	Server() *dispatch.Server
	StaticMounts() []watcher.StaticMount
	Docs(path string) ([]dispatch.RouteInfo, error)
}

// ModuleStatus reports the state of the modules directory.
type ModuleStatus interface {
	Loaded() []string
	LastReload() time.Time
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	Logger           logger.Logger
	StartTime        time.Time
	Version          string
	Commit           string
	BuildDate        string
	GoVersion        string
	TimeNow          func() time.Time // for testing, defaults to time.Now
	Node             string           // identity of this node
	AllowedHosts     []string         // Host headers allowed to call /system/reload
	AllowedCIDRS     []string         // IPs allowed to access /system routes
	TrustProxy       bool             // true if running behind a trusted reverse proxy (e.g., cloudflared)
	ReloadRatePerMin int              // per-IP refill rate of /system/reload
	ReloadBurst      int
	Publisher        Publisher
	Modules          ModuleStatus // nil when no modules directory is reconciled
	Directory        Pinger       // nil when the endpoint directory is disabled
	Metrics          *metrics.Metrics
	ReloadTrigger    chan struct{} // Channel to trigger a manual module reload
}

// Now returns TimeNow() or time.Now().
func (d Deps) Now() time.Time {
	if d.TimeNow != nil {
		return d.TimeNow()
	}
	return time.Now()
}
