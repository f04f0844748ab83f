package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenPort      string        // ex: ":8080"
	ShutdownTimeout time.Duration // ex: 5s
	RequestTimeout  time.Duration // per-request timeout of the root router

	LogLevel  string // "debug" | "info" | "warn" | "error"
	PrettyLog bool   // true => zap dev (color), false => zap prod (JSON)

	// Publishing
	ModulesDir         string        // directory holding <module>/module.yaml
	ModuleScanInterval time.Duration // periodic reconcile of the modules directory
	WatchModules       bool          // also reconcile on fsnotify events
	DocsURL            string        // redirect target of <endpoint>/docs
	PathCacheTTL       time.Duration // expire-after-write of the precedence path cache
	DrainTimeout       time.Duration // max wait for in-flight requests on rewire
	NodeURL            string        // identity of this node in the endpoint directory
	Builtins           bool          // publish the info/services resources

	// Endpoint directory (disabled when RedisAddr is empty)
	RedisAddr             string
	RedisUser             string        // optional
	RedisPassword         string        // optional
	RedisPasswordRequired bool          // true => require password when the directory is enabled
	RedisDB               int           // Redis DB number
	RedisDT               time.Duration // Redis dial timeout (ex: 5s)
	RedisRT               time.Duration // Redis read timeout (ex: 3s)
	RedisWT               time.Duration // Redis write timeout (ex: 3s)
	RedisMaxWait          time.Duration // max wait between retries (ex: 10s)
	RedisPingTimeout      time.Duration // timeout for each ping attempt (ex: 2s)
	RedisPoolSize         int           // Redis connection pool size
	RedisConnectTimeout   time.Duration // Total time to retry connecting (ex: 30s)
	RedisRetryInterval    time.Duration // Initial wait between retries (ex: 1s, grows exponentially)
	DirectoryGCInterval   time.Duration
	DirectoryStaleAfter   time.Duration // foreign records unrefreshed for this long are deleted

	// Access restrictions (system routes)
	AllowedHosts     []string // optional, restrict /system/reload to specific Host headers
	AllowedCIDRS     []string // optional, restrict /system routes to specific IPs/CIDRs
	TrustProxy       bool     // true => trust X-Forwarded-For headers (e.g. cloudflared)
	ReloadRatePerMin int      // per-IP refill rate of POST /system/reload
	ReloadBurst      int
}

// Load reads the configuration from the environment, after loading a .env
// file from the working directory when one exists.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		panic(fmt.Sprintf("❌ FATAL: failed to read .env: %v", err))
	}

	cfg := &Config{
		// Server settings
		ListenPort:      getenv("RESTPUB_LISTEN_PORT", ":8080"),
		ShutdownTimeout: mustDuration("RESTPUB_SHUTDOWN_TIMEOUT", 5*time.Second),
		RequestTimeout:  mustDuration("RESTPUB_REQUEST_TIMEOUT", 60*time.Second),

		// Logging
		LogLevel:  getenv("RESTPUB_LOG_LEVEL", "info"),
		PrettyLog: mustBool("RESTPUB_PRETTY_LOG", true),

		// Publishing
		ModulesDir:         getenv("RESTPUB_MODULES_DIR", "/app/modules"),
		ModuleScanInterval: mustDuration("RESTPUB_MODULE_SCAN_INTERVAL", time.Minute),
		WatchModules:       mustBool("RESTPUB_WATCH_MODULES", true),
		DocsURL:            getenv("RESTPUB_DOCS_URL", "/docs.html"),
		PathCacheTTL:       mustDuration("RESTPUB_PATH_CACHE_TTL", 5*time.Minute),
		DrainTimeout:       mustDuration("RESTPUB_DRAIN_TIMEOUT", 10*time.Second),
		NodeURL:            getenv("RESTPUB_NODE_URL", "http://localhost:8080"),
		Builtins:           mustBool("RESTPUB_BUILTINS", true),

		// Endpoint directory
		RedisAddr:             getenv("RESTPUB_REDIS_ADDR", ""),
		RedisUser:             getenv("RESTPUB_REDIS_USERNAME", ""),
		RedisPasswordRequired: mustBool("RESTPUB_REDIS_PASSWORD_REQUIRED", false),
		RedisPassword:         getenv("RESTPUB_REDIS_PASSWORD", ""),
		RedisDB:               getenvInt("RESTPUB_REDIS_DB", 0),
		RedisDT:               mustDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
		RedisRT:               mustDuration("REDIS_READ_TIMEOUT", 3*time.Second),
		RedisWT:               mustDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		RedisMaxWait:          mustDuration("REDIS_MAX_WAIT", 10*time.Second),
		RedisPingTimeout:      mustDuration("REDIS_PING_TIMEOUT", 2*time.Second),
		RedisPoolSize:         getenvInt("REDIS_POOL_SIZE", 10),
		RedisConnectTimeout:   mustDuration("REDIS_CONNECT_TIMEOUT", 30*time.Second),
		RedisRetryInterval:    mustDuration("REDIS_RETRY_INTERVAL", time.Second),
		DirectoryGCInterval:   mustDuration("RESTPUB_DIRECTORY_GC_INTERVAL", time.Minute),
		DirectoryStaleAfter:   mustDuration("RESTPUB_DIRECTORY_STALE_AFTER", 10*time.Minute),

		// Access restrictions
		AllowedHosts:     splitAndTrim(getenv("RESTPUB_ALLOWED_HOSTS", "")),
		AllowedCIDRS:     parseAllowedIPs(getenv("RESTPUB_ALLOWED_CIDRS", "")),
		TrustProxy:       mustBool("RESTPUB_TRUST_PROXY", false),
		ReloadRatePerMin: getenvInt("RESTPUB_RELOAD_RATE_PER_MIN", 6),
		ReloadBurst:      getenvInt("RESTPUB_RELOAD_BURST", 2),
	}

	if !strings.HasPrefix(cfg.DocsURL, "/") && !strings.Contains(cfg.DocsURL, "://") {
		panic(fmt.Sprintf("❌ FATAL: RESTPUB_DOCS_URL must be a path or an absolute URL, got %q", cfg.DocsURL))
	}

	// Validate Redis password configuration
	if cfg.DirectoryEnabled() && cfg.RedisPasswordRequired && cfg.RedisPassword == "" {
		panic("❌ FATAL: RESTPUB_REDIS_PASSWORD is required when RESTPUB_REDIS_PASSWORD_REQUIRED=true")
	}

	// Log config only in debug mode with redacted sensitive fields
	if cfg.LogLevel == "debug" {
		cfgCopy := *cfg
		cfgCopy.RedisPassword = "***REDACTED***"
		if cfg.RedisUser != "" {
			cfgCopy.RedisUser = "***REDACTED***"
		}
		log.Printf("[DEBUG] cfg: %+v\n", cfgCopy)
	}

	return cfg
}

// DirectoryEnabled reports whether published endpoints are mirrored to Redis.
func (c *Config) DirectoryEnabled() bool {
	return c.RedisAddr != ""
}

// helpers
func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func mustBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return def
}

// mustDuration falls back to def on unparseable values. Every duration key
// is a timeout or an interval, so zero and negative values are fatal.
func mustDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			if d <= 0 {
				panic(fmt.Sprintf("❌ FATAL: %s must be a positive duration, got %q", key, v))
			}
			return d
		}
	}
	return def
}

func parseAllowedIPs(allowed string) []string {
	if allowed == "" {
		return nil
	}
	ips := make([]string, 0, 4)
	for _, ip := range splitAndTrim(allowed) {
		if ip != "" {
			ips = append(ips, ip)
		}
	}
	return ips
}

func splitAndTrim(s string) []string {
	if s == "" {
		return nil
	}
	raw := strings.Split(s, ",")
	parts := make([]string, 0, len(raw))
	for _, part := range raw {
		trimmed := strings.TrimSpace(part)
		// Remove surrounding quotes if present
		trimmed = strings.Trim(trimmed, `"'`)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}
