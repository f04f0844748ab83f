package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/restpub/internal/config"
	"github.com/MrSnakeDoc/restpub/internal/directory"
	"github.com/MrSnakeDoc/restpub/internal/host"
	"github.com/MrSnakeDoc/restpub/internal/httpserver"
	"github.com/MrSnakeDoc/restpub/internal/httpserver/deps"
	"github.com/MrSnakeDoc/restpub/internal/logger"
	"github.com/MrSnakeDoc/restpub/internal/metrics"
	"github.com/MrSnakeDoc/restpub/internal/moduledir"
	"github.com/MrSnakeDoc/restpub/internal/publisher"
	"github.com/MrSnakeDoc/restpub/internal/redis"
	"github.com/MrSnakeDoc/restpub/internal/resources"
	"github.com/MrSnakeDoc/restpub/internal/scheduler"
	redisstore "github.com/MrSnakeDoc/restpub/internal/store/redis"
	"github.com/MrSnakeDoc/restpub/internal/utils"
	"github.com/MrSnakeDoc/restpub/internal/version"
	"github.com/MrSnakeDoc/restpub/internal/watcher"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	startedAt   time.Time
	server      *httpserver.Server
	publisher   *publisher.Publisher
	reloader    *scheduler.ModuleReloader
	redisClient *goredis.Client
	gc          *scheduler.GarbageCollector
}

func New() *App {
	cfg := config.Load()
	startedAt := time.Now()

	loggerClient := logger.New(cfg.LogLevel, cfg.PrettyLog)
	m := metrics.New()
	registry := host.NewRegistry()

	// Endpoint directory is optional - but when configured, fail fast if unavailable
	var (
		redisClient *goredis.Client
		store       *redisstore.Store
		dir         watcher.Directory
	)
	if cfg.DirectoryEnabled() {
		client, err := redis.Connect(context.Background(), redis.ConnectOptions{
			Addr:           cfg.RedisAddr,
			User:           cfg.RedisUser,
			Password:       cfg.RedisPassword,
			DB:             cfg.RedisDB,
			DialTimeout:    cfg.RedisDT,
			ReadTimeout:    cfg.RedisRT,
			WriteTimeout:   cfg.RedisWT,
			PoolSize:       cfg.RedisPoolSize,
			ConnectTimeout: cfg.RedisConnectTimeout,
			RetryInterval:  cfg.RedisRetryInterval,
			MaxWait:        cfg.RedisMaxWait,
			PingTimeout:    cfg.RedisPingTimeout,
		}, loggerClient.Named("redis"))
		if err != nil {
			loggerClient.Error("failed to connect to endpoint directory", logger.Error(err))
			os.Exit(1)
		}
		redisClient = client
		store = redisstore.NewStore(client)

		// Leftovers of a previous run of this node are never read back
		reset := scheduler.NewDirectoryReset(store, cfg.NodeURL, loggerClient)
		if err := reset.Reset(context.Background()); err != nil {
			loggerClient.Warn("failed to clear endpoint directory on startup", logger.Error(err))
		}
		dir = directory.New(store, cfg.NodeURL)
	} else {
		loggerClient.Info("RESTPUB_REDIS_ADDR not set, endpoint directory disabled")
	}

	pub, err := publisher.New(publisher.Options{
		Registry:     registry,
		Directory:    dir,
		DocsURL:      cfg.DocsURL,
		PathCacheTTL: cfg.PathCacheTTL,
		DrainTimeout: cfg.DrainTimeout,
		Logger:       loggerClient,
		Metrics:      m,
	})
	if err != nil {
		loggerClient.Error("failed to build publisher", logger.Error(err))
		os.Exit(1)
	}

	// Factories module manifests can refer to
	catalog := moduledir.NewCatalog()
	catalog.Register("info", func(*host.Module, host.Properties) (any, error) {
		return resources.NewInfo(cfg.NodeURL, startedAt), nil
	})
	catalog.Register("services", func(*host.Module, host.Properties) (any, error) {
		return resources.NewServices(pub.Endpoints()), nil
	})

	// Create manual reload trigger channel
	reloadTrigger := make(chan struct{}, 1)

	reloader := scheduler.NewModuleReloader(scheduler.ModuleReloaderConfig{
		Dir:           cfg.ModulesDir,
		Catalog:       catalog,
		Registry:      registry,
		Logger:        loggerClient.Named("modules"),
		Metrics:       m,
		Interval:      cfg.ModuleScanInterval,
		Watch:         cfg.WatchModules,
		ManualTrigger: reloadTrigger,
	})

	var gc *scheduler.GarbageCollector
	if store != nil {
		gc = scheduler.NewGarbageCollector(
			store,
			pub.Endpoints(),
			cfg.NodeURL,
			loggerClient.Named("directory"),
			m,
			cfg.DirectoryGCInterval,
			cfg.DirectoryStaleAfter,
		)
	}

	// Dependencies passed to routes
	d := deps.Deps{
		Logger:           loggerClient,
		StartTime:        startedAt,
		Version:          version.Version,
		Commit:           version.Commit,
		BuildDate:        version.BuildDate,
		GoVersion:        version.GoVersion,
		TimeNow:          time.Now,
		Node:             cfg.NodeURL,
		AllowedHosts:     cfg.AllowedHosts,
		AllowedCIDRS:     cfg.AllowedCIDRS,
		TrustProxy:       cfg.TrustProxy,
		ReloadRatePerMin: cfg.ReloadRatePerMin,
		ReloadBurst:      cfg.ReloadBurst,
		Publisher:        pub,
		Modules:          reloader,
		Metrics:          m,
		ReloadTrigger:    reloadTrigger,
	}
	if store != nil {
		d.Directory = store
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		startedAt:   startedAt,
		server:      httpserver.New(cfg, loggerClient, d),
		publisher:   pub,
		reloader:    reloader,
		redisClient: redisClient,
		gc:          gc,
	}
}

func (a *App) Run() error {
	a.logger.Info("🚀 Starting " + version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Track the host registry before any module is activated
	a.publisher.Open()
	if a.cfg.Builtins {
		if err := a.publisher.RegisterBuiltins(a.cfg.NodeURL, a.startedAt); err != nil {
			return fmt.Errorf("failed to publish built-in resources: %w", err)
		}
	}

	// Load modules and start periodic/fsnotify reconcile
	if err := a.reloader.Start(ctx); err != nil {
		return fmt.Errorf("failed to start module reloader: %w", err)
	}
	a.logger.Info("module reloader started",
		logger.String("dir", a.cfg.ModulesDir),
		logger.Duration("interval", a.cfg.ModuleScanInterval),
		logger.Bool("watch", a.cfg.WatchModules))

	if a.gc != nil {
		if err := a.gc.Start(ctx); err != nil {
			return fmt.Errorf("failed to start directory garbage collector: %w", err)
		}
		a.logger.Info("directory garbage collector started",
			logger.Duration("interval", a.cfg.DirectoryGCInterval))
	}

	errCh := make(chan error, 1)
	go func() {
		if err := a.server.Start(); err != nil {
			errCh <- fmt.Errorf("http server error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("⏳ Shutting down gracefully...")
	case runErr = <-errCh:
	}

	a.reloader.Stop()
	if a.gc != nil {
		a.gc.Stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	// Withdraws every endpoint (and its directory record) and drains the live instance
	if err := a.publisher.Close(shutdownCtx); err != nil {
		a.logger.Warn("dispatch instance did not drain before shutdown", logger.Error(err))
	}

	if a.redisClient != nil {
		utils.CloseLogged(a.redisClient, "redis", a.logger)
	}

	if runErr == nil {
		a.logger.Info("✅ restpub stopped cleanly")
	}
	_ = a.logger.Sync()
	return runErr
}
