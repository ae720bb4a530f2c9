package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/pricewatch/internal/config"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver"
	"github.com/MrSnakeDoc/pricewatch/internal/httpserver/deps"
	"github.com/MrSnakeDoc/pricewatch/internal/logger"
	"github.com/MrSnakeDoc/pricewatch/internal/lookup"
	"github.com/MrSnakeDoc/pricewatch/internal/metrics"
	"github.com/MrSnakeDoc/pricewatch/internal/monitor"
	"github.com/MrSnakeDoc/pricewatch/internal/notify"
	"github.com/MrSnakeDoc/pricewatch/internal/redis"
	"github.com/MrSnakeDoc/pricewatch/internal/sources/seed"
	"github.com/MrSnakeDoc/pricewatch/internal/store"
	filestore "github.com/MrSnakeDoc/pricewatch/internal/store/file"
	redisstore "github.com/MrSnakeDoc/pricewatch/internal/store/redis"
	"github.com/MrSnakeDoc/pricewatch/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server
	monitor     *monitor.Service
	redisClient *goredis.Client
}

func New() *App {
	cfg := config.Load()

	loggerClient := logger.NewWithOptions(logger.Options{
		Level:  cfg.LogLevel,
		Pretty: cfg.PrettyLog,
		File:   cfg.LogFile,
	})

	backend, redisClient := newBackend(cfg, loggerClient)

	lookupClient := lookup.New(lookup.Options{
		BaseURL: cfg.LookupURL,
		Timeout: cfg.LookupTimeout,
		City:    cfg.LookupCity,
		Lon:     cfg.LookupLon,
		Lat:     cfg.LookupLat,
	})

	var channel notify.Channel
	if cfg.NotifyURL != "" {
		channel = notify.NewBarkChannel(cfg.NotifyURL, cfg.NotifyTimeout)
	} else {
		loggerClient.Warn("PRICEWATCH_NOTIFY_URL not set, alerts will only be logged")
		channel = notify.NewNopChannel(loggerClient)
	}

	m := metrics.New()

	svc := monitor.New(monitor.Options{
		Gateway:       backend,
		Lookup:        lookupClient,
		Notifier:      notify.NewDispatcher(channel, loggerClient),
		Metrics:       m,
		Logger:        loggerClient,
		ProbeInterval: cfg.ProbeInterval,
		SearchCount:   cfg.SearchCount,
		ResetHour:     cfg.ResetHour,
		ResetMinute:   cfg.ResetMinute,
	})

	d := deps.Deps{
		Logger:          loggerClient,
		StartTime:       time.Now(),
		Version:         version.Version,
		Commit:          version.Commit,
		BuildDate:       version.BuildDate,
		GoVersion:       version.GoVersion,
		AllowedCIDRS:    cfg.AllowedCIDRS,
		TrustProxy:      cfg.TrustProxy,
		RateLimitBurst:  cfg.RateLimitBurst,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Monitor:         svc,
		Activities:      lookupClient,
		SearchCount:     cfg.SearchCount,
		Metrics:         m,
		Snapshot:        backend,
	}

	return &App{
		cfg:         cfg,
		logger:      loggerClient,
		server:      httpserver.New(cfg, loggerClient, d),
		monitor:     svc,
		redisClient: redisClient,
	}
}

// newBackend picks the snapshot backend. Redis is required once chosen:
// the process exits if it cannot connect. A file store that cannot create
// its directory still starts, every save then fails and is logged.
func newBackend(cfg *config.Config, log logger.Logger) (store.Backend, *goredis.Client) {
	switch cfg.Store {
	case config.StoreRedis:
		log.Info("connecting to redis", logger.String("addr", cfg.RedisAddr))
		client, err := redis.New(context.Background(), redis.OptionsFromConfig(cfg), log)
		if err != nil {
			log.Error("failed to connect to redis", logger.Error(err))
			os.Exit(1)
		}
		return redisstore.NewStore(client), client

	default:
		fs, err := filestore.New(cfg.DataFile)
		if err != nil {
			log.Error("snapshot directory unavailable, changes will not persist",
				logger.String("path", cfg.DataFile),
				logger.Error(err))
		}
		log.Info("using file snapshot store", logger.String("path", fs.Path()))
		return fs, nil
	}
}

func (a *App) Run() error {
	a.logger.Info("🚀 " + version.String())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start monitor: %w", err)
	}
	if a.cfg.SeedFile != "" {
		a.applySeed()
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

	a.monitor.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
	defer cancel()
	if err := a.server.Stop(shutdownCtx); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to stop server: %w", err)
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", logger.Error(err))
		} else {
			a.logger.Info("✅ Redis closed cleanly")
		}
	}

	a.logger.Info("✅ pricewatch stopped")
	_ = a.logger.Sync()
	return runErr
}

func (a *App) applySeed() {
	entries, err := seed.NewLoader(a.cfg.SeedFile).Load()
	if err != nil {
		a.logger.Error("failed to load seed file",
			logger.String("file", a.cfg.SeedFile),
			logger.Error(err))
		return
	}
	created, err := seed.Apply(entries, a.monitor, a.logger)
	a.logger.Info("seed file applied",
		logger.Int("entries", len(entries)),
		logger.Int("created", created),
		logger.Bool("complete", err == nil))
}
