package main

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/modshield/modshield/automod"
	"github.com/modshield/modshield/automod/cachestore"
	"github.com/modshield/modshield/automod/countstore"
	"github.com/modshield/modshield/automod/engine"
	"github.com/modshield/modshield/automod/flagstore"
	"github.com/modshield/modshield/automod/keyword"
	"github.com/modshield/modshield/automod/messages"
	"github.com/modshield/modshield/automod/modapi"
	"github.com/modshield/modshield/automod/recordstore"
	"github.com/modshield/modshield/automod/rules"
	"github.com/modshield/modshield/automod/setstore"
	"github.com/modshield/modshield/util"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogecho "github.com/samber/slog-echo"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
)

type Server struct {
	echo   *echo.Echo
	httpd  *http.Server
	logger *slog.Logger
	engine *automod.Engine
	store  recordstore.RecordStore

	blacklistFile string
	sweepInterval time.Duration
}

type Config struct {
	Logger               *slog.Logger
	StoreURL             string
	MaxDBConnections     int
	RedisURL             string
	MemcachedServers     []string
	Subreddit            string
	ModAPIHost           string
	ModAPIToken          string
	ModAPIRateLimit      float64
	MessagesDir          string
	SlackWebhookURL      string
	WebhookSecret        string
	BlacklistFile        string
	TopicWord            string
	BlacklistMatch       string
	Bind                 string
	Retention            time.Duration
	NotificationCooldown time.Duration
	AutoApprovalInterval time.Duration
	QuotaBanDay          int
	QuotaAutoApprovalDay int
	SweepInterval        time.Duration
}

// Builds the engine and its stores from config, without starting anything.
func NewEngine(config Config) (*automod.Engine, recordstore.RecordStore, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if config.Subreddit == "" {
		return nil, nil, fmt.Errorf("subreddit name is required")
	}
	matchMode, err := keyword.ParseMatchMode(config.BlacklistMatch)
	if err != nil {
		return nil, nil, err
	}

	store, err := recordstore.Open(config.StoreURL, config.MaxDBConnections)
	if err != nil {
		return nil, nil, err
	}

	msgs, err := messages.New(config.Subreddit, config.MessagesDir)
	if err != nil {
		return nil, nil, fmt.Errorf("loading message templates: %w", err)
	}

	api := modapi.NewHTTPClient(config.ModAPIHost, config.ModAPIToken, config.ModAPIRateLimit)

	engConfig := engine.DefaultConfig()
	engConfig.Subreddit = config.Subreddit
	if config.TopicWord != "" {
		engConfig.TopicWord = config.TopicWord
	}
	engConfig.BlacklistMatch = matchMode

	eng := automod.NewEngine(store, api, msgs, engConfig, logger)
	eng.Rules = rules.DefaultRules()
	if config.Retention > 0 {
		eng.Ledger.Retention = config.Retention
	}
	if config.NotificationCooldown > 0 {
		eng.Notify.Cooldown = config.NotificationCooldown
	}
	if config.AutoApprovalInterval > 0 {
		eng.AutoApproval.Interval = config.AutoApprovalInterval
	}
	if config.QuotaBanDay > 0 {
		engine.QuotaBanDay = config.QuotaBanDay
	}
	if config.QuotaAutoApprovalDay > 0 {
		engine.QuotaAutoApprovalDay = config.QuotaAutoApprovalDay
	}

	if config.RedisURL != "" {
		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		eng.Counters = cnt

		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, 30*time.Minute)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		eng.Cache = csh

		flg, err := flagstore.NewRedisFlagStore(config.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("initializing redis flagstore: %v", err)
		}
		eng.Flags = flg
	}
	if len(config.MemcachedServers) > 0 {
		eng.Cache = cachestore.NewMemcachedCacheStore(config.MemcachedServers, 30*time.Minute)
	}

	if config.SlackWebhookURL != "" {
		eng.Notifier = &automod.SlackNotifier{
			SlackWebhookURL: config.SlackWebhookURL,
			Subreddit:       config.Subreddit,
			Client:          util.RobustHTTPClientWith(1, 10*time.Second),
		}
	}
	return eng, store, nil
}

func NewServer(config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		config.Logger = logger
	}

	eng, store, err := NewEngine(config)
	if err != nil {
		return nil, err
	}

	srv := newServer(eng, logger, config.Bind, config.WebhookSecret, prometheus.DefaultRegisterer)
	srv.store = store
	srv.blacklistFile = config.BlacklistFile
	srv.sweepInterval = config.SweepInterval
	return srv, nil
}

// Wires HTTP routes around an existing engine.
func newServer(eng *automod.Engine, logger *slog.Logger, bind, secret string, reg prometheus.Registerer) *Server {
	e := echo.New()

	// httpd
	var (
		httpTimeout        = 1 * time.Minute
		httpMaxHeaderBytes = 1 * (1024 * 1024)
	)

	srv := &Server{
		echo:   e,
		logger: logger,
		engine: eng,
		store:  eng.Store,
	}
	srv.httpd = &http.Server{
		Handler:        srv,
		Addr:           bind,
		WriteTimeout:   httpTimeout,
		ReadTimeout:    httpTimeout,
		MaxHeaderBytes: httpMaxHeaderBytes,
	}

	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(otelecho.Middleware("modshield"))
	e.Use(echoprometheus.NewMiddlewareWithConfig(echoprometheus.MiddlewareConfig{
		Subsystem:  "modshield",
		Registerer: reg,
	}))
	e.Use(middleware.BodyLimit("1M"))
	e.HTTPErrorHandler = srv.errorHandler

	e.GET("/_health", srv.HandleHealthCheck)

	api := e.Group("")
	if secret != "" {
		api.Use(middleware.KeyAuth(func(key string, c echo.Context) (bool, error) {
			return subtle.ConstantTimeCompare([]byte(key), []byte(secret)) == 1, nil
		}))
	}
	api.POST("/events/content", srv.HandleContentEvent)
	api.POST("/events/modaction", srv.HandleModActionEvent)
	api.POST("/admin/remove", srv.HandleRemove)
	api.GET("/admin/warnings/:user", srv.HandleWarnings)
	api.DELETE("/admin/memory/:user", srv.HandleClearUser)
	api.DELETE("/admin/memory", srv.HandleClearAll)
	api.GET("/admin/blacklist", srv.HandleGetBlacklist)
	api.PUT("/admin/blacklist", srv.HandleSetBlacklist)
	api.GET("/admin/participation", srv.HandleGetParticipation)
	api.PUT("/admin/participation", srv.HandleSetParticipation)
	api.GET("/admin/stats", srv.HandleStats)

	return srv
}

func (srv *Server) ServeHTTP(rw http.ResponseWriter, req *http.Request) {
	srv.echo.ServeHTTP(rw, req)
}

// Copies the blacklist from a JSON sets file into the record store, unless moderators already configured one.
func (srv *Server) SeedBlacklist(ctx context.Context) error {
	if srv.blacklistFile == "" {
		return nil
	}
	raw, err := srv.store.Get(ctx, setstore.BlacklistSet)
	if err != nil {
		return err
	}
	if raw != "" {
		srv.logger.Info("blacklist already configured, not seeding from file", "path", srv.blacklistFile)
		return nil
	}
	sets := setstore.NewMemSetStore()
	if err := sets.LoadFromFileJSON(srv.blacklistFile); err != nil {
		return fmt.Errorf("loading blacklist file: %w", err)
	}
	terms, err := sets.Members(ctx, setstore.BlacklistSet)
	if err != nil {
		return err
	}
	if err := srv.engine.SetBlacklist(ctx, terms); err != nil {
		return err
	}
	srv.logger.Info("seeded blacklist from file", "path", srv.blacklistFile, "terms", len(terms))
	return nil
}

// Serves until SIGINT or SIGTERM, or until the listener fails, in which case the error is returned.
func (srv *Server) RunAPI() error {
	slog.Info("starting server", "bind", srv.httpd.Addr)
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.httpd.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server shutting down unexpectedly", "err", err)
			serveErr <- err
		}
	}()

	// Wait for a signal to exit.
	slog.Info("registering OS exit signal handler")
	exitSignals := make(chan os.Signal, 1)
	signal.Notify(exitSignals, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(exitSignals)

	select {
	case err := <-serveErr:
		return fmt.Errorf("HTTP server: %w", err)
	case sig := <-exitSignals:
		slog.Info("received OS exit signal", "signal", sig)
	}

	// Shut down the HTTP server
	if err := srv.Shutdown(); err != nil {
		slog.Error("HTTP server shutdown error", "err", err)
	}
	slog.Info("graceful shutdown complete")
	return nil
}

func (srv *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Periodically drops expired records. Only the embedded stores need this; the others expire keys themselves.
func (srv *Server) RunSweeper(ctx context.Context) error {
	sweeper, ok := srv.store.(recordstore.Sweeper)
	if !ok || srv.sweepInterval <= 0 {
		return nil
	}
	return recordstore.RunSweeper(ctx, sweeper, srv.logger, srv.sweepInterval)
}

func (srv *Server) Shutdown() error {
	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.httpd.Shutdown(ctx)
}

func (srv *Server) Close() error {
	if c, ok := srv.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
