package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	httpapi "github.com/GriffinCanCode/WebOS/backend/internal/api/http"
	"github.com/GriffinCanCode/WebOS/backend/internal/api/middleware"
	"github.com/GriffinCanCode/WebOS/backend/internal/api/ws"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/app"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/capability"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/registry"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox"
	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/config"
	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/database"
	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/logging"
	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/bus"
	httpclient "github.com/GriffinCanCode/WebOS/backend/internal/providers/http/client"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/notify"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/settings"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/vfs"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/paths"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router  *gin.Engine
	apps    *app.Manager
	host    *sandbox.Host
	bus     *bus.Bus
	db      *sql.DB
	tracer  *tracing.Tracer
	logger  *logging.Logger
	config  *config.Config
	metrics *monitoring.Metrics
}

// NewServer wires storage, the sandbox host and the API
func NewServer(cfg *config.Config) (*Server, error) {
	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	logger.Info("Initializing WebOS Server",
		zap.String("addr", cfg.Server.Addr()),
		zap.String("data_dir", cfg.Storage.DataDir),
		zap.String("apps_dir", cfg.Storage.AppsDir),
	)

	// Metrics first, other components report into them
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("webos", logger.Logger, 256)

	ctx := context.Background()
	db, err := database.Connect(ctx, cfg.Storage.DataDir, logger.Logger)
	if err != nil {
		tracer.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := settings.NewStore(db, logger.Logger)
	fs := vfs.New(db, logger.Logger)
	if err := fs.Bootstrap(ctx); err != nil {
		db.Close()
		tracer.Close()
		return nil, fmt.Errorf("failed to bootstrap file system: %w", err)
	}

	b := bus.New(bus.Config{
		History:         cfg.Bus.History,
		ClientTimeout:   cfg.Bus.ClientTimeout,
		CleanupInterval: cfg.Bus.CleanupInterval,
	}, logger.Logger, metrics)
	b.Start()
	center := notify.New(b, logger.Logger, metrics, 0)

	fetcher := httpclient.New(httpclient.Config{
		Timeout:           cfg.Fetch.Timeout,
		Retries:           cfg.Fetch.Retries,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	}, logger.Logger, metrics)

	caps := capability.NewFactory(capability.Deps{
		Settings: store,
		Notifier: center,
		FS:       fs,
		Bus:      b,
		Fetcher:  fetcher,
		Logger:   logger.Logger,
	})

	host, err := sandbox.New(sandbox.Config{
		ExecTimeout:     cfg.Sandbox.ExecTimeout,
		CallbackTimeout: cfg.Sandbox.CallbackTimeout,
		MaxCallStack:    cfg.Sandbox.MaxCallStack,
		ConsoleLimit:    cfg.Sandbox.ConsoleLimit,
	}, sandbox.Deps{
		Logger:       logger.Logger,
		Capabilities: caps,
		Reporter:     errorReporter(center, logger.Logger),
		Metrics:      metrics,
	})
	if err != nil {
		b.Close()
		db.Close()
		tracer.Close()
		return nil, fmt.Errorf("failed to start sandbox: %w", err)
	}

	packages := registry.NewManager(db, logger.Logger, metrics)
	seedApps(ctx, registry.NewSeeder(packages, logger.Logger), fs, cfg.Storage.AppsDir, logger.Logger)

	apps := app.NewManager(host, packages, store, logger.Logger)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.CORSForOrigins(cfg.Server.AllowedOrigins)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		limits := middleware.DefaultRateLimitConfig()
		limits.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		limits.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(limits))
	}
	router.Use(middleware.RequestLogger(logger.Logger, "/health", "/metrics"))

	handlers := httpapi.NewHandlers(httpapi.Deps{
		Apps:     apps,
		Host:     host,
		Registry: packages,
		Settings: store,
		Notify:   center,
		Bus:      b,
		FS:       fs,
		Breakers: fetcher,
		Metrics:  httpapi.NewHandlerMetrics(metrics),
		Logger:   logger.Logger,
	})
	handlers.Register(router)

	wsHandler := ws.NewHandler(b, logger.Logger, ws.Config{AllowedOrigins: cfg.Server.AllowedOrigins})
	router.GET("/stream", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/metrics/json", handlers.SystemStats)
	router.GET("/metrics/traces", tracing.TracesHandler(tracer))

	logger.Info("Server initialized successfully")

	return &Server{
		router:  router,
		apps:    apps,
		host:    host,
		bus:     b,
		db:      db,
		tracer:  tracer,
		logger:  logger,
		config:  cfg,
		metrics: metrics,
	}, nil
}

// seedApps installs the built-in apps, then manifests from disk and from
// the virtual file system. Failures are logged and never fatal.
func seedApps(ctx context.Context, seeder *registry.Seeder, fs *vfs.FS, appsDir string, logger *logging.Logger) {
	steps := []struct {
		name string
		run  func() (registry.Result, error)
	}{
		{"defaults", func() (registry.Result, error) { return seeder.SeedDefaults(ctx) }},
		{"dir", func() (registry.Result, error) { return seeder.SeedDir(ctx, appsDir) }},
		{"vfs", func() (registry.Result, error) { return seeder.SeedVFS(ctx, fs, paths.Apps) }},
	}
	for _, step := range steps {
		res, err := step.run()
		if err != nil {
			logger.Warn("Failed to seed apps", zap.String("source", step.name), zap.Error(err))
			continue
		}
		logger.Info("Seeded apps",
			zap.String("source", step.name),
			zap.Int("loaded", res.Loaded),
			zap.Int("failed", res.Failed),
		)
	}
}

// errorReporter turns contained script errors into desktop notifications.
// It runs on the loop goroutine, so delivery happens on its own goroutine.
func errorReporter(center *notify.Center, logger *zap.Logger) sandbox.ErrorReporter {
	return func(appID string, err error) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, nerr := center.Notify(ctx, types.Notification{
				AppID:   appID,
				Title:   "Script error",
				Message: err.Error(),
				Level:   types.LevelError,
			}); nerr != nil {
				logger.Debug("script error notification dropped", zap.String("app_id", appID), zap.Error(nerr))
			}
		}()
	}
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves HTTP until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := s.config.Server.Addr()
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	return <-errCh
}

// Close closes every app and releases the host, bus and database
func (s *Server) Close() error {
	s.logger.Info("Shutting down server...")

	var errs []error
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if reports, err := s.apps.Unload(ctx); err != nil {
		s.logger.Error("Failed to unload apps", zap.Error(err))
		errs = append(errs, err)
	} else {
		s.logger.Info("Closed running apps", zap.Int("count", len(reports)))
	}

	if err := s.host.Close(); err != nil {
		s.logger.Error("Failed to close sandbox host", zap.Error(err))
		errs = append(errs, err)
	}
	s.bus.Close()
	s.tracer.Close()

	if err := s.db.Close(); err != nil {
		s.logger.Error("Failed to close database", zap.Error(err))
		errs = append(errs, err)
	}

	// Sync logger before exit
	_ = s.logger.Sync()

	return errors.Join(errs...)
}
