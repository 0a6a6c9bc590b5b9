package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tideflow-io/tideflow/api/handlers"
	"github.com/tideflow-io/tideflow/config"
	"github.com/tideflow-io/tideflow/internal/cache"
	"github.com/tideflow-io/tideflow/internal/database"
	"github.com/tideflow-io/tideflow/internal/metrics"
	"github.com/tideflow-io/tideflow/internal/server"
	"github.com/tideflow-io/tideflow/internal/telemetry"
	"github.com/tideflow-io/tideflow/store"
)

// =============================================================================
// Server
// =============================================================================

// Server wires the store, handlers and HTTP servers together.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler   *handlers.HealthHandler
	workflowHandler *handlers.WorkflowHandler
	actionHandler   *handlers.ActionHandler
	eventHub        *handlers.EventHub

	metricsCollector *metrics.Collector
	otelProviders    *telemetry.Providers

	st           store.Store
	pool         *database.PoolManager
	cacheManager *cache.Manager

	// bgCancel stops the rate limiter cleanup and pool stats goroutines.
	bgCancel context.CancelFunc

	wg sync.WaitGroup
}

// NewServer creates a new server instance.
func NewServer(cfg *config.Config, logger *zap.Logger, otelProviders *telemetry.Providers) *Server {
	return &Server{
		cfg:           cfg,
		logger:        logger,
		otelProviders: otelProviders,
	}
}

// =============================================================================
// startup
// =============================================================================

// Start initializes the store and handlers, then starts both HTTP servers.
func (s *Server) Start() error {
	s.metricsCollector = metrics.NewCollector("tideflow", s.logger)

	if err := s.initStore(); err != nil {
		return fmt.Errorf("failed to init store: %w", err)
	}

	s.initHandlers()

	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("store_backend", s.cfg.Store.Backend),
	)

	return nil
}

// =============================================================================
// store and handler initialization
// =============================================================================

// initStore opens the configured persistence backend and, when Redis is
// enabled, wraps it with the read-through cache decorator.
func (s *Server) initStore() error {
	ctx := context.Background()

	opts := store.Options{Backend: store.Backend(s.cfg.Store.Backend)}

	switch store.Backend(s.cfg.Store.Backend) {
	case store.BackendGorm:
		db, err := database.Connect(s.cfg.Database.Driver, s.cfg.Database.DSN(), s.logger)
		if err != nil {
			return fmt.Errorf("failed to connect database: %w", err)
		}

		poolCfg := database.DefaultPoolConfig()
		poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
		poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
		poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime

		pool, err := database.NewPoolManager(db, poolCfg, s.logger)
		if err != nil {
			return fmt.Errorf("failed to create pool manager: %w", err)
		}
		s.pool = pool

		if err := store.InitSchema(db); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
		opts.DB = db

	case store.BackendMongo:
		opts.MongoURI = s.cfg.Store.MongoURI
		opts.MongoDB = s.cfg.Store.MongoDB
	}

	st, err := store.Open(ctx, opts, s.logger)
	if err != nil {
		return err
	}
	s.st = st

	if s.cfg.Redis.Enabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = s.cfg.Redis.Addr
		cacheCfg.Password = s.cfg.Redis.Password
		cacheCfg.DB = s.cfg.Redis.DB
		cacheCfg.PoolSize = s.cfg.Redis.PoolSize
		cacheCfg.MinIdleConns = s.cfg.Redis.MinIdleConns

		cm, err := cache.NewManager(cacheCfg, s.logger)
		if err != nil {
			return fmt.Errorf("failed to connect redis: %w", err)
		}
		s.cacheManager = cm
		s.st = store.NewCached(st, cm, s.metricsCollector, s.cfg.Redis.CacheTTL, s.logger)
		s.logger.Info("Store cache enabled", zap.String("addr", s.cfg.Redis.Addr))
	}

	return nil
}

// initHandlers builds the handler set on top of the opened store.
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)
	if s.pool != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("database", s.pool.Ping))
	}
	if s.cacheManager != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingHealthCheck("redis", s.cacheManager.Ping))
	}

	s.eventHub = handlers.NewEventHub(s.metricsCollector, s.logger)
	s.workflowHandler = handlers.NewWorkflowHandler(s.st, s.metricsCollector, s.eventHub, s.logger)
	s.actionHandler = handlers.NewActionHandler(s.st, s.metricsCollector, s.eventHub, s.logger)

	s.logger.Info("Handlers initialized")
}

// =============================================================================
// HTTP server
// =============================================================================

// startHTTPServer registers routes, builds the middleware chain and starts
// the API server.
func (s *Server) startHTTPServer() error {
	mux := http.NewServeMux()

	// probes and version
	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealthz)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	// workflow API
	mux.HandleFunc("POST /api/v1/workspaces/{ws}/workflows", s.workflowHandler.HandleCreate)
	mux.HandleFunc("GET /api/v1/workspaces/{ws}/workflows", s.workflowHandler.HandleList)
	mux.HandleFunc("GET /api/v1/workflows/{id}", s.workflowHandler.HandleGet)
	mux.HandleFunc("PATCH /api/v1/workflows/{id}", s.workflowHandler.HandlePatch)
	mux.HandleFunc("DELETE /api/v1/workflows/{id}", s.workflowHandler.HandleDelete)

	// graph document
	mux.HandleFunc("GET /api/v1/workspaces/{ws}/workflows/{id}/graph", s.workflowHandler.HandleGetGraph)
	mux.HandleFunc("PUT /api/v1/workspaces/{ws}/workflows/{id}/graph", s.workflowHandler.HandlePutGraph)

	// action records
	mux.HandleFunc("POST /api/v1/workflows/{id}/actions", s.actionHandler.HandleCreate)
	mux.HandleFunc("GET /api/v1/actions/{id}", s.actionHandler.HandleGet)
	mux.HandleFunc("DELETE /api/v1/actions/{id}", s.actionHandler.HandleDelete)
	mux.HandleFunc("PATCH /api/v1/actions/{id}", s.actionHandler.HandlePatch)
	mux.HandleFunc("POST /api/v1/actions/{id}/events", s.actionHandler.HandleRecordEvent)

	// graph event stream
	mux.HandleFunc("GET /api/v1/workflows/{id}/events", s.eventHub.HandleSubscribe)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version", "/metrics"}
	bgCtx, bgCancel := context.WithCancel(context.Background())
	s.bgCancel = bgCancel

	mws := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
	}
	if s.cfg.Telemetry.Enabled {
		mws = append(mws, OTelTracing())
	}
	mws = append(mws, CORS(s.cfg.Server.AllowedOrigins))
	if s.cfg.Server.JWTSecret != "" {
		// per-tenant limiting needs the identity JWTAuth puts in the context
		mws = append(mws,
			JWTAuth(s.cfg.Server.JWTSecret, skipAuthPaths, s.logger),
			TenantRateLimiter(bgCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		)
	} else {
		mws = append(mws,
			RateLimiter(bgCtx, float64(s.cfg.Server.RateLimitRPS), s.cfg.Server.RateLimitBurst, s.logger),
		)
	}
	mws = append(mws, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger))

	handler := Chain(mux, mws...)

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.httpManager = server.NewManager(handler, serverConfig, s.logger)

	if err := s.httpManager.Start(); err != nil {
		return err
	}

	if s.pool != nil {
		s.wg.Add(1)
		go s.reportPoolStats(bgCtx)
	}

	s.logger.Info("HTTP server started", zap.Int("port", s.cfg.Server.HTTPPort))
	return nil
}

// reportPoolStats periodically publishes connection pool gauges.
func (s *Server) reportPoolStats(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.pool.Stats()
			s.metricsCollector.RecordDBConnections(s.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
		}
	}
}

// =============================================================================
// metrics server
// =============================================================================

func (s *Server) startMetricsServer() error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	serverConfig := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}

	s.metricsManager = server.NewManager(mux, serverConfig, s.logger)

	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.Int("port", s.cfg.Server.MetricsPort))
	return nil
}

// =============================================================================
// shutdown
// =============================================================================

// WaitForShutdown blocks until a shutdown signal arrives, then cleans up.
func (s *Server) WaitForShutdown() {
	if s.httpManager != nil {
		s.httpManager.WaitForShutdown()
	}

	s.Shutdown()
}

// Shutdown stops all servers, the event hub and the store, in that order.
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	ctx := context.Background()

	if s.bgCancel != nil {
		s.bgCancel()
	}

	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	if s.eventHub != nil {
		s.eventHub.Close()
	}

	if s.st != nil {
		if err := s.st.Close(ctx); err != nil {
			s.logger.Error("Store close error", zap.Error(err))
		}
	}

	if s.cacheManager != nil {
		if err := s.cacheManager.Close(); err != nil {
			s.logger.Error("Cache close error", zap.Error(err))
		}
	}

	if s.pool != nil {
		if err := s.pool.Close(); err != nil {
			s.logger.Error("Database pool close error", zap.Error(err))
		}
	}

	if s.otelProviders != nil {
		if err := s.otelProviders.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}

	s.wg.Wait()

	s.logger.Info("Graceful shutdown completed")
}
