// Package server wires the trust service: datastores, graph refresher,
// scoring, realtime feed and the HTTP surface.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/mbd888/trustra/internal/auth"
	"github.com/mbd888/trustra/internal/config"
	"github.com/mbd888/trustra/internal/graph"
	"github.com/mbd888/trustra/internal/health"
	"github.com/mbd888/trustra/internal/idgen"
	"github.com/mbd888/trustra/internal/logging"
	"github.com/mbd888/trustra/internal/marketplace"
	"github.com/mbd888/trustra/internal/metrics"
	"github.com/mbd888/trustra/internal/ratelimit"
	"github.com/mbd888/trustra/internal/realtime"
	"github.com/mbd888/trustra/internal/security"
	"github.com/mbd888/trustra/internal/traces"
	"github.com/mbd888/trustra/internal/trust"
	"github.com/mbd888/trustra/internal/validation"
)

const (
	defaultShutdownGrace = 5 * time.Second
	dbStatsInterval      = 15 * time.Second
	healthCheckTimeout   = 2 * time.Second
	maxRequestIDLength   = 64
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	version      string
	source       marketplace.Source // raw datastore, before guarding
	guarded      *marketplace.GuardedSource
	graphSource  *marketplace.Neo4jInteractionSource // nil without GRAPH_URI
	graphStore   *graph.Store
	refresher    *graph.Refresher
	trustService *trust.Service
	sweeper      *trust.Sweeper // nil unless TRUST_SWEEP_INTERVAL is set
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	health       *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger

	shutdownGrace  time.Duration
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run
	shutdownTraces func(context.Context) error

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithSource replaces the datastore (for testing or embedding).
func WithSource(src marketplace.Source) Option {
	return func(s *Server) {
		s.source = src
	}
}

// WithVersion sets the version reported by /health and traces.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// WithShutdownGrace sets how long Shutdown waits for load balancers to
// drain before closing listeners.
func WithShutdownGrace(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownGrace = d
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:           cfg,
		version:       "dev",
		logger:        logging.New(cfg.LogLevel, cfg.LogFormat),
		shutdownGrace: defaultShutdownGrace,
	}
	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.source == nil {
		if err := s.openDatastore(ctx); err != nil {
			return nil, err
		}
	}

	// Interaction fallback chain: graph database first when configured,
	// then the datastore.
	var chain []marketplace.NamedInteractionSource
	if cfg.GraphURI != "" {
		gs, err := marketplace.NewNeo4jInteractionSource(ctx, marketplace.Neo4jOptions{
			URI:      cfg.GraphURI,
			Username: cfg.GraphUsername,
			Password: cfg.GraphPassword,
			Database: cfg.GraphDatabase,
		})
		if err != nil {
			s.logger.Warn("graph database unavailable, using datastore interactions", "uri", cfg.GraphURI, "error", err)
		} else {
			s.graphSource = gs
			chain = append(chain, marketplace.NamedInteractionSource{Name: "neo4j", Source: gs})
			s.logger.Info("using graph database for interactions", "uri", cfg.GraphURI)
		}
	}
	chain = append(chain, marketplace.NamedInteractionSource{Name: s.datastoreName(), Source: s.source})

	s.guarded = marketplace.NewGuardedSource(s.source,
		marketplace.WithTimeout(cfg.SourceTimeout),
		marketplace.WithInteractionSources(chain...),
		marketplace.WithLogger(s.logger),
	)

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	s.graphStore = graph.NewStore(cfg.Scoring.Graph)
	s.refresher = graph.NewRefresher(s.guarded, s.graphStore, cfg.GraphRefreshInterval, s.logger).
		WithPublisher(s.realtimeHub)

	s.trustService = trust.NewService(s.guarded, cfg.Scoring.Trust, s.logger).
		WithPublisher(s.realtimeHub)
	if cfg.TrustSweepInterval > 0 {
		s.sweeper = trust.NewSweeper(s.trustService, s.guarded, cfg.TrustSweepInterval, 0, s.logger)
		s.logger.Info("trust sweep enabled", "interval", cfg.TrustSweepInterval)
	}

	s.setupHealth()

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// openDatastore connects to Postgres when DATABASE_URL is set and falls back
// to an empty in-memory store otherwise.
func (s *Server) openDatastore(ctx context.Context) error {
	if s.cfg.DatabaseURL == "" {
		s.logger.Warn("DATABASE_URL not set, using in-memory marketplace data")
		s.source = marketplace.NewMemoryStore()
		return nil
	}

	db, err := sql.Open("postgres", s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	s.db = db
	s.source = marketplace.NewPostgresStore(db, s.logger)
	s.logger.Info("connected to PostgreSQL", "dsn", maskDSN(s.cfg.DatabaseURL))
	return nil
}

func (s *Server) datastoreName() string {
	if s.db != nil {
		return "postgres"
	}
	return "datastore"
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), "***")
		}
	}
	return u.String()
}

func (s *Server) setupHealth() {
	s.health = health.NewRegistry()
	s.health.Register("datastore", health.PingCheck(s.guarded, healthCheckTimeout))
	if s.graphSource != nil {
		s.health.RegisterOptional("graph_database", health.PingCheck(s.graphSource, healthCheckTimeout))
	}
	s.health.RegisterOptional("graph_snapshot", health.FreshnessCheck(s.lastGraphBuild, 3*s.refreshInterval(), time.Now))
	s.health.RegisterOptional("circuits", func(context.Context) health.Status {
		open := s.guarded.OpenCircuits()
		if len(open) == 0 {
			return health.Status{Healthy: true}
		}
		return health.Status{Healthy: false, Detail: "open: " + strings.Join(open, ", ")}
	})
}

func (s *Server) refreshInterval() time.Duration {
	if s.cfg.GraphRefreshInterval > 0 {
		return s.cfg.GraphRefreshInterval
	}
	return graph.DefaultRefreshInterval
}

func (s *Server) lastGraphBuild() (time.Time, bool) {
	snap, err := s.graphStore.Current()
	if err != nil {
		return time.Time{}, false
	}
	return snap.BuiltAt, true
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Request ID first so every later log line carries it
	s.router.Use(s.requestIDMiddleware())

	s.router.Use(security.HeadersMiddleware(s.cfg.IsProduction()))
	s.router.Use(security.CORSMiddleware(s.cfg.CORSOrigins))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	rl := ratelimit.DefaultConfig()
	rl.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(rl)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Keep an upstream id (load balancer, caller) when it looks sane.
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" || len(requestID) > maxRequestIDLength || strings.ContainsAny(requestID, " \t\r\n") {
			requestID = idgen.New()
		}

		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
		}
		if auth.IsAdmin(c) {
			attrs = append(attrs, "admin", true)
		}

		logger := logging.L(c.Request.Context())
		switch {
		case status >= 500:
			logger.Error("request completed", append(attrs, "client_ip", c.ClientIP())...)
		case status >= 400:
			logger.Warn("request completed", attrs...)
		case strings.HasPrefix(path, "/health") || path == "/metrics":
			logger.Debug("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	s.router.GET("/", s.infoHandler)
	s.router.GET("/ws", gin.WrapF(s.realtimeHub.HandleWebSocket))
	s.router.GET("/realtime/stats", s.realtimeStatsHandler)

	v1 := s.router.Group("/v1")

	marketplace.NewHandler(s.guarded).RegisterRoutes(v1)
	trust.NewHandler(s.trustService).RegisterRoutes(v1)

	graphHandler := graph.NewHandler(s.graphStore, s.refresher)
	graphHandler.RegisterRoutes(v1)

	// Admin secret is optional in development only; config validation
	// requires it in production.
	admin := v1.Group("", auth.RequireAdmin(s.cfg.AdminSecret, s.cfg.IsDevelopment()))
	graphHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ok, statuses := s.health.CheckAll(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	for _, st := range statuses {
		if !st.Healthy {
			status = "degraded"
			break
		}
	}
	if !ok {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   s.version,
		Checks:    statuses,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// readinessHandler reports ready once the server is accepting traffic and
// the first interaction graph has been built.
func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	if _, err := s.graphStore.Current(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "reason": "graph_not_built"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    "trustra",
		"version": s.version,
		"endpoints": []string{
			"POST /v1/compute-trust",
			"GET /v1/trust/:seller_id",
			"POST /v1/trust/batch",
			"GET /v1/graph/:seller_id",
			"GET /v1/graph/stats",
			"GET /v1/detect-collusion",
			"GET /v1/sellers",
			"GET /ws",
		},
	})
}

func (s *Server) realtimeStatsHandler(c *gin.Context) {
	c.JSON(http.StatusOK, s.realtimeHub.Stats())
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server and background jobs, then blocks until a
// signal, ctx cancellation or a listener error, and shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	shutdownTraces, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.version, s.logger)
	if err != nil {
		s.logger.Warn("tracing disabled, exporter failed to start", "error", err)
	} else {
		s.shutdownTraces = shutdownTraces
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	go s.realtimeHub.Run(runCtx)
	go s.refresher.Start(runCtx)
	if s.sweeper != nil {
		go s.sweeper.Start(runCtx)
	}
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, dbStatsInterval)
	}

	// Readiness also waits for the first graph (see readinessHandler).
	s.ready.Store(true)
	s.logger.Info("server ready")

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		_ = s.Shutdown()
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Give load balancers time to stop sending traffic
	if s.shutdownGrace > 0 {
		time.Sleep(s.shutdownGrace)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var shutdownErr error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			s.logger.Error("shutdown error", "error", err)
			shutdownErr = err
		}
	}

	// Stop background jobs (hub, refresher, sweeper, stats collector)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}
	s.refresher.Stop()
	if s.sweeper != nil {
		s.sweeper.Stop()
	}
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	if s.graphSource != nil {
		if err := s.graphSource.Close(ctx); err != nil {
			s.logger.Error("graph database close error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	if s.shutdownTraces != nil {
		if err := s.shutdownTraces(ctx); err != nil {
			s.logger.Error("trace exporter shutdown error", "error", err)
		}
	}

	s.logger.Info("server stopped")
	return shutdownErr
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// GraphStore returns the active graph store.
func (s *Server) GraphStore() *graph.Store {
	return s.graphStore
}

// Refresher returns the graph refresher.
func (s *Server) Refresher() *graph.Refresher {
	return s.refresher
}
