// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/bondfi/bondfi/internal/bonds"
	"github.com/bondfi/bondfi/internal/config"
	"github.com/bondfi/bondfi/internal/health"
	"github.com/bondfi/bondfi/internal/logging"
	"github.com/bondfi/bondfi/internal/metrics"
	"github.com/bondfi/bondfi/internal/notify"
	"github.com/bondfi/bondfi/internal/oracle"
	"github.com/bondfi/bondfi/internal/ratelimit"
	"github.com/bondfi/bondfi/internal/realtime"
	"github.com/bondfi/bondfi/internal/users"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg          *config.Config
	userStore    users.Store
	userService  *users.Service
	bondService  *bonds.Service
	oracleSvc    *oracle.Service
	notifier     *notify.Service
	realtimeHub  *realtime.Hub
	rateLimiter  *ratelimit.Limiter
	checks       *health.Registry
	db           *sql.DB // nil if using in-memory
	router       *gin.Engine
	httpSrv      *http.Server
	logger       *slog.Logger
	cancelRunCtx context.CancelFunc // cancels background goroutines started in Run

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

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:    cfg,
		logger: logging.New(cfg.LogLevel, "json"),
		checks: health.NewRegistry(),
	}

	// Apply options first (may set logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	var (
		oracleStore oracle.Store
		notifyStore notify.Store
		bondStore   bonds.Store
	)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		userStore := users.NewPostgresStore(db)
		if err := userStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate user store", "error", err)
		}
		s.userStore = userStore

		notifyPG := notify.NewPostgresStore(db)
		if err := notifyPG.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate notification store", "error", err)
		}
		notifyStore = notifyPG

		oraclePG := oracle.NewPostgresStore(db)
		if err := oraclePG.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate oracle store", "error", err)
		}
		oracleStore = oraclePG

		bondPG := bonds.NewPostgresStore(db)
		if err := bondPG.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate bond store", "error", err)
		}
		bondStore = bondPG

		s.checks.Register("database", func(ctx context.Context) health.Status {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				return health.Status{Name: "database", Healthy: false, Detail: err.Error()}
			}
			return health.Status{Name: "database", Healthy: true}
		})
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")
		s.userStore = users.NewMemoryStore()
		notifyStore = notify.NewMemoryStore()
		oracleStore = oracle.NewMemoryStore()
		bondStore = bonds.NewMemoryStore()
	}

	// Realtime hub for WebSocket streaming
	s.realtimeHub = realtime.NewHub(s.logger)

	// Services
	s.notifier = notify.NewService(notifyStore, s.logger)
	s.userService = users.NewService(s.userStore, s.notifier, s.logger)
	s.oracleSvc = oracle.NewService(oracleStore, s.logger)
	s.bondService = bonds.NewService(bondStore, s.oracleSvc, s.notifier, s.realtimeHub, s.logger)

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	if cfg.DemoSeed {
		if err := s.seedDemoData(ctx); err != nil {
			s.logger.Warn("demo seed failed", "error", err)
		}
	}

	s.healthy.Store(true)

	return s, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
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

	// WebSocket for real-time market events
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})
	s.router.GET("/ws/stats", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.realtimeHub.Stats())
	})

	bondHandler := bonds.NewHandlers(s.bondService)
	userHandler := users.NewHandlers(s.userService)
	notifyHandler := notify.NewHandlers(s.notifier)

	// V1 API group — every request passes through demo identity resolution
	v1 := s.router.Group("/v1")
	v1.Use(users.Identify(s.userStore))

	// PUBLIC ROUTES (identified or anonymous; handlers enforce what needs a user)
	userHandler.RegisterRoutes(v1)
	bondHandler.RegisterRoutes(v1)
	notifyHandler.RegisterRoutes(v1)

	// ADMIN ROUTES (pending queue, approvals, oracle overrides, user verification)
	admin := v1.Group("/admin")
	admin.Use(users.RequireAdmin())
	bondHandler.RegisterAdminRoutes(admin)
	userHandler.RegisterAdminRoutes(admin)
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, statuses := s.checks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"version":   "0.1.0",
		"checks":    statuses,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "BondFi",
		"description": "Tokenized government bond marketplace with oracle-gated approvals",
		"version":     "0.1.0",
	})
}

// -----------------------------------------------------------------------------
// Demo seed
// -----------------------------------------------------------------------------

// seedDemoData populates a fresh instance with an admin, a few users and a
// small primary market so the API is explorable without setup.
func (s *Server) seedDemoData(ctx context.Context) error {
	admin, err := s.userService.SeedAdmin(ctx, "usr_admin", "Platform Admin")
	if err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	lister, err := s.userService.Register(ctx, "treasury-desk", users.RoleLister)
	if err != nil {
		if errors.Is(err, users.ErrNameTaken) {
			return nil // already seeded on a previous start
		}
		return fmt.Errorf("seed lister: %w", err)
	}
	if _, err := s.userService.Register(ctx, "demo-investor", users.RoleInvestor); err != nil {
		return fmt.Errorf("seed investor: %w", err)
	}

	now := time.Now().UTC()
	score := 92.0
	approved, err := s.bondService.CreateBond(ctx, bonds.CreateBondRequest{
		ListerID:     lister.ID,
		Name:         "Treasury Note 2031",
		Issuer:       "Ministry of Finance",
		FaceValue:    100000,
		CouponRate:   7.5,
		IssueDate:    now.AddDate(-1, 0, 0),
		MaturityDate: now.AddDate(4, 0, 0),
		TotalUnits:   100,
		OracleScore:  &score,
	})
	if err != nil {
		return fmt.Errorf("seed bond: %w", err)
	}
	if _, err := s.bondService.ApproveBond(ctx, approved.ID, true, admin.ID, ""); err != nil {
		return fmt.Errorf("seed approval: %w", err)
	}

	// One bond left pending so the admin queue has something to review.
	if _, err := s.bondService.CreateBond(ctx, bonds.CreateBondRequest{
		ListerID:     lister.ID,
		Name:         "Infrastructure Bond 2033",
		Issuer:       "National Development Bank",
		FaceValue:    50000,
		CouponRate:   12,
		IssueDate:    now,
		MaturityDate: now.AddDate(7, 0, 0),
		TotalUnits:   50,
	}); err != nil {
		return fmt.Errorf("seed pending bond: %w", err)
	}

	s.logger.Info("demo data seeded", "admin", admin.ID, "lister", lister.ID)
	return nil
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

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

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Export connection pool stats when backed by Postgres
	if s.db != nil {
		go metrics.StartDBStatsCollector(runCtx, s.db, 15*time.Second)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
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

	// Cancel the context for all background goroutines (hub, collectors)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
