package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/care-redactor/internal/analysis"
	"github.com/raaihank/care-redactor/internal/audit"
	"github.com/raaihank/care-redactor/internal/cache"
	"github.com/raaihank/care-redactor/internal/config"
	"github.com/raaihank/care-redactor/internal/logger"
	"github.com/raaihank/care-redactor/internal/redaction"
	"github.com/raaihank/care-redactor/internal/security"
	"github.com/raaihank/care-redactor/internal/web"
	"github.com/raaihank/care-redactor/internal/websocket"
)

// Version is set at build time
var Version = "0.1.0"

// AuditStore persists redaction summaries
type AuditStore interface {
	Insert(ctx context.Context, record *audit.Record) error
	Get(ctx context.Context, id string) (*audit.Record, error)
	List(ctx context.Context, opts audit.ListOptions) ([]*audit.Record, error)
	GetStats(ctx context.Context) (*audit.Stats, error)
	Ping(ctx context.Context) error
}

// ResultCache memoizes outcomes per text and options
type ResultCache interface {
	Get(ctx context.Context, text string, opts redaction.Options) (*redaction.Outcome, bool)
	Store(ctx context.Context, text string, opts redaction.Options, outcome redaction.Outcome) error
	GetStats(ctx context.Context) (*cache.CacheStats, error)
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server uses. Only Redactor is required.
type Deps struct {
	Redactor *redaction.Redactor
	Audit    AuditStore
	Cache    ResultCache
	Analyzer analysis.Analyzer
	Hub      *websocket.Hub
}

// Server is the redaction HTTP API
type Server struct {
	config   *config.Config
	logger   *logger.Logger
	redactor *redaction.Redactor
	pipeline *analysis.Pipeline
	audit    AuditStore
	cache    ResultCache
	wsHub    *websocket.Hub
	limiter  *security.RateLimiter
	router   *mux.Router
	server   *http.Server
	started  time.Time
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) *Server {
	s := &Server{
		config:   cfg,
		logger:   log.WithComponent("server"),
		redactor: deps.Redactor,
		audit:    deps.Audit,
		cache:    deps.Cache,
		wsHub:    deps.Hub,
		limiter:  security.NewRateLimiter(cfg.RateLimit),
		router:   mux.NewRouter(),
		started:  time.Now(),
	}

	if deps.Analyzer != nil {
		s.pipeline = analysis.NewPipeline(deps.Redactor, deps.Analyzer, log.WithComponent("analysis").Logger)
	}

	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.recoveryMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)

	if s.wsHub != nil {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods(http.MethodGet)
		s.router.Handle("/dashboard", web.Dashboard(s.config.WebSocket.Path)).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/v1").Subrouter()
	api.Use(s.loggingMiddleware)
	api.Use(s.rateLimitMiddleware)
	api.Use(s.bodyLimitMiddleware)

	api.HandleFunc("/anonymize", s.handleAnonymize).Methods(http.MethodPost)
	api.HandleFunc("/validate", s.handleValidate).Methods(http.MethodPost)
	api.HandleFunc("/report", s.handleReport).Methods(http.MethodPost)
	api.HandleFunc("/analyze", s.handleAnalyze).Methods(http.MethodPost)
	api.HandleFunc("/audits", s.handleListAudits).Methods(http.MethodGet)
	api.HandleFunc("/audits/stats", s.handleAuditStats).Methods(http.MethodGet)
	api.HandleFunc("/audits/{id}", s.handleGetAudit).Methods(http.MethodGet)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start runs background workers and serves HTTP until Stop is called
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting care-redactor server",
		zap.Int("port", s.config.Server.Port),
		zap.Bool("audit", s.audit != nil),
		zap.Bool("cache", s.cache != nil),
		zap.Bool("analysis", s.pipeline != nil),
		zap.Bool("websocket", s.wsHub != nil),
	)

	if s.wsHub != nil {
		go s.wsHub.Run(ctx)
	}
	s.limiter.StartCleanupRoutine(ctx)

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping care-redactor server")
	return s.server.Shutdown(ctx)
}
