// Package server provides the HTTP server that wires all services together.
package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/searcheval/search-eval/internal/backend"
	"github.com/searcheval/search-eval/internal/bus"
	"github.com/searcheval/search-eval/internal/config"
	"github.com/searcheval/search-eval/internal/dashboard"
	"github.com/searcheval/search-eval/internal/docstore"
	"github.com/searcheval/search-eval/internal/experiment"
	"github.com/searcheval/search-eval/internal/judgments"
	"github.com/searcheval/search-eval/internal/metrics"
	"github.com/searcheval/search-eval/internal/pkg/logger"
	"github.com/searcheval/search-eval/internal/pkg/middleware"
	"github.com/searcheval/search-eval/internal/queryset"
	"github.com/searcheval/search-eval/internal/settings"
)

// embeddingDim is the vector dimension used for backend searches.
const embeddingDim = 384

// Server is the main HTTP server that wires all services together.
type Server struct {
	cfg        Config
	appCfg     config.Config
	log        *logger.Logger
	httpServer *http.Server

	// Services
	bus         bus.Bus
	store       docstore.Store
	metrics     *metrics.Metrics
	searcher    *backend.QdrantSearcher
	registry    *backend.Registry
	experiments *experiment.Service
	querySets   *queryset.Service
	importer    *judgments.Importer
	settings    *settings.Service
	rateLimiter *middleware.RateLimiter

	// Handlers
	experimentHandler *experiment.Handler
	querySetHandler   *queryset.Handler
	judgmentHandler   *judgments.Handler
	configHandler     *backend.Handler
	settingsHandler   *settings.Handler

	mu      sync.RWMutex
	started bool
}

// Config configures the server.
type Config struct {
	// Host is the address to bind to.
	Host string

	// Port is the HTTP port.
	Port int

	// Version is the application version.
	Version string

	// DataDir is the directory for runtime state (settings, event log).
	DataDir string

	// ReadTimeout is the HTTP read timeout.
	ReadTimeout time.Duration

	// WriteTimeout is the HTTP write timeout.
	WriteTimeout time.Duration

	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration
}

// DefaultConfig returns sensible server defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		Version:         "dev",
		DataDir:         "./data",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
	}
}

// New creates a new server with all dependencies.
func New(cfg Config, appCfg config.Config, log *logger.Logger) (*Server, error) {
	if cfg.Port == 0 {
		cfg = DefaultConfig()
	}

	s := &Server{
		cfg:    cfg,
		appCfg: appCfg,
		log:    log,
	}

	// Document store
	store, err := docstore.NewStore(appCfg.Store)
	if err != nil {
		return nil, fmt.Errorf("creating document store: %w", err)
	}
	s.store = store

	if err := docstore.EnsureSystemIndices(context.Background(), store); err != nil {
		return nil, fmt.Errorf("ensuring system indices: %w", err)
	}

	// Event bus
	eventBus, err := bus.NewBus(appCfg.Bus, log)
	if err != nil {
		return nil, fmt.Errorf("creating event bus: %w", err)
	}
	s.bus = eventBus

	// Metrics
	if appCfg.Observability.MetricsEnabled {
		s.metrics = metrics.NewWithHistory(appCfg.Observability.HistoryURL)
	}

	// Search backend
	qdrantCfg := backend.DefaultQdrantConfig()
	if appCfg.Qdrant.URL != "" {
		host, port, err := backend.ParseQdrantURL(appCfg.Qdrant.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid Qdrant URL: %w", err)
		}
		qdrantCfg.Host = host
		qdrantCfg.Port = port
	}
	qdrantCfg.APIKey = appCfg.Qdrant.APIKey
	qdrantCfg.CollectionPrefix = appCfg.Qdrant.CollectionPrefix

	searcher, err := backend.NewQdrantSearcher(qdrantCfg, backend.NewHashingEmbedder(embeddingDim), log)
	if err != nil {
		return nil, fmt.Errorf("creating Qdrant searcher: %w", err)
	}
	s.searcher = searcher

	// Evaluation services
	s.registry = backend.NewRegistry(store, log)
	executor := backend.NewExecutor(s.registry, searcher, log)

	resolver := judgments.NewResolver(store, log)
	dashWriter := dashboard.NewWriter(store, log)
	writer := experiment.NewWriter(store, dashWriter, log)
	aggregator := experiment.NewAggregator(writer, executor, resolver, eventBus, appCfg.Evaluation.DefaultKs, log)

	s.querySets = queryset.NewService(store, log).WithEvents(eventBus)
	s.importer = judgments.NewImporter(store, log).WithEvents(eventBus)

	// Runtime settings
	settingsSvc, err := settings.NewService(settings.ServiceConfig{
		StoragePath:  cfg.DataDir + "/settings",
		LoadDefaults: true,
		AuditLog:     cfg.DataDir + "/settings/audit.jsonl",
	}, eventBus, log)
	if err != nil {
		return nil, fmt.Errorf("creating settings service: %w", err)
	}
	s.settings = settingsSvc

	s.experiments = experiment.NewService(store, writer, aggregator, s.querySets, s.registry, eventBus, appCfg.Evaluation, log).
		WithRuntimeDefaults(settingsSvc)

	// Handlers
	s.experimentHandler = experiment.NewHandler(s.experiments)
	s.querySetHandler = queryset.NewHandler(s.querySets)
	s.judgmentHandler = judgments.NewHandler(s.importer)
	s.configHandler = backend.NewHandler(s.registry)
	s.settingsHandler = settings.NewHandler(settingsSvc)

	return s, nil
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("server already started")
	}
	s.started = true
	s.mu.Unlock()

	handler := s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info("Starting HTTP server", "addr", addr, "version", s.cfg.Version)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.log.Error("HTTP shutdown error", "error", err)
		}
	}

	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
	}
	if s.searcher != nil {
		_ = s.searcher.Close()
	}
	if s.settings != nil {
		_ = s.settings.Close()
	}
	if s.metrics != nil {
		_ = s.metrics.Close()
	}
	if s.bus != nil {
		_ = s.bus.Close()
	}
	if s.store != nil {
		_ = s.store.Close()
	}

	s.started = false
	s.log.Info("Server stopped")

	return nil
}

// setupRoutes configures all HTTP routes and middleware.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	s.experimentHandler.RegisterRoutes(mux)
	s.querySetHandler.RegisterRoutes(mux)
	s.judgmentHandler.RegisterRoutes(mux)
	s.configHandler.RegisterRoutes(mux)
	s.settingsHandler.RegisterRoutes(mux)

	healthHandler := NewHealthHandler(s, s.cfg.Version)
	healthHandler.RegisterRoutes(mux)

	if s.metrics != nil {
		path := s.appCfg.Observability.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		mux.Handle(path, metrics.NewHandler(s.metrics))
	}

	chain := []func(http.Handler) http.Handler{
		middleware.CORS(corsOrigins(s.appCfg.Security.CORSOrigins)),
		middleware.APIKey(s.appCfg.Security.APIKey),
	}

	if s.appCfg.Security.RateLimit > 0 {
		s.rateLimiter = middleware.NewRateLimiter(middleware.RateLimiterConfig{
			RequestsPerSecond: float64(s.appCfg.Security.RateLimit),
			Burst:             s.appCfg.Security.RateLimit * 2,
			CleanupInterval:   time.Minute,
		})
		chain = append(chain, s.rateLimiter.Middleware)
	}

	if s.metrics != nil {
		chain = append(chain, middleware.Metrics(s.metrics, s.metrics.HTTPRequestsInFlight))
	}
	chain = append(chain, middleware.Logging(s.log))

	return middleware.Chain(mux, chain...)
}

// corsOrigins parses the configured comma-separated origin list. A "*" or
// empty value allows any origin.
func corsOrigins(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "*" {
		return nil
	}

	parts := strings.Split(raw, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}

// Health returns the server health status.
func (s *Server) Health() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.started
}
