package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/longmans/prompt-agent/internal/audit"
	"github.com/longmans/prompt-agent/internal/config"
	"github.com/longmans/prompt-agent/internal/db"
	"github.com/longmans/prompt-agent/internal/llm/adapter"
	"github.com/longmans/prompt-agent/internal/llm/budget"
	"github.com/longmans/prompt-agent/internal/middleware"
	"github.com/longmans/prompt-agent/internal/optimizer"
)

// Version is reported by /info.
var Version = "0.1.0"

// Deps are the components the server exposes.
type Deps struct {
	Config   config.ConfigManager
	Service  *optimizer.Service
	Registry *adapter.Registry
	Store    db.Store       // nil disables run history
	Budget   budget.Tracker // nil disables /api/v1/usage
	Logger   *zap.Logger
	Audit    audit.Logger
}

// Server represents the prompt-agent HTTP and gRPC server
type Server struct {
	config   config.ConfigManager
	service  *optimizer.Service
	registry *adapter.Registry
	store    db.Store
	budget   budget.Tracker
	logger   *zap.Logger
	audit    audit.Logger

	limiter  *middleware.RateLimiter
	handler  http.Handler
	upgrader *wsUpgrader

	// HTTP server
	httpServer *http.Server
	grpcServer *grpcHealthServer

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// State
	mu      sync.RWMutex
	running bool
}

// NewServer creates a new server from deps.
func NewServer(deps Deps) (*Server, error) {
	if deps.Config == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if deps.Service == nil {
		return nil, fmt.Errorf("optimizer service cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewNopLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cfg := deps.Config.Get(ctx)

	srv := &Server{
		config:   deps.Config,
		service:  deps.Service,
		registry: deps.Registry,
		store:    deps.Store,
		budget:   deps.Budget,
		logger:   deps.Logger.Named("server"),
		audit:    deps.Audit,
		limiter:  middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute, cfg.Server.RateLimitBurst),
		upgrader: newUpgrader(cfg.Server.AllowedOrigins),
		ctx:      ctx,
		cancel:   cancel,
	}
	srv.handler = srv.buildHandler(cfg)
	return srv, nil
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) buildHandler(cfg *config.Config) http.Handler {
	router := mux.NewRouter()
	s.registerHandlers(router, cfg)

	router.Use(middleware.RequestID)
	router.Use(middleware.RequestLog(s.logger))
	router.Use(middleware.APIKeyAuth(cfg.Server.APIKeys))
	router.Use(s.limiter.Middleware)
	router.Use(middleware.MaxBodySize(middleware.DefaultMaxBodyBytes))

	origins := cfg.Server.AllowedOrigins
	if len(origins) == 0 {
		origins = defaultAllowedOrigins
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization", middleware.APIKeyHeader, middleware.RequestIDHeader},
		ExposedHeaders:   []string{middleware.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		AllowCredentials: true,
	})

	return otelhttp.NewHandler(c.Handler(router), "prompt-agent",
		otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
}

// registerHandlers registers HTTP handlers
func (s *Server) registerHandlers(router *mux.Router, cfg *config.Config) {
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	router.HandleFunc("/info", s.handleInfo).Methods(http.MethodGet)
	if cfg.Metrics.Enabled {
		router.Handle(cfg.Metrics.Path, promhttp.Handler()).Methods(http.MethodGet)
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/optimize", s.handleOptimize).Methods(http.MethodPost)
	api.HandleFunc("/optimize/help", s.handleHelp).Methods(http.MethodGet)
	api.HandleFunc("/examples/parse", s.handleParseExamples).Methods(http.MethodPost)
	api.HandleFunc("/prompts/validate", s.handleValidatePrompt).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handleListRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handleDeleteRun).Methods(http.MethodDelete)
	api.HandleFunc("/providers", s.handleProviders).Methods(http.MethodGet)
	api.HandleFunc("/usage", s.handleUsage).Methods(http.MethodGet)

	router.HandleFunc("/ws/optimize", s.handleOptimizeStream).Methods(http.MethodGet)
}

// Start starts the HTTP server and, when a gRPC port is configured, the gRPC
// health service.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.mu.Unlock()

	cfg := s.config.Get(s.ctx)
	addr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.Port))
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	var grpcLis net.Listener
	if cfg.Server.GRPCPort > 0 {
		grpcAddr := net.JoinHostPort(cfg.Server.Host, fmt.Sprint(cfg.Server.GRPCPort))
		grpcLis, err = net.Listen("tcp", grpcAddr)
		if err != nil {
			_ = lis.Close()
			return fmt.Errorf("failed to listen on %s: %w", grpcAddr, err)
		}
	}

	return s.Serve(lis, grpcLis)
}

// Serve serves on already-open listeners. grpcLis may be nil.
func (s *Server) Serve(lis, grpcLis net.Listener) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.running = true
	s.mu.Unlock()

	cfg := s.config.Get(s.ctx)
	s.httpServer = &http.Server{
		Handler:      s.handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return s.ctx },
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.httpServer.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error", zap.Error(err))
		}
	}()

	if grpcLis != nil {
		s.grpcServer = newGRPCHealthServer(s.logger)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.grpcServer.Serve(grpcLis)
		}()
	}

	_ = s.audit.Log(s.ctx, audit.ServerStarted(lis.Addr().String()))
	s.logger.Info("prompt-agent server started",
		zap.String("address", lis.Addr().String()),
		zap.String("default_provider", cfg.LLM.DefaultProvider),
		zap.Strings("configured_providers", cfg.ConfiguredProviders()),
		zap.Bool("history", s.store != nil),
	)
	return nil
}

// Stop gracefully stops the server. In-flight runs are cancelled once ctx
// expires.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return fmt.Errorf("server is not running")
	}
	s.running = false
	s.mu.Unlock()

	s.logger.Info("stopping prompt-agent server")

	if s.grpcServer != nil {
		s.grpcServer.Stop()
	}

	var err error
	if s.httpServer != nil {
		err = s.httpServer.Shutdown(ctx)
		if err != nil {
			s.logger.Warn("HTTP server forced to shutdown", zap.Error(err))
		}
	}

	s.cancel()
	s.limiter.Stop()
	s.wg.Wait()

	_ = s.audit.Log(context.Background(), audit.ServerShutdown(err))
	s.logger.Info("prompt-agent server stopped")
	return err
}

// Wait blocks until the server is stopped
func (s *Server) Wait() {
	<-s.ctx.Done()
}

// IsRunning returns whether the server is running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// WatchConfig applies configuration reloads until ctx is done: cached model
// handles are dropped so the next run picks up new credentials.
func (s *Server) WatchConfig(ctx context.Context) {
	updates := s.config.Watch(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case cfg := <-updates:
			s.applyConfig(ctx, &cfg)
		}
	}
}

func (s *Server) applyConfig(ctx context.Context, cfg *config.Config) {
	if s.registry != nil {
		s.registry.Reset()
	}
	_ = s.audit.Log(ctx, audit.ConfigChanged(cfg.LLM.DefaultProvider, cfg.ConfiguredProviders()))
	s.logger.Info("configuration reloaded",
		zap.String("default_provider", cfg.LLM.DefaultProvider),
		zap.Strings("configured_providers", cfg.ConfiguredProviders()),
	)
}

// Run starts a server from deps, applies configuration reloads and stops it
// once ctx is cancelled, allowing server.shutdown_timeout_seconds for
// in-flight requests.
func Run(ctx context.Context, deps Deps) error {
	srv, err := NewServer(deps)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	go srv.WatchConfig(ctx)

	<-ctx.Done()
	srv.logger.Info("received shutdown signal")

	timeout := time.Duration(srv.config.Get(context.Background()).Server.ShutdownTimeoutSeconds) * time.Second
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
