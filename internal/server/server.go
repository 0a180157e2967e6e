package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"namegofer/internal/apiclient"
	"namegofer/internal/config"
	"namegofer/internal/proxy"
	"namegofer/internal/recordnames"
	"namegofer/internal/ws"
)

// Server serves coalesced record name lookups over HTTP and WebSocket
type Server struct {
	cfg     *config.Config
	client  *apiclient.Client
	service *recordnames.Service
	stats   *statsLogger

	httpServer *http.Server
	listener   net.Listener
	baseCtx    context.Context
	cancel     context.CancelFunc

	mu     sync.Mutex
	logger zerolog.Logger
}

// New creates a new Server
func New(cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	client, err := apiclient.NewFromConfig(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create API client: %w", err)
	}

	service := recordnames.NewService(client, recordnames.Options{
		GraceDelay:           cfg.GetGraceDelayDuration(),
		MaxConcurrentFetches: cfg.MaxConcurrentFetches,
		MaxRecordIDs:         cfg.MaxRecordIDs,
	}, logger)

	if cfg.IsCircuitBreakerEnabled() {
		logger.Info().
			Int("failureThreshold", cfg.CircuitBreaker.FailureThreshold).
			Int("recoveryTimeout", cfg.CircuitBreaker.RecoveryTimeout).
			Msg("circuit breaker enabled")
	} else {
		logger.Info().Msg("circuit breaker disabled")
	}

	baseCtx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:     cfg,
		client:  client,
		service: service,
		stats:   newStatsLogger(service, client, logger),
		baseCtx: baseCtx,
		cancel:  cancel,
		logger:  logger,
	}, nil
}

// Handler returns the HTTP handler serving every endpoint
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	proxy.NewHandler(s.service, s.logger).Register(mux)
	mux.Handle("GET /ws", ws.NewHandler(s.service, s.logger))
	return mux
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = ln
	s.httpServer = &http.Server{
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
		// WebSocket sessions derive from this context and end on Stop
		BaseContext: func(net.Listener) context.Context { return s.baseCtx },
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	go func() {
		s.logger.Info().
			Str("addr", ln.Addr().String()).
			Msg("starting server")
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("server error")
		}
	}()

	s.stats.Start(s.cfg.GetStatsLogIntervalDuration())

	s.logger.Info().
		Str("http", fmt.Sprintf("http://%s/data-source/{id}/record-names/", ln.Addr())).
		Str("ws", fmt.Sprintf("ws://%s/ws", ln.Addr())).
		Msg("endpoint available")

	return nil
}

// Addr returns the listening address, or "" before Start
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// ApplyConfig applies the settings that can change without a restart:
// log level, grace delay and statistics interval
func (s *Server) ApplyConfig(cfg *config.Config) {
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && level != zerolog.GlobalLevel() {
		zerolog.SetGlobalLevel(level)
		s.logger.Info().Str("logLevel", cfg.LogLevel).Msg("log level changed")
	}

	if delay := cfg.GetGraceDelayDuration(); delay != s.service.GraceDelay() {
		s.service.SetGraceDelay(delay)
		s.logger.Info().Dur("graceDelay", delay).Msg("grace delay changed")
	}

	s.stats.SetInterval(cfg.GetStatsLogIntervalDuration())

	if cfg.APIURL != s.cfg.APIURL || cfg.Port != s.cfg.Port || cfg.Host != s.cfg.Host {
		s.logger.Warn().Msg("apiUrl, host and port changes require a restart")
	}
}

// Stop gracefully stops the server. Open batches are dispatched and
// answered before the API client is released.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("shutting down server...")

	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()

	var httpErr error
	if httpServer != nil {
		httpErr = httpServer.Shutdown(ctx)
	}
	s.cancel()

	s.stats.Stop()
	s.service.Close()
	s.client.Close()

	if httpErr != nil {
		return fmt.Errorf("HTTP server shutdown error: %w", httpErr)
	}

	s.logger.Info().Msg("server stopped")
	return nil
}

// Service returns the record names service
func (s *Server) Service() *recordnames.Service {
	return s.service
}
