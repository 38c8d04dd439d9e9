package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/brojonat/flowtip/service/config"
	"github.com/brojonat/flowtip/service/metrics"
	natspkg "github.com/brojonat/flowtip/service/nats"
	"github.com/brojonat/flowtip/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Dependencies are the services the HTTP API fronts. Builder, Profiles and
// Prober are required; the rest are optional and disable their endpoints
// when nil.
type Dependencies struct {
	Builder    TxBuilder
	Profiles   ProfileLookup
	Prober     StatusProber
	Store      TipStore              // tip ledger
	Starter    temporal.WatchStarter // durable confirmation watches
	Subscriber natspkg.Subscriber    // tip event streaming
}

// Server represents the HTTP server for the tip relay.
type Server struct {
	addr     string
	cfg      *config.Config
	deps     Dependencies
	renderer *TemplateRenderer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	server   *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The metrics is optional - if nil, metrics endpoints won't be available.
func New(addr string, cfg *config.Config, deps Dependencies, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:    addr,
		cfg:     cfg,
		deps:    deps,
		metrics: m,
		logger:  logger,
	}
}

// WithTemplates adds template rendering support to the server using embedded files
func (s *Server) WithTemplates() error {
	renderer, err := NewTemplateRenderer(s.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize templates: %w", err)
	}
	s.renderer = renderer
	s.logger.Info("HTML templates loaded from embedded files")
	return nil
}

func (s *Server) chain() ChainInfo {
	return ChainInfo{
		ProgramID: s.cfg.ProgramAddress(),
		Mint:      s.cfg.MintAddress(),
		Decimals:  s.cfg.TokenDecimals,
	}
}

// Handler builds the routed handler, wrapped with CORS.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern, name string, h http.Handler) {
		if s.metrics != nil {
			h = metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
		}
		mux.Handle(pattern, h)
	}
	chain := s.chain()

	// Relay routes. The unversioned path is kept for existing clients.
	sendTx := handleSendGaslessTx(s.deps.Builder, s.logger)
	route("POST /api/v1/send-gasless-tx", "/api/v1/send-gasless-tx", sendTx)
	route("POST /api/send-gasless-tx", "/api/send-gasless-tx", sendTx)

	// Profile routes
	route("GET /api/v1/profiles/{handle}", "/api/v1/profiles/{handle}", handleGetProfile(s.deps.Profiles, chain, s.logger))
	route("GET /api/v1/profiles/{handle}/tip-link", "/api/v1/profiles/{handle}/tip-link", handleTipLink(s.deps.Profiles, chain, s.logger))

	// Tip routes
	route("GET /api/v1/tips/{signature}/status", "/api/v1/tips/{signature}/status", handleTipStatus(s.deps.Prober, s.logger))
	if s.deps.Store != nil {
		route("POST /api/v1/tips", "/api/v1/tips", handleRecordTip(s.deps.Store, s.deps.Starter, s.cfg.WatchTimeout, s.logger))
		route("GET /api/v1/tips", "/api/v1/tips", handleListTips(s.deps.Store, s.logger))
		route("GET /api/v1/stats/{address}", "/api/v1/stats/{address}", handleTipStats(s.deps.Store, s.logger))
	} else {
		disabled := handleLedgerDisabled(s.logger)
		mux.Handle("POST /api/v1/tips", disabled)
		mux.Handle("GET /api/v1/tips", disabled)
		mux.Handle("GET /api/v1/stats/{address}", disabled)
		s.logger.Warn("tip ledger not configured, ledger endpoints disabled")
	}

	// SSE streaming endpoints (if a subscriber is configured)
	if s.deps.Subscriber != nil {
		stream := handleStreamTips(s.deps.Subscriber, s.metrics, s.logger)
		mux.Handle("GET /api/v1/stream/tips/{address}", stream)
		mux.Handle("GET /api/v1/stream/tips", stream)
		s.logger.Info("SSE streaming endpoints enabled")
	} else {
		s.logger.Warn("NATS not configured, streaming endpoints disabled")
	}

	// HTML pages (if template renderer is configured)
	if s.renderer != nil {
		mux.HandleFunc("GET /tip/{handle}", handleTipPage(s.renderer, s.deps.Profiles, chain))
		s.logger.Info("HTML page endpoints enabled")
	}

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	return corsMiddleware(mux)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
		// no WriteTimeout: SSE streams are long-lived
		IdleTimeout: 60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers to all responses and handles OPTIONS preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
