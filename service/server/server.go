package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/peerramp/peerramp/service/config"
	"github.com/peerramp/peerramp/service/db"
	"github.com/peerramp/peerramp/service/metrics"
	"github.com/peerramp/peerramp/service/temporal"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// sweepInterval is how often the reservation sweep schedule fires. Expired
// reservations are also reclaimed lazily at claim time, so the sweep only
// has to keep the table from accumulating stale rows.
const sweepInterval = 5 * time.Minute

// LedgerGateway is the slice of the ledger client the HTTP server uses
// directly. Settlement-path ledger calls happen inside workflow activities,
// not here.
type LedgerGateway interface {
	CreateOffRampIntent(ctx context.Context, address, amountWei string) (string, error)
	QueryEscrowBalance(ctx context.Context, address string) (string, error)
	NumberOfOpenOffRampIntents(ctx context.Context) (int, error)
}

// Server represents the HTTP server for the on/off-ramp service.
type Server struct {
	addr         string
	cfg          *config.Config
	store        *db.Store
	orchestrator temporal.Orchestrator
	scheduler    temporal.Scheduler
	ledger       LedgerGateway
	metrics      *metrics.Metrics
	logger       *slog.Logger
	server       *http.Server
}

// New creates a new HTTP server with the given dependencies.
// The orchestrator starts settlement and registration workflows and routes
// payment callbacks to them. The scheduler owns the reservation sweep
// schedule. The metrics is optional - if nil, the metrics endpoint and
// request instrumentation won't be available.
func New(addr string, cfg *config.Config, store *db.Store, orchestrator temporal.Orchestrator, scheduler temporal.Scheduler, ledger LedgerGateway, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		addr:         addr,
		cfg:          cfg,
		store:        store,
		orchestrator: orchestrator,
		scheduler:    scheduler,
		ledger:       ledger,
		metrics:      m,
		logger:       logger,
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	// Reservations abandoned by crashed workflows must still expire.
	if err := s.scheduler.CreateSweepSchedule(context.Background(), sweepInterval); err != nil {
		return fmt.Errorf("failed to create reservation sweep schedule: %w", err)
	}

	mux := http.NewServeMux()

	// On-ramp settlement routes
	mux.Handle("POST /api/v1/onramps", s.instrument("/api/v1/onramps",
		handleStartOnRamp(s.store, s.orchestrator, s.cfg, s.logger)))
	mux.Handle("GET /api/v1/onramps/{correlation_id}", s.instrument("/api/v1/onramps/{correlation_id}",
		handleGetOnRamp(s.orchestrator, s.logger)))
	mux.Handle("GET /api/v1/payments/callback", s.instrument("/api/v1/payments/callback",
		handlePaymentCallback(s.store, s.orchestrator, s.logger)))

	// Off-ramp intent routes
	mux.Handle("POST /api/v1/offramps", s.instrument("/api/v1/offramps",
		handleCreateOffRamp(s.store, s.ledger, s.logger)))
	mux.Handle("GET /api/v1/ledger/status", s.instrument("/api/v1/ledger/status",
		handleLedgerStatus(s.ledger, s.logger)))

	// Registration routes
	mux.Handle("POST /api/v1/registrations", handleSubmitRegistration(s.store, s.orchestrator, s.cfg, s.logger))
	mux.Handle("GET /api/v1/registrations/{address}", handleGetRegistration(s.store, s.logger))

	// Transaction record routes
	mux.Handle("GET /api/v1/transactions", handleListTransactions(s.store, s.logger))

	// Confirmation simulation, for environments without a real ledger.
	if s.cfg.DevMode {
		mux.Handle("PUT /api/v1/dev/transactions/{address}/confirm-all", handleConfirmAllTransactions(s.store, s.logger))
		s.logger.Warn("dev mode enabled: confirmation simulation endpoints mounted")
	}

	// Health check endpoint
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics endpoint (if metrics collector is configured)
	if s.metrics != nil {
		mux.Handle("GET /metrics", promhttp.Handler())
		s.logger.Info("Prometheus metrics endpoint enabled")
	}

	// Wrap mux with CORS middleware
	handler := corsMiddleware(mux)

	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", s.addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// instrument wraps a handler with HTTP request metrics when a collector is
// configured.
func (s *Server) instrument(name string, h http.Handler) http.Handler {
	if s.metrics == nil {
		return h
	}
	return metrics.HTTPMetricsMiddleware(s.metrics, name)(h)
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
		// Set CORS headers for all requests
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "3600")

		// Handle preflight OPTIONS requests
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		// Pass through to next handler
		next.ServeHTTP(w, r)
	})
}
