package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"

	"github.com/tournevent/shipping/internal/shipping"
)

// Server is the HTTP server for the shipping service.
type Server struct {
	port     int
	svc      *shipping.Service
	logger   *otelzap.Logger
	gatherer prometheus.Gatherer
	ready    func(context.Context) error
	validate *validator.Validate
}

// Config holds server configuration.
type Config struct {
	Port int
	// Gatherer backs /metrics. Nil means the default registry.
	Gatherer prometheus.Gatherer
	// Ready backs /ready, typically a database ping.
	Ready func(context.Context) error
}

// New creates a new server instance.
func New(cfg Config, svc *shipping.Service, logger *otelzap.Logger) *Server {
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		port:     cfg.Port,
		svc:      svc,
		logger:   logger,
		gatherer: gatherer,
		ready:    cfg.Ready,
		validate: newValidator(),
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/shipments", func(r chi.Router) {
		r.Post("/calculate-rates", s.handleCalculateRates)
		r.Post("/create", s.handleCreate)
		r.Post("/webhook/tracking", s.handleTrackingWebhook)
		r.Post("/export-csv", s.handleExportCSV)
		r.Get("/parcel-templates", s.handleParcelTemplates)
		r.Get("/pickup-points", s.handlePickupPoints)
		r.Get("/carrier-accounts", s.handleListCarrierAccounts)
		r.Put("/carrier-accounts", s.handleUpsertCarrierAccount)
		r.Get("/{id}", s.handleGetShipment)
		r.Get("/{id}/track", s.handleTrack)
	})
	return r
}

// Run starts the HTTP server and blocks until context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting server", zap.Int("port", s.port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("Shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Ctx(r.Context()).Warn("Readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "NOT_READY", Message: err.Error()})
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
