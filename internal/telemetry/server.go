package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"github.com/omxlab/equityrun/internal/persistence"
)

// Server is the monitor endpoint: /health, /ready and /metrics.
type Server struct {
	addr      string
	metrics   *Metrics
	dbHealth  persistence.RepositoryHealth
	feedState func() string
	srv       *http.Server
}

// NewServer wires the monitor routes. dbHealth and feedState may be
// nil when the corresponding subsystem is disabled.
func NewServer(addr string, metrics *Metrics, dbHealth persistence.RepositoryHealth, feedState func() string) *Server {
	s := &Server{
		addr:      addr,
		metrics:   metrics,
		dbHealth:  dbHealth,
		feedState: feedState,
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ready", s.handleReady).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	s.srv = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	log.Info().Str("addr", s.addr).Msg("Monitor server listening")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Timestamp time.Time                `json:"timestamp"`
	Database  *persistence.HealthCheck `json:"database,omitempty"`
	Feed      string                   `json:"feed,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "healthy", Timestamp: time.Now()}

	if s.dbHealth != nil {
		hc := s.dbHealth.Health(r.Context())
		resp.Database = &hc
		if !hc.Healthy {
			resp.Status = "degraded"
		}
	}
	if s.feedState != nil {
		resp.Feed = s.feedState()
		if resp.Feed == "open" {
			resp.Status = "degraded"
		}
	}

	code := http.StatusOK
	if resp.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.dbHealth != nil {
		if err := s.dbHealth.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode monitor response")
	}
}
