// Package diag serves the agent's diagnostic surface over HTTP:
// liveness, status, Prometheus metrics and a remote check trigger.
package diag

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-logr/logr"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/upcast-io/upcast/internal/agent"
)

// Server exposes agent diagnostics over HTTP.
type Server struct {
	server *http.Server
	log    logr.Logger
}

// NewServer wires the diagnostic routes for the given agent. registry
// may be nil when telemetry is disabled, /metrics then serves an empty
// set.
func NewServer(addr string, ag *agent.Agent, registry *prometheus.Registry, log logr.Logger) *Server {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(ag.Status()); err != nil {
			log.Error(err, "failed to write status")
		}
	}).Methods(http.MethodGet)

	// The background check outlives the request, it must not inherit
	// the request context.
	r.HandleFunc("/check", func(w http.ResponseWriter, req *http.Request) {
		ag.ForceCheckInBackground(context.Background(), req.URL.Query().Get("feed"))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("check started\n"))
	}).Methods(http.MethodPost)

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return &Server{
		server: &http.Server{Addr: addr, Handler: r},
		log:    log,
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start serves until ctx ends, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.log.Info("starting diagnostics server", "addr", s.server.Addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}
