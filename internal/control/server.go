// Package control is the HTTP surface of serve mode: health, metrics, run
// status and manual sync triggers.
package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/falcorrus/bao-tg-importer/internal/scheduler"
)

// Runner starts sync passes and reports on them.
type Runner interface {
	Trigger() error
	Status() scheduler.Status
}

// Server implements http.Handler.
type Server struct {
	router chi.Router
	runner Runner
}

// NewServer routes the control endpoints. gatherer backs /metrics.
func NewServer(runner Runner, gatherer prometheus.Gatherer) *Server {
	s := &Server{router: chi.NewRouter(), runner: runner}
	s.router.Use(middleware.Recoverer)
	s.router.Get("/healthz", s.handleHealth)
	s.router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	s.router.Get("/status", s.handleStatus)
	s.router.Post("/sync", s.handleSync)
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.runner.Status())
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	err := s.runner.Trigger()
	switch {
	case errors.Is(err, scheduler.ErrBusy):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case err != nil:
		slog.Error("trigger sync failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	default:
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
