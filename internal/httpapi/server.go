// Package httpapi serves the monitor's snapshots and commands as JSON.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"netmon/internal/ledger"
	"netmon/internal/logging"
	"netmon/internal/model"
	"netmon/internal/monitor"
)

// Agent is the emitted interface the server renders.
type Agent interface {
	Status() monitor.Status
	LatestProbeSet() (model.ProbeSet, bool)
	LatencySeries() monitor.LatencyView
	PeerList() []monitor.PeerView
	LedgerSeries() ledger.Series
	ClearHistory() error
	ClearLedger()
}

// Server exposes the HTTP surface for a running agent.
type Server struct {
	router chi.Router
	agent  Agent
	logger *slog.Logger
}

// NewServer builds the router. metrics may be nil to omit /metrics.
func NewServer(agent Agent, metrics http.Handler, logger *slog.Logger) *Server {
	s := &Server{
		router: chi.NewRouter(),
		agent:  agent,
		logger: logging.OrDiscard(logger),
	}
	s.router.Use(middleware.Recoverer)
	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusNotFound, "not found")
	})
	s.router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/probe/latest", s.handleLatest)
		r.Get("/latency", s.handleLatency)
		r.Get("/peers", s.handlePeers)
		r.Get("/ledger", s.handleLedger)
		r.Post("/history/clear", s.handleClearHistory)
		r.Post("/ledger/clear", s.handleClearLedger)
	})
	if metrics != nil {
		s.router.Method(http.MethodGet, "/metrics", metrics)
	}
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.Status())
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	set, ok := s.agent.LatestProbeSet()
	if !ok {
		writeJSONError(w, http.StatusNotFound, "no completed cycle yet")
		return
	}
	writeJSON(w, http.StatusOK, set)
}

func (s *Server) handleLatency(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.LatencySeries())
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.PeerList())
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.agent.LedgerSeries())
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.agent.ClearHistory(); err != nil {
		s.logger.Warn("clear history failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func (s *Server) handleClearLedger(w http.ResponseWriter, r *http.Request) {
	s.agent.ClearLedger()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
