// Package healthserver exposes the bot's operational endpoints: a
// liveness check, Prometheus metrics, and recent log entries.
package healthserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"communitybot/pkg/logx"
	"communitybot/pkg/version"
)

// StatusProvider reports runtime facts for the health payload.
type StatusProvider interface {
	ModelName() string
}

// Server is the ops HTTP server.
type Server struct {
	addr     string
	backend  string
	provider StatusProvider
	logger   *logx.Logger
}

// New creates a server listening on addr. provider may be nil.
func New(addr, backend string, provider StatusProvider) *Server {
	return &Server{
		addr:     addr,
		backend:  backend,
		provider: provider,
		logger:   logx.NewLogger("healthserver"),
	}
}

// RegisterRoutes attaches the handlers to mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/logs", s.handleLogs)
	mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	payload := map[string]string{
		"status":  "ok",
		"backend": s.backend,
		"version": version.Version,
	}
	if s.provider != nil {
		payload["model"] = s.provider.ModelName()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(payload)
}

// handleLogs returns the in-memory log buffer, newest last.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(logx.Recent())
}

// Start runs the server in the background and shuts it down when ctx
// is cancelled.
func (s *Server) Start(ctx context.Context) {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("health server listening on %s", s.addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("health server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		// Parent context is cancelled; shutdown needs a fresh one.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("health server shutdown failed: %v", err)
		}
	}()
}
