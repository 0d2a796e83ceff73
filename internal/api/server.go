// Package api serves the push registration and dispatch HTTP endpoints.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/marcus/arcsync/internal/notify"
)

// Server is the HTTP API server for arcsync-push.
type Server struct {
	config  Config
	http    *http.Server
	notify  *notify.Service
	metrics *Metrics
	ln      net.Listener
}

// NewServer creates a new Server with the given config and notification service.
func NewServer(cfg Config, svc *notify.Service) (*Server, error) {
	if svc == nil {
		return nil, fmt.Errorf("notification service is required")
	}
	s := &Server{
		config:  cfg,
		notify:  svc,
		metrics: NewMetrics(),
	}

	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start begins listening for HTTP requests (non-blocking).
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.config.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	s.ln = ln

	go func() {
		if err := s.http.Serve(ln); err != nil && err != http.ErrServerClosed {
			slog.Error("http server", "err", err)
		}
	}()

	return nil
}

// Addr returns the bound address once Start has succeeded.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.config.ListenAddr
	}
	return s.ln.Addr().String()
}

// Handler returns the full handler chain.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// routes builds the HTTP handler with all routes and middleware.
func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()

	// Health & metrics
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /metricz", s.handleMetrics)

	// Notifications
	mux.HandleFunc("GET /api/Notifications/vapidPublicKey", s.handleVapidPublicKey)
	mux.HandleFunc("GET /api/Notifications/subscription", s.handleListSubscriptions)
	mux.HandleFunc("POST /api/Notifications/subscribe", s.handleSubscribe)
	mux.HandleFunc("POST /api/Notifications/send", s.handleSend)

	return chain(mux, recoveryMiddleware, requestIDMiddleware, loggerMiddleware, metricsMiddleware(s.metrics), loggingMiddleware, maxBytesMiddleware(1<<20), s.CORSMiddleware)
}

// handleHealth returns a health check response, pinging the subscription store.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.notify.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "error", "detail": "db unreachable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleMetrics returns a snapshot of server metrics.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.metrics.Snapshot())
}
