// Package server serves the browser explorer: an embedded canvas painter
// fed with display lists over a websocket, one session per connection.
package server

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/msalah0e/graphlens/internal/client"
	"github.com/msalah0e/graphlens/internal/dispatch"
	"github.com/msalah0e/graphlens/internal/metrics"
	"github.com/msalah0e/graphlens/internal/session"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

//go:embed static
var static embed.FS

// Source is the database service: everything a session needs plus the
// query catalogue.
type Source interface {
	session.Source
	Endpoints(ctx context.Context) ([]client.Endpoint, error)
}

// Config holds server configuration.
type Config struct {
	Addr     string
	Logger   *slog.Logger
	Registry *prometheus.Registry
	// Sessions are applied to every session the server creates.
	Sessions []session.Option
}

// Server is the graphlens view server.
type Server struct {
	cfg     Config
	src     Source
	logger  *slog.Logger
	metrics *metrics.Metrics
	started time.Time

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// New creates a server reading from src.
func New(src Source, cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
		cfg.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return &Server{
		cfg:      cfg,
		src:      src,
		logger:   cfg.Logger,
		metrics:  metrics.New(cfg.Registry),
		started:  time.Now(),
		sessions: make(map[string]*session.Session),
	}
}

// Handler returns the HTTP handler with every route mounted.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	root, _ := fs.Sub(static, "static")
	mux.Handle("GET /", http.FileServer(http.FS(root)))
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.HandleFunc("GET /api/endpoints", s.handleEndpoints)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.cfg.Registry, promhttp.HandlerOpts{}))
	return s.logRequests(mux)
}

// Start serves until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("view server listening", "addr", s.cfg.Addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdown); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// endpointView is a catalogue entry with its classification.
type endpointView struct {
	client.Endpoint
	Kind string `json:"kind"`
}

func (s *Server) handleEndpoints(w http.ResponseWriter, r *http.Request) {
	eps, err := s.src.Endpoints(r.Context())
	if err != nil {
		s.logger.Warn("endpoint listing failed", "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
		return
	}
	out := make([]endpointView, len(eps))
	for i, ep := range eps {
		out[i] = endpointView{Endpoint: ep, Kind: dispatch.Classify(ep.QueryName).String()}
	}
	writeJSON(w, http.StatusOK, out)
}

// Status reports what the server is doing.
type Status struct {
	Sessions int    `json:"sessions"`
	Uptime   string `json:"uptime"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Status{
		Sessions: s.SessionCount(),
		Uptime:   time.Since(s.started).Round(time.Second).String(),
	})
}

// SessionCount returns the number of connected sessions.
func (s *Server) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) track(sess *session.Session) func() {
	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.sessions, sess.ID)
		s.mu.Unlock()
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
