// Package admin serves health, metrics and trusted table diagnostics over
// HTTP.
package admin

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/endorses/trustpeer/internal/pkg/checker"
	"github.com/endorses/trustpeer/internal/pkg/constants"
	"github.com/endorses/trustpeer/internal/pkg/logger"
	"github.com/endorses/trustpeer/internal/pkg/metrics"
	"github.com/endorses/trustpeer/internal/pkg/output"
	"github.com/endorses/trustpeer/internal/pkg/trusted"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config wires the admin server.
type Config struct {
	Listen  string
	Store   *trusted.Store
	Checker *checker.Checker
	Metrics *metrics.Collector
}

// Server is the admin HTTP endpoint.
type Server struct {
	cfg    Config
	router chi.Router
	mu     sync.Mutex
	srv    *http.Server
}

// New builds the router. Metrics may be nil, in which case /metrics is not
// mounted.
func New(cfg Config) *Server {
	s := &Server{cfg: cfg}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Get("/trusted", s.handleDump)
	r.Get("/check", s.handleCheck)
	if cfg.Metrics != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Metrics.Registry(), promhttp.HandlerOpts{
			EnableOpenMetrics: true,
		}))
	}
	s.router = r
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured address and serves in the background.
// It returns the bound address.
func (s *Server) Start() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return "", errors.New("admin: already started")
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return "", fmt.Errorf("admin: listen %s: %w", s.cfg.Listen, err)
	}
	s.srv = &http.Server{
		Handler:      s.router,
		ReadTimeout:  constants.AdminReadTimeout,
		WriteTimeout: constants.AdminWriteTimeout,
	}
	srv := s.srv
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Admin server error", "error", err)
		}
	}()

	addr := ln.Addr().String()
	logger.Info("Admin server listening", "addr", addr)
	return addr, nil
}

// Shutdown stops the server, waiting for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	s.srv = nil
	return err
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	tbl := s.cfg.Store.Current()
	if tbl == nil {
		http.Error(w, "no trusted table loaded", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("X-Trusted-Generation", tbl.Generation())
	w.Header().Set("X-Trusted-Built-At", tbl.BuiltAt().UTC().Format(time.RFC3339Nano))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleDump(w http.ResponseWriter, _ *http.Request) {
	tbl := s.cfg.Store.Current()
	if tbl == nil {
		http.Error(w, "no trusted table loaded", http.StatusServiceUnavailable)
		return
	}
	var buf bytes.Buffer
	if err := tbl.Dump(&buf); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Trusted-Generation", tbl.Generation())
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	src := q.Get("src")
	if src == "" {
		http.Error(w, "src is required", http.StatusBadRequest)
		return
	}
	proto := q.Get("proto")
	if proto == "" {
		proto = "udp"
	}
	transport, err := trusted.ParseTransport(proto)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	d := s.cfg.Checker.Check(trusted.Query{Source: src, Protocol: transport, IdentityURI: q.Get("uri")})

	status := http.StatusOK
	switch {
	case errors.Is(d.Err, trusted.ErrURITooLong):
		status = http.StatusBadRequest
	case errors.Is(d.Err, trusted.ErrTagForward):
		// matched; the body carries the error
	case d.Err != nil:
		status = http.StatusInternalServerError
	}

	data, err := output.MarshalJSONPretty(output.FromDecision(d), false)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}
