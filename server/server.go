// Package server exposes the series store over HTTP: JSON summaries and
// point queries, PNG graphs, a websocket feed of live samples, Prometheus
// remote-write ingest and a /metrics endpoint.
package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"gitlab.com/tinyland/lab/loadgraph/collectors"
	"gitlab.com/tinyland/lab/loadgraph/config"
	"gitlab.com/tinyland/lab/loadgraph/history"
	"gitlab.com/tinyland/lab/loadgraph/timeseries"
)

// Store is the series store the server reads and, for remote write, appends
// to. *history.Store implements it.
type Store interface {
	Names() []string
	Unit(name string) (history.Unit, bool)
	Summary(name string) (history.Summary, bool)
	Summaries() []history.Summary
	ValueAt(name string, t time.Time) (int64, bool)
	Grid(name string, end time.Time, columns int, step time.Duration) (history.Grid, bool)
	Samples(name string) ([]timeseries.Sample, bool)
	Register(name string, unit history.Unit) error
	Append(name string, t time.Time, v int64) error
}

// IntervalSetter changes the sampling cadence. *collectors.Runner implements it.
type IntervalSetter interface {
	SetInterval(d time.Duration) error
	Interval() time.Duration
}

// Deps are the components the server is wired to.
type Deps struct {
	Store    Store
	Interval IntervalSetter
	// Status reports collector health for /healthz and /metrics. Optional.
	Status func() []collectors.CollectorStatus
	// Version is reported by /healthz.
	Version string
	Logger  *slog.Logger
	// Now is the clock for default query times (default time.Now).
	Now func() time.Time
}

// Server is the loadgraph HTTP API.
type Server struct {
	cfg     config.ServerConfig
	deps    Deps
	logger  *slog.Logger
	router  *mux.Router
	hub     *hub
	metrics *metrics

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	running  bool
}

// New builds a server and its routes. Call Start to listen.
func New(cfg config.ServerConfig, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = config.DefaultConfig().Server.MaxBodyBytes
	}
	if cfg.RemoteWriteScale <= 0 {
		cfg.RemoteWriteScale = 1
	}

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		router: mux.NewRouter(),
		hub:    newHub(logger),
	}
	s.metrics = newMetrics(deps.Store, deps.Status)
	s.setupRoutes()
	return s
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.Use(s.logRequests)

	s.router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/series", s.handleSeriesList).Methods(http.MethodGet)
	api.HandleFunc("/series/{name}", s.handleSeries).Methods(http.MethodGet)
	api.HandleFunc("/series/{name}/value", s.handleValue).Methods(http.MethodGet)
	api.HandleFunc("/series/{name}/grid", s.handleGrid).Methods(http.MethodGet)
	api.HandleFunc("/series/{name}/samples", s.handleSamples).Methods(http.MethodGet)
	api.HandleFunc("/series/{name}/graph.png", s.handleGraph).Methods(http.MethodGet)
	api.HandleFunc("/interval", s.handleGetInterval).Methods(http.MethodGet)
	api.HandleFunc("/interval", s.handlePutInterval).Methods(http.MethodPut)
	api.HandleFunc("/ws", s.handleWebSocket).Methods(http.MethodGet)

	if s.cfg.RemoteWrite {
		api.HandleFunc("/v1/write", s.handleRemoteWrite).Methods(http.MethodPost)
	}
	if s.cfg.Metrics {
		s.router.Handle("/metrics", s.metrics.handler()).Methods(http.MethodGet)
	}
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("server: listen %s: %w", s.cfg.Listen, err)
	}
	s.listener = ln
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server error", "error", err)
		}
	}()

	s.running = true
	s.logger.Info("http server started", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes websocket clients and shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	s.hub.closeAll()

	if err := s.http.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	s.wg.Wait()

	s.running = false
	s.logger.Info("http server stopped")
	return nil
}

// Broadcast sends a runner update to every websocket client.
func (s *Server) Broadcast(u collectors.Update) {
	s.hub.broadcast(u)
}

// writeJSON writes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, format string, args ...any) {
	writeJSON(w, status, errorBody{Error: fmt.Sprintf(format, args...)})
}

// statusRecorder captures the response status for request logging. It
// passes Hijack through so websocket upgrades still work.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.metrics.observeRequest(r.Method, rec.status)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}
