// Package api is the monitor of a running search: health and readiness
// checks, the recent event log, a live websocket stream, Prometheus metrics
// and an authenticated cancel endpoint.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/AaronLay10/lazysearch/internal/events"
	"github.com/AaronLay10/lazysearch/internal/logger"
	"github.com/AaronLay10/lazysearch/internal/version"
)

// Canceler stops the monitored run.
type Canceler interface {
	Cancel()
}

// Status is the run summary served on /status.
type Status struct {
	RunID      string `json:"run_id"`
	Strategy   string `json:"strategy"`
	State      string `json:"state"`
	Reason     string `json:"reason,omitempty"`
	Expansions int    `json:"expansions"`
	Solutions  int    `json:"solutions"`
	Frontier   int    `json:"frontier"`
}

// Options configures a Server. Bus is required; everything else is optional.
type Options struct {
	Address  string
	Bus      *events.Bus
	Metrics  prometheus.Gatherer
	Target   Canceler
	Status   func() Status
	Auth     *Auth
	TLS      *TLSConfig
	Alerter  *Alerter
	Logger   *zap.Logger
	Strategy string
}

// Server serves the monitor endpoints of one run.
type Server struct {
	opts      Options
	log       *zap.Logger
	mux       *http.ServeMux
	readiness *Readiness

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// NewServer builds the routes of a monitor server without listening.
func NewServer(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	s := &Server{
		opts:      opts,
		log:       logger.Component(opts.Logger, "api"),
		mux:       http.NewServeMux(),
		readiness: NewReadiness(),
	}
	if opts.Alerter != nil {
		opts.Bus.AddSink(opts.Alerter.Observe)
	}

	s.mux.HandleFunc("/health", s.healthHandler)
	s.mux.HandleFunc("/ready", s.readyHandler)
	s.mux.HandleFunc("/status", s.statusHandler)
	s.mux.HandleFunc("/events", s.opts.Auth.RequireAnyRole(s.eventsHandler))
	s.mux.HandleFunc("/ws", s.opts.Auth.RequireAnyRole(s.wsEventsHandler))
	s.mux.HandleFunc("/control/cancel", s.opts.Auth.RequireAnyRole(s.cancelHandler))
	if opts.Metrics != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(opts.Metrics, promhttp.HandlerOpts{}))
	}
	return s
}

// Handler returns the routes, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// Readiness returns the readiness tracker served on /ready.
func (s *Server) Readiness() *Readiness { return s.readiness }

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Version   string `json:"version"`
	RunID     string `json:"run_id"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "searchd",
		Version:   version.Version,
		RunID:     s.opts.Bus.RunID(),
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) statusHandler(w http.ResponseWriter, r *http.Request) {
	st := Status{RunID: s.opts.Bus.RunID(), Strategy: s.opts.Strategy}
	if s.opts.Status != nil {
		st = s.opts.Status()
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) eventsHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseEventQuery(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ControlResponse{OK: false, Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, q.backlog(s.opts.Bus, 0))
}

type ControlResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) cancelHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, ControlResponse{OK: false, Error: "method not allowed"})
		return
	}
	if s.opts.Target == nil {
		writeJSON(w, http.StatusServiceUnavailable, ControlResponse{OK: false, Error: "no run to cancel"})
		return
	}

	user, _, _ := r.BasicAuth()
	s.opts.Bus.Emit("info", "operator.cancel", "cancel requested", map[string]interface{}{
		"source": "http",
		"by":     user,
	})
	s.log.Info("cancel requested", zap.String(logger.FieldRunID, s.opts.Bus.RunID()), zap.String("by", user))
	s.opts.Target.Cancel()

	writeJSON(w, http.StatusOK, ControlResponse{OK: true})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Start listens on the configured address and serves in the background.
// The listener is bound before Start returns, so Addr is valid afterwards.
func (s *Server) Start() error {
	addr := s.opts.Address
	if addr == "" {
		addr = ":8090"
	}

	tlsCfg := s.opts.TLS
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	if tlsCfg.Enabled() {
		cfg, err := tlsCfg.Load()
		if err != nil {
			return err
		}
		srv.TLSConfig = cfg
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.srv = srv
	s.listener = ln
	s.mu.Unlock()

	s.log.Info("monitor listening", zap.String(logger.FieldAddress, ln.Addr().String()), zap.Bool("tls", srv.TLSConfig != nil))
	go func() {
		var err error
		if srv.TLSConfig != nil {
			err = srv.ServeTLS(ln, "", "")
		} else {
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("monitor server error", zap.Error(err))
		}
	}()
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

// Shutdown closes websocket streams and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.opts.Bus.CloseAllSubscribers()
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
