package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/san-kum/aeropid/internal/config"
	"github.com/san-kum/aeropid/internal/hub"
	"github.com/san-kum/aeropid/internal/metrics"
	"github.com/san-kum/aeropid/internal/system"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server is the thin HTTP surface over the core: REST wrappers, the
// websocket endpoint and static files. It implements no control logic.
type Server struct {
	cfg  *config.Config
	core *system.System
	hub  *hub.Hub
	http *http.Server
}

func New(cfg *config.Config, core *system.System, h *hub.Hub) *Server {
	s := &Server{cfg: cfg, core: core, hub: h}
	s.http = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	if s.cfg.RateLimit.Enabled {
		rl := NewRateLimiter(s.cfg.RateLimit.PerSec, s.cfg.RateLimit.Burst)
		api.Use(rl.Middleware)
	}
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/command", s.handleCommand).Methods(http.MethodPost)
	api.HandleFunc("/history", s.handleHistory).Methods(http.MethodGet)
	api.HandleFunc("/pid", s.handlePID).Methods(http.MethodPut)

	r.HandleFunc("/ws", s.handleWS)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler())

	if _, err := os.Stat(s.cfg.StaticDir); err == nil {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return r
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("server: listening on %s", s.cfg.ListenAddr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Printf("server: shutting down")
	s.hub.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("server: websocket upgrade from %s failed: %v", r.RemoteAddr, err)
		return
	}
	s.hub.Register(conn)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.core.Snapshot())
	metrics.HTTPRequests.WithLabelValues("status", "ok").Inc()
}

type commandRequest struct {
	Command string `json:"command"`
	Value   any    `json:"value,omitempty"`
}

type commandResponse struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: "malformed request body"})
		metrics.HTTPRequests.WithLabelValues("command", "bad_request").Inc()
		return
	}

	st, err := s.core.Execute(req.Command, req.Value)
	if err != nil {
		writeJSON(w, statusFor(err), commandResponse{Error: err.Error()})
		metrics.HTTPRequests.WithLabelValues("command", "error").Inc()
		return
	}

	// mirror the websocket path: state changed, observers get the new state
	s.hub.Broadcast(hub.SystemUpdate{
		Type:      hub.TypeSystemUpdate,
		System:    st,
		Timestamp: time.Now().UnixMilli(),
	})

	writeJSON(w, http.StatusOK, commandResponse{Success: true, Result: st})
	metrics.HTTPRequests.WithLabelValues("command", "ok").Inc()
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	var from, to time.Time
	if ms, err := strconv.ParseInt(q.Get("from"), 10, 64); err == nil && ms > 0 {
		from = time.UnixMilli(ms)
	}
	if ms, err := strconv.ParseInt(q.Get("to"), 10, 64); err == nil && ms > 0 {
		to = time.UnixMilli(ms)
	}

	window := s.core.HistoryData(limit, from, to)
	times := make([]int64, len(window.Times))
	for i, t := range window.Times {
		times[i] = t.UnixMilli()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"angles": window.Angles,
		"errors": window.Errors,
		"times":  times,
	})
	metrics.HTTPRequests.WithLabelValues("history", "ok").Inc()
}

func (s *Server) handlePID(w http.ResponseWriter, r *http.Request) {
	var params map[string]any
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		writeJSON(w, http.StatusBadRequest, commandResponse{Error: "malformed request body"})
		metrics.HTTPRequests.WithLabelValues("pid", "bad_request").Inc()
		return
	}

	pid, err := s.core.UpdatePID(params)
	if err != nil {
		writeJSON(w, statusFor(err), commandResponse{Error: err.Error()})
		metrics.HTTPRequests.WithLabelValues("pid", "error").Inc()
		return
	}

	writeJSON(w, http.StatusOK, pid)
	metrics.HTTPRequests.WithLabelValues("pid", "ok").Inc()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
		"running": s.core.Snapshot().IsRunning,
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, system.ErrInvalidCommand):
		return http.StatusBadRequest
	case errors.Is(err, system.ErrInvalidArgument), errors.Is(err, system.ErrNoValidParams):
		return http.StatusBadRequest
	case errors.Is(err, system.ErrAlreadyRunning), errors.Is(err, system.ErrAlreadyStopped):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
