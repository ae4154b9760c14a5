// Package web is the HTTP side server: user registration before a session
// exists, the websocket endpoint of the request protocol, health and metrics.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"

	"github.com/codefionn/turing/internal/consts"
	"github.com/codefionn/turing/internal/logger"
	"github.com/codefionn/turing/internal/metrics"
	"github.com/codefionn/turing/internal/protocol"
	"github.com/codefionn/turing/internal/socketserver"
	"github.com/codefionn/turing/internal/state"
)

// Config controls the side server.
type Config struct {
	Listen          string
	EnableWebsocket bool
	EnableMetrics   bool
	EnablePprof     bool
	// MaxFrameBytes bounds one websocket message.
	MaxFrameBytes int
}

// Server represents the web server
type Server struct {
	cfg        Config
	dir        *state.Directory
	sockets    *socketserver.Server
	metrics    *metrics.Collector
	router     *httprouter.Router
	upgrader   websocket.Upgrader
	httpServer *http.Server
	log        *logger.Logger

	mu       sync.Mutex
	listener net.Listener
}

// RegisterRequest is the body of POST /v1/users.
type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RegisterResponse is returned for a created user.
type RegisterResponse struct {
	Username string `json:"username"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error protocol.ErrorInfo `json:"error"`
}

// NewServer creates the side server. sockets and m may be nil, which disables the
// websocket and metrics endpoints.
func NewServer(cfg Config, dir *state.Directory, sockets *socketserver.Server, m *metrics.Collector) *Server {
	if cfg.MaxFrameBytes <= 0 {
		cfg.MaxFrameBytes = consts.BufferSize1MB
	}

	s := &Server{
		cfg:     cfg,
		dir:     dir,
		sockets: sockets,
		metrics: m,
		router:  httprouter.New(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  consts.BufferSize1KB,
			WriteBufferSize: consts.BufferSize1KB,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log: logger.Global().WithPrefix("web"),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)
	s.router.POST("/v1/users", s.handleRegister)

	if s.cfg.EnableWebsocket && s.sockets != nil {
		s.router.GET("/v1/ws", s.handleWebSocket)
	}
	if s.cfg.EnableMetrics && s.metrics != nil {
		handler := s.metrics.Handler()
		s.router.GET("/metrics", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
			handler.ServeHTTP(w, r)
		})
	}
	if s.cfg.EnablePprof {
		s.router.Handler(http.MethodGet, "/debug/pprof/*item", http.HandlerFunc(servePprof))
	}
}

// servePprof routes /debug/pprof/<name> to the runtime profile handlers.
func servePprof(w http.ResponseWriter, r *http.Request) {
	switch strings.TrimPrefix(r.URL.Path, "/debug/pprof/") {
	case "cmdline":
		pprof.Cmdline(w, r)
	case "profile":
		pprof.Profile(w, r)
	case "symbol":
		pprof.Symbol(w, r)
	case "trace":
		pprof.Trace(w, r)
	default:
		pprof.Index(w, r)
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on cfg.Listen and serves in the background.
func (s *Server) Start() error {
	listener, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Listen, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: consts.Timeout10Seconds,
	}
	httpServer := s.httpServer
	s.mu.Unlock()

	go func() {
		s.log.Info("Web server listening on %s", listener.Addr())
		if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error: %v", err)
		}
	}()
	return nil
}

// Addr returns the listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop stops the web server. Websocket connections are owned by the socket
// server and end when it stops.
func (s *Server) Stop() error {
	s.mu.Lock()
	httpServer := s.httpServer
	s.mu.Unlock()
	if httpServer == nil {
		return nil
	}

	s.log.Info("Stopping web server...")
	ctx, cancel := context.WithTimeout(context.Background(), consts.Timeout5Seconds)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown HTTP server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"users":    s.dir.UserCount(),
		"sessions": s.dir.SessionCount(),
	})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	start := time.Now()
	var req RegisterRequest
	body := http.MaxBytesReader(w, r.Body, consts.BufferSize64KB)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		s.metrics.ObserveRequest("http_register", protocol.CodeInvalidRequest, time.Since(start))
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: protocol.ErrorInfo{
			Code:    protocol.CodeInvalidRequest,
			Message: "malformed registration body",
		}})
		return
	}

	if _, err := s.dir.Register(r.Context(), req.Username, req.Password); err != nil {
		info := protocol.ErrorFor(err)
		s.metrics.ObserveRequest("http_register", info.Code, time.Since(start))
		if state.KindOf(err) == state.Internal {
			s.log.Error("Registration of %s failed: %v", req.Username, err)
		}
		writeJSON(w, statusFor(state.KindOf(err)), ErrorResponse{Error: *info})
		return
	}

	s.metrics.ObserveRequest("http_register", "OK", time.Since(start))
	writeJSON(w, http.StatusCreated, RegisterResponse{Username: req.Username})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("Failed to upgrade WebSocket: %v", err)
		return
	}

	transport := newWSTransport(conn, s.cfg.MaxFrameBytes, s.sockets.Codec())
	if err := s.sockets.ServeTransport(transport); err != nil {
		s.log.Warn("WebSocket connection from %s rejected: %v", conn.RemoteAddr(), err)
	}
}

func statusFor(kind state.Kind) int {
	switch kind {
	case state.DuplicateUser:
		return http.StatusConflict
	case state.InvalidUsername, state.InvalidPassword, state.InvalidRequest:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
