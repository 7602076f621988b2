package frontend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ProtocolVersion is reported by /json/version.
const ProtocolVersion = "1.3"

// Target describes the debuggable program behind a Server.
type Target struct {
	ID      string
	Title   string
	URL     string
	Product string
}

// Server exposes one debug target over HTTP discovery endpoints and a
// WebSocket. At most one frontend is attached at a time.
type Server struct {
	session  Session
	poster   Poster
	target   Target
	opts     options
	upgrader websocket.Upgrader

	mu       sync.Mutex
	active   *WebSocketSink
	listener net.Listener
	srv      *http.Server
}

// NewServer creates a server for target. Frontends are attached to session
// through tasks posted to poster.
func NewServer(session Session, poster Poster, target Target, opts ...Option) *Server {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Server{
		session: session,
		poster:  poster,
		target:  target,
		opts:    o,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the server's HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /json/version", s.handleVersion)
	mux.HandleFunc("GET /json/list", s.handleList)
	mux.HandleFunc("GET /json", s.handleList)
	mux.HandleFunc("GET /{id}", s.handleWebSocket)
	return mux
}

// Start listens on addr and serves in the background.
func (s *Server) Start(addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return ErrServerStarted
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func(srv *http.Server) {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.opts.logger.Error().Err(err).Msg("inspector server stopped")
		}
	}(s.srv)

	s.opts.logger.Info().Str("addr", ln.Addr().String()).Str("target", s.target.ID).Msg("inspector listening")
	return nil
}

// Addr returns the listening address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// WebSocketURL returns the URL frontends attach to.
func (s *Server) WebSocketURL() string {
	return "ws://" + s.Addr() + "/" + s.target.ID
}

// Shutdown stops accepting connections and closes the attached frontend.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	active := s.active
	s.active = nil
	s.mu.Unlock()

	if active != nil {
		_ = active.Close()
	}
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"Browser":          s.target.Product,
		"Protocol-Version": ProtocolVersion,
	})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	wsAddr := r.Host + "/" + s.target.ID
	writeJSON(w, []map[string]string{{
		"description":          "luaspect instance",
		"devtoolsFrontendUrl":  "devtools://devtools/bundled/js_app.html?experiments=true&v8only=true&ws=" + wsAddr,
		"id":                   s.target.ID,
		"title":                s.target.Title,
		"type":                 "node",
		"url":                  s.target.URL,
		"webSocketDebuggerUrl": "ws://" + wsAddr,
	}})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.PathValue("id") != s.target.ID {
		http.NotFound(w, r)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil && !s.active.isClosed() {
		http.Error(w, ErrTargetBusy.Error(), http.StatusConflict)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.opts.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.opts.logger.Debug().Str("remote", r.RemoteAddr).Msg("websocket connection established")

	sink := NewWebSocketSink(conn, WithLogger(s.opts.logger), WithPollInterval(s.opts.pollInterval))
	if err := sink.Attach(s.session, s.poster); err != nil {
		s.opts.logger.Warn().Err(err).Msg("frontend attach failed")
		_ = sink.Close()
		return
	}
	s.active = sink
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json; charset=UTF-8")
	_ = json.NewEncoder(w).Encode(v)
}
