// Package server exposes the ELIZA engine over WebSocket. Each connection
// gets its own Session and eliza.Engine; the only state shared between
// connections is the read-only script.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/normanking/doctor/internal/bus"
	"github.com/normanking/doctor/internal/config"
	"github.com/normanking/doctor/internal/eliza"
	"github.com/normanking/doctor/internal/logging"
	"github.com/normanking/doctor/internal/metrics"
	"github.com/normanking/doctor/internal/script"
)

// Version is reported by the health endpoint.
var Version = "dev"

// ErrShuttingDown is returned by Serve after Shutdown.
var ErrShuttingDown = errors.New("server is shutting down")

// Server represents the HTTP server.
type Server struct {
	cfg      *config.Config
	script   *script.Script
	bus      *bus.Bus
	observer *bus.Observer
	upgrader websocket.Upgrader
	handler  http.Handler

	httpServer *http.Server
	startTime  time.Time
	log        zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.RWMutex
	sessions map[string]*Session
	closing  bool
	wg       sync.WaitGroup
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string `json:"status"`
	Version   string `json:"version"`
	Uptime    string `json:"uptime"`
	Sessions  int    `json:"sessions"`
	Timestamp string `json:"timestamp"`
}

// SessionsResponse represents the sessions list.
type SessionsResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}

// New creates a server answering with s. Session events go to b.
func New(cfg *config.Config, s *script.Script, b *bus.Bus) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		cfg:    cfg,
		script: s,
		bus:    b,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		startTime: time.Now(),
		log:       logging.WithComponent("server"),
		ctx:       ctx,
		cancel:    cancel,
		sessions:  make(map[string]*Session),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Server.Path, srv.wsHandler)
	mux.Handle(config.HealthPath, metrics.Instrument(config.HealthPath, http.HandlerFunc(srv.healthHandler)))
	mux.Handle(config.SessionsPath, metrics.Instrument(config.SessionsPath, http.HandlerFunc(srv.sessionsHandler)))
	if cfg.Server.EventsPath != "" && b != nil {
		srv.observer = bus.NewObserver(b, bus.ObserverConfig{
			ReplayHistory: true,
			HistoryCount:  100,
			WriteWait:     cfg.Server.WriteWait,
			PongWait:      cfg.Server.PongWait,
		})
		mux.Handle(cfg.Server.EventsPath, srv.observer)
	}
	if cfg.Metrics.Enabled {
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
	}
	srv.handler = mux

	srv.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

// Handler returns the server's routes, for embedding or httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.httpServer.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.log.Info().Str("addr", ln.Addr().String()).Str("path", s.cfg.Server.Path).Msg("HTTP server starting")
	err := s.httpServer.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return ErrShuttingDown
	}
	return err
}

// Shutdown stops accepting connections, closes every session with "going
// away" and waits for them to finish or ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()

	s.cancel()
	if s.observer != nil {
		s.observer.Close()
	}
	err := s.httpServer.Shutdown(ctx)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return err
}

// SessionCount returns the number of live sessions.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Sessions lists live sessions, oldest first.
func (s *Server) Sessions() []SessionInfo {
	s.mu.RLock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("WebSocket upgrade failed")
		return
	}

	id := uuid.NewString()
	engine := eliza.New(s.script,
		eliza.WithSessionID(id),
		eliza.WithMemorySize(s.cfg.Session.MemorySize),
		eliza.WithLogger(logging.WithComponent("eliza")),
	)
	sess := newSession(id, r.RemoteAddr, conn, engine, s.bus, SessionOptions{
		MaxMessageBytes: s.cfg.Server.MaxMessageBytes,
		WriteWait:       s.cfg.Server.WriteWait,
		PongWait:        s.cfg.Server.PongWait,
		Intro:           s.cfg.Session.Intro,
		Separator:       s.cfg.Session.Separator,
	})

	if !s.register(sess) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
			time.Now().Add(s.cfg.Server.WriteWait))
		conn.Close()
		return
	}
	defer s.unregister(sess)

	sess.run(s.ctx)
}

func (s *Server) register(sess *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closing {
		return false
	}
	s.sessions[sess.ID()] = sess
	s.wg.Add(1)
	return true
}

func (s *Server) unregister(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess.ID())
	s.mu.Unlock()
	s.wg.Done()
}

// healthHandler handles health check requests.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Sessions:  s.SessionCount(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	writeJSON(w, http.StatusOK, response)
}

// sessionsHandler lists live sessions.
func (s *Server) sessionsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, SessionsResponse{Sessions: s.Sessions()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
