// Package transport serves the bridge over HTTP and WebSocket.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/navbridge/extension/internal/bridge"
	"github.com/navbridge/extension/internal/config"
	"github.com/navbridge/extension/internal/events"
	"github.com/navbridge/extension/internal/marker"
	"github.com/navbridge/extension/internal/monitor"
	"github.com/navbridge/extension/internal/storage"
)

// Caller runs bridge methods.
type Caller interface {
	Call(ctx context.Context, name string, arguments json.RawMessage) bridge.Outcome
}

// MarkerReader exposes the marker store snapshots.
type MarkerReader interface {
	Markers() []marker.Marker
	Visible() []marker.Marker
}

// StatusReader returns the latest bridge status sample.
type StatusReader interface {
	Last() monitor.Status
}

// Dependencies holds the collaborators of the server.
type Dependencies struct {
	Bridge  Caller
	Hub     *events.Hub
	Markers MarkerReader      // optional
	Journal storage.Queryable // optional
	Status  StatusReader      // optional
	Logger  zerolog.Logger
	// Buffer is the event buffer of each streaming client.
	Buffer int
}

// Server routes HTTP requests and owns the upgraded connections.
type Server struct {
	cfg      config.ServerConfig
	deps     Dependencies
	log      zerolog.Logger
	router   chi.Router
	upgrader websocket.Upgrader
	http     *http.Server

	mu    sync.Mutex
	conns map[*conn]struct{}
}

// NewServer builds the router for the given dependencies.
func NewServer(cfg config.ServerConfig, deps Dependencies) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		log:  deps.Logger.With().Str("component", "transport").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Clients are local apps and webviews with arbitrary origins.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns: make(map[*conn]struct{}),
	}
	s.router = s.routes()
	s.http = &http.Server{
		Addr:              cfg.Address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(recovery(s.log))

	r.Get("/healthz", s.health)
	r.Get("/channel", s.channel)
	r.Get("/events", s.stream(events.CategoryNavigation))
	r.Get("/marker_events", s.stream(events.CategoryMarker))
	r.Get("/overlay_events", s.stream(events.CategoryOverlay))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/methods/{method}", s.callMethod)
		r.Get("/markers", s.listMarkers)
		r.Get("/markers/visible", s.listVisibleMarkers)
		r.Get("/journal", s.queryJournal)
		r.Get("/status", s.status)
	})
	return r
}

// ServeHTTP lets the server be mounted or tested without a listener.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe blocks until the server stops. A shutdown is not an error.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("address", s.cfg.Address).Msg("Listening")
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve accepts connections on an existing listener.
func (s *Server) Serve(l net.Listener) error {
	err := s.http.Serve(l)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting requests and closes every open connection.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.http.Shutdown(ctx)
	s.CloseConnections()
	return err
}

// CloseConnections closes every upgraded connection.
func (s *Server) CloseConnections() {
	s.mu.Lock()
	conns := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
}

// Connections returns the number of open upgraded connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// serveWS upgrades the request and runs fn until the connection ends.
func (s *Server) serveWS(w http.ResponseWriter, r *http.Request, kind string, fn func(c *conn)) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("kind", kind).Msg("websocket upgrade failed")
		return
	}

	log := s.log.With().Str("kind", kind).Str("remote_addr", r.RemoteAddr).Logger()
	c := newConn(ws, s.cfg.WriteTimeout, s.cfg.PingInterval, log)

	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
	log.Debug().Msg("client connected")

	writerDone := make(chan struct{})
	go func() {
		c.writeLoop()
		close(writerDone)
	}()
	go func() {
		<-c.Done()
		c.shutdown(writerDone)
	}()

	fn(c)
	c.close()

	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
	log.Debug().Msg("client disconnected")
}

func isUnexpectedClose(err error) bool {
	return websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway)
}
