// Package stream feeds rendered mouth weights to renderer clients over
// WebSocket.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/avneetpandey82/Lip-Sync/internal/bus"
	"github.com/avneetpandey82/Lip-Sync/internal/config"
	"github.com/avneetpandey82/Lip-Sync/internal/logging"
	"github.com/avneetpandey82/Lip-Sync/internal/utterance"
	"github.com/avneetpandey82/Lip-Sync/internal/viseme"
)

const (
	// HealthEndpoint is the path for health checks.
	HealthEndpoint = "/health"

	// LogsEndpoint serves recent log history.
	LogsEndpoint = "/logs"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// Message types sent to clients.
const (
	TypeFrame    = "frame"
	TypeTimeline = "timeline"
	TypeEvent    = "event"
)

// Message is one JSON document on the wire.
type Message struct {
	Type      string             `json:"type"`
	Utterance string             `json:"utterance,omitempty"`
	Time      *float64           `json:"t,omitempty"`
	State     string             `json:"state,omitempty"`
	Viseme    *viseme.Viseme     `json:"viseme,omitempty"`
	Weights   map[string]float64 `json:"weights,omitempty"`
	Timeline  *viseme.Timeline   `json:"timeline,omitempty"`
	Refined   bool               `json:"refined,omitempty"`
	Event     string             `json:"event,omitempty"`
	Data      map[string]any     `json:"data,omitempty"`
}

type client struct {
	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
}

// Server broadcasts frames, timelines and pipeline events to every connected
// renderer. It implements utterance.FrameSink. A client that cannot keep up
// loses frames; one that cannot take a timeline is disconnected, since it
// would otherwise render against a stale timeline.
type Server struct {
	cfg      config.StreamConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader
	bus      *bus.EventBus
	history  func(limit int) []logging.LogEntry

	mu      sync.RWMutex
	clients map[*client]struct{}

	server   *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	dropped  atomic.Int64
}

// Option configures a Server.
type Option func(*Server)

// WithBus forwards every bus event to clients and reports connections on it.
func WithBus(b *bus.EventBus) Option {
	return func(s *Server) { s.bus = b }
}

// WithLogHistory exposes recent log entries on LogsEndpoint.
func WithLogHistory(fn func(limit int) []logging.LogEntry) Option {
	return func(s *Server) { s.history = fn }
}

// NewServer creates a server. Start or Handler makes it reachable.
func NewServer(cfg config.StreamConfig, log zerolog.Logger, opts ...Option) *Server {
	if cfg.Path == "" {
		cfg.Path = "/ws"
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 32
	}
	s := &Server{
		cfg: cfg,
		log: log.With().Str("component", "stream").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[*client]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.bus != nil {
		s.bus.SubscribeAll(s.forward)
	}
	return s
}

// Handler returns the HTTP routes: the WebSocket path, health and logs.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(s.cfg.Path, s.handleWebSocket)
	mux.HandleFunc(HealthEndpoint, s.handleHealth)
	mux.HandleFunc(LogsEndpoint, s.handleLogs)
	return mux
}

// Start listens on the configured address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("stream: listen %s: %w", s.cfg.Addr, err)
	}
	s.listener = ln
	s.server = &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.log.Info().Str("addr", ln.Addr().String()).Str("path", s.cfg.Path).Msg("Renderer feed listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("Renderer feed stopped")
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Shutdown disconnects every client and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		c.close()
	}
	s.mu.Unlock()

	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.wg.Wait()
	return err
}

// ClientCount returns the number of connected clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Dropped returns how many frames were dropped for slow clients.
func (s *Server) Dropped() int64 {
	return s.dropped.Load()
}

// SendFrame implements utterance.FrameSink.
func (s *Server) SendFrame(f utterance.Frame) {
	v, at := f.Viseme, f.Time
	s.broadcast(Message{
		Type:      TypeFrame,
		Utterance: f.Utterance,
		Time:      &at,
		State:     string(f.State),
		Viseme:    &v,
		Weights:   f.Weights.Map(),
	}, false)
}

// SendTimeline implements utterance.FrameSink.
func (s *Server) SendTimeline(id string, tl viseme.Timeline, refined bool) {
	s.broadcast(Message{
		Type:      TypeTimeline,
		Utterance: id,
		Timeline:  &tl,
		Refined:   refined,
	}, true)
}

func (s *Server) forward(e bus.Event) {
	switch e.Type {
	case bus.EventTypeClientConnected, bus.EventTypeClientDisconnected:
		return
	}
	s.broadcast(Message{Type: TypeEvent, Event: string(e.Type), Data: e.Data}, false)
}

func (s *Server) broadcast(m Message, must bool) {
	data, err := json.Marshal(m)
	if err != nil {
		s.log.Warn().Err(err).Str("type", m.Type).Msg("Failed to encode message")
		return
	}

	var slow []*client
	s.mu.RLock()
	for c := range s.clients {
		select {
		case c.send <- data:
		default:
			if must {
				slow = append(slow, c)
			} else {
				s.dropped.Add(1)
			}
		}
	}
	s.mu.RUnlock()

	if !must {
		return
	}
	for _, c := range slow {
		s.log.Warn().Msg("Client too slow for timeline update, disconnecting")
		s.remove(c)
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (s *Server) add(c *client) int {
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	if s.bus != nil {
		s.bus.Publish(bus.Event{Type: bus.EventTypeClientConnected, Data: map[string]any{"clients": n}})
	}
	return n
}

func (s *Server) remove(c *client) {
	s.mu.Lock()
	_, ok := s.clients[c]
	if ok {
		delete(s.clients, c)
		c.close()
	}
	n := len(s.clients)
	s.mu.Unlock()
	if ok && s.bus != nil {
		s.bus.Publish(bus.Event{Type: bus.EventTypeClientDisconnected, Data: map[string]any{"clients": n}})
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	c := &client{conn: conn, send: make(chan []byte, s.cfg.SendBuffer)}
	n := s.add(c)
	s.log.Info().Int("clients", n).Str("remote", r.RemoteAddr).Msg("Renderer connected")

	s.wg.Add(2)
	go s.writePump(c)
	go s.readPump(c)
}

func (s *Server) writePump(c *client) {
	defer s.wg.Done()
	defer c.conn.Close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				s.remove(c)
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.remove(c)
				return
			}
		}
	}
}

// readPump only services control frames; renderers do not send data.
func (s *Server) readPump(c *client) {
	defer s.wg.Done()
	defer s.remove(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.log.Debug().Err(err).Msg("Renderer connection error")
			}
			return
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status  string `json:"status"`
		Service string `json:"service"`
		Clients int    `json:"clients"`
		Dropped int64  `json:"dropped_frames"`
	}{
		Status:  "healthy",
		Service: "lipsync-stream",
		Clients: s.ClientCount(),
		Dropped: s.Dropped(),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(health)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		http.Error(w, "log history not available", http.StatusNotFound)
		return
	}
	limit := 100
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		limit = n
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(s.history(limit))
}
