package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kfarnham/klinedash/internal/logger"
	"github.com/kfarnham/klinedash/internal/obd"
)

// Server drives the poll loop against the engine-data provider and
// broadcasts decoded snapshots to WebSocket clients.
type Server struct {
	cfg    *Config
	prov   obd.Provider
	webFS  fs.FS
	logger *logger.Logger

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	lastMu sync.Mutex
	last   *Frame // most recent broadcast, replayed to new clients
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Frame is the JSON structure sent to all WebSocket clients. Session
// tells the page whether the numbers are live, stale while
// reconnecting, or absent.
type Frame struct {
	Data    *obd.Snapshot `json:"data,omitempty"`
	Session string        `json:"session"`
	Stamp   int64         `json:"stamp"` // Unix ms
}

// New creates a new Server.
func New(cfg *Config, prov obd.Provider, webFS fs.FS) *Server {
	return &Server{
		cfg:   cfg,
		prov:  prov,
		webFS: webFS,
		logger: logger.New(logger.Config{
			Enabled:    cfg.Logging.Enabled,
			Path:       cfg.Logging.Path,
			IntervalMs: cfg.Logging.IntervalMs,
		}),
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Run starts the HTTP server and the poll loop.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()

	// Serve embedded web files
	mux.Handle("/", http.FileServer(http.FS(s.webFS)))

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWS)

	// Config API
	mux.HandleFunc("/api/config", s.handleConfig)

	go s.pollLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	return srv.ListenAndServe()
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", len(s.clients))

	// Replay the latest frame so the page paints immediately.
	s.lastMu.Lock()
	last := s.last
	s.lastMu.Unlock()
	if last != nil {
		if data, err := json.Marshal(last); err == nil {
			client.send <- data
		}
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / close detection)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", len(s.clients))
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		s.logger.SetEnabled(s.cfg.Logging.Enabled)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

// pollLoop runs read cycles against the provider for as long as the
// context lives. A failed cycle rebroadcasts the previous snapshot with
// its readings downgraded to stale; a lost session tears the connection
// down and re-runs the full handshake with backoff.
func (s *Server) pollLoop(ctx context.Context) {
	pollMs := s.cfg.OBD.PollMs
	if pollMs <= 0 {
		pollMs = 500
	}
	ticker := time.NewTicker(time.Duration(pollMs) * time.Millisecond)
	defer ticker.Stop()
	defer s.logger.Close()

	var lastSnap *obd.Snapshot

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if s.prov.State() != obd.Ready {
			s.broadcastState(lastSnap, s.prov.State())
			continue
		}

		snap, err := s.prov.Poll()
		if err != nil {
			log.Printf("[server] poll cycle failed: %v", err)
			s.broadcastState(lastSnap, s.prov.State())

			if errors.Is(err, obd.ErrSessionExpired) || errors.Is(err, obd.ErrNotReady) {
				s.prov.Close()
				s.reconnect(ctx)
			}
			continue
		}

		lastSnap = snap
		s.broadcast(Frame{
			Data:    snap,
			Session: obd.Ready.String(),
			Stamp:   time.Now().UnixMilli(),
		})
		s.logger.Record(snap)
	}
}

// broadcastState tells clients the session is down, rebroadcasting the
// previous readings as stale so the page can gray them out instead of
// presenting them as live.
func (s *Server) broadcastState(lastSnap *obd.Snapshot, state obd.SessionState) {
	frame := Frame{
		Session: state.String(),
		Stamp:   time.Now().UnixMilli(),
	}
	if lastSnap != nil {
		stale := lastSnap.Staled()
		frame.Data = &stale
	}
	s.broadcast(frame)
}

// reconnect re-runs the slow-init handshake with exponential backoff
// until it succeeds or the context is cancelled.
func (s *Server) reconnect(ctx context.Context) {
	delay := 1 * time.Second
	maxDelay := 60 * time.Second

	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := s.prov.Connect(); err != nil {
			log.Printf("[server] reconnect attempt %d failed: %v (retry in %v)", attempt, err, delay)
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxDelay {
				delay = maxDelay
			}
			continue
		}

		log.Printf("[server] session re-established (attempt %d)", attempt)
		return
	}
}

func (s *Server) broadcast(frame Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.lastMu.Lock()
	s.last = &frame
	s.lastMu.Unlock()

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
