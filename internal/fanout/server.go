package fanout

import (
	"fmt"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opunsoars/pitchly/internal/events"
	"github.com/opunsoars/pitchly/internal/telemetry"
)

const (
	clientSendBuf = 64
	writeDeadline = 5 * time.Second
	pongWait      = 30 * time.Second
	pingInterval  = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// streamed lists the bus events forwarded to renderer clients.
var streamed = []events.EventType{
	events.EventSurfaceReady,
	events.EventSurfaceFailed,
	events.EventPlaybackStatus,
}

type renderClient struct {
	types map[events.EventType]bool // nil means every streamed type
	conn  *websocket.Conn
	send  chan []byte
	done  chan struct{}
}

func (c *renderClient) wants(t events.EventType) bool {
	return c.types == nil || c.types[t]
}

// Server fans out surface events to connected renderer WebSocket clients.
type Server struct {
	mu      sync.Mutex
	clients map[*renderClient]struct{}
}

func NewServer(bus *events.Bus) *Server {
	s := &Server{
		clients: make(map[*renderClient]struct{}),
	}
	for _, t := range streamed {
		bus.Subscribe(t, s.forward)
	}
	return s
}

// forward is called on the publisher's goroutine. It serializes the event
// once and enqueues it to interested clients' send channels (non-blocking).
func (s *Server) forward(evt events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.clients) == 0 {
		return nil
	}

	data, err := MarshalEvent(evt)
	if err != nil {
		telemetry.Warnf("fanout: marshal error: %v", err)
		return nil
	}

	for c := range s.clients {
		if !c.wants(evt.Type) {
			continue
		}
		select {
		case c.send <- data:
		default:
			telemetry.Metrics.FanoutDrops.Inc()
			telemetry.Warnf("fanout: dropping %s for slow client (frame %d)", evt.Type, evt.FrameID)
		}
	}
	return nil
}

// RegisterRoutes wires the WebSocket endpoint onto the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /ws", s.HandleWS)
}

// HandleWS is the HTTP handler for WebSocket upgrade requests.
// Renderers may narrow the stream with ?types=surface_ready,playback_status.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	types, err := parseTypes(r.URL.Query().Get("types"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		telemetry.Warnf("fanout: upgrade failed: %v", err)
		return
	}

	c := &renderClient{
		types: types,
		conn:  conn,
		send:  make(chan []byte, clientSendBuf),
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	telemetry.Metrics.FanoutClients.Inc()

	telemetry.Plainf("Fanout: Client Connected [%s]", conn.RemoteAddr())

	go s.writePump(c)
	go s.readPump(c)
}

// ClientCount returns the number of connected renderers.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// writePump drains the client's send channel and writes to the WS connection.
// It owns the client lifecycle: on exit it removes the client from the map
// (so forward never sends to a stale channel) and closes the connection.
func (s *Server) writePump(c *renderClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		s.removeClient(c)
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				telemetry.Warnf("fanout: write error %s: %v", c.conn.RemoteAddr(), err)
				return
			}
		case <-c.done:
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump keeps the connection alive by reading pongs / close frames.
// No upstream messages are expected from renderers.
// On exit it signals writePump via c.done (never closes c.send).
func (s *Server) readPump(c *renderClient) {
	defer close(c.done)

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
	}
}

func (s *Server) removeClient(c *renderClient) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	telemetry.Metrics.FanoutClients.Dec()
	telemetry.Plainf("Fanout: Client Disconnected [%s]", c.conn.RemoteAddr())
}

// parseTypes reads a comma separated event type filter. An empty filter
// selects every streamed type.
func parseTypes(raw string) (map[events.EventType]bool, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	out := make(map[events.EventType]bool)
	for _, part := range strings.Split(raw, ",") {
		t := events.EventType(strings.TrimSpace(part))
		if !slices.Contains(streamed, t) {
			return nil, fmt.Errorf("unknown event type: %q", t)
		}
		out[t] = true
	}
	return out, nil
}
