package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-logic-plug/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-plug/internal/plug"
)

// Message types on the plug event feed.
const (
	WSTypeSnapshot = "snapshot"
	WSTypeEvent    = "event"
	WSTypePing     = "ping"
	WSTypePong     = "pong"
	WSTypeError    = "error"

	// ChannelPlugState carries one event per gateway operation.
	ChannelPlugState = "plug.state_changed"

	// wsSendBufferSize is the per-client outbound queue length.
	wsSendBufferSize = 32

	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 10 * time.Second
)

// WSMessage is the envelope of every frame on the feed.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// SnapshotPayload is sent once, right after the upgrade, so a client can
// render the plug before the next operation happens.
type SnapshotPayload struct {
	DeviceID string          `json:"device_id"`
	Power    plug.PowerState `json:"power"`
}

// PlugEventPayload is the payload of a plug.state_changed event.
type PlugEventPayload struct {
	DeviceID  string             `json:"device_id"`
	Action    plug.Action        `json:"action"`
	Method    plug.Method        `json:"method,omitempty"`
	IsOn      bool               `json:"is_on"`
	Known     bool               `json:"known"`
	Status    *plug.DeviceStatus `json:"status,omitempty"`
	Error     string             `json:"error,omitempty"`
	ElapsedMS int64              `json:"elapsed_ms"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// Hub fans gateway events out to every connected WebSocket client.
// It implements plug.Recorder.
type Hub struct {
	logger *logging.Logger

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	dropped atomic.Uint64
}

// wsClient is one connection. Only writeLoop writes to conn; done is
// closed exactly once when the client leaves or the hub shuts down.
type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
		done: make(chan struct{}),
	}
}

func (c *wsClient) close() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates an empty hub.
func NewHub(logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// Run blocks until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.close()
		delete(h.clients, c)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Dropped returns how many frames were discarded for slow clients.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}

func (h *Hub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.logger.Debug("websocket client connected", "clients", n)
}

func (h *Hub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	c.close()
	h.logger.Debug("websocket client disconnected", "clients", n)
}

// Record broadcasts ev on plug.state_changed.
func (h *Hub) Record(_ context.Context, ev plug.Event) {
	_, known := ev.KnownPower()
	payload := PlugEventPayload{
		DeviceID:  ev.DeviceID,
		Action:    ev.Action,
		Method:    ev.Result.Method,
		IsOn:      ev.Result.IsOn,
		Known:     known,
		Status:    ev.Result.Status,
		ElapsedMS: ev.Elapsed.Milliseconds(),
	}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}

	data, err := encodeWS(WSMessage{Type: WSTypeEvent, EventType: ChannelPlugState, Payload: payload})
	if err != nil {
		h.logger.Error("failed to encode plug event", "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		h.deliver(c, data)
	}
}

// deliver queues data without blocking. A full queue drops the frame.
func (h *Hub) deliver(c *wsClient, data []byte) {
	select {
	case <-c.done:
	case c.send <- data:
	default:
		h.dropped.Add(1)
		h.logger.Warn("websocket client too slow, frame dropped")
	}
}

// reply answers one client frame.
func (h *Hub) reply(c *wsClient, data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.replyError(c, "", "invalid JSON message")
		return
	}
	if msg.Type != WSTypePing {
		h.replyError(c, msg.ID, "unknown message type: "+msg.Type)
		return
	}
	if out, err := encodeWS(WSMessage{Type: WSTypePong, ID: msg.ID}); err == nil {
		h.deliver(c, out)
	}
}

func (h *Hub) replyError(c *wsClient, id, message string) {
	out, err := encodeWS(WSMessage{Type: WSTypeError, ID: id, Payload: map[string]string{"message": message}})
	if err == nil {
		h.deliver(c, out)
	}
}

func encodeWS(msg WSMessage) ([]byte, error) {
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return json.Marshal(msg)
}

// handleWebSocket upgrades the connection, queues a snapshot of the plug
// and joins the client to the hub.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	c := newWSClient(conn)
	snapshot, err := encodeWS(WSMessage{
		Type: WSTypeSnapshot,
		Payload: SnapshotPayload{
			DeviceID: s.gateway.Identity().DeviceID,
			Power:    s.gateway.Power(),
		},
	})
	if err == nil {
		c.send <- snapshot
	}

	s.hub.add(c)
	go s.wsWriteLoop(c)
	go s.wsReadLoop(c)
}

func (s *Server) wsTimings() (ping, pong time.Duration) {
	ping = time.Duration(s.wsCfg.PingInterval) * time.Second
	pong = time.Duration(s.wsCfg.PongTimeout) * time.Second
	if ping <= 0 {
		ping = defaultPingInterval
	}
	if pong <= 0 {
		pong = defaultPongTimeout
	}
	return ping, pong
}

func (s *Server) wsReadLoop(c *wsClient) {
	defer s.hub.remove(c)

	ping, pong := s.wsTimings()
	if s.wsCfg.MaxMessageSize > 0 {
		c.conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	}
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(ping + pong))
	}
	//nolint:errcheck // Best-effort deadline on connection setup
	extend()
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		// Browsers rarely answer protocol pings, so any frame counts.
		//nolint:errcheck // Best-effort deadline reset
		extend()
		s.hub.reply(c, data)
	}
}

func (s *Server) wsWriteLoop(c *wsClient) {
	ping, pong := s.wsTimings()
	ticker := time.NewTicker(ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			//nolint:errcheck // Best-effort close frame
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(time.Second))
			return
		case data := <-c.send:
			//nolint:errcheck // Write error is caught below
			c.conn.SetWriteDeadline(time.Now().Add(pong))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Write error is caught below
			c.conn.SetWriteDeadline(time.Now().Add(pong))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
