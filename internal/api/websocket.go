package api

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/module-manager/internal/infrastructure/config"
	"github.com/nerrad567/module-manager/internal/infrastructure/logging"
	"github.com/nerrad567/module-manager/internal/module"
)

// Frame types exchanged on the module event stream.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePing        = "ping"
	FramePong        = "pong"
	FrameAck         = "ack"
	FrameEvent       = "event"
	FrameError       = "error"

	// AllActions matches every module action.
	AllActions = "module.*"

	streamBufferSize = 256
)

// StreamFrame is one message on the module event stream, in either direction.
type StreamFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id,omitempty"`
	Action string          `json:"action,omitempty"`
	At     string          `json:"at,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Subscription selects which module events a client receives. An empty MACs
// list means every module.
type Subscription struct {
	Actions []string `json:"actions"`
	MACs    []string `json:"macs,omitempty"`
}

// moduleEventPayload is the data of an event frame.
type moduleEventPayload struct {
	Module  *module.Module `json:"module"`
	Actor   string         `json:"actor,omitempty"`
	Source  string         `json:"source"`
	Details map[string]any `json:"details,omitempty"`
}

// Hub fans committed module changes out to connected staff clients.
// It implements module.Observer.
type Hub struct {
	logger  *logging.Logger
	timings streamTimings

	mu      sync.RWMutex
	clients map[*streamClient]struct{}
}

// streamTimings holds the keepalive settings derived from configuration.
type streamTimings struct {
	readLimit int64
	ping      time.Duration
	writeWait time.Duration
	readWait  time.Duration
}

func newStreamTimings(cfg config.WebSocketConfig) streamTimings {
	ping := time.Duration(cfg.PingInterval) * time.Second
	pong := time.Duration(cfg.PongTimeout) * time.Second
	return streamTimings{
		readLimit: int64(cfg.MaxMessageSize),
		ping:      ping,
		writeWait: pong,
		readWait:  ping + pong,
	}
}

// streamClient is one WebSocket connection and its filter.
type streamClient struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	username string

	mu      sync.RWMutex
	actions map[string]struct{}
	macs    map[string]struct{}
}

// Origins are enforced by the CORS middleware and the session check.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// NewHub creates an empty hub.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	return &Hub{
		logger:  logger,
		timings: newStreamTimings(cfg),
		clients: make(map[*streamClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		if c.conn != nil {
			c.conn.Close()
		}
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *streamClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("Event Stream Client Connected",
		"description", "staff client joined the module event stream",
		"username", c.username, "clients", n)
}

// unregister is safe to call more than once; the send channel is closed by
// whichever call removes the client.
func (h *Hub) unregister(c *streamClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	if !present {
		return
	}
	close(c.send)
	h.logger.Debug("Event Stream Client Disconnected",
		"description", "staff client left the module event stream",
		"username", c.username, "clients", n)
}

// ModuleEvent implements module.Observer. It never blocks: a client whose
// buffer is full misses the event.
func (h *Hub) ModuleEvent(_ context.Context, e module.Event) {
	data, err := json.Marshal(moduleEventPayload{
		Module:  e.Module,
		Actor:   e.Actor,
		Source:  e.Source,
		Details: e.Details,
	})
	if err != nil {
		h.logger.Error("Event Stream Encode Error",
			"description", "could not encode module event", "action", e.Action, "error", err)
		return
	}
	frame, err := json.Marshal(StreamFrame{
		Type:   FrameEvent,
		Action: string(e.Action),
		At:     time.Now().UTC().Format(time.RFC3339Nano),
		Data:   data,
	})
	if err != nil {
		return
	}

	var mac string
	if e.Module != nil {
		mac = e.Module.MAC
	}

	h.mu.RLock()
	targets := make([]*streamClient, 0, len(h.clients))
	for c := range h.clients {
		if c.wants(string(e.Action), mac) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		c.trySend(frame)
	}
}

// handleWebSocket upgrades an authenticated request onto the event stream.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket Upgrade Failed",
			"description", "could not upgrade HTTP connection", "error", err)
		return
	}

	c := newStreamClient(s.hub, conn, actorFromContext(r.Context()))
	s.hub.register(c)

	go c.writeLoop()
	go c.readLoop()
}

func newStreamClient(hub *Hub, conn *websocket.Conn, username string) *streamClient {
	return &streamClient{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, streamBufferSize),
		username: username,
		actions:  make(map[string]struct{}),
		macs:     make(map[string]struct{}),
	}
}

func (c *streamClient) readLoop() {
	t := c.hub.timings
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(t.readLimit)
	c.conn.SetReadDeadline(time.Now().Add(t.readWait)) //nolint:errcheck // Reset on every read
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(t.readWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("Event Stream Read Error",
					"description", "connection closed unexpectedly",
					"username", c.username, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(t.readWait)) //nolint:errcheck // Reset on every read
		c.handleFrame(data)
	}
}

func (c *streamClient) writeLoop() {
	t := c.hub.timings
	ticker := time.NewTicker(t.ping)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		var (
			kind int
			data []byte
		)
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil) //nolint:errcheck // Connection is going away
				return
			}
			kind, data = websocket.TextMessage, frame
		case <-ticker.C:
			kind = websocket.PingMessage
		}

		c.conn.SetWriteDeadline(time.Now().Add(t.writeWait)) //nolint:errcheck // Write error caught below
		if err := c.conn.WriteMessage(kind, data); err != nil {
			return
		}
	}
}

func (c *streamClient) handleFrame(data []byte) {
	var in StreamFrame
	if err := json.Unmarshal(data, &in); err != nil {
		c.reply(StreamFrame{Type: FrameError}, map[string]string{"message": "invalid JSON frame"})
		return
	}

	switch in.Type {
	case FrameSubscribe, FrameUnsubscribe:
		var sub Subscription
		if len(in.Data) == 0 || json.Unmarshal(in.Data, &sub) != nil {
			c.reply(StreamFrame{Type: FrameError, ID: in.ID}, map[string]string{"message": "invalid " + in.Type + " data"})
			return
		}
		c.apply(in.Type == FrameSubscribe, sub)
		c.reply(StreamFrame{Type: FrameAck, ID: in.ID}, c.current())
	case FramePing:
		c.reply(StreamFrame{Type: FramePong, ID: in.ID}, nil)
	default:
		c.reply(StreamFrame{Type: FrameError, ID: in.ID}, map[string]string{"message": "unknown frame type: " + in.Type})
	}
}

// apply adds or removes the subscription's actions and MACs.
func (c *streamClient) apply(add bool, sub Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, a := range sub.Actions {
		if add {
			c.actions[a] = struct{}{}
		} else {
			delete(c.actions, a)
		}
	}
	for _, m := range sub.MACs {
		m = strings.ToUpper(m)
		if add {
			c.macs[m] = struct{}{}
		} else {
			delete(c.macs, m)
		}
	}
}

// current returns the client's filter.
func (c *streamClient) current() Subscription {
	c.mu.RLock()
	defer c.mu.RUnlock()
	sub := Subscription{Actions: make([]string, 0, len(c.actions))}
	for a := range c.actions {
		sub.Actions = append(sub.Actions, a)
	}
	for m := range c.macs {
		sub.MACs = append(sub.MACs, m)
	}
	return sub
}

// wants reports whether the filter admits an event for action on mac.
func (c *streamClient) wants(action, mac string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, exact := c.actions[action]
	_, all := c.actions[AllActions]
	if !exact && !(all && strings.HasPrefix(action, "module.")) {
		return false
	}
	if len(c.macs) == 0 {
		return true
	}
	_, ok := c.macs[strings.ToUpper(mac)]
	return ok
}

func (c *streamClient) reply(frame StreamFrame, data any) {
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return
		}
		frame.Data = raw
	}
	frame.At = time.Now().UTC().Format(time.RFC3339Nano)
	out, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.trySend(out)
}

// trySend queues data without blocking. Sends racing a disconnect are absorbed.
func (c *streamClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Send on a channel closed by unregister
	}()

	select {
	case c.send <- data:
	default:
	}
}
