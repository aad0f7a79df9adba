package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"flightrec/pkg/appstate"
	"flightrec/pkg/dialog"
	"flightrec/pkg/notify"
	"flightrec/pkg/replay"
	"flightrec/pkg/throttle"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	sendBuffer   = 256
)

// Notifier is the set of application notifications forwarded to clients.
type Notifier interface {
	OnStateChanged(fn func(appstate.StateChange)) (unsubscribe func())
	OnRecordsUpdated(fn func(count int)) (unsubscribe func())
	OnFrameChanged(fn func(frame int)) (unsubscribe func())
	OnReplayFinished(fn func(replay.FinishReason)) (unsubscribe func())
}

// MessageSource publishes user-facing dialog messages.
type MessageSource interface {
	OnMessage(fn func(dialog.Message)) (unsubscribe func())
}

// Message types sent over the stream.
const (
	TypeState    = "state"
	TypeRecords  = "records"
	TypeFrame    = "frame"
	TypeFinished = "finished"
	TypeMessage  = "message"
)

// Envelope wraps every message sent to a client.
type Envelope struct {
	Type string `json:"type"`
	Ts   int64  `json:"ts"`
	Data any    `json:"data"`
}

type stateChangeEvent struct {
	From     appstate.State `json:"from"`
	To       appstate.State `json:"to"`
	Event    appstate.Event `json:"event"`
	Reverted bool           `json:"reverted"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// StreamHandler pushes application notifications to WebSocket clients.
type StreamHandler struct {
	upgrader websocket.Upgrader
	logger   *slog.Logger

	register   chan *client
	unregister chan *client
	broadcast  chan []byte
	done       chan struct{}

	mu      sync.RWMutex
	clients map[string]*client

	frames  *throttle.Throttle
	records *throttle.Throttle
	subs    notify.Subscriptions
}

// NewStreamHandler subscribes to n and msgs. Frame and record count updates
// are forwarded at most once per interval. msgs may be nil.
func NewStreamHandler(n Notifier, msgs MessageSource, interval time.Duration) *StreamHandler {
	h := &StreamHandler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Local tool, any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:     slog.With("component", "stream"),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan []byte, sendBuffer),
		done:       make(chan struct{}),
		clients:    make(map[string]*client),
		frames:     throttle.New(interval),
		records:    throttle.New(interval),
	}

	h.subs.Add(n.OnStateChanged(func(c appstate.StateChange) {
		h.frames.Reset()
		h.records.Reset()
		h.Publish(TypeState, stateChangeEvent{From: c.From, To: c.To, Event: c.Event, Reverted: c.Reverted})
	}))
	h.subs.Add(n.OnRecordsUpdated(func(count int) {
		if h.records.Allow(time.Now()) {
			h.Publish(TypeRecords, count)
		}
	}))
	h.subs.Add(n.OnFrameChanged(func(frame int) {
		if h.frames.Allow(time.Now()) {
			h.Publish(TypeFrame, frame)
		}
	}))
	h.subs.Add(n.OnReplayFinished(func(r replay.FinishReason) {
		h.Publish(TypeFinished, r)
	}))
	if msgs != nil {
		h.subs.Add(msgs.OnMessage(func(m dialog.Message) {
			h.Publish(TypeMessage, m)
		}))
	}
	return h
}

// Run dispatches registrations and broadcasts until ctx is done. It must be
// called once.
func (h *StreamHandler) Run(ctx context.Context) {
	defer func() {
		close(h.done)
		h.closeAll()
	}()
	for {
		select {
		case <-ctx.Done():
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.id] = c
			h.mu.Unlock()
			h.logger.Debug("Client connected", "id", c.id)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}
			h.mu.Unlock()
			h.logger.Debug("Client disconnected", "id", c.id)

		case data := <-h.broadcast:
			h.mu.Lock()
			for id, c := range h.clients {
				select {
				case c.send <- data:
				default:
					h.logger.Warn("Client buffer full, closing", "id", id)
					delete(h.clients, id)
					close(c.send)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Close releases the notification subscriptions.
func (h *StreamHandler) Close() {
	h.subs.Close()
}

// ClientCount returns the number of connected clients.
func (h *StreamHandler) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish queues a message for every client. It never blocks; messages are
// dropped while the broadcast queue is full.
func (h *StreamHandler) Publish(typ string, data any) {
	b, err := json.Marshal(Envelope{Type: typ, Ts: time.Now().UnixMilli(), Data: data})
	if err != nil {
		h.logger.Error("Failed to encode stream message", "type", typ, "error", err)
		return
	}
	select {
	case h.broadcast <- b:
	default:
		h.logger.Warn("Stream queue full, dropping message", "type", typ)
	}
}

// HandleWebSocket upgrades the request and serves the client until it
// disconnects.
func (h *StreamHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade WebSocket", "error", err)
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: ws,
		send: make(chan []byte, sendBuffer),
	}
	select {
	case h.register <- c:
	case <-h.done:
		ws.Close()
		return
	}

	go h.writePump(c)
	go h.readPump(c)
}

func (h *StreamHandler) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}

// readPump discards client messages and keeps the read deadline fresh.
func (h *StreamHandler) readPump(c *client) {
	defer func() {
		select {
		case h.unregister <- c:
		case <-h.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("WebSocket error", "id", c.id, "error", err)
			}
			return
		}
	}
}

func (h *StreamHandler) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("Failed to write message", "id", c.id, "error", err)
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
