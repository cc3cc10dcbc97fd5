// Package websocket pushes session snapshots to connected players and accepts
// their input over the same connection.
package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"ambient-novel/internal/metrics"
	"ambient-novel/internal/session"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 512
	sendBuffer     = 32
)

// Типы сообщений
const (
	MessageSnapshot = "snapshot"
	MessageError    = "error"
)

// Message is one frame sent to a client.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	target  uuid.UUID
}

// Command is one frame received from a client.
type Command struct {
	Action    string `json:"action"` // advance, choose, restart, mute, narration
	NextScene string `json:"nextScene,omitempty"`
	Value     *bool  `json:"value,omitempty"`
}

// Hub owns every websocket connection. Only its run loop writes to or closes
// a client's send channel.
type Hub struct {
	clients    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	outbound   chan Message
	done       chan struct{}
	stopOnce   sync.Once
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// Client is one connection bound to one session.
type Client struct {
	ID      uuid.UUID
	Conn    *websocket.Conn
	Session *session.Session
	hub     *Hub
	send    chan []byte
	unsub   func()
}

// NewHub creates a hub. allowedOrigins empty accepts any origin.
func NewHub(allowedOrigins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		outbound:   make(chan Message, 64),
		done:       make(chan struct{}),
		logger:     logger.Named("WebsocketHub"),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// Start запускает цикл хаба в отдельной горутине
func (h *Hub) Start() {
	go h.run()
}

// Stop disconnects every client. The hub cannot be restarted.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.done) })
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c.ID] = c
			h.mu.Unlock()
			metrics.WebsocketConnections.Inc()
			h.logger.Info("Client connected", zap.Stringer("clientID", c.ID), zap.String("sessionID", c.Session.ID()))

		case c := <-h.unregister:
			h.drop(c)

		case msg := <-h.outbound:
			data, err := json.Marshal(msg)
			if err != nil {
				h.logger.Error("Failed to marshal message", zap.Error(err))
				continue
			}
			h.mu.RLock()
			c, ok := h.clients[msg.target]
			h.mu.RUnlock()
			if !ok {
				continue
			}
			select {
			case c.send <- data:
			default:
				h.logger.Warn("Client too slow, disconnecting", zap.Stringer("clientID", c.ID))
				h.drop(c)
			}

		case <-h.done:
			h.mu.Lock()
			for id, c := range h.clients {
				c.unsub()
				close(c.send)
				delete(h.clients, id)
				metrics.WebsocketConnections.Dec()
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *Hub) drop(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.ID]; !ok {
		return
	}
	c.unsub()
	close(c.send)
	delete(h.clients, c.ID)
	metrics.WebsocketConnections.Dec()
	h.logger.Info("Client disconnected", zap.Stringer("clientID", c.ID))
}

// Count is the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) enqueue(msg Message) {
	select {
	case h.outbound <- msg:
	case <-h.done:
	}
}

// Serve upgrades the request and binds the connection to s. The current
// snapshot is sent immediately; later ones follow every change of s.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, s *session.Session) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Websocket upgrade failed", zap.Error(err))
		return
	}

	c := &Client{
		ID:      uuid.New(),
		Conn:    conn,
		Session: s,
		hub:     h,
		send:    make(chan []byte, sendBuffer),
	}
	c.unsub = s.Subscribe(func(snap session.Snapshot) {
		h.enqueue(Message{Type: MessageSnapshot, Payload: snap, target: c.ID})
	})

	select {
	case h.register <- c:
	case <-h.done:
		c.unsub()
		_ = conn.Close()
		return
	}

	go c.writePump()
	go c.readPump()

	if snap, err := s.Snapshot(r.Context()); err == nil {
		h.enqueue(Message{Type: MessageSnapshot, Payload: snap, target: c.ID})
	}
}

// readPump применяет команды клиента к сессии
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		_ = c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.Warn("Websocket read error", zap.Stringer("clientID", c.ID), zap.Error(err))
			}
			return
		}
		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			c.replyError("malformed command")
			continue
		}
		if err := c.apply(cmd); err != nil {
			c.replyError(err.Error())
		}
	}
}

func (c *Client) apply(cmd Command) error {
	ctx, cancel := context.WithTimeout(context.Background(), writeWait)
	defer cancel()

	var err error
	switch cmd.Action {
	case "advance":
		_, err = c.Session.Advance(ctx)
	case "choose":
		_, err = c.Session.Choose(ctx, cmd.NextScene)
	case "restart":
		_, err = c.Session.Restart(ctx)
	case "mute":
		_, err = c.Session.SetMuted(ctx, cmd.Value == nil || *cmd.Value)
	case "narration":
		_, err = c.Session.SetNarration(ctx, cmd.Value == nil || *cmd.Value)
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
	return err
}

// ErrorPayload is the payload of a MessageError frame.
type ErrorPayload struct {
	Message string `json:"message"`
}

func (c *Client) replyError(msg string) {
	c.hub.enqueue(Message{Type: MessageError, Payload: ErrorPayload{Message: msg}, target: c.ID})
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
