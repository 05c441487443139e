package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"agentflow/internal/game"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Message is the envelope for everything written to a socket.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
	Sender  string `json:"sender"`
}

type Client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn
	send   chan []byte
}

type direct struct {
	userID  string
	payload []byte
}

// Hub owns every socket's send channel. Only Run closes them.
type Hub struct {
	log        *slog.Logger
	clients    map[*Client]bool
	broadcast  chan []byte
	direct     chan direct
	register   chan *Client
	unregister chan *Client
	count      atomic.Int64
	done       chan struct{}
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		log:        logger,
		clients:    map[*Client]bool{},
		broadcast:  make(chan []byte, 16),
		direct:     make(chan direct, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Len() int { return int(h.count.Load()) }

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			for c := range h.clients {
				close(c.send)
				delete(h.clients, c)
			}
			h.count.Store(0)
			return
		case c := <-h.register:
			h.clients[c] = true
			h.count.Store(int64(len(h.clients)))
		case c := <-h.unregister:
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.count.Store(int64(len(h.clients)))
		case msg := <-h.broadcast:
			for c := range h.clients {
				h.deliver(c, msg)
			}
		case d := <-h.direct:
			for c := range h.clients {
				if c.userID == d.userID {
					h.deliver(c, d.payload)
				}
			}
		}
	}
}

// deliver drops a client whose buffer is full.
func (h *Hub) deliver(c *Client, msg []byte) {
	select {
	case c.send <- msg:
	default:
		close(c.send)
		delete(h.clients, c)
		h.count.Store(int64(len(h.clients)))
	}
}

// Broadcast sends a server notice to every connected socket.
func (h *Hub) Broadcast(kind string, payload any) {
	raw, err := json.Marshal(Message{Type: kind, Payload: payload, Sender: "server"})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- raw:
	case <-h.done:
	}
}

func (h *Hub) sendTo(userID string, ev game.Event) bool {
	raw, err := json.Marshal(Message{Type: string(ev.Kind), Payload: ev, Sender: "engine"})
	if err != nil {
		return false
	}
	select {
	case h.direct <- direct{userID: userID, payload: raw}:
		return true
	case <-h.done:
		return false
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	ident, err := identityFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	sess, err := s.sessionFor(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "err", err)
		return
	}

	events, cancel := sess.Subscribe()
	client := &Client{hub: s.hub, userID: ident.UserID, conn: conn, send: make(chan []byte, 64)}
	select {
	case s.hub.register <- client:
	case <-s.hub.done:
		cancel()
		conn.Close()
		return
	}

	go client.writePump()
	go func() {
		for ev := range events {
			if !s.hub.sendTo(client.userID, ev) {
				return
			}
		}
		// The session was reaped or shut down. Dropping the client closes its
		// send channel, so writePump says goodbye and readPump stops touching
		// a dead session.
		select {
		case s.hub.unregister <- client:
		case <-s.hub.done:
		}
	}()
	client.readPump(sess.Touch)
	cancel()
}

// readPump only watches for close and keeps the session alive on pongs.
func (c *Client) readPump(touch func()) {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket closed", "user_id", c.userID, "err", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
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
