package fakeserver

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/jnetto23/OmniStack-08/internal/models"
)

// Event is what the server pushes to a subscribed client.
type Event struct {
	Type string `json:"type"` // "match" | "info"
	Data any    `json:"data,omitempty"`
}

type wireProfile struct {
	ID     string `json:"_id"`
	Name   string `json:"name"`
	Bio    string `json:"bio"`
	Avatar string `json:"avatar"`
}

func toWire(p models.Profile) wireProfile {
	return wireProfile{ID: p.ID, Name: p.Name, Bio: p.Bio, Avatar: p.Avatar}
}

type client struct {
	userID string
	conn   *websocket.Conn
	send   chan Event
}

// Hub tracks open connections per user. A user may hold several.
type Hub struct {
	clientsByUser map[string]map[*client]bool
	mu            sync.RWMutex
	log           *slog.Logger
}

func NewHub(log *slog.Logger) *Hub {
	return &Hub{
		clientsByUser: make(map[string]map[*client]bool),
		log:           log,
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByUser[c.userID] == nil {
		h.clientsByUser[c.userID] = make(map[*client]bool)
	}
	h.clientsByUser[c.userID][c] = true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clientsByUser[c.userID]; ok {
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.clientsByUser, c.userID)
		}
	}
}

// SendToUser queues evt on every connection of userID. Slow clients lose it.
func (h *Hub) SendToUser(userID string, evt Event) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.clientsByUser[userID] {
		select {
		case c.send <- evt:
			n++
		default:
			h.log.Warn("dropping event, client buffer full", "user", userID, "type", evt.Type)
		}
	}
	return n
}

// Connected counts the open connections of userID.
func (h *Hub) Connected(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clientsByUser[userID])
}

// DisconnectUser closes every connection of userID. Clients see a dropped
// connection and are expected to resubscribe.
func (h *Hub) DisconnectUser(userID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clientsByUser[userID] {
		_ = c.conn.Close()
	}
}

// NotifyMatch tells both sides of a mutual like about the other.
func (h *Hub) NotifyMatch(a, b models.Profile) {
	h.SendToUser(a.ID, Event{Type: "match", Data: toWire(b)})
	h.SendToUser(b.ID, Event{Type: "match", Data: toWire(a)})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (h *Hub) serve(w http.ResponseWriter, r *http.Request, userID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "user", userID, "error", err)
		return
	}

	c := &client{userID: userID, conn: conn, send: make(chan Event, 16)}
	h.register(c)
	h.log.Debug("ws subscribed", "user", userID)

	c.send <- Event{Type: "info", Data: "connected"}

	go h.writer(c)
	h.reader(c)
}

func (h *Hub) reader(c *client) {
	defer func() {
		h.unregister(c)
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 16)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	// the channel is push-only; reads only drive pongs and close detection
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writer(c *client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
