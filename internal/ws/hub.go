// Package ws broadcasts sync lifecycle events to local UI clients over
// WebSocket. The terminal front-end subscribes here to show sync progress
// and conflict notifications without polling the stats endpoint.
package ws

import (
	"encoding/json"
	"net/http"
	"strings"
	gosync "sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/warungkita/possync/internal/logging"
	"github.com/warungkita/possync/internal/uuid"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Local UI only.
		return strings.HasPrefix(r.Host, "localhost") || strings.HasPrefix(r.Host, "127.0.0.1")
	},
}

// Envelope wraps every message sent to a client.
type Envelope struct {
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Timestamp int64                  `json:"timestamp"`
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub maintains the set of connected clients and fans events out to them.
// Publish satisfies the sync runner's event sink.
type Hub struct {
	clients    map[string]*client
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	done       chan struct{}
	closeOnce  gosync.Once
}

// NewHub creates a running Hub.
func NewHub() *Hub {
	h := &Hub{
		clients:    make(map[string]*client),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		done:       make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.clients[c.id] = c
			logging.Debug("WebSocket client connected", map[string]interface{}{
				"clientId": c.id,
				"total":    len(h.clients),
			})

		case c := <-h.unregister:
			if _, ok := h.clients[c.id]; ok {
				delete(h.clients, c.id)
				close(c.send)
			}

		case message := <-h.broadcast:
			for id, c := range h.clients {
				select {
				case c.send <- message:
				default:
					// Slow client, drop it.
					close(c.send)
					delete(h.clients, id)
				}
			}

		case <-h.done:
			for id, c := range h.clients {
				close(c.send)
				delete(h.clients, id)
			}
			return
		}
	}
}

// Publish broadcasts an event to every connected client. It never blocks the
// caller: when the hub's buffer is full the event is dropped.
func (h *Hub) Publish(event string, data map[string]interface{}) {
	envelope := Envelope{
		Type:      event,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}

	payload, err := json.Marshal(envelope)
	if err != nil {
		logging.Warn("Failed to encode event", map[string]interface{}{
			"event": event,
			"error": err.Error(),
		})
		return
	}

	select {
	case h.broadcast <- payload:
	case <-h.done:
	default:
		logging.Debug("Event dropped, broadcast buffer full", map[string]interface{}{
			"event": event,
		})
	}
}

// Close shuts down the hub and disconnects all clients.
func (h *Hub) Close() {
	h.closeOnce.Do(func() { close(h.done) })
}

// Handler returns the HTTP handler that upgrades connections into the hub.
func (h *Hub) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logging.Warn("WebSocket upgrade failed", map[string]interface{}{
				"error": err.Error(),
			})
			return
		}

		c := &client{
			id:   uuid.New(),
			conn: conn,
			send: make(chan []byte, 64),
			hub:  h,
		}
		select {
		case h.register <- c:
		case <-h.done:
			// Hub already shut down; nobody will service this connection.
			conn.Close()
			return
		}

		go c.writePump()
		go c.readPump()
	}
}

func (c *client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logging.Debug("WebSocket read error", map[string]interface{}{
					"clientId": c.id,
					"error":    err.Error(),
				})
			}
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
