package server

import (
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/netprobe/fleet/internal/bwarbiter"
)

const (
	wsWriteWait      = 10 * time.Second
	wsPongWait       = 60 * time.Second
	wsPingPeriod     = 30 * time.Second
	wsMaxMessageSize = 64 * 1024
)

// StatusMessage is the WebSocket frame pushed to connected operator
// clients whenever the bandwidth arbiter's status changes.
type StatusMessage struct {
	SchemaVersion  string    `json:"schema_version"`
	Type           string    `json:"type"`
	Timestamp      string    `json:"timestamp"`
	CurrentAgentID *string   `json:"current_agent_id,omitempty"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	QueuedAgentIDs []string  `json:"queued_agent_ids"`
}

// StatusHub maintains the set of connected operator WebSocket clients
// and broadcasts bwarbiter.Status snapshots to all of them.
type StatusHub struct {
	mu      sync.RWMutex
	clients map[*statusClient]bool

	broadcast  chan *StatusMessage
	register   chan *statusClient
	unregister chan *statusClient

	done chan struct{}
}

func NewStatusHub() *StatusHub {
	return &StatusHub{
		clients:    make(map[*statusClient]bool),
		broadcast:  make(chan *StatusMessage, 64),
		register:   make(chan *statusClient),
		unregister: make(chan *statusClient),
		done:       make(chan struct{}),
	}
}

// Run owns the hub's event loop until Stop is called.
func (h *StatusHub) Run() {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Printf("wsstatus: client %s connected", client.id)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- msg:
				default:
					log.Printf("wsstatus: client %s send buffer full, dropping", client.id)
				}
			}
			h.mu.RUnlock()

		case <-ticker.C:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- &StatusMessage{SchemaVersion: "1.0", Type: "ping", Timestamp: nowRFC3339()}:
				default:
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.send)
			}
			h.mu.Unlock()
			return
		}
	}
}

func (h *StatusHub) Stop() {
	close(h.done)
}

// Broadcast pushes a fresh arbiter status snapshot to every connected client.
func (h *StatusHub) Broadcast(status bwarbiter.Status) {
	msg := &StatusMessage{
		SchemaVersion:  "1.0",
		Type:           "bandwidth_status",
		Timestamp:      nowRFC3339(),
		CurrentAgentID: status.CurrentAgentID,
		ElapsedSeconds: status.ElapsedSeconds,
		QueuedAgentIDs: status.QueuedAgentIDs,
	}
	select {
	case h.broadcast <- msg:
	default:
		log.Printf("wsstatus: broadcast buffer full, dropping status update")
	}
}

func (h *StatusHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

type statusClient struct {
	id   string
	hub  *StatusHub
	conn *websocket.Conn
	send chan *StatusMessage
}

func (c *statusClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(wsMaxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("wsstatus: client %s unexpected close: %v", c.id, err)
			}
			return
		}
		// Clients are read-only subscribers; any inbound frame besides
		// control pongs is simply discarded.
	}
}

func (c *statusClient) writePump() {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

var statusUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// handleStatusWebSocket upgrades the connection and registers a
// read-only subscriber on s.statusHub. The upgrade request is
// authenticated by its api_key query parameter, which must be one of
// the configured API keys; no agent id is checked.
func (s *Server) handleStatusWebSocket(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("api_key")
	if !s.validAPIKeys[key] {
		http.Error(w, "invalid api key", http.StatusUnauthorized)
		return
	}

	conn, err := statusUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsstatus: upgrade failed: %v", err)
		return
	}

	client := &statusClient{id: uuid.New().String(), hub: s.statusHub, conn: conn, send: make(chan *StatusMessage, 16)}
	s.statusHub.register <- client

	go client.writePump()
	go client.readPump()

	s.statusHub.Broadcast(s.arbiter.GetStatus())
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
