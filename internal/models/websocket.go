package models

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub maintains the set of active clients and routes events to rooms.
// A room is either "user:<id>" or "lease:<id>".
type Hub struct {
	// Registered clients.
	Clients map[*Client]bool

	// Register requests from the clients.
	Register chan *Client

	// Unregister requests from clients.
	Unregister chan *Client

	// Room membership
	Rooms map[string]map[*Client]bool

	mu   sync.RWMutex
	stop chan struct{}
}

// Client represents a WebSocket connection
type Client struct {
	Hub *Hub

	// The websocket connection.
	Conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	// Identity: UserID for owners, LeaseID alone for tenant sessions.
	UserID string
	Rooms  []string
}

// Event is the envelope pushed to clients.
type Event struct {
	Type    string      `json:"type"`
	Room    string      `json:"room,omitempty"`
	Payload interface{} `json:"payload"`
}

// inbound is what clients may send.
type inbound struct {
	Type    string `json:"type"`
	LeaseID string `json:"lease_id"`
}

func UserRoom(userID string) string   { return "user:" + userID }
func LeaseRoom(leaseID string) string { return "lease:" + leaseID }

// NewHub creates a new Hub instance
func NewHub() *Hub {
	return &Hub{
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Clients:    make(map[*Client]bool),
		Rooms:      make(map[string]map[*Client]bool),
		stop:       make(chan struct{}),
	}
}

// Run starts the hub's registration loop. It returns after Stop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.Clients[client] = true
			for _, room := range client.Rooms {
				if _, exists := h.Rooms[room]; !exists {
					h.Rooms[room] = make(map[*Client]bool)
				}
				h.Rooms[room][client] = true
			}
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case <-h.stop:
			h.mu.Lock()
			for client := range h.Clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return
		}
	}
}

// Stop ends Run and closes every client.
func (h *Hub) Stop() {
	close(h.stop)
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	if _, ok := h.Clients[client]; !ok {
		return
	}
	delete(h.Clients, client)
	for _, room := range client.Rooms {
		if members, exists := h.Rooms[room]; exists {
			delete(members, client)
			if len(members) == 0 {
				delete(h.Rooms, room)
			}
		}
	}
	close(client.Send)
}

// Publish sends event to every client in room and reports whether at least
// one client received it. Slow clients are skipped.
func (h *Hub) Publish(room string, event Event) bool {
	event.Room = room
	message, err := json.Marshal(event)
	if err != nil {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := false
	for client := range h.Rooms[room] {
		select {
		case client.Send <- message:
			delivered = true
		default:
			// Message could not be sent to this client
		}
	}
	return delivered
}

// SendToUser pushes event to all connections of a user.
func (h *Hub) SendToUser(userID string, event Event) bool {
	return h.Publish(UserRoom(userID), event)
}

// BroadcastToLease pushes event to the owner and tenant connections of a lease.
func (h *Hub) BroadcastToLease(leaseID string, event Event) bool {
	return h.Publish(LeaseRoom(leaseID), event)
}

// IsConnected checks if a room has any active connections
func (h *Hub) IsConnected(room string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Rooms[room]) > 0
}

func (c *Client) inRoom(room string) bool {
	for _, r := range c.Rooms {
		if r == room {
			return true
		}
	}
	return false
}

// ReadPump pumps messages from the WebSocket connection to the hub.
// Clients may only send typing indicators to lease rooms they belong to.
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(maxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			break
		}

		var msg inbound
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type != "typing" || msg.LeaseID == "" {
			continue
		}
		room := LeaseRoom(msg.LeaseID)
		if !c.inRoom(room) {
			continue
		}
		c.Hub.Publish(room, Event{Type: "typing", Payload: map[string]string{"user_id": c.UserID}})
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed
	maxMessageSize = 512
)
