package bus

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// OutboundMessage is the wire form of an event delivered to a client.
type OutboundMessage struct {
	Event     string          `json:"event"`
	Room      string          `json:"room"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Command is a client-to-server message. No response is expected.
type Command struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Client is one websocket connection. A client belongs to its user's personal
// room from the moment it authenticates, plus any rooms it joins explicitly.
type Client struct {
	ID     string               `json:"id"`
	UserID string               `json:"userId"`
	Name   string               `json:"name"`
	Conn   *websocket.Conn      `json:"-"`
	Send   chan OutboundMessage `json:"-"`

	// State
	LastPing time.Time `json:"lastPing"`

	rooms map[string]bool

	// Synchronization
	mu        sync.RWMutex
	closeOnce sync.Once
	closed    atomic.Bool
	logger    *zap.Logger

	// Callbacks
	OnCommand    func(*Client, Command)
	OnDisconnect func(*Client)
}

type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	deliver    chan OutboundMessage
	mu         sync.RWMutex
	logger     *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		deliver:    make(chan OutboundMessage, 256),
		logger:     logger,
	}
}

func (h *Hub) Run() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()

			h.logger.Info("Client registered",
				zap.String("client_id", client.ID),
				zap.String("user_id", client.UserID),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				client.closeSend()
			}
			h.mu.Unlock()

			h.logger.Info("Client unregistered",
				zap.String("client_id", client.ID),
				zap.String("user_id", client.UserID),
			)

		case message := <-h.deliver:
			for _, client := range h.GetClientsByRoom(message.Room) {
				client.SendMessage(message)
			}

		case <-ticker.C:
			h.pingClients()
		}
	}
}

func (h *Hub) pingClients() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.mu.Lock()
		client.LastPing = time.Now()
		client.mu.Unlock()
	}
}

func (h *Hub) RegisterClient(client *Client) {
	h.register <- client
}

func (h *Hub) UnregisterClient(client *Client) {
	h.unregister <- client
}

// Deliver routes a message to every local client in the message's room.
func (h *Hub) Deliver(message OutboundMessage) {
	select {
	case h.deliver <- message:
	default:
		h.logger.Warn("Hub deliver channel full, dropping message",
			zap.String("room", message.Room),
			zap.String("event", message.Event),
		)
	}
}

func (h *Hub) GetClient(clientID string) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	client, exists := h.clients[clientID]
	return client, exists
}

func (h *Hub) GetClientsByRoom(room string) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := make([]*Client, 0)
	for _, client := range h.clients {
		if client.InRoom(room) {
			clients = append(clients, client)
		}
	}
	return clients
}

// HasClientForUser reports whether a client other than excludeClientID is
// registered for userID. Used to tell a final disconnect apart from the
// stale half of a page refresh.
func (h *Hub) HasClientForUser(userID, excludeClientID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, c := range h.clients {
		if c.UserID == userID && c.ID != excludeClientID {
			return true
		}
	}
	return false
}

// DisconnectClientsByUserID closes and unregisters all existing clients for a
// given userID, except the one with excludeClientID. This handles the
// page-refresh scenario where a new connection arrives before the old one is
// cleaned up.
func (h *Hub) DisconnectClientsByUserID(userID, excludeClientID string) {
	h.mu.RLock()
	var stale []*Client
	for _, c := range h.clients {
		if c.UserID == userID && c.ID != excludeClientID {
			stale = append(stale, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stale {
		c.Conn.Close()
		h.unregister <- c
	}
}

func NewClient(id, userID, name string, conn *websocket.Conn, logger *zap.Logger) *Client {
	return &Client{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Conn:     conn,
		Send:     make(chan OutboundMessage, 256),
		LastPing: time.Now(),
		rooms:    map[string]bool{PersonalRoom(userID): true},
		logger:   logger,
	}
}

// JoinRoom subscribes the client to a room.
func (c *Client) JoinRoom(room string) {
	c.mu.Lock()
	c.rooms[room] = true
	c.mu.Unlock()
}

// LeaveRoom unsubscribes the client from a room. Leaving the personal room is
// not supported.
func (c *Client) LeaveRoom(room string) {
	if room == PersonalRoom(c.UserID) {
		return
	}
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

func (c *Client) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rooms[room]
}

// Rooms returns a snapshot of the client's room subscriptions.
func (c *Client) Rooms() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	rooms := make([]string, 0, len(c.rooms))
	for room := range c.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (c *Client) closeSend() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.Send)
	})
}

func (c *Client) ReadPump(readLimit int64, pongTimeout time.Duration) {
	defer func() {
		if c.OnDisconnect != nil {
			c.OnDisconnect(c)
		}
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(readLimit)
	c.Conn.SetReadDeadline(time.Now().Add(pongTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		var command Command
		err := c.Conn.ReadJSON(&command)
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket error",
					zap.String("client_id", c.ID),
					zap.Error(err),
				)
			}
			break
		}

		if c.OnCommand != nil {
			c.OnCommand(c, command)
		}
	}
}

func (c *Client) WritePump(pingInterval, writeTimeout time.Duration) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteJSON(message); err != nil {
				c.logger.Error("Failed to write message",
					zap.String("client_id", c.ID),
					zap.Error(err),
				)
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) SendMessage(message OutboundMessage) {
	if c.closed.Load() {
		return
	}
	select {
	case c.Send <- message:
	default:
		c.logger.Warn("Client send channel full, dropping message",
			zap.String("client_id", c.ID),
		)
	}
}
