package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"whatsapp-connector/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Event is the envelope pushed to subscribed frontends on each connection
// lifecycle transition
type Event struct {
	Event     string      `json:"event"`
	AdminID   string      `json:"admin_id"`
	Data      interface{} `json:"data,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
}

// Manager fans lifecycle events out to the WebSocket connections of each
// administrator's frontend sessions
type Manager struct {
	clients    map[string]*Client
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *logger.Logger
}

// Client is one connected frontend
type Client struct {
	ID      string
	AdminID string
	Conn    *websocket.Conn
	Send    chan []byte
	manager *Manager
}

// NewManager creates a new WebSocket manager
func NewManager(log *logger.Logger) *Manager {
	return &Manager{
		clients:    make(map[string]*Client),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     log,
	}
}

// Run drives the register/unregister/broadcast loop until the context ends
func (m *Manager) Run(ctx context.Context) {
	m.logger.Info("WebSocket manager started")

	for {
		select {
		case <-ctx.Done():
			m.shutdown()
			return

		case client := <-m.register:
			m.registerClient(client)

		case client := <-m.unregister:
			m.unregisterClient(client)

		case event := <-m.broadcast:
			m.broadcastToAdmin(event)
		}
	}
}

// Publish queues a lifecycle event for the admin's connected frontends.
// Never blocks the caller; a full queue drops the event.
func (m *Manager) Publish(adminID, event string, data interface{}) {
	evt := &Event{
		Event:     event,
		AdminID:   adminID,
		Data:      data,
		Timestamp: time.Now(),
	}
	select {
	case m.broadcast <- evt:
	default:
		m.logger.Warn("Event queue full, dropping %s for admin %s", event, adminID)
	}
}

// NewClient wraps an upgraded connection for one administrator
func (m *Manager) NewClient(conn *websocket.Conn, adminID string) *Client {
	return &Client{
		ID:      uuid.New().String(),
		AdminID: adminID,
		Conn:    conn,
		Send:    make(chan []byte, 64),
		manager: m,
	}
}

// RegisterClient hands the client to the manager loop
func (m *Manager) RegisterClient(client *Client) {
	m.register <- client
}

// UnregisterClient removes the client from the manager loop
func (m *Manager) UnregisterClient(client *Client) {
	m.unregister <- client
}

// ClientCount returns the number of connected frontends
func (m *Manager) ClientCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients)
}

func (m *Manager) registerClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.clients[client.ID] = client
	m.logger.Info("WebSocket client registered: %s (admin %s)", client.ID, client.AdminID)
}

func (m *Manager) unregisterClient(client *Client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.clients[client.ID]; ok {
		delete(m.clients, client.ID)
		close(client.Send)
		m.logger.Info("WebSocket client unregistered: %s (admin %s)", client.ID, client.AdminID)
	}
}

func (m *Manager) broadcastToAdmin(event *Event) {
	message, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("Failed to encode event: %v", err)
		return
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, client := range m.clients {
		if client.AdminID != event.AdminID {
			continue
		}
		select {
		case client.Send <- message:
		default:
			m.logger.Warn("Send channel full for client %s, skipping", client.ID)
		}
	}
}

func (m *Manager) shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, client := range m.clients {
		close(client.Send)
		if client.Conn != nil {
			_ = client.Conn.Close()
		}
	}
	m.clients = make(map[string]*Client)

	m.logger.Info("WebSocket manager shut down")
}

// WritePump flushes queued events to the wire, keeping the connection alive
// with pings. Runs as one goroutine per client.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
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

// ReadPump drains inbound frames so control messages are processed, and
// unregisters the client when the connection drops
func (c *Client) ReadPump() {
	defer func() {
		c.manager.UnregisterClient(c)
		_ = c.Conn.Close()
	}()

	_ = c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			return
		}
	}
}
