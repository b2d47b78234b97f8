package websocket

import (
	"encoding/json"
	"sync"

	"github.com/google/uuid"

	"github.com/swiftride/dispatch/pkg/logger"
)

// Hub tracks connected driver and rider sessions. Drivers are indexed by
// driver ID so the dispatch loop can push an offer to exactly one session.
type Hub struct {
	clients    map[*Client]bool
	drivers    map[uuid.UUID]*Client
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	logger     *logger.Logger
}

// Message is the envelope for every frame the hub sends.
type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub(logger *logger.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		drivers:    make(map[uuid.UUID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			if client.Role == RoleDriver {
				// a reconnect replaces the stale session
				if old, ok := h.drivers[client.UserID]; ok && old != client {
					delete(h.clients, old)
					close(old.Send)
				}
				h.drivers[client.UserID] = client
			}
			h.mu.Unlock()
			h.logger.Info("Client registered",
				logger.String("client_id", client.ID),
				logger.String("role", client.Role),
			)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				if client.Role == RoleDriver && h.drivers[client.UserID] == client {
					delete(h.drivers, client.UserID)
				}
				close(client.Send)
				h.logger.Info("Client unregistered",
					logger.String("client_id", client.ID),
				)
			}
			h.mu.Unlock()
		}
	}
}

// Register registers a new client
func (h *Hub) Register(client *Client) {
	h.register <- client
}

// Unregister unregisters a client
func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// SendToDriver delivers a message to a driver's live session. It reports
// false when the driver has no session or its buffer is full, so the
// caller can move on to the next candidate.
func (h *Hub) SendToDriver(driverID uuid.UUID, message Message) bool {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal message", logger.Err(err))
		return false
	}

	h.mu.RLock()
	client, ok := h.drivers[driverID]
	h.mu.RUnlock()
	if !ok {
		return false
	}

	select {
	case client.Send <- data:
		return true
	default:
		h.logger.Warn("Driver send buffer full",
			logger.String("driver_id", driverID.String()),
		)
		return false
	}
}

// SendToUser delivers a message to every session of a user, any role.
func (h *Hub) SendToUser(userID uuid.UUID, message Message) {
	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("Failed to marshal message", logger.Err(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		if client.UserID != userID {
			continue
		}
		select {
		case client.Send <- data:
		default:
			h.logger.Warn("Client send buffer full",
				logger.String("client_id", client.ID),
			)
		}
	}
}

// GetActiveConnections returns the number of active connections
func (h *Hub) GetActiveConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ConnectedDrivers returns the number of live driver sessions.
func (h *Hub) ConnectedDrivers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.drivers)
}
