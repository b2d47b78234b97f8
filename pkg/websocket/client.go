package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/swiftride/dispatch/pkg/logger"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

const (
	RoleDriver = "driver"
	RoleRider  = "rider"
)

// InboundHandler receives messages a session sends up: a driver's answer
// to an offer and periodic location reports.
type InboundHandler interface {
	OfferResponse(tripID, driverID uuid.UUID, accepted bool)
	LocationUpdate(driverID uuid.UUID, lat, lng float64)
}

// Client represents a WebSocket session for one driver or rider.
type Client struct {
	ID      string
	UserID  uuid.UUID
	Role    string
	Hub     *Hub
	Conn    *websocket.Conn
	Send    chan []byte
	handler InboundHandler
	logger  *logger.Logger
}

// ClientMessage represents a message from the client
type ClientMessage struct {
	Type      string  `json:"type"`
	TripID    string  `json:"trip_id,omitempty"`
	Accepted  bool    `json:"accepted,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// NewClient creates a new WebSocket client
func NewClient(hub *Hub, conn *websocket.Conn, userID uuid.UUID, role string, handler InboundHandler, logger *logger.Logger) *Client {
	return &Client{
		ID:      uuid.NewString(),
		UserID:  userID,
		Role:    role,
		Hub:     hub,
		Conn:    conn,
		Send:    make(chan []byte, 256),
		handler: handler,
		logger:  logger,
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *Client) ReadPump() {
	defer func() {
		c.Hub.Unregister(c)
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
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Error("WebSocket read error",
					logger.Err(err),
					logger.String("client_id", c.ID),
				)
			}
			break
		}

		c.handleMessage(message)
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

			// Add queued messages to the current websocket message
			n := len(c.Send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.Send)
			}

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

// handleMessage processes incoming messages from the client
func (c *Client) handleMessage(message []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.logger.Error("Failed to unmarshal client message",
			logger.Err(err),
			logger.String("client_id", c.ID),
		)
		return
	}

	switch msg.Type {
	case "offer_response":
		if c.Role != RoleDriver || c.handler == nil {
			return
		}
		tripID, err := uuid.Parse(msg.TripID)
		if err != nil {
			c.logger.Warn("Invalid trip_id in offer response",
				logger.String("client_id", c.ID),
			)
			return
		}
		c.handler.OfferResponse(tripID, c.UserID, msg.Accepted)
	case "location_update":
		if c.Role != RoleDriver || c.handler == nil {
			return
		}
		c.handler.LocationUpdate(c.UserID, msg.Latitude, msg.Longitude)
	case "ping":
		c.SendMessage(Message{Type: "pong"})
	default:
		c.logger.Warn("Unknown message type",
			logger.String("type", msg.Type),
			logger.String("client_id", c.ID),
		)
	}
}

// SendMessage sends a message to the client
func (c *Client) SendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message",
			logger.Err(err),
			logger.String("client_id", c.ID),
		)
		return
	}

	select {
	case c.Send <- data:
	default:
		c.logger.Warn("Client send buffer full",
			logger.String("client_id", c.ID),
		)
	}
}
