package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"github.com/swiftride/dispatch/pkg/logger"
	"github.com/swiftride/dispatch/pkg/websocket"
)

// HandleWebSocket handles GET /v1/ws
func (h *Handlers) HandleWebSocket(c *gin.Context) {
	upgrader := gorilla.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true // Allow all origins in development
		},
	}

	userID, err := uuid.Parse(c.Query("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id query parameter must be a UUID"})
		return
	}
	role := c.Query("role")
	if role != websocket.RoleDriver && role != websocket.RoleRider {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role must be driver or rider"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.Logger.Error("Failed to upgrade to WebSocket", logger.Err(err))
		return
	}

	client := websocket.NewClient(h.Hub, conn, userID, role, h.WSHandler, h.Logger)
	h.Hub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}
