package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	gorilla "github.com/gorilla/websocket"

	"whatsapp-connector/internal/config"
	"whatsapp-connector/internal/middleware"
	"whatsapp-connector/internal/websocket"
	"whatsapp-connector/pkg/logger"
	"whatsapp-connector/pkg/response"
)

// WebSocketHandler upgrades authenticated requests to event-stream
// connections
type WebSocketHandler struct {
	manager  *websocket.Manager
	upgrader gorilla.Upgrader
	logger   *logger.Logger
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(manager *websocket.Manager, cfg *config.Config, log *logger.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
		upgrader: gorilla.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				for _, allowed := range cfg.CORS.AllowedOrigins {
					if allowed == "*" || allowed == origin {
						return true
					}
				}
				return false
			},
		},
		logger: log,
	}
}

// Stream subscribes the calling admin's frontend to lifecycle events
// GET /whatsapp/events
func (h *WebSocketHandler) Stream(c *gin.Context) {
	adminID, err := middleware.GetAdminID(c)
	if err != nil {
		response.Unauthorized(c, "Administrator identity required")
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("WebSocket upgrade failed for admin %s: %v", adminID, err)
		return
	}

	client := h.manager.NewClient(conn, adminID)
	h.manager.RegisterClient(client)

	go client.WritePump()
	go client.ReadPump()
}
