package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"whatsapp-connector/internal/database"
	"whatsapp-connector/pkg/response"
)

// HealthHandler answers liveness and readiness probes
type HealthHandler struct {
	db      *database.Connection
	started time.Time
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(db *database.Connection) *HealthHandler {
	return &HealthHandler{db: db, started: time.Now()}
}

// Health reports process liveness
// GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response.Success(c, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

// Ready reports whether the service can take traffic
// GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	if err := h.db.HealthCheck(); err != nil {
		response.ErrorResponse(c, http.StatusServiceUnavailable, "Database unreachable")
		return
	}
	response.Success(c, gin.H{"status": "ready"})
}
