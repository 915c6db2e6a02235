package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthResponse represents the response from the health check endpoint
type HealthResponse struct {
	Status        string                 `json:"status"`
	Storage       string                 `json:"storage"`
	Notifications string                 `json:"notifications"`
	Players       int                    `json:"players"`
	Time          string                 `json:"time"`
	Details       map[string]interface{} `json:"details,omitempty"`
}

// storageChecker is the resume storage health probe
type storageChecker interface {
	Health(ctx context.Context) error
}

// connectionState reports whether the notification push channel is up
type connectionState interface {
	IsConnected() bool
}

// HealthHandler handles health check requests
type HealthHandler struct {
	storage storageChecker
	bridge  connectionState
	players func() int
}

// NewHealthHandler creates a new health check handler. bridge and players may be nil.
func NewHealthHandler(storage storageChecker, bridge connectionState, players func() int) *HealthHandler {
	return &HealthHandler{storage: storage, bridge: bridge, players: players}
}

// Check handles the health check endpoint. A disconnected notification
// channel is reported but does not fail the check; players fall back to polling.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	response := HealthResponse{
		Status:        "ok",
		Notifications: "disabled",
		Time:          time.Now().UTC().Format(time.RFC3339),
		Details:       make(map[string]interface{}),
	}
	if h.players != nil {
		response.Players = h.players()
	}
	if h.bridge != nil {
		response.Notifications = "disconnected"
		if h.bridge.IsConnected() {
			response.Notifications = "connected"
		}
	}

	if err := h.storage.Health(ctx); err != nil {
		response.Status = "degraded"
		response.Storage = "unhealthy"
		response.Details["storage_error"] = err.Error()
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}

	response.Storage = "healthy"
	c.JSON(http.StatusOK, response)
}

// SetupHealthRoutes registers health check routes
func SetupHealthRoutes(apiGroup *gin.RouterGroup, handler *HealthHandler) {
	apiGroup.GET("/health", handler.Check)
}
