package api

import (
	"net/http"
	"time"

	"persona-chat/backend/pkg/health"

	"github.com/gin-gonic/gin"
)

// ConnectionCounter reports live websocket connections
type ConnectionCounter interface {
	ActiveConnections() int
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checker     *health.Checker
	connections ConnectionCounter
	version     string
}

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status      string                       `json:"status"`
	Timestamp   time.Time                    `json:"timestamp"`
	Version     string                       `json:"version"`
	Components  map[string]*health.Component `json:"components"`
	Connections int                          `json:"websocketConnections"`
}

func NewHealthHandler(checker *health.Checker, connections ConnectionCounter, version string) *HealthHandler {
	return &HealthHandler{checker: checker, connections: connections, version: version}
}

// Health reports 503 while a critical component is down
func (h *HealthHandler) Health(c *gin.Context) {
	response := HealthResponse{
		Status:     "ok",
		Timestamp:  time.Now().UTC(),
		Version:    h.version,
		Components: h.checker.GetStatus(),
	}
	if h.connections != nil {
		response.Connections = h.connections.ActiveConnections()
	}

	status := http.StatusOK
	if !h.checker.IsSystemHealthy() {
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, response)
}

// RegisterRoutes registers health check related routes
func (h *HealthHandler) RegisterRoutes(r gin.IRouter) {
	r.GET("/health", h.Health)
}
