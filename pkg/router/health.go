package router

import (
	"persona-chat/backend/internal/api"

	"github.com/gin-gonic/gin"
)

// setupHealthRoutes registers health and metrics endpoints
func (r *Router) setupHealthRoutes() {
	healthHandler := api.NewHealthHandler(r.Container.Health, r.Hub, Version)
	healthHandler.RegisterRoutes(r.Engine)
	r.Engine.GET("/api/health", gin.WrapH(r.Container.Health.HTTPHandler()))

	if obs := r.Container.Observability; obs != nil {
		r.Engine.GET("/metrics", gin.WrapH(obs.Handler()))
	}
}
