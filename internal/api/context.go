package api

import (
	"net/http"

	"persona-chat/backend/internal/models"
	"persona-chat/backend/internal/service"
	"persona-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// ContextHandler exposes the user context (profile, interests, goals, traits, connections)
type ContextHandler struct {
	service *service.ContextService
}

func NewContextHandler(service *service.ContextService) *ContextHandler {
	return &ContextHandler{service: service}
}

func (h *ContextHandler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc) {
	group := r.Group("/api/context", requireAuth)
	group.GET("", h.GetContext)
	group.POST("", h.UpdateContext)
}

func (h *ContextHandler) GetContext(c *gin.Context) {
	userContext, err := h.service.GetContext(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, userContext)
}

// UpdateContext replaces only the parts present in the body
func (h *ContextHandler) UpdateContext(c *gin.Context) {
	var update models.ContextUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		badRequest(c, "Invalid request format", err)
		return
	}

	if err := h.service.UpdateContext(c.Request.Context(), middleware.UserID(c), &update); err != nil {
		abortWith(c, err)
		return
	}
	c.String(http.StatusOK, "OK")
}
