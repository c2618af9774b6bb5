package api

import (
	"net/http"

	"persona-chat/backend/internal/models"
	"persona-chat/backend/internal/service"

	"github.com/gin-gonic/gin"
)

// PasswordHandler serves the forgot/reset password flow
type PasswordHandler struct {
	service *service.PasswordService
}

func NewPasswordHandler(service *service.PasswordService) *PasswordHandler {
	return &PasswordHandler{service: service}
}

func (h *PasswordHandler) RegisterRoutes(r gin.IRouter) {
	r.POST("/api/auth/forgot-password", h.ForgotPassword)
	r.POST("/api/auth/reset-password", h.ResetPassword)
}

// ForgotPassword issues a reset token for a known email
func (h *PasswordHandler) ForgotPassword(c *gin.Context) {
	var req models.ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Email is required", err)
		return
	}

	if err := h.service.RequestReset(c.Request.Context(), req.Email); err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password reset email sent"})
}

// ResetPassword consumes a reset token and stores the new password
func (h *PasswordHandler) ResetPassword(c *gin.Context) {
	var req models.ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Token and a password of at least 8 characters are required", err)
		return
	}

	if err := h.service.ResetPassword(c.Request.Context(), req.Token, req.Password); err != nil {
		abortWith(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Password updated successfully"})
}
