package api

import (
	"errors"
	"net/http"

	"persona-chat/backend/internal/models"
	"persona-chat/backend/internal/service"
	"persona-chat/backend/pkg/jwt"
	"persona-chat/backend/pkg/logger"
	"persona-chat/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication-related requests
type AuthHandler struct {
	service       *service.UserService
	jwtService    *jwt.Service
	secureCookies bool
	logger        *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *service.UserService, jwtService *jwt.Service, secureCookies bool, logger *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service:       service,
		jwtService:    jwtService,
		secureCookies: secureCookies,
		logger:        logger,
	}
}

// RegisterRoutes mounts the credential endpoints under /api/auth
func (h *AuthHandler) RegisterRoutes(r gin.IRouter, requireAuth gin.HandlerFunc) {
	auth := r.Group("/api/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/logout", h.Logout)
	auth.GET("/me", requireAuth, h.Me)
}

// Register handles user registration
func (h *AuthHandler) Register(c *gin.Context) {
	var req models.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.FromGin(c).Warn("Invalid registration payload", "error", err.Error())
		c.JSON(http.StatusBadRequest, models.AuthResponse{Status: models.AuthInvalidData})
		return
	}

	user, token, err := h.service.Register(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrUserAlreadyExists) {
			c.JSON(http.StatusConflict, models.AuthResponse{Status: models.AuthUserExists})
			return
		}
		logger.FromGin(c).LogError(err, "Error creating user")
		c.JSON(http.StatusInternalServerError, models.AuthResponse{Status: models.AuthFailed})
		return
	}

	h.setSession(c, token)
	c.JSON(http.StatusCreated, models.AuthResponse{
		Status: models.AuthSuccess,
		Token:  token,
		User:   user.ToResponse(),
	})
}

// Login handles user authentication
func (h *AuthHandler) Login(c *gin.Context) {
	var req models.CredentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.AuthResponse{Status: models.AuthInvalidData})
		return
	}

	user, token, err := h.service.Login(c.Request.Context(), &req)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, models.AuthResponse{Status: models.AuthInvalidCredentials})
			return
		}
		logger.FromGin(c).LogError(err, "Error during login")
		c.JSON(http.StatusInternalServerError, models.AuthResponse{Status: models.AuthFailed})
		return
	}

	h.setSession(c, token)
	c.JSON(http.StatusOK, models.AuthResponse{
		Status: models.AuthSuccess,
		Token:  token,
		User:   user.ToResponse(),
	})
}

// Logout clears the session cookie
func (h *AuthHandler) Logout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, "", -1, "/", "", h.secureCookies, true)
	c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
}

// Me returns the signed-in user
func (h *AuthHandler) Me(c *gin.Context) {
	user, err := h.service.GetUserByID(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, user.ToResponse())
}

func (h *AuthHandler) setSession(c *gin.Context, token string) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(middleware.SessionCookie, token, int(h.jwtService.Expiry().Seconds()), "/", "", h.secureCookies, true)
}
