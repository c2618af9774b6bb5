package middleware

import (
	"strings"

	"persona-chat/backend/pkg/errors"
	"persona-chat/backend/pkg/jwt"
	"persona-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// SessionCookie is the HttpOnly cookie that carries the session token
const SessionCookie = "session_token"

// Gin context keys set by the session middleware
const (
	ContextClaims = "claims"
	ContextUserID = "userId"
)

// TokenFromRequest returns the bearer token, falling back to the session cookie
func TokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); header != "" {
		if strings.HasPrefix(header, "Bearer ") {
			return strings.TrimSpace(header[7:])
		}
		return strings.TrimSpace(header)
	}

	if cookie, err := c.Cookie(SessionCookie); err == nil {
		return cookie
	}

	return ""
}

// JWTAuthMiddleware rejects requests without a valid session and adds claims to the context
func JWTAuthMiddleware(jwtService *jwt.Service, logger *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := TokenFromRequest(c)
		if token == "" {
			_ = c.Error(errors.NewUnauthorizedError(errors.CodeAuthRequired, "Unauthorized"))
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(token)
		if err != nil {
			logger.Warn("Invalid session token", "error", err.Error())
			_ = c.Error(errors.NewUnauthorizedError(errors.CodeInvalidToken, "Unauthorized"))
			c.Abort()
			return
		}

		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware attaches claims when a valid session is present and never rejects
func OptionalAuthMiddleware(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token := TokenFromRequest(c); token != "" {
			if claims, err := jwtService.ValidateToken(token); err == nil {
				setClaims(c, claims)
			}
		}
		c.Next()
	}
}

// UserID returns the authenticated user id, or "" for anonymous requests
func UserID(c *gin.Context) string {
	return c.GetString(ContextUserID)
}

// Claims returns the session claims set by the auth middleware
func Claims(c *gin.Context) (*jwt.Claims, bool) {
	v, ok := c.Get(ContextClaims)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*jwt.Claims)
	return claims, ok
}

func setClaims(c *gin.Context, claims *jwt.Claims) {
	c.Set(ContextClaims, claims)
	c.Set(ContextUserID, claims.UserID)
}
