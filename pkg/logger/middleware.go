package logger

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Middleware returns a Gin middleware function that logs requests
func Middleware(logger *Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Generate a request ID if one doesn't exist
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		c.Set("requestID", requestID)

		reqLogger := logger.WithRequestID(requestID)

		// Store the logger in the gin and request contexts
		c.Set("logger", reqLogger)
		c.Request = c.Request.WithContext(NewContext(c.Request.Context(), reqLogger))

		start := time.Now()

		c.Next()

		// Session auth runs after this middleware, so the user id is only known now
		if userID := c.GetString("userId"); userID != "" {
			reqLogger = reqLogger.WithUserID(userID)
		}

		latency := time.Since(start)
		status := c.Writer.Status()
		path := c.Request.URL.Path
		method := c.Request.Method

		reqLogger.LogRequest(method, path, status, latency)

		for _, err := range c.Errors {
			reqLogger.LogError(err.Err, "request error",
				"method", method,
				"path", path,
				"error_type", err.Type,
			)
		}
	}
}

// FromGin returns the request-scoped logger set by Middleware
func FromGin(c *gin.Context) *Logger {
	if l, ok := c.Get("logger"); ok {
		if reqLogger, ok := l.(*Logger); ok {
			return reqLogger
		}
	}
	return GetGlobal()
}
