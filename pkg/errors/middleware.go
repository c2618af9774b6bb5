package errors

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"persona-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

func writeEnvelope(c *gin.Context, status int, code, message string, details any) {
	c.AbortWithStatusJSON(status, gin.H{
		"error": gin.H{"code": code, "message": message, "details": details},
	})
}

// ErrorHandler renders the last error attached to the context as the JSON
// error envelope. Client errors log at warn, everything else at error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		appErr := FromError(c.Errors.Last().Err)

		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status_code", appErr.StatusCode,
			"error_code", appErr.Code,
			"message", appErr.Message,
		}
		if cause := appErr.Unwrap(); cause != nil {
			fields = append(fields, "cause", cause.Error())
		}
		log := logger.FromGin(c)
		if appErr.StatusCode < http.StatusInternalServerError {
			log.Warn("request rejected", fields...)
		} else {
			log.Error("request failed", fields...)
		}

		// A streaming handler may already have committed its response
		if c.Writer.Written() {
			return
		}
		writeEnvelope(c, appErr.StatusCode, appErr.Code, appErr.Message, appErr.Details)
	}
}

// RecoveryWithLogger turns a panic into a 500 envelope. The stack is logged
// and, in gin debug mode, returned as details.
func RecoveryWithLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			stack := string(debug.Stack())
			logger.FromGin(c).Error("panic recovered",
				"panic", fmt.Sprint(r),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"stack", stack,
			)

			var details any
			if gin.IsDebugging() {
				details = fmt.Sprintf("%v\n%s", r, stack)
			}
			writeEnvelope(c, http.StatusInternalServerError, "SERVER_ERROR", "The server encountered an unexpected error", details)
		}()

		c.Next()
	}
}
