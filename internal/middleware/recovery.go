package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/fitness-api/pkg/errors"
)

// Recovery handles panics and logs them appropriately
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				log.Error().
					Interface("error", err).
					Str("stack", string(debug.Stack())).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Str("client_ip", c.ClientIP()).
					Str("request_id", c.GetString(ContextRequestID)).
					Msg("Request panic recovered")

				appErr := apperrors.Internal(fmt.Errorf("panic: %v", err))
				c.AbortWithStatusJSON(appErr.StatusCode(), ErrorResponse{
					Status:    "error",
					Code:      appErr.StatusCode(),
					Message:   appErr.Message,
					RequestID: c.GetString(ContextRequestID),
				})
			}
		}()
		c.Next()
	}
}
