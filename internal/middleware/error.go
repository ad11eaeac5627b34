package middleware

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/fitness-api/pkg/errors"
)

// ErrorResponse represents a standardized error response
type ErrorResponse struct {
	Status    string   `json:"status"`
	Code      int      `json:"code"`
	Message   string   `json:"message"`
	Details   []string `json:"details,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// ErrorHandler renders the last error handlers attached with c.Error.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)

		for _, e := range c.Errors {
			log.Error().
				Err(e.Err).
				Str("request_id", requestID).
				Str("path", c.Request.URL.Path).
				Str("method", c.Request.Method).
				Str("client_ip", c.ClientIP()).
				Msg("Request error")
		}

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last().Err
		var appErr *apperrors.AppError
		if !errors.As(lastErr, &appErr) {
			appErr = apperrors.Internal(lastErr)
		}

		status := appErr.StatusCode()
		c.JSON(status, ErrorResponse{
			Status:    "error",
			Code:      status,
			Message:   appErr.Message,
			Details:   appErr.Details,
			RequestID: requestID,
		})
	}
}
