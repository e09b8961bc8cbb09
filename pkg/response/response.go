package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trailmeet/backend/internal/models"
	"github.com/trailmeet/backend/internal/store"
)

// ErrorBody is the error payload. Clients read the detail field.
type ErrorBody struct {
	Detail string `json:"detail"`
}

// MessageBody is the payload of actions that return no resource.
type MessageBody struct {
	Message string `json:"message"`
}

// OK sends a 200 JSON response with the bare resource.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Message sends 200 with {"message": msg}.
func Message(c *gin.Context, msg string) {
	c.JSON(http.StatusOK, MessageBody{Message: msg})
}

// TooManyRequests sends 429.
func TooManyRequests(c *gin.Context, err string) {
	c.JSON(http.StatusTooManyRequests, ErrorBody{Detail: err})
}

// Status maps a domain error to its HTTP status and client message.
func Status(err error) (int, string) {
	var verr *models.ValidationError
	switch {
	case errors.Is(err, models.ErrSessionExpired):
		return http.StatusUnauthorized, "Session expired"
	case errors.Is(err, models.ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid authentication token"
	case errors.Is(err, models.ErrUnauthenticated):
		return http.StatusUnauthorized, "Authentication required"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "Event not found"
	case errors.Is(err, store.ErrAlreadyJoined):
		return http.StatusBadRequest, "Already joined this event"
	case errors.Is(err, store.ErrEventFull):
		return http.StatusBadRequest, "Event is full"
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, verr.Error()
	}
	return http.StatusInternalServerError, "Internal server error"
}

// Error writes err as {"detail": ...}. Server errors are logged with the cause.
func Error(c *gin.Context, logger *zap.Logger, err error) {
	code, msg := Status(err)
	if code >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err),
		)
	}
	c.JSON(code, ErrorBody{Detail: msg})
}
