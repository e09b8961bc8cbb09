package auth

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trailmeet/backend/internal/middleware"
	"github.com/trailmeet/backend/pkg/response"
)

// Handler handles auth HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an auth handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// CreateSession handles POST /auth/session.
func (h *Handler) CreateSession(c *gin.Context) {
	u, err := h.svc.CreateSession(c.Request.Context())
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, u)
}

// Me handles GET /auth/me.
func (h *Handler) Me(c *gin.Context) {
	response.OK(c, middleware.CurrentUser(c))
}

// Logout handles POST /auth/logout.
func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), middleware.CurrentUser(c)); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Message(c, "Logged out successfully")
}
