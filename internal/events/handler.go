package events

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trailmeet/backend/internal/middleware"
	"github.com/trailmeet/backend/internal/models"
	"github.com/trailmeet/backend/pkg/response"
)

// Handler handles event HTTP endpoints.
type Handler struct {
	svc    *Service
	logger *zap.Logger
}

// NewHandler creates an event handler.
func NewHandler(svc *Service, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// List handles GET /events.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context())
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, list)
}

// Get handles GET /events/:id.
func (h *Handler) Get(c *gin.Context) {
	e, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, e)
}

// Create handles POST /events.
func (h *Handler) Create(c *gin.Context) {
	var req models.EventCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, h.logger, models.BindError(err))
		return
	}
	e, err := h.svc.Create(c.Request.Context(), &req, middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, e)
}

// Join handles POST /events/:id/join.
func (h *Handler) Join(c *gin.Context) {
	if err := h.svc.Join(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c)); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Message(c, "Successfully joined the event")
}

// Leave handles DELETE /events/:id/leave.
func (h *Handler) Leave(c *gin.Context) {
	if err := h.svc.Leave(c.Request.Context(), c.Param("id"), middleware.CurrentUser(c)); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.Message(c, "Successfully left the event")
}

// Mine handles GET /my-events.
func (h *Handler) Mine(c *gin.Context) {
	list, err := h.svc.Mine(c.Request.Context(), middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, list)
}
