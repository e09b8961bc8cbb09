package chat

import (
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trailmeet/backend/internal/middleware"
	"github.com/trailmeet/backend/internal/models"
	"github.com/trailmeet/backend/internal/realtime"
	"github.com/trailmeet/backend/pkg/response"
)

// Handler handles chat HTTP and WebSocket endpoints.
type Handler struct {
	svc      *Service
	sessions middleware.SessionResolver
	hub      *realtime.Hub
	logger   *zap.Logger
}

// NewHandler creates a chat handler.
func NewHandler(svc *Service, sessions middleware.SessionResolver, hub *realtime.Hub, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, sessions: sessions, hub: hub, logger: logger}
}

// List handles GET /events/:id/chat.
func (h *Handler) List(c *gin.Context) {
	list, err := h.svc.List(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, list)
}

// Send handles POST /events/:id/chat.
func (h *Handler) Send(c *gin.Context) {
	var req models.ChatMessageCreate
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, h.logger, models.BindError(err))
		return
	}
	m, err := h.svc.Send(c.Request.Context(), c.Param("id"), req.Message, middleware.CurrentUser(c))
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, m)
}

// Stream handles GET /events/:id/chat/ws. Browsers cannot set headers on the upgrade request,
// so the session token may come as ?token= instead of a bearer header.
func (h *Handler) Stream(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token, _ = middleware.BearerToken(c.GetHeader("Authorization"))
	}
	u, err := h.sessions.Resolve(c.Request.Context(), token)
	if err != nil {
		response.Error(c, h.logger, err)
		return
	}
	eventID := c.Param("id")
	if err := h.svc.EnsureEvent(c.Request.Context(), eventID); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	h.hub.Serve(c.Writer, c.Request, eventID, u.ID)
}

// OnlineResponse is the body of GET /events/:id/chat/online.
type OnlineResponse struct {
	EventID string `json:"event_id"`
	Count   int    `json:"count"`
}

// Online handles GET /events/:id/chat/online.
func (h *Handler) Online(c *gin.Context) {
	eventID := c.Param("id")
	if err := h.svc.EnsureEvent(c.Request.Context(), eventID); err != nil {
		response.Error(c, h.logger, err)
		return
	}
	response.OK(c, OnlineResponse{EventID: eventID, Count: h.hub.OnlineCount(eventID)})
}
