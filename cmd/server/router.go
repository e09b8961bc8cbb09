package main

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/trailmeet/backend/internal/auth"
	"github.com/trailmeet/backend/internal/chat"
	"github.com/trailmeet/backend/internal/events"
	"github.com/trailmeet/backend/internal/middleware"
	"github.com/trailmeet/backend/internal/realtime"
	"github.com/trailmeet/backend/internal/store"
	"github.com/trailmeet/backend/pkg/response"
)

type routerDeps struct {
	store       *store.Store
	sessions    *auth.Service
	hub         *realtime.Hub
	limiter     *middleware.RateLimiter // nil disables rate limiting
	corsOrigins string
	proxies     []string // trusted proxies; nil trusts none
	logger      *zap.Logger
}

// HealthResponse is the body of GET /api/.
type HealthResponse struct {
	Message string `json:"message"`
	Status  string `json:"status"`
}

func newRouter(d routerDeps) (*gin.Engine, error) {
	logger := d.logger

	authHandler := auth.NewHandler(d.sessions, logger)
	eventHandler := events.NewHandler(events.NewService(d.store.Events, logger), logger)
	chatHandler := chat.NewHandler(chat.NewService(d.store.Events, d.store.Messages, d.hub, logger), d.sessions, d.hub, logger)

	router := gin.New()
	if err := router.SetTrustedProxies(d.proxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(d.corsOrigins))
	router.Use(middleware.Logger(logger))
	if d.limiter != nil {
		router.Use(d.limiter.Middleware())
	}

	api := router.Group("/api")

	// Public
	api.GET("/", func(c *gin.Context) {
		response.OK(c, HealthResponse{Message: "TrailMeet API is running", Status: "healthy"})
	})
	api.POST("/auth/session", authHandler.CreateSession)
	api.GET("/events", eventHandler.List)
	api.GET("/events/:id", eventHandler.Get)
	api.GET("/events/:id/chat/online", chatHandler.Online)

	// WebSocket (token in query; no Authorization header required)
	api.GET("/events/:id/chat/ws", chatHandler.Stream)

	// Protected API (session token required)
	authed := api.Group("")
	authed.Use(middleware.Session(d.sessions, logger))
	{
		authed.GET("/auth/me", authHandler.Me)
		authed.POST("/auth/logout", authHandler.Logout)

		authed.POST("/events", eventHandler.Create)
		authed.POST("/events/:id/join", eventHandler.Join)
		authed.DELETE("/events/:id/leave", eventHandler.Leave)
		authed.GET("/my-events", eventHandler.Mine)

		authed.GET("/events/:id/chat", chatHandler.List)
		authed.POST("/events/:id/chat", chatHandler.Send)
	}

	return router, nil
}
