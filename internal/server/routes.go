package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/parley/internal/middleware"
)

// RegisterRoutes sets up all the application routes.
func (s *Server) RegisterRoutes() {
	auth := middleware.Auth(s.store)
	rateLimiter := middleware.RateLimiter()

	s.E.GET("/health", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	s.E.POST("/auth/login", s.authHandler.LoginPost, rateLimiter)
	s.E.POST("/auth/logout", s.authHandler.Logout)

	api := s.E.Group("/api", auth)
	api.GET("/unread/:peer", s.chatHandler.PeerUnread)
	api.GET("/rooms/:room/unread", s.chatHandler.RoomUnread)
	api.GET("/rooms/:room/messages", s.chatHandler.RoomMessages)
	api.GET("/stats", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]int64{
			"activeConnections": s.counter.Active(),
			"totalConnections":  s.counter.Total(),
		})
	})

	ws := s.E.Group("/ws/chat", auth)
	ws.GET("/lobby", s.wsHandler.ServeLobby)
	ws.GET("/group/:room", s.wsHandler.ServeGroup)
	ws.GET("/private/:peer", s.wsHandler.ServePrivate)
}
