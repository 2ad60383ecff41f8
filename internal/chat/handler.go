package chat

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/metrics"
	"github.com/nfrund/parley/internal/middleware"
	"github.com/nfrund/parley/internal/registry"
)

// Handler upgrades HTTP requests to WebSocket sessions. Each accepted
// connection gets its own Session goroutine.
type Handler struct {
	store    domain.ChatGateway
	registry *registry.Registry
	router   *Router
	counter  *metrics.Connections
}

func NewHandler(store domain.ChatGateway, reg *registry.Registry, router *Router, counter *metrics.Connections) *Handler {
	return &Handler{
		store:    store,
		registry: reg,
		router:   router,
		counter:  counter,
	}
}

// ServeLobby connects the user to the shared lobby room.
// GET /ws/chat/lobby
func (h *Handler) ServeLobby(c echo.Context) error {
	return h.serve(c, domain.LobbyRoom)
}

// ServeGroup connects the user to a named group room.
// GET /ws/chat/group/:room
func (h *Handler) ServeGroup(c echo.Context) error {
	room := SanitizeRoomName(c.Param("room"))
	if room == "" {
		return c.String(http.StatusBadRequest, "Room name required")
	}
	return h.serve(c, room)
}

// ServePrivate connects the user to the direct room shared with :peer. Both
// ends land in the same room regardless of who initiated.
// GET /ws/chat/private/:peer
func (h *Handler) ServePrivate(c echo.Context) error {
	user, ok := c.Get(middleware.UserContextKey).(*domain.User)
	if !ok || user == nil {
		return c.String(http.StatusUnauthorized, "User not authenticated")
	}

	peer := SanitizeRoomName(c.Param("peer"))
	if peer == "" {
		return c.String(http.StatusBadRequest, "Peer name required")
	}
	if _, err := h.store.FindUser(c.Request().Context(), peer); err != nil {
		return c.String(http.StatusNotFound, "Unknown peer")
	}

	return h.serve(c, DirectRoomName(user.Username, peer))
}

func (h *Handler) serve(c echo.Context, room string) error {
	user, ok := c.Get(middleware.UserContextKey).(*domain.User)
	if !ok || user == nil {
		slog.Error("serve: Could not get user from context for WebSocket connection")
		return c.String(http.StatusUnauthorized, "User not authenticated")
	}

	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		InsecureSkipVerify: true, // In production, check origin.
	})
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return err
	}

	sess := NewSession(conn, user, room, h.store, h.registry, h.router, h.counter)

	// The session outlives this request handler; it gets a fresh context so
	// echo's request teardown cannot cancel the pumps.
	go sess.Run(context.Background())

	return nil
}
