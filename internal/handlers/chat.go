package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/nfrund/parley/internal/chat"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/middleware"
)

// ChatHandler serves the read-side REST endpoints: message history and
// unread counts for the authenticated user.
type ChatHandler struct {
	store domain.ChatGateway
}

func NewChatHandler(store domain.ChatGateway) *ChatHandler {
	return &ChatHandler{store: store}
}

type unreadResponse struct {
	Room   string `json:"room"`
	Unread int    `json:"unread"`
}

// RoomUnread handles GET /api/rooms/:room/unread.
func (h *ChatHandler) RoomUnread(c echo.Context) error {
	user, ok := c.Get(middleware.UserContextKey).(*domain.User)
	if !ok || user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
	}

	room := chat.SanitizeRoomName(c.Param("room"))
	count, err := h.store.UnreadCount(c.Request().Context(), room, user.Username)
	if err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to count unread messages", "room", room, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not count unread messages")
	}

	return c.JSON(http.StatusOK, unreadResponse{Room: room, Unread: count})
}

// PeerUnread handles GET /api/unread/:peer, the direct-room variant. The
// room is derived from the caller and the peer, so both sides ask about the
// same conversation.
func (h *ChatHandler) PeerUnread(c echo.Context) error {
	user, ok := c.Get(middleware.UserContextKey).(*domain.User)
	if !ok || user == nil {
		return echo.NewHTTPError(http.StatusUnauthorized, "not logged in")
	}

	peer := chat.SanitizeRoomName(c.Param("peer"))
	if peer == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "peer name required")
	}

	room := chat.DirectRoomName(user.Username, peer)
	count, err := h.store.UnreadCount(c.Request().Context(), room, user.Username)
	if err != nil {
		middleware.FromContext(c.Request().Context()).Error("Failed to count unread messages", "room", room, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not count unread messages")
	}

	return c.JSON(http.StatusOK, unreadResponse{Room: room, Unread: count})
}

type historyMessage struct {
	ID       int64    `json:"id"`
	Username string   `json:"username"`
	Message  string   `json:"message"`
	ReadBy   []string `json:"readBy"`
}

// RoomMessages handles GET /api/rooms/:room/messages, returning the room's
// history in send order.
func (h *ChatHandler) RoomMessages(c echo.Context) error {
	room := chat.SanitizeRoomName(c.Param("room"))

	messages, err := h.store.RoomMessages(c.Request().Context(), room)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "room not found")
		}
		middleware.FromContext(c.Request().Context()).Error("Failed to load room history", "room", room, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "could not load messages")
	}

	out := make([]historyMessage, 0, len(messages))
	for _, m := range messages {
		out = append(out, historyMessage{
			ID:       m.ID,
			Username: m.Sender,
			Message:  m.Body,
			ReadBy:   m.ReadBy,
		})
	}
	return c.JSON(http.StatusOK, out)
}
