package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/nfrund/parley/internal/domain"
)

// Router interprets inbound events and orchestrates storage updates plus
// room broadcasts. Per-event failures are reported to the caller but never
// terminate a session: the session logs them and stays active.
type Router struct {
	store    domain.ChatGateway
	fanout   *Fanout
	validate *validator.Validate
}

// NewRouter creates a Router.
func NewRouter(store domain.ChatGateway, fanout *Fanout) *Router {
	return &Router{
		store:    store,
		fanout:   fanout,
		validate: validator.New(),
	}
}

// Dispatch handles one raw inbound event sent by username in room.
//
// Unknown event kinds are ignored without error for forward compatibility.
// A missing required field or a payload username that contradicts the
// authenticated identity fails only this event (ErrMalformedEvent).
func (r *Router) Dispatch(ctx context.Context, room, username string, raw []byte) error {
	var ev InboundEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}
	if ev.Type == "" {
		ev.Type = EventChatMessage
	}

	switch ev.Type {
	case EventChatMessage, EventTyping, EventReadReceipt, EventMarkRead:
	default:
		// Unknown kinds are dropped silently so older servers tolerate
		// newer clients.
		slog.Debug("Ignoring unknown event kind", "kind", ev.Type, "room", room)
		return nil
	}

	// The payload username is advisory at best. Bind the event to the
	// session identity and treat a contradiction as malformed.
	if ev.Username != "" && ev.Username != username {
		return fmt.Errorf("%w: payload username %q does not match session user %q",
			domain.ErrMalformedEvent, ev.Username, username)
	}

	if err := r.validate.StructCtx(ctx, &ev); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	switch ev.Type {
	case EventChatMessage:
		return r.chatMessage(ctx, room, username, ev.Message)
	case EventTyping:
		isTyping := true
		if ev.IsTyping != nil {
			isTyping = *ev.IsTyping
		}
		return r.fanout.Typing(ctx, room, username, isTyping)
	case EventReadReceipt:
		return r.readReceipt(ctx, room, username, ev.MessageID)
	default: // EventMarkRead
		return r.MarkRoomRead(ctx, room, username)
	}
}

// chatMessage stores the message, announces it to the room, and emits the
// derived lobby notification. A message that could not be durably recorded
// is never broadcast.
func (r *Router) chatMessage(ctx context.Context, room, username, body string) error {
	msg, err := r.store.CreateMessage(ctx, room, username, body)
	if err != nil {
		return err
	}

	if err := r.fanout.ChatMessage(ctx, msg); err != nil {
		return err
	}

	// Messages in the lobby itself produce no derived notification; the
	// lobby is only ever the target of cross-room fan-out.
	if room == domain.LobbyRoom {
		return nil
	}

	if IsDirectRoom(room) {
		target, ok := DirectRoomPeer(room, username)
		if !ok {
			slog.Warn("Could not derive notification target from direct room name", "room", room, "sender", username)
			return nil
		}
		return r.fanout.DirectNotification(ctx, username, target)
	}
	return r.fanout.GroupNotification(ctx, username, room)
}

// readReceipt marks one message read and announces it to the room.
func (r *Router) readReceipt(ctx context.Context, room, username string, messageID int64) error {
	if err := r.store.MarkRead(ctx, messageID, username); err != nil {
		return err
	}
	return r.fanout.ReadReceipt(ctx, room, messageID, username)
}

// MarkRoomRead marks everything unread in the room as read by username and,
// when anything was actually mutated, announces a single bulk_read to the
// room group. It doubles as the session's entry action on room join.
//
// The lobby is a deliberate exception: it exists only for cross-room
// notifications and carries no read tracking.
func (r *Router) MarkRoomRead(ctx context.Context, room, username string) error {
	if room == domain.LobbyRoom {
		return nil
	}

	ids, err := r.store.MarkRoomRead(ctx, room, username)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return r.fanout.BulkRead(ctx, room, ids, username)
}
