package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/registry"
)

// Fanout builds outbound event payloads and hands them to the Room Registry
// for delivery. It holds no state of its own; every payload carries a type
// discriminator so receivers can dispatch without ambiguity.
type Fanout struct {
	registry *registry.Registry
}

// NewFanout creates a Fanout on top of the given registry.
func NewFanout(reg *registry.Registry) *Fanout {
	return &Fanout{registry: reg}
}

// send marshals the event and broadcasts it to the room group on behalf
// of the acting user.
func (f *Fanout) send(ctx context.Context, room, from string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode outbound event: %w", err)
	}
	return f.registry.Broadcast(ctx, room, from, payload)
}

// ChatMessage announces a stored message to its room group.
func (f *Fanout) ChatMessage(ctx context.Context, msg *domain.Message) error {
	return f.send(ctx, msg.Room, msg.Sender, ChatMessageEvent{
		Type:     EventChatMessage,
		ID:       msg.ID,
		Message:  msg.Body,
		Username: msg.Sender,
	})
}

// Typing relays an ephemeral typing indicator to the room group.
func (f *Fanout) Typing(ctx context.Context, room, username string, isTyping bool) error {
	return f.send(ctx, room, username, TypingEvent{
		Type:     EventTyping,
		Username: username,
		IsTyping: isTyping,
	})
}

// ReadReceipt announces a single read acknowledgement to the room group.
func (f *Fanout) ReadReceipt(ctx context.Context, room string, messageID int64, username string) error {
	return f.send(ctx, room, username, ReadReceiptEvent{
		Type:      EventReadReceipt,
		MessageID: messageID,
		Username:  username,
	})
}

// BulkRead announces several messages read at once to the room group.
func (f *Fanout) BulkRead(ctx context.Context, room string, messageIDs []int64, username string) error {
	return f.send(ctx, room, username, BulkReadEvent{
		Type:       EventBulkRead,
		MessageIDs: messageIDs,
		Username:   username,
	})
}

// DirectNotification tells the lobby group that sender wrote to targetUser
// in a direct room.
func (f *Fanout) DirectNotification(ctx context.Context, sender, targetUser string) error {
	return f.send(ctx, domain.LobbyRoom, sender, NotificationEvent{
		Type:       EventNotification,
		Sender:     sender,
		TargetUser: targetUser,
		RoomType:   string(domain.RoomDirect),
	})
}

// GroupNotification tells the lobby group that sender wrote to a group room.
func (f *Fanout) GroupNotification(ctx context.Context, sender, roomName string) error {
	return f.send(ctx, domain.LobbyRoom, sender, NotificationEvent{
		Type:     EventNotification,
		Sender:   sender,
		RoomName: roomName,
		RoomType: string(domain.RoomGroup),
	})
}
