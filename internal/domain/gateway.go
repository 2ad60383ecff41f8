package domain

import "context"

// ChatGateway defines the contract for persistence of users, rooms, messages
// and read markers. It lives in the domain because it is a requirement OF the
// domain, not of any particular database implementation.
type ChatGateway interface {
	// FindUser looks up a user by username. Returns ErrNotFound if absent.
	FindUser(ctx context.Context, username string) (*User, error)

	// GetOrCreateUser returns the user with the given username, creating it
	// on first sight. Idempotent.
	GetOrCreateUser(ctx context.Context, username string) (*User, error)

	// GetOrCreateRoom returns the named room, creating it with the given kind
	// if absent. An existing room's kind is never overwritten.
	GetOrCreateRoom(ctx context.Context, name string, kind RoomKind) (*Room, error)

	// AddParticipant records username as a participant of the room.
	// Idempotent; returns ErrNotFound if the room is absent.
	AddParticipant(ctx context.Context, room, username string) error

	// CreateMessage persists a new message with the sender pre-added to the
	// reader set. Returns ErrNotFound if sender or room is unknown.
	CreateMessage(ctx context.Context, room, sender, body string) (*Message, error)

	// MarkRead adds username to the message's reader set. Idempotent: a
	// reader already present is a no-op, not an error. Returns ErrNotFound
	// if the message or user is absent.
	MarkRead(ctx context.Context, messageID int64, username string) error

	// MarkRoomRead adds username to the reader set of every message in the
	// room it has not read and did not author, returning exactly the IDs
	// mutated. A missing room yields an empty result, not an error: the room
	// may simply not exist yet for a just-joined connection.
	MarkRoomRead(ctx context.Context, room, username string) ([]int64, error)

	// UnreadCount counts messages in the room neither authored nor already
	// read by username.
	UnreadCount(ctx context.Context, room, username string) (int, error)

	// RoomMessages returns the room's messages ordered by creation.
	RoomMessages(ctx context.Context, room string) ([]Message, error)
}
