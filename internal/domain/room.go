package domain

import "time"

// RoomKind discriminates the two room flavours the multiplexer knows about.
type RoomKind string

const (
	// RoomDirect is a two-party room with a deterministically derived name.
	RoomDirect RoomKind = "direct"
	// RoomGroup is an open, named room.
	RoomGroup RoomKind = "group"
)

// LobbyRoom is the reserved, always-present room used for cross-room
// notification fan-out. Read tracking is deliberately not applied to it.
const LobbyRoom = "lobby"

// Room is a named broadcast group plus its message history. Rooms are
// created lazily on first join or message and are never deleted by the core.
type Room struct {
	Name         string   `json:"name"`
	Kind         RoomKind `json:"kind"`
	Participants []string `json:"participants,omitempty"`
}

// Message is a single chat message. It is immutable after creation except
// for growth of the reader set; the sender is always a member of ReadBy.
type Message struct {
	ID        int64     `json:"id"`
	Room      string    `json:"room"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"createdAt"`
	ReadBy    []string  `json:"readBy"`
}

// HasReader reports whether username already acknowledged the message.
func (m *Message) HasReader(username string) bool {
	for _, r := range m.ReadBy {
		if r == username {
			return true
		}
	}
	return false
}
