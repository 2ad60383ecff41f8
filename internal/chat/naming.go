package chat

import (
	"strings"

	"github.com/nfrund/parley/internal/domain"
	"golang.org/x/text/unicode/norm"
)

// directPrefix starts every canonical two-party room name.
const directPrefix = "direct_"

// SanitizeRoomName makes a client-supplied room name canonical: NFC
// normalization so visually identical names collide, and spaces replaced
// with underscores.
func SanitizeRoomName(name string) string {
	return strings.ReplaceAll(norm.NFC.String(name), " ", "_")
}

// DirectRoomName derives the canonical name of the two-party room shared by
// a and b. Both participants derive the same name regardless of who
// initiates: the lexicographically smaller identity always comes first.
func DirectRoomName(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return directPrefix + a + "_" + b
}

// IsDirectRoom reports whether the room name follows the two-party naming rule.
func IsDirectRoom(room string) bool {
	return strings.HasPrefix(room, directPrefix)
}

// DirectRoomPeer extracts the participant of a direct room that is not
// sender. Usernames may themselves contain underscores, so the name is not
// naively split: the sender is matched against either end instead.
func DirectRoomPeer(room, sender string) (string, bool) {
	rest, ok := strings.CutPrefix(room, directPrefix)
	if !ok {
		return "", false
	}
	if peer, ok := strings.CutPrefix(rest, sender+"_"); ok {
		return peer, true
	}
	if peer, ok := strings.CutSuffix(rest, "_"+sender); ok {
		return peer, true
	}
	return "", false
}

// RoomKindOf reports the storage kind for a room name.
func RoomKindOf(room string) domain.RoomKind {
	if IsDirectRoom(room) {
		return domain.RoomDirect
	}
	return domain.RoomGroup
}
