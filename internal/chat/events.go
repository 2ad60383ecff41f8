package chat

// Inbound event kinds accepted from clients. Unknown kinds are ignored for
// forward compatibility.
const (
	EventChatMessage = "chat_message"
	EventTyping      = "typing"
	EventReadReceipt = "read_receipt"
	EventMarkRead    = "mark_read"
)

// Outbound-only event kinds.
const (
	EventBulkRead     = "bulk_read"
	EventNotification = "notification"
)

// InboundEvent is the envelope clients send over the WebSocket. The type
// defaults to chat_message when empty. The username field is advisory only:
// the router binds every event to the authenticated session identity and
// rejects a mismatching payload value.
type InboundEvent struct {
	Type      string `json:"type"`
	Username  string `json:"username,omitempty"`
	Message   string `json:"message,omitempty" validate:"required_if=Type chat_message"`
	IsTyping  *bool  `json:"is_typing,omitempty"`
	MessageID int64  `json:"message_id,omitempty" validate:"required_if=Type read_receipt"`
}

// ChatMessageEvent is broadcast to a room group for each stored message.
type ChatMessageEvent struct {
	Type     string `json:"type"`
	ID       int64  `json:"id"`
	Message  string `json:"message"`
	Username string `json:"username"`
}

// TypingEvent is the ephemeral typing indicator; nothing is persisted.
type TypingEvent struct {
	Type     string `json:"type"`
	Username string `json:"username"`
	IsTyping bool   `json:"is_typing"`
}

// ReadReceiptEvent reports a single message transitioning to read.
type ReadReceiptEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"message_id"`
	Username  string `json:"username"`
}

// BulkReadEvent reports several messages transitioning to read at once,
// emitted on room entry or an explicit mark-all-read.
type BulkReadEvent struct {
	Type       string  `json:"type"`
	MessageIDs []int64 `json:"message_ids"`
	Username   string  `json:"username"`
}

// NotificationEvent is the derived cross-room notification delivered to the
// lobby group. Direct rooms carry the non-sender participant in TargetUser;
// group rooms carry the room name instead.
type NotificationEvent struct {
	Type       string `json:"type"`
	Sender     string `json:"sender"`
	TargetUser string `json:"target_user,omitempty"`
	RoomName   string `json:"room_name,omitempty"`
	RoomType   string `json:"room_type"`
}
