package storage

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/nfrund/parley/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// SurrealStore implements domain.ChatGateway on SurrealDB.
//
// Messages are keyed by a monotonically increasing sequence number taken
// from a counter record, so message IDs are ordered within the instance.
// Reader-set growth is expressed as array::union inside a single UPDATE,
// which SurrealDB applies atomically per record.
type SurrealStore struct {
	db *surrealdb.DB
}

// NewSurrealStore creates a SurrealStore using an established connection.
func NewSurrealStore(db *surrealdb.DB) *SurrealStore {
	return &SurrealStore{db: db}
}

var _ domain.ChatGateway = (*SurrealStore)(nil)

// messageRecord is the SurrealDB shape of a message. The record ID is
// message:<seq>; the seq field carries the domain-visible message ID.
type messageRecord struct {
	ID        *surrealmodels.RecordID `json:"id,omitempty"`
	Seq       int64                   `json:"seq"`
	Room      string                  `json:"room"`
	Sender    string                  `json:"sender"`
	Body      string                  `json:"body"`
	CreatedAt time.Time               `json:"createdAt"`
	ReadBy    []string                `json:"readBy"`
}

func (rec *messageRecord) toDomain() domain.Message {
	return domain.Message{
		ID:        rec.Seq,
		Room:      rec.Room,
		Sender:    rec.Sender,
		Body:      rec.Body,
		CreatedAt: rec.CreatedAt,
		ReadBy:    rec.ReadBy,
	}
}

// FindUser looks a user up by username.
func (s *SurrealStore) FindUser(ctx context.Context, username string) (*domain.User, error) {
	q := "SELECT * FROM user WHERE username = $username"
	user, err := queryOne[domain.User](ctx, s.db, q, map[string]any{"username": username})
	if err != nil {
		return nil, fmt.Errorf("find user %q: %w", username, err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
	}
	return user, nil
}

// GetOrCreateUser returns the named user, creating it on first sight.
func (s *SurrealStore) GetOrCreateUser(ctx context.Context, username string) (*domain.User, error) {
	q := `
		UPSERT type::thing('user', $username) SET
			username = $username,
			createdAt = createdAt OR time::now()
		RETURN AFTER
	`
	user, err := queryOne[domain.User](ctx, s.db, q, map[string]any{"username": username})
	if err != nil {
		return nil, fmt.Errorf("get or create user %q: %w", username, err)
	}
	if user == nil {
		return nil, fmt.Errorf("get or create user %q: empty result", username)
	}
	return user, nil
}

// GetOrCreateRoom returns the named room, creating it lazily. The kind of an
// existing room is never overwritten.
func (s *SurrealStore) GetOrCreateRoom(ctx context.Context, name string, kind domain.RoomKind) (*domain.Room, error) {
	q := `
		UPSERT type::thing('room', $name) SET
			name = $name,
			kind = kind OR $kind,
			participants = participants OR []
		RETURN AFTER
	`
	room, err := queryOne[domain.Room](ctx, s.db, q, map[string]any{"name": name, "kind": string(kind)})
	if err != nil {
		return nil, fmt.Errorf("get or create room %q: %w", name, err)
	}
	if room == nil {
		return nil, fmt.Errorf("get or create room %q: empty result", name)
	}
	return room, nil
}

// AddParticipant records username as a participant of the room.
func (s *SurrealStore) AddParticipant(ctx context.Context, room, username string) error {
	q := `
		UPDATE type::thing('room', $room) SET
			participants = array::union(participants, [$username])
		RETURN AFTER
	`
	updated, err := queryOne[domain.Room](ctx, s.db, q, map[string]any{"room": room, "username": username})
	if err != nil {
		return fmt.Errorf("add participant %q to room %q: %w", username, room, err)
	}
	if updated == nil {
		return fmt.Errorf("room %q: %w", room, domain.ErrNotFound)
	}
	return nil
}

// counterRecord mirrors the counter:message row used for sequence allocation.
type counterRecord struct {
	Value int64 `json:"value"`
}

// nextMessageSeq atomically allocates the next message sequence number.
func (s *SurrealStore) nextMessageSeq(ctx context.Context) (int64, error) {
	q := "UPSERT counter:message SET value = (value OR 0) + 1 RETURN AFTER"
	counter, err := queryOne[counterRecord](ctx, s.db, q, nil)
	if err != nil {
		return 0, err
	}
	if counter == nil {
		return 0, fmt.Errorf("message counter: empty result")
	}
	return counter.Value, nil
}

// CreateMessage persists a message with the sender pre-added to its reader set.
func (s *SurrealStore) CreateMessage(ctx context.Context, room, sender, body string) (*domain.Message, error) {
	if _, err := s.FindUser(ctx, sender); err != nil {
		return nil, err
	}
	roomExists, err := queryOne[domain.Room](ctx, s.db, "SELECT * FROM type::thing('room', $room)", map[string]any{"room": room})
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	if roomExists == nil {
		return nil, fmt.Errorf("room %q: %w", room, domain.ErrNotFound)
	}

	seq, err := s.nextMessageSeq(ctx)
	if err != nil {
		return nil, fmt.Errorf("create message: %w: %v", domain.ErrStorage, err)
	}

	q := `
		CREATE type::thing('message', $seq) CONTENT {
			seq: $seq,
			room: $room,
			sender: $sender,
			body: $body,
			createdAt: time::now(),
			readBy: [$sender]
		} RETURN AFTER
	`
	params := map[string]any{"seq": seq, "room": room, "sender": sender, "body": body}
	rec, err := queryOne[messageRecord](ctx, s.db, q, params)
	if err != nil || rec == nil {
		return nil, fmt.Errorf("create message in room %q: %w: %v", room, domain.ErrStorage, err)
	}

	msg := rec.toDomain()
	return &msg, nil
}

// MarkRead adds username to the message's reader set, idempotently.
func (s *SurrealStore) MarkRead(ctx context.Context, messageID int64, username string) error {
	if _, err := s.FindUser(ctx, username); err != nil {
		return err
	}

	q := `
		UPDATE type::thing('message', $seq) SET
			readBy = array::union(readBy, [$username])
		RETURN AFTER
	`
	updated, err := queryOne[messageRecord](ctx, s.db, q, map[string]any{"seq": messageID, "username": username})
	if err != nil {
		return fmt.Errorf("mark message %d read: %w", messageID, err)
	}
	if updated == nil {
		return fmt.Errorf("message %d: %w", messageID, domain.ErrNotFound)
	}
	return nil
}

// MarkRoomRead marks every message in the room that username has not read
// and did not author. A missing room yields an empty result: absence is an
// expected case for a just-joined connection, not an error.
func (s *SurrealStore) MarkRoomRead(ctx context.Context, room, username string) ([]int64, error) {
	q := `
		UPDATE message SET
			readBy = array::union(readBy, [$username])
		WHERE room = $room AND sender != $username AND readBy CONTAINSNOT $username
		RETURN AFTER
	`
	updated, err := query[messageRecord](ctx, s.db, q, map[string]any{"room": room, "username": username})
	if err != nil {
		return nil, fmt.Errorf("mark room %q read: %w", room, err)
	}

	ids := make([]int64, 0, len(updated))
	for i := range updated {
		ids = append(ids, updated[i].Seq)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// countRecord mirrors a SELECT count() ... GROUP ALL result.
type countRecord struct {
	Count int `json:"count"`
}

// UnreadCount counts messages in the room neither authored nor read by username.
func (s *SurrealStore) UnreadCount(ctx context.Context, room, username string) (int, error) {
	q := `
		SELECT count() FROM message
		WHERE room = $room AND sender != $username AND readBy CONTAINSNOT $username
		GROUP ALL
	`
	result, err := queryOne[countRecord](ctx, s.db, q, map[string]any{"room": room, "username": username})
	if err != nil {
		return 0, fmt.Errorf("unread count for room %q: %w", room, err)
	}
	if result == nil {
		return 0, nil
	}
	return result.Count, nil
}

// RoomMessages returns the room's messages in creation order.
func (s *SurrealStore) RoomMessages(ctx context.Context, room string) ([]domain.Message, error) {
	q := "SELECT * FROM message WHERE room = $room ORDER BY seq ASC"
	records, err := query[messageRecord](ctx, s.db, q, map[string]any{"room": room})
	if err != nil {
		return nil, fmt.Errorf("messages for room %q: %w", room, err)
	}

	messages := make([]domain.Message, 0, len(records))
	for i := range records {
		messages = append(messages, records[i].toDomain())
	}
	return messages, nil
}
