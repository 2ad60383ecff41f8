package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/nfrund/parley/internal/domain"
)

// MemoryStore implements domain.ChatGateway entirely in process. It backs
// the test suite and the storage-less development mode; the SurrealDB store
// is the production implementation.
//
// All read-modify-write operations on a message's reader set happen under
// the store mutex, which preserves the monotonic-reader-set invariant under
// concurrent read receipts.
type MemoryStore struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	rooms    map[string]*domain.Room
	messages map[int64]*domain.Message
	nextSeq  int64
}

// NewMemoryStore creates an empty in-memory gateway.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:    make(map[string]*domain.User),
		rooms:    make(map[string]*domain.Room),
		messages: make(map[int64]*domain.Message),
	}
}

var _ domain.ChatGateway = (*MemoryStore)(nil)

// FindUser looks a user up by username.
func (s *MemoryStore) FindUser(ctx context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
	}
	u := *user
	return &u, nil
}

// GetOrCreateUser returns the named user, creating it on first sight.
func (s *MemoryStore) GetOrCreateUser(ctx context.Context, username string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[username]
	if !ok {
		user = &domain.User{Username: username, CreatedAt: time.Now().UTC()}
		s.users[username] = user
	}
	u := *user
	return &u, nil
}

// GetOrCreateRoom returns the named room, creating it lazily. The kind of an
// existing room is never overwritten.
func (s *MemoryStore) GetOrCreateRoom(ctx context.Context, name string, kind domain.RoomKind) (*domain.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, ok := s.rooms[name]
	if !ok {
		room = &domain.Room{Name: name, Kind: kind}
		s.rooms[name] = room
	}
	r := *room
	r.Participants = append([]string(nil), room.Participants...)
	return &r, nil
}

// AddParticipant records username as a participant of the room.
func (s *MemoryStore) AddParticipant(ctx context.Context, room, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[room]
	if !ok {
		return fmt.Errorf("room %q: %w", room, domain.ErrNotFound)
	}
	for _, p := range r.Participants {
		if p == username {
			return nil
		}
	}
	r.Participants = append(r.Participants, username)
	return nil
}

// CreateMessage persists a message with the sender pre-added to its reader set.
func (s *MemoryStore) CreateMessage(ctx context.Context, room, sender, body string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[sender]; !ok {
		return nil, fmt.Errorf("user %q: %w", sender, domain.ErrNotFound)
	}
	if _, ok := s.rooms[room]; !ok {
		return nil, fmt.Errorf("room %q: %w", room, domain.ErrNotFound)
	}

	s.nextSeq++
	msg := &domain.Message{
		ID:        s.nextSeq,
		Room:      room,
		Sender:    sender,
		Body:      body,
		CreatedAt: time.Now().UTC(),
		ReadBy:    []string{sender},
	}
	s.messages[msg.ID] = msg

	out := *msg
	out.ReadBy = append([]string(nil), msg.ReadBy...)
	return &out, nil
}

// MarkRead adds username to the message's reader set, idempotently.
func (s *MemoryStore) MarkRead(ctx context.Context, messageID int64, username string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[username]; !ok {
		return fmt.Errorf("user %q: %w", username, domain.ErrNotFound)
	}
	msg, ok := s.messages[messageID]
	if !ok {
		return fmt.Errorf("message %d: %w", messageID, domain.ErrNotFound)
	}
	if !msg.HasReader(username) {
		msg.ReadBy = append(msg.ReadBy, username)
	}
	return nil
}

// MarkRoomRead marks every message in the room that username has not read
// and did not author. An absent room yields an empty result, not an error.
func (s *MemoryStore) MarkRoomRead(ctx context.Context, room, username string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rooms[room]; !ok {
		return nil, nil
	}

	var ids []int64
	for _, msg := range s.messages {
		if msg.Room != room || msg.Sender == username || msg.HasReader(username) {
			continue
		}
		msg.ReadBy = append(msg.ReadBy, username)
		ids = append(ids, msg.ID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// UnreadCount counts messages in the room neither authored nor read by username.
func (s *MemoryStore) UnreadCount(ctx context.Context, room, username string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, msg := range s.messages {
		if msg.Room == room && msg.Sender != username && !msg.HasReader(username) {
			count++
		}
	}
	return count, nil
}

// RoomMessages returns the room's messages in creation order.
func (s *MemoryStore) RoomMessages(ctx context.Context, room string) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Message
	for _, msg := range s.messages {
		if msg.Room != room {
			continue
		}
		m := *msg
		m.ReadBy = append([]string(nil), msg.ReadBy...)
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
