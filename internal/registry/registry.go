// Package registry tracks which connection sessions belong to which room
// group and fans broadcast payloads out to them.
//
// Broadcasts do not touch member channels directly: they are published to
// the pub/sub backbone under a per-room topic, and a registry-owned
// subscription delivers each published payload to the members that are in
// the room at delivery time. This keeps the backbone pluggable (the
// in-memory transport can be replaced by a distributed one) while the
// membership bookkeeping stays local.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/pubsub"
)

// Topic returns the backbone topic carrying broadcasts for a room.
func Topic(room string) string {
	return "room." + room
}

// Member is a non-owning reference to a connection session. The registry
// only ever writes to Send with a non-blocking send; it never closes the
// channel, so a member whose session has already stopped reading is
// silently dropped rather than blocking or panicking the delivery loop.
type Member struct {
	// ID uniquely identifies the connection (not the user; one user may
	// hold several connections).
	ID string
	// UserID is the authenticated identity behind the connection.
	UserID string
	// Send is a buffered channel of outbound payloads, owned by the session.
	Send chan []byte
}

// Registry maintains the room → member groups.
type Registry struct {
	publisher  pubsub.Publisher
	subscriber pubsub.Subscriber

	mu         sync.RWMutex
	rooms      map[string]map[*Member]struct{}
	current    map[*Member]string
	subscribed map[string]bool

	// runCtx bounds the lifetime of room subscriptions.
	runCtx context.Context
}

// New creates a Registry on top of the given backbone.
func New(pub pubsub.Publisher, sub pubsub.Subscriber) *Registry {
	return &Registry{
		publisher:  pub,
		subscriber: sub,
		rooms:      make(map[string]map[*Member]struct{}),
		current:    make(map[*Member]string),
		subscribed: make(map[string]bool),
		runCtx:     context.Background(),
	}
}

// Start binds the registry's room subscriptions to ctx. Must be called
// before the first Join.
func (r *Registry) Start(ctx context.Context) {
	r.mu.Lock()
	r.runCtx = ctx
	r.mu.Unlock()
}

// Join adds m to the named room's group, removing it from any room it
// currently occupies first. A session is a member of at most one room.
func (r *Registry) Join(room string, m *Member) error {
	r.mu.Lock()
	r.removeLocked(m)

	group, ok := r.rooms[room]
	if !ok {
		group = make(map[*Member]struct{})
		r.rooms[room] = group
	}
	group[m] = struct{}{}
	r.current[m] = room

	needSub := !r.subscribed[room]
	if needSub {
		r.subscribed[room] = true
	}
	runCtx := r.runCtx
	r.mu.Unlock()

	if needSub {
		if err := r.subscriber.Subscribe(runCtx, Topic(room), r.deliver(room)); err != nil {
			// Roll back the membership added above; the caller gets an
			// error and will never Leave.
			r.mu.Lock()
			r.subscribed[room] = false
			r.removeLocked(m)
			r.mu.Unlock()
			return fmt.Errorf("subscribe room %q: %w: %v", room, domain.ErrTransportUnavailable, err)
		}
	}

	slog.Debug("Session joined room", "room", room, "connID", m.ID, "userID", m.UserID)
	return nil
}

// Leave removes m from its current group. No-op if m is not in any room.
func (r *Registry) Leave(m *Member) {
	r.mu.Lock()
	room, ok := r.current[m]
	r.removeLocked(m)
	r.mu.Unlock()

	if ok {
		slog.Debug("Session left room", "room", room, "connID", m.ID, "userID", m.UserID)
	}
}

// removeLocked detaches m from whatever room it occupies. Caller holds mu.
func (r *Registry) removeLocked(m *Member) {
	room, ok := r.current[m]
	if !ok {
		return
	}
	delete(r.current, m)
	if group, ok := r.rooms[room]; ok {
		delete(group, m)
	}
}

// Broadcast publishes payload to every session currently in the room's
// group, via the backbone. from is the acting user, carried as message
// metadata for backbone consumers. Delivery is best-effort per target and
// carries no ordering guarantee across rooms.
func (r *Registry) Broadcast(ctx context.Context, room, from string, payload []byte) error {
	err := r.publisher.Publish(ctx, pubsub.Message{
		Topic:   Topic(room),
		UserID:  from,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("broadcast to room %q: %w: %v", room, domain.ErrTransportUnavailable, err)
	}
	return nil
}

// RoomSize reports the number of sessions currently in the room's group.
func (r *Registry) RoomSize(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[room])
}

// deliver returns the backbone handler fanning one room's payloads out to
// its local members. Sends happen under the read lock so membership
// mutation and delivery are mutually exclusive per room; the sends are
// non-blocking, so no lock is ever held across real I/O.
func (r *Registry) deliver(room string) pubsub.Handler {
	return func(ctx context.Context, msg pubsub.Message) error {
		r.mu.RLock()
		defer r.mu.RUnlock()
		for m := range r.rooms[room] {
			select {
			case m.Send <- msg.Payload:
			default:
				// The session stopped draining its queue; it is either
				// closing or stuck. Drop rather than block the room.
				slog.Warn("Dropping payload for slow or closed session", "room", room, "connID", m.ID)
			}
		}
		return nil
	}
}
