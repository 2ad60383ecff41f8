package chat

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/metrics"
	"github.com/nfrund/parley/internal/registry"
)

// State is the lifecycle phase of a connection session.
type State int32

const (
	// StateConnecting covers the join/negotiation sequence.
	StateConnecting State = iota
	// StateActive is the steady event-pumping phase.
	StateActive
	// StateClosed is terminal.
	StateClosed
)

const (
	// sendQueueSize is the per-session outbound buffer. A session that falls
	// this far behind starts losing broadcasts rather than blocking the room.
	sendQueueSize = 256

	// writeWait is the time allowed to write one payload to the peer.
	writeWait = 10 * time.Second
)

// Session owns one WebSocket connection for its whole lifetime:
// Connecting → Active → Closed. The Room Registry holds only a non-owning
// member reference, removed again on disconnect.
type Session struct {
	id       string
	user     *domain.User
	room     string
	conn     *websocket.Conn
	store    domain.ChatGateway
	registry *registry.Registry
	router   *Router
	counter  *metrics.Connections

	member *registry.Member
	state  atomic.Int32
	joined bool
}

// NewSession wraps an accepted connection for user, targeting room.
func NewSession(conn *websocket.Conn, user *domain.User, room string,
	store domain.ChatGateway, reg *registry.Registry, router *Router,
	counter *metrics.Connections) *Session {

	return &Session{
		id:       uuid.NewString(),
		user:     user,
		room:     room,
		conn:     conn,
		store:    store,
		registry: reg,
		router:   router,
		counter:  counter,
		member: &registry.Member{
			ID:     uuid.NewString(),
			UserID: user.Username,
			Send:   make(chan []byte, sendQueueSize),
		},
	}
}

// State returns the session's current lifecycle phase.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Run drives the session until the peer disconnects or setup fails. Errors
// never propagate to the caller: a session that cannot come up is closed
// gracefully, and per-event errors during the active phase are logged and
// swallowed so one bad event cannot take the connection down.
func (s *Session) Run(ctx context.Context) {
	s.counter.Opened()
	defer s.close()

	if err := s.negotiate(ctx); err != nil {
		slog.Error("Session setup failed, closing connection",
			"connID", s.id, "userID", s.user.Username, "room", s.room, "error", err)
		return
	}

	s.state.Store(int32(StateActive))
	slog.Info("Session active", "connID", s.id, "userID", s.user.Username, "room", s.room)

	pumpCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.writePump(pumpCtx)
	s.readPump(pumpCtx)
}

// negotiate performs the Connecting → Active sequence: ensure the room
// exists, join its broadcast group, and run the entry mark-room-read (which
// broadcasts a bulk_read when it actually marked anything). Any failure
// here sends the session straight to Closed.
func (s *Session) negotiate(ctx context.Context) error {
	if _, err := s.store.GetOrCreateRoom(ctx, s.room, RoomKindOf(s.room)); err != nil {
		return err
	}
	if s.room != domain.LobbyRoom {
		if err := s.store.AddParticipant(ctx, s.room, s.user.Username); err != nil {
			return err
		}
	}

	if err := s.registry.Join(s.room, s.member); err != nil {
		return err
	}
	s.joined = true

	return s.router.MarkRoomRead(ctx, s.room, s.user.Username)
}

// readPump reads inbound events until the transport reports a disconnect.
// There is at most one reader per connection.
func (s *Session) readPump(ctx context.Context) {
	for {
		_, raw, err := s.conn.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				slog.Info("WebSocket closed normally by client", "connID", s.id, "userID", s.user.Username)
			} else if err != io.EOF && ctx.Err() == nil {
				slog.Error("WebSocket read error", "connID", s.id, "userID", s.user.Username, "error", err)
			}
			return
		}

		if err := s.router.Dispatch(ctx, s.room, s.user.Username, raw); err != nil {
			// One bad event never closes the connection.
			slog.Warn("Dropped inbound event",
				"connID", s.id, "userID", s.user.Username, "room", s.room, "error", err)
		}
	}
}

// writePump forwards queued broadcast payloads to the peer. At most one
// writer per connection.
func (s *Session) writePump(ctx context.Context) {
	for {
		select {
		case payload := <-s.member.Send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := s.conn.Write(writeCtx, websocket.MessageText, payload)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					slog.Error("WebSocket write error", "connID", s.id, "userID", s.user.Username, "error", err)
				}
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// close is the single Closed-entry point; safe to call from any state. A
// session that never joined skips the registry leave, and a leave that
// cannot reach the registry must never block local teardown.
func (s *Session) close() {
	prev := s.state.Swap(int32(StateClosed))
	if State(prev) == StateClosed {
		return
	}

	if s.joined {
		s.registry.Leave(s.member)
	}
	s.counter.Closed()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	slog.Info("Session closed", "connID", s.id, "userID", s.user.Username, "room", s.room)
}
