package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/nfrund/parley/internal/domain"
	"github.com/nfrund/parley/internal/pubsub"
	"github.com/nfrund/parley/internal/registry"
	"github.com/nfrund/parley/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// routerFixture wires a Router to a real in-memory backbone with one
// listening member in the room under test and one in the lobby, so tests
// can observe exactly what gets broadcast where.
type routerFixture struct {
	store  *storage.MemoryStore
	router *Router
	room   chan []byte
	lobby  chan []byte
}

func newRouterFixture(t *testing.T, room string) *routerFixture {
	t.Helper()
	ctx := context.Background()

	bridge := pubsub.NewWatermillBridge()
	t.Cleanup(func() { _ = bridge.Close() })

	reg := registry.New(bridge, bridge)
	reg.Start(ctx)

	roomMember := &registry.Member{ID: "room-listener", UserID: "listener", Send: make(chan []byte, 16)}
	require.NoError(t, reg.Join(room, roomMember))

	lobbyMember := &registry.Member{ID: "lobby-listener", UserID: "listener", Send: make(chan []byte, 16)}
	require.NoError(t, reg.Join(domain.LobbyRoom, lobbyMember))

	store := storage.NewMemoryStore()
	for _, username := range []string{"alice", "bob"} {
		_, err := store.GetOrCreateUser(ctx, username)
		require.NoError(t, err)
	}
	_, err := store.GetOrCreateRoom(ctx, room, RoomKindOf(room))
	require.NoError(t, err)

	return &routerFixture{
		store:  store,
		router: NewRouter(store, NewFanout(reg)),
		room:   roomMember.Send,
		lobby:  lobbyMember.Send,
	}
}

// recvEvent waits for one broadcast payload and decodes it.
func recvEvent(t *testing.T, ch chan []byte) map[string]any {
	t.Helper()
	select {
	case payload := <-ch:
		var ev map[string]any
		require.NoError(t, json.Unmarshal(payload, &ev))
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return nil
	}
}

// assertNoEvent asserts that nothing arrives on ch for a short window.
func assertNoEvent(t *testing.T, ch chan []byte) {
	t.Helper()
	select {
	case payload := <-ch:
		t.Fatalf("unexpected broadcast: %s", payload)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDispatchChatMessageStoresAndBroadcasts(t *testing.T) {
	f := newRouterFixture(t, "general")
	ctx := context.Background()

	err := f.router.Dispatch(ctx, "general", "alice", []byte(`{"type":"chat_message","message":"hello"}`))
	require.NoError(t, err)

	ev := recvEvent(t, f.room)
	assert.Equal(t, EventChatMessage, ev["type"])
	assert.Equal(t, "hello", ev["message"])
	assert.Equal(t, "alice", ev["username"])
	assert.EqualValues(t, 1, ev["id"])

	// The sender never counts as an unread reader of their own message.
	messages, err := f.store.RoomMessages(ctx, "general")
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, []string{"alice"}, messages[0].ReadBy)
}

func TestDispatchDefaultsToChatMessage(t *testing.T) {
	f := newRouterFixture(t, "general")

	err := f.router.Dispatch(context.Background(), "general", "alice", []byte(`{"message":"no type field"}`))
	require.NoError(t, err)

	ev := recvEvent(t, f.room)
	assert.Equal(t, EventChatMessage, ev["type"])
}

func TestGroupMessageNotifiesLobbyWithRoomName(t *testing.T) {
	f := newRouterFixture(t, "general")

	err := f.router.Dispatch(context.Background(), "general", "alice", []byte(`{"message":"hi"}`))
	require.NoError(t, err)

	ev := recvEvent(t, f.lobby)
	assert.Equal(t, EventNotification, ev["type"])
	assert.Equal(t, "alice", ev["sender"])
	assert.Equal(t, "general", ev["room_name"])
	assert.Equal(t, string(domain.RoomGroup), ev["room_type"])
	assert.NotContains(t, ev, "target_user")
}

func TestDirectMessageNotifiesLobbyWithTargetUser(t *testing.T) {
	room := DirectRoomName("alice", "bob")
	f := newRouterFixture(t, room)

	err := f.router.Dispatch(context.Background(), room, "alice", []byte(`{"message":"psst"}`))
	require.NoError(t, err)

	ev := recvEvent(t, f.lobby)
	assert.Equal(t, EventNotification, ev["type"])
	assert.Equal(t, "alice", ev["sender"])
	assert.Equal(t, "bob", ev["target_user"])
	assert.Equal(t, string(domain.RoomDirect), ev["room_type"])
	assert.NotContains(t, ev, "room_name")
}

func TestLobbyMessageProducesNoNotification(t *testing.T) {
	f := newRouterFixture(t, domain.LobbyRoom)

	err := f.router.Dispatch(context.Background(), domain.LobbyRoom, "alice", []byte(`{"message":"hi all"}`))
	require.NoError(t, err)

	ev := recvEvent(t, f.lobby)
	assert.Equal(t, EventChatMessage, ev["type"])
	assertNoEvent(t, f.lobby)
}

func TestDispatchTyping(t *testing.T) {
	f := newRouterFixture(t, "general")
	ctx := context.Background()

	err := f.router.Dispatch(ctx, "general", "alice", []byte(`{"type":"typing"}`))
	require.NoError(t, err)

	ev := recvEvent(t, f.room)
	assert.Equal(t, EventTyping, ev["type"])
	assert.Equal(t, "alice", ev["username"])
	assert.Equal(t, true, ev["is_typing"])

	err = f.router.Dispatch(ctx, "general", "alice", []byte(`{"type":"typing","is_typing":false}`))
	require.NoError(t, err)

	ev = recvEvent(t, f.room)
	assert.Equal(t, false, ev["is_typing"])

	// Typing is ephemeral: nothing may be persisted.
	messages, err := f.store.RoomMessages(ctx, "general")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestDispatchReadReceipt(t *testing.T) {
	f := newRouterFixture(t, "general")
	ctx := context.Background()

	msg, err := f.store.CreateMessage(ctx, "general", "alice", "read me")
	require.NoError(t, err)

	err = f.router.Dispatch(ctx, "general", "bob", []byte(`{"type":"read_receipt","message_id":1}`))
	require.NoError(t, err)

	ev := recvEvent(t, f.room)
	assert.Equal(t, EventReadReceipt, ev["type"])
	assert.Equal(t, "bob", ev["username"])
	assert.EqualValues(t, msg.ID, ev["message_id"])

	messages, err := f.store.RoomMessages(ctx, "general")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, messages[0].ReadBy)

	// Marking a second time must not shrink or duplicate the reader set.
	err = f.router.Dispatch(ctx, "general", "bob", []byte(`{"type":"read_receipt","message_id":1}`))
	require.NoError(t, err)
	recvEvent(t, f.room)

	messages, err = f.store.RoomMessages(ctx, "general")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, messages[0].ReadBy)
}

func TestMarkRoomRead(t *testing.T) {
	f := newRouterFixture(t, "general")
	ctx := context.Background()

	for _, body := range []string{"one", "two"} {
		_, err := f.store.CreateMessage(ctx, "general", "alice", body)
		require.NoError(t, err)
	}
	_, err := f.store.CreateMessage(ctx, "general", "bob", "mine")
	require.NoError(t, err)

	err = f.router.MarkRoomRead(ctx, "general", "bob")
	require.NoError(t, err)

	// Only alice's messages transition; bob's own message is already read.
	ev := recvEvent(t, f.room)
	assert.Equal(t, EventBulkRead, ev["type"])
	assert.Equal(t, "bob", ev["username"])
	assert.ElementsMatch(t, []any{float64(1), float64(2)}, ev["message_ids"])

	unread, err := f.store.UnreadCount(ctx, "general", "bob")
	require.NoError(t, err)
	assert.Zero(t, unread)

	// A second pass finds nothing unread and must stay silent.
	err = f.router.MarkRoomRead(ctx, "general", "bob")
	require.NoError(t, err)
	assertNoEvent(t, f.room)
}

func TestMarkRoomReadViaInboundEvent(t *testing.T) {
	f := newRouterFixture(t, "general")
	ctx := context.Background()

	_, err := f.store.CreateMessage(ctx, "general", "alice", "unread")
	require.NoError(t, err)

	err = f.router.Dispatch(ctx, "general", "bob", []byte(`{"type":"mark_read"}`))
	require.NoError(t, err)

	ev := recvEvent(t, f.room)
	assert.Equal(t, EventBulkRead, ev["type"])
}

func TestMarkRoomReadSkipsLobby(t *testing.T) {
	f := newRouterFixture(t, domain.LobbyRoom)

	err := f.router.MarkRoomRead(context.Background(), domain.LobbyRoom, "alice")
	require.NoError(t, err)
	assertNoEvent(t, f.lobby)
}

func TestUnknownEventKindIsIgnored(t *testing.T) {
	f := newRouterFixture(t, "general")

	err := f.router.Dispatch(context.Background(), "general", "alice", []byte(`{"type":"presence_ping"}`))
	require.NoError(t, err)
	assertNoEvent(t, f.room)
}

func TestMalformedEventsFailWithoutSideEffects(t *testing.T) {
	f := newRouterFixture(t, "general")
	ctx := context.Background()

	cases := map[string][]byte{
		"invalid json":             []byte(`{not json`),
		"chat without message":     []byte(`{"type":"chat_message"}`),
		"receipt without id":       []byte(`{"type":"read_receipt"}`),
		"username contradiction":   []byte(`{"type":"chat_message","message":"x","username":"mallory"}`),
		"typing identity mismatch": []byte(`{"type":"typing","username":"mallory"}`),
	}

	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			err := f.router.Dispatch(ctx, "general", "alice", raw)
			assert.ErrorIs(t, err, domain.ErrMalformedEvent)
		})
	}

	assertNoEvent(t, f.room)
	messages, err := f.store.RoomMessages(ctx, "general")
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestMatchingPayloadUsernameIsAccepted(t *testing.T) {
	f := newRouterFixture(t, "general")

	err := f.router.Dispatch(context.Background(), "general", "alice",
		[]byte(`{"type":"chat_message","message":"hi","username":"alice"}`))
	require.NoError(t, err)

	ev := recvEvent(t, f.room)
	assert.Equal(t, "alice", ev["username"])
}
