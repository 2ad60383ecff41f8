package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/nfrund/parley/internal/chat"
	"github.com/nfrund/parley/internal/storage"
	"github.com/nfrund/parley/internal/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testEnv is a fully wired server on an in-memory gateway, listening on an
// ephemeral port.
type testEnv struct {
	srv   *Server
	ts    *httptest.Server
	store *storage.MemoryStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := testutils.ConfigForTests(t)
	store := storage.NewMemoryStore()

	s := newServer(cfg, nil, store)
	s.RegisterRoutes()

	ts := httptest.NewServer(s.E)
	t.Cleanup(ts.Close)

	return &testEnv{srv: s, ts: ts, store: store}
}

// loginClient logs username in and returns an HTTP client whose cookie jar
// carries the session.
func (env *testEnv) loginClient(t *testing.T, username string) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	resp, err := client.Post(env.ts.URL+"/auth/login", contentTypeJSON,
		strings.NewReader(fmt.Sprintf(`{"username":%q}`, username)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	return client
}

const contentTypeJSON = "application/json"

// dial opens an authenticated WebSocket to path.
func (env *testEnv) dial(t *testing.T, client *http.Client, path string) *gorillaws.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + path

	dialer := gorillaws.Dialer{Jar: client.Jar}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readEvent reads and decodes the next JSON event from the connection.
func readEvent(t *testing.T, conn *gorillaws.Conn) map[string]any {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev map[string]any
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func sendEvent(t *testing.T, conn *gorillaws.Conn, ev any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ev))
}

// waitForRoomSize blocks until the room's registry group reaches n members.
func (env *testEnv) waitForRoomSize(t *testing.T, room string, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return env.srv.Registry().RoomSize(room) == n
	}, 3*time.Second, 10*time.Millisecond, "room %q never reached %d members", room, n)
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIRequiresAuthentication(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + "/api/rooms/general/unread")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	client := env.loginClient(t, "alice")
	resp, err = client.Get(env.ts.URL + "/api/rooms/general/unread")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestGroupChatFlow(t *testing.T) {
	env := newTestEnv(t)

	alice := env.loginClient(t, "alice")
	bob := env.loginClient(t, "bob")

	aliceConn := env.dial(t, alice, "/ws/chat/group/general")
	bobConn := env.dial(t, bob, "/ws/chat/group/general")
	env.waitForRoomSize(t, "general", 2)

	sendEvent(t, aliceConn, map[string]any{"type": "chat_message", "message": "hello room"})

	for _, conn := range []*gorillaws.Conn{aliceConn, bobConn} {
		ev := readEvent(t, conn)
		assert.Equal(t, "chat_message", ev["type"])
		assert.Equal(t, "hello room", ev["message"])
		assert.Equal(t, "alice", ev["username"])
	}

	// Typing indicators pass through without persistence.
	sendEvent(t, bobConn, map[string]any{"type": "typing", "is_typing": true})
	ev := readEvent(t, aliceConn)
	assert.Equal(t, "typing", ev["type"])
	assert.Equal(t, "bob", ev["username"])
}

func TestRoomEntryMarksHistoryRead(t *testing.T) {
	env := newTestEnv(t)

	alice := env.loginClient(t, "alice")
	aliceConn := env.dial(t, alice, "/ws/chat/group/general")
	env.waitForRoomSize(t, "general", 1)

	sendEvent(t, aliceConn, map[string]any{"message": "before charlie arrives"})
	ev := readEvent(t, aliceConn)
	require.Equal(t, "chat_message", ev["type"])

	// Joining the room marks everything unread as read and announces it.
	charlie := env.loginClient(t, "charlie")
	env.dial(t, charlie, "/ws/chat/group/general")

	ev = readEvent(t, aliceConn)
	assert.Equal(t, "bulk_read", ev["type"])
	assert.Equal(t, "charlie", ev["username"])
	assert.Len(t, ev["message_ids"], 1)

	resp, err := charlie.Get(env.ts.URL + "/api/rooms/general/unread")
	require.NoError(t, err)
	defer resp.Body.Close()
	var unread struct {
		Unread int `json:"unread"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&unread))
	assert.Zero(t, unread.Unread)
}

func TestDirectChatFlow(t *testing.T) {
	env := newTestEnv(t)

	alice := env.loginClient(t, "alice")
	bob := env.loginClient(t, "bob")
	room := chat.DirectRoomName("alice", "bob")

	// Either side may initiate; both land in the same room.
	aliceConn := env.dial(t, alice, "/ws/chat/private/bob")
	bobConn := env.dial(t, bob, "/ws/chat/private/alice")
	env.waitForRoomSize(t, room, 2)

	sendEvent(t, aliceConn, map[string]any{"message": "just for you"})

	ev := readEvent(t, bobConn)
	assert.Equal(t, "chat_message", ev["type"])
	assert.Equal(t, "just for you", ev["message"])

	// Receiving a broadcast is not reading: bob still has one unread.
	resp, err := bob.Get(env.ts.URL + "/api/unread/alice")
	require.NoError(t, err)
	defer resp.Body.Close()
	var unread struct {
		Room   string `json:"room"`
		Unread int    `json:"unread"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&unread))
	assert.Equal(t, room, unread.Room)
	assert.Equal(t, 1, unread.Unread)

	// Explicit mark-all-read announces the transition to the room.
	sendEvent(t, bobConn, map[string]any{"type": "mark_read"})

	ev = readEvent(t, aliceConn)
	require.Equal(t, "chat_message", ev["type"]) // alice's own echo first
	ev = readEvent(t, aliceConn)
	assert.Equal(t, "bulk_read", ev["type"])
	assert.Equal(t, "bob", ev["username"])
}

func TestDirectChatRejectsUnknownPeer(t *testing.T) {
	env := newTestEnv(t)
	alice := env.loginClient(t, "alice")

	wsURL := "ws" + strings.TrimPrefix(env.ts.URL, "http") + "/ws/chat/private/nobody"
	dialer := gorillaws.Dialer{Jar: alice.Jar}
	conn, resp, err := dialer.Dial(wsURL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	require.Error(t, err)
	require.Nil(t, conn)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestLobbyReceivesGroupNotifications(t *testing.T) {
	env := newTestEnv(t)

	carol := env.loginClient(t, "carol")
	carolConn := env.dial(t, carol, "/ws/chat/lobby")
	env.waitForRoomSize(t, "lobby", 1)

	alice := env.loginClient(t, "alice")
	aliceConn := env.dial(t, alice, "/ws/chat/group/general")
	env.waitForRoomSize(t, "general", 1)

	sendEvent(t, aliceConn, map[string]any{"message": "news"})

	ev := readEvent(t, carolConn)
	assert.Equal(t, "notification", ev["type"])
	assert.Equal(t, "alice", ev["sender"])
	assert.Equal(t, "general", ev["room_name"])
	assert.Equal(t, "group", ev["room_type"])
}

func TestDisconnectLeavesRoomAndUpdatesStats(t *testing.T) {
	env := newTestEnv(t)

	alice := env.loginClient(t, "alice")
	bob := env.loginClient(t, "bob")
	env.dial(t, alice, "/ws/chat/group/general")
	bobConn := env.dial(t, bob, "/ws/chat/group/general")
	env.waitForRoomSize(t, "general", 2)

	require.NoError(t, bobConn.Close())
	env.waitForRoomSize(t, "general", 1)

	require.Eventually(t, func() bool {
		resp, err := alice.Get(env.ts.URL + "/api/stats")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var stats struct {
			Active int64 `json:"activeConnections"`
			Total  int64 `json:"totalConnections"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
			return false
		}
		return stats.Active == 1 && stats.Total == 2
	}, 3*time.Second, 20*time.Millisecond)
}

func TestMalformedEventDoesNotKillSession(t *testing.T) {
	env := newTestEnv(t)

	alice := env.loginClient(t, "alice")
	aliceConn := env.dial(t, alice, "/ws/chat/group/general")
	env.waitForRoomSize(t, "general", 1)

	// A chat_message without its body is dropped, the session survives.
	sendEvent(t, aliceConn, map[string]any{"type": "chat_message"})
	sendEvent(t, aliceConn, map[string]any{"message": "still alive"})

	ev := readEvent(t, aliceConn)
	assert.Equal(t, "chat_message", ev["type"])
	assert.Equal(t, "still alive", ev["message"])
}
