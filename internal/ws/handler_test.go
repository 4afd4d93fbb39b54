package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajyaabhishek/LawX-sub001/internal/models"
)

type mapResolver map[string]string

func (m mapResolver) Resolve(_ context.Context, id string) (string, error) {
	if canonical, ok := m[id]; ok {
		return canonical, nil
	}
	return "", errors.New("unknown user")
}

type staticVerifier map[string]string

func (v staticVerifier) Subject(token string) (string, error) {
	if sub, ok := v[token]; ok {
		return sub, nil
	}
	return "", errors.New("bad token")
}

type participants map[string][]string

func (p participants) IsParticipant(_ context.Context, conversationID, userID string) (bool, error) {
	for _, id := range p[conversationID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

type recordingReconciler struct {
	mu    sync.Mutex
	users []string
}

func (r *recordingReconciler) Reconcile(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.users = append(r.users, userID)
}

func (r *recordingReconciler) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.users...)
}

type wsFixture struct {
	server     *httptest.Server
	registry   *Registry
	reconciler *recordingReconciler
}

func newWSFixture(t *testing.T, verifier TokenVerifier) *wsFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := NewRegistry()
	reconciler := &recordingReconciler{}
	resolver := mapResolver{"alice": "alice", "bob": "bob", "ext_alice": "alice"}
	convs := participants{"c1": {"alice", "bob"}}
	handler := NewHandler(registry, resolver, verifier, convs, reconciler, Options{
		IdleTimeout:    5 * time.Second,
		SendBuffer:     16,
		TypingInterval: time.Minute,
	})

	r := gin.New()
	r.GET("/ws", handler.Handle)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &wsFixture{server: srv, registry: registry, reconciler: reconciler}
}

func (f *wsFixture) dial(t *testing.T, query string, header http.Header) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readUntil(t *testing.T, conn *websocket.Conn, want models.EventType) models.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var ev models.Event
		require.NoError(t, conn.ReadJSON(&ev))
		if ev.Type == want {
			return ev
		}
	}
}

// syncConn waits until every frame sent before it has been handled.
func syncConn(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(models.ClientEvent{Type: models.EventOnlineUsers}))
	readUntil(t, conn, models.EventOnlineUsers)
}

func TestHandle_RejectsBadHandshakes(t *testing.T) {
	f := newWSFixture(t, staticVerifier{"good": "ext_alice"})

	tests := []struct {
		name   string
		query  string
		header http.Header
		status int
	}{
		{"missing user id", "", nil, http.StatusBadRequest},
		{"unknown user", "userId=mallory&token=good", nil, http.StatusUnauthorized},
		{"missing token", "userId=alice", nil, http.StatusUnauthorized},
		{"invalid token", "userId=alice&token=bad", nil, http.StatusUnauthorized},
		{"token for someone else", "userId=bob&token=good", nil, http.StatusUnauthorized},
		{"malformed header", "userId=alice", http.Header{"Authorization": {"Token good"}}, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws?" + tt.query
			_, resp, err := websocket.DefaultDialer.Dial(url, tt.header)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
	assert.Empty(t, f.registry.OnlineUsers())
}

func TestHandle_ConnectWithToken(t *testing.T) {
	f := newWSFixture(t, staticVerifier{"good": "ext_alice"})

	conn := f.dial(t, "userId=ext_alice", http.Header{"Authorization": {"Bearer good"}})

	list := readUntil(t, conn, models.EventOnlineUsers)
	assert.Equal(t, []string{"alice"}, list.OnlineUsers)
	assert.Eventually(t, func() bool {
		return len(f.reconciler.calls()) == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"alice"}, f.reconciler.calls())
}

func TestHandle_DisconnectUnregisters(t *testing.T) {
	f := newWSFixture(t, nil)

	conn := f.dial(t, "userId=alice", nil)
	readUntil(t, conn, models.EventOnlineUsers)
	require.True(t, f.registry.IsOnline("alice"))

	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	conn.Close()

	assert.Eventually(t, func() bool {
		return !f.registry.IsOnline("alice")
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHandle_TypingIsRelayedAndThrottled(t *testing.T) {
	f := newWSFixture(t, nil)

	alice := f.dial(t, "userId=alice", nil)
	readUntil(t, alice, models.EventOnlineUsers)
	bob := f.dial(t, "userId=bob", nil)
	readUntil(t, bob, models.EventOnlineUsers)

	for _, conn := range []*websocket.Conn{alice, bob} {
		require.NoError(t, conn.WriteJSON(models.ClientEvent{Type: models.EventJoinConversation, ConversationID: "c1"}))
		syncConn(t, conn)
	}

	require.NoError(t, alice.WriteJSON(models.ClientEvent{Type: models.EventTyping, ConversationID: "c1", IsTyping: true}))
	require.NoError(t, alice.WriteJSON(models.ClientEvent{Type: models.EventTyping, ConversationID: "c1", IsTyping: true}))
	require.NoError(t, alice.WriteJSON(models.ClientEvent{Type: models.EventTyping, ConversationID: "c1", IsTyping: false}))

	first := readUntil(t, bob, models.EventTyping)
	require.NotNil(t, first.IsTyping)
	assert.True(t, *first.IsTyping)
	assert.Equal(t, "alice", first.UserID)
	assert.Equal(t, "c1", first.ConversationID)

	second := readUntil(t, bob, models.EventTyping)
	require.NotNil(t, second.IsTyping)
	assert.False(t, *second.IsTyping, "the repeated start within the interval is dropped")
}

func TestHandle_EventErrors(t *testing.T) {
	f := newWSFixture(t, nil)
	conn := f.dial(t, "userId=bob", nil)
	readUntil(t, conn, models.EventOnlineUsers)

	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{"malformed", `{not json`, "malformed event"},
		{"unknown type", `{"type":"deleteEverything"}`, "unknown event type"},
		{"typing outside room", `{"type":"typing","conversation_id":"c1","is_typing":true}`, "join the conversation first"},
		{"join foreign conversation", `{"type":"joinConversation","conversation_id":"c2"}`, "not a participant"},
		{"join without id", `{"type":"joinConversation"}`, "conversation_id is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)))
			ev := readUntil(t, conn, models.EventError)
			assert.Equal(t, tt.want, ev.Error)
		})
	}
	assert.False(t, f.registry.InRoom("bob", ConversationRoom("c2")))
}
