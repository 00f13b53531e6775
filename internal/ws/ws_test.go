package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"supportbot/backend/internal/service"
	apperrors "supportbot/backend/pkg/errors"
	"supportbot/backend/pkg/jwt"
	"supportbot/backend/pkg/logger"
	"supportbot/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type fakeChatter struct {
	mu   sync.Mutex
	reqs []service.ChatRequest
}

func (f *fakeChatter) Chat(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if req.BotID == "missing" {
		return nil, service.ErrBotNotFound
	}
	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = "session-1"
	}
	return &service.ChatResponse{Message: "echo: " + req.Message, SessionID: sessionID, TokensUsed: 3}, nil
}

func (f *fakeChatter) requests() []service.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]service.ChatRequest(nil), f.reqs...)
}

func newServer(t *testing.T, chat Chatter) (*httptest.Server, *Hub, *jwt.Service) {
	t.Helper()
	return newLimitedServer(t, chat, nil)
}

func newLimitedServer(t *testing.T, chat Chatter, limiter TurnLimiter) (*httptest.Server, *Hub, *jwt.Service) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens := jwt.NewService("ws-secret", time.Hour)
	hub := NewHub(chat, limiter, []string{"*"}, logger.Nop())

	r := gin.New()
	r.Use(apperrors.ErrorHandler())
	r.GET("/ws/chat", middleware.JWTAuth(tokens), hub.ServeWs)

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, hub, tokens
}

func dial(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frameType string, content any) {
	t.Helper()
	frame := map[string]any{"type": frameType}
	if content != nil {
		frame["content"] = content
	}
	require.NoError(t, conn.WriteJSON(frame))
}

func receive(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var frame Frame
	require.NoError(t, conn.ReadJSON(&frame))
	var content map[string]any
	if len(frame.Content) > 0 {
		require.NoError(t, json.Unmarshal(frame.Content, &content))
	}
	return frame.Type, content
}

func TestChatOverWebsocket(t *testing.T) {
	chat := &fakeChatter{}
	srv, hub, tokens := newServer(t, chat)
	token, err := tokens.GenerateToken("tenant-1", "widget")
	require.NoError(t, err)

	conn := dial(t, srv, token)

	send(t, conn, FrameChat, map[string]string{"message": "hello", "botId": "B1"})
	typ, content := receive(t, conn)
	require.Equal(t, FrameReply, typ)
	assert.Equal(t, "echo: hello", content["message"])
	assert.Equal(t, "session-1", content["sessionId"])
	assert.Equal(t, 1, hub.ActiveConnections())

	send(t, conn, FrameChat, map[string]string{"message": "again", "botId": "B1"})
	typ, _ = receive(t, conn)
	require.Equal(t, FrameReply, typ)

	reqs := chat.requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "tenant-1", reqs[0].TenantID)
	assert.Empty(t, reqs[0].SessionID)
	assert.Equal(t, "session-1", reqs[1].SessionID, "the connection keeps its session")
}

func TestWebsocketErrorsAndPing(t *testing.T) {
	srv, _, tokens := newServer(t, &fakeChatter{})
	token, err := tokens.GenerateToken("tenant-1", "widget")
	require.NoError(t, err)
	conn := dial(t, srv, token)

	send(t, conn, FramePing, nil)
	typ, _ := receive(t, conn)
	assert.Equal(t, FramePong, typ)

	send(t, conn, FrameChat, map[string]string{"message": "hi", "botId": "missing"})
	typ, content := receive(t, conn)
	require.Equal(t, FrameError, typ)
	assert.Equal(t, "BOT_NOT_FOUND", content["code"])
	assert.NotEmpty(t, content["error"])

	send(t, conn, "shout", nil)
	typ, content = receive(t, conn)
	require.Equal(t, FrameError, typ)
	assert.Equal(t, "UNKNOWN_FRAME", content["code"])
}

func TestTurnsRunInArrivalOrder(t *testing.T) {
	chat := &fakeChatter{}
	srv, _, tokens := newServer(t, chat)
	token, err := tokens.GenerateToken("tenant-1", "widget")
	require.NoError(t, err)
	conn := dial(t, srv, token)

	const n = 30
	want := make([]string, 0, n)
	for i := 0; i < n; i++ {
		msg := strconv.Itoa(i)
		want = append(want, msg)
		send(t, conn, FrameChat, map[string]string{"message": msg, "botId": "B1"})
	}

	require.Eventually(t, func() bool { return len(chat.requests()) == n }, 5*time.Second, 10*time.Millisecond)

	reqs := chat.requests()
	got := make([]string, 0, n)
	for _, r := range reqs {
		got = append(got, r.Message)
	}
	assert.Equal(t, want, got)
	assert.Empty(t, reqs[0].SessionID)
	for _, r := range reqs[1:] {
		assert.Equal(t, "session-1", r.SessionID, "later turns continue the first turn's session")
	}
}

func TestChatFramesAreRateLimited(t *testing.T) {
	limiter := middleware.NewRateLimiter(logger.Nop(), middleware.RateLimiterOptions{
		Limit:          rate.Every(time.Hour),
		Burst:          1,
		ExpiryDuration: time.Hour,
	})
	t.Cleanup(limiter.Stop)

	chat := &fakeChatter{}
	srv, _, tokens := newLimitedServer(t, chat, limiter)
	token, err := tokens.GenerateToken("tenant-1", "widget")
	require.NoError(t, err)
	conn := dial(t, srv, token)

	send(t, conn, FrameChat, map[string]string{"message": "first", "botId": "B1"})
	typ, _ := receive(t, conn)
	require.Equal(t, FrameReply, typ)

	send(t, conn, FrameChat, map[string]string{"message": "second", "botId": "B1"})
	typ, content := receive(t, conn)
	require.Equal(t, FrameError, typ)
	assert.Equal(t, "RATE_LIMITED", content["code"])
	assert.Greater(t, content["retryAfter"], float64(0))

	// a second connection of the same tenant shares the bucket
	other := dial(t, srv, token)
	send(t, other, FrameChat, map[string]string{"message": "third", "botId": "B1"})
	typ, content = receive(t, other)
	require.Equal(t, FrameError, typ)
	assert.Equal(t, "RATE_LIMITED", content["code"])

	reqs := chat.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "first", reqs[0].Message)
}

func TestWebsocketRequiresToken(t *testing.T) {
	srv, _, _ := newServer(t, &fakeChatter{})
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/chat"

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://acme.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws/chat", nil)
	req.Header.Set("Origin", "https://acme.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	assert.True(t, originChecker(nil)(req))
}
