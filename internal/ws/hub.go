package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"supportbot/backend/internal/service"
	"supportbot/backend/pkg/logger"
	"supportbot/backend/pkg/middleware"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Chat frames waiting for their turn on one connection
	turnQueueSize = 32
)

// Chatter runs the tenant chat pipeline
type Chatter interface {
	Chat(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error)
}

// TurnLimiter throttles chat frames per key
type TurnLimiter interface {
	Allow(key string) (allowed bool, retryAfter int)
}

// Frame is the envelope for every websocket message in both directions
type Frame struct {
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Frame types
const (
	FrameChat  = "chat"
	FrameReply = "reply"
	FrameError = "error"
	FramePing  = "ping"
	FramePong  = "pong"
)

// chatFrame is the content of a "chat" frame
type chatFrame struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	BotID     string `json:"botId"`
}

// Hub tracks live connections
type Hub struct {
	chat     Chatter
	limiter  TurnLimiter
	log      *logger.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*Client]struct{}
}

// NewHub creates a hub. Every chat frame takes a token from limiter under the
// tenant's key; a nil limiter admits all frames. allowedOrigins of ["*"] or
// empty accepts any origin.
func NewHub(chat Chatter, limiter TurnLimiter, allowedOrigins []string, log *logger.Logger) *Hub {
	h := &Hub{
		chat:    chat,
		limiter: limiter,
		log:     log,
		clients: make(map[*Client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin:      originChecker(allowedOrigins),
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	if len(set) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *Hub) allow(tenantID string) (bool, int) {
	if h.limiter == nil {
		return true, 0
	}
	return h.limiter.Allow(middleware.TenantKey(tenantID))
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	h.log.Debug("Websocket client registered", "client_id", c.ID, "tenant_id", c.TenantID, "active", n)
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	h.mu.Unlock()
}

// ActiveConnections returns the number of connected clients
func (h *Hub) ActiveConnections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		c.cancel()
		_ = c.conn.Close()
	}
}
