package ws

import (
	"context"
	"encoding/json"
	"time"

	"supportbot/backend/internal/api"
	"supportbot/backend/internal/models"
	"supportbot/backend/internal/service"
	"supportbot/backend/pkg/errors"
	"supportbot/backend/pkg/logger"

	"github.com/gorilla/websocket"
)

// Client is one websocket connection of an authenticated tenant
type Client struct {
	ID       string
	TenantID string

	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	visitor models.VisitorMetadata
	log     *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// turns is written only by readPump and drained by runTurns
	turns chan chatFrame
	// lastSession is owned by runTurns
	lastSession map[string]string
}

// readPump reads frames until the connection fails. Chat frames are queued
// for runTurns so pongs keep being processed during a slow completion.
func (c *Client) readPump() {
	defer func() {
		c.cancel()
		close(c.turns)
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Warn("Websocket read failed", "client_id", c.ID, "error", err.Error())
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			c.sendError(errors.NewBadRequestError("INVALID_FRAME", "Frames must be JSON objects"))
			continue
		}

		switch frame.Type {
		case FramePing:
			c.sendFrame(FramePong, nil)
		case FrameChat:
			c.enqueueTurn(frame.Content)
		default:
			c.sendError(errors.NewBadRequestError("UNKNOWN_FRAME", "Unknown frame type"))
		}
	}
}

// enqueueTurn admits a chat frame against the tenant's throttle and queues it
func (c *Client) enqueueTurn(content json.RawMessage) {
	var in chatFrame
	if err := json.Unmarshal(content, &in); err != nil {
		c.sendError(errors.NewBadRequestError("INVALID_REQUEST", "chat content must be an object"))
		return
	}

	if ok, retryAfter := c.hub.allow(c.TenantID); !ok {
		c.log.Warn("Websocket chat frame rate limited", "client_id", c.ID, "tenant_id", c.TenantID)
		c.sendError(errors.NewTooManyRequestsError("RATE_LIMITED", "Too many messages. Please try again later.").
			WithDetails(map[string]any{"retryAfter": retryAfter}))
		return
	}

	select {
	case c.turns <- in:
	default:
		c.sendError(errors.NewTooManyRequestsError("TURN_QUEUE_FULL", "Too many messages are waiting for a reply"))
	}
}

// runTurns answers queued chat frames one at a time in arrival order
func (c *Client) runTurns() {
	for in := range c.turns {
		if c.ctx.Err() != nil {
			continue
		}
		c.handleChat(in)
	}
}

func (c *Client) handleChat(in chatFrame) {
	// continue the connection's conversation with this bot unless told otherwise
	sessionID := in.SessionID
	if sessionID == "" {
		sessionID = c.lastSession[in.BotID]
	}

	resp, err := c.hub.chat.Chat(c.ctx, service.ChatRequest{
		TenantID:  c.TenantID,
		BotID:     in.BotID,
		SessionID: sessionID,
		Message:   in.Message,
		Visitor:   c.visitor,
	})
	if err != nil {
		if c.ctx.Err() != nil {
			return
		}
		c.sendError(api.ChatError(err))
		return
	}

	c.lastSession[in.BotID] = resp.SessionID
	c.sendFrame(FrameReply, resp)
}

func (c *Client) sendError(appErr *errors.AppError) {
	c.sendFrame(FrameError, errors.Body(appErr))
}

func (c *Client) sendFrame(frameType string, content any) {
	frame := Frame{Type: frameType}
	if content != nil {
		raw, err := json.Marshal(content)
		if err != nil {
			c.log.Error("Failed to encode websocket frame", "type", frameType, "error", err.Error())
			return
		}
		frame.Content = raw
	}

	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	c.hub.mu.Lock()
	defer c.hub.mu.Unlock()
	if _, ok := c.hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- data:
	default:
		c.log.Warn("Websocket send buffer full, dropping frame", "client_id", c.ID, "type", frameType)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
