package ws

import (
	"context"

	"supportbot/backend/internal/api"
	"supportbot/backend/pkg/logger"
	"supportbot/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// ServeWs upgrades an authenticated request to a chat connection. It must
// run behind middleware.JWTAuth.
func (h *Hub) ServeWs(c *gin.Context) {
	tenantID := middleware.TenantFromGin(c)
	visitor := api.VisitorFromRequest(c.Request)
	log := logger.FromGin(c)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn("Websocket upgrade failed", "error", err.Error())
		return
	}

	// the connection outlives the upgrade request
	ctx, cancel := context.WithCancel(context.WithoutCancel(c.Request.Context()))

	client := &Client{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		hub:         h,
		conn:        conn,
		send:        make(chan []byte, 16),
		turns:       make(chan chatFrame, turnQueueSize),
		visitor:     visitor,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
		lastSession: make(map[string]string),
	}

	h.register(client)

	go client.writePump()
	go client.runTurns()
	go client.readPump()
}
