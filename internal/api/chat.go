package api

import (
	"context"
	stderrors "errors"
	"net/http"

	"supportbot/backend/internal/models"
	"supportbot/backend/internal/service"
	"supportbot/backend/pkg/errors"
	"supportbot/backend/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// Chatter runs the tenant chat pipeline
type Chatter interface {
	Chat(ctx context.Context, req service.ChatRequest) (*service.ChatResponse, error)
}

// ChatController handles POST /api/v1/chat
type ChatController struct {
	chat Chatter
}

// NewChatController creates a new chat controller
func NewChatController(chat Chatter) *ChatController {
	return &ChatController{chat: chat}
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId"`
	BotID     string `json:"botId"`
}

// RegisterRoutes registers the chat route on an authenticated group
func (h *ChatController) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/chat", h.Chat)
}

// Chat answers one visitor message for a bot owned by the calling tenant
func (h *ChatController) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_REQUEST", "Request body must be a JSON object").WithCause(err))
		return
	}

	resp, err := h.chat.Chat(c.Request.Context(), service.ChatRequest{
		TenantID:  middleware.TenantFromGin(c),
		BotID:     req.BotID,
		SessionID: req.SessionID,
		Message:   req.Message,
		Visitor:   VisitorFromRequest(c.Request),
	})
	if err != nil {
		c.Error(ChatError(err))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// VisitorFromRequest collects the metadata stored on a new session
func VisitorFromRequest(r *http.Request) models.VisitorMetadata {
	meta := models.VisitorMetadata{}
	if ua := r.UserAgent(); ua != "" {
		meta["userAgent"] = ua
	}
	if ref := r.Referer(); ref != "" {
		meta["referrer"] = ref
	}
	if lang := r.Header.Get("Accept-Language"); lang != "" {
		meta["language"] = lang
	}
	return meta
}

// ChatError maps tenant pipeline errors onto HTTP errors. Anything
// unexpected becomes a 500 whose message does not leak the cause.
func ChatError(err error) *errors.AppError {
	var verr *service.ValidationError
	switch {
	case stderrors.As(err, &verr):
		return errors.NewBadRequestError("INVALID_REQUEST", verr.Error()).WithCause(err)
	case stderrors.Is(err, service.ErrInvalidRequest):
		return errors.NewBadRequestError("INVALID_REQUEST", "Invalid request").WithCause(err)
	case stderrors.Is(err, service.ErrBotNotFound):
		return errors.NewNotFoundError("BOT_NOT_FOUND", "Bot not found").WithCause(err)
	default:
		return errors.NewInternalServerError("CHAT_FAILED", "Failed to generate a reply").WithCause(err)
	}
}
