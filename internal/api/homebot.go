package api

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"

	"supportbot/backend/internal/llm"
	"supportbot/backend/internal/models"
	"supportbot/backend/internal/service"
	"supportbot/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Replier runs the anonymous homebot pipeline
type Replier interface {
	Reply(ctx context.Context, req service.HomebotRequest) (*service.HomebotResponse, error)
}

// HomebotController handles POST /api/v1/homebot
type HomebotController struct {
	homebot Replier
}

// NewHomebotController creates a new homebot controller
func NewHomebotController(homebot Replier) *HomebotController {
	return &HomebotController{homebot: homebot}
}

type homebotRequest struct {
	Messages json.RawMessage `json:"messages"`
	Locale   string          `json:"locale"`
}

// RegisterRoutes registers the homebot route. Rate limiting is applied by
// the caller through mw.
func (h *HomebotController) RegisterRoutes(group *gin.RouterGroup, mw ...gin.HandlerFunc) {
	group.POST("/homebot", append(mw, h.Reply)...)
}

// Reply answers the marketing widget conversation
func (h *HomebotController) Reply(c *gin.Context) {
	var req homebotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(errors.NewBadRequestError("INVALID_REQUEST", "Request body must be a JSON object").WithCause(err))
		return
	}

	var messages []models.ChatMessage
	if len(req.Messages) == 0 || json.Unmarshal(req.Messages, &messages) != nil || messages == nil {
		c.Error(errors.NewBadRequestError("INVALID_REQUEST", "messages must be an array"))
		return
	}

	resp, err := h.homebot.Reply(c.Request.Context(), service.HomebotRequest{
		Messages: messages,
		Locale:   req.Locale,
	})
	if err != nil {
		c.Error(HomebotError(err))
		return
	}

	c.JSON(http.StatusOK, resp)
}

// HomebotError maps homebot pipeline errors onto HTTP errors
func HomebotError(err error) *errors.AppError {
	var verr *service.ValidationError
	switch {
	case stderrors.As(err, &verr):
		return errors.NewBadRequestError("INVALID_REQUEST", verr.Error()).WithCause(err)
	case stderrors.Is(err, llm.ErrCompletionTimeout):
		return errors.NewGatewayTimeoutError("COMPLETION_TIMEOUT", "The assistant took too long to respond. Please try again.").WithCause(err)
	default:
		return errors.NewInternalServerError("HOMEBOT_FAILED", "Something went wrong. Please try again later.").WithCause(err)
	}
}
