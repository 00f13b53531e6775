package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"supportbot/backend/internal/llm"
	"supportbot/backend/internal/models"
	"supportbot/backend/pkg/logger"
	"supportbot/backend/pkg/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("supportbot/service")

// Retriever finds knowledge relevant to a message
type Retriever interface {
	Retrieve(ctx context.Context, botID, text string) ([]models.ScoredChunk, error)
}

// ChatRequest is one message on the authenticated tenant path
type ChatRequest struct {
	TenantID  string
	BotID     string
	SessionID string
	Message   string
	Visitor   models.VisitorMetadata
}

// ChatResponse is the reply to a ChatRequest
type ChatResponse struct {
	Message    string `json:"message"`
	SessionID  string `json:"sessionId"`
	TokensUsed int    `json:"tokensUsed"`
}

// ChatOptions holds the model defaults and input limits
type ChatOptions struct {
	Defaults         llm.Params
	MaxMessageLength int
}

// ChatDeps are the collaborators of ChatService
type ChatDeps struct {
	Bots      *BotProvider
	Sessions  *SessionResolver
	History   *HistoryLoader
	Retriever Retriever
	Composer  *PromptComposer
	Completer llm.Completer
	Writer    *PersistenceWriter
	Metrics   *observability.PipelineMetrics
	Logger    *logger.Logger
}

// ChatService runs the tenant pipeline: session, history, retrieval, prompt,
// completion, persistence.
type ChatService struct {
	ChatDeps
	opts ChatOptions
}

func NewChatService(deps ChatDeps, opts ChatOptions) *ChatService {
	if deps.Metrics == nil {
		deps.Metrics = observability.NopMetrics()
	}
	if deps.Logger == nil {
		deps.Logger = logger.GetGlobal()
	}
	return &ChatService{ChatDeps: deps, opts: opts}
}

// Chat answers req. Optional stages that fail are logged and skipped; only
// validation, bot lookup and completion errors reach the caller.
func (s *ChatService) Chat(ctx context.Context, req ChatRequest) (resp *ChatResponse, err error) {
	ctx, span := tracer.Start(ctx, "chat.Pipeline")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "chat failed")
		}
		span.End()
		s.Metrics.RecordRequest(ctx, "chat", outcome(err))
	}()
	log := logger.FromContextOr(ctx, s.Logger).WithTrace(ctx)

	if verr := s.validate(req); verr != nil {
		return nil, verr
	}
	span.SetAttributes(attribute.String("bot.id", req.BotID))

	bot, err := s.Bots.Get(ctx, req.BotID)
	if err != nil {
		return nil, err
	}
	if req.TenantID != "" && bot.TenantID != req.TenantID {
		log.Warn("Bot requested by another tenant", "bot_id", req.BotID, "tenant_id", req.TenantID)
		return nil, ErrBotNotFound
	}

	start := time.Now()
	session, err := s.Sessions.Resolve(ctx, req.SessionID, bot.ID, req.Visitor)
	s.Metrics.ObserveStage(ctx, "session", start)
	if err != nil {
		log.Warn("Session unavailable, replying statelessly", "bot_id", bot.ID, "error", err.Error())
		s.Metrics.RecordDegraded(ctx, "session")
	}

	var history []models.ChatMessage
	if !session.Stateless() {
		start = time.Now()
		history, err = s.History.Load(ctx, session.ChatID)
		s.Metrics.ObserveStage(ctx, "history", start)
		if err != nil {
			log.Warn("History unavailable, continuing without it", "chat_id", session.ChatID, "error", err.Error())
			s.Metrics.RecordDegraded(ctx, "history")
			history = nil
		}
	}

	start = time.Now()
	chunks, err := s.Retriever.Retrieve(ctx, bot.ID, req.Message)
	s.Metrics.ObserveStage(ctx, "retrieval", start)
	if err != nil {
		s.Metrics.RecordDegraded(ctx, "retrieval")
		chunks = nil
	}

	prompt := s.Composer.Compose(bot, chunks, history, req.Message)

	start = time.Now()
	completion, err := s.Completer.Complete(ctx, prompt, s.paramsFor(bot), 0)
	s.Metrics.ObserveStage(ctx, "completion", start)
	if err != nil {
		log.Error("Completion failed", "bot_id", bot.ID, "error", err.Error())
		return nil, err
	}
	s.Metrics.RecordTokens(ctx, "chat", completion.TokensUsed)

	if !session.Stateless() {
		start = time.Now()
		prior := session.MessageCount
		if len(history) > prior {
			prior = len(history)
		}
		// the reply is already generated, so it is stored even if the client left
		perr := s.Writer.Persist(context.WithoutCancel(ctx), Exchange{
			ChatID:        session.ChatID,
			UserText:      req.Message,
			AssistantText: completion.Text,
			TokensUsed:    completion.TokensUsed,
			PriorCount:    prior,
		})
		s.Metrics.ObserveStage(ctx, "persistence", start)
		if perr != nil {
			s.Metrics.RecordDegraded(ctx, "persistence")
		}
	}

	return &ChatResponse{
		Message:    completion.Text,
		SessionID:  session.SessionKey,
		TokensUsed: completion.TokensUsed,
	}, nil
}

func (s *ChatService) validate(req ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return invalid("message", "is required")
	}
	if strings.TrimSpace(req.BotID) == "" {
		return invalid("botId", "is required")
	}
	if s.opts.MaxMessageLength > 0 && len([]rune(req.Message)) > s.opts.MaxMessageLength {
		return invalid("message", "is too long")
	}
	return nil
}

// paramsFor applies the bot's model settings over the defaults
func (s *ChatService) paramsFor(bot *models.Bot) llm.Params {
	p := s.opts.Defaults
	if bot.Model != "" {
		p.Model = bot.Model
	}
	if bot.Temperature != nil {
		p.Temperature = *bot.Temperature
	}
	if bot.MaxTokens > 0 {
		p.MaxTokens = bot.MaxTokens
	}
	return p
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	case errors.Is(err, ErrBotNotFound):
		return "not_found"
	case errors.Is(err, llm.ErrCompletionTimeout):
		return "timeout"
	default:
		return "error"
	}
}
