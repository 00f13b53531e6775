package service

import (
	"context"
	"strings"
	"time"

	"supportbot/backend/internal/llm"
	"supportbot/backend/internal/models"
	"supportbot/backend/pkg/logger"
	"supportbot/backend/pkg/observability"

	"go.opentelemetry.io/otel/codes"
)

const homebotPersona = "You are the assistant on the Supportbot website. Visitors are businesses evaluating " +
	"an AI customer support agent trained on their own documents and website. Explain what the product does, " +
	"how setup works and how it can reduce support load. Keep answers short and friendly, and suggest " +
	"starting a free trial when it fits the conversation. Do not invent prices or features."

// HomebotRequest is a conversation from the anonymous marketing widget.
// The client holds the whole history; the last entry is the new message.
type HomebotRequest struct {
	Messages []models.ChatMessage
	Locale   string
}

// HomebotResponse is the reply to a HomebotRequest
type HomebotResponse struct {
	Reply      string `json:"reply"`
	TokensUsed int    `json:"tokensUsed"`
}

// HomebotOptions configures the anonymous pipeline
type HomebotOptions struct {
	Params        llm.Params
	Timeout       time.Duration
	HistoryWindow int
}

// HomebotService answers the public marketing widget. It has no sessions,
// retrieval or persistence.
type HomebotService struct {
	composer  *PromptComposer
	completer llm.Completer
	opts      HomebotOptions
	metrics   *observability.PipelineMetrics
	log       *logger.Logger
}

func NewHomebotService(composer *PromptComposer, completer llm.Completer, opts HomebotOptions, metrics *observability.PipelineMetrics, log *logger.Logger) *HomebotService {
	if opts.HistoryWindow <= 0 {
		opts.HistoryWindow = 10
	}
	if metrics == nil {
		metrics = observability.NopMetrics()
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &HomebotService{
		composer:  composer,
		completer: completer,
		opts:      opts,
		metrics:   metrics,
		log:       log,
	}
}

// Reply answers the last user message of req. A timeout is reported as
// llm.ErrCompletionTimeout.
func (s *HomebotService) Reply(ctx context.Context, req HomebotRequest) (*HomebotResponse, error) {
	ctx, span := tracer.Start(ctx, "homebot.Pipeline")
	defer span.End()
	log := logger.FromContextOr(ctx, s.log).WithTrace(ctx)

	turns := sanitizeTurns(req.Messages, s.opts.HistoryWindow)
	if len(turns) == 0 || turns[len(turns)-1].Role != models.RoleUser {
		s.metrics.RecordRequest(ctx, "homebot", "invalid")
		return nil, invalid("messages", "must end with a user message")
	}

	last := turns[len(turns)-1]
	bot := &models.Bot{
		Name:     "the Supportbot assistant",
		Persona:  homebotPersona,
		Language: LanguageForLocale(req.Locale),
	}
	prompt := s.composer.Compose(bot, nil, turns[:len(turns)-1], last.Content)

	start := time.Now()
	completion, err := s.completer.Complete(ctx, prompt, s.opts.Params, s.opts.Timeout)
	s.metrics.ObserveStage(ctx, "completion", start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "completion failed")
		s.metrics.RecordRequest(ctx, "homebot", outcome(err))
		log.Warn("Homebot completion failed", "error", err.Error())
		return nil, err
	}

	s.metrics.RecordTokens(ctx, "homebot", completion.TokensUsed)
	s.metrics.RecordRequest(ctx, "homebot", "ok")
	return &HomebotResponse{Reply: completion.Text, TokensUsed: completion.TokensUsed}, nil
}

// sanitizeTurns drops entries with unknown roles or blank content and keeps
// the most recent window.
func sanitizeTurns(in []models.ChatMessage, window int) []models.ChatMessage {
	out := make([]models.ChatMessage, 0, len(in))
	for _, m := range in {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		if role != models.RoleUser && role != models.RoleAssistant {
			continue
		}
		if strings.TrimSpace(m.Content) == "" {
			continue
		}
		out = append(out, models.ChatMessage{Role: role, Content: m.Content})
	}
	if len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}
