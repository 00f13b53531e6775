package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"supportbot/backend/internal/models"
	"supportbot/backend/pkg/logger"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig configures the OpenAI-compatible client
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	EmbeddingModel string
	HTTPClient     *http.Client
}

// OpenAIClient implements Completer and Embedder over the OpenAI API
type OpenAIClient struct {
	client         *openai.Client
	embeddingModel string
	log            *logger.Logger
}

func NewOpenAIClient(cfg OpenAIConfig, log *logger.Logger) (*OpenAIClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key is not configured")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = string(openai.SmallEmbedding3)
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		clientConfig.HTTPClient = cfg.HTTPClient
	}

	log.Info("Initializing OpenAI client", "base_url", clientConfig.BaseURL, "embedding_model", cfg.EmbeddingModel)
	return &OpenAIClient{
		client:         openai.NewClientWithConfig(clientConfig),
		embeddingModel: cfg.EmbeddingModel,
		log:            log,
	}, nil
}

// Complete implements Completer
func (o *OpenAIClient) Complete(ctx context.Context, messages []models.ChatMessage, params Params, timeout time.Duration) (Completion, error) {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req := openai.ChatCompletionRequest{
		Model:       params.Model,
		Messages:    make([]openai.ChatCompletionMessage, 0, len(messages)),
		Temperature: params.Temperature,
		MaxTokens:   params.MaxTokens,
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{Role: m.Role, Content: m.Content})
	}

	start := time.Now()
	resp, err := o.client.CreateChatCompletion(callCtx, req)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Completion{}, ctx.Err()
		case errors.Is(callCtx.Err(), context.DeadlineExceeded):
			o.log.Warn("OpenAI completion timed out", "model", params.Model, "timeout", timeout.String())
			return Completion{}, ErrCompletionTimeout
		}
		o.log.Error("OpenAI API call failed", "model", params.Model, "error", err.Error())
		return Completion{}, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}

	out := Completion{TokensUsed: resp.Usage.TotalTokens}
	if len(resp.Choices) == 0 {
		o.log.Warn("OpenAI returned no choices", "model", params.Model)
		out.Text = FallbackReply
		return out, nil
	}

	o.log.Debug("Received response from OpenAI",
		"model", params.Model,
		"finish_reason", string(resp.Choices[0].FinishReason),
		"tokens", out.TokensUsed,
		"duration", time.Since(start).String(),
	)
	out.Text = resp.Choices[0].Message.Content
	return out, nil
}

// Embed implements Embedder
func (o *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := o.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(o.embeddingModel),
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("embedding provider returned no vector")
	}
	return resp.Data[0].Embedding, nil
}
