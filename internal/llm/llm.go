// Package llm talks to the embedding and chat completion provider.
package llm

import (
	"context"
	"errors"
	"time"

	"supportbot/backend/internal/models"
)

// FallbackReply is returned when the provider answers with no choices.
const FallbackReply = "I'm sorry, I couldn't come up with a response. Please try again."

var (
	// ErrCompletionTimeout means the provider did not answer within the
	// caller's deadline. Callers render it differently from other failures.
	ErrCompletionTimeout = errors.New("completion timed out")
	// ErrCompletionFailed wraps every other provider failure.
	ErrCompletionFailed = errors.New("completion failed")
)

// Params are the model parameters for one completion call
type Params struct {
	Model       string
	Temperature float32
	MaxTokens   int
}

// Completion is one assistant reply
type Completion struct {
	Text       string
	TokensUsed int
}

// Completer invokes the completion provider. A positive timeout bounds the
// call; zero leaves the deadline to ctx.
type Completer interface {
	Complete(ctx context.Context, messages []models.ChatMessage, params Params, timeout time.Duration) (Completion, error)
}

// Embedder turns text into a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
