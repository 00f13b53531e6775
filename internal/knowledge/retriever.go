// Package knowledge retrieves bot-scoped knowledge chunks by semantic
// similarity to the visitor's message.
package knowledge

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"supportbot/backend/internal/llm"
	"supportbot/backend/internal/models"
	"supportbot/backend/pkg/logger"
	"supportbot/backend/pkg/resilience"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("supportbot/knowledge")

// Query describes one similarity search
type Query struct {
	BotID  string
	Vector []float32
	// Floor is the minimum similarity in [0,1]; results below it are excluded.
	Floor float64
	TopK  int
}

// Index is a bot-scoped vector similarity search
type Index interface {
	// Search returns at most q.TopK chunks with similarity >= q.Floor, most
	// similar first.
	Search(ctx context.Context, q Query) ([]models.ScoredChunk, error)
	Ping(ctx context.Context) error
	Name() string
}

// Options tunes retrieval
type Options struct {
	SimilarityFloor float64
	TopK            int
}

// DefaultOptions returns the low floor, small K defaults
func DefaultOptions() Options {
	return Options{SimilarityFloor: 0.3, TopK: 5}
}

// Retriever embeds the query and searches the index. Failures are returned
// so callers can record them, but never need to abort a reply.
type Retriever struct {
	embedder llm.Embedder
	index    Index
	opts     Options
	breaker  *resilience.CircuitBreaker
	log      *logger.Logger
}

func NewRetriever(embedder llm.Embedder, index Index, opts Options, breaker *resilience.CircuitBreaker, log *logger.Logger) *Retriever {
	if opts.TopK <= 0 {
		opts.TopK = DefaultOptions().TopK
	}
	if breaker == nil {
		breaker = resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig("retrieval"), log)
	}
	return &Retriever{
		embedder: embedder,
		index:    index,
		opts:     opts,
		breaker:  breaker,
		log:      log,
	}
}

// Retrieve returns the chunks relevant to text for botID in index order.
// A nil slice with a non-nil error means retrieval was unavailable.
func (r *Retriever) Retrieve(ctx context.Context, botID, text string) ([]models.ScoredChunk, error) {
	ctx, span := tracer.Start(ctx, "knowledge.Retrieve")
	defer span.End()
	span.SetAttributes(attribute.String("bot.id", botID), attribute.String("index", r.index.Name()))

	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	start := time.Now()
	var chunks []models.ScoredChunk
	err := r.breaker.Execute(ctx, func(ctx context.Context) error {
		vec, err := r.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("embed query: %w", err)
		}
		chunks, err = r.index.Search(ctx, Query{
			BotID:  botID,
			Vector: vec,
			Floor:  r.opts.SimilarityFloor,
			TopK:   r.opts.TopK,
		})
		if err != nil {
			return fmt.Errorf("search %s: %w", r.index.Name(), err)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "retrieval failed")
		if errors.Is(err, resilience.ErrCircuitOpen) {
			r.log.Debug("Retrieval skipped, circuit open", "bot_id", botID)
		} else {
			r.log.Warn("Knowledge retrieval failed", "bot_id", botID, "error", err.Error())
		}
		return nil, err
	}

	chunks = r.bound(chunks)
	span.SetAttributes(attribute.Int("chunks", len(chunks)))
	r.log.Debug("Retrieved knowledge",
		"bot_id", botID,
		"chunks", len(chunks),
		"duration", time.Since(start).String(),
	)
	return chunks, nil
}

// bound enforces the floor and cap regardless of what the index returned,
// keeping the index's ranking.
func (r *Retriever) bound(chunks []models.ScoredChunk) []models.ScoredChunk {
	out := chunks[:0:0]
	for _, c := range chunks {
		if c.Similarity < r.opts.SimilarityFloor || strings.TrimSpace(c.Content) == "" {
			continue
		}
		out = append(out, c)
		if len(out) == r.opts.TopK {
			break
		}
	}
	return out
}

// JoinChunks concatenates chunk text separated by blank lines
func JoinChunks(chunks []models.ScoredChunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	return strings.Join(parts, "\n\n")
}
