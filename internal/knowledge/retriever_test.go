package knowledge

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"supportbot/backend/internal/models"
	"supportbot/backend/pkg/logger"
	"supportbot/backend/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0, 0}, nil
}

// memoryIndex answers like a similarity service: it honors the floor and
// cap and returns chunks most similar first.
type memoryIndex struct {
	chunks map[string][]models.ScoredChunk
	err    error
	last   Query
}

func (m *memoryIndex) Name() string { return "memory" }
func (m *memoryIndex) Ping(ctx context.Context) error { return nil }

func (m *memoryIndex) Search(ctx context.Context, q Query) ([]models.ScoredChunk, error) {
	m.last = q
	if m.err != nil {
		return nil, m.err
	}
	var out []models.ScoredChunk
	for _, c := range m.chunks[q.BotID] {
		if c.Similarity >= q.Floor {
			out = append(out, c)
		}
		if len(out) == q.TopK {
			break
		}
	}
	return out, nil
}

func sampleIndex() *memoryIndex {
	return &memoryIndex{chunks: map[string][]models.ScoredChunk{
		"B1": {
			{ID: "c1", Content: "We are open 9-5 Mon-Fri", Similarity: 0.6},
			{ID: "c2", Content: "Returns within 30 days", Similarity: 0.45},
			{ID: "c3", Content: "Our office is in Berlin", Similarity: 0.31},
			{ID: "c4", Content: "Unrelated trivia", Similarity: 0.12},
		},
	}}
}

func TestRetrieveJoinsChunksInIndexOrder(t *testing.T) {
	idx := sampleIndex()
	r := NewRetriever(&fakeEmbedder{}, idx, DefaultOptions(), nil, logger.Nop())

	chunks, err := r.Retrieve(context.Background(), "B1", "What are your hours?")
	require.NoError(t, err)
	require.Len(t, chunks, 3)
	assert.Equal(t, "We are open 9-5 Mon-Fri\n\nReturns within 30 days\n\nOur office is in Berlin", JoinChunks(chunks))
	assert.Equal(t, 0.3, idx.last.Floor)
	assert.Equal(t, 5, idx.last.TopK)
	assert.Equal(t, "B1", idx.last.BotID)
}

func TestRetrieveNeverReturnsChunksBelowFloor(t *testing.T) {
	// an index that ignores the floor must still not leak low scores
	idx := &leakyIndex{chunks: sampleIndex().chunks["B1"]}
	r := NewRetriever(&fakeEmbedder{}, idx, Options{SimilarityFloor: 0.4, TopK: 5}, nil, logger.Nop())

	chunks, err := r.Retrieve(context.Background(), "B1", "hours")
	require.NoError(t, err)
	for _, c := range chunks {
		assert.GreaterOrEqual(t, c.Similarity, 0.4)
	}
	assert.Len(t, chunks, 2)
}

func TestRaisingFloorOnlyShrinksResults(t *testing.T) {
	var prev []string
	for i, floor := range []float64{0.0, 0.3, 0.45, 0.6, 0.9} {
		r := NewRetriever(&fakeEmbedder{}, sampleIndex(), Options{SimilarityFloor: floor, TopK: 5}, nil, logger.Nop())
		chunks, err := r.Retrieve(context.Background(), "B1", "q")
		require.NoError(t, err)

		var ids []string
		for _, c := range chunks {
			ids = append(ids, c.ID)
		}
		if i > 0 {
			assert.Subset(t, prev, ids, "floor %.2f", floor)
		}
		prev = ids
	}
}

func TestRetrieveDegradesOnFailure(t *testing.T) {
	t.Run("embedding", func(t *testing.T) {
		r := NewRetriever(&fakeEmbedder{err: errors.New("quota")}, sampleIndex(), DefaultOptions(), nil, logger.Nop())
		chunks, err := r.Retrieve(context.Background(), "B1", "q")
		assert.Error(t, err)
		assert.Empty(t, chunks)
		assert.Equal(t, "", JoinChunks(chunks))
	})

	t.Run("index", func(t *testing.T) {
		idx := sampleIndex()
		idx.err = errors.New("rpc down")
		r := NewRetriever(&fakeEmbedder{}, idx, DefaultOptions(), nil, logger.Nop())
		chunks, err := r.Retrieve(context.Background(), "B1", "q")
		assert.Error(t, err)
		assert.Empty(t, chunks)
	})

	t.Run("no results", func(t *testing.T) {
		r := NewRetriever(&fakeEmbedder{}, sampleIndex(), DefaultOptions(), nil, logger.Nop())
		chunks, err := r.Retrieve(context.Background(), "unknown-bot", "q")
		assert.NoError(t, err)
		assert.Empty(t, chunks)
	})
}

func TestRetrieveShortCircuitsWhenBreakerOpen(t *testing.T) {
	emb := &fakeEmbedder{err: errors.New("down")}
	breaker := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
		Name:             "retrieval",
		FailureThreshold: 2,
		RetryTimeout:     time.Minute,
	}, logger.Nop())
	r := NewRetriever(emb, sampleIndex(), DefaultOptions(), breaker, logger.Nop())

	for i := 0; i < 3; i++ {
		_, _ = r.Retrieve(context.Background(), "B1", "q")
	}
	assert.Equal(t, 2, emb.calls)

	_, err := r.Retrieve(context.Background(), "B1", "q")
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
}

func TestRetrieveSkipsBlankQuery(t *testing.T) {
	emb := &fakeEmbedder{}
	r := NewRetriever(emb, sampleIndex(), DefaultOptions(), nil, logger.Nop())
	chunks, err := r.Retrieve(context.Background(), "B1", "   ")
	assert.NoError(t, err)
	assert.Empty(t, chunks)
	assert.Zero(t, emb.calls)
}

type leakyIndex struct{ chunks []models.ScoredChunk }

func (l *leakyIndex) Name() string { return "leaky" }
func (l *leakyIndex) Ping(ctx context.Context) error { return nil }
func (l *leakyIndex) Search(ctx context.Context, q Query) ([]models.ScoredChunk, error) {
	return l.chunks, nil
}

func TestSearchSQLBindsBotAndFloor(t *testing.T) {
	query, args := searchSQL(Query{BotID: "B1", Vector: []float32{0.5, 1}, Floor: 0.3, TopK: 5})

	assert.True(t, strings.Contains(query, "bot_id = ?"))
	assert.True(t, strings.Contains(query, ">= ?"))
	assert.Equal(t, []any{"[0.5,1]", "B1", "[0.5,1]", 0.3, "[0.5,1]", 5}, args)
}
