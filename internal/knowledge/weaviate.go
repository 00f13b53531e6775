package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"supportbot/backend/internal/models"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/auth"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	wvmodels "github.com/weaviate/weaviate/entities/models"
)

// WeaviateConfig configures the Weaviate index
type WeaviateConfig struct {
	URL       string
	APIKey    string
	ClassName string
}

// WeaviateIndex searches a Weaviate class whose objects carry botId,
// chunkId, source and content properties.
type WeaviateIndex struct {
	client    *weaviate.Client
	className string
}

func NewWeaviateIndex(cfg WeaviateConfig) (*WeaviateIndex, error) {
	if cfg.URL == "" {
		return nil, errors.New("weaviate url is not configured")
	}
	if cfg.ClassName == "" {
		cfg.ClassName = "KnowledgeChunk"
	}

	wcfg := weaviate.Config{Host: cfg.URL, Scheme: "http"}
	if host, ok := strings.CutPrefix(cfg.URL, "https://"); ok {
		wcfg.Scheme = "https"
		wcfg.Host = host
	} else if host, ok := strings.CutPrefix(cfg.URL, "http://"); ok {
		wcfg.Host = host
	}
	if cfg.APIKey != "" {
		wcfg.AuthConfig = auth.ApiKey{Value: cfg.APIKey}
	}

	client, err := weaviate.NewClient(wcfg)
	if err != nil {
		return nil, fmt.Errorf("create weaviate client: %w", err)
	}
	return &WeaviateIndex{client: client, className: cfg.ClassName}, nil
}

func (w *WeaviateIndex) Name() string { return "weaviate" }

type weaviateChunk struct {
	ChunkID    string `json:"chunkId"`
	Source     string `json:"source"`
	Content    string `json:"content"`
	Additional struct {
		Distance float64 `json:"distance"`
	} `json:"_additional"`
}

type weaviateGetResponse struct {
	Get map[string][]weaviateChunk `json:"Get"`
}

// Search maps the similarity floor onto a cosine distance ceiling
func (w *WeaviateIndex) Search(ctx context.Context, q Query) ([]models.ScoredChunk, error) {
	where := filters.Where().
		WithPath([]string{"botId"}).
		WithOperator(filters.Equal).
		WithValueString(q.BotID)

	nearVector := w.client.GraphQL().NearVectorArgBuilder().
		WithVector(q.Vector).
		WithDistance(float32(1 - q.Floor))

	fields := []graphql.Field{
		{Name: "chunkId"},
		{Name: "source"},
		{Name: "content"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "distance"},
		}},
	}

	result, err := w.client.GraphQL().Get().
		WithClassName(w.className).
		WithFields(fields...).
		WithWhere(where).
		WithNearVector(nearVector).
		WithLimit(q.TopK).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("weaviate search failed: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("weaviate search error: %s", result.Errors[0].Message)
	}

	parsed, err := parseGraphQL[weaviateGetResponse](result)
	if err != nil {
		return nil, err
	}

	hits := parsed.Get[w.className]
	out := make([]models.ScoredChunk, 0, len(hits))
	for _, h := range hits {
		out = append(out, models.ScoredChunk{
			ID:         h.ChunkID,
			Source:     h.Source,
			Content:    h.Content,
			Similarity: 1 - h.Additional.Distance,
		})
	}
	return out, nil
}

func (w *WeaviateIndex) Ping(ctx context.Context) error {
	ready, err := w.client.Misc().ReadyChecker().Do(ctx)
	if err != nil {
		return err
	}
	if !ready {
		return errors.New("weaviate is not ready")
	}
	return nil
}

func parseGraphQL[T any](resp *wvmodels.GraphQLResponse) (*T, error) {
	if resp == nil {
		return nil, errors.New("nil GraphQL response")
	}
	raw, err := json.Marshal(resp.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal GraphQL response data: %w", err)
	}
	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal GraphQL response: %w", err)
	}
	return &out, nil
}
