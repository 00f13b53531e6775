package knowledge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeWeaviate(t *testing.T, gotQuery *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/v1/meta":
			_, _ = w.Write([]byte(`{"version":"1.35.2"}`))
		case "/v1/.well-known/ready":
			w.WriteHeader(http.StatusOK)
		case "/v1/graphql":
			body, _ := io.ReadAll(r.Body)
			var req struct {
				Query string `json:"query"`
			}
			_ = json.Unmarshal(body, &req)
			*gotQuery = req.Query
			_, _ = w.Write([]byte(`{"data":{"Get":{"KnowledgeChunk":[
				{"chunkId":"c1","source":"faq","content":"We are open 9-5 Mon-Fri","_additional":{"distance":0.4}},
				{"chunkId":"c2","source":"faq","content":"Returns within 30 days","_additional":{"distance":0.55}}
			]}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWeaviateIndexSearch(t *testing.T) {
	var query string
	srv := fakeWeaviate(t, &query)

	idx, err := NewWeaviateIndex(WeaviateConfig{URL: srv.URL})
	require.NoError(t, err)

	chunks, err := idx.Search(context.Background(), Query{BotID: "B1", Vector: []float32{0.1, 0.2}, Floor: 0.3, TopK: 5})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "c1", chunks[0].ID)
	assert.InDelta(t, 0.6, chunks[0].Similarity, 1e-9)
	assert.InDelta(t, 0.45, chunks[1].Similarity, 1e-9)

	assert.Contains(t, query, "KnowledgeChunk")
	assert.Contains(t, query, "nearVector")
	assert.Contains(t, query, "B1")

	assert.NoError(t, idx.Ping(context.Background()))
}

func TestNewWeaviateIndexRequiresURL(t *testing.T) {
	_, err := NewWeaviateIndex(WeaviateConfig{})
	assert.Error(t, err)
}
