package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"supportbot/backend/internal/knowledge"
	"supportbot/backend/internal/llm"
	"supportbot/backend/internal/models"
	"supportbot/backend/pkg/config"
	"supportbot/backend/pkg/di"
	"supportbot/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubLLM struct{}

func (stubLLM) Complete(ctx context.Context, msgs []models.ChatMessage, p llm.Params, timeout time.Duration) (llm.Completion, error) {
	return llm.Completion{Text: "stub reply", TokensUsed: 9}, nil
}

func (stubLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type stubIndex struct{}

func (stubIndex) Search(ctx context.Context, q knowledge.Query) ([]models.ScoredChunk, error) {
	return nil, nil
}
func (stubIndex) Ping(ctx context.Context) error { return nil }
func (stubIndex) Name() string                   { return "stub" }

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Bot{}, &models.ChatSession{}, &models.Message{}))
	require.NoError(t, db.Create(&models.Bot{ID: "B1", TenantID: "tenant-1", Name: "Helper"}).Error)

	cfg := config.Load()
	cfg.Server.Env = "test"
	cfg.Telemetry.TraceExporter = "none"
	cfg.Security.JWTSecret = "router-secret"
	cfg.RateLimit.Window = 2 * time.Second
	cfg.RateLimit.MaxRequests = 1

	c, err := di.New(context.Background(), cfg, db, logger.Nop(), di.Options{
		Completer: stubLLM{},
		Embedder:  stubLLM{},
		Index:     stubIndex{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	r := New(c)
	require.NoError(t, r.SetupRoutes(""))
	c.Health.RunChecks(context.Background())
	return r
}

func do(r *Router, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.RemoteAddr = "198.51.100.4:4000"
	w := httptest.NewRecorder()
	r.Engine.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestChatRoute(t *testing.T) {
	r := newTestRouter(t)
	token, err := r.Container.JWTService.GenerateToken("tenant-1", "dashboard")
	require.NoError(t, err)

	w := do(r, http.MethodPost, "/api/v1/chat", `{"message":"hi","botId":"B1"}`, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	assert.Equal(t, "stub reply", body["message"])
	assert.NotEmpty(t, body["sessionId"])
	assert.EqualValues(t, 9, body["tokensUsed"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(r, http.MethodPost, "/api/v1/chat", `{"message":"hi","botId":"B1"}`, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodPost, "/api/v1/chat", `{"message":"hi"}`, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.NotEmpty(t, decode(t, w)["error"])

	other, err := r.Container.JWTService.GenerateToken("tenant-2", "dashboard")
	require.NoError(t, err)
	w = do(r, http.MethodPost, "/api/v1/chat", `{"message":"hi","botId":"B1"}`, other)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHomebotRouteIsRateLimited(t *testing.T) {
	r := newTestRouter(t)
	body := `{"messages":[{"role":"user","content":"what is this?"}]}`

	first := do(r, http.MethodPost, "/api/v1/homebot", body, "")
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())
	assert.Equal(t, "stub reply", decode(t, first)["reply"])

	time.Sleep(500 * time.Millisecond)

	second := do(r, http.MethodPost, "/api/v1/homebot", body, "")
	require.Equal(t, http.StatusTooManyRequests, second.Code)
	retryAfter, ok := decode(t, second)["retryAfter"].(float64)
	require.True(t, ok)
	assert.GreaterOrEqual(t, retryAfter, 1.0)
	assert.LessOrEqual(t, retryAfter, 2.0)
}

func TestHomebotRouteValidatesBody(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodPost, "/api/v1/homebot", `{"messages":"hello"}`, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", decode(t, w)["code"])
}

func TestOperationalRoutes(t *testing.T) {
	r := newTestRouter(t)

	w := do(r, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.Equal(t, "ok", body["status"])
	assert.Contains(t, body["components"], "database")

	w = do(r, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/docs/openapi.yaml", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "/api/v1/homebot")

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat", nil)
	req.Header.Set("Origin", "https://acme.example")
	rec := httptest.NewRecorder()
	r.Engine.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://acme.example", rec.Header().Get("Access-Control-Allow-Origin"))
}
