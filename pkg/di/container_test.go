package di

import (
	"context"
	"testing"
	"time"

	"supportbot/backend/internal/knowledge"
	"supportbot/backend/internal/llm"
	"supportbot/backend/internal/models"
	"supportbot/backend/internal/service"
	"supportbot/backend/pkg/config"
	"supportbot/backend/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type stubLLM struct{}

func (stubLLM) Complete(ctx context.Context, msgs []models.ChatMessage, p llm.Params, timeout time.Duration) (llm.Completion, error) {
	return llm.Completion{Text: "stub reply", TokensUsed: 5}, nil
}

func (stubLLM) Embed(ctx context.Context, text string) ([]float32, error) {
	return []float32{0.1, 0.2}, nil
}

type stubIndex struct{}

func (stubIndex) Search(ctx context.Context, q knowledge.Query) ([]models.ScoredChunk, error) {
	return []models.ScoredChunk{{ID: "c1", Content: "Opening hours are 9-5", Similarity: 0.8}}, nil
}
func (stubIndex) Ping(ctx context.Context) error { return nil }
func (stubIndex) Name() string                   { return "stub" }

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&models.Bot{}, &models.ChatSession{}, &models.Message{}))
	return db
}

func TestContainerWiresChatPipeline(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(&models.Bot{ID: "B1", TenantID: "t1", Name: "Helper"}).Error)

	cfg := config.Load()
	cfg.Telemetry.TraceExporter = "none"

	c, err := New(context.Background(), cfg, db, logger.Nop(), Options{
		Completer: stubLLM{},
		Embedder:  stubLLM{},
		Index:     stubIndex{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, c.Close(context.Background())) })

	resp, err := c.ChatService.Chat(context.Background(), service.ChatRequest{TenantID: "t1", BotID: "B1", Message: "hours?"})
	require.NoError(t, err)
	assert.Equal(t, "stub reply", resp.Message)
	assert.NotEmpty(t, resp.SessionID)

	c.Health.RunChecks(context.Background())
	assert.True(t, c.Health.IsSystemHealthy())
	assert.Contains(t, c.Health.GetStatus(), "vector-stub")
	assert.Nil(t, c.Redis, "memory limiter needs no redis")
}

func TestContainerRedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)

	cfg := config.Load()
	cfg.Telemetry.TraceExporter = "none"
	cfg.RateLimit.Backend = "redis"
	cfg.Redis.Addr = mr.Addr()

	c, err := New(context.Background(), cfg, testDB(t), logger.Nop(), Options{
		Completer: stubLLM{},
		Embedder:  stubLLM{},
		Index:     stubIndex{},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	require.NotNil(t, c.Redis)
	first, err := c.ClientLimiter.Check(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.True(t, first.Allowed)

	second, err := c.ClientLimiter.Check(context.Background(), "203.0.113.9")
	require.NoError(t, err)
	assert.False(t, second.Allowed)
}

func TestContainerRejectsUnknownBackends(t *testing.T) {
	cfg := config.Load()
	cfg.Telemetry.TraceExporter = "none"
	cfg.Retrieval.Backend = "elastic"

	_, err := New(context.Background(), cfg, testDB(t), logger.Nop(), Options{Completer: stubLLM{}, Embedder: stubLLM{}})
	assert.ErrorContains(t, err, "unknown retrieval backend")
}

func TestContainerRequiresAPIKeyWithoutOverrides(t *testing.T) {
	cfg := config.Load()
	cfg.Telemetry.TraceExporter = "none"
	cfg.LLM.APIKey = ""
	t.Setenv("OPENAI_API_KEY", "")

	_, err := New(context.Background(), cfg, testDB(t), logger.Nop(), Options{Index: stubIndex{}})
	assert.Error(t, err)
}
