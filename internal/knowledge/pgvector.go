package knowledge

import (
	"context"
	"fmt"

	"supportbot/backend/internal/models"

	"gorm.io/gorm"
)

// PgVectorIndex searches the knowledge_chunks table with the pgvector
// cosine distance operator.
type PgVectorIndex struct {
	db *gorm.DB
}

func NewPgVectorIndex(db *gorm.DB) *PgVectorIndex {
	return &PgVectorIndex{db: db}
}

func (p *PgVectorIndex) Name() string { return "pgvector" }

func (p *PgVectorIndex) Search(ctx context.Context, q Query) ([]models.ScoredChunk, error) {
	var out []models.ScoredChunk
	query, args := searchSQL(q)
	if err := p.db.WithContext(ctx).Raw(query, args...).Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (p *PgVectorIndex) Ping(ctx context.Context) error {
	return p.db.WithContext(ctx).Exec("SELECT 1").Error
}

const similaritySQL = `SELECT id, source, content, 1 - (embedding <=> ?::vector) AS similarity
FROM knowledge_chunks
WHERE bot_id = ? AND 1 - (embedding <=> ?::vector) >= ?
ORDER BY embedding <=> ?::vector
LIMIT ?`

func searchSQL(q Query) (string, []any) {
	vec := models.Vector(q.Vector).String()
	return similaritySQL, []any{vec, q.BotID, vec, q.Floor, vec, q.TopK}
}

// EnsureSchema creates the pgvector extension and chunk table
func EnsureSchema(db *gorm.DB, dimensions int) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS knowledge_chunks (
	id varchar(36) PRIMARY KEY,
	tenant_id varchar(64),
	bot_id varchar(36) NOT NULL,
	source text,
	content text NOT NULL,
	embedding vector(%d),
	created_at timestamptz DEFAULT now()
)`, dimensions),
		"CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_bot_id ON knowledge_chunks (bot_id)",
		"CREATE INDEX IF NOT EXISTS idx_knowledge_chunks_embedding ON knowledge_chunks USING hnsw (embedding vector_cosine_ops)",
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return fmt.Errorf("ensure knowledge schema: %w", err)
		}
	}
	return nil
}
