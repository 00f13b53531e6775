package models

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Vector is an embedding stored in a pgvector column. It renders to and
// parses from pgvector's text form, e.g. "[0.1,0.2,0.3]".
type Vector []float32

// String renders v in pgvector text form
func (v Vector) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// Value implements driver.Valuer
func (v Vector) Value() (driver.Value, error) {
	if v == nil {
		return nil, nil
	}
	return v.String(), nil
}

// Scan implements sql.Scanner
func (v *Vector) Scan(src any) error {
	var s string
	switch t := src.(type) {
	case nil:
		*v = nil
		return nil
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		return fmt.Errorf("unsupported vector type %T", src)
	}

	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if s == "" {
		*v = Vector{}
		return nil
	}

	parts := strings.Split(s, ",")
	out := make(Vector, len(parts))
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return fmt.Errorf("parse vector element %d: %w", i, err)
		}
		out[i] = float32(f)
	}
	*v = out
	return nil
}

// KnowledgeChunk is an ingested fragment of a bot's knowledge base. Chunks
// are written by the ingestion process and only read here.
type KnowledgeChunk struct {
	ID        string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID  string    `json:"tenant_id" gorm:"size:64;index"`
	BotID     string    `json:"bot_id" gorm:"size:36;index;not null"`
	Source    string    `json:"source"`
	Content   string    `json:"content" gorm:"type:text;not null"`
	Embedding Vector    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (KnowledgeChunk) TableName() string {
	return "knowledge_chunks"
}

// ScoredChunk is a chunk returned by a similarity query, most similar first
type ScoredChunk struct {
	ID         string  `json:"id"`
	Source     string  `json:"source"`
	Content    string  `json:"content"`
	Similarity float64 `json:"similarity"`
}
