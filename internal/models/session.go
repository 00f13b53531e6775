package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VisitorMetadata is free-form data recorded when a visitor first writes in
type VisitorMetadata map[string]any

// Value implements driver.Valuer
func (m VisitorMetadata) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (m *VisitorMetadata) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*m = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported metadata type %T", src)
	}
	return json.Unmarshal(raw, m)
}

// ChatSession is one visitor's conversation with one bot. SessionKey is the
// opaque identifier handed to the client.
type ChatSession struct {
	ID           string          `json:"id" gorm:"primaryKey;size:36"`
	SessionKey   string          `json:"session_key" gorm:"size:128;not null;uniqueIndex:idx_session_bot"`
	BotID        string          `json:"bot_id" gorm:"size:36;not null;uniqueIndex:idx_session_bot"`
	MessageCount int             `json:"message_count" gorm:"not null;default:0"`
	Metadata     VisitorMetadata `json:"metadata" gorm:"type:text"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

func (s *ChatSession) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}
