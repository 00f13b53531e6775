package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is the role/content pair exchanged with the completion provider
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Message is a single persisted turn. IDs are UUIDv7 so that turns written
// within the same clock tick still sort in insertion order.
type Message struct {
	ID            string    `json:"id" gorm:"primaryKey;size:36"`
	ChatSessionID string    `json:"chat_session_id" gorm:"size:36;not null;index:idx_message_session_created"`
	Role          string    `json:"role" gorm:"size:16;not null"`
	Content       string    `json:"content" gorm:"type:text;not null"`
	TokensUsed    *int      `json:"tokens_used,omitempty"`
	CreatedAt     time.Time `json:"created_at" gorm:"index:idx_message_session_created"`
}

func (m *Message) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return err
		}
		m.ID = id.String()
	}
	return nil
}

// Turn reduces the message to its role/content pair
func (m Message) Turn() ChatMessage {
	return ChatMessage{Role: m.Role, Content: m.Content}
}
