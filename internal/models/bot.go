package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Bot is a tenant's configured support agent
type Bot struct {
	ID             string    `json:"id" gorm:"primaryKey;size:36"`
	TenantID       string    `json:"tenant_id" gorm:"size:64;index;not null"`
	Name           string    `json:"name" gorm:"not null"`
	Persona        string    `json:"persona"`
	Language       string    `json:"language"`
	Model          string    `json:"model"`
	Temperature    *float32  `json:"temperature"`
	MaxTokens      int       `json:"max_tokens"`
	WelcomeMessage string    `json:"welcome_message"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (b *Bot) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	return nil
}
