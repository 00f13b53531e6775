package service

import (
	"context"

	"supportbot/backend/internal/models"
	"supportbot/backend/internal/repository"
)

// HistoryLoader reads the bounded window of prior turns for a chat
type HistoryLoader struct {
	messages repository.MessageRepository
	limit    int
}

func NewHistoryLoader(messages repository.MessageRepository, limit int) *HistoryLoader {
	if limit < 0 {
		limit = 0
	}
	return &HistoryLoader{messages: messages, limit: limit}
}

// Load returns up to the configured number of most recent turns, oldest
// first. It must run before the incoming message is stored.
func (h *HistoryLoader) Load(ctx context.Context, chatID string) ([]models.ChatMessage, error) {
	if chatID == "" || h.limit == 0 {
		return nil, nil
	}

	msgs, err := h.messages.Recent(ctx, chatID, h.limit)
	if err != nil {
		return nil, err
	}

	turns := make([]models.ChatMessage, 0, len(msgs))
	for _, m := range msgs {
		turns = append(turns, m.Turn())
	}
	return turns, nil
}
