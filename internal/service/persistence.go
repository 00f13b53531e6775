package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supportbot/backend/internal/models"
	"supportbot/backend/internal/repository"
	"supportbot/backend/pkg/logger"
)

// Exchange is one answered user turn to be stored
type Exchange struct {
	ChatID        string
	UserText      string
	AssistantText string
	TokensUsed    int
	// PriorCount is the number of messages the session held before this turn.
	// Callers pass the larger of the loaded history and the stored count so
	// the count keeps growing once history is capped by its window.
	PriorCount int
}

// PersistenceWriter stores an exchange as three independent writes: the user
// message, the assistant message, then the session's message count. A failed
// write does not undo the ones before it.
type PersistenceWriter struct {
	sessions repository.SessionRepository
	messages repository.MessageRepository
	log      *logger.Logger
	now      func() time.Time
}

func NewPersistenceWriter(sessions repository.SessionRepository, messages repository.MessageRepository, log *logger.Logger) *PersistenceWriter {
	return &PersistenceWriter{
		sessions: sessions,
		messages: messages,
		log:      log,
		now:      time.Now,
	}
}

// Persist writes ex. Stateless exchanges (empty ChatID) are skipped. The
// returned error joins every failed write.
func (w *PersistenceWriter) Persist(ctx context.Context, ex Exchange) error {
	if ex.ChatID == "" {
		return nil
	}

	var errs []error

	userMsg := &models.Message{
		ChatSessionID: ex.ChatID,
		Role:          models.RoleUser,
		Content:       ex.UserText,
		CreatedAt:     w.now(),
	}
	if err := w.messages.Create(ctx, userMsg); err != nil {
		w.log.Error("Failed to store user message", "chat_id", ex.ChatID, "error", err.Error())
		errs = append(errs, fmt.Errorf("store user message: %w", err))
	}

	assistantMsg := &models.Message{
		ChatSessionID: ex.ChatID,
		Role:          models.RoleAssistant,
		Content:       ex.AssistantText,
		CreatedAt:     w.now(),
	}
	if ex.TokensUsed > 0 {
		tokens := ex.TokensUsed
		assistantMsg.TokensUsed = &tokens
	}
	if err := w.messages.Create(ctx, assistantMsg); err != nil {
		w.log.Error("Failed to store assistant message", "chat_id", ex.ChatID, "error", err.Error())
		errs = append(errs, fmt.Errorf("store assistant message: %w", err))
	}

	if err := w.sessions.UpdateMessageCount(ctx, ex.ChatID, ex.PriorCount+2); err != nil {
		w.log.Error("Failed to update message count", "chat_id", ex.ChatID, "error", err.Error())
		errs = append(errs, fmt.Errorf("update message count: %w", err))
	}

	return errors.Join(errs...)
}
