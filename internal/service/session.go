package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"supportbot/backend/internal/models"
	"supportbot/backend/internal/repository"

	"github.com/google/uuid"
)

// Resolution identifies the conversation a message belongs to. A resolution
// with an empty ChatID is stateless: no history is loaded and nothing is
// persisted, but SessionKey is still returned to the client.
type Resolution struct {
	SessionKey   string
	ChatID       string
	MessageCount int
}

func (r Resolution) Stateless() bool { return r.ChatID == "" }

// SessionResolver maps client session keys to persisted chat sessions
type SessionResolver struct {
	sessions repository.SessionRepository
	newKey   func() string
	now      func() time.Time
}

func NewSessionResolver(sessions repository.SessionRepository) *SessionResolver {
	return &SessionResolver{
		sessions: sessions,
		newKey:   newSessionKey,
		now:      time.Now,
	}
}

// newSessionKey returns a time-ordered identifier
func newSessionKey() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// Resolve finds the session for (sessionKey, botID) or creates a new one under
// a freshly generated key. The returned Resolution is always usable; a non-nil
// error explains why it is stateless.
func (r *SessionResolver) Resolve(ctx context.Context, sessionKey, botID string, meta models.VisitorMetadata) (Resolution, error) {
	if sessionKey != "" {
		existing, err := r.sessions.FindByKey(ctx, sessionKey, botID)
		switch {
		case err == nil:
			return Resolution{SessionKey: existing.SessionKey, ChatID: existing.ID, MessageCount: existing.MessageCount}, nil
		case !errors.Is(err, repository.ErrNotFound):
			return Resolution{SessionKey: sessionKey}, fmt.Errorf("look up session: %w", err)
		}
	}

	key := r.newKey()
	visitor := models.VisitorMetadata{"firstSeenAt": r.now().UTC().Format(time.RFC3339)}
	for k, v := range meta {
		visitor[k] = v
	}

	created, err := r.sessions.FindOrCreate(ctx, &models.ChatSession{
		SessionKey: key,
		BotID:      botID,
		Metadata:   visitor,
	})
	if err != nil {
		return Resolution{SessionKey: key}, fmt.Errorf("create session: %w", err)
	}
	return Resolution{SessionKey: created.SessionKey, ChatID: created.ID, MessageCount: created.MessageCount}, nil
}
