package repository

import (
	"context"

	"supportbot/backend/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SessionRepository interface {
	FindByKey(ctx context.Context, sessionKey, botID string) (*models.ChatSession, error)
	FindOrCreate(ctx context.Context, session *models.ChatSession) (*models.ChatSession, error)
	UpdateMessageCount(ctx context.Context, id string, count int) error
}

type GormSessionRepository struct {
	db *gorm.DB
}

func NewGormSessionRepository(db *gorm.DB) *GormSessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) FindByKey(ctx context.Context, sessionKey, botID string) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.WithContext(ctx).
		Where("session_key = ? AND bot_id = ?", sessionKey, botID).
		First(&session).Error
	if err != nil {
		return nil, translate(err)
	}
	return &session, nil
}

// FindOrCreate inserts session unless a row with the same (session_key,
// bot_id) exists, in which case the existing row is returned.
func (r *GormSessionRepository) FindOrCreate(ctx context.Context, session *models.ChatSession) (*models.ChatSession, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "session_key"}, {Name: "bot_id"}},
			DoNothing: true,
		}).
		Create(session)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 1 {
		return session, nil
	}
	return r.FindByKey(ctx, session.SessionKey, session.BotID)
}

func (r *GormSessionRepository) UpdateMessageCount(ctx context.Context, id string, count int) error {
	res := r.db.WithContext(ctx).
		Model(&models.ChatSession{}).
		Where("id = ?", id).
		Update("message_count", count)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
