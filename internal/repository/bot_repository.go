package repository

import (
	"context"

	"supportbot/backend/internal/models"

	"gorm.io/gorm"
)

type BotRepository interface {
	GetByID(ctx context.Context, id string) (*models.Bot, error)
	Create(ctx context.Context, bot *models.Bot) error
}

type GormBotRepository struct {
	db *gorm.DB
}

func NewGormBotRepository(db *gorm.DB) *GormBotRepository {
	return &GormBotRepository{db: db}
}

func (r *GormBotRepository) GetByID(ctx context.Context, id string) (*models.Bot, error) {
	var bot models.Bot
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&bot).Error
	if err != nil {
		return nil, translate(err)
	}
	return &bot, nil
}

func (r *GormBotRepository) Create(ctx context.Context, bot *models.Bot) error {
	return r.db.WithContext(ctx).Create(bot).Error
}
