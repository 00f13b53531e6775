package service

import (
	"context"
	"errors"
	"fmt"

	"supportbot/backend/internal/models"
	"supportbot/backend/internal/repository"
	"supportbot/backend/pkg/cache"
)

// BotStore loads bot configuration
type BotStore interface {
	GetByID(ctx context.Context, id string) (*models.Bot, error)
}

// BotProvider reads bot configuration through a TTL cache. Callers get their
// own copy, so a pipeline run never observes a concurrent change.
type BotProvider struct {
	store BotStore
	cache *cache.Cache[models.Bot]
}

// NewBotProvider wraps store; a nil cache disables caching
func NewBotProvider(store BotStore, c *cache.Cache[models.Bot]) *BotProvider {
	return &BotProvider{store: store, cache: c}
}

// Get returns the bot with id, or ErrBotNotFound
func (p *BotProvider) Get(ctx context.Context, id string) (*models.Bot, error) {
	if p.cache != nil {
		if bot, ok := p.cache.Get(id); ok {
			return &bot, nil
		}
	}

	bot, err := p.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBotNotFound
		}
		return nil, fmt.Errorf("load bot %s: %w", id, err)
	}

	if p.cache != nil {
		p.cache.Set(id, *bot)
	}
	out := *bot
	return &out, nil
}

// Invalidate drops id from the cache
func (p *BotProvider) Invalidate(id string) {
	if p.cache != nil {
		p.cache.Delete(id)
	}
}
