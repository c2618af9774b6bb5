package service

import (
	"context"
	"errors"
	"time"

	"persona-chat/backend/pkg/cache"
	"persona-chat/backend/pkg/logger"

	"golang.org/x/sync/singleflight"
)

// TitleGenerator produces chat titles once per chat, sharing in-flight calls and caching results
type TitleGenerator struct {
	processor Processor
	store     cache.Store
	ttl       time.Duration
	group     singleflight.Group
}

// NewTitleGenerator creates a title generator. A nil store disables caching.
func NewTitleGenerator(processor Processor, store cache.Store, ttl time.Duration) *TitleGenerator {
	return &TitleGenerator{processor: processor, store: store, ttl: ttl}
}

func titleKey(chatID string) string {
	return "chat-title:" + chatID
}

// Title returns the title for chatID, generating it from message on first use
func (g *TitleGenerator) Title(ctx context.Context, chatID, message string) string {
	if title, ok := g.cached(ctx, chatID); ok {
		return title
	}

	v, _, _ := g.group.Do(chatID, func() (any, error) {
		// A flight that finished between our lookup and Do already stored the title
		if title, ok := g.cached(ctx, chatID); ok {
			return title, nil
		}

		title := g.processor.GenerateTitle(ctx, message)
		if g.store != nil {
			if err := g.store.Set(ctx, titleKey(chatID), title, g.ttl); err != nil {
				logger.FromContext(ctx).Warn("Title cache write failed", "chat_id", chatID, "error", err.Error())
			}
		}
		return title, nil
	})
	return v.(string)
}

func (g *TitleGenerator) cached(ctx context.Context, chatID string) (string, bool) {
	if g.store == nil {
		return "", false
	}
	title, err := g.store.Get(ctx, titleKey(chatID))
	if err != nil {
		if !errors.Is(err, cache.ErrNotFound) {
			logger.FromContext(ctx).Warn("Title cache read failed", "chat_id", chatID, "error", err.Error())
		}
		return "", false
	}
	return title, true
}
