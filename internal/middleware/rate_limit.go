package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/time/rate"
)

// limiters holds one token bucket per chat.
type limiters struct {
	mu        sync.Mutex
	perMinute int
	byChat    map[int64]*rate.Limiter
}

func newLimiters(perMinute int) *limiters {
	return &limiters{perMinute: perMinute, byChat: make(map[int64]*rate.Limiter)}
}

func (l *limiters) allow(chatID int64) bool {
	l.mu.Lock()
	lim, ok := l.byChat[chatID]
	if !ok {
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(l.perMinute)), l.perMinute)
		l.byChat[chatID] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// RateLimit returns middleware that enforces a per-chat message rate.
// A non-positive limit disables it.
func RateLimit(perMinute int) bot.Middleware {
	l := newLimiters(perMinute)
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			// Only rate limit messages (not callbacks or other updates)
			if perMinute <= 0 || update.Message == nil {
				next(ctx, b, update)
				return
			}

			chatID := update.Message.Chat.ID
			if !l.allow(chatID) {
				slog.Debug("rate limited", "chat_id", chatID, "limit", perMinute)
				b.SendMessage(ctx, &bot.SendMessageParams{
					ChatID: chatID,
					Text:   "⏳ Too many messages. Please wait a moment.",
				})
				return
			}

			next(ctx, b, update)
		}
	}
}
