package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// updateKind names an update for logs: the command for commands, the
// callback prefix for buttons, the upload kind for files.
func updateKind(update *models.Update) string {
	switch {
	case update.CallbackQuery != nil:
		data := update.CallbackQuery.Data
		if i := strings.IndexByte(data, '_'); i > 0 {
			data = data[:i]
		}
		return "callback:" + data
	case update.Message == nil:
		return "other"
	case len(update.Message.Photo) > 0:
		return "photo"
	case update.Message.Document != nil:
		return "document"
	case strings.HasPrefix(update.Message.Text, "/"):
		cmd, _, _ := strings.Cut(update.Message.Text, " ")
		return "command:" + cmd
	default:
		return "text"
	}
}

// Logging returns middleware that logs update processing time. Turns and
// image jobs block the handler, so slow updates are logged at info.
func Logging() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			start := time.Now()
			next(ctx, b, update)

			chatID, _ := chatOf(update)
			elapsed := time.Since(start)
			level := slog.LevelDebug
			if elapsed > slowUpdate {
				level = slog.LevelInfo
			}
			slog.Log(ctx, level, "update processed",
				"kind", updateKind(update),
				"workspace", WorkspaceFor(chatID),
				"duration", elapsed,
			)
		}
	}
}

const slowUpdate = 5 * time.Second
