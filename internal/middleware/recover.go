package middleware

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Recover returns middleware that recovers from panics. The chat is told
// its request failed so a pending button press does not hang silently.
func Recover() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				chatID, ok := chatOf(update)
				slog.Error("panic recovered in handler",
					"panic", r,
					"update_id", update.ID,
					"kind", updateKind(update),
					"workspace", WorkspaceFor(chatID),
					"stack", string(debug.Stack()),
				)
				if b == nil || !ok {
					return
				}
				if update.CallbackQuery != nil {
					b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: update.CallbackQuery.ID})
				}
				b.SendMessage(ctx, &bot.SendMessageParams{ChatID: chatID, Text: "❌ Something went wrong."})
			}()
			next(ctx, b, update)
		}
	}
}
