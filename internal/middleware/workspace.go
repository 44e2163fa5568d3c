package middleware

import (
	"context"
	"strconv"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

type ctxKey string

const (
	WorkspaceKey ctxKey = "workspace"
	ChatKey      ctxKey = "chat"
)

// WorkspaceID extracts the workspace id from context.
func WorkspaceID(ctx context.Context) string {
	id, _ := ctx.Value(WorkspaceKey).(string)
	return id
}

// ChatID extracts the Telegram chat id from context.
func ChatID(ctx context.Context) int64 {
	id, _ := ctx.Value(ChatKey).(int64)
	return id
}

// WorkspaceFor names the workspace owned by a Telegram chat.
func WorkspaceFor(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// chatOf returns the chat an update belongs to.
func chatOf(update *models.Update) (int64, bool) {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil:
		return update.CallbackQuery.Message.Message.Chat.ID, true
	}
	return 0, false
}

// Workspace returns middleware that puts the chat's workspace into context.
// Updates that belong to no chat are dropped.
func Workspace() bot.Middleware {
	return func(next bot.HandlerFunc) bot.HandlerFunc {
		return func(ctx context.Context, b *bot.Bot, update *models.Update) {
			chatID, ok := chatOf(update)
			if !ok {
				return
			}
			ctx = context.WithValue(ctx, ChatKey, chatID)
			ctx = context.WithValue(ctx, WorkspaceKey, WorkspaceFor(chatID))
			next(ctx, b, update)
		}
	}
}
