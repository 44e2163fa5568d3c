package handler

import (
	"context"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/studiochat/internal/middleware"
	tg "github.com/set-night/studiochat/internal/telegram"
)

func (h *Handler) handleRefs(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID

	refs := h.references(ctx, middleware.WorkspaceID(ctx))
	if len(refs) == 0 {
		h.send(ctx, chatID, "🖼 No images in this session yet. Send a product photo first.")
		return
	}

	text := fmt.Sprintf("🖼 *Reference images* (%d, %d locked)\n\n"+
		"Locked images are the only ones sent to the assistant and used for generation.", len(refs), lockedCount(refs))
	if _, err := tg.SendLongMessage(ctx, b, chatID, text, refsKeyboard(refs)); err != nil {
		h.send(ctx, chatID, userError(err))
	}
}
