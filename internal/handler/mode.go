package handler

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/studiochat/internal/domain"
	"github.com/set-night/studiochat/internal/middleware"
)

func (h *Handler) handleChatMode(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sessions.SetMode(ctx, middleware.WorkspaceID(ctx), domain.ModeChat)
	h.send(ctx, update.Message.Chat.ID, "💬 Free chat mode. I can see your canvas nodes and activity.")
}

func (h *Handler) handleDesignMode(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	ws := middleware.WorkspaceID(ctx)
	h.sessions.SetMode(ctx, ws, domain.ModeDesign)

	text := "🎨 Design mode. Upload product photos and describe the product; I will propose a Visual DNA first."
	if h.sessions.DNA(ctx, ws).Locked() {
		text = "🎨 Design mode. The Visual DNA is locked; ask for any page module."
	}
	h.send(ctx, update.Message.Chat.ID, text)
}

func (h *Handler) handleDNA(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	dna := h.sessions.DNA(ctx, middleware.WorkspaceID(ctx))
	if !dna.Locked() {
		h.send(ctx, update.Message.Chat.ID, "🧬 No Visual DNA is locked yet. Use /design to create one.")
		return
	}

	text := "🧬 *Visual DNA*\n\n" + dna.Raw
	if dna.ProductIdentity != "" {
		text += "\n\n📦 Product: " + dna.ProductIdentity
	}
	h.send(ctx, update.Message.Chat.ID, text)
}

func (h *Handler) handleClearDNA(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sessions.ClearDNA(ctx, middleware.WorkspaceID(ctx))
	h.send(ctx, update.Message.Chat.ID, "🧬 Visual DNA unlocked. The next design turn starts a new one.")
}

func (h *Handler) handleReset(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	ws := middleware.WorkspaceID(ctx)
	h.sessions.ResetSession(ctx, ws)
	h.canvas.Forget(ws)
	h.send(ctx, update.Message.Chat.ID, "🔄 Session and canvas cleared. Visual DNA unlocked, back to free chat.")
}
