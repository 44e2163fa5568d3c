package handler

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const helpText = "📋 *Commands:*\n" +
	"/design — Design mode: lock a Visual DNA, then plan page images\n" +
	"/chat — Free chat about your canvas\n" +
	"/dna — Show the locked Visual DNA\n" +
	"/cleardna — Unlock the Visual DNA\n" +
	"/refs — Lock or unlock reference images\n" +
	"/canvas — Show canvas nodes and activity\n" +
	"/select <node> — Select a canvas node\n" +
	"/sessions — Switch or delete sessions\n" +
	"/new — Start a new session\n" +
	"/reset — Clear the current session\n\n" +
	"📎 Send a photo without caption to stage it, or with `#label` to stage it with a label.\n" +
	"A photo with any other caption is sent right away."

func (h *Handler) handleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}

	name := "there"
	if update.Message.From != nil && update.Message.From.FirstName != "" {
		name = update.Message.From.FirstName
	}

	h.send(ctx, update.Message.Chat.ID,
		"👋 Hi, *"+name+"*!\n\n"+
			"I help you design e-commerce product images. Upload product photos, "+
			"switch to /design to lock a visual style, then ask for page modules.\n\n"+
			helpText,
	)
}

func (h *Handler) handleHelp(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.send(ctx, update.Message.Chat.ID, helpText)
}
