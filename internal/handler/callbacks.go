package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/studiochat/internal/middleware"
	tg "github.com/set-night/studiochat/internal/telegram"
)

// refreshKeyboard redraws the buttons of the Telegram message behind a
// callback from the current state of the chat message.
func (h *Handler) refreshKeyboard(ctx context.Context, update *models.Update, msgID string) {
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}
	sess, at, err := h.sessions.FindMessage(ctx, middleware.WorkspaceID(ctx), msgID)
	if err != nil {
		return
	}
	if err := tg.EditMarkup(ctx, h.bot, chatID, messageID, messageKeyboard(sess.Messages[at])); err != nil {
		slog.Debug("refresh keyboard", "message", msgID, "error", err)
	}
}

func (h *Handler) handleGenerate(ctx context.Context, b *bot.Bot, update *models.Update) {
	msgID := strings.TrimPrefix(update.CallbackQuery.Data, cbGenerate)
	ws := middleware.WorkspaceID(ctx)
	chatID := middleware.ChatID(ctx)

	h.answer(ctx, update, "🎨 Generating…")

	stop := tg.StartAction(ctx, b, chatID, models.ChatActionUploadPhoto)
	res, err := h.actions.ConfirmGenerate(ctx, ws, msgID)
	stop()

	if err != nil {
		slog.Warn("generate rejected", "workspace", ws, "message", msgID, "error", err)
		h.send(ctx, chatID, userError(err))
		return
	}

	req := res.Message.ImageRequest()
	h.ops.LogImage(ws, req.Module, res.Err)
	if res.Err != nil {
		h.send(ctx, chatID, fmt.Sprintf("❌ \"%s\" failed: %s", req.Module, res.Err.Error()))
		return
	}

	h.refreshKeyboard(ctx, update, msgID)
	caption := fmt.Sprintf("✅ \"%s\" generated · %s", req.Module, req.Ratio)
	if _, err := tg.SendImage(ctx, b, chatID, res.Message.GeneratedImage, caption, nil); err != nil {
		slog.Error("send generated image", "workspace", ws, "message", msgID, "error", err)
		h.send(ctx, chatID, "❌ The image was generated but could not be sent.")
	}
}

func (h *Handler) handleRatioMenu(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.answer(ctx, update, "")
	msgID := strings.TrimPrefix(update.CallbackQuery.Data, cbRatios)

	sess, at, err := h.sessions.FindMessage(ctx, middleware.WorkspaceID(ctx), msgID)
	if err != nil {
		return
	}
	req := sess.Messages[at].ImageRequest()
	if req == nil || sess.Messages[at].GeneratedImage != "" {
		return
	}

	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}
	if err := tg.EditMarkup(ctx, b, chatID, messageID, ratioKeyboard(msgID, req.Ratio)); err != nil {
		slog.Debug("show ratios", "message", msgID, "error", err)
	}
}

func (h *Handler) handleRatio(ctx context.Context, b *bot.Bot, update *models.Update) {
	msgID, ratio, ok := splitArg(update.CallbackQuery.Data, cbRatio)
	if !ok {
		h.answer(ctx, update, "")
		return
	}

	if err := h.sessions.SetRatio(ctx, middleware.WorkspaceID(ctx), msgID, ratio); err != nil {
		h.answer(ctx, update, userError(err))
		return
	}
	h.answer(ctx, update, "📐 "+ratio)
	h.refreshKeyboard(ctx, update, msgID)
}

func (h *Handler) handleWorkflow(ctx context.Context, b *bot.Bot, update *models.Update) {
	msgID := strings.TrimPrefix(update.CallbackQuery.Data, cbWorkflow)
	ws := middleware.WorkspaceID(ctx)

	nodes, err := h.actions.ConfirmWorkflow(ctx, ws, msgID)
	if err != nil && len(nodes) == 0 {
		h.answer(ctx, update, userError(err))
		return
	}

	h.answer(ctx, update, fmt.Sprintf("🚀 %d nodes added", len(nodes)))
	h.refreshKeyboard(ctx, update, msgID)
	if err != nil {
		h.send(ctx, middleware.ChatID(ctx), fmt.Sprintf("⚠️ Workflow partly deployed (%d nodes): %s", len(nodes), userError(err)))
	}
}

func (h *Handler) handleAction(ctx context.Context, b *bot.Bot, update *models.Update) {
	msgID, idx, ok := splitIndex(update.CallbackQuery.Data, cbAction)
	if !ok {
		h.answer(ctx, update, "")
		return
	}

	a, err := h.actions.ConfirmAction(ctx, middleware.WorkspaceID(ctx), msgID, idx)
	if err != nil {
		h.answer(ctx, update, userError(err))
		return
	}
	h.answer(ctx, update, string(a.Status))
	h.refreshKeyboard(ctx, update, msgID)
}

func (h *Handler) handleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	msgID, idx, ok := splitIndex(update.CallbackQuery.Data, cbCancel)
	if !ok {
		h.answer(ctx, update, "")
		return
	}

	if _, err := h.actions.CancelAction(ctx, middleware.WorkspaceID(ctx), msgID, idx); err != nil {
		h.answer(ctx, update, userError(err))
		return
	}
	h.answer(ctx, update, "")
	h.refreshKeyboard(ctx, update, msgID)
}

func (h *Handler) handleLock(ctx context.Context, b *bot.Bot, update *models.Update) {
	msgID, attID, ok := splitArg(update.CallbackQuery.Data, cbLock)
	if !ok {
		h.answer(ctx, update, "")
		return
	}
	ws := middleware.WorkspaceID(ctx)

	locked, err := h.sessions.ToggleSelection(ctx, ws, msgID, attID)
	if err != nil {
		h.answer(ctx, update, userError(err))
		return
	}
	if locked {
		h.answer(ctx, update, "🔒 Locked")
	} else {
		h.answer(ctx, update, "🔓 Unlocked")
	}

	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}
	if err := tg.EditMarkup(ctx, b, chatID, messageID, refsKeyboard(h.references(ctx, ws))); err != nil {
		slog.Debug("refresh refs", "workspace", ws, "error", err)
	}
}

// references lists the image attachments of the current session followed
// by the staged ones.
func (h *Handler) references(ctx context.Context, ws string) []refEntry {
	snap := h.sessions.Snapshot(ctx, ws)
	var out []refEntry
	if cur := snap.Current(); cur != nil {
		for _, m := range cur.Messages {
			for _, f := range m.Files {
				if f.IsImage() {
					out = append(out, refEntry{MessageID: m.ID, Attachment: f})
				}
			}
		}
	}
	for _, f := range h.sessions.Staged(ctx, ws) {
		if f.IsImage() {
			out = append(out, refEntry{Attachment: f})
		}
	}
	return out
}

// lockedCount is the number of locked references.
func lockedCount(refs []refEntry) int {
	n := 0
	for _, r := range refs {
		if r.Attachment.Selected {
			n++
		}
	}
	return n
}
