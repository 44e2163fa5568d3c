package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/studiochat/internal/config"
	"github.com/set-night/studiochat/internal/domain"
	"github.com/set-night/studiochat/internal/middleware"
	tg "github.com/set-night/studiochat/internal/telegram"
)

func (h *Handler) handleSessions(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sendSessionsPage(ctx, b, update.Message.Chat.ID, middleware.WorkspaceID(ctx), 0, 0)
}

func (h *Handler) handleNewSessionCommand(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.sessions.NewSession(ctx, middleware.WorkspaceID(ctx))
	h.send(ctx, update.Message.Chat.ID, "➕ New session started.")
}

// sessionsPage renders one page of the session list.
func sessionsPage(ws domain.Workspace, page int) (string, *models.InlineKeyboardMarkup) {
	total := len(ws.Sessions)
	totalPages := (total + config.SessionsPerPage - 1) / config.SessionsPerPage
	if totalPages == 0 {
		totalPages = 1
	}
	page = max(0, min(page, totalPages-1))

	var rows [][]models.InlineKeyboardButton
	start := page * config.SessionsPerPage
	end := min(start+config.SessionsPerPage, total)
	for _, s := range ws.Sessions[start:end] {
		label := fmt.Sprintf("%s (%d)", s.Title, len(s.Messages))
		if s.ID == ws.Current().ID {
			label += " ✅"
		}
		rows = append(rows, tg.ButtonRow(tg.InlineButton(label, cbSwitchSession+s.ID)))
	}

	rows = append(rows, tg.ButtonRow(
		tg.InlineButton("➕ New", cbNewSession),
		tg.InlineButton("🗑 Current", cbDeleteCurrent),
	))
	if totalPages > 1 {
		rows = append(rows, tg.PaginationRow(page, totalPages, cbSessionsPage))
	}

	return fmt.Sprintf("📂 *Sessions* (%d)", total), tg.InlineKeyboard(rows...)
}

// sendSessionsPage sends the list, or edits messageID in place when set.
func (h *Handler) sendSessionsPage(ctx context.Context, b *bot.Bot, chatID int64, ws string, page, messageID int) {
	text, keyboard := sessionsPage(h.sessions.Snapshot(ctx, ws), page)

	if messageID != 0 {
		_, err := b.EditMessageText(ctx, &bot.EditMessageTextParams{
			ChatID:      chatID,
			MessageID:   messageID,
			Text:        text,
			ParseMode:   models.ParseModeMarkdownV1,
			ReplyMarkup: keyboard,
		})
		if err != nil {
			slog.Debug("edit sessions page", "error", err)
		}
		return
	}
	if _, err := tg.SendLongMessage(ctx, b, chatID, text, keyboard); err != nil {
		slog.Error("send sessions page", "error", err)
	}
}

func (h *Handler) handleNewSession(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.answer(ctx, update, "")
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}
	ws := middleware.WorkspaceID(ctx)

	h.sessions.NewSession(ctx, ws)
	h.sendSessionsPage(ctx, b, chatID, ws, 0, messageID)
}

func (h *Handler) handleDeleteCurrentSession(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.answer(ctx, update, "")
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}
	ws := middleware.WorkspaceID(ctx)

	snap := h.sessions.Snapshot(ctx, ws)
	current := snap.Current()
	if err := h.sessions.DeleteSession(ctx, ws, current.ID); err != nil {
		slog.Error("delete session", "workspace", ws, "error", err)
		return
	}
	h.sendSessionsPage(ctx, b, chatID, ws, 0, messageID)
}

func (h *Handler) handleSwitchSession(ctx context.Context, b *bot.Bot, update *models.Update) {
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		h.answer(ctx, update, "")
		return
	}
	ws := middleware.WorkspaceID(ctx)
	sessionID := strings.TrimPrefix(update.CallbackQuery.Data, cbSwitchSession)

	if err := h.sessions.SwitchSession(ctx, ws, sessionID); err != nil {
		h.answer(ctx, update, userError(err))
		return
	}
	h.answer(ctx, update, "")
	h.sendSessionsPage(ctx, b, chatID, ws, 0, messageID)
}

func (h *Handler) handleSessionsPage(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.answer(ctx, update, "")
	chatID, messageID, ok := callbackMessage(update)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(strings.TrimPrefix(update.CallbackQuery.Data, cbSessionsPage))
	h.sendSessionsPage(ctx, b, chatID, middleware.WorkspaceID(ctx), page, messageID)
}
