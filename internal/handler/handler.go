package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/studiochat/internal/config"
	"github.com/set-night/studiochat/internal/domain"
	"github.com/set-night/studiochat/internal/service"
	"github.com/set-night/studiochat/internal/telegram"
)

// Handler holds all dependencies needed by command and callback handlers.
type Handler struct {
	bot         *bot.Bot
	cfg         *config.Config
	sessions    *service.SessionService
	turns       *service.TurnService
	actions     *service.ActionService
	canvas      *service.CanvasBoard
	ops         *telegram.OpsLogger
	botUsername string
}

// Deps contains all dependencies required to construct a Handler.
type Deps struct {
	Bot         *bot.Bot
	Cfg         *config.Config
	Sessions    *service.SessionService
	Turns       *service.TurnService
	Actions     *service.ActionService
	Canvas      *service.CanvasBoard
	Ops         *telegram.OpsLogger
	BotUsername string
}

// New creates a new Handler from the provided dependencies.
func New(deps Deps) *Handler {
	return &Handler{
		bot:         deps.Bot,
		cfg:         deps.Cfg,
		sessions:    deps.Sessions,
		turns:       deps.Turns,
		actions:     deps.Actions,
		canvas:      deps.Canvas,
		ops:         deps.Ops,
		botUsername: deps.BotUsername,
	}
}

// userError is the text shown for errors a user can act on. Unexpected
// errors get a generic line and are logged by the caller.
func userError(err error) string {
	switch {
	case errors.Is(err, domain.ErrBusy):
		return "⏳ Wait for the current request to finish."
	case errors.Is(err, domain.ErrProviderNotConfigured):
		return "❌ The AI provider is not configured."
	case errors.Is(err, domain.ErrEmptyInput):
		return "✏️ Send some text or an image first."
	case errors.Is(err, domain.ErrProposalSpent):
		return "✅ This image was already generated."
	case errors.Is(err, domain.ErrMessageNotFound), errors.Is(err, domain.ErrSessionNotFound):
		return "🤷 This message is no longer in the current session."
	case errors.Is(err, domain.ErrInvalidRatio):
		return "❌ Unsupported aspect ratio."
	case errors.Is(err, domain.ErrUnknownNodeType):
		return "❌ Unknown node type."
	case errors.Is(err, domain.ErrNodeNotFound):
		return "❌ Node not found on the canvas."
	}
	return "❌ Something went wrong."
}

func (h *Handler) send(ctx context.Context, chatID int64, text string) {
	if _, err := telegram.SendLongMessage(ctx, h.bot, chatID, text, nil); err != nil {
		slog.Error("send message", "chat_id", chatID, "error", err)
	}
}

// answer acknowledges a callback query, optionally with a toast.
func (h *Handler) answer(ctx context.Context, update *models.Update, text string) {
	if update.CallbackQuery == nil {
		return
	}
	h.bot.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
		Text:            text,
	})
}

// callbackMessage returns the chat and message a callback button belongs to.
func callbackMessage(update *models.Update) (int64, int, bool) {
	if update.CallbackQuery == nil || update.CallbackQuery.Message.Message == nil {
		return 0, 0, false
	}
	msg := update.CallbackQuery.Message.Message
	return msg.Chat.ID, msg.ID, true
}

// handleNoop acknowledges buttons that only display state.
func (h *Handler) handleNoop(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.answer(ctx, update, "")
}
