package handler

import (
	"github.com/go-telegram/bot"

	"github.com/set-night/studiochat/internal/telegram"
)

// Register registers all command and callback handlers on the bot instance.
// Plain messages, photos and documents reach HandleMessage through the
// default handler.
func (h *Handler) Register() {
	// Commands
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/start", bot.MatchTypePrefix, h.handleStart)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/help", bot.MatchTypePrefix, h.handleHelp)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/chat", bot.MatchTypePrefix, h.handleChatMode)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/design", bot.MatchTypePrefix, h.handleDesignMode)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/dna", bot.MatchTypePrefix, h.handleDNA)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/cleardna", bot.MatchTypePrefix, h.handleClearDNA)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/reset", bot.MatchTypePrefix, h.handleReset)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/refs", bot.MatchTypePrefix, h.handleRefs)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/sessions", bot.MatchTypePrefix, h.handleSessions)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/new", bot.MatchTypePrefix, h.handleNewSessionCommand)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/canvas", bot.MatchTypePrefix, h.handleCanvas)
	h.bot.RegisterHandler(bot.HandlerTypeMessageText, "/select", bot.MatchTypePrefix, h.handleSelect)

	// Proposal callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbGenerate, bot.MatchTypePrefix, h.handleGenerate)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbRatios, bot.MatchTypePrefix, h.handleRatioMenu)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbRatio, bot.MatchTypePrefix, h.handleRatio)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbWorkflow, bot.MatchTypePrefix, h.handleWorkflow)

	// Action callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbAction, bot.MatchTypePrefix, h.handleAction)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbCancel, bot.MatchTypePrefix, h.handleCancel)

	// Reference lock callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbLock, bot.MatchTypePrefix, h.handleLock)

	// Sessions callbacks
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbNewSession, bot.MatchTypeExact, h.handleNewSession)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbDeleteCurrent, bot.MatchTypeExact, h.handleDeleteCurrentSession)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbSwitchSession, bot.MatchTypePrefix, h.handleSwitchSession)
	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, cbSessionsPage, bot.MatchTypePrefix, h.handleSessionsPage)

	h.bot.RegisterHandler(bot.HandlerTypeCallbackQueryData, telegram.NoopData, bot.MatchTypeExact, h.handleNoop)
}
