package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"

	"github.com/set-night/studiochat/internal/config"
)

// OpsLogger mirrors operational events into a Telegram forum chat, one
// topic per event type. It is a no-op when no ops chat is configured.
type OpsLogger struct {
	bot *bot.Bot
	cfg *config.Config
}

func NewOpsLogger(b *bot.Bot, cfg *config.Config) *OpsLogger {
	return &OpsLogger{bot: b, cfg: cfg}
}

type LogType string

const (
	LogTypeError LogType = "error"
	LogTypeImage LogType = "image"
)

func (l *OpsLogger) Log(logType LogType, message string) {
	if l == nil || l.cfg.OpsChatID == 0 {
		return
	}

	topicID := l.topicID(logType)
	if topicID == 0 {
		return
	}

	// Truncate if too long
	if len([]rune(message)) > config.MaxTelegramMessageLen {
		message = string([]rune(message)[:config.MaxTelegramMessageLen-20]) + "\n\n... (truncated)"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := l.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          l.cfg.OpsChatID,
		Text:            message,
		MessageThreadID: topicID,
	})
	if err != nil {
		slog.Error("failed to send ops log", "type", logType, "error", err)
	}
}

func (l *OpsLogger) LogError(err error, workspaceID, context string) {
	msg := fmt.Sprintf("❌ Error\n\nWorkspace: %s\nContext: %s\nError: %s\nTime: %s",
		workspaceID, context, err.Error(), time.Now().Format("2006-01-02 15:04:05"))
	l.Log(LogTypeError, msg)
}

func (l *OpsLogger) LogImage(workspaceID, module string, genErr error) {
	status := "✅ generated"
	if genErr != nil {
		status = "❌ failed: " + genErr.Error()
	}
	msg := fmt.Sprintf("🖼 Image %s\n\nWorkspace: %s\nModule: %s", status, workspaceID, module)
	l.Log(LogTypeImage, msg)
}

func (l *OpsLogger) topicID(logType LogType) int {
	switch logType {
	case LogTypeError:
		return l.cfg.OpsTopicError
	case LogTypeImage:
		return l.cfg.OpsTopicImage
	default:
		return 0
	}
}
