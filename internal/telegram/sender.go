package telegram

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/studiochat/internal/config"
	"github.com/set-night/studiochat/internal/service"
)

// SendLongMessage sends a potentially long message, splitting it into parts if needed.
// The reply markup is attached to the last part. Falls back to plain text if
// Markdown parsing fails.
func SendLongMessage(ctx context.Context, b *bot.Bot, chatID int64, text string, markup models.ReplyMarkup) (*models.Message, error) {
	text = FixMarkdown(text)
	parts := SplitMessage(text, config.MaxTelegramMessageLen)

	var last *models.Message
	for i, part := range parts {
		params := &bot.SendMessageParams{
			ChatID:    chatID,
			Text:      part,
			ParseMode: models.ParseModeMarkdownV1,
		}
		if i == len(parts)-1 && !isNilMarkup(markup) {
			params.ReplyMarkup = markup
		}

		sent, err := b.SendMessage(ctx, params)
		if err != nil {
			// Fallback to plain text
			slog.Warn("markdown send failed, falling back to plain text", "error", err)
			params.ParseMode = ""
			sent, err = b.SendMessage(ctx, params)
			if err != nil {
				return nil, fmt.Errorf("send message: %w", err)
			}
		}
		last = sent
	}

	return last, nil
}

// isNilMarkup also catches a nil keyboard pointer stored in the interface.
func isNilMarkup(m models.ReplyMarkup) bool {
	if m == nil {
		return true
	}
	k, ok := m.(*models.InlineKeyboardMarkup)
	return ok && k == nil
}

// EditMarkup replaces the inline keyboard of a sent message. A nil markup
// removes it.
func EditMarkup(ctx context.Context, b *bot.Bot, chatID int64, messageID int, markup models.ReplyMarkup) error {
	if isNilMarkup(markup) {
		markup = &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{}}
	}
	_, err := b.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   messageID,
		ReplyMarkup: markup,
	})
	if err != nil {
		return fmt.Errorf("edit markup: %w", err)
	}
	return nil
}

// StartAction sends a chat action every 4 seconds until the returned cancel
// function is called.
func StartAction(ctx context.Context, b *bot.Bot, chatID int64, action models.ChatAction) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(4 * time.Second)
		defer ticker.Stop()
		// Send immediately
		b.SendChatAction(ctx, &bot.SendChatActionParams{
			ChatID: chatID,
			Action: action,
		})
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.SendChatAction(ctx, &bot.SendChatActionParams{
					ChatID: chatID,
					Action: action,
				})
			}
		}
	}()
	return cancel
}

// StartTyping shows "typing..." until cancelled.
func StartTyping(ctx context.Context, b *bot.Bot, chatID int64) context.CancelFunc {
	return StartAction(ctx, b, chatID, models.ChatActionTyping)
}

// photoInput turns a generated image reference into an uploadable file.
// Data URIs are uploaded, URLs are passed through for Telegram to fetch.
func photoInput(image, name string) (models.InputFile, error) {
	if !service.IsDataURI(image) {
		return &models.InputFileString{Data: image}, nil
	}
	_, data, err := service.DecodeDataURI(image)
	if err != nil {
		return nil, err
	}
	return &models.InputFileUpload{Filename: name, Data: bytes.NewReader(data)}, nil
}

// SendImage sends a generated image with a caption.
func SendImage(ctx context.Context, b *bot.Bot, chatID int64, image, caption string, markup models.ReplyMarkup) (*models.Message, error) {
	photo, err := photoInput(image, "image.png")
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	params := &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   photo,
		Caption: caption,
	}
	if !isNilMarkup(markup) {
		params.ReplyMarkup = markup
	}
	msg, err := b.SendPhoto(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("send photo: %w", err)
	}
	return msg, nil
}
