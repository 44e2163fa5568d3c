package handler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/studiochat/internal/domain"
	"github.com/set-night/studiochat/internal/middleware"
	"github.com/set-night/studiochat/internal/service"
	tg "github.com/set-night/studiochat/internal/telegram"
)

// stageLabel decides what to do with an upload's caption. An empty caption
// stages the upload unlabeled, "#label" stages it with that label, and any
// other caption is sent as the text of a turn.
func stageLabel(caption string) (label string, stage bool) {
	caption = strings.TrimSpace(caption)
	if caption == "" {
		return "", true
	}
	if rest, ok := strings.CutPrefix(caption, "#"); ok {
		return strings.TrimSpace(rest), true
	}
	return "", false
}

// upload returns the file carried by a message, if any.
func upload(msg *models.Message) (fileID, name, mimeType string, ok bool) {
	switch {
	case len(msg.Photo) > 0:
		// Highest resolution comes last
		p := msg.Photo[len(msg.Photo)-1]
		return p.FileID, "photo.jpg", "image/jpeg", true
	case msg.Document != nil:
		return msg.Document.FileID, msg.Document.FileName, msg.Document.MimeType, true
	}
	return "", "", "", false
}

// addressed reports whether a message is meant for the bot and returns its
// text and caption with the mention removed. Private chats always are; in
// groups the bot must be mentioned or replied to.
func addressed(msg *models.Message, username string) (text, caption string, ok bool) {
	if msg.Chat.Type == "private" || username == "" {
		return msg.Text, msg.Caption, true
	}

	mention := "@" + username
	ok = strings.Contains(msg.Text, mention) || strings.Contains(msg.Caption, mention)
	if r := msg.ReplyToMessage; r != nil && r.From != nil && r.From.Username == username {
		ok = true
	}
	strip := func(s string) string {
		return strings.TrimSpace(strings.ReplaceAll(s, mention, ""))
	}
	return strip(msg.Text), strip(msg.Caption), ok
}

// HandleMessage processes plain text, photos and documents.
func (h *Handler) HandleMessage(ctx context.Context, b *bot.Bot, update *models.Update) {
	msg := update.Message
	if msg == nil || strings.HasPrefix(msg.Text, "/") {
		return
	}
	text, caption, ok := addressed(msg, h.botUsername)
	if !ok {
		return
	}

	ws := middleware.WorkspaceID(ctx)
	chatID := msg.Chat.ID
	in := service.SendInput{Text: text}

	if fileID, name, mimeType, ok := upload(msg); ok {
		label, stage := stageLabel(caption)
		att, err := tg.Attachment(ctx, b, fileID, name, mimeType, label)
		if err != nil {
			slog.Error("download upload", "workspace", ws, "error", err)
			h.send(ctx, chatID, "❌ Could not download the file.")
			return
		}

		if stage {
			h.sessions.Stage(ctx, ws, att)
			text := fmt.Sprintf("📎 Staged *%s*", att.Name)
			if label != "" {
				text += fmt.Sprintf(" as [%s]", label)
			}
			text += ". It will be sent with your next message; /refs locks it as a reference."
			h.send(ctx, chatID, text)
			return
		}

		in.Text = caption
		in.Attachments = []domain.Attachment{att}
	}

	h.runTurn(ctx, b, chatID, ws, in)
}

// runTurn sends one turn and delivers what it appended.
func (h *Handler) runTurn(ctx context.Context, b *bot.Bot, chatID int64, ws string, in service.SendInput) {
	stopTyping := tg.StartTyping(ctx, b, chatID)
	res, err := h.turns.Send(ctx, ws, in)
	stopTyping()

	if err != nil {
		slog.Warn("turn rejected", "workspace", ws, "error", err)
		h.send(ctx, chatID, userError(err))
		return
	}
	if res.Err != nil {
		h.ops.LogError(res.Err, ws, "chat turn")
	}

	for _, reply := range res.Replies {
		h.deliver(ctx, b, chatID, reply)
	}

	if h.cfg.ShowCost && !res.Cost.IsZero() {
		snap := h.sessions.Snapshot(ctx, ws)
		spend := snap.Session(res.SessionID)
		text := fmt.Sprintf("💰 Cost: $%s", res.Cost.StringFixed(6))
		if spend != nil {
			text += fmt.Sprintf(" | Session: $%s", spend.Spend.StringFixed(4))
		}
		h.send(ctx, chatID, text)
	}
}

// deliver renders one assistant message with its buttons.
func (h *Handler) deliver(ctx context.Context, b *bot.Bot, chatID int64, msg domain.Message) {
	text := msg.Content
	if req := msg.ImageRequest(); req != nil {
		summary := proposalSummary(req)
		if text == "" {
			text = summary
		} else {
			text += "\n\n" + summary
		}
	}
	if text == "" {
		return
	}

	if _, err := tg.SendLongMessage(ctx, b, chatID, text, messageKeyboard(msg)); err != nil {
		slog.Error("deliver reply", "chat_id", chatID, "message", msg.ID, "error", err)
	}
}
