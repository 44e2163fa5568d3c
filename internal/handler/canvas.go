package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/set-night/studiochat/internal/middleware"
	"github.com/set-night/studiochat/internal/service"
)

// canvasText renders the board of a workspace.
func canvasText(cc service.CanvasContext) string {
	var sb strings.Builder
	sb.WriteString("🧩 *Canvas*\n\n")
	if len(cc.Nodes) == 0 {
		sb.WriteString("No nodes yet.\n")
	}
	for _, n := range cc.Nodes {
		marker := "▫️"
		if n.ID == cc.SelectedID {
			marker = "▶️"
		}
		fmt.Fprintf(&sb, "%s `%s` %s\n", marker, n.ID, n.Title)
		if p, ok := n.Data["prompt"].(string); ok && p != "" {
			fmt.Fprintf(&sb, "    _%s_\n", p)
		}
	}
	if len(cc.Logs) > 0 {
		sb.WriteString("\n📜 *Activity*\n")
		for _, l := range cc.Logs {
			sb.WriteString(l + "\n")
		}
	}
	return sb.String()
}

func (h *Handler) handleCanvas(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	h.send(ctx, update.Message.Chat.ID, canvasText(h.canvas.Context(middleware.WorkspaceID(ctx))))
}

func (h *Handler) handleSelect(ctx context.Context, b *bot.Bot, update *models.Update) {
	if update.Message == nil {
		return
	}
	chatID := update.Message.Chat.ID
	ws := middleware.WorkspaceID(ctx)

	var id string
	if parts := strings.Fields(update.Message.Text); len(parts) > 1 {
		id = parts[1]
	}

	if err := h.canvas.Select(ws, id); err != nil {
		h.send(ctx, chatID, userError(err))
		return
	}
	if id == "" {
		h.send(ctx, chatID, "▫️ Selection cleared.")
		return
	}
	h.send(ctx, chatID, fmt.Sprintf("▶️ Selected `%s`. New workflows chain from it.", id))
}
