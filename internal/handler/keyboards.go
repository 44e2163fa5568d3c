package handler

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"

	"github.com/set-night/studiochat/internal/config"
	"github.com/set-night/studiochat/internal/domain"
	tg "github.com/set-night/studiochat/internal/telegram"
)

// Callback data prefixes. Message ids never contain "_", so the argument
// after the last "_" is unambiguous.
const (
	cbGenerate      = "gen_"
	cbRatios        = "ratios_"
	cbRatio         = "ratio_"
	cbWorkflow      = "wf_"
	cbAction        = "act_"
	cbCancel        = "cancel_"
	cbLock          = "lock_"
	cbNewSession    = "new_session"
	cbDeleteCurrent = "delete_current"
	cbSwitchSession = "switch_session_"
	cbSessionsPage  = "sessions_page_"
)

const ratiosPerRow = 5

// splitArg parses "<prefix><id>_<arg>".
func splitArg(data, prefix string) (id, arg string, ok bool) {
	rest, ok := strings.CutPrefix(data, prefix)
	if !ok {
		return "", "", false
	}
	i := strings.LastIndex(rest, "_")
	if i < 0 {
		return "", "", false
	}
	return rest[:i], rest[i+1:], true
}

// splitIndex parses "<prefix><id>_<n>".
func splitIndex(data, prefix string) (string, int, bool) {
	id, arg, ok := splitArg(data, prefix)
	if !ok || id == "" {
		return "", 0, false
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		return "", 0, false
	}
	return id, n, true
}

// messageKeyboard returns the buttons an assistant message offers, or nil.
func messageKeyboard(msg domain.Message) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton

	if req := msg.ImageRequest(); req != nil && msg.GeneratedImage == "" {
		rows = append(rows, tg.ButtonRow(
			tg.InlineButton(fmt.Sprintf("🎨 Generate (%s)", req.Ratio), cbGenerate+msg.ID),
			tg.InlineButton("📐 Ratio", cbRatios+msg.ID),
		))
	}

	if wf := msg.Workflow(); wf != nil && !wf.Applied {
		rows = append(rows, tg.ButtonRow(
			tg.InlineButton(fmt.Sprintf("🚀 Deploy workflow (%d nodes)", len(wf.Nodes)), cbWorkflow+msg.ID),
		))
	}

	for i, a := range msg.Actions {
		switch a.Status {
		case domain.ActionExecuted:
			rows = append(rows, tg.ButtonRow(tg.InlineButton("✔️ "+a.Description, tg.NoopData)))
		case domain.ActionCancelled:
			rows = append(rows, tg.ButtonRow(tg.InlineButton("🚫 "+a.Description, tg.NoopData)))
		default:
			rows = append(rows, tg.ButtonRow(
				tg.InlineButton("▶️ "+a.Description, fmt.Sprintf("%s%s_%d", cbAction, msg.ID, i)),
				tg.InlineButton("✖️", fmt.Sprintf("%s%s_%d", cbCancel, msg.ID, i)),
			))
		}
	}

	return tg.InlineKeyboard(rows...)
}

// ratioKeyboard offers the supported ratios for a proposal. Picking the
// current one goes back without a change.
func ratioKeyboard(msgID, current string) *models.InlineKeyboardMarkup {
	buttons := make([]models.InlineKeyboardButton, 0, len(config.SupportedRatios))
	for _, r := range config.SupportedRatios {
		label := r
		if r == current {
			label = "• " + r
		}
		buttons = append(buttons, tg.InlineButton(label, cbRatio+msgID+"_"+r))
	}
	rows := tg.Grid(buttons, ratiosPerRow)
	rows = append(rows, tg.ButtonRow(tg.InlineButton("⬅️ Back", cbRatio+msgID+"_"+current)))
	return tg.InlineKeyboard(rows...)
}

// refEntry is one image attachment listed by /refs. MessageID is empty for
// staged uploads.
type refEntry struct {
	MessageID  string
	Attachment domain.Attachment
}

func refsKeyboard(refs []refEntry) *models.InlineKeyboardMarkup {
	var rows [][]models.InlineKeyboardButton
	for i, r := range refs {
		icon := "🔓"
		if r.Attachment.Selected {
			icon = "🔒"
		}
		label := r.Attachment.Label
		if label == "" {
			label = r.Attachment.Name
		}
		if r.MessageID == "" {
			label += " (staged)"
		}
		rows = append(rows, tg.ButtonRow(tg.InlineButton(
			fmt.Sprintf("%s %d. %s", icon, i+1, label),
			cbLock+r.MessageID+"_"+r.Attachment.ID,
		)))
	}
	return tg.InlineKeyboard(rows...)
}

// proposalSummary is appended to a proposal message's text.
func proposalSummary(req *domain.ImageRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🖼 *%s* · %s", req.Module, req.Ratio)
	if req.Copy != "" {
		fmt.Fprintf(&b, "\nCopy: %s", req.Copy)
	}
	if len(req.NeedLabels) > 0 {
		fmt.Fprintf(&b, "\nReferences: %s", strings.Join(req.NeedLabels, ", "))
	}
	return b.String()
}
