package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/studiochat/internal/domain"
)

func TestPromptBookDefaults(t *testing.T) {
	book, err := LoadPromptBook("")
	require.NoError(t, err)

	prompt := book.ChatPrompt(CanvasContext{})
	assert.Contains(t, prompt, book.NoNodes)
	assert.Contains(t, prompt, book.NoLogs)
	assert.NotContains(t, prompt, "{selectedInfo}")

	assert.Equal(t, book.DNAGenerator, book.DesignPrompt(domain.VisualDNA{}, nil))
}

func TestPromptBookDesignPrompt(t *testing.T) {
	book, err := LoadPromptBook("")
	require.NoError(t, err)

	prompt := book.DesignPrompt(domain.VisualDNA{Raw: "palette: teal"}, []string{"front", ""})

	assert.Contains(t, prompt, "palette: teal")
	assert.NotContains(t, prompt, "{visualDNA}")
	assert.Contains(t, prompt, "- [front]\n- [Unnamed]")
}

func TestPromptBookAnnouncement(t *testing.T) {
	book, err := LoadPromptBook("")
	require.NoError(t, err)

	assert.Contains(t, book.Announcement("mood: calm", false), "Visual DNA locked")
	assert.Contains(t, book.Announcement("mood: calm", true), "Style DNA extracted")
	assert.Contains(t, book.Announcement("mood: calm", true), "mood: calm")
}

func TestPromptBookOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("suggested_actions: \"Try these:\"\n"), 0o600))

	book, err := LoadPromptBook(path)
	require.NoError(t, err)
	assert.Equal(t, "Try these:", book.SuggestedActions)
	assert.NotEmpty(t, book.ChatSystem)

	_, err = LoadPromptBook(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestCanvasBoard(t *testing.T) {
	board := NewCanvasBoard(2)
	ctx := t.Context()

	a, err := board.AddNode(ctx, testWS, "TEXT_FAST", map[string]any{"prompt": "one"})
	require.NoError(t, err)
	assert.Equal(t, "Fast text", a.Title)
	assert.Len(t, a.ID, len("node-")+8)

	_, err = board.AddNode(ctx, testWS, "NOPE", nil)
	assert.ErrorIs(t, err, domain.ErrUnknownNodeType)

	require.NoError(t, board.UpdateNode(ctx, testWS, a.ID, map[string]any{"prompt": "two"}))
	assert.ErrorIs(t, board.UpdateNode(ctx, testWS, "node-missing", nil), domain.ErrNodeNotFound)
	assert.ErrorIs(t, board.Select(testWS, "node-missing"), domain.ErrNodeNotFound)

	cc := board.Context(testWS)
	require.Len(t, cc.Nodes, 1)
	assert.Equal(t, "two", cc.Nodes[0].Data["prompt"])
	require.Len(t, cc.Logs, 2)
	assert.Equal(t, "[INFO] updated "+a.ID, cc.Logs[0])
	assert.Equal(t, "[ERROR] update of missing node node-missing", cc.Logs[1])

	// Boards are isolated per workspace.
	assert.Empty(t, board.Context("tg:7").Nodes)

	board.Forget(testWS)
	assert.Empty(t, board.Context(testWS).Nodes)
}

func TestCalculateCost(t *testing.T) {
	cost := CalculateCost(Usage{PromptTokens: 1500, CompletionTokens: 200},
		decimal.RequireFromString("0.5"), decimal.RequireFromString("1.5"))

	assert.True(t, decimal.RequireFromString("0.00105").Equal(cost), cost.String())
	assert.True(t, CalculateCost(Usage{}, decimal.NewFromInt(3), decimal.NewFromInt(15)).IsZero())
}
