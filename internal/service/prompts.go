package service

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/set-night/studiochat/internal/domain"
)

//go:embed prompts.yaml
var defaultPrompts []byte

// PromptBook holds the system prompt templates and the fixed assistant
// phrases. Fields left empty in an override file keep their default.
type PromptBook struct {
	ChatSystem            string `yaml:"chat_system"`
	DNAGenerator          string `yaml:"dna_generator"`
	ImageCompiler         string `yaml:"image_compiler"`
	SelectionContext      string `yaml:"selection_context"`
	SelectedNode          string `yaml:"selected_node"`
	NoNodes               string `yaml:"no_nodes"`
	NoLogs                string `yaml:"no_logs"`
	UnnamedLabel          string `yaml:"unnamed_label"`
	DNAAnnouncement       string `yaml:"dna_announcement"`
	LegacyDNAAnnouncement string `yaml:"legacy_dna_announcement"`
	SuggestedActions      string `yaml:"suggested_actions"`
}

// LoadPromptBook parses the embedded prompt book and, when path is set,
// overlays the file at path on top of it.
func LoadPromptBook(path string) (*PromptBook, error) {
	book := &PromptBook{}
	if err := yaml.Unmarshal(defaultPrompts, book); err != nil {
		return nil, fmt.Errorf("parse default prompts: %w", err)
	}
	if path == "" {
		return book, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompts file: %w", err)
	}
	// Unmarshal into the populated struct so unset keys keep defaults.
	if err := yaml.Unmarshal(data, book); err != nil {
		return nil, fmt.Errorf("parse prompts file %s: %w", path, err)
	}
	return book, nil
}

// CanvasContext is what the free-chat prompt knows about the canvas.
type CanvasContext struct {
	Nodes      []domain.Node
	SelectedID string
	Logs       []string
}

// ChatPrompt renders the free-chat system prompt.
func (p *PromptBook) ChatPrompt(c CanvasContext) string {
	nodes := p.NoNodes
	if len(c.Nodes) > 0 {
		lines := make([]string, len(c.Nodes))
		for i, n := range c.Nodes {
			lines[i] = fmt.Sprintf("- [%s] %s (%s)", n.ID, n.Title, n.Type)
		}
		nodes = strings.Join(lines, "\n")
	}

	selected := ""
	if c.SelectedID != "" {
		selected = strings.ReplaceAll(p.SelectedNode, "{id}", c.SelectedID)
	}

	logs := p.NoLogs
	if len(c.Logs) > 0 {
		logs = strings.Join(c.Logs, "\n")
	}

	return strings.NewReplacer(
		"{nodesContext}", nodes,
		"{selectedInfo}", selected,
		"{logsContext}", logs,
	).Replace(p.ChatSystem)
}

// DesignPrompt renders the design-mode system prompt: the DNA generator
// while no DNA is locked, the image compiler afterwards. Labels of locked
// reference images are appended.
func (p *PromptBook) DesignPrompt(dna domain.VisualDNA, lockedLabels []string) string {
	prompt := p.DNAGenerator
	if dna.Locked() {
		prompt = strings.ReplaceAll(p.ImageCompiler, "{visualDNA}", dna.Raw)
	}
	if len(lockedLabels) == 0 {
		return prompt
	}

	lines := make([]string, len(lockedLabels))
	for i, l := range lockedLabels {
		if l == "" {
			l = p.UnnamedLabel
		}
		lines[i] = "- [" + l + "]"
	}
	return prompt + strings.ReplaceAll(p.SelectionContext, "{selection}", strings.Join(lines, "\n"))
}

// Announcement is the assistant message posted when a DNA lock is set.
func (p *PromptBook) Announcement(raw string, legacy bool) string {
	tpl := p.DNAAnnouncement
	if legacy {
		tpl = p.LegacyDNAAnnouncement
	}
	return strings.ReplaceAll(tpl, "{dna}", raw)
}
