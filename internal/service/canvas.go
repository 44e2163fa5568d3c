package service

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/set-night/studiochat/internal/domain"
)

// nodeTitles lists every node type the canvas can host.
var nodeTitles = map[string]string{
	"IMAGE_GEN":        "Image generation",
	"IMAGE_EDIT":       "Image edit",
	"IMAGE_OUTPAINT":   "Outpaint",
	"IMAGE_SLICER":     "Image slicer",
	"CAMERA_3D":        "3D camera",
	"BATCH_IMAGE_GEN":  "Batch image generation",
	"IMAGE_COLLAGE":    "Collage",
	"SEARCH":           "Web search",
	"AUDIO_LIVE":       "Live audio",
	"IMAGE_ANALYSIS":   "Image analysis",
	"TEXT_FAST":        "Fast text",
	"TEXT_PRO":         "Pro text",
	"VIDEO_GEN":        "Video generation",
	"TTS":              "Text to speech",
	"PROMPT_OPTIMIZER": "Prompt optimizer",
	"INTENT_PARSER":    "Intent parser",
	"AI_CHAT":          "AI chat",
	"MULTI_IMAGE_GEN":  "Multi image generation",
	"SVG_TEXT_OVERLAY": "SVG text overlay",
}

// KnownNodeType reports whether t names a canvas node type.
func KnownNodeType(t string) bool {
	_, ok := nodeTitles[t]
	return ok
}

// Canvas is the node collaborator used by confirmed actions and by the
// free-chat prompt.
type Canvas interface {
	AddNode(ctx context.Context, workspaceID, nodeType string, data map[string]any) (domain.Node, error)
	UpdateNode(ctx context.Context, workspaceID, id string, patch map[string]any) error
	Context(workspaceID string) CanvasContext
}

type board struct {
	nodes    []domain.Node
	selected string
	logs     []string
}

// CanvasBoard is an in-memory canvas, one board per workspace.
type CanvasBoard struct {
	mu      sync.Mutex
	boards  map[string]*board
	maxLogs int
}

func NewCanvasBoard(maxLogs int) *CanvasBoard {
	return &CanvasBoard{
		boards:  make(map[string]*board),
		maxLogs: maxLogs,
	}
}

func (c *CanvasBoard) get(workspaceID string) *board {
	b, ok := c.boards[workspaceID]
	if !ok {
		b = &board{}
		c.boards[workspaceID] = b
	}
	return b
}

func (c *CanvasBoard) log(b *board, level, msg string) {
	b.logs = append(b.logs, fmt.Sprintf("[%s] %s", strings.ToUpper(level), msg))
	if c.maxLogs > 0 && len(b.logs) > c.maxLogs {
		b.logs = b.logs[len(b.logs)-c.maxLogs:]
	}
}

func (c *CanvasBoard) AddNode(_ context.Context, workspaceID, nodeType string, data map[string]any) (domain.Node, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.get(workspaceID)
	title, ok := nodeTitles[nodeType]
	if !ok {
		c.log(b, "error", "unknown node type "+nodeType)
		return domain.Node{}, fmt.Errorf("add node %s: %w", nodeType, domain.ErrUnknownNodeType)
	}

	node := domain.Node{
		ID:    "node-" + uuid.NewString()[:8],
		Type:  nodeType,
		Title: title,
		Data:  maps.Clone(data),
	}
	b.nodes = append(b.nodes, node)
	c.log(b, "info", fmt.Sprintf("added %s (%s)", node.ID, nodeType))

	slog.Debug("canvas node added", "workspace", workspaceID, "node", node.ID, "type", nodeType)
	return cloneNode(node), nil
}

// UpdateNode merges patch into the node's data.
func (c *CanvasBoard) UpdateNode(_ context.Context, workspaceID, id string, patch map[string]any) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.get(workspaceID)
	for i := range b.nodes {
		if b.nodes[i].ID != id {
			continue
		}
		if b.nodes[i].Data == nil {
			b.nodes[i].Data = make(map[string]any, len(patch))
		}
		maps.Copy(b.nodes[i].Data, patch)
		c.log(b, "info", "updated "+id)
		return nil
	}
	c.log(b, "error", "update of missing node "+id)
	return fmt.Errorf("update node %s: %w", id, domain.ErrNodeNotFound)
}

// Select marks id as the selected node. An empty id clears the selection.
func (c *CanvasBoard) Select(workspaceID, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.get(workspaceID)
	if id == "" {
		b.selected = ""
		return nil
	}
	for _, n := range b.nodes {
		if n.ID == id {
			b.selected = id
			return nil
		}
	}
	return fmt.Errorf("select node %s: %w", id, domain.ErrNodeNotFound)
}

func (c *CanvasBoard) Context(workspaceID string) CanvasContext {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.get(workspaceID)
	nodes := make([]domain.Node, len(b.nodes))
	for i, n := range b.nodes {
		nodes[i] = cloneNode(n)
	}
	return CanvasContext{
		Nodes:      nodes,
		SelectedID: b.selected,
		Logs:       append([]string(nil), b.logs...),
	}
}

// Forget drops the board of a workspace.
func (c *CanvasBoard) Forget(workspaceID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.boards, workspaceID)
}

func cloneNode(n domain.Node) domain.Node {
	n.Data = maps.Clone(n.Data)
	return n
}
