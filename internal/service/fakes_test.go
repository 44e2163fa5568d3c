package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/set-night/studiochat/internal/domain"
	"github.com/set-night/studiochat/internal/repository"
)

type fakeChat struct {
	mu       sync.Mutex
	replies  []string
	err      error
	usage    Usage
	requests []ChatRequest
	// block, when set, holds Chat until it is closed or ctx ends.
	block chan struct{}
}

func (f *fakeChat) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	text := ""
	if len(f.replies) > 0 {
		text = f.replies[0]
		f.replies = f.replies[1:]
	}
	return &ChatReply{Text: text, Usage: f.usage}, nil
}

func (f *fakeChat) last() ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

type fakeImages struct {
	mu     sync.Mutex
	result string
	err    error
	jobs   []ImageJob
	block  chan struct{}
}

func (f *fakeImages) Generate(ctx context.Context, job ImageJob) (string, error) {
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.result, nil
}

func (f *fakeImages) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

// countingCanvas wraps a board and counts or fails node calls.
type countingCanvas struct {
	*CanvasBoard
	mu      sync.Mutex
	adds    int
	updates int
	fail    error
}

func (c *countingCanvas) AddNode(ctx context.Context, workspaceID, nodeType string, data map[string]any) (domain.Node, error) {
	c.mu.Lock()
	c.adds++
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return domain.Node{}, fail
	}
	return c.CanvasBoard.AddNode(ctx, workspaceID, nodeType, data)
}

func (c *countingCanvas) UpdateNode(ctx context.Context, workspaceID, id string, patch map[string]any) error {
	c.mu.Lock()
	c.updates++
	fail := c.fail
	c.mu.Unlock()
	if fail != nil {
		return fail
	}
	return c.CanvasBoard.UpdateNode(ctx, workspaceID, id, patch)
}

const testWS = "tg:42"

type harness struct {
	repo     *repository.WorkspaceRepository
	sessions *SessionService
	chat     *fakeChat
	images   *fakeImages
	canvas   *countingCanvas
	turns    *TurnService
	actions  *ActionService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	prompts, err := LoadPromptBook("")
	require.NoError(t, err)

	repo := repository.NewWorkspaceRepository(repository.NewMemoryStore(), repository.Policy{MaxMessages: 20, MaxAttachmentChars: 500000}, 0)
	sessions := NewSessionService(repo)
	chat := &fakeChat{}
	images := &fakeImages{result: "data:image/png;base64,R0VO"}
	canvas := &countingCanvas{CanvasBoard: NewCanvasBoard(20)}

	return &harness{
		repo:     repo,
		sessions: sessions,
		chat:     chat,
		images:   images,
		canvas:   canvas,
		turns:    NewTurnService(sessions, chat, prompts, canvas, "test-model", Pricing{}),
		actions:  NewActionService(sessions, canvas, images, "image-model"),
	}
}

func imageFile(id, label string, selected bool) domain.Attachment {
	return domain.Attachment{
		ID:       id,
		Name:     id + ".png",
		MimeKind: domain.MimeImage,
		Content:  "data:image/png;base64," + id,
		Label:    label,
		Selected: selected,
	}
}

// seed appends messages to the current session of testWS.
func (h *harness) seed(t *testing.T, msgs ...domain.Message) {
	t.Helper()
	ctx := context.Background()
	ws := h.sessions.Snapshot(ctx, testWS)
	cur := ws.Current()
	for _, m := range msgs {
		require.NoError(t, h.sessions.AppendMessage(ctx, testWS, cur.ID, m))
	}
}

func (h *harness) current(t *testing.T) domain.Session {
	t.Helper()
	ws := h.sessions.Snapshot(context.Background(), testWS)
	return *ws.Current()
}
