package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/studiochat/internal/config"
	"github.com/set-night/studiochat/internal/domain"
	"github.com/set-night/studiochat/internal/repository"
)

func TestSessionDefaultWorkspace(t *testing.T) {
	h := newHarness(t)

	ws := h.sessions.Snapshot(context.Background(), testWS)

	require.Len(t, ws.Sessions, 1)
	assert.Equal(t, config.DefaultSessionTitle, ws.Sessions[0].Title)
	assert.Equal(t, ws.Sessions[0].ID, ws.CurrentID)
	assert.Equal(t, domain.ModeChat, ws.Mode)
	assert.False(t, ws.DNA.Locked())
}

func TestSessionCorruptSnapshotFallsBack(t *testing.T) {
	ctx := context.Background()
	store := repository.NewMemoryStore()
	require.NoError(t, store.Put(ctx, repository.Entry{Key: "ws:" + testWS + ":ai_chat_sessions", Value: []byte("garbage")}))
	sessions := NewSessionService(repository.NewWorkspaceRepository(store, repository.Policy{}, 0))

	ws := sessions.Snapshot(ctx, testWS)

	require.Len(t, ws.Sessions, 1)
	assert.Equal(t, config.DefaultSessionID, ws.CurrentID)
}

func TestSessionTitleFromFirstMessage(t *testing.T) {
	h := newHarness(t)

	h.seed(t,
		domain.Message{ID: "1", Role: domain.RoleUser, Content: "Design a hero banner for my ceramic mug"},
		domain.Message{ID: "2", Role: domain.RoleUser, Content: "second"},
	)

	assert.Equal(t, "Design a hero banner", h.current(t).Title)
}

func TestSessionDeleteLastRecreatesDefault(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, domain.Message{ID: "1", Role: domain.RoleUser, Content: "hi"})
	h.sessions.SetDNA(ctx, testWS, domain.VisualDNA{Raw: "palette: red", ProductIdentity: "kettle"})
	only := h.current(t).ID

	require.NoError(t, h.sessions.DeleteSession(ctx, testWS, only))

	ws := h.sessions.Snapshot(ctx, testWS)
	require.Len(t, ws.Sessions, 1)
	assert.Equal(t, config.DefaultSessionTitle, ws.Sessions[0].Title)
	assert.Empty(t, ws.Sessions[0].Messages)
	assert.False(t, ws.DNA.Locked())
	assert.Empty(t, ws.DNA.ProductIdentity)
}

func TestSessionDeleteCurrentMovesPointer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.current(t).ID
	second := h.sessions.NewSession(ctx, testWS)
	h.sessions.SetDNA(ctx, testWS, domain.VisualDNA{Raw: "x"})

	require.NoError(t, h.sessions.DeleteSession(ctx, testWS, second.ID))

	ws := h.sessions.Snapshot(ctx, testWS)
	assert.Equal(t, first, ws.CurrentID)
	assert.True(t, ws.DNA.Locked())
	assert.ErrorIs(t, h.sessions.DeleteSession(ctx, testWS, "missing"), domain.ErrSessionNotFound)
}

func TestSessionSwitch(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	first := h.current(t).ID
	h.sessions.NewSession(ctx, testWS)

	require.NoError(t, h.sessions.SwitchSession(ctx, testWS, first))
	assert.Equal(t, first, h.current(t).ID)
	assert.ErrorIs(t, h.sessions.SwitchSession(ctx, testWS, "nope"), domain.ErrSessionNotFound)
}

func TestSessionReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, domain.Message{ID: "1", Role: domain.RoleUser, Content: "hello there"})
	h.sessions.SetDNA(ctx, testWS, domain.VisualDNA{Raw: "dna", ProductIdentity: "mug"})
	h.sessions.SetMode(ctx, testWS, domain.ModeDesign)

	h.sessions.ResetSession(ctx, testWS)

	ws := h.sessions.Snapshot(ctx, testWS)
	assert.Empty(t, ws.Current().Messages)
	assert.Equal(t, config.DefaultSessionTitle, ws.Current().Title)
	assert.Equal(t, domain.VisualDNA{}, ws.DNA)
	assert.Equal(t, domain.ModeChat, ws.Mode)
}

func TestSessionBeginIsExclusive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	release, err := h.sessions.Begin(ctx, testWS, domain.PhaseSending)
	require.NoError(t, err)

	_, err = h.sessions.Begin(ctx, testWS, domain.PhaseGeneratingImage)
	assert.ErrorIs(t, err, domain.ErrBusy)
	_, err = h.sessions.Begin(ctx, testWS, domain.PhaseSending)
	assert.ErrorIs(t, err, domain.ErrBusy)

	other, err := h.sessions.Begin(ctx, "tg:other", domain.PhaseSending)
	require.NoError(t, err)
	other()

	release()
	release()
	assert.Equal(t, domain.PhaseIdle, h.sessions.Phase(ctx, testWS))
}

func TestSessionToggleSelection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, userMsg("m1", imageFile("a", "", false)))
	h.sessions.Stage(ctx, testWS, imageFile("s", "", false))

	on, err := h.sessions.ToggleSelection(ctx, testWS, "m1", "a")
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, h.current(t).Messages[0].Files[0].Selected)

	on, err = h.sessions.ToggleSelection(ctx, testWS, "", "s")
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, h.sessions.Staged(ctx, testWS)[0].Selected)

	_, err = h.sessions.ToggleSelection(ctx, testWS, "m1", "zzz")
	assert.ErrorIs(t, err, domain.ErrAttachmentNotFound)
	_, err = h.sessions.ToggleSelection(ctx, testWS, "", "zzz")
	assert.ErrorIs(t, err, domain.ErrAttachmentNotFound)
}

func TestSessionSetRatio(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	spent := proposalMsg("p2")
	spent.GeneratedImage = "data:image/png;base64,AA"
	h.seed(t, proposalMsg("p1"), spent, domain.Message{ID: "plain", Role: domain.RoleAssistant})

	require.NoError(t, h.sessions.SetRatio(ctx, testWS, "p1", "16:9"))
	assert.Equal(t, "16:9", h.current(t).Messages[0].ImageRequest().Ratio)

	assert.ErrorIs(t, h.sessions.SetRatio(ctx, testWS, "p1", "7:3"), domain.ErrInvalidRatio)
	assert.ErrorIs(t, h.sessions.SetRatio(ctx, testWS, "p2", "1:1"), domain.ErrProposalSpent)
	assert.ErrorIs(t, h.sessions.SetRatio(ctx, testWS, "plain", "1:1"), domain.ErrNoImageProposal)
	assert.ErrorIs(t, h.sessions.SetRatio(ctx, testWS, "nope", "1:1"), domain.ErrMessageNotFound)
}

func TestSessionPersistsAcrossRestart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, domain.Message{ID: "1", Role: domain.RoleUser, Content: "remember me"})
	h.sessions.SetDNA(ctx, testWS, domain.VisualDNA{Raw: "dna"})

	restarted := NewSessionService(h.repo)
	ws := restarted.Snapshot(ctx, testWS)

	require.Len(t, ws.Current().Messages, 1)
	assert.Equal(t, "remember me", ws.Current().Messages[0].Content)
	assert.Equal(t, "dna", ws.DNA.Raw)
}

func TestSessionEvict(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.seed(t, domain.Message{ID: "1", Role: domain.RoleUser, Content: "kept on disk"})

	now := time.Now()
	h.sessions.now = func() time.Time { return now.Add(3 * time.Hour) }
	assert.Equal(t, 1, h.sessions.Evict(ctx, time.Hour))

	ws := h.sessions.Snapshot(ctx, testWS)
	require.Len(t, ws.Current().Messages, 1)
	assert.Equal(t, 0, h.sessions.Evict(ctx, time.Hour))
}

// failingRepo fails every Save while fail is set.
type failingRepo struct {
	*repository.WorkspaceRepository
	mu   sync.Mutex
	fail error
}

func (f *failingRepo) Save(ctx context.Context, ws domain.Workspace) error {
	f.mu.Lock()
	err := f.fail
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return f.WorkspaceRepository.Save(ctx, ws)
}

func TestSessionEvictKeepsUnsavedWorkspace(t *testing.T) {
	ctx := context.Background()
	repo := &failingRepo{
		WorkspaceRepository: repository.NewWorkspaceRepository(repository.NewMemoryStore(), repository.Policy{}, 0),
		fail:                domain.ErrQuotaExceeded,
	}
	sessions := NewSessionService(repo)
	require.NoError(t, sessions.AppendMessage(ctx, testWS, config.DefaultSessionID,
		domain.Message{ID: "1", Role: domain.RoleUser, Content: "only in memory"}))

	now := time.Now()
	sessions.now = func() time.Time { return now.Add(3 * time.Hour) }
	assert.Equal(t, 0, sessions.Evict(ctx, time.Hour))

	repo.mu.Lock()
	repo.fail = nil
	repo.mu.Unlock()
	assert.Equal(t, 1, sessions.Evict(ctx, time.Hour))

	ws := sessions.Snapshot(ctx, testWS)
	require.Len(t, ws.Current().Messages, 1)
	assert.Equal(t, "only in memory", ws.Current().Messages[0].Content)
}

func TestSessionSavesOverQuotaGenerations(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewWorkspaceRepository(repository.NewMemoryStore(), repository.Policy{MaxMessages: 20, MaxAttachmentChars: 500000}, 5<<20)
	sessions := NewSessionService(repo)

	for i := 0; i < 3; i++ {
		require.NoError(t, sessions.AppendMessage(ctx, testWS, config.DefaultSessionID, domain.Message{
			ID:             fmt.Sprintf("g%d", i),
			Role:           domain.RoleAssistant,
			GeneratedImage: "data:image/png;base64," + strings.Repeat("A", 2<<20),
		}))
	}
	sessions.SetDNA(ctx, testWS, domain.VisualDNA{Raw: "palette: teal", ProductIdentity: "steel bottle"})

	stored, err := repo.Load(ctx, testWS)
	require.NoError(t, err)
	assert.Equal(t, "palette: teal", stored.DNA.Raw)

	now := time.Now()
	sessions.now = func() time.Time { return now.Add(3 * time.Hour) }
	assert.Equal(t, 1, sessions.Evict(ctx, time.Hour))
}
