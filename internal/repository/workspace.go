package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/set-night/studiochat/internal/domain"
)

const (
	keySessions        = "ai_chat_sessions"
	keyCurrentID       = "ai_chat_current_id"
	keyVisualDNA       = "ai_chat_visual_dna"
	keyProductIdentity = "ai_chat_product_identity"
	keyMode            = "ai_chat_mode"
)

// ErrEmptySnapshot is returned by Load when the stored session list is empty.
var ErrEmptySnapshot = errors.New("snapshot has no sessions")

// WorkspaceRepository reads and writes workspace snapshots through a Store.
// Every Save applies the compaction policy first.
type WorkspaceRepository struct {
	store  Store
	policy Policy
	quota  int
}

// NewWorkspaceRepository returns a repository over store. A quota of zero
// disables the size check.
func NewWorkspaceRepository(store Store, policy Policy, quota int) *WorkspaceRepository {
	return &WorkspaceRepository{store: store, policy: policy, quota: quota}
}

func entryKey(workspaceID, name string) string {
	return "ws:" + workspaceID + ":" + name
}

// Load reads the snapshot of a workspace. Missing optional keys are left
// at their zero value; a missing or unreadable session list is an error.
func (r *WorkspaceRepository) Load(ctx context.Context, workspaceID string) (domain.Workspace, error) {
	ws := domain.Workspace{ID: workspaceID, Mode: domain.ModeChat}

	raw, err := r.store.Get(ctx, entryKey(workspaceID, keySessions))
	if err != nil {
		return ws, fmt.Errorf("load sessions: %w", err)
	}
	if err := json.Unmarshal(raw, &ws.Sessions); err != nil {
		return ws, fmt.Errorf("decode sessions: %w", err)
	}
	if len(ws.Sessions) == 0 {
		return ws, ErrEmptySnapshot
	}

	if ws.CurrentID, err = r.getString(ctx, workspaceID, keyCurrentID); err != nil {
		return ws, err
	}
	if ws.DNA.Raw, err = r.getString(ctx, workspaceID, keyVisualDNA); err != nil {
		return ws, err
	}
	if ws.DNA.ProductIdentity, err = r.getString(ctx, workspaceID, keyProductIdentity); err != nil {
		return ws, err
	}
	mode, err := r.getString(ctx, workspaceID, keyMode)
	if err != nil {
		return ws, err
	}
	if mode == string(domain.ModeDesign) {
		ws.Mode = domain.ModeDesign
	}

	if ws.Session(ws.CurrentID) == nil {
		ws.CurrentID = ws.Sessions[0].ID
	}
	return ws, nil
}

func (r *WorkspaceRepository) getString(ctx context.Context, workspaceID, name string) (string, error) {
	raw, err := r.store.Get(ctx, entryKey(workspaceID, name))
	if errors.Is(err, domain.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load %s: %w", name, err)
	}
	return string(raw), nil
}

// Save compacts and writes the snapshot. A snapshot over quota is shrunk
// with Fit first; domain.ErrQuotaExceeded is returned without writing
// anything only when it still does not fit.
func (r *WorkspaceRepository) Save(ctx context.Context, ws domain.Workspace) error {
	sessions := Compact(ws.Sessions, r.policy)
	entries, size, err := r.encode(ws, sessions)
	if err != nil {
		return err
	}

	if r.quota > 0 && size > r.quota {
		var shed int
		sessions, shed = Fit(sessions, ws.CurrentID, size-r.quota)
		slog.Warn("snapshot over quota, shedding content", "workspace", ws.ID, "size", size, "quota", r.quota, "shed", shed)

		if entries, size, err = r.encode(ws, sessions); err != nil {
			return err
		}
		if size > r.quota {
			return fmt.Errorf("save workspace %s (%d bytes): %w", ws.ID, size, domain.ErrQuotaExceeded)
		}
	}

	if err := r.store.Put(ctx, entries...); err != nil {
		return fmt.Errorf("save workspace %s: %w", ws.ID, err)
	}
	return nil
}

// encode returns the store entries of a snapshot and their total size.
func (r *WorkspaceRepository) encode(ws domain.Workspace, sessions []domain.Session) ([]Entry, int, error) {
	raw, err := json.Marshal(sessions)
	if err != nil {
		return nil, 0, fmt.Errorf("encode sessions: %w", err)
	}

	entries := []Entry{
		{Key: entryKey(ws.ID, keySessions), Value: raw},
		{Key: entryKey(ws.ID, keyCurrentID), Value: []byte(ws.CurrentID)},
		{Key: entryKey(ws.ID, keyVisualDNA), Value: []byte(ws.DNA.Raw)},
		{Key: entryKey(ws.ID, keyProductIdentity), Value: []byte(ws.DNA.ProductIdentity)},
		{Key: entryKey(ws.ID, keyMode), Value: []byte(ws.Mode)},
	}
	size := 0
	for _, e := range entries {
		size += len(e.Key) + len(e.Value)
	}
	return entries, size, nil
}

// Delete removes every key of a workspace.
func (r *WorkspaceRepository) Delete(ctx context.Context, workspaceID string) error {
	keys := []string{
		entryKey(workspaceID, keySessions),
		entryKey(workspaceID, keyCurrentID),
		entryKey(workspaceID, keyVisualDNA),
		entryKey(workspaceID, keyProductIdentity),
		entryKey(workspaceID, keyMode),
	}
	if err := r.store.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("delete workspace %s: %w", workspaceID, err)
	}
	return nil
}
