package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/set-night/studiochat/internal/config"
	"github.com/set-night/studiochat/internal/domain"
)

// WorkspaceRepository persists workspace snapshots.
type WorkspaceRepository interface {
	Load(ctx context.Context, workspaceID string) (domain.Workspace, error)
	Save(ctx context.Context, ws domain.Workspace) error
}

type workspaceState struct {
	mu       sync.Mutex
	loaded   bool
	evicted  bool
	ws       domain.Workspace
	phase    domain.Phase
	staged   []domain.Attachment
	lastUsed time.Time
	// dirty is set while the last save failed.
	dirty bool
}

// SessionService owns every workspace's session log, Visual DNA slot,
// staged uploads and turn phase. All mutations go through it and are
// persisted after they are applied in memory.
type SessionService struct {
	repo WorkspaceRepository
	now  func() time.Time

	mu     sync.Mutex
	spaces map[string]*workspaceState
}

func NewSessionService(repo WorkspaceRepository) *SessionService {
	return &SessionService{
		repo:   repo,
		now:    time.Now,
		spaces: make(map[string]*workspaceState),
	}
}

func newDefaultSession() domain.Session {
	return domain.Session{ID: config.DefaultSessionID, Title: config.DefaultSessionTitle}
}

func defaultWorkspace(id string) domain.Workspace {
	return domain.Workspace{
		ID:        id,
		Sessions:  []domain.Session{newDefaultSession()},
		CurrentID: config.DefaultSessionID,
		Mode:      domain.ModeChat,
	}
}

// acquire returns the locked state of a workspace, loading it on first use.
// The caller must unlock st.mu.
func (s *SessionService) acquire(ctx context.Context, workspaceID string) *workspaceState {
	var st *workspaceState
	for {
		s.mu.Lock()
		var ok bool
		st, ok = s.spaces[workspaceID]
		if !ok {
			st = &workspaceState{phase: domain.PhaseIdle}
			s.spaces[workspaceID] = st
		}
		s.mu.Unlock()

		st.mu.Lock()
		if !st.evicted {
			break
		}
		st.mu.Unlock()
	}

	st.lastUsed = s.now()
	if !st.loaded {
		ws, err := s.repo.Load(ctx, workspaceID)
		if err != nil {
			if !errors.Is(err, domain.ErrKeyNotFound) {
				slog.Warn("workspace snapshot unreadable, starting fresh", "workspace", workspaceID, "error", err)
			}
			ws = defaultWorkspace(workspaceID)
		}
		st.ws = ws
		st.loaded = true
	}
	return st
}

// persist writes the snapshot. Failures are logged and the in-memory
// state stays authoritative until a later save succeeds.
func (s *SessionService) persist(ctx context.Context, st *workspaceState) {
	err := s.repo.Save(ctx, st.ws)
	st.dirty = err != nil
	if err != nil {
		slog.Error("persist workspace", "workspace", st.ws.ID, "error", err)
	}
}

// Begin moves an idle workspace into phase and returns the function that
// moves it back to idle. It fails with ErrBusy when a turn or an image job
// is already running.
func (s *SessionService) Begin(ctx context.Context, workspaceID string, phase domain.Phase) (func(), error) {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	if st.phase != domain.PhaseIdle {
		return nil, fmt.Errorf("begin %s while %s: %w", phase, st.phase, domain.ErrBusy)
	}
	st.phase = phase

	var once sync.Once
	return func() {
		once.Do(func() {
			st.mu.Lock()
			st.phase = domain.PhaseIdle
			st.mu.Unlock()
		})
	}, nil
}

func (s *SessionService) Phase(ctx context.Context, workspaceID string) domain.Phase {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()
	return st.phase
}

// Snapshot returns a deep copy of the workspace.
func (s *SessionService) Snapshot(ctx context.Context, workspaceID string) domain.Workspace {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()
	return st.ws.Clone()
}

// AppendMessage appends msg to the session with sessionID. The first user
// message of an empty session names it.
func (s *SessionService) AppendMessage(ctx context.Context, workspaceID, sessionID string, msg domain.Message) error {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	sess := st.ws.Session(sessionID)
	if sess == nil {
		return fmt.Errorf("append to %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	if len(sess.Messages) == 0 && msg.Role == domain.RoleUser && msg.Content != "" {
		sess.Title = truncateRunes(msg.Content, config.TitleLength)
	}
	sess.Messages = append(sess.Messages, msg.Clone())

	s.persist(ctx, st)
	return nil
}

// UpdateMessage applies fn to the message with msgID in any session of the
// workspace. Nothing is persisted when fn returns an error.
func (s *SessionService) UpdateMessage(ctx context.Context, workspaceID, msgID string, fn func(*domain.Message) error) (domain.Message, error) {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	for i := range st.ws.Sessions {
		sess := &st.ws.Sessions[i]
		if idx := sess.MessageIndex(msgID); idx >= 0 {
			updated := sess.Messages[idx].Clone()
			if err := fn(&updated); err != nil {
				return sess.Messages[idx].Clone(), err
			}
			sess.Messages[idx] = updated
			s.persist(ctx, st)
			return updated.Clone(), nil
		}
	}
	return domain.Message{}, fmt.Errorf("update %s: %w", msgID, domain.ErrMessageNotFound)
}

// FindMessage returns a copy of a message, the session holding it and its
// index in that session.
func (s *SessionService) FindMessage(ctx context.Context, workspaceID, msgID string) (domain.Session, int, error) {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	for _, sess := range st.ws.Sessions {
		if idx := sess.MessageIndex(msgID); idx >= 0 {
			return sess.Clone(), idx, nil
		}
	}
	return domain.Session{}, -1, fmt.Errorf("find %s: %w", msgID, domain.ErrMessageNotFound)
}

// AddSpend adds cost to a session's running spend.
func (s *SessionService) AddSpend(ctx context.Context, workspaceID, sessionID string, cost decimal.Decimal) {
	if cost.IsZero() {
		return
	}
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	if sess := st.ws.Session(sessionID); sess != nil {
		sess.Spend = sess.Spend.Add(cost)
		s.persist(ctx, st)
	}
}

// NewSession creates an empty session, puts it first and makes it current.
func (s *SessionService) NewSession(ctx context.Context, workspaceID string) domain.Session {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	sess := domain.Session{ID: uuid.NewString(), Title: config.DefaultSessionTitle}
	st.ws.Sessions = append([]domain.Session{sess}, st.ws.Sessions...)
	st.ws.CurrentID = sess.ID

	s.persist(ctx, st)
	return sess
}

func (s *SessionService) SwitchSession(ctx context.Context, workspaceID, sessionID string) error {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	if st.ws.Session(sessionID) == nil {
		return fmt.Errorf("switch to %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	st.ws.CurrentID = sessionID

	s.persist(ctx, st)
	return nil
}

// DeleteSession removes a session. Deleting the last one recreates the
// default session and clears the Visual DNA slot.
func (s *SessionService) DeleteSession(ctx context.Context, workspaceID, sessionID string) error {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	idx := slices.IndexFunc(st.ws.Sessions, func(x domain.Session) bool { return x.ID == sessionID })
	if idx < 0 {
		return fmt.Errorf("delete %s: %w", sessionID, domain.ErrSessionNotFound)
	}
	st.ws.Sessions = slices.Delete(st.ws.Sessions, idx, idx+1)

	if len(st.ws.Sessions) == 0 {
		st.ws.Sessions = []domain.Session{newDefaultSession()}
		st.ws.CurrentID = config.DefaultSessionID
		st.ws.DNA = domain.VisualDNA{}
	} else if st.ws.CurrentID == sessionID {
		st.ws.CurrentID = st.ws.Sessions[0].ID
	}

	s.persist(ctx, st)
	return nil
}

// ResetSession empties the current session, clears the Visual DNA slot
// and returns the workspace to free-chat mode.
func (s *SessionService) ResetSession(ctx context.Context, workspaceID string) {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	if sess := st.ws.Current(); sess != nil {
		sess.Messages = nil
		sess.Title = config.DefaultSessionTitle
	}
	st.ws.DNA = domain.VisualDNA{}
	st.ws.Mode = domain.ModeChat
	st.staged = nil

	s.persist(ctx, st)
}

func (s *SessionService) SetDNA(ctx context.Context, workspaceID string, dna domain.VisualDNA) {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	st.ws.DNA = dna
	s.persist(ctx, st)
}

func (s *SessionService) ClearDNA(ctx context.Context, workspaceID string) {
	s.SetDNA(ctx, workspaceID, domain.VisualDNA{})
}

func (s *SessionService) DNA(ctx context.Context, workspaceID string) domain.VisualDNA {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()
	return st.ws.DNA
}

func (s *SessionService) SetMode(ctx context.Context, workspaceID string, mode domain.Mode) {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	st.ws.Mode = mode
	s.persist(ctx, st)
}

// Stage holds an upload until the next outgoing message.
func (s *SessionService) Stage(ctx context.Context, workspaceID string, a domain.Attachment) {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()
	st.staged = append(st.staged, a)
}

// Staged returns a copy of the staged uploads.
func (s *SessionService) Staged(ctx context.Context, workspaceID string) []domain.Attachment {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()
	return slices.Clone(st.staged)
}

// TakeStaged returns and clears the staged uploads.
func (s *SessionService) TakeStaged(ctx context.Context, workspaceID string) []domain.Attachment {
	st := s.acquire(ctx, workspaceID)
	defer st.mu.Unlock()

	out := st.staged
	st.staged = nil
	return out
}

// ToggleSelection flips the lock of an image attachment, either staged
// (msgID empty) or on a message of the workspace. It returns the new state.
func (s *SessionService) ToggleSelection(ctx context.Context, workspaceID, msgID, attachmentID string) (bool, error) {
	if msgID == "" {
		st := s.acquire(ctx, workspaceID)
		defer st.mu.Unlock()

		for i := range st.staged {
			if st.staged[i].ID == attachmentID {
				st.staged[i].Selected = !st.staged[i].Selected
				return st.staged[i].Selected, nil
			}
		}
		return false, fmt.Errorf("toggle staged %s: %w", attachmentID, domain.ErrAttachmentNotFound)
	}

	var selected bool
	_, err := s.UpdateMessage(ctx, workspaceID, msgID, func(m *domain.Message) error {
		for i := range m.Files {
			if m.Files[i].ID == attachmentID && m.Files[i].IsImage() {
				m.Files[i].Selected = !m.Files[i].Selected
				selected = m.Files[i].Selected
				return nil
			}
		}
		return fmt.Errorf("toggle %s: %w", attachmentID, domain.ErrAttachmentNotFound)
	})
	return selected, err
}

// SetRatio re-targets an unspent image proposal.
func (s *SessionService) SetRatio(ctx context.Context, workspaceID, msgID, ratio string) error {
	if !slices.Contains(config.SupportedRatios, ratio) {
		return fmt.Errorf("set ratio %q: %w", ratio, domain.ErrInvalidRatio)
	}
	_, err := s.UpdateMessage(ctx, workspaceID, msgID, func(m *domain.Message) error {
		req := m.ImageRequest()
		if req == nil {
			return domain.ErrNoImageProposal
		}
		if m.GeneratedImage != "" {
			return domain.ErrProposalSpent
		}
		req.Ratio = ratio
		return nil
	})
	return err
}

// Evict drops idle workspaces from memory. Busy workspaces are kept. A
// workspace whose last save failed is saved again first and kept if that
// fails too.
func (s *SessionService) Evict(ctx context.Context, maxIdle time.Duration) int {
	cutoff := s.now().Add(-maxIdle)

	s.mu.Lock()
	spaces := maps.Clone(s.spaces)
	s.mu.Unlock()

	n := 0
	for id, st := range spaces {
		if !st.mu.TryLock() {
			continue
		}
		if st.phase != domain.PhaseIdle || len(st.staged) > 0 || !st.lastUsed.Before(cutoff) {
			st.mu.Unlock()
			continue
		}
		if st.dirty {
			s.persist(ctx, st)
		}
		if st.dirty {
			slog.Warn("idle workspace kept, snapshot not saved", "workspace", id)
			st.mu.Unlock()
			continue
		}

		s.mu.Lock()
		if s.spaces[id] == st {
			st.evicted = true
			delete(s.spaces, id)
			n++
		}
		s.mu.Unlock()
		st.mu.Unlock()
	}
	return n
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
