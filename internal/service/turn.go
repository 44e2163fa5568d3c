package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/set-night/studiochat/internal/config"
	"github.com/set-night/studiochat/internal/directive"
	"github.com/set-night/studiochat/internal/domain"
)

// SendInput is one outgoing user message. Staged uploads are attached to it.
type SendInput struct {
	Text        string
	Attachments []domain.Attachment
}

// TurnResult describes what a turn appended. Err holds a transport or
// timeout failure that was recorded as an error message.
type TurnResult struct {
	SessionID string
	User      domain.Message
	Replies   []domain.Message
	Cost      decimal.Decimal
	Err       error
}

// Pricing is the chat price in USD per million tokens.
type Pricing struct {
	Prompt     decimal.Decimal
	Completion decimal.Decimal
}

// TurnService drives one chat round trip for a workspace.
type TurnService struct {
	sessions *SessionService
	chat     ChatClient
	prompts  *PromptBook
	canvas   Canvas
	model    string
	pricing  Pricing
	timeout  time.Duration
	now      func() time.Time
}

// NewTurnService wires a turn orchestrator. chat may be nil when no chat
// provider is configured; every send then fails fast.
func NewTurnService(sessions *SessionService, chat ChatClient, prompts *PromptBook, canvas Canvas, model string, pricing Pricing) *TurnService {
	return &TurnService{
		sessions: sessions,
		chat:     chat,
		prompts:  prompts,
		canvas:   canvas,
		model:    model,
		pricing:  pricing,
		timeout:  config.ChatTimeout,
		now:      time.Now,
	}
}

func newMessageID() string {
	return "msg-" + uuid.NewString()
}

// Send appends the user message, calls the chat collaborator and applies
// the directives of the reply. Validation and busy errors are returned
// before anything is appended; collaborator failures are recorded as an
// error message and reported in TurnResult.Err.
func (s *TurnService) Send(ctx context.Context, workspaceID string, in SendInput) (*TurnResult, error) {
	staged := s.sessions.Staged(ctx, workspaceID)
	if strings.TrimSpace(in.Text) == "" && len(in.Attachments) == 0 && len(staged) == 0 {
		return nil, domain.ErrEmptyInput
	}
	if s.chat == nil {
		return nil, domain.ErrProviderNotConfigured
	}

	release, err := s.sessions.Begin(ctx, workspaceID, domain.PhaseSending)
	if err != nil {
		return nil, err
	}
	defer release()

	files := append(s.sessions.TakeStaged(ctx, workspaceID), in.Attachments...)
	ws := s.sessions.Snapshot(ctx, workspaceID)
	sess := ws.Current()

	user := domain.Message{
		ID:        newMessageID(),
		Role:      domain.RoleUser,
		Content:   in.Text,
		Timestamp: s.now(),
		ModelID:   s.model,
		Files:     files,
	}
	if err := s.sessions.AppendMessage(ctx, workspaceID, sess.ID, user); err != nil {
		return nil, fmt.Errorf("append user message: %w", err)
	}

	res := &TurnResult{SessionID: sess.ID, User: user}

	// Resolution reads this copy; later lock toggles only affect later turns.
	all := append(sess.Messages, user)
	req := ChatRequest{
		Model:        s.model,
		SystemPrompt: s.systemPrompt(ws, all),
		Text:         user.Content,
	}
	byMessage := make(map[string][]Reference)
	for _, r := range ChatReferences(all) {
		byMessage[r.MessageID] = append(byMessage[r.MessageID], r)
	}
	for _, m := range outboundHistory(sess.Messages) {
		req.History = append(req.History, ChatTurn{Role: m.Role, Content: m.Content, Images: byMessage[m.ID]})
	}
	req.Images = byMessage[user.ID]

	reply, err := s.call(ctx, req)
	if err != nil {
		slog.Error("chat turn failed", "workspace", workspaceID, "error", err)
		msg := domain.Message{
			ID:        newMessageID(),
			Role:      domain.RoleAssistant,
			Content:   "Error: " + err.Error(),
			Timestamp: s.now(),
			IsError:   true,
		}
		if appendErr := s.sessions.AppendMessage(ctx, workspaceID, sess.ID, msg); appendErr != nil {
			slog.Error("append error message", "workspace", workspaceID, "error", appendErr)
		}
		res.Replies = append(res.Replies, msg)
		res.Err = err
		return res, nil
	}

	res.Cost = CalculateCost(reply.Usage, s.pricing.Prompt, s.pricing.Completion)
	s.sessions.AddSpend(ctx, workspaceID, sess.ID, res.Cost)

	for _, msg := range s.apply(ctx, workspaceID, directive.Parse(reply.Text)) {
		if err := s.sessions.AppendMessage(ctx, workspaceID, sess.ID, msg); err != nil {
			slog.Error("append reply", "workspace", workspaceID, "error", err)
			continue
		}
		res.Replies = append(res.Replies, msg)
	}
	return res, nil
}

// call bounds the chat call by the turn timeout and reports an expired
// bound as a TimeoutError.
func (s *TurnService) call(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	reply, err := s.chat.Chat(cctx, req)
	if err != nil {
		if errors.Is(cctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, &domain.TimeoutError{Bound: s.timeout}
		}
		return nil, err
	}
	return reply, nil
}

// apply turns parsed directives into the assistant messages to append.
// A style lock updates the workspace DNA slot before anything is appended.
func (s *TurnService) apply(ctx context.Context, workspaceID string, res directive.Result) []domain.Message {
	if res.Image != nil {
		return []domain.Message{{
			ID:         newMessageID(),
			Role:       domain.RoleAssistant,
			Content:    res.CleanedText,
			Timestamp:  s.now(),
			ModelID:    s.model,
			ModuleInfo: res.Image.Module,
			Proposal:   &domain.Proposal{Image: res.Image},
		}}
	}

	var out []domain.Message
	if lock := res.StyleLock; lock != nil {
		s.sessions.SetDNA(ctx, workspaceID, domain.VisualDNA{Raw: lock.Raw, ProductIdentity: lock.ProductIdentity})
		out = append(out, domain.Message{
			ID:        newMessageID(),
			Role:      domain.RoleAssistant,
			Content:   s.prompts.Announcement(lock.Raw, lock.Legacy),
			Timestamp: s.now(),
		})
	}

	msg := domain.Message{
		ID:        newMessageID(),
		Role:      domain.RoleAssistant,
		Content:   res.CleanedText,
		Timestamp: s.now(),
		ModelID:   s.model,
		Actions:   res.Actions,
	}
	if res.Workflow != nil {
		msg.Proposal = &domain.Proposal{Workflow: res.Workflow}
	}
	if msg.Content == "" && (len(msg.Actions) > 0 || msg.Proposal != nil) {
		msg.Content = s.prompts.SuggestedActions
	}
	if msg.Content == "" && msg.Proposal == nil && len(out) > 0 {
		return out
	}
	return append(out, msg)
}

// systemPrompt selects the prompt by mode. messages is the current session
// including the in-flight message.
func (s *TurnService) systemPrompt(ws domain.Workspace, messages []domain.Message) string {
	if ws.Mode == domain.ModeDesign {
		var locked []string
		for _, m := range messages {
			if m.Role != domain.RoleUser {
				continue
			}
			for _, f := range m.Files {
				if f.IsImage() && f.Selected {
					locked = append(locked, f.Label)
				}
			}
		}
		return s.prompts.DesignPrompt(ws.DNA, locked)
	}

	var cc CanvasContext
	if s.canvas != nil {
		cc = s.canvas.Context(ws.ID)
	}
	return s.prompts.ChatPrompt(cc)
}

// outboundHistory returns the most recent messages sent as context.
// Error messages are never sent back to the model.
func outboundHistory(messages []domain.Message) []domain.Message {
	out := make([]domain.Message, 0, len(messages))
	for _, m := range messages {
		if !m.IsError {
			out = append(out, m)
		}
	}
	if len(out) > config.HistoryWindow {
		out = out[len(out)-config.HistoryWindow:]
	}
	return out
}
