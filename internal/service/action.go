package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/set-night/studiochat/internal/config"
	"github.com/set-night/studiochat/internal/domain"
)

// GenerateResult is the outcome of one image generation attempt. Err is
// the collaborator failure already recorded on Message.
type GenerateResult struct {
	Message domain.Message
	Err     error
}

// ActionService executes confirmed proposals: node actions, workflows and
// image generation.
type ActionService struct {
	sessions   *SessionService
	canvas     Canvas
	images     ImageGenerator
	imageModel string
	timeout    time.Duration

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewActionService wires the executor. images may be nil when no image
// provider is configured.
func NewActionService(sessions *SessionService, canvas Canvas, images ImageGenerator, imageModel string) *ActionService {
	return &ActionService{
		sessions:   sessions,
		canvas:     canvas,
		images:     images,
		imageModel: imageModel,
		timeout:    config.ImageTimeout,
		locks:      make(map[string]*sync.Mutex),
	}
}

// lock serializes node confirmations within a workspace so that an action
// runs at most once.
func (s *ActionService) lock(workspaceID string) func() {
	s.mu.Lock()
	l, ok := s.locks[workspaceID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[workspaceID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *ActionService) action(ctx context.Context, workspaceID, msgID string, idx int) (domain.Action, error) {
	sess, at, err := s.sessions.FindMessage(ctx, workspaceID, msgID)
	if err != nil {
		return domain.Action{}, err
	}
	actions := sess.Messages[at].Actions
	if idx < 0 || idx >= len(actions) {
		return domain.Action{}, fmt.Errorf("action %d of %s: %w", idx, msgID, domain.ErrActionNotFound)
	}
	return actions[idx], nil
}

func (s *ActionService) setStatus(ctx context.Context, workspaceID, msgID string, idx int, status domain.ActionStatus) (domain.Action, error) {
	var out domain.Action
	_, err := s.sessions.UpdateMessage(ctx, workspaceID, msgID, func(m *domain.Message) error {
		if idx < 0 || idx >= len(m.Actions) {
			return domain.ErrActionNotFound
		}
		m.Actions[idx].Status = status
		out = m.Actions[idx]
		return nil
	})
	return out, err
}

// ConfirmAction runs a pending node action once. Confirming an executed or
// cancelled action is a no-op. When the canvas fails, the action stays
// pending and the error is returned.
func (s *ActionService) ConfirmAction(ctx context.Context, workspaceID, msgID string, idx int) (domain.Action, error) {
	unlock := s.lock(workspaceID)
	defer unlock()

	a, err := s.action(ctx, workspaceID, msgID, idx)
	if err != nil {
		return domain.Action{}, err
	}
	if a.Terminal() {
		return a, nil
	}

	switch a.Type {
	case domain.ActionAddNode:
		_, err = s.canvas.AddNode(ctx, workspaceID, a.Params["type"], nil)
	case domain.ActionUpdateNode:
		err = s.canvas.UpdateNode(ctx, workspaceID, a.Params["id"], map[string]any{"prompt": a.Params["prompt"]})
	default:
		err = fmt.Errorf("unsupported action %q", a.Type)
	}
	if err != nil {
		slog.Error("node action failed", "workspace", workspaceID, "message", msgID, "action", a.Type, "error", err)
		return a, fmt.Errorf("execute %s: %w", a.Type, err)
	}

	return s.setStatus(ctx, workspaceID, msgID, idx, domain.ActionExecuted)
}

// CancelAction marks a pending action cancelled. Terminal actions are left
// as they are.
func (s *ActionService) CancelAction(ctx context.Context, workspaceID, msgID string, idx int) (domain.Action, error) {
	unlock := s.lock(workspaceID)
	defer unlock()

	a, err := s.action(ctx, workspaceID, msgID, idx)
	if err != nil {
		return domain.Action{}, err
	}
	if a.Terminal() {
		return a, nil
	}
	return s.setStatus(ctx, workspaceID, msgID, idx, domain.ActionCancelled)
}

// ConfirmWorkflow deploys a workflow proposal onto the canvas, chaining
// each node to the previous one starting from the selected node. A
// workflow is deployed at most once.
func (s *ActionService) ConfirmWorkflow(ctx context.Context, workspaceID, msgID string) ([]domain.Node, error) {
	unlock := s.lock(workspaceID)
	defer unlock()

	sess, at, err := s.sessions.FindMessage(ctx, workspaceID, msgID)
	if err != nil {
		return nil, err
	}
	wf := sess.Messages[at].Workflow()
	if wf == nil {
		return nil, domain.ErrNoWorkflow
	}
	if wf.Applied {
		return nil, nil
	}

	parent := s.canvas.Context(workspaceID).SelectedID
	var created []domain.Node
	var deployErr error
	for _, n := range wf.Nodes {
		data := maps.Clone(n.Data)
		if data == nil {
			data = make(map[string]any)
		}
		if parent != "" {
			data["sourceNodeId"] = parent
		}
		node, err := s.canvas.AddNode(ctx, workspaceID, n.Type, data)
		if err != nil {
			deployErr = fmt.Errorf("deploy workflow: %w", err)
			break
		}
		created = append(created, node)
		parent = node.ID
	}

	// Partially deployed workflows are marked applied too; a retry would
	// duplicate the nodes already on the canvas.
	if len(created) > 0 {
		if _, err := s.sessions.UpdateMessage(ctx, workspaceID, msgID, func(m *domain.Message) error {
			if w := m.Workflow(); w != nil {
				w.Applied = true
			}
			return nil
		}); err != nil {
			return created, err
		}
	}
	if deployErr != nil {
		slog.Error("workflow deploy failed", "workspace", workspaceID, "message", msgID, "created", len(created), "error", deployErr)
	}
	return created, deployErr
}

// ImagePrompt is the prompt sent for a proposal: the base prompt plus the
// on-image copy as an explicit instruction.
func ImagePrompt(req domain.ImageRequest) string {
	if req.Copy == "" {
		return req.Prompt
	}
	return fmt.Sprintf(`%s. The image MUST clearly display the following text exactly: "%s". The text should be integrated into the design professionally.`, req.Prompt, req.Copy)
}

// ConfirmGenerate runs the image proposal held by msgID. Only one image
// job or chat turn runs per workspace; a second request fails with ErrBusy.
// A spent proposal fails with ErrProposalSpent. Collaborator failures are
// appended to the message and returned in GenerateResult.Err.
func (s *ActionService) ConfirmGenerate(ctx context.Context, workspaceID, msgID string) (*GenerateResult, error) {
	sess, at, err := s.sessions.FindMessage(ctx, workspaceID, msgID)
	if err != nil {
		return nil, err
	}
	req := sess.Messages[at].ImageRequest()
	if req == nil {
		return nil, domain.ErrNoImageProposal
	}
	if sess.Messages[at].GeneratedImage != "" {
		return nil, domain.ErrProposalSpent
	}
	if s.images == nil {
		return nil, domain.ErrProviderNotConfigured
	}

	release, err := s.sessions.Begin(ctx, workspaceID, domain.PhaseGeneratingImage)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the phase guard: the proposal may have been spent or
	// re-targeted since the first look.
	sess, at, err = s.sessions.FindMessage(ctx, workspaceID, msgID)
	if err != nil {
		return nil, err
	}
	msg := sess.Messages[at]
	req = msg.ImageRequest()
	if msg.GeneratedImage != "" {
		return nil, domain.ErrProposalSpent
	}

	job := ImageJob{
		Prompt:     ImagePrompt(*req),
		Ratio:      req.Ratio,
		Model:      s.imageModel,
		References: ImageReferences(sess.Messages, at),
	}
	slog.Info("generating image", "workspace", workspaceID, "message", msgID, "module", req.Module, "references", len(job.References))

	image, genErr := s.generate(ctx, job)

	updated, err := s.sessions.UpdateMessage(ctx, workspaceID, msgID, func(m *domain.Message) error {
		if genErr != nil {
			m.Content += fmt.Sprintf("\n\n❌ \"%s\" failed: %s", req.Module, genErr.Error())
			m.IsError = true
			return nil
		}
		m.Content += fmt.Sprintf("\n\n✅ \"%s\" generated", req.Module)
		m.GeneratedImage = image
		return nil
	})
	if err != nil {
		return nil, err
	}
	if genErr != nil {
		slog.Error("image generation failed", "workspace", workspaceID, "message", msgID, "error", genErr)
	}
	return &GenerateResult{Message: updated, Err: genErr}, nil
}

func (s *ActionService) generate(ctx context.Context, job ImageJob) (string, error) {
	gctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	image, err := s.images.Generate(gctx, job)
	if err != nil {
		if errors.Is(gctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return "", &domain.TimeoutError{Bound: s.timeout}
		}
		return "", err
	}
	return image, nil
}
