package service

import (
	"strings"

	"github.com/set-night/studiochat/internal/domain"
)

// Labels assigned to references that carry none of their own.
const (
	LabelPrimarySubject     = "original product subject"
	LabelPreviousGeneration = "previous generation style"
)

// Heuristic labels consulted when the proposal named none.
var (
	whiteBackgroundLabels = []string{"白底"}
	heroLabels            = []string{"主图", "产品"}
)

// Reference is one image sent as visual context, with its semantic label.
type Reference struct {
	MessageID    string
	AttachmentID string
	Content      string
	Label        string
}

func anySelected(messages []domain.Message) bool {
	for _, m := range messages {
		for _, f := range m.Files {
			if f.IsImage() && f.Selected {
				return true
			}
		}
	}
	return false
}

// ChatReferences returns the images to send with a chat turn. messages is
// the current session including the in-flight message. When any image in
// it is locked, only locked images are returned. Elided images are skipped.
func ChatReferences(messages []domain.Message) []Reference {
	locked := anySelected(messages)

	var refs []Reference
	for _, m := range messages {
		for _, f := range m.Files {
			if !f.IsImage() || f.Content == "" {
				continue
			}
			if locked && !f.Selected {
				continue
			}
			refs = append(refs, Reference{
				MessageID:    m.ID,
				AttachmentID: f.ID,
				Content:      f.Content,
				Label:        f.Label,
			})
		}
	}
	return refs
}

// ImageReferences resolves the references for generating the proposal held
// by messages[at]. The first non-empty tier wins: locked images, images
// matching the proposal's label hints, white-background then hero labels,
// and finally the first uploaded image. The nearest earlier generated image
// is appended after whichever tier fired.
func ImageReferences(messages []domain.Message, at int) []Reference {
	if at < 0 || at >= len(messages) {
		return nil
	}

	var pool []Reference
	for _, m := range messages {
		if m.Role != domain.RoleUser {
			continue
		}
		for _, f := range m.Files {
			if !f.IsImage() || f.Content == "" {
				continue
			}
			pool = append(pool, Reference{
				MessageID:    m.ID,
				AttachmentID: f.ID,
				Content:      f.Content,
				Label:        f.Label,
			})
		}
	}

	var needLabels []string
	if req := messages[at].ImageRequest(); req != nil {
		needLabels = req.NeedLabels
	}

	refs := selectedTier(messages, pool)
	if len(refs) == 0 && len(needLabels) > 0 {
		refs = filterLabels(pool, needLabels, true)
	}
	if len(refs) == 0 && len(pool) > 0 {
		refs = filterLabels(pool, whiteBackgroundLabels, false)
		if len(refs) == 0 {
			refs = filterLabels(pool, heroLabels, false)
		}
		if len(refs) == 0 {
			refs = pool[:1]
		}
	}

	out := make([]Reference, 0, len(refs)+1)
	for _, r := range refs {
		if r.Label == "" {
			r.Label = LabelPrimarySubject
		}
		out = append(out, r)
	}

	for i := at - 1; i >= 0; i-- {
		if img := messages[i].GeneratedImage; img != "" {
			out = append(out, Reference{
				MessageID: messages[i].ID,
				Content:   img,
				Label:     LabelPreviousGeneration,
			})
			break
		}
	}
	return out
}

func selectedTier(messages []domain.Message, pool []Reference) []Reference {
	selected := make(map[string]bool)
	for _, m := range messages {
		for _, f := range m.Files {
			if f.IsImage() && f.Selected {
				selected[f.ID] = true
			}
		}
	}

	var out []Reference
	for _, r := range pool {
		if selected[r.AttachmentID] {
			out = append(out, r)
		}
	}
	return out
}

func filterLabels(pool []Reference, hints []string, foldCase bool) []Reference {
	var out []Reference
	for _, r := range pool {
		label := r.Label
		if foldCase {
			label = strings.ToLower(label)
		}
		for _, h := range hints {
			if foldCase {
				h = strings.ToLower(h)
			}
			if h != "" && strings.Contains(label, h) {
				out = append(out, r)
				break
			}
		}
	}
	return out
}
