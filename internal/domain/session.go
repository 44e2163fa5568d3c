package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Session struct {
	ID       string          `json:"id"`
	Title    string          `json:"title"`
	Messages []Message       `json:"messages"`
	Spend    decimal.Decimal `json:"spend"`
}

// Message is append-only. The only in-place mutations are attachment
// selection, proposal ratio, action status and the generation result.
type Message struct {
	ID             string       `json:"id"`
	Role           Role         `json:"role"`
	Content        string       `json:"content"`
	Timestamp      time.Time    `json:"timestamp"`
	ModelID        string       `json:"modelId,omitempty"`
	Files          []Attachment `json:"files,omitempty"`
	Proposal       *Proposal    `json:"proposal,omitempty"`
	Actions        []Action     `json:"pendingActions,omitempty"`
	GeneratedImage string       `json:"generatedImage,omitempty"`
	ModuleInfo     string       `json:"moduleInfo,omitempty"`
	IsError        bool         `json:"isError,omitempty"`
}

type MimeKind string

const (
	MimeImage MimeKind = "image"
	MimeVideo MimeKind = "video"
	MimeAudio MimeKind = "audio"
	MimePDF   MimeKind = "pdf"
	MimeDoc   MimeKind = "doc"
	MimeExcel MimeKind = "excel"
	MimeCode  MimeKind = "code"
	MimeOther MimeKind = "other"
)

type Attachment struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	MimeKind MimeKind `json:"mimeKind"`
	Content  string   `json:"content"` // data URI for binary kinds, raw text otherwise
	Label    string   `json:"label,omitempty"`
	Selected bool     `json:"selected,omitempty"`
}

func (a Attachment) IsImage() bool {
	return a.MimeKind == MimeImage
}

// Proposal is either a single image request or a canvas workflow, never both.
type Proposal struct {
	Image    *ImageRequest `json:"image,omitempty"`
	Workflow *Workflow     `json:"workflow,omitempty"`
}

type ImageRequest struct {
	Prompt       string   `json:"prompt"`
	Ratio        string   `json:"ratio"`
	Module       string   `json:"module"`
	Copy         string   `json:"copy"`
	UseUserImage bool     `json:"useUserImage"`
	NeedLabels   []string `json:"needLabels,omitempty"`
}

type Workflow struct {
	Nodes   []WorkflowNode `json:"nodes"`
	Applied bool           `json:"applied,omitempty"`
}

type WorkflowNode struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

type ActionType string

const (
	ActionAddNode    ActionType = "ADD_NODE"
	ActionUpdateNode ActionType = "UPDATE_NODE"
)

type ActionStatus string

const (
	ActionPending   ActionStatus = "pending"
	ActionExecuted  ActionStatus = "executed"
	ActionCancelled ActionStatus = "cancelled"
)

type Action struct {
	Type        ActionType        `json:"type"`
	Params      map[string]string `json:"params"`
	Description string            `json:"description"`
	Status      ActionStatus      `json:"status"`
}

// Terminal reports whether the action can no longer change state.
func (a Action) Terminal() bool {
	return a.Status == ActionExecuted || a.Status == ActionCancelled
}

// ImageRequest returns the message's image proposal, if any.
func (m *Message) ImageRequest() *ImageRequest {
	if m.Proposal == nil {
		return nil
	}
	return m.Proposal.Image
}

// Workflow returns the message's workflow proposal, if any.
func (m *Message) Workflow() *Workflow {
	if m.Proposal == nil {
		return nil
	}
	return m.Proposal.Workflow
}

// Clone returns a deep copy so snapshots never alias live state.
func (m Message) Clone() Message {
	out := m
	if m.Files != nil {
		out.Files = append([]Attachment(nil), m.Files...)
	}
	if m.Actions != nil {
		out.Actions = make([]Action, len(m.Actions))
		for i, a := range m.Actions {
			out.Actions[i] = a
			if a.Params != nil {
				out.Actions[i].Params = make(map[string]string, len(a.Params))
				for k, v := range a.Params {
					out.Actions[i].Params[k] = v
				}
			}
		}
	}
	if m.Proposal != nil {
		p := Proposal{}
		if m.Proposal.Image != nil {
			img := *m.Proposal.Image
			if img.NeedLabels != nil {
				img.NeedLabels = append([]string{}, img.NeedLabels...)
			}
			p.Image = &img
		}
		if m.Proposal.Workflow != nil {
			wf := *m.Proposal.Workflow
			wf.Nodes = append([]WorkflowNode(nil), wf.Nodes...)
			p.Workflow = &wf
		}
		out.Proposal = &p
	}
	return out
}

func (s Session) Clone() Session {
	out := s
	out.Messages = make([]Message, len(s.Messages))
	for i, m := range s.Messages {
		out.Messages[i] = m.Clone()
	}
	return out
}

// MessageIndex returns the position of the message with id, or -1.
func (s *Session) MessageIndex(id string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}
