package domain

// Mode selects how the system prompt is assembled for a chat turn.
type Mode string

const (
	ModeChat   Mode = "chat"
	ModeDesign Mode = "design"
)

// VisualDNA is the single-slot style lock of a workspace.
type VisualDNA struct {
	Raw             string `json:"raw"`
	ProductIdentity string `json:"productIdentity,omitempty"`
}

func (d VisualDNA) Locked() bool {
	return d.Raw != ""
}

// Phase is the turn state of a workspace. Only Idle may transition.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseSending         Phase = "sending"
	PhaseGeneratingImage Phase = "generating_image"
)

// Workspace is everything one chat client owns: sessions, the current
// session pointer and the Visual DNA slot.
type Workspace struct {
	ID        string
	Sessions  []Session
	CurrentID string
	DNA       VisualDNA
	Mode      Mode
}

// Current returns the current session, falling back to the first one.
func (w *Workspace) Current() *Session {
	for i := range w.Sessions {
		if w.Sessions[i].ID == w.CurrentID {
			return &w.Sessions[i]
		}
	}
	if len(w.Sessions) == 0 {
		return nil
	}
	return &w.Sessions[0]
}

// Session returns the session with id, or nil.
func (w *Workspace) Session(id string) *Session {
	for i := range w.Sessions {
		if w.Sessions[i].ID == id {
			return &w.Sessions[i]
		}
	}
	return nil
}

func (w Workspace) Clone() Workspace {
	out := w
	out.Sessions = make([]Session, len(w.Sessions))
	for i, s := range w.Sessions {
		out.Sessions[i] = s.Clone()
	}
	return out
}

// Node is one canvas node as seen by the assistant.
type Node struct {
	ID    string         `json:"id"`
	Type  string         `json:"type"`
	Title string         `json:"title"`
	Data  map[string]any `json:"data,omitempty"`
}
