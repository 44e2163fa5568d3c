package repository

import (
	"encoding/json"

	"github.com/set-night/studiochat/internal/domain"
)

// Policy bounds what a snapshot may carry.
type Policy struct {
	// MaxMessages keeps only the most recent messages of each session.
	MaxMessages int
	// MaxAttachmentChars empties image attachments whose content is longer.
	MaxAttachmentChars int
}

// Compact returns copies of sessions trimmed to the policy. The input is
// never modified. Generated images are kept as is; Fit sheds them when a
// snapshot is over quota.
func Compact(sessions []domain.Session, p Policy) []domain.Session {
	out := make([]domain.Session, len(sessions))
	for i, s := range sessions {
		msgs := s.Messages
		if p.MaxMessages > 0 && len(msgs) > p.MaxMessages {
			msgs = msgs[len(msgs)-p.MaxMessages:]
		}

		cs := s
		cs.Messages = make([]domain.Message, len(msgs))
		for j, m := range msgs {
			cm := m.Clone()
			for k := range cm.Files {
				f := &cm.Files[k]
				if f.IsImage() && p.MaxAttachmentChars > 0 && len(f.Content) > p.MaxAttachmentChars {
					f.Content = ""
				}
			}
			cs.Messages[j] = cm
		}
		out[i] = cs
	}
	return out
}

// Fit sheds content from compacted sessions until at least excess bytes of
// encoded JSON are gone, and returns the sessions with the bytes shed.
//
// Payloads go oldest first: generated images except the newest one, then
// image attachments, then the newest generated image. If that is not
// enough, sessions other than the current one are dropped, oldest first,
// and finally the oldest messages of the current session. The current
// session always keeps its last message.
func Fit(sessions []domain.Session, currentID string, excess int) ([]domain.Session, int) {
	if len(sessions) == 0 || excess <= 0 {
		return sessions, 0
	}

	cur := 0
	for i := range sessions {
		if sessions[i].ID == currentID {
			cur = i
			break
		}
	}

	// Sessions are stored newest first.
	order := make([]int, 0, len(sessions))
	for i := len(sessions) - 1; i >= 0; i-- {
		if i != cur {
			order = append(order, i)
		}
	}
	order = append(order, cur)

	var generated, attachments []*string
	for _, i := range order {
		msgs := sessions[i].Messages
		for j := range msgs {
			m := &msgs[j]
			if m.GeneratedImage != "" {
				generated = append(generated, &m.GeneratedImage)
			}
			for k := range m.Files {
				if m.Files[k].IsImage() && m.Files[k].Content != "" {
					attachments = append(attachments, &m.Files[k].Content)
				}
			}
		}
	}

	payloads := attachments
	if n := len(generated); n > 0 {
		payloads = append(append(generated[:n-1:n-1], attachments...), generated[n-1])
	}

	shed := 0
	for _, p := range payloads {
		if shed >= excess {
			return sessions, shed
		}
		shed += len(*p)
		*p = ""
	}

	for shed < excess && len(sessions) > 1 {
		drop := len(sessions) - 1
		if drop == cur {
			drop--
		}
		shed += encodedLen(sessions[drop]) + 1
		sessions = append(sessions[:drop:drop], sessions[drop+1:]...)
		if drop < cur {
			cur--
		}
	}

	c := &sessions[cur]
	for shed < excess && len(c.Messages) > 1 {
		shed += encodedLen(c.Messages[0]) + 1
		c.Messages = c.Messages[1:]
	}
	return sessions, shed
}

func encodedLen(v any) int {
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
