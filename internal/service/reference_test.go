package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/studiochat/internal/domain"
)

func userMsg(id string, files ...domain.Attachment) domain.Message {
	return domain.Message{ID: id, Role: domain.RoleUser, Files: files}
}

func proposalMsg(id string, needLabels ...string) domain.Message {
	return domain.Message{
		ID:       id,
		Role:     domain.RoleAssistant,
		Proposal: &domain.Proposal{Image: &domain.ImageRequest{Module: "Hero", Prompt: "p", Ratio: "3:4", NeedLabels: needLabels}},
	}
}

func ids(refs []Reference) []string {
	out := make([]string, len(refs))
	for i, r := range refs {
		out[i] = r.AttachmentID
		if out[i] == "" {
			out[i] = "gen:" + r.MessageID
		}
	}
	return out
}

func TestChatReferencesSelectionOverrides(t *testing.T) {
	msgs := []domain.Message{
		userMsg("m1", imageFile("a", "", false), imageFile("b", "", false), imageFile("c", "", true)),
		userMsg("m2", imageFile("d", "", false)),
		userMsg("m3", imageFile("e", "", false), imageFile("f", "", true)),
	}

	assert.Equal(t, []string{"c", "f"}, ids(ChatReferences(msgs)))
}

func TestChatReferencesAllWhenNothingLocked(t *testing.T) {
	doc := domain.Attachment{ID: "doc", MimeKind: domain.MimePDF, Content: "data:application/pdf;base64,AA"}
	elided := imageFile("x", "", false)
	elided.Content = ""
	msgs := []domain.Message{
		userMsg("m1", imageFile("a", "白底", false), doc, elided),
		userMsg("m2", imageFile("b", "", false)),
	}

	refs := ChatReferences(msgs)

	assert.Equal(t, []string{"a", "b"}, ids(refs))
	assert.Equal(t, "m1", refs[0].MessageID)
	assert.Equal(t, "白底", refs[0].Label)
}

func TestImageReferencesManualSelection(t *testing.T) {
	msgs := []domain.Message{
		userMsg("m1", imageFile("a", "白底", false), imageFile("b", "detail", true)),
		proposalMsg("p1", "白底"),
	}

	refs := ImageReferences(msgs, 1)

	require.Equal(t, []string{"b"}, ids(refs))
	assert.Equal(t, "detail", refs[0].Label)
}

func TestImageReferencesLabelHints(t *testing.T) {
	msgs := []domain.Message{
		userMsg("m1", imageFile("a", "Front View", false), imageFile("b", "白底", false), imageFile("c", "back view", false)),
		proposalMsg("p1", "VIEW"),
	}

	assert.Equal(t, []string{"a", "c"}, ids(ImageReferences(msgs, 1)))
}

func TestImageReferencesHeuristicFallback(t *testing.T) {
	tests := []struct {
		name  string
		files []domain.Attachment
		hints []string
		want  []string
	}{
		{
			name:  "hero image among unlabeled",
			files: []domain.Attachment{imageFile("a", "", false), imageFile("hero", "主图", false), imageFile("b", "", false), imageFile("c", "", false)},
			want:  []string{"hero"},
		},
		{
			name:  "white background wins over hero",
			files: []domain.Attachment{imageFile("hero", "主图", false), imageFile("white", "产品白底", false)},
			want:  []string{"white"},
		},
		{
			name:  "unmatched hints fall through",
			files: []domain.Attachment{imageFile("a", "", false), imageFile("p", "产品 side", false)},
			hints: []string{"logo"},
			want:  []string{"p"},
		},
		{
			name:  "first upload as last resort",
			files: []domain.Attachment{imageFile("first", "", false), imageFile("second", "", false)},
			want:  []string{"first"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs := []domain.Message{userMsg("m1", tt.files...), proposalMsg("p1", tt.hints...)}
			assert.Equal(t, tt.want, ids(ImageReferences(msgs, 1)))
		})
	}
}

func TestImageReferencesDefaultLabelAndPreviousGeneration(t *testing.T) {
	older := proposalMsg("p0")
	older.GeneratedImage = "data:image/png;base64,OLD"
	newer := proposalMsg("p1")
	newer.GeneratedImage = "data:image/png;base64,NEW"
	later := proposalMsg("p3")
	later.GeneratedImage = "data:image/png;base64,LATER"

	msgs := []domain.Message{
		userMsg("m1", imageFile("a", "", false)),
		older,
		newer,
		proposalMsg("p2"),
		later,
	}

	refs := ImageReferences(msgs, 3)

	require.Len(t, refs, 2)
	assert.Equal(t, "a", refs[0].AttachmentID)
	assert.Equal(t, LabelPrimarySubject, refs[0].Label)
	assert.Equal(t, "data:image/png;base64,NEW", refs[1].Content)
	assert.Equal(t, LabelPreviousGeneration, refs[1].Label)
}

func TestImageReferencesNoUploads(t *testing.T) {
	prev := proposalMsg("p0")
	prev.GeneratedImage = "https://cdn.example/img.png"
	msgs := []domain.Message{prev, proposalMsg("p1")}

	refs := ImageReferences(msgs, 1)

	require.Len(t, refs, 1)
	assert.Equal(t, LabelPreviousGeneration, refs[0].Label)
	assert.Nil(t, ImageReferences(msgs, 5))
}

func TestReferencesDoNotMutate(t *testing.T) {
	msgs := []domain.Message{userMsg("m1", imageFile("a", "", true)), proposalMsg("p1")}

	_ = ChatReferences(msgs)
	_ = ImageReferences(msgs, 1)

	assert.True(t, msgs[0].Files[0].Selected)
	assert.Empty(t, msgs[0].Files[0].Label)
}
