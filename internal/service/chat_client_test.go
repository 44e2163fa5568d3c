package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/set-night/studiochat/internal/domain"
)

type wirePart struct {
	Type     string `json:"type"`
	Text     string `json:"text"`
	ImageURL struct {
		URL string `json:"url"`
	} `json:"image_url"`
}

type wireMessage struct {
	Role    string          `json:"role"`
	Content json.RawMessage `json:"content"`
}

func TestOpenAIChatRequestShape(t *testing.T) {
	var got struct {
		Model    string        `json:"model"`
		Messages []wireMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"c1","choices":[{"index":0,"message":{"role":"assistant","content":"hello"}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	chat := NewOpenAIChat(srv.URL, "key", "fallback-model")
	reply, err := chat.Chat(context.Background(), ChatRequest{
		SystemPrompt: "be brief",
		History: []ChatTurn{
			{Role: domain.RoleUser, Content: "earlier"},
			{Role: domain.RoleAssistant, Content: "ok"},
		},
		Text:   "look",
		Images: []Reference{{Content: "data:image/png;base64,QQ==", Label: "front"}, {Content: "data:image/png;base64,Qg=="}},
	})

	require.NoError(t, err)
	assert.Equal(t, "hello", reply.Text)
	assert.Equal(t, Usage{PromptTokens: 12, CompletionTokens: 3}, reply.Usage)

	assert.Equal(t, "fallback-model", got.Model)
	require.Len(t, got.Messages, 4)
	assert.Equal(t, "system", got.Messages[0].Role)

	var plain string
	require.NoError(t, json.Unmarshal(got.Messages[1].Content, &plain))
	assert.Equal(t, "earlier", plain)

	var parts []wirePart
	require.NoError(t, json.Unmarshal(got.Messages[3].Content, &parts))
	require.Len(t, parts, 3)
	assert.Equal(t, "text", parts[0].Type)
	assert.Equal(t, "Reference image labels:\n- Image 1: front\n- Image 2: unlabeled\n\nlook", parts[0].Text)
	assert.Equal(t, "image_url", parts[1].Type)
	assert.Equal(t, "data:image/png;base64,QQ==", parts[1].ImageURL.URL)
}

func TestOpenAIChatUnlabeledImagesHaveNoPreamble(t *testing.T) {
	var got struct {
		Messages []wireMessage `json:"messages"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"x"}}]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIChat(srv.URL, "key", "m").Chat(context.Background(), ChatRequest{
		Text:   "what is this",
		Images: []Reference{{Content: "data:image/png;base64,QQ=="}},
	})
	require.NoError(t, err)

	require.Len(t, got.Messages, 1)
	var parts []wirePart
	require.NoError(t, json.Unmarshal(got.Messages[0].Content, &parts))
	assert.Equal(t, "what is this", parts[0].Text)
}

func TestOpenAIChatAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIChat(srv.URL, "key", "m").Chat(context.Background(), ChatRequest{Text: "hi"})

	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.Status)
	assert.Equal(t, "slow down", te.Message)
}

func TestOpenAIChatEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIChat(srv.URL, "key", "m").Chat(context.Background(), ChatRequest{Text: "hi"})

	var te *domain.TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, "empty chat response", te.Message)
}
