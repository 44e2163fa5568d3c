package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/set-night/studiochat/internal/domain"
)

// ChatTurn is one history entry sent to the chat collaborator.
type ChatTurn struct {
	Role    domain.Role
	Content string
	Images  []Reference
}

// ChatRequest is one chat completion call: system prompt, history and the
// in-flight user message with its images.
type ChatRequest struct {
	Model        string
	SystemPrompt string
	History      []ChatTurn
	Text         string
	Images       []Reference
}

type ChatReply struct {
	Text  string
	Usage Usage
}

// ChatClient is the chat completion collaborator.
type ChatClient interface {
	Chat(ctx context.Context, req ChatRequest) (*ChatReply, error)
}

// OpenAIChat talks to any OpenAI-compatible chat completions endpoint.
type OpenAIChat struct {
	client *openai.Client
	model  string
}

func NewOpenAIChat(baseURL, apiKey, model string) *OpenAIChat {
	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(baseURL, "/")
	}
	return &OpenAIChat{
		client: openai.NewClientWithConfig(clientConfig),
		model:  model,
	}
}

func (c *OpenAIChat) Chat(ctx context.Context, req ChatRequest) (*ChatReply, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, t := range req.History {
		messages = append(messages, chatMessage(string(t.Role), t.Content, t.Images, false))
	}
	messages = append(messages, chatMessage(openai.ChatMessageRoleUser, req.Text, req.Images, true))

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", mapOpenAIError(err))
	}
	if len(resp.Choices) == 0 {
		return nil, &domain.TransportError{Message: "empty chat response"}
	}

	return &ChatReply{
		Text: resp.Choices[0].Message.Content,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// chatMessage builds a plain message, or a multi-part one when images are
// attached. The in-flight message is always multi-part.
func chatMessage(role, text string, images []Reference, multipart bool) openai.ChatCompletionMessage {
	if len(images) == 0 && !multipart {
		return openai.ChatCompletionMessage{Role: role, Content: text}
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: labelPreamble(images) + text,
	}}
	for _, img := range images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: img.Content},
		})
	}
	return openai.ChatCompletionMessage{Role: role, MultiContent: parts}
}

// labelPreamble lists image labels ahead of the text, when any is set.
func labelPreamble(images []Reference) string {
	labeled := false
	for _, img := range images {
		if img.Label != "" {
			labeled = true
			break
		}
	}
	if !labeled {
		return ""
	}

	var b strings.Builder
	b.WriteString("Reference image labels:\n")
	for i, img := range images {
		label := img.Label
		if label == "" {
			label = "unlabeled"
		}
		fmt.Fprintf(&b, "- Image %d: %s\n", i+1, label)
	}
	b.WriteString("\n")
	return b.String()
}

func mapOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &domain.TransportError{Status: apiErr.HTTPStatusCode, Message: apiErr.Message}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		msg := "request failed"
		if reqErr.Err != nil {
			msg = reqErr.Err.Error()
		}
		return &domain.TransportError{Status: reqErr.HTTPStatusCode, Message: msg}
	}
	return err
}
