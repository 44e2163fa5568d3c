package service

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/set-night/studiochat/internal/domain"
)

// GeminiImageGenerator generates images through the Gemini API.
type GeminiImageGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiImageGenerator(ctx context.Context, apiKey, model string) (*GeminiImageGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiImageGenerator{client: client, model: model}, nil
}

func (g *GeminiImageGenerator) Generate(ctx context.Context, job ImageJob) (string, error) {
	model := job.Model
	if model == "" {
		model = g.model
	}

	prompt := subjectPrompt(job.Prompt, job.References)
	if job.Ratio != "" {
		prompt += "\n\nAspect ratio: " + job.Ratio
	}

	parts := []*genai.Part{genai.NewPartFromText(prompt)}
	for _, r := range job.References {
		if !IsDataURI(r.Content) {
			parts = append(parts, genai.NewPartFromURI(r.Content, "image/png"))
			continue
		}
		mimeType, data, err := DecodeDataURI(r.Content)
		if err != nil {
			return "", fmt.Errorf("reference %s: %w", r.Label, err)
		}
		parts = append(parts, genai.NewPartFromBytes(data, mimeType))
	}

	resp, err := g.client.Models.GenerateContent(ctx, model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{ResponseModalities: []string{"IMAGE", "TEXT"}},
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("generate content: %w", ctx.Err())
		}
		return "", &domain.TransportError{Message: "generate content: " + err.Error()}
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", &domain.TransportError{Message: "no candidates returned (check safety filters)"}
	}
	for _, p := range resp.Candidates[0].Content.Parts {
		if p.InlineData != nil && len(p.InlineData.Data) > 0 {
			return EncodeDataURI(p.InlineData.MIMEType, p.InlineData.Data), nil
		}
	}
	return "", &domain.TransportError{Message: "no image data returned"}
}
