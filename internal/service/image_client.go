package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/set-night/studiochat/internal/config"
	"github.com/set-night/studiochat/internal/domain"
)

// ImageJob is one image generation call.
type ImageJob struct {
	Prompt     string
	Ratio      string
	Model      string
	References []Reference
}

// ImageGenerator is the image generation collaborator. It returns a data
// URI or a URL.
type ImageGenerator interface {
	Generate(ctx context.Context, job ImageJob) (string, error)
}

// subjectPrompt prefixes prompt with one line per reference: the first is
// the subject to preserve, the rest are element donors.
func subjectPrompt(prompt string, refs []Reference) string {
	if len(refs) == 0 {
		return prompt
	}

	var b strings.Builder
	b.WriteString("You are a precise image editor. Keep the subject of image 1 identical and change only the background, copy and decoration as instructed.\n\n")
	b.WriteString("Reference images:\n")
	for i, r := range refs {
		if i == 0 {
			label := r.Label
			if label == "" {
				label = "product subject"
			}
			fmt.Fprintf(&b, "- Image 1 (PRIMARY SUBJECT): %s. Preserve its shape, outline, proportions and colors exactly; ignore its background.\n", label)
			continue
		}
		label := r.Label
		if label == "" {
			label = "style element"
		}
		fmt.Fprintf(&b, "- Image %d (ELEMENT REF): %s. Take only its pattern, texture or element and apply it to the subject.\n", i+1, label)
	}
	b.WriteString("\nInstruction:\n")
	b.WriteString(prompt)
	return b.String()
}

// HTTPImageGenerator calls an OpenAI-format /images/generations endpoint.
type HTTPImageGenerator struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
}

func NewHTTPImageGenerator(baseURL, apiKey, model string) *HTTPImageGenerator {
	return &HTTPImageGenerator{
		apiKey:  apiKey,
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		// Bounded by the caller's context.
		httpClient: &http.Client{},
	}
}

type imageRequest struct {
	Model          string   `json:"model"`
	Prompt         string   `json:"prompt"`
	N              int      `json:"n"`
	ResponseFormat string   `json:"response_format"`
	Size           string   `json:"size"`
	AspectRatio    string   `json:"aspect_ratio"`
	Images         []string `json:"images,omitempty"`
}

type imageResponse struct {
	Data []struct {
		B64JSON string `json:"b64_json"`
		URL     string `json:"url"`
	} `json:"data"`
}

func (g *HTTPImageGenerator) Generate(ctx context.Context, job ImageJob) (string, error) {
	model := job.Model
	if model == "" {
		model = g.model
	}

	images := make([]string, len(job.References))
	for i, r := range job.References {
		images[i] = r.Content
	}

	payload, err := json.Marshal(imageRequest{
		Model:          model,
		Prompt:         subjectPrompt(job.Prompt, job.References),
		N:              1,
		ResponseFormat: "b64_json",
		Size:           config.SizeForRatio(job.Ratio),
		AspectRatio:    job.Ratio,
		Images:         images,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/images/generations", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.apiKey)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("image request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	isJSON := strings.Contains(resp.Header.Get("Content-Type"), "application/json")
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &domain.TransportError{Status: resp.StatusCode, Message: errorMessage(body, isJSON)}
	}
	if !isJSON {
		return "", &domain.TransportError{
			Status:  resp.StatusCode,
			Message: "server did not return JSON, check the base URL: " + excerpt(pageText(body), 50),
		}
	}

	var out imageResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return "", &domain.TransportError{Status: resp.StatusCode, Message: "parse response: " + err.Error()}
	}
	if len(out.Data) == 0 {
		return "", &domain.TransportError{Status: resp.StatusCode, Message: "no image data returned"}
	}

	item := out.Data[0]
	if b64 := strings.TrimSpace(item.B64JSON); b64 != "" {
		if strings.HasPrefix(b64, "data:image") {
			return b64, nil
		}
		return "data:image/png;base64," + b64, nil
	}
	if item.URL != "" {
		return item.URL, nil
	}
	return "", &domain.TransportError{Status: resp.StatusCode, Message: "no b64_json or url in image data"}
}

// errorMessage extracts a readable reason from a failed response body.
func errorMessage(body []byte, isJSON bool) string {
	if isJSON {
		var e struct {
			Error struct {
				Message string `json:"message"`
			} `json:"error"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(body, &e); err == nil {
			if e.Error.Message != "" {
				return e.Error.Message
			}
			if e.Message != "" {
				return e.Message
			}
		}
		return "request failed"
	}
	return "non-JSON error response: " + excerpt(pageText(body), 100)
}

// pageText reduces an HTML or plain-text body to its visible text.
func pageText(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return strings.TrimSpace(string(body))
	}
	if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		return title
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func excerpt(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
