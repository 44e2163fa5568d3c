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

func imageServer(t *testing.T, status int, contentType, body string, got *imageRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/images/generations", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		if got != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPImageGeneratorB64(t *testing.T) {
	var got imageRequest
	srv := imageServer(t, http.StatusOK, "application/json", `{"data":[{"b64_json":"R0VO"}]}`, &got)
	gen := NewHTTPImageGenerator(srv.URL+"/", "key", "default-model")

	image, err := gen.Generate(context.Background(), ImageJob{
		Prompt: "a mug",
		Ratio:  "16:9",
		References: []Reference{
			{Content: "data:image/png;base64,QQ==", Label: "front"},
			{Content: "https://example.com/b.png"},
		},
	})

	require.NoError(t, err)
	assert.Equal(t, "data:image/png;base64,R0VO", image)
	assert.Equal(t, "default-model", got.Model)
	assert.Equal(t, "1792x1024", got.Size)
	assert.Equal(t, "16:9", got.AspectRatio)
	assert.Equal(t, "b64_json", got.ResponseFormat)
	assert.Equal(t, 1, got.N)
	assert.Equal(t, []string{"data:image/png;base64,QQ==", "https://example.com/b.png"}, got.Images)
	assert.Contains(t, got.Prompt, "Image 1 (PRIMARY SUBJECT): front")
	assert.Contains(t, got.Prompt, "Image 2 (ELEMENT REF): style element")
	assert.Contains(t, got.Prompt, "Instruction:\na mug")
}

func TestHTTPImageGeneratorURL(t *testing.T) {
	var got imageRequest
	srv := imageServer(t, http.StatusOK, "application/json; charset=utf-8", `{"data":[{"url":"https://cdn.example.com/x.png"}]}`, &got)
	gen := NewHTTPImageGenerator(srv.URL, "key", "default-model")

	image, err := gen.Generate(context.Background(), ImageJob{Prompt: "plain", Ratio: "7:3", Model: "override"})

	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/x.png", image)
	assert.Equal(t, "override", got.Model)
	assert.Equal(t, "1024x1024", got.Size)
	assert.Equal(t, "plain", got.Prompt)
	assert.Empty(t, got.Images)
}

func TestHTTPImageGeneratorErrors(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		contentType string
		body        string
		wantStatus  int
		wantMsg     string
	}{
		{
			name:        "json error",
			status:      http.StatusBadRequest,
			contentType: "application/json",
			body:        `{"error":{"message":"prompt rejected"}}`,
			wantStatus:  http.StatusBadRequest,
			wantMsg:     "prompt rejected",
		},
		{
			name:        "html error page",
			status:      http.StatusBadGateway,
			contentType: "text/html",
			body:        `<html><head><title>502 Bad Gateway</title></head><body><h1>oops</h1></body></html>`,
			wantStatus:  http.StatusBadGateway,
			wantMsg:     "non-JSON error response: 502 Bad Gateway",
		},
		{
			name:        "html success",
			status:      http.StatusOK,
			contentType: "text/html",
			body:        `<html><body>Welcome to nginx</body></html>`,
			wantStatus:  http.StatusOK,
			wantMsg:     "server did not return JSON, check the base URL: Welcome to nginx",
		},
		{
			name:        "empty data",
			status:      http.StatusOK,
			contentType: "application/json",
			body:        `{"data":[]}`,
			wantStatus:  http.StatusOK,
			wantMsg:     "no image data returned",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := imageServer(t, tt.status, tt.contentType, tt.body, nil)
			gen := NewHTTPImageGenerator(srv.URL, "key", "m")

			_, err := gen.Generate(context.Background(), ImageJob{Prompt: "x"})

			var te *domain.TransportError
			require.ErrorAs(t, err, &te)
			assert.Equal(t, tt.wantStatus, te.Status)
			assert.Equal(t, tt.wantMsg, te.Message)
		})
	}
}

func TestDataURIRoundTrip(t *testing.T) {
	uri := EncodeDataURI("image/jpeg", []byte{0xff, 0xd8, 0xff})
	assert.True(t, IsDataURI(uri))

	mimeType, data, err := DecodeDataURI(uri)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", mimeType)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, data)

	_, _, err = DecodeDataURI("https://example.com/a.png")
	assert.Error(t, err)
	_, _, err = DecodeDataURI("data:image/png,raw")
	assert.Error(t, err)
}
