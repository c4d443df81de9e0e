package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GeminiProvider calls the Gemini generateContent REST endpoint directly,
// replacing the original ChatGoogleGenerativeAI/langchain client with a thin
// HTTP call (no SDK in the retrieval pack reaches this API).
type GeminiProvider struct {
	APIKey      string
	Model       string
	Temperature float64
	HTTPClient  *http.Client
	BaseURL     string
}

// NewGeminiProvider constructs a GeminiProvider with sane HTTP defaults.
func NewGeminiProvider(apiKey, model string, temperature float64) *GeminiProvider {
	return &GeminiProvider{
		APIKey:      apiKey,
		Model:       model,
		Temperature: temperature,
		HTTPClient:  &http.Client{Timeout: 60 * time.Second},
		BaseURL:     "https://generativelanguage.googleapis.com/v1beta",
	}
}

func (g *GeminiProvider) Name() string { return "Gemini" }

func (g *GeminiProvider) IsConfigured() bool { return g.APIKey != "" }

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiGenerationConfig struct {
	Temperature float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text string `json:"text"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (g *GeminiProvider) InvokeVision(ctx context.Context, prompt string, image []byte) (string, error) {
	if !g.IsConfigured() {
		return "", &Error{Provider: g.Name(), Kind: ErrKindConfig, Message: "Gemini not configured"}
	}
	req := geminiRequest{
		Contents: []geminiContent{{
			Parts: []geminiPart{
				{Text: prompt},
				{InlineData: &geminiInlineData{MimeType: "image/jpeg", Data: base64.StdEncoding.EncodeToString(image)}},
			},
		}},
		GenerationConfig: geminiGenerationConfig{Temperature: g.Temperature},
	}
	return g.call(ctx, req)
}

func (g *GeminiProvider) InvokeText(ctx context.Context, messages []Message) (string, error) {
	if !g.IsConfigured() {
		return "", &Error{Provider: g.Name(), Kind: ErrKindConfig, Message: "Gemini not configured"}
	}
	contents := make([]geminiContent, 0, len(messages))
	for _, m := range messages {
		role := "user"
		if m.Role == "system" {
			// Gemini has no system role in this endpoint; a system message
			// is sent as its own user-role content, in its original position,
			// so it still reads as leading context.
			role = "user"
		}
		contents = append(contents, geminiContent{Role: role, Parts: []geminiPart{{Text: m.Content}}})
	}
	req := geminiRequest{Contents: contents, GenerationConfig: geminiGenerationConfig{Temperature: g.Temperature}}
	return g.call(ctx, req)
}

func (g *GeminiProvider) call(ctx context.Context, body geminiRequest) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", &Error{Provider: g.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", g.BaseURL, g.Model, g.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return "", &Error{Provider: g.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.HTTPClient.Do(httpReq)
	if err != nil {
		return "", &Error{Provider: g.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden || strings.Contains(string(raw), "API key") {
		return "", &Error{Provider: g.Name(), Kind: ErrKindInvalidAPIKey, Message: string(raw)}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Provider: g.Name(), Kind: ErrKindProcessingError, Message: string(raw)}
	}

	var parsed geminiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Provider: g.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", &Error{Provider: g.Name(), Kind: ErrKindEmpty, Message: "empty response"}
	}
	return parsed.Candidates[0].Content.Parts[0].Text, nil
}
