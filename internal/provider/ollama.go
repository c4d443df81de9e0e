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

// OllamaProvider calls a local/self-hosted Ollama /api/chat endpoint. Unlike
// Gemini/OpenAI it is "configured" whenever a base URL is set, since Ollama
// has no API key.
type OllamaProvider struct {
	BaseURL     string
	Model       string
	Temperature float64
	HTTPClient  *http.Client
}

func NewOllamaProvider(baseURL, model string, temperature float64) *OllamaProvider {
	return &OllamaProvider{
		BaseURL:     baseURL,
		Model:       model,
		Temperature: temperature,
		HTTPClient:  &http.Client{Timeout: 120 * time.Second},
	}
}

func (o *OllamaProvider) Name() string { return "Ollama" }

func (o *OllamaProvider) IsConfigured() bool { return o.BaseURL != "" }

type ollamaMessage struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

type ollamaRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature"`
	} `json:"options"`
}

type ollamaResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
}

func (o *OllamaProvider) InvokeVision(ctx context.Context, prompt string, image []byte) (string, error) {
	if !o.IsConfigured() {
		return "", &Error{Provider: o.Name(), Kind: ErrKindConfig, Message: "Ollama not configured"}
	}
	req := ollamaRequest{
		Model: o.Model,
		Messages: []ollamaMessage{{
			Role:    "user",
			Content: prompt,
			Images:  []string{base64.StdEncoding.EncodeToString(image)},
		}},
	}
	req.Options.Temperature = o.Temperature
	return o.call(ctx, req)
}

func (o *OllamaProvider) InvokeText(ctx context.Context, messages []Message) (string, error) {
	if !o.IsConfigured() {
		return "", &Error{Provider: o.Name(), Kind: ErrKindConfig, Message: "Ollama not configured"}
	}
	msgs := make([]ollamaMessage, 0, len(messages))
	for _, m := range messages {
		msgs = append(msgs, ollamaMessage{Role: m.Role, Content: m.Content})
	}
	req := ollamaRequest{Model: o.Model, Messages: msgs}
	req.Options.Temperature = o.Temperature
	return o.call(ctx, req)
}

func (o *OllamaProvider) call(ctx context.Context, body ollamaRequest) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", &Error{Provider: o.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/api/chat", strings.TrimRight(o.BaseURL, "/")), bytes.NewReader(data))
	if err != nil {
		return "", &Error{Provider: o.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := o.HTTPClient.Do(httpReq)
	if err != nil {
		return "", &Error{Provider: o.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	var parsed ollamaResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Provider: o.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	if parsed.Error != "" {
		return "", &Error{Provider: o.Name(), Kind: ErrKindProcessingError, Message: parsed.Error}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Provider: o.Name(), Kind: ErrKindProcessingError, Message: string(raw)}
	}
	if parsed.Message.Content == "" {
		return "", &Error{Provider: o.Name(), Kind: ErrKindEmpty, Message: "empty response"}
	}
	return parsed.Message.Content, nil
}
