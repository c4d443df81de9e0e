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

// OpenAIProvider calls the OpenAI chat completions REST endpoint directly.
type OpenAIProvider struct {
	APIKey      string
	Model       string
	Temperature float64
	HTTPClient  *http.Client
	BaseURL     string
}

func NewOpenAIProvider(apiKey, model string, temperature float64) *OpenAIProvider {
	return &OpenAIProvider{
		APIKey:      apiKey,
		Model:       model,
		Temperature: temperature,
		HTTPClient:  &http.Client{Timeout: 60 * time.Second},
		BaseURL:     "https://api.openai.com/v1",
	}
}

func (o *OpenAIProvider) Name() string { return "OpenAI" }

func (o *OpenAIProvider) IsConfigured() bool { return o.APIKey != "" }

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIMessage struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (o *OpenAIProvider) InvokeVision(ctx context.Context, prompt string, image []byte) (string, error) {
	if !o.IsConfigured() {
		return "", &Error{Provider: o.Name(), Kind: ErrKindConfig, Message: "OpenAI not configured"}
	}
	dataURI := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(image)
	req := openAIRequest{
		Model: o.Model,
		Messages: []openAIMessage{{
			Role: "user",
			Content: []openAIContentPart{
				{Type: "text", Text: prompt},
				{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURI}},
			},
		}},
		Temperature: o.Temperature,
	}
	return o.call(ctx, req)
}

func (o *OpenAIProvider) InvokeText(ctx context.Context, messages []Message) (string, error) {
	if !o.IsConfigured() {
		return "", &Error{Provider: o.Name(), Kind: ErrKindConfig, Message: "OpenAI not configured"}
	}
	msgs := make([]openAIMessage, 0, len(messages))
	for _, m := range messages {
		role := m.Role
		if role != "system" {
			role = "user"
		}
		msgs = append(msgs, openAIMessage{Role: role, Content: m.Content})
	}
	req := openAIRequest{Model: o.Model, Messages: msgs, Temperature: o.Temperature}
	return o.call(ctx, req)
}

func (o *OpenAIProvider) call(ctx context.Context, body openAIRequest) (string, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return "", &Error{Provider: o.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/chat/completions", o.BaseURL), bytes.NewReader(data))
	if err != nil {
		return "", &Error{Provider: o.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.APIKey)

	resp, err := o.HTTPClient.Do(httpReq)
	if err != nil {
		return "", &Error{Provider: o.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || strings.Contains(string(raw), "API key") {
		return "", &Error{Provider: o.Name(), Kind: ErrKindInvalidAPIKey, Message: string(raw)}
	}

	var parsed openAIResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &Error{Provider: o.Name(), Kind: ErrKindProcessingError, Message: err.Error()}
	}
	if parsed.Error != nil {
		kind := ErrKindProcessingError
		if strings.Contains(strings.ToLower(parsed.Error.Message), "invalid") || strings.Contains(parsed.Error.Message, "401") {
			kind = ErrKindInvalidAPIKey
		}
		return "", &Error{Provider: o.Name(), Kind: kind, Message: parsed.Error.Message}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &Error{Provider: o.Name(), Kind: ErrKindProcessingError, Message: string(raw)}
	}
	if len(parsed.Choices) == 0 {
		return "", &Error{Provider: o.Name(), Kind: ErrKindEmpty, Message: "empty response"}
	}
	return parsed.Choices[0].Message.Content, nil
}
