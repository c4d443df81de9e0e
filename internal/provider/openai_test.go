package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenAIInvokeVisionReturnsMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices": [{"message": {"content": "diagram looks valid"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAIProvider("sk-test", "gpt-4o", 0.1)
	o.BaseURL = srv.URL

	out, err := o.InvokeVision(context.Background(), "describe", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, "diagram looks valid", out)
}

func TestOpenAIInvokeTextDemotesNonSystemRolesToUser(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body openAIRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Equal(t, "user", body.Messages[1].Role)
		}
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer srv.Close()

	o := NewOpenAIProvider("sk-test", "gpt-4o", 0.1)
	o.BaseURL = srv.URL

	out, err := o.InvokeText(context.Background(), []Message{
		{Role: "system", Content: "you are a threat modeler"},
		{Role: "assistant", Content: "previous turn"},
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestOpenAIClassifiesUnauthorizedAsInvalidAPIKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": {"message": "Incorrect API key provided", "type": "invalid_request_error"}}`))
	}))
	defer srv.Close()

	o := NewOpenAIProvider("sk-bad", "gpt-4o", 0.1)
	o.BaseURL = srv.URL

	_, err := o.InvokeVision(context.Background(), "describe", []byte("img"))
	require.Error(t, err)
	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ErrKindInvalidAPIKey, pErr.Kind)
}

func TestOpenAIReturnsEmptyErrorWhenNoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	o := NewOpenAIProvider("sk-test", "gpt-4o", 0.1)
	o.BaseURL = srv.URL

	_, err := o.InvokeText(context.Background(), []Message{{Role: "user", Content: "x"}})
	require.Error(t, err)
	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ErrKindEmpty, pErr.Kind)
}

func TestOpenAINotConfiguredWithoutAPIKey(t *testing.T) {
	o := NewOpenAIProvider("", "gpt-4o", 0.1)
	assert.False(t, o.IsConfigured())

	_, err := o.InvokeVision(context.Background(), "x", []byte("img"))
	require.Error(t, err)
	var pErr *Error
	require.ErrorAs(t, err, &pErr)
	assert.Equal(t, ErrKindConfig, pErr.Kind)
}
