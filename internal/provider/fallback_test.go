package provider

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucasBiason/threat-modeling-ai/pkg/cache"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

func newTestCache() *cache.TieredCache {
	return cache.New("", time.Minute, testLog())
}

type fakeProvider struct {
	name        string
	configured  bool
	visionText  string
	visionErr   error
	textText    string
	textErr     error
	invocations int
}

func (f *fakeProvider) Name() string       { return f.name }
func (f *fakeProvider) IsConfigured() bool { return f.configured }

func (f *fakeProvider) InvokeVision(ctx context.Context, prompt string, image []byte) (string, error) {
	f.invocations++
	return f.visionText, f.visionErr
}

func (f *fakeProvider) InvokeText(ctx context.Context, messages []Message) (string, error) {
	f.invocations++
	return f.textText, f.textErr
}

func testLog() *logger.Logger {
	return logger.New(logger.Config{Level: "INFO", Format: "text"})
}

func TestRunnerSkipsUnconfiguredProviders(t *testing.T) {
	unconfigured := &fakeProvider{name: "A", configured: false}
	working := &fakeProvider{name: "B", configured: true, visionText: `{"ok": true}`}

	r := NewRunner([]Provider{unconfigured, working}, nil, nil, 0, testLog())
	result, err := r.RunVision(context.Background(), "guardrail", "prompt", []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, true, result["ok"])
	assert.Equal(t, 0, unconfigured.invocations)
	assert.Equal(t, 1, working.invocations)
}

func TestRunnerFallsThroughOnInvokeError(t *testing.T) {
	failing := &fakeProvider{name: "A", configured: true, visionErr: &Error{Provider: "A", Kind: ErrKindProcessingError, Message: "boom"}}
	working := &fakeProvider{name: "B", configured: true, visionText: `{"ok": true}`}

	r := NewRunner([]Provider{failing, working}, nil, nil, 0, testLog())
	result, err := r.RunVision(context.Background(), "guardrail", "prompt", []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, true, result["ok"])
}

func TestRunnerFallsThroughOnInvalidJSON(t *testing.T) {
	garbled := &fakeProvider{name: "A", configured: true, visionText: "not json at all"}
	working := &fakeProvider{name: "B", configured: true, visionText: `{"ok": true}`}

	r := NewRunner([]Provider{garbled, working}, nil, nil, 0, testLog())
	result, err := r.RunVision(context.Background(), "guardrail", "prompt", []byte("img"))

	require.NoError(t, err)
	assert.Equal(t, true, result["ok"])
}

func TestRunnerReturnsFallbackErrorWhenAllFail(t *testing.T) {
	a := &fakeProvider{name: "A", configured: true, visionErr: &Error{Provider: "A", Kind: ErrKindInvalidAPIKey, Message: "bad key"}}
	b := &fakeProvider{name: "B", configured: true, visionText: `{"error": "rejected"}`}

	r := NewRunner([]Provider{a, b}, nil, nil, 0, testLog())
	_, err := r.RunVision(context.Background(), "guardrail", "prompt", []byte("img"))

	require.Error(t, err)
	var fbErr *FallbackError
	require.ErrorAs(t, err, &fbErr)
	assert.Len(t, fbErr.EngineErrors, 2)
}

func TestRunnerHonoursCustomValidator(t *testing.T) {
	working := &fakeProvider{name: "A", configured: true, visionText: `{"is_architecture_diagram": false}`}

	r := NewRunner([]Provider{working}, nil, nil, 0, testLog())
	r.Validate = func(result map[string]interface{}) bool {
		_, ok := result["is_architecture_diagram"]
		return ok
	}

	result, err := r.RunVision(context.Background(), "guardrail", "prompt", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, false, result["is_architecture_diagram"])
}

func TestRunnerCachesSuccessfulResult(t *testing.T) {
	working := &fakeProvider{name: "A", configured: true, visionText: `{"ok": true}`}
	c := newTestCache()

	r := NewRunner([]Provider{working}, nil, c, time.Minute, testLog())
	_, err := r.RunVision(context.Background(), "guardrail", "same-prompt", []byte("img"))
	require.NoError(t, err)

	second, err := r.RunVision(context.Background(), "guardrail", "same-prompt", []byte("img"))
	require.NoError(t, err)
	assert.Equal(t, true, second["ok"])
	assert.Equal(t, 1, working.invocations, "second call should be served from cache, not the provider")
}
