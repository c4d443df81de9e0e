package provider

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/LucasBiason/threat-modeling-ai/pkg/cache"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

// Limiters bounds how often each named provider may be invoked per second,
// mirroring the teacher's infrastructure/ratelimit wrapper over
// golang.org/x/time/rate. A provider absent from the map is unlimited.
type Limiters map[string]*rate.Limiter

// NewLimiters builds one limiter per provider name at the given
// requests-per-second/burst; cmd/analyzer builds one for every configured
// provider.
func NewLimiters(names []string, requestsPerSecond float64, burst int) Limiters {
	l := make(Limiters, len(names))
	for _, n := range names {
		l[n] = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
	return l
}

func (l Limiters) wait(ctx context.Context, name string) error {
	if lim, ok := l[name]; ok {
		return lim.Wait(ctx)
	}
	return nil
}

// Runner drives the ordered fallback chain for both vision and text calls.
type Runner struct {
	Providers []Provider
	Limiters  Limiters
	Cache     cache.Cache
	CacheTTL  time.Duration
	Validate  Validator
	Log       *logger.Logger
}

// NewRunner builds a Runner with the default (no-error-key) validator.
func NewRunner(providers []Provider, limiters Limiters, c cache.Cache, ttl time.Duration, log *logger.Logger) *Runner {
	return &Runner{
		Providers: providers,
		Limiters:  limiters,
		Cache:     c,
		CacheTTL:  ttl,
		Validate:  DefaultValidator,
		Log:       log,
	}
}

// RunVision tries each configured provider's InvokeVision in order, caching
// and returning the first validated success.
func (r *Runner) RunVision(ctx context.Context, cacheNamespace, prompt string, image []byte) (map[string]interface{}, error) {
	key, err := cache.Key(cacheNamespace, visionCacheParts{Prompt: prompt, ImageHash: hashBytes(image)})
	if err == nil && r.Cache != nil {
		var cached map[string]interface{}
		if ok, _ := cache.GetJSON(ctx, r.Cache, key, &cached); ok && r.validator()(cached) {
			r.Log.WithField("cache_key", key).Info("returning cached vision result")
			return cached, nil
		}
	}

	return r.run(ctx, key, func(ctx context.Context, p Provider) (string, error) {
		return p.InvokeVision(ctx, prompt, image)
	})
}

// RunText tries each configured provider's InvokeText in order, caching and
// returning the first validated success.
func (r *Runner) RunText(ctx context.Context, cacheNamespace string, messages []Message) (map[string]interface{}, error) {
	key, err := cache.Key(cacheNamespace, messages)
	if err == nil && r.Cache != nil {
		var cached map[string]interface{}
		if ok, _ := cache.GetJSON(ctx, r.Cache, key, &cached); ok && r.validator()(cached) {
			r.Log.WithField("cache_key", key).Info("returning cached text result")
			return cached, nil
		}
	}

	return r.run(ctx, key, func(ctx context.Context, p Provider) (string, error) {
		return p.InvokeText(ctx, messages)
	})
}

type visionCacheParts struct {
	Prompt    string `json:"prompt"`
	ImageHash string `json:"image_hash"`
}

func (r *Runner) validator() Validator {
	if r.Validate != nil {
		return r.Validate
	}
	return DefaultValidator
}

func (r *Runner) run(ctx context.Context, cacheKey string, invoke func(context.Context, Provider) (string, error)) (map[string]interface{}, error) {
	var engineErrors []EngineError

	for _, p := range r.Providers {
		if !p.IsConfigured() {
			r.Log.WithField("provider", p.Name()).Debug("provider not configured, skipping")
			continue
		}
		if err := r.Limiters.wait(ctx, p.Name()); err != nil {
			engineErrors = append(engineErrors, EngineError{Engine: p.Name(), Error: err.Error(), Kind: "rate_limited"})
			continue
		}

		r.Log.WithField("provider", p.Name()).Info("trying provider")
		text, err := invoke(ctx, p)
		if err != nil {
			engineErrors = append(engineErrors, classifyErr(p.Name(), err))
			continue
		}

		result, err := ExtractJSON(text)
		if err != nil {
			engineErrors = append(engineErrors, classifyErr(p.Name(), err))
			continue
		}
		if errMsg, ok := result["error"]; ok {
			engineErrors = append(engineErrors, EngineError{Engine: p.Name(), Error: toString(errMsg)})
			continue
		}
		if !r.validator()(result) {
			engineErrors = append(engineErrors, EngineError{Engine: p.Name(), Error: "validation failed"})
			continue
		}

		r.Log.WithField("provider", p.Name()).Info("provider succeeded")
		if r.Cache != nil && cacheKey != "" {
			_ = cache.SetJSON(ctx, r.Cache, cacheKey, result, r.CacheTTL)
		}
		return result, nil
	}

	return nil, &FallbackError{EngineErrors: engineErrors}
}

func classifyErr(provider string, err error) EngineError {
	if pErr, ok := err.(*Error); ok {
		return EngineError{Engine: provider, Error: pErr.Message, Kind: string(pErr.Kind)}
	}
	return EngineError{Engine: provider, Error: err.Error()}
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
