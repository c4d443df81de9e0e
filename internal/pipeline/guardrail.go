package pipeline

import (
	"context"

	"github.com/LucasBiason/threat-modeling-ai/internal/provider"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

const guardrailPrompt = `Analyze this image and determine if it is an architecture diagram.

An architecture diagram shows:
- System components (Users, Servers, Databases, Gateways, Load Balancers, APIs, etc.)
- Connections and data flows between components
- Trust boundaries (VPCs, networks, subnets)

NOT valid architecture diagrams:
- Sequence diagrams (UML with actors and messages over time)
- Photos or screenshots of real environments
- Flowcharts or process diagrams
- Generic illustrations or clipart
- Plain text or documents

Return ONLY a valid JSON object:
{"is_architecture_diagram": true/false, "reason": "brief explanation in one sentence"}`

// GuardrailStage classifies whether an uploaded image is a valid
// architecture diagram before the rest of the pipeline runs on it. It never
// caches (cache adapters are explicitly absent) and fails open: a runner
// failure lets the image through rather than blocking the pipeline.
type GuardrailStage struct {
	Providers []provider.Provider
	Limiters  provider.Limiters
	Log       *logger.Logger
}

// Run raises a *RejectedError when the image is confidently classified as
// not an architecture diagram; otherwise it returns nil (including when the
// LLM call itself failed, per the fail-open rule).
func (s *GuardrailStage) Run(ctx context.Context, image []byte) error {
	runner := provider.NewRunner(s.Providers, s.Limiters, nil, 0, s.Log)
	runner.Validate = validateGuardrailResult

	result, err := runner.RunVision(ctx, "guardrail", guardrailPrompt, image)
	if err != nil {
		s.Log.WithError(err).Warn("guardrail: LLM validation failed, allowing through")
		return nil
	}

	reason := "No reason provided"
	if r, ok := result["reason"].(string); ok && r != "" {
		reason = r
	}

	isValid := false
	switch v := result["is_architecture_diagram"].(type) {
	case bool:
		isValid = v
	case string:
		isValid = v == "true" || v == "True"
	}

	if !isValid {
		s.Log.WithField("reason", reason).Warn("guardrail: image rejected")
		return &RejectedError{Reason: reason}
	}

	s.Log.Info("guardrail: image validated as architecture diagram")
	return nil
}

func validateGuardrailResult(result map[string]interface{}) bool {
	if _, hasErr := result["error"]; hasErr {
		return false
	}
	_, ok := result["is_architecture_diagram"]
	return ok
}
