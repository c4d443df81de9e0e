package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/LucasBiason/threat-modeling-ai/internal/provider"
	"github.com/LucasBiason/threat-modeling-ai/pkg/cache"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

const dreadSystemPrompt = `You are an expert security analyst specializing in DREAD risk scoring.

DREAD is a risk assessment model that scores threats on 5 dimensions (each 1-10):

- Damage (D): How much damage could result if the vulnerability is exploited?
- Reproducibility (R): How easy is it to reproduce the attack?
- Exploitability (E): How easy is it to launch an attack?
- Affected Users (A): How many users would be affected?
- Discoverability (D): How easy is it to discover the vulnerability?

Be consistent and realistic in your scoring.`

const dreadUserPromptTemplate = `Score the following threats using DREAD methodology.

Threats to score:
%s

For each threat, return the original threat object with added DREAD scoring:
- dread_score: the average of all 5 DREAD scores (rounded to 2 decimal places)
- dread_details: object with individual scores (damage, reproducibility, exploitability, affected_users, discoverability)

Return ONLY a JSON list with the scored threats.`

// DreadStage scores a list of STRIDE threats with DREAD dimensions,
// namespace "dread".
type DreadStage struct {
	Providers []provider.Provider
	Limiters  provider.Limiters
	Cache     cache.Cache
	CacheTTL  time.Duration
	Log       *logger.Logger
}

// Run short-circuits on an empty input and, on total fallback-chain
// failure, returns the input threats unchanged (unscored) rather than an
// error.
func (s *DreadStage) Run(ctx context.Context, threats []Threat) []Threat {
	if len(threats) == 0 {
		return threats
	}

	threatsJSON, err := json.MarshalIndent(threats, "", "  ")
	if err != nil {
		s.Log.WithError(err).Error("failed to marshal threats for DREAD scoring")
		return threats
	}

	runner := provider.NewRunner(s.Providers, s.Limiters, s.Cache, s.CacheTTL, s.Log)
	runner.Validate = validateDreadResult

	messages := []provider.Message{
		{Role: "system", Content: dreadSystemPrompt},
		{Role: "user", Content: fmt.Sprintf(dreadUserPromptTemplate, string(threatsJSON))},
	}
	result, runErr := runner.RunText(ctx, "dread", messages)
	if runErr != nil {
		s.Log.WithError(runErr).Error("DREAD scoring failed")
		return threats
	}

	scored, parseErr := parseThreats(result)
	if parseErr != nil {
		s.Log.WithError(parseErr).Error("DREAD result could not be parsed")
		return threats
	}

	for i := range scored {
		if scored[i].DreadScore != nil {
			clamped := clampDread(*scored[i].DreadScore)
			scored[i].DreadScore = &clamped
		}
	}
	return scored
}

func validateDreadResult(result map[string]interface{}) bool {
	if _, hasErr := result["error"]; hasErr {
		return false
	}
	_, ok := result["items"]
	return ok
}
