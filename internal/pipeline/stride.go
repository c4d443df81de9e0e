package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/LucasBiason/threat-modeling-ai/internal/provider"
	"github.com/LucasBiason/threat-modeling-ai/internal/retrieval"
	"github.com/LucasBiason/threat-modeling-ai/pkg/cache"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

const strideSystemPrompt = `You are an expert security analyst specializing in STRIDE threat modeling.

STRIDE Categories:
- Spoofing: Pretending to be someone or something else
- Tampering: Modifying data or code without authorization
- Repudiation: Denying having performed an action
- Information Disclosure: Exposing information to unauthorized parties
- Denial of Service: Making a system unavailable
- Elevation of Privilege: Gaining unauthorized access or capabilities

For each component and connection in the architecture, identify potential threats and provide actionable mitigations.

%s`

const strideUserPromptTemplate = `Based on this architecture diagram analysis:

Components:
%s

Connections:
%s

Trust Boundaries:
%s

Identify all STRIDE threats. Return a JSON list of threat objects:
[
  {
    "component_id": "affected_component_id",
    "threat_type": "Spoofing|Tampering|Repudiation|Information Disclosure|Denial of Service|Elevation of Privilege",
    "description": "Clear description of the threat",
    "mitigation": "Specific actionable mitigation"
  }
]

Be thorough - analyze each component and connection for potential threats.
Return ONLY the JSON list, no additional text.`

const strideSeedQuery = "What are typical STRIDE threats for web applications and microservices?"

// StrideStage classifies STRIDE threats for a diagram, optionally enriched
// with retrieval-index context, namespace "stride".
type StrideStage struct {
	Providers []provider.Provider
	Limiters  provider.Limiters
	Cache     cache.Cache
	CacheTTL  time.Duration
	Retrieval *retrieval.Index
	Log       *logger.Logger
}

// Run returns raw threat objects (without DREAD scores yet). A total
// fallback-chain failure is a legitimate outcome — it returns an empty
// list rather than an error.
func (s *StrideStage) Run(ctx context.Context, diagram DiagramResult) []Threat {
	context_ := ""
	if s.Retrieval != nil {
		chunks := s.Retrieval.Query(strideSeedQuery, 3)
		if len(chunks) > 0 {
			var sb strings.Builder
			sb.WriteString("\n\nRelevant context:\n")
			for _, c := range chunks {
				sb.WriteString(c.Text)
				sb.WriteString("\n")
			}
			context_ = sb.String()
		}
	}

	systemContent := fmt.Sprintf(strideSystemPrompt, context_)
	userContent := fmt.Sprintf(strideUserPromptTemplate,
		formatComponents(diagram.Components),
		formatConnections(diagram.Connections),
		formatBoundaries(diagram.TrustBoundaries),
	)

	runner := provider.NewRunner(s.Providers, s.Limiters, s.Cache, s.CacheTTL, s.Log)
	runner.Validate = validateStrideResult

	messages := []provider.Message{
		{Role: "system", Content: systemContent},
		{Role: "user", Content: userContent},
	}
	result, err := runner.RunText(ctx, "stride", messages)
	if err != nil {
		s.Log.WithError(err).Error("STRIDE analysis failed")
		return nil
	}

	threats, parseErr := parseThreats(result)
	if parseErr != nil {
		s.Log.WithError(parseErr).Error("STRIDE result could not be parsed")
		return nil
	}
	return threats
}

func validateStrideResult(result map[string]interface{}) bool {
	if _, hasErr := result["error"]; hasErr {
		return false
	}
	_, ok := result["items"]
	return ok
}

func parseThreats(result map[string]interface{}) ([]Threat, error) {
	items, ok := result["items"]
	if !ok {
		return nil, fmt.Errorf("stride result missing items list")
	}
	data, err := json.Marshal(items)
	if err != nil {
		return nil, err
	}
	var threats []Threat
	if err := json.Unmarshal(data, &threats); err != nil {
		return nil, err
	}
	return threats, nil
}

func formatComponents(components []Component) string {
	if len(components) == 0 {
		return "None identified"
	}
	var sb strings.Builder
	for _, c := range components {
		fmt.Fprintf(&sb, "- [%s] %s: %s\n", c.ID, c.Type, c.Name)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatConnections(connections []Connection) string {
	if len(connections) == 0 {
		return "None identified"
	}
	var sb strings.Builder
	for _, c := range connections {
		protocol := c.Protocol
		if protocol == "" {
			protocol = "unknown"
		}
		fmt.Fprintf(&sb, "- %s -> %s (%s)\n", c.FromID, c.ToID, protocol)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func formatBoundaries(boundaries []string) string {
	if len(boundaries) == 0 {
		return "None identified"
	}
	return strings.Join(boundaries, ", ")
}
