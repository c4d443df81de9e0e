package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/LucasBiason/threat-modeling-ai/internal/provider"
	"github.com/LucasBiason/threat-modeling-ai/pkg/cache"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

const diagramPrompt = `
Analyze this architecture diagram.

1. Identify all components (Users, Servers, Databases, Gateways, Load Balancers, etc.).
2. Identify the connections and data flows between them.
3. Identify trust boundaries (e.g., VPCs, Public/Private subnets, DMZs).

Return ONLY a valid JSON object structured as:
{
  "model": "model_name",
  "components": [{"id": "unique_id", "type": "ComponentType", "name": "Display Name"}],
  "connections": [{"from": "source_id", "to": "target_id", "protocol": "HTTPS/HTTP/TCP/etc"}],
  "boundaries": ["boundary name 1", "boundary name 2"]
}

Important:
- Each component must have a unique id
- Use descriptive component types (User, Server, Database, Gateway, LoadBalancer, Cache, Queue, API, Service)
- Include the communication protocol for each connection when visible
`

// DiagramStage turns an architecture-diagram image into a structured
// component/connection graph via the vision fallback runner, namespace
// "diagram".
type DiagramStage struct {
	Providers []provider.Provider
	Limiters  provider.Limiters
	Cache     cache.Cache
	CacheTTL  time.Duration
	Log       *logger.Logger
}

// Run returns the diagram payload, falling back to a canonical degraded
// object (one "Unknown" component, no connections) when every provider
// fails, so later stages can still run.
func (s *DiagramStage) Run(ctx context.Context, image []byte) DiagramResult {
	runner := provider.NewRunner(s.Providers, s.Limiters, s.Cache, s.CacheTTL, s.Log)
	runner.Validate = validateDiagramResult

	result, err := runner.RunVision(ctx, "diagram", diagramPrompt, image)
	if err != nil {
		s.Log.WithError(err).Error("diagram analysis failed")
		return fallbackDiagram()
	}

	diagram, parseErr := parseDiagram(result)
	if parseErr != nil {
		s.Log.WithError(parseErr).Error("diagram result could not be parsed")
		return fallbackDiagram()
	}

	s.Log.WithField("components", len(diagram.Components)).
		WithField("connections", len(diagram.Connections)).
		Info("diagram analysis complete")
	return diagram
}

func validateDiagramResult(result map[string]interface{}) bool {
	if _, hasErr := result["error"]; hasErr {
		return false
	}
	components, ok := result["components"]
	if !ok {
		return false
	}
	_, isSlice := components.([]interface{})
	return isSlice
}

func parseDiagram(result map[string]interface{}) (DiagramResult, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return DiagramResult{}, err
	}
	var d DiagramResult
	if err := json.Unmarshal(data, &d); err != nil {
		return DiagramResult{}, err
	}
	return d, nil
}

func fallbackDiagram() DiagramResult {
	return DiagramResult{
		Model: "Fallback/Error",
		Components: []Component{
			{ID: "unknown_1", Type: "Unknown", Name: "Unanalyzed Component"},
		},
		Connections:     []Connection{},
		TrustBoundaries: []string{},
	}
}
