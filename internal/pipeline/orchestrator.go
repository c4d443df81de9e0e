package pipeline

import (
	"context"
	"time"

	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

// Pipeline drives one analysis request through Guardrail -> Diagram ->
// STRIDE -> DREAD, strictly sequentially, then aggregates a ThreatReport.
// Grounded in original_source's per-agent analyze() chain, composed here
// into a single orchestrator since the original had no equivalent
// "pipeline" object — each agent was invoked directly by the analyzer
// endpoint in the same strict order.
type Pipeline struct {
	Guardrail *GuardrailStage
	Diagram   *DiagramStage
	Stride    *StrideStage
	Dread     *DreadStage
	Log       *logger.Logger
}

// Run executes the full pipeline. A guardrail rejection returns
// *RejectedError and no report; any other stage degrades internally and
// never aborts the pipeline.
func (p *Pipeline) Run(ctx context.Context, image []byte) (*ThreatReport, error) {
	start := time.Now()

	if err := p.Guardrail.Run(ctx, image); err != nil {
		return nil, err
	}

	diagram := p.Diagram.Run(ctx, image)
	threats := p.Stride.Run(ctx, diagram)
	scored := p.Dread.Run(ctx, threats)

	riskScore := meanDreadScore(scored)
	report := &ThreatReport{
		ModelUsed:       diagram.Model,
		Components:      diagram.Components,
		Connections:     diagram.Connections,
		TrustBoundaries: diagram.TrustBoundaries,
		Threats:         scored,
		RiskScore:       riskScore,
		RiskLevel:       RiskLevel(riskScore),
		ProcessingTime:  round2(time.Since(start).Seconds()),
	}

	p.Log.WithField("risk_level", report.RiskLevel).
		WithField("threat_count", len(report.Threats)).
		WithField("processing_time", report.ProcessingTime).
		Info("pipeline run complete")
	return report, nil
}

func meanDreadScore(threats []Threat) float64 {
	if len(threats) == 0 {
		return 0
	}
	var sum float64
	var count int
	for _, t := range threats {
		if t.DreadScore != nil {
			sum += *t.DreadScore
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return round2(sum / float64(count))
}
