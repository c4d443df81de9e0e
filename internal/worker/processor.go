package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/LucasBiason/threat-modeling-ai/internal/jobstore"
	"github.com/LucasBiason/threat-modeling-ai/internal/notification"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

// Outcome summarizes what Process did, mirroring the original's
// analysis_id/status/error/skipped response shape for callers (e.g. an
// admin endpoint that triggers processing on demand) that want to inspect
// it instead of only reading it from logs.
type Outcome struct {
	AnalysisID  uuid.UUID
	Status      string
	Skipped     bool
	Error       string
	ThreatCount int
	RiskLevel   string
}

// Processor drives one claimed analysis through the analyzer call and the
// job's terminal state transition.
type Processor struct {
	store    *jobstore.Store
	notifier *notification.Service
	analyzer *AnalyzerClient
	log      *logger.Logger
}

// New builds a Processor.
func New(store *jobstore.Store, notifier *notification.Service, analyzer *AnalyzerClient, log *logger.Logger) *Processor {
	return &Processor{store: store, notifier: notifier, analyzer: analyzer, log: log}
}

// Process loads analysisID, claims it if still open, calls the analyzer,
// and marks the job Done or Failed. It is idempotent against a job that
// is already Done or Failed — those are reported as skipped rather than
// reprocessed, since the scheduler's CAS claim already prevents two
// workers from racing on the same Open job.
func (p *Processor) Process(ctx context.Context, analysisID uuid.UUID) Outcome {
	analysis, err := p.store.GetByID(ctx, analysisID)
	if err != nil {
		if errors.Is(err, jobstore.ErrNotFound) {
			return Outcome{AnalysisID: analysisID, Error: "Analysis not found"}
		}
		p.log.WithError(err).WithField("analysis_id", analysisID).Error("failed to load analysis")
		return Outcome{AnalysisID: analysisID, Error: err.Error()}
	}

	if analysis.IsDone() || analysis.IsFailed() {
		return Outcome{AnalysisID: analysisID, Skipped: true, Status: string(analysis.Status)}
	}

	if analysis.IsOpen() {
		if _, err := p.store.MarkProcessing(ctx, analysisID, time.Now().UTC()); err != nil {
			p.log.WithError(err).WithField("analysis_id", analysisID).Error("failed to claim analysis")
			return Outcome{AnalysisID: analysisID, Error: err.Error()}
		}
	}

	p.appendLog(ctx, analysisID, "Processamento iniciado")

	imagePath, err := p.store.GetImagePath(ctx, analysisID)
	if err != nil || imagePath == "" {
		return p.fail(ctx, analysisID, "Image file not found", "")
	}
	imageBytes, err := os.ReadFile(imagePath)
	if err != nil {
		return p.fail(ctx, analysisID, "Image file not found", "")
	}

	p.appendLog(ctx, analysisID, fmt.Sprintf("Chamando threat-analyzer em %s", p.analyzer.Endpoint()))

	resultBytes, err := p.analyzer.Analyze(ctx, imageBytes, analysis.ImagePath)
	if err != nil {
		var aerr *AnalyzerError
		if errors.As(err, &aerr) {
			return p.fail(ctx, analysisID, aerr.Message, "")
		}
		return p.fail(ctx, analysisID, err.Error(), "")
	}

	if !gjson.ValidBytes(resultBytes) {
		return p.fail(ctx, analysisID, "threat-analyzer returned an invalid response", "")
	}

	// Pull just the fields the log line and notification need straight out
	// of the raw bytes; the full body is still stored verbatim below.
	threatCount := int(gjson.GetBytes(resultBytes, "threats.#").Int())
	p.appendLog(ctx, analysisID, fmt.Sprintf("Análise concluída: %d ameaças", threatCount))

	if err := p.store.MarkAnalysed(ctx, analysisID, time.Now().UTC(), resultBytes); err != nil {
		p.log.WithError(err).WithField("analysis_id", analysisID).Error("failed to persist analysis result")
		return Outcome{AnalysisID: analysisID, Error: err.Error()}
	}

	riskLevel := gjson.GetBytes(resultBytes, "risk_level").String()
	if riskLevel == "" {
		riskLevel = "N/A"
	}
	if p.notifier != nil {
		if err := p.notifier.NotifyAnalysisComplete(ctx, analysisID, analysis.Code, riskLevel, threatCount); err != nil {
			p.log.WithError(err).WithField("analysis_id", analysisID).Warn("analysis completed but notification failed")
		}
	}

	return Outcome{
		AnalysisID:  analysisID,
		Status:      string(jobstore.StatusDone),
		ThreatCount: threatCount,
		RiskLevel:   riskLevel,
	}
}

func (p *Processor) appendLog(ctx context.Context, analysisID uuid.UUID, message string) {
	if err := p.store.AppendProcessingLog(ctx, analysisID, message); err != nil {
		p.log.WithError(err).WithField("analysis_id", analysisID).Warn("failed to append processing log")
	}
}

func (p *Processor) fail(ctx context.Context, analysisID uuid.UUID, errorMessage, logMessage string) Outcome {
	if logMessage == "" {
		logMessage = errorMessage
	}
	p.appendLog(ctx, analysisID, logMessage)
	if err := p.store.MarkFailed(ctx, analysisID, time.Now().UTC(), errorMessage); err != nil {
		p.log.WithError(err).WithField("analysis_id", analysisID).Error("failed to mark analysis failed")
	}
	return Outcome{AnalysisID: analysisID, Status: string(jobstore.StatusFailed), Error: errorMessage}
}
