package worker

import (
	"context"

	"github.com/google/uuid"

	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

// AsyncDispatcher adapts a Processor to scheduler.Dispatcher, running each
// claimed job on its own goroutine so the scheduler's once-a-minute tick
// never blocks on a 300-second analyzer call.
type AsyncDispatcher struct {
	processor *Processor
	log       *logger.Logger
}

// NewAsyncDispatcher builds an AsyncDispatcher over processor.
func NewAsyncDispatcher(processor *Processor, log *logger.Logger) *AsyncDispatcher {
	return &AsyncDispatcher{processor: processor, log: log}
}

// Dispatch parses jobID and runs it in a detached goroutine with its own
// background context, since the tick's context is already done by the time
// the analyzer call would finish.
func (d *AsyncDispatcher) Dispatch(jobID string) {
	id, err := uuid.Parse(jobID)
	if err != nil {
		d.log.WithError(err).WithField("job_id", jobID).Error("dispatcher received invalid job id")
		return
	}
	go func() {
		outcome := d.processor.Process(context.Background(), id)
		if outcome.Error != "" {
			d.log.WithField("analysis_id", id).WithField("error", outcome.Error).Warn("analysis processing failed")
			return
		}
		d.log.WithField("analysis_id", id).WithField("status", outcome.Status).Info("analysis processing finished")
	}()
}
