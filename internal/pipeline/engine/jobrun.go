// internal/pipeline/engine/jobrun.go
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"clientpulse/internal/common/logger"
	"clientpulse/internal/models"
)

// RunStore persists job run lifecycle rows.
type RunStore interface {
	CreateJobRun(ctx context.Context, run models.JobRun) error
	UpdateJobRun(ctx context.Context, run models.JobRun) error
}

// Tracker owns the JobRun lifecycle. Persistence is best-effort: a run
// that cannot be written still executes, it just loses its audit row.
type Tracker struct {
	store RunStore
	log   logger.Logger
}

func NewTracker(store RunStore, log logger.Logger) *Tracker {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Tracker{store: store, log: log}
}

// Start creates a RUNNING run with a fresh id.
func (t *Tracker) Start(ctx context.Context) *models.JobRun {
	run := &models.JobRun{
		ID:        uuid.NewString(),
		Status:    models.JobRunRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := t.store.CreateJobRun(ctx, *run); err != nil {
		t.log.Error("failed to persist job run start", map[string]interface{}{
			"run":   run.ID,
			"error": err.Error(),
		})
	}
	return run
}

// Complete marks the run COMPLETED with its final counters.
func (t *Tracker) Complete(ctx context.Context, run *models.JobRun) {
	t.finish(ctx, run, models.JobRunCompleted, "")
}

// Fail marks the run FAILED and records the fatal error.
func (t *Tracker) Fail(ctx context.Context, run *models.JobRun, cause error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	t.finish(ctx, run, models.JobRunFailed, msg)
}

func (t *Tracker) finish(ctx context.Context, run *models.JobRun, status models.JobRunStatus, lastError string) {
	if run.Terminal() {
		return
	}
	now := time.Now().UTC()
	run.Status = status
	run.CompletedAt = &now
	if lastError != "" {
		run.LastError = lastError
	}
	if err := t.store.UpdateJobRun(ctx, *run); err != nil {
		t.log.Error("failed to persist job run completion", map[string]interface{}{
			"run":    run.ID,
			"status": string(status),
			"error":  err.Error(),
		})
	}
}
