// internal/models/jobrun.go
package models

import "time"

// JobRunStatus is the lifecycle state of one monitoring pass.
type JobRunStatus string

const (
	JobRunPending   JobRunStatus = "PENDING"
	JobRunRunning   JobRunStatus = "RUNNING"
	JobRunCompleted JobRunStatus = "COMPLETED"
	JobRunFailed    JobRunStatus = "FAILED"
)

// JobRun records the lifecycle and aggregate metrics of one orchestration
// invocation. Counts never decrease; COMPLETED and FAILED are terminal.
type JobRun struct {
	ID                string       `json:"id"`
	Status            JobRunStatus `json:"status"`
	StartedAt         time.Time    `json:"startedAt"`
	CompletedAt       *time.Time   `json:"completedAt,omitempty"`
	EntitiesProcessed int          `json:"entitiesProcessed"`
	ItemsFound        int          `json:"itemsFound"`
	ItemsNew          int          `json:"itemsNew"`
	LastError         string       `json:"lastError,omitempty"`
}

// Terminal reports whether the run can no longer change state.
func (r *JobRun) Terminal() bool {
	return r.Status == JobRunCompleted || r.Status == JobRunFailed
}
