package domain

import (
	"errors"
	"strings"
	"time"
)

// RunStatus is the durable lifecycle status of a workflow run.
type RunStatus string

const (
	RunStatusPending     RunStatus = "PENDING"
	RunStatusRunning     RunStatus = "RUNNING"
	RunStatusCompleted   RunStatus = "COMPLETED"
	RunStatusCompensated RunStatus = "COMPENSATED"
	RunStatusFailed      RunStatus = "FAILED"
)

// NormalizeRunStatus maps free-form status values to canonical statuses.
func NormalizeRunStatus(value string) RunStatus {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case string(RunStatusPending):
		return RunStatusPending
	case string(RunStatusRunning):
		return RunStatusRunning
	case string(RunStatusCompleted):
		return RunStatusCompleted
	case string(RunStatusCompensated):
		return RunStatusCompensated
	case string(RunStatusFailed):
		return RunStatusFailed
	default:
		return ""
	}
}

// Terminal reports whether the status admits no further transitions.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusCompensated, RunStatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionRunStatus enforces the run state machine:
// PENDING -> RUNNING -> COMPLETED | COMPENSATED | FAILED.
// Terminal statuses never transition again.
func CanTransitionRunStatus(current, next RunStatus) bool {
	if current == "" || next == "" {
		return false
	}
	if current.Terminal() {
		return false
	}
	switch current {
	case RunStatusPending:
		return next == RunStatusRunning || next.Terminal()
	case RunStatusRunning:
		return next.Terminal()
	default:
		return false
	}
}

// WorkflowRun is the durable audit record of one orchestration attempt.
// It is created at run start and never deleted, independent of whether the
// attempt's side effects were rolled back.
type WorkflowRun struct {
	ID          RunID
	BriefRef    string
	Status      RunStatus
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	LastError   string
	Metadata    Metadata
}

func (r WorkflowRun) Validate() error {
	if !r.ID.Valid() {
		return errors.New("run id is required")
	}
	if strings.TrimSpace(r.BriefRef) == "" {
		return errors.New("brief ref is required")
	}
	if NormalizeRunStatus(string(r.Status)) == "" {
		return errors.New("status is required")
	}
	return nil
}
