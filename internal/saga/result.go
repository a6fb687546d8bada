package saga

import "github.com/draftline-labs/draftline-go/internal/domain"

// Outcome classifies how a run ended.
type Outcome string

const (
	// OutcomeCompleted: every forward action succeeded.
	OutcomeCompleted Outcome = "completed"
	// OutcomeCompensated: a forward action failed and every required
	// compensating action succeeded.
	OutcomeCompensated Outcome = "compensated"
	// OutcomeFailed: a forward action failed and at least one compensating
	// action could not complete. Requires operator attention.
	OutcomeFailed Outcome = "failed"
)

// Result describes the outcome of one Execute call. Execute always returns
// a Result for a created run; step-level errors never escape it.
type Result struct {
	Outcome Outcome
	RunID   domain.RunID

	// EntityIDs holds the produced identifiers by slot name. Populated for
	// completed runs; for rolled-back runs it records what existed before
	// compensation removed the rows.
	EntityIDs map[string]string

	// FailedStep and Reason identify the forward failure that triggered
	// compensation. Empty for completed runs.
	FailedStep string
	Reason     string

	// Compensations is the ordered log of compensating actions applied,
	// in reverse completion order.
	Compensations []domain.CompensationRecord

	// FirstCompensationError is set when Outcome is OutcomeFailed: the first
	// compensating action that could not complete, as "step: error".
	FirstCompensationError string
}
