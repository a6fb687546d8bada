package domain

import "time"

// CompensationOutcome is the recorded outcome of one compensating action.
type CompensationOutcome string

const (
	CompensationSucceeded CompensationOutcome = "succeeded"
	CompensationFailed    CompensationOutcome = "failed"
)

// CompensationRecord is one entry in the ordered compensation log.
type CompensationRecord struct {
	Step       string              `json:"step"`
	Outcome    CompensationOutcome `json:"outcome"`
	Error      string              `json:"error,omitempty"`
	RecordedAt time.Time           `json:"recorded_at"`
}

// RunState is the ephemeral, run-scoped record of produced entity
// identifiers and applied compensations. It is owned exclusively by one
// coordinator invocation and discarded once the run's terminal status is
// persisted; the durable record of outcome lives in the workflow run row.
//
// Entity id slots are nil until produced, which keeps "not yet produced"
// distinct from an empty value.
type RunState struct {
	RunID    RunID
	BriefRef string

	BriefID    *BriefID
	StrategyID *StrategyID
	DraftID    *DraftID
	PackageID  *PackageID

	QualityPassed bool

	Compensations []CompensationRecord
}

func NewRunState(runID RunID, briefRef string) *RunState {
	return &RunState{
		RunID:    runID,
		BriefRef: briefRef,
	}
}

func (s *RunState) RecordCompensation(step string, err error, at time.Time) {
	record := CompensationRecord{
		Step:       step,
		Outcome:    CompensationSucceeded,
		RecordedAt: at.UTC(),
	}
	if err != nil {
		record.Outcome = CompensationFailed
		record.Error = err.Error()
	}
	s.Compensations = append(s.Compensations, record)
}

// EntityIDs reports the produced identifiers by slot name, omitting slots
// that were never written. Used for terminal metadata and results.
func (s *RunState) EntityIDs() map[string]string {
	ids := make(map[string]string, 4)
	if s.BriefID != nil {
		ids["brief_id"] = s.BriefID.String()
	}
	if s.StrategyID != nil {
		ids["strategy_id"] = s.StrategyID.String()
	}
	if s.DraftID != nil {
		ids["draft_id"] = s.DraftID.String()
	}
	if s.PackageID != nil {
		ids["package_id"] = s.PackageID.String()
	}
	return ids
}
