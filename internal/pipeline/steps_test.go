package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/draftline-labs/draftline-go/internal/domain"
	"github.com/draftline-labs/draftline-go/internal/saga"
)

type harness struct {
	store       *memStore
	artifacts   *memArtifacts
	collab      *fakeCollaborators
	runs        *fakeRunRepo
	coordinator *saga.Coordinator
}

func newHarness(t *testing.T, collab *fakeCollaborators) *harness {
	t.Helper()
	store := newMemStore()
	artifacts := newMemArtifacts()
	registry, err := NewRegistry(DefaultProfile(), store.stores(), collab.collaborators(), artifacts)
	if err != nil {
		t.Fatalf("NewRegistry() err=%v", err)
	}
	runs := newFakeRunRepo()
	coordinator, err := saga.NewCoordinator(registry, runs, newFakeClaims(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewCoordinator() err=%v", err)
	}
	return &harness{
		store:       store,
		artifacts:   artifacts,
		collab:      collab,
		runs:        runs,
		coordinator: coordinator,
	}
}

func (h *harness) execute(t *testing.T, briefRef string) saga.Result {
	t.Helper()
	result, err := h.coordinator.Execute(context.Background(), saga.Input{BriefRef: briefRef})
	if err != nil {
		t.Fatalf("Execute(%s) err=%v", briefRef, err)
	}
	return result
}

func (h *harness) runStatus(t *testing.T, id domain.RunID) domain.WorkflowRun {
	t.Helper()
	run, err := h.runs.GetRun(context.Background(), id)
	if err != nil {
		t.Fatalf("GetRun() err=%v", err)
	}
	return run
}

func TestRunAllStepsSucceed(t *testing.T) {
	h := newHarness(t, &fakeCollaborators{verdict: passingVerdict()})

	result := h.execute(t, "brief-001")

	if result.Outcome != saga.OutcomeCompleted {
		t.Fatalf("outcome=%s, want completed", result.Outcome)
	}
	for _, slot := range []string{"brief_id", "strategy_id", "draft_id", "package_id"} {
		if result.EntityIDs[slot] == "" {
			t.Fatalf("missing entity id %s", slot)
		}
	}
	if len(result.Compensations) != 0 {
		t.Fatalf("completed run must not compensate, got %d records", len(result.Compensations))
	}

	run := h.runStatus(t, result.RunID)
	if run.Status != domain.RunStatusCompleted {
		t.Fatalf("status=%s, want COMPLETED", run.Status)
	}
	if run.CompletedAt == nil {
		t.Fatalf("completed run must record completed_at")
	}
	if len(h.store.briefs) != 1 || len(h.store.strategies) != 1 || len(h.store.drafts) != 1 || len(h.store.packages) != 1 {
		t.Fatalf("expected one row per root entity")
	}
	if h.artifacts.count() != 2 {
		t.Fatalf("expected 2 uploaded artifacts, got %d", h.artifacts.count())
	}
}

func TestRunQualityRejectionCompensatesEverything(t *testing.T) {
	h := newHarness(t, &fakeCollaborators{verdict: failingVerdict()})

	result := h.execute(t, "brief-002")

	if result.Outcome != saga.OutcomeCompensated {
		t.Fatalf("outcome=%s, want compensated", result.Outcome)
	}
	if result.FailedStep != StepEvaluateQuality {
		t.Fatalf("failed step=%s, want %s", result.FailedStep, StepEvaluateQuality)
	}
	if h.store.rowCount() != 0 {
		t.Fatalf("expected all rows removed, %d remain", h.store.rowCount())
	}
	if h.artifacts.count() != 0 {
		t.Fatalf("no artifacts should exist, got %d", h.artifacts.count())
	}

	run := h.runStatus(t, result.RunID)
	if run.Status != domain.RunStatusCompensated {
		t.Fatalf("status=%s, want COMPENSATED", run.Status)
	}
	if !strings.Contains(run.LastError, StepEvaluateQuality) {
		t.Fatalf("last_error=%q must name the failed step", run.LastError)
	}

	// The rejected step sits on top of the stack so its own verdict rows are
	// removed first, then draft, strategy, brief in reverse completion order.
	wantOrder := []string{StepEvaluateQuality, StepProduceDraft, StepSynthesizeStrategy, StepNormalizeBrief}
	if len(result.Compensations) != len(wantOrder) {
		t.Fatalf("expected %d compensations, got %d", len(wantOrder), len(result.Compensations))
	}
	for i, record := range result.Compensations {
		if record.Step != wantOrder[i] {
			t.Fatalf("compensation[%d]=%s, want %s", i, record.Step, wantOrder[i])
		}
		if record.Outcome != domain.CompensationSucceeded {
			t.Fatalf("compensation[%d] outcome=%s", i, record.Outcome)
		}
	}
}

func TestRunPackagingFailureCompensatesAfterQualityPass(t *testing.T) {
	collab := &fakeCollaborators{verdict: passingVerdict()}
	h := newHarness(t, collab)
	h.artifacts.failPut = true

	result := h.execute(t, "brief-003")

	if result.Outcome != saga.OutcomeCompensated {
		t.Fatalf("outcome=%s, want compensated", result.Outcome)
	}
	if result.FailedStep != StepAssemblePackage {
		t.Fatalf("failed step=%s, want %s", result.FailedStep, StepAssemblePackage)
	}
	if h.store.rowCount() != 0 {
		t.Fatalf("expected all rows removed, %d remain", h.store.rowCount())
	}
	if h.artifacts.count() != 0 {
		t.Fatalf("no artifact objects should remain, got %d", h.artifacts.count())
	}

	wantOrder := []string{StepAssemblePackage, StepEvaluateQuality, StepProduceDraft, StepSynthesizeStrategy, StepNormalizeBrief}
	if len(result.Compensations) != len(wantOrder) {
		t.Fatalf("expected %d compensations, got %d", len(wantOrder), len(result.Compensations))
	}
	for i, record := range result.Compensations {
		if record.Step != wantOrder[i] {
			t.Fatalf("compensation[%d]=%s, want %s", i, record.Step, wantOrder[i])
		}
	}
}

func TestRunCompensationFailureMarksFailedAndContinues(t *testing.T) {
	h := newHarness(t, &fakeCollaborators{verdict: failingVerdict()})
	h.store.failStrategyDelete = true

	result := h.execute(t, "brief-004")

	if result.Outcome != saga.OutcomeFailed {
		t.Fatalf("outcome=%s, want failed", result.Outcome)
	}
	if !strings.Contains(result.FirstCompensationError, StepSynthesizeStrategy) {
		t.Fatalf("first compensation error=%q must name %s", result.FirstCompensationError, StepSynthesizeStrategy)
	}

	// The stuck strategy delete must not block the earlier brief cleanup.
	var briefRecord *domain.CompensationRecord
	for i := range result.Compensations {
		if result.Compensations[i].Step == StepNormalizeBrief {
			briefRecord = &result.Compensations[i]
		}
	}
	if briefRecord == nil {
		t.Fatalf("brief compensation was not attempted")
	}
	if briefRecord.Outcome != domain.CompensationSucceeded {
		t.Fatalf("brief compensation outcome=%s, want succeeded", briefRecord.Outcome)
	}
	if len(h.store.briefs) != 0 {
		t.Fatalf("brief rows must be removed despite the strategy failure")
	}
	if len(h.store.strategies) != 1 {
		t.Fatalf("strategy row should survive the failed delete")
	}

	run := h.runStatus(t, result.RunID)
	if run.Status != domain.RunStatusFailed {
		t.Fatalf("status=%s, want FAILED", run.Status)
	}
	if !strings.HasPrefix(run.LastError, "compensate") {
		t.Fatalf("last_error=%q must identify the compensation failure", run.LastError)
	}
}

func TestRunQualityCleanupFailureMarksRunFailed(t *testing.T) {
	h := newHarness(t, &fakeCollaborators{verdict: failingVerdict()})
	h.store.failQualityDelete = true

	result := h.execute(t, "brief-010")

	// A rejected draft whose verdict rows cannot be removed is not a clean
	// rollback: the run must surface as FAILED, never COMPENSATED.
	if result.Outcome != saga.OutcomeFailed {
		t.Fatalf("outcome=%s, want failed", result.Outcome)
	}
	if result.FailedStep != StepEvaluateQuality {
		t.Fatalf("failed step=%s, want %s", result.FailedStep, StepEvaluateQuality)
	}
	if !strings.Contains(result.FirstCompensationError, StepEvaluateQuality) {
		t.Fatalf("first compensation error=%q must name %s", result.FirstCompensationError, StepEvaluateQuality)
	}
	if len(h.store.results) != 1 || len(h.store.issues) != 2 {
		t.Fatalf("verdict rows should survive the failed cleanup, got %d results %d issues",
			len(h.store.results), len(h.store.issues))
	}

	// The stuck quality delete must not block the earlier cleanups.
	if len(h.store.drafts) != 0 || len(h.store.strategies) != 0 || len(h.store.briefs) != 0 {
		t.Fatalf("draft, strategy and brief rows must still be removed")
	}

	run := h.runStatus(t, result.RunID)
	if run.Status != domain.RunStatusFailed {
		t.Fatalf("status=%s, want FAILED", run.Status)
	}
	if !strings.HasPrefix(run.LastError, "compensate") {
		t.Fatalf("last_error=%q must identify the compensation failure", run.LastError)
	}
}

func TestRunRejectsArtifactNameWithPathSeparators(t *testing.T) {
	collab := &fakeCollaborators{
		verdict:       passingVerdict(),
		artifactNames: []string{"../escape.txt"},
	}
	h := newHarness(t, collab)

	result := h.execute(t, "brief-011")

	if result.Outcome != saga.OutcomeCompensated {
		t.Fatalf("outcome=%s, want compensated", result.Outcome)
	}
	if result.FailedStep != StepAssemblePackage {
		t.Fatalf("failed step=%s, want %s", result.FailedStep, StepAssemblePackage)
	}
	if h.artifacts.count() != 0 {
		t.Fatalf("no objects may be stored under a traversing key, got %d", h.artifacts.count())
	}
	if h.store.rowCount() != 0 {
		t.Fatalf("expected all rows removed, %d remain", h.store.rowCount())
	}
}

func TestValidateArtifactName(t *testing.T) {
	for _, name := range []string{"deck.pdf", "assets.zip", "summary"} {
		if err := validateArtifactName(name); err != nil {
			t.Fatalf("validateArtifactName(%q) err=%v", name, err)
		}
	}
	for _, name := range []string{"", "  ", "..", "../escape.txt", "dir/file", `dir\file`} {
		if err := validateArtifactName(name); err == nil {
			t.Fatalf("validateArtifactName(%q) expected error", name)
		}
	}
}

func TestOperatorCompensateRetriesFailedRun(t *testing.T) {
	h := newHarness(t, &fakeCollaborators{verdict: failingVerdict()})
	h.store.failStrategyDelete = true

	result := h.execute(t, "brief-005")
	if result.Outcome != saga.OutcomeFailed {
		t.Fatalf("outcome=%s, want failed", result.Outcome)
	}

	// Store recovers; the operator retries with the recorded entity ids.
	h.store.failStrategyDelete = false
	state := domain.NewRunState(result.RunID, "brief-005")
	if id, ok := result.EntityIDs["strategy_id"]; ok {
		strategyID := domain.StrategyID(id)
		state.StrategyID = &strategyID
	}
	if _, err := h.coordinator.Compensate(context.Background(), state); err != nil {
		t.Fatalf("Compensate() err=%v", err)
	}
	if h.store.rowCount() != 0 {
		t.Fatalf("expected all rows removed after retry, %d remain", h.store.rowCount())
	}
}

func TestCompensationIsRepeatable(t *testing.T) {
	h := newHarness(t, &fakeCollaborators{verdict: failingVerdict()})

	result := h.execute(t, "brief-006")
	if result.Outcome != saga.OutcomeCompensated {
		t.Fatalf("outcome=%s, want compensated", result.Outcome)
	}

	// Re-run every compensating action against the same (now empty) state.
	state := domain.NewRunState(result.RunID, "brief-006")
	if id, ok := result.EntityIDs["brief_id"]; ok {
		briefID := domain.BriefID(id)
		state.BriefID = &briefID
	}
	if id, ok := result.EntityIDs["draft_id"]; ok {
		draftID := domain.DraftID(id)
		state.DraftID = &draftID
	}
	if _, err := h.coordinator.Compensate(context.Background(), state); err != nil {
		t.Fatalf("repeat Compensate() err=%v", err)
	}
	if h.store.rowCount() != 0 {
		t.Fatalf("repeat compensation must leave the store empty")
	}
}

func TestDraftCascadeDeletesChildrenFirst(t *testing.T) {
	h := newHarness(t, &fakeCollaborators{verdict: failingVerdict()})

	h.execute(t, "brief-007")

	log := h.store.deletionLog()
	assetIdx, bundleIdx, draftIdx := -1, -1, -1
	for i, entry := range log {
		switch {
		case strings.HasPrefix(entry, "draft_assets:"):
			assetIdx = i
		case strings.HasPrefix(entry, "draft_bundles:"):
			bundleIdx = i
		case strings.HasPrefix(entry, "drafts:"):
			draftIdx = i
		}
	}
	if assetIdx == -1 || bundleIdx == -1 || draftIdx == -1 {
		t.Fatalf("draft cascade incomplete: %v", log)
	}
	if !(assetIdx < bundleIdx && bundleIdx < draftIdx) {
		t.Fatalf("cascade order must be assets, bundles, draft: %v", log)
	}
}

func TestRollbackDoesNotTouchOtherBriefsRows(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()

	passing := &fakeCollaborators{verdict: passingVerdict()}
	failing := &fakeCollaborators{verdict: failingVerdict()}

	runs := newFakeRunRepo()
	claims := newFakeClaims()

	buildCoordinator := func(collab *fakeCollaborators) *saga.Coordinator {
		registry, err := NewRegistry(DefaultProfile(), store.stores(), collab.collaborators(), artifacts)
		if err != nil {
			t.Fatalf("NewRegistry() err=%v", err)
		}
		coordinator, err := saga.NewCoordinator(registry, runs, claims, slog.New(slog.DiscardHandler))
		if err != nil {
			t.Fatalf("NewCoordinator() err=%v", err)
		}
		return coordinator
	}

	completed, err := buildCoordinator(passing).Execute(context.Background(), saga.Input{BriefRef: "brief-keep"})
	if err != nil {
		t.Fatalf("Execute(brief-keep) err=%v", err)
	}
	if completed.Outcome != saga.OutcomeCompleted {
		t.Fatalf("outcome=%s, want completed", completed.Outcome)
	}
	rowsAfterFirst := store.rowCount()

	rolledBack, err := buildCoordinator(failing).Execute(context.Background(), saga.Input{BriefRef: "brief-drop"})
	if err != nil {
		t.Fatalf("Execute(brief-drop) err=%v", err)
	}
	if rolledBack.Outcome != saga.OutcomeCompensated {
		t.Fatalf("outcome=%s, want compensated", rolledBack.Outcome)
	}

	if store.rowCount() != rowsAfterFirst {
		t.Fatalf("rollback of brief-drop changed brief-keep's rows: %d != %d", store.rowCount(), rowsAfterFirst)
	}
	briefID := domain.BriefID(completed.EntityIDs["brief_id"])
	if _, ok := store.briefs[briefID]; !ok {
		t.Fatalf("completed run's brief row was removed by the other run's rollback")
	}
}

func TestQualityGateNotEnforcedRecordsVerdictAndPasses(t *testing.T) {
	store := newMemStore()
	artifacts := newMemArtifacts()
	profile := DefaultProfile()
	profile.Quality.Enforce = false

	collab := &fakeCollaborators{verdict: failingVerdict()}
	registry, err := NewRegistry(profile, store.stores(), collab.collaborators(), artifacts)
	if err != nil {
		t.Fatalf("NewRegistry() err=%v", err)
	}
	coordinator, err := saga.NewCoordinator(registry, newFakeRunRepo(), newFakeClaims(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("NewCoordinator() err=%v", err)
	}

	result, err := coordinator.Execute(context.Background(), saga.Input{BriefRef: "brief-008"})
	if err != nil {
		t.Fatalf("Execute() err=%v", err)
	}
	if result.Outcome != saga.OutcomeCompleted {
		t.Fatalf("outcome=%s, want completed with gate disabled", result.Outcome)
	}
	if len(store.results) != 1 {
		t.Fatalf("verdict must still be recorded, got %d results", len(store.results))
	}
	if len(store.issues) != 2 {
		t.Fatalf("issues must still be recorded, got %d", len(store.issues))
	}
}
