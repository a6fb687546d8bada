package saga

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/draftline-labs/draftline-go/internal/domain"
	"github.com/draftline-labs/draftline-go/internal/repo"
)

// Input is one run request: the source brief reference plus opaque caller
// metadata carried on the workflow run row.
type Input struct {
	BriefRef string
	Metadata domain.Metadata
}

func (in Input) Validate() error {
	if strings.TrimSpace(in.BriefRef) == "" {
		return errors.New("brief ref is required")
	}
	return nil
}

// AuditFunc records a run lifecycle transition. Invoked best-effort after
// the transition is persisted; an error is logged, never propagated.
type AuditFunc func(ctx context.Context, action string, run domain.WorkflowRun, payload domain.Metadata) error

// Coordinator executes the step registry against a per-run state. Each run
// is strictly sequential; many runs may execute concurrently on independent
// invocations because every read and write is scoped to the run's
// own entity identifiers.
type Coordinator struct {
	registry Registry
	runs     repo.WorkflowRunRepository
	claims   repo.ClaimRepository
	logger   *slog.Logger
	audit    AuditFunc
	now      func() time.Time
}

type Option func(*Coordinator)

func WithAudit(audit AuditFunc) Option {
	return func(c *Coordinator) { c.audit = audit }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(registry Registry, runs repo.WorkflowRunRepository, claims repo.ClaimRepository, logger *slog.Logger, opts ...Option) (*Coordinator, error) {
	if registry.Len() == 0 {
		return nil, errors.New("registry is required")
	}
	if runs == nil {
		return nil, errors.New("workflow run repository is required")
	}
	if claims == nil {
		return nil, errors.New("claim repository is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	c := &Coordinator{
		registry: registry,
		runs:     runs,
		claims:   claims,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit admits one run request: it takes the brief claim, creates the
// PENDING run row, and records the start in the audit trail. No step has
// executed yet when Submit returns.
//
// A concurrent run holding the claim surfaces as repo.ErrBriefClaimed.
func (c *Coordinator) Submit(ctx context.Context, input Input) (domain.WorkflowRun, error) {
	if err := input.Validate(); err != nil {
		return domain.WorkflowRun{}, err
	}
	briefRef := strings.TrimSpace(input.BriefRef)
	runID := domain.NewRunID()

	if err := c.claims.Claim(ctx, briefRef, runID); err != nil {
		if errors.Is(err, repo.ErrBriefClaimed) {
			c.logger.Info("run rejected, brief already claimed", "brief_ref", briefRef)
			return domain.WorkflowRun{}, err
		}
		return domain.WorkflowRun{}, fmt.Errorf("claim brief: %w", err)
	}

	run := domain.WorkflowRun{
		ID:        runID,
		BriefRef:  briefRef,
		Status:    domain.RunStatusPending,
		CreatedAt: c.now(),
		UpdatedAt: c.now(),
		Metadata:  input.Metadata.Clone(),
	}
	if err := c.runs.CreateRun(ctx, run); err != nil {
		c.releaseClaim(ctx, briefRef)
		return domain.WorkflowRun{}, fmt.Errorf("create workflow run: %w", err)
	}
	c.recordAudit(ctx, "run.started", run, domain.Metadata{"brief_ref": briefRef})
	return run, nil
}

// Drive executes a submitted run to its terminal status. Step-level errors
// never escape: every path through Drive persists a terminal status,
// releases the claim, and reports the outcome in the Result.
func (c *Coordinator) Drive(ctx context.Context, run domain.WorkflowRun) Result {
	state := domain.NewRunState(run.ID, run.BriefRef)
	if err := c.transition(ctx, &run, domain.RunStatusRunning, "", nil); err != nil {
		// The run row exists but cannot be advanced; nothing has executed,
		// so the rollback is vacuous and the run ends compensated.
		return c.finishCompensated(ctx, &run, state, "", fmt.Errorf("advance to running: %w", err), nil)
	}

	executed := make([]Step, 0, c.registry.Len())
	for _, step := range c.registry.Steps() {
		c.logger.Info("step forward", "run_id", run.ID.String(), "step", step.Name)
		if err := step.Forward(ctx, state); err != nil {
			c.logger.Warn("step failed, starting rollback",
				"run_id", run.ID.String(), "step", step.Name, "error", err)
			return c.rollback(ctx, &run, state, append(executed, step), step.Name, err)
		}
		executed = append(executed, step)
	}

	completedAt := c.now()
	metadata := terminalMetadata(run.Metadata, state, "")
	if err := c.runs.UpdateRunStatus(ctx, run.ID, domain.RunStatusCompleted, "", &completedAt, metadata); err != nil {
		// Every forward action succeeded; a rollback here would discard real
		// work over a bookkeeping write. Surface the persistence problem.
		c.logger.Error("persist completed status failed", "run_id", run.ID.String(), "error", err)
	}
	run.Status = domain.RunStatusCompleted
	run.CompletedAt = &completedAt
	c.releaseClaim(ctx, run.BriefRef)
	c.recordAudit(ctx, "run.completed", run, domain.Metadata{"entity_ids": state.EntityIDs()})

	return Result{
		Outcome:   OutcomeCompleted,
		RunID:     run.ID,
		EntityIDs: state.EntityIDs(),
	}
}

// Execute drives one workflow run from claim to terminal status.
//
// The error return covers only caller-visible rejections raised before any
// step executes: invalid input, a claim conflict (repo.ErrBriefClaimed), or
// a failure to create the run row. Once the run row exists, Execute always
// returns a Result and the matching terminal status is persisted.
func (c *Coordinator) Execute(ctx context.Context, input Input) (Result, error) {
	run, err := c.Submit(ctx, input)
	if err != nil {
		return Result{}, err
	}
	return c.Drive(ctx, run), nil
}

// rollback walks the compensation stack in reverse completion order. The
// stack includes the failed step itself: a forward action may have persisted
// rows before failing, and every compensating action is idempotent and
// guarded by its entity-id slot, so invoking it is safe even when nothing
// was persisted. A compensation failure marks the run FAILED but the
// remaining (earlier) compensations are still attempted, so one stuck step
// does not block cleanup of independent earlier steps.
func (c *Coordinator) rollback(ctx context.Context, run *domain.WorkflowRun, state *domain.RunState, stack []Step, failedStep string, cause error) Result {
	firstCompErr := c.compensateStack(ctx, state, stack)
	if firstCompErr == "" {
		return c.finishCompensated(ctx, run, state, failedStep, cause, state.Compensations)
	}
	return c.finishFailed(ctx, run, state, failedStep, cause, firstCompErr)
}

func (c *Coordinator) compensateStack(ctx context.Context, state *domain.RunState, executed []Step) string {
	var firstCompErr string
	for i := len(executed) - 1; i >= 0; i-- {
		step := executed[i]
		c.logger.Info("step compensate", "run_id", state.RunID.String(), "step", step.Name)
		err := step.Compensate(ctx, state)
		state.RecordCompensation(step.Name, err, c.now())
		if err != nil && firstCompErr == "" {
			firstCompErr = fmt.Sprintf("%s: %v", step.Name, err)
		}
		if err != nil {
			c.logger.Error("compensation failed",
				"run_id", state.RunID.String(), "step", step.Name, "error", err)
		}
	}
	return firstCompErr
}

// Compensate re-runs every registered compensating action in reverse
// registry order against a reconstructed run state. Intended for operator
// remediation of FAILED runs: all compensations are idempotent, so steps
// whose rows are already gone report success without touching anything.
func (c *Coordinator) Compensate(ctx context.Context, state *domain.RunState) ([]domain.CompensationRecord, error) {
	if state == nil {
		return nil, errors.New("run state is required")
	}
	steps := c.registry.Steps()
	firstCompErr := c.compensateStack(ctx, state, steps)
	if firstCompErr != "" {
		return state.Compensations, fmt.Errorf("compensation incomplete: %s", firstCompErr)
	}
	return state.Compensations, nil
}

func (c *Coordinator) finishCompensated(ctx context.Context, run *domain.WorkflowRun, state *domain.RunState, failedStep string, cause error, log []domain.CompensationRecord) Result {
	lastError := causeMessage(failedStep, cause)
	completedAt := c.now()
	metadata := terminalMetadata(run.Metadata, state, failedStep)
	if err := c.runs.UpdateRunStatus(ctx, run.ID, domain.RunStatusCompensated, lastError, &completedAt, metadata); err != nil {
		c.logger.Error("persist compensated status failed", "run_id", run.ID.String(), "error", err)
	}
	run.Status = domain.RunStatusCompensated
	run.LastError = lastError
	run.CompletedAt = &completedAt
	c.releaseClaim(ctx, run.BriefRef)
	c.recordAudit(ctx, "run.compensated", *run, domain.Metadata{
		"failed_step":   failedStep,
		"compensations": len(log),
	})
	return Result{
		Outcome:       OutcomeCompensated,
		RunID:         run.ID,
		EntityIDs:     state.EntityIDs(),
		FailedStep:    failedStep,
		Reason:        lastError,
		Compensations: log,
	}
}

func (c *Coordinator) finishFailed(ctx context.Context, run *domain.WorkflowRun, state *domain.RunState, failedStep string, cause error, firstCompErr string) Result {
	lastError := fmt.Sprintf("compensate %s", firstCompErr)
	completedAt := c.now()
	metadata := terminalMetadata(run.Metadata, state, failedStep)
	if err := c.runs.UpdateRunStatus(ctx, run.ID, domain.RunStatusFailed, lastError, &completedAt, metadata); err != nil {
		c.logger.Error("persist failed status failed", "run_id", run.ID.String(), "error", err)
	}
	run.Status = domain.RunStatusFailed
	run.LastError = lastError
	run.CompletedAt = &completedAt
	c.releaseClaim(ctx, run.BriefRef)
	c.recordAudit(ctx, "run.failed", *run, domain.Metadata{
		"failed_step":        failedStep,
		"compensation_error": firstCompErr,
	})
	return Result{
		Outcome:                OutcomeFailed,
		RunID:                  run.ID,
		EntityIDs:              state.EntityIDs(),
		FailedStep:             failedStep,
		Reason:                 causeMessage(failedStep, cause),
		Compensations:          state.Compensations,
		FirstCompensationError: firstCompErr,
	}
}

func (c *Coordinator) transition(ctx context.Context, run *domain.WorkflowRun, next domain.RunStatus, lastError string, completedAt *time.Time) error {
	if !domain.CanTransitionRunStatus(run.Status, next) {
		return fmt.Errorf("illegal transition %s -> %s", run.Status, next)
	}
	if err := c.runs.UpdateRunStatus(ctx, run.ID, next, lastError, completedAt, run.Metadata); err != nil {
		return err
	}
	run.Status = next
	return nil
}

func (c *Coordinator) releaseClaim(ctx context.Context, briefRef string) {
	if err := c.claims.Release(ctx, briefRef); err != nil {
		c.logger.Error("release claim failed", "brief_ref", briefRef, "error", err)
	}
}

func (c *Coordinator) recordAudit(ctx context.Context, action string, run domain.WorkflowRun, payload domain.Metadata) {
	if c.audit == nil {
		return
	}
	if err := c.audit(ctx, action, run, payload); err != nil {
		c.logger.Error("audit append failed", "run_id", run.ID.String(), "action", action, "error", err)
	}
}

// terminalMetadata flushes the run state into the durable metadata blob so
// the audit row carries the produced ids and the applied compensation log.
func terminalMetadata(base domain.Metadata, state *domain.RunState, failedStep string) domain.Metadata {
	metadata := base.Clone()
	if ids := state.EntityIDs(); len(ids) > 0 {
		metadata["entity_ids"] = ids
	}
	if len(state.Compensations) > 0 {
		metadata["compensations"] = state.Compensations
	}
	if failedStep != "" {
		metadata["failed_step"] = failedStep
	}
	return metadata
}

func causeMessage(failedStep string, cause error) string {
	if cause == nil {
		return ""
	}
	if failedStep == "" {
		return cause.Error()
	}
	return fmt.Sprintf("step %s: %v", failedStep, cause)
}
