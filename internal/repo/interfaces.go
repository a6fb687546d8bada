package repo

import (
	"context"
	"time"

	"github.com/draftline-labs/draftline-go/internal/domain"
)

type WorkflowRunFilter struct {
	BriefRef string
	Status   domain.RunStatus
	Limit    int
}

// WorkflowRunRepository persists the durable audit record of runs.
// Rows are created once, updated at every status transition, and never
// deleted by the orchestrator.
type WorkflowRunRepository interface {
	CreateRun(ctx context.Context, run domain.WorkflowRun) error
	GetRun(ctx context.Context, id domain.RunID) (domain.WorkflowRun, error)
	ListRuns(ctx context.Context, filter WorkflowRunFilter) ([]domain.WorkflowRun, error)
	UpdateRunStatus(ctx context.Context, id domain.RunID, status domain.RunStatus, lastError string, completedAt *time.Time, metadata domain.Metadata) error
}

// ClaimRepository provides the atomic reservation preventing two concurrent
// runs from processing the same source brief. Claim must be an atomic
// check-and-set; a conflict surfaces as ErrBriefClaimed.
type ClaimRepository interface {
	Claim(ctx context.Context, briefRef string, runID domain.RunID) error
	Release(ctx context.Context, briefRef string) error
}

// BriefStore persists the brief row family. DeleteBriefCascade removes
// intake rows then the brief row, scoped to the given id, and succeeds when
// the rows are already absent.
type BriefStore interface {
	InsertBrief(ctx context.Context, brief domain.Brief) error
	InsertIntakeRecord(ctx context.Context, record domain.IntakeRecord) error
	DeleteBriefCascade(ctx context.Context, id domain.BriefID) error
}

type StrategyStore interface {
	InsertStrategy(ctx context.Context, strategy domain.Strategy) error
	DeleteStrategy(ctx context.Context, id domain.StrategyID) error
}

// DraftStore persists drafts with their bundle/asset children.
// DeleteDraftCascade removes assets (via the draft's bundles), then bundles,
// then the draft row.
type DraftStore interface {
	InsertDraft(ctx context.Context, draft domain.Draft) error
	InsertBundle(ctx context.Context, bundle domain.DraftBundle) error
	InsertAsset(ctx context.Context, asset domain.DraftAsset) error
	DeleteDraftCascade(ctx context.Context, id domain.DraftID) error
}

// QualityStore persists evaluation results and their issue children.
// DeleteQualityForDraft removes issues (via the draft's result rows), then
// the result rows.
type QualityStore interface {
	InsertResult(ctx context.Context, result domain.QualityResult) error
	InsertIssue(ctx context.Context, issue domain.QualityIssue) error
	DeleteQualityForDraft(ctx context.Context, id domain.DraftID) error
}

// PackageStore persists delivery packages and artifact rows.
// ArtifactObjectKeys lists the object-store keys recorded for a package so
// compensation can remove the uploaded payloads before the rows.
type PackageStore interface {
	InsertPackage(ctx context.Context, pkg domain.DeliveryPackage) error
	InsertArtifact(ctx context.Context, artifact domain.PackageArtifact) error
	ArtifactObjectKeys(ctx context.Context, id domain.PackageID) ([]string, error)
	DeletePackageCascade(ctx context.Context, id domain.PackageID) error
}
