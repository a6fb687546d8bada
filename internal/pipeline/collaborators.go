// Package pipeline defines the client-to-delivery workflow: five
// forward/compensating step pairs over the relational store, with the
// actual content generation delegated to external collaborators.
package pipeline

import (
	"context"

	"github.com/draftline-labs/draftline-go/internal/domain"
)

// Collaborator contracts. Each forward call performs the real generation or
// evaluation work and is invoked at most once per run per step; the
// orchestrator owns the persistence of the produced rows.

// IntakeFragment is one raw intake channel excerpt attached to a brief.
type IntakeFragment struct {
	Channel    string
	RawExcerpt string
}

// NormalizedBrief is the intake collaborator's output for a source brief.
type NormalizedBrief struct {
	ClientName string
	Body       string
	Intake     []IntakeFragment
}

type IntakeNormalizer interface {
	Normalize(ctx context.Context, sourceRef string) (NormalizedBrief, error)
}

// StrategyOutline is the synthesis collaborator's output for a brief.
type StrategyOutline struct {
	Headline    string
	Positioning string
}

type StrategySynthesizer interface {
	Synthesize(ctx context.Context, briefID domain.BriefID) (StrategyOutline, error)
}

// DraftContent is the production collaborator's output for a strategy.
type DraftContent struct {
	Title   string
	Summary string
	Bundles []BundleContent
}

type BundleContent struct {
	Kind   string
	Assets []AssetContent
}

type AssetContent struct {
	Name      string
	MediaType string
}

type DraftProducer interface {
	Produce(ctx context.Context, strategyID domain.StrategyID) (DraftContent, error)
}

// QualityVerdict is the evaluation collaborator's output for a draft.
// Issues are persisted even when the verdict passes.
type QualityVerdict struct {
	Score  float64
	Passed bool
	Issues []IssueContent
}

type IssueContent struct {
	Severity string
	Detail   string
}

type QualityEvaluator interface {
	Evaluate(ctx context.Context, draftID domain.DraftID) (QualityVerdict, error)
}

// PackageManifest is the packaging collaborator's output: the rendered
// artifact payloads to upload and record.
type PackageManifest struct {
	Label     string
	Artifacts []ArtifactPayload
}

type ArtifactPayload struct {
	Name      string
	MediaType string
	Body      []byte
}

type PackageAssembler interface {
	Assemble(ctx context.Context, draftID domain.DraftID) (PackageManifest, error)
}

// ArtifactStore uploads and removes packaged artifact payloads. Remove must
// be idempotent: removing an absent object reports success.
type ArtifactStore interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
	Remove(ctx context.Context, key string) error
}
