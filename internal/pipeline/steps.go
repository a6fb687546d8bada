package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/draftline-labs/draftline-go/internal/domain"
	"github.com/draftline-labs/draftline-go/internal/repo"
	"github.com/draftline-labs/draftline-go/internal/saga"
)

// Step names, in registry order.
const (
	StepNormalizeBrief     = "normalize-brief"
	StepSynthesizeStrategy = "synthesize-strategy"
	StepProduceDraft       = "produce-draft"
	StepEvaluateQuality    = "evaluate-quality"
	StepAssemblePackage    = "assemble-package"
)

// Stores groups the entity stores the steps persist into and the
// compensation executors delete through.
type Stores struct {
	Briefs     repo.BriefStore
	Strategies repo.StrategyStore
	Drafts     repo.DraftStore
	Quality    repo.QualityStore
	Packages   repo.PackageStore
}

func (s Stores) validate() error {
	if s.Briefs == nil {
		return errors.New("brief store is required")
	}
	if s.Strategies == nil {
		return errors.New("strategy store is required")
	}
	if s.Drafts == nil {
		return errors.New("draft store is required")
	}
	if s.Quality == nil {
		return errors.New("quality store is required")
	}
	if s.Packages == nil {
		return errors.New("package store is required")
	}
	return nil
}

// Collaborators groups the external content contracts, one per step.
type Collaborators struct {
	Normalizer  IntakeNormalizer
	Synthesizer StrategySynthesizer
	Producer    DraftProducer
	Evaluator   QualityEvaluator
	Assembler   PackageAssembler
}

func (c Collaborators) validate() error {
	if c.Normalizer == nil {
		return errors.New("intake normalizer is required")
	}
	if c.Synthesizer == nil {
		return errors.New("strategy synthesizer is required")
	}
	if c.Producer == nil {
		return errors.New("draft producer is required")
	}
	if c.Evaluator == nil {
		return errors.New("quality evaluator is required")
	}
	if c.Assembler == nil {
		return errors.New("package assembler is required")
	}
	return nil
}

type steps struct {
	profile   Profile
	stores    Stores
	collab    Collaborators
	artifacts ArtifactStore
}

// NewRegistry builds the client-to-delivery registry. The returned registry
// is immutable and shared read-only across all runs.
func NewRegistry(profile Profile, stores Stores, collab Collaborators, artifacts ArtifactStore) (saga.Registry, error) {
	if err := profile.Validate(); err != nil {
		return saga.Registry{}, err
	}
	if err := stores.validate(); err != nil {
		return saga.Registry{}, err
	}
	if err := collab.validate(); err != nil {
		return saga.Registry{}, err
	}
	if artifacts == nil {
		return saga.Registry{}, errors.New("artifact store is required")
	}
	s := &steps{profile: profile, stores: stores, collab: collab, artifacts: artifacts}
	return saga.NewRegistry(
		saga.Step{Name: StepNormalizeBrief, Forward: s.normalizeBrief, Compensate: s.compensateBrief},
		saga.Step{Name: StepSynthesizeStrategy, Forward: s.synthesizeStrategy, Compensate: s.compensateStrategy},
		saga.Step{Name: StepProduceDraft, Forward: s.produceDraft, Compensate: s.compensateDraft},
		saga.Step{Name: StepEvaluateQuality, Forward: s.evaluateQuality, Compensate: s.compensateQuality},
		saga.Step{Name: StepAssemblePackage, Forward: s.assemblePackage, Compensate: s.compensatePackage},
	)
}

func (s *steps) normalizeBrief(ctx context.Context, state *domain.RunState) error {
	normalized, err := s.collab.Normalizer.Normalize(ctx, state.BriefRef)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	briefID := domain.NewBriefID()
	brief := domain.Brief{
		ID:             briefID,
		SourceRef:      state.BriefRef,
		ClientName:     normalized.ClientName,
		NormalizedBody: normalized.Body,
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.stores.Briefs.InsertBrief(ctx, brief); err != nil {
		return err
	}
	// Recorded as soon as the root row exists so the compensating action can
	// clean up a failure among the intake inserts below.
	state.BriefID = &briefID
	for _, fragment := range normalized.Intake {
		record := domain.IntakeRecord{
			ID:         uuid.NewString(),
			BriefID:    briefID,
			Channel:    fragment.Channel,
			RawExcerpt: fragment.RawExcerpt,
		}
		if err := s.stores.Briefs.InsertIntakeRecord(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

func (s *steps) compensateBrief(ctx context.Context, state *domain.RunState) error {
	if state.BriefID == nil {
		return nil
	}
	return s.stores.Briefs.DeleteBriefCascade(ctx, *state.BriefID)
}

func (s *steps) synthesizeStrategy(ctx context.Context, state *domain.RunState) error {
	if state.BriefID == nil {
		return errors.New("brief id not produced")
	}
	outline, err := s.collab.Synthesizer.Synthesize(ctx, *state.BriefID)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	strategyID := domain.NewStrategyID()
	strategy := domain.Strategy{
		ID:          strategyID,
		BriefID:     *state.BriefID,
		Headline:    outline.Headline,
		Positioning: outline.Positioning,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.stores.Strategies.InsertStrategy(ctx, strategy); err != nil {
		return err
	}
	state.StrategyID = &strategyID
	return nil
}

func (s *steps) compensateStrategy(ctx context.Context, state *domain.RunState) error {
	if state.StrategyID == nil {
		return nil
	}
	return s.stores.Strategies.DeleteStrategy(ctx, *state.StrategyID)
}

func (s *steps) produceDraft(ctx context.Context, state *domain.RunState) error {
	if state.StrategyID == nil {
		return errors.New("strategy id not produced")
	}
	content, err := s.collab.Producer.Produce(ctx, *state.StrategyID)
	if err != nil {
		return fmt.Errorf("produce: %w", err)
	}
	draftID := domain.NewDraftID()
	draft := domain.Draft{
		ID:         draftID,
		StrategyID: *state.StrategyID,
		Title:      content.Title,
		Summary:    content.Summary,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.stores.Drafts.InsertDraft(ctx, draft); err != nil {
		return err
	}
	state.DraftID = &draftID
	for _, bundleContent := range content.Bundles {
		bundleID := uuid.NewString()
		bundle := domain.DraftBundle{
			ID:      bundleID,
			DraftID: draftID,
			Kind:    bundleContent.Kind,
		}
		if err := s.stores.Drafts.InsertBundle(ctx, bundle); err != nil {
			return err
		}
		for _, assetContent := range bundleContent.Assets {
			asset := domain.DraftAsset{
				ID:        uuid.NewString(),
				BundleID:  bundleID,
				Name:      assetContent.Name,
				MediaType: assetContent.MediaType,
			}
			if err := s.stores.Drafts.InsertAsset(ctx, asset); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *steps) compensateDraft(ctx context.Context, state *domain.RunState) error {
	if state.DraftID == nil {
		return nil
	}
	return s.stores.Drafts.DeleteDraftCascade(ctx, *state.DraftID)
}

// evaluateQuality persists the collaborator verdict and gates delivery on
// it. A rejected verdict is an ordinary forward failure: the persisted
// result and issue rows are removed by this step's own compensating action
// when the coordinator rolls the run back. If that cleanup cannot complete,
// the run ends FAILED rather than COMPENSATED.
func (s *steps) evaluateQuality(ctx context.Context, state *domain.RunState) error {
	if state.DraftID == nil {
		return errors.New("draft id not produced")
	}
	draftID := *state.DraftID
	verdict, err := s.collab.Evaluator.Evaluate(ctx, draftID)
	if err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	passed := verdict.Passed && verdict.Score >= s.profile.Quality.Threshold
	if !s.profile.Quality.Enforce {
		passed = true
	}

	resultID := uuid.NewString()
	result := domain.QualityResult{
		ID:      resultID,
		DraftID: draftID,
		Score:   verdict.Score,
		Passed:  passed,
	}
	if err := s.stores.Quality.InsertResult(ctx, result); err != nil {
		return err
	}
	for _, issueContent := range verdict.Issues {
		issue := domain.QualityIssue{
			ID:       uuid.NewString(),
			ResultID: resultID,
			Severity: issueContent.Severity,
			Detail:   issueContent.Detail,
		}
		if err := s.stores.Quality.InsertIssue(ctx, issue); err != nil {
			return err
		}
	}

	if !passed {
		return fmt.Errorf("quality gate rejected draft (score %.2f, threshold %.2f)", verdict.Score, s.profile.Quality.Threshold)
	}
	state.QualityPassed = true
	return nil
}

func (s *steps) compensateQuality(ctx context.Context, state *domain.RunState) error {
	if state.DraftID == nil {
		return nil
	}
	return s.stores.Quality.DeleteQualityForDraft(ctx, *state.DraftID)
}

// assemblePackage persists the package row and uploads the rendered
// artifact payloads. PackageID is recorded as soon as the row exists, so a
// mid-upload failure is cleaned up by this step's compensating action during
// rollback.
func (s *steps) assemblePackage(ctx context.Context, state *domain.RunState) error {
	if state.DraftID == nil {
		return errors.New("draft id not produced")
	}
	if !state.QualityPassed {
		return errors.New("quality gate not passed")
	}
	manifest, err := s.collab.Assembler.Assemble(ctx, *state.DraftID)
	if err != nil {
		return fmt.Errorf("assemble: %w", err)
	}
	label := manifest.Label
	if label == "" {
		label = s.profile.Packaging.DefaultLabel
	}
	packageID := domain.NewPackageID()
	pkg := domain.DeliveryPackage{
		ID:        packageID,
		DraftID:   *state.DraftID,
		Label:     label,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.stores.Packages.InsertPackage(ctx, pkg); err != nil {
		return err
	}
	state.PackageID = &packageID

	for _, payload := range manifest.Artifacts {
		if err := validateArtifactName(payload.Name); err != nil {
			return err
		}
		key := path.Join(s.profile.Packaging.KeyPrefix, packageID.String(), payload.Name)
		if err := s.artifacts.Put(ctx, key, payload.Body, payload.MediaType); err != nil {
			return fmt.Errorf("upload artifact %s: %w", payload.Name, err)
		}
		artifact := domain.PackageArtifact{
			ID:        uuid.NewString(),
			PackageID: packageID,
			Name:      payload.Name,
			ObjectKey: key,
			SizeBytes: int64(len(payload.Body)),
		}
		if err := s.stores.Packages.InsertArtifact(ctx, artifact); err != nil {
			return err
		}
	}
	return nil
}

// validateArtifactName keeps collaborator-supplied names from escaping the
// packaging key prefix.
func validateArtifactName(name string) error {
	if strings.TrimSpace(name) == "" {
		return errors.New("artifact name is required")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("artifact name must not contain path separators: %q", name)
	}
	return nil
}

func (s *steps) compensatePackage(ctx context.Context, state *domain.RunState) error {
	if state.PackageID == nil {
		return nil
	}
	packageID := *state.PackageID
	keys, err := s.stores.Packages.ArtifactObjectKeys(ctx, packageID)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.artifacts.Remove(ctx, key); err != nil {
			return fmt.Errorf("remove artifact object %s: %w", key, err)
		}
	}
	return s.stores.Packages.DeletePackageCascade(ctx, packageID)
}
