package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/draftline-labs/draftline-go/internal/domain"
	"github.com/draftline-labs/draftline-go/internal/repo"
)

// memStore is an in-memory stand-in for every entity store, shared across
// concurrent runs the way the relational store is. It records the order of
// delete statements so tests can assert child-before-parent cascades.
type memStore struct {
	mu sync.Mutex

	briefs     map[domain.BriefID]domain.Brief
	intake     map[string]domain.IntakeRecord
	strategies map[domain.StrategyID]domain.Strategy
	drafts     map[domain.DraftID]domain.Draft
	bundles    map[string]domain.DraftBundle
	assets     map[string]domain.DraftAsset
	results    map[string]domain.QualityResult
	issues     map[string]domain.QualityIssue
	packages   map[domain.PackageID]domain.DeliveryPackage
	artifacts  map[string]domain.PackageArtifact

	deletions []string

	failStrategyDelete bool
	failQualityDelete  bool
}

func newMemStore() *memStore {
	return &memStore{
		briefs:     make(map[domain.BriefID]domain.Brief),
		intake:     make(map[string]domain.IntakeRecord),
		strategies: make(map[domain.StrategyID]domain.Strategy),
		drafts:     make(map[domain.DraftID]domain.Draft),
		bundles:    make(map[string]domain.DraftBundle),
		assets:     make(map[string]domain.DraftAsset),
		results:    make(map[string]domain.QualityResult),
		issues:     make(map[string]domain.QualityIssue),
		packages:   make(map[domain.PackageID]domain.DeliveryPackage),
		artifacts:  make(map[string]domain.PackageArtifact),
	}
}

func (m *memStore) stores() Stores {
	return Stores{
		Briefs:     m,
		Strategies: m,
		Drafts:     m,
		Quality:    m,
		Packages:   m,
	}
}

func (m *memStore) recordDeletion(table string, id string) {
	m.deletions = append(m.deletions, fmt.Sprintf("%s:%s", table, id))
}

func (m *memStore) deletionLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.deletions))
	copy(out, m.deletions)
	return out
}

func (m *memStore) InsertBrief(_ context.Context, brief domain.Brief) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.briefs[brief.ID] = brief
	return nil
}

func (m *memStore) InsertIntakeRecord(_ context.Context, record domain.IntakeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intake[record.ID] = record
	return nil
}

func (m *memStore) DeleteBriefCascade(_ context.Context, id domain.BriefID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for intakeID, record := range m.intake {
		if record.BriefID == id {
			delete(m.intake, intakeID)
		}
	}
	m.recordDeletion("intake_records", id.String())
	delete(m.briefs, id)
	m.recordDeletion("briefs", id.String())
	return nil
}

func (m *memStore) InsertStrategy(_ context.Context, strategy domain.Strategy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.strategies[strategy.ID] = strategy
	return nil
}

func (m *memStore) DeleteStrategy(_ context.Context, id domain.StrategyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStrategyDelete {
		return errors.New("store unavailable")
	}
	delete(m.strategies, id)
	m.recordDeletion("strategies", id.String())
	return nil
}

func (m *memStore) InsertDraft(_ context.Context, draft domain.Draft) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drafts[draft.ID] = draft
	return nil
}

func (m *memStore) InsertBundle(_ context.Context, bundle domain.DraftBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bundles[bundle.ID] = bundle
	return nil
}

func (m *memStore) InsertAsset(_ context.Context, asset domain.DraftAsset) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assets[asset.ID] = asset
	return nil
}

func (m *memStore) DeleteDraftCascade(_ context.Context, id domain.DraftID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bundleIDs := make(map[string]struct{})
	for bundleID, bundle := range m.bundles {
		if bundle.DraftID == id {
			bundleIDs[bundleID] = struct{}{}
		}
	}
	for assetID, asset := range m.assets {
		if _, ok := bundleIDs[asset.BundleID]; ok {
			delete(m.assets, assetID)
		}
	}
	m.recordDeletion("draft_assets", id.String())
	for bundleID := range bundleIDs {
		delete(m.bundles, bundleID)
	}
	m.recordDeletion("draft_bundles", id.String())
	delete(m.drafts, id)
	m.recordDeletion("drafts", id.String())
	return nil
}

func (m *memStore) InsertResult(_ context.Context, result domain.QualityResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results[result.ID] = result
	return nil
}

func (m *memStore) InsertIssue(_ context.Context, issue domain.QualityIssue) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issue.ID] = issue
	return nil
}

func (m *memStore) DeleteQualityForDraft(_ context.Context, id domain.DraftID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failQualityDelete {
		return errors.New("store unavailable")
	}
	resultIDs := make(map[string]struct{})
	for resultID, result := range m.results {
		if result.DraftID == id {
			resultIDs[resultID] = struct{}{}
		}
	}
	for issueID, issue := range m.issues {
		if _, ok := resultIDs[issue.ResultID]; ok {
			delete(m.issues, issueID)
		}
	}
	m.recordDeletion("quality_issues", id.String())
	for resultID := range resultIDs {
		delete(m.results, resultID)
	}
	m.recordDeletion("quality_results", id.String())
	return nil
}

func (m *memStore) InsertPackage(_ context.Context, pkg domain.DeliveryPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages[pkg.ID] = pkg
	return nil
}

func (m *memStore) InsertArtifact(_ context.Context, artifact domain.PackageArtifact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.artifacts[artifact.ID] = artifact
	return nil
}

func (m *memStore) ArtifactObjectKeys(_ context.Context, id domain.PackageID) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0)
	for _, artifact := range m.artifacts {
		if artifact.PackageID == id && artifact.ObjectKey != "" {
			keys = append(keys, artifact.ObjectKey)
		}
	}
	return keys, nil
}

func (m *memStore) DeletePackageCascade(_ context.Context, id domain.PackageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for artifactID, artifact := range m.artifacts {
		if artifact.PackageID == id {
			delete(m.artifacts, artifactID)
		}
	}
	m.recordDeletion("package_artifacts", id.String())
	delete(m.packages, id)
	m.recordDeletion("delivery_packages", id.String())
	return nil
}

func (m *memStore) rowCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.briefs) + len(m.intake) + len(m.strategies) +
		len(m.drafts) + len(m.bundles) + len(m.assets) +
		len(m.results) + len(m.issues) + len(m.packages) + len(m.artifacts)
}

// memArtifacts is an in-memory ArtifactStore with idempotent removal.
type memArtifacts struct {
	mu      sync.Mutex
	objects map[string][]byte
	failPut bool
}

func newMemArtifacts() *memArtifacts {
	return &memArtifacts{objects: make(map[string][]byte)}
}

func (a *memArtifacts) Put(_ context.Context, key string, body []byte, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.failPut {
		return errors.New("object store unavailable")
	}
	a.objects[key] = body
	return nil
}

func (a *memArtifacts) Remove(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.objects, key)
	return nil
}

func (a *memArtifacts) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.objects)
}

// fakeCollaborators returns canned content, with failure switches per step.
type fakeCollaborators struct {
	verdict       QualityVerdict
	normalizeErr  error
	produceErr    error
	assembleErr   error
	artifactNames []string
}

func (f *fakeCollaborators) Normalize(_ context.Context, sourceRef string) (NormalizedBrief, error) {
	if f.normalizeErr != nil {
		return NormalizedBrief{}, f.normalizeErr
	}
	return NormalizedBrief{
		ClientName: "Acme",
		Body:       "normalized " + sourceRef,
		Intake: []IntakeFragment{
			{Channel: "email", RawExcerpt: "original request"},
			{Channel: "call-notes", RawExcerpt: "kickoff summary"},
		},
	}, nil
}

func (f *fakeCollaborators) Synthesize(_ context.Context, briefID domain.BriefID) (StrategyOutline, error) {
	return StrategyOutline{
		Headline:    "headline for " + briefID.String(),
		Positioning: "challenger",
	}, nil
}

func (f *fakeCollaborators) Produce(_ context.Context, _ domain.StrategyID) (DraftContent, error) {
	if f.produceErr != nil {
		return DraftContent{}, f.produceErr
	}
	return DraftContent{
		Title:   "Campaign draft",
		Summary: "draft summary",
		Bundles: []BundleContent{
			{Kind: "copy", Assets: []AssetContent{
				{Name: "hero.md", MediaType: "text/markdown"},
				{Name: "cta.md", MediaType: "text/markdown"},
			}},
			{Kind: "visual", Assets: []AssetContent{
				{Name: "banner.png", MediaType: "image/png"},
			}},
		},
	}, nil
}

func (f *fakeCollaborators) Evaluate(_ context.Context, _ domain.DraftID) (QualityVerdict, error) {
	return f.verdict, nil
}

func (f *fakeCollaborators) Assemble(_ context.Context, _ domain.DraftID) (PackageManifest, error) {
	if f.assembleErr != nil {
		return PackageManifest{}, f.assembleErr
	}
	manifest := PackageManifest{
		Label: "launch-kit",
		Artifacts: []ArtifactPayload{
			{Name: "deck.pdf", MediaType: "application/pdf", Body: []byte("pdf-bytes")},
			{Name: "assets.zip", MediaType: "application/zip", Body: []byte("zip-bytes")},
		},
	}
	if f.artifactNames != nil {
		manifest.Artifacts = manifest.Artifacts[:0]
		for _, name := range f.artifactNames {
			manifest.Artifacts = append(manifest.Artifacts, ArtifactPayload{
				Name:      name,
				MediaType: "application/octet-stream",
				Body:      []byte("bytes"),
			})
		}
	}
	return manifest, nil
}

func (f *fakeCollaborators) collaborators() Collaborators {
	return Collaborators{
		Normalizer:  f,
		Synthesizer: f,
		Producer:    f,
		Evaluator:   f,
		Assembler:   f,
	}
}

func passingVerdict() QualityVerdict {
	return QualityVerdict{Score: 0.9, Passed: true}
}

func failingVerdict() QualityVerdict {
	return QualityVerdict{
		Score:  0.2,
		Passed: false,
		Issues: []IssueContent{
			{Severity: "blocker", Detail: "tone mismatch"},
			{Severity: "minor", Detail: "missing CTA"},
		},
	}
}

// fakeRunRepo and fakeClaims back the coordinator in end-to-end tests.
type fakeRunRepo struct {
	mu   sync.Mutex
	runs map[domain.RunID]domain.WorkflowRun
}

func newFakeRunRepo() *fakeRunRepo {
	return &fakeRunRepo{runs: make(map[domain.RunID]domain.WorkflowRun)}
}

func (r *fakeRunRepo) CreateRun(_ context.Context, run domain.WorkflowRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = run
	return nil
}

func (r *fakeRunRepo) GetRun(_ context.Context, id domain.RunID) (domain.WorkflowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return domain.WorkflowRun{}, repo.ErrNotFound
	}
	return run, nil
}

func (r *fakeRunRepo) ListRuns(_ context.Context, filter repo.WorkflowRunFilter) ([]domain.WorkflowRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.WorkflowRun, 0)
	for _, run := range r.runs {
		if filter.BriefRef != "" && run.BriefRef != filter.BriefRef {
			continue
		}
		out = append(out, run)
	}
	return out, nil
}

func (r *fakeRunRepo) UpdateRunStatus(_ context.Context, id domain.RunID, status domain.RunStatus, lastError string, completedAt *time.Time, metadata domain.Metadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return repo.ErrNotFound
	}
	run.Status = status
	run.LastError = lastError
	run.CompletedAt = completedAt
	run.Metadata = metadata
	r.runs[id] = run
	return nil
}

type fakeClaims struct {
	mu     sync.Mutex
	active map[string]domain.RunID
}

func newFakeClaims() *fakeClaims {
	return &fakeClaims{active: make(map[string]domain.RunID)}
}

func (c *fakeClaims) Claim(_ context.Context, briefRef string, runID domain.RunID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.active[briefRef]; ok {
		return repo.ErrBriefClaimed
	}
	c.active[briefRef] = runID
	return nil
}

func (c *fakeClaims) Release(_ context.Context, briefRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.active, briefRef)
	return nil
}
