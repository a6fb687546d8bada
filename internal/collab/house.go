// Package collab provides the built-in content collaborators used when no
// external engines are wired in. Output is deterministic in the source brief
// reference so repeated runs over the same brief are reproducible.
package collab

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/draftline-labs/draftline-go/internal/domain"
	"github.com/draftline-labs/draftline-go/internal/pipeline"
)

// HouseStudio implements every collaborator contract with rule-based,
// self-contained generation.
type HouseStudio struct{}

func NewHouseStudio() *HouseStudio {
	return &HouseStudio{}
}

func (s *HouseStudio) Normalize(_ context.Context, sourceRef string) (pipeline.NormalizedBrief, error) {
	sourceRef = strings.TrimSpace(sourceRef)
	if sourceRef == "" {
		return pipeline.NormalizedBrief{}, fmt.Errorf("source ref is required")
	}
	return pipeline.NormalizedBrief{
		ClientName: clientNameFrom(sourceRef),
		Body:       fmt.Sprintf("Normalized intake for %s.", sourceRef),
		Intake: []pipeline.IntakeFragment{
			{Channel: "email", RawExcerpt: "Client request as received."},
			{Channel: "call-notes", RawExcerpt: "Kickoff call summary."},
		},
	}, nil
}

func (s *HouseStudio) Synthesize(_ context.Context, briefID domain.BriefID) (pipeline.StrategyOutline, error) {
	return pipeline.StrategyOutline{
		Headline:    fmt.Sprintf("Strategy outline for brief %s", briefID.String()),
		Positioning: "challenger",
	}, nil
}

func (s *HouseStudio) Produce(_ context.Context, strategyID domain.StrategyID) (pipeline.DraftContent, error) {
	return pipeline.DraftContent{
		Title:   "Campaign draft",
		Summary: fmt.Sprintf("Draft produced from strategy %s.", strategyID.String()),
		Bundles: []pipeline.BundleContent{
			{
				Kind: "copy",
				Assets: []pipeline.AssetContent{
					{Name: "hero.md", MediaType: "text/markdown"},
					{Name: "cta.md", MediaType: "text/markdown"},
				},
			},
			{
				Kind: "visual",
				Assets: []pipeline.AssetContent{
					{Name: "banner.png", MediaType: "image/png"},
				},
			},
		},
	}, nil
}

func (s *HouseStudio) Evaluate(_ context.Context, draftID domain.DraftID) (pipeline.QualityVerdict, error) {
	score := scoreFrom(draftID.String())
	verdict := pipeline.QualityVerdict{
		Score:  score,
		Passed: score >= 0.7,
	}
	if !verdict.Passed {
		verdict.Issues = []pipeline.IssueContent{
			{Severity: "blocker", Detail: "draft below house quality bar"},
		}
	}
	return verdict, nil
}

func (s *HouseStudio) Assemble(_ context.Context, draftID domain.DraftID) (pipeline.PackageManifest, error) {
	summary := fmt.Sprintf("Delivery package for draft %s.\n", draftID.String())
	return pipeline.PackageManifest{
		Artifacts: []pipeline.ArtifactPayload{
			{Name: "summary.txt", MediaType: "text/plain", Body: []byte(summary)},
			{Name: "manifest.json", MediaType: "application/json", Body: []byte(fmt.Sprintf(`{"draft_id":%q}`, draftID.String()))},
		},
	}, nil
}

func (s *HouseStudio) Collaborators() pipeline.Collaborators {
	return pipeline.Collaborators{
		Normalizer:  s,
		Synthesizer: s,
		Producer:    s,
		Evaluator:   s,
		Assembler:   s,
	}
}

func clientNameFrom(sourceRef string) string {
	if idx := strings.IndexAny(sourceRef, "/:-"); idx > 0 {
		return strings.TrimSpace(sourceRef[:idx])
	}
	return sourceRef
}

// scoreFrom maps an id onto [0.7, 1.0): deterministic and at or above the
// default gate threshold, so a run only rolls back under a stricter profile.
func scoreFrom(id string) float64 {
	sum := sha256.Sum256([]byte(id))
	n := binary.BigEndian.Uint32(sum[:4])
	return 0.7 + float64(n%3000)/10000.0
}
