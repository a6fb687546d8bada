package postgres

import (
	"strings"
	"testing"
)

// Every compensation delete must be keyed by a single entity id, never a
// cross-run filter.
func TestDeleteQueriesScopedByEntityID(t *testing.T) {
	queries := []string{
		deleteIntakeRecordsQuery,
		deleteBriefQuery,
		deleteStrategyQuery,
		deleteDraftAssetsQuery,
		deleteDraftBundlesQuery,
		deleteDraftQuery,
		deleteQualityIssuesQuery,
		deleteQualityResultsQuery,
		deletePackageArtifactsQuery,
		deletePackageQuery,
	}
	for _, query := range queries {
		if !strings.Contains(query, "$1") {
			t.Fatalf("delete query must be scoped by id: %s", query)
		}
	}
}

func TestDraftCascadeResolvesAssetsThroughBundles(t *testing.T) {
	if !strings.Contains(deleteDraftAssetsQuery, "SELECT bundle_id FROM draft_bundles WHERE draft_id = $1") {
		t.Fatalf("expected asset delete to resolve bundles by draft id, got %s", deleteDraftAssetsQuery)
	}
}

func TestQualityCascadeResolvesIssuesThroughResults(t *testing.T) {
	if !strings.Contains(deleteQualityIssuesQuery, "SELECT result_id FROM quality_results WHERE draft_id = $1") {
		t.Fatalf("expected issue delete to resolve results by draft id, got %s", deleteQualityIssuesQuery)
	}
}

func TestClaimInsertIsAtomic(t *testing.T) {
	if !strings.Contains(insertClaimQuery, "ON CONFLICT (brief_ref) DO NOTHING") {
		t.Fatalf("expected conflict clause in claim insert, got %s", insertClaimQuery)
	}
}
