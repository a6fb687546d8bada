package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/draftline-labs/draftline-go/internal/domain"
)

type QualityStore struct {
	db DB
}

// Issue rows hang off result rows, which hang off the draft; compensation
// resolves them through the result rows tied to the one draft id.
const (
	deleteQualityIssuesQuery = `DELETE FROM quality_issues
	 WHERE result_id IN (SELECT result_id FROM quality_results WHERE draft_id = $1)`
	deleteQualityResultsQuery = `DELETE FROM quality_results WHERE draft_id = $1`
)

func NewQualityStore(db DB) *QualityStore {
	if db == nil {
		return nil
	}
	return &QualityStore{db: db}
}

func (s *QualityStore) InsertResult(ctx context.Context, result domain.QualityResult) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("quality store not initialized")
	}
	if !result.DraftID.Valid() {
		return fmt.Errorf("draft id is required")
	}
	id := strings.TrimSpace(result.ID)
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO quality_results (
			result_id,
			draft_id,
			score,
			passed,
			created_at
		) VALUES ($1,$2,$3,$4,$5)`,
		id,
		result.DraftID.String(),
		result.Score,
		result.Passed,
		normalizeTime(result.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert quality result: %w", err)
	}
	return nil
}

func (s *QualityStore) InsertIssue(ctx context.Context, issue domain.QualityIssue) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("quality store not initialized")
	}
	if strings.TrimSpace(issue.ResultID) == "" {
		return fmt.Errorf("result id is required")
	}
	if strings.TrimSpace(issue.Severity) == "" {
		return fmt.Errorf("severity is required")
	}
	id := strings.TrimSpace(issue.ID)
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO quality_issues (
			issue_id,
			result_id,
			severity,
			detail,
			created_at
		) VALUES ($1,$2,$3,$4,$5)`,
		id,
		strings.TrimSpace(issue.ResultID),
		strings.TrimSpace(issue.Severity),
		nullIfEmpty(issue.Detail),
		normalizeTime(issue.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert quality issue: %w", err)
	}
	return nil
}

// DeleteQualityForDraft removes issue rows then result rows for the draft.
func (s *QualityStore) DeleteQualityForDraft(ctx context.Context, id domain.DraftID) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("quality store not initialized")
	}
	if !id.Valid() {
		return fmt.Errorf("draft id is required")
	}
	if _, err := s.db.ExecContext(ctx, deleteQualityIssuesQuery, id.String()); err != nil {
		return fmt.Errorf("delete quality issues: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, deleteQualityResultsQuery, id.String()); err != nil {
		return fmt.Errorf("delete quality results: %w", err)
	}
	return nil
}
