package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/draftline-labs/draftline-go/internal/domain"
	"github.com/draftline-labs/draftline-go/internal/repo"
)

// ClaimStore implements the concurrency claim on source briefs. The claim is
// a row keyed by brief_ref with a primary-key uniqueness constraint, so two
// concurrent run requests for the same brief race on a single atomic insert
// rather than an application-level lock.
type ClaimStore struct {
	db DB
}

const (
	insertClaimQuery = `INSERT INTO brief_claims (brief_ref, run_id, claimed_at)
	 VALUES ($1,$2,$3)
	 ON CONFLICT (brief_ref) DO NOTHING`

	deleteClaimQuery = `DELETE FROM brief_claims WHERE brief_ref = $1`
)

func NewClaimStore(db DB) *ClaimStore {
	if db == nil {
		return nil
	}
	return &ClaimStore{db: db}
}

func (s *ClaimStore) Claim(ctx context.Context, briefRef string, runID domain.RunID) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("claim store not initialized")
	}
	briefRef = strings.TrimSpace(briefRef)
	if briefRef == "" {
		return fmt.Errorf("brief ref is required")
	}
	if !runID.Valid() {
		return fmt.Errorf("run id is required")
	}
	res, err := s.db.ExecContext(ctx, insertClaimQuery, briefRef, runID.String(), time.Now().UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return repo.ErrBriefClaimed
		}
		return fmt.Errorf("claim brief: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("claim brief: %w", err)
	}
	if rows == 0 {
		return repo.ErrBriefClaimed
	}
	return nil
}

func (s *ClaimStore) Release(ctx context.Context, briefRef string) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("claim store not initialized")
	}
	briefRef = strings.TrimSpace(briefRef)
	if briefRef == "" {
		return fmt.Errorf("brief ref is required")
	}
	if _, err := s.db.ExecContext(ctx, deleteClaimQuery, briefRef); err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}
