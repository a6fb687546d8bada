package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/draftline-labs/draftline-go/internal/domain"
)

type BriefStore struct {
	db DB
}

// Deletion statements run children first; each is scoped to the single brief
// id recorded in run state so concurrent runs' rows are never touched.
const (
	deleteIntakeRecordsQuery = `DELETE FROM intake_records WHERE brief_id = $1`
	deleteBriefQuery         = `DELETE FROM briefs WHERE brief_id = $1`
)

func NewBriefStore(db DB) *BriefStore {
	if db == nil {
		return nil
	}
	return &BriefStore{db: db}
}

func (s *BriefStore) InsertBrief(ctx context.Context, brief domain.Brief) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("brief store not initialized")
	}
	if err := brief.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO briefs (
			brief_id,
			source_ref,
			client_name,
			normalized_body,
			created_at
		) VALUES ($1,$2,$3,$4,$5)`,
		brief.ID.String(),
		strings.TrimSpace(brief.SourceRef),
		nullIfEmpty(brief.ClientName),
		brief.NormalizedBody,
		normalizeTime(brief.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert brief: %w", err)
	}
	return nil
}

func (s *BriefStore) InsertIntakeRecord(ctx context.Context, record domain.IntakeRecord) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("brief store not initialized")
	}
	if !record.BriefID.Valid() {
		return fmt.Errorf("brief id is required")
	}
	if strings.TrimSpace(record.Channel) == "" {
		return fmt.Errorf("channel is required")
	}
	id := strings.TrimSpace(record.ID)
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO intake_records (
			intake_id,
			brief_id,
			channel,
			raw_excerpt,
			created_at
		) VALUES ($1,$2,$3,$4,$5)`,
		id,
		record.BriefID.String(),
		strings.TrimSpace(record.Channel),
		nullIfEmpty(record.RawExcerpt),
		normalizeTime(record.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert intake record: %w", err)
	}
	return nil
}

// DeleteBriefCascade removes intake rows then the brief row. Absent rows are
// a success: compensation may be re-invoked after a partial prior failure.
func (s *BriefStore) DeleteBriefCascade(ctx context.Context, id domain.BriefID) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("brief store not initialized")
	}
	if !id.Valid() {
		return fmt.Errorf("brief id is required")
	}
	if _, err := s.db.ExecContext(ctx, deleteIntakeRecordsQuery, id.String()); err != nil {
		return fmt.Errorf("delete intake records: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, deleteBriefQuery, id.String()); err != nil {
		return fmt.Errorf("delete brief: %w", err)
	}
	return nil
}
