package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/draftline-labs/draftline-go/internal/domain"
)

type DraftStore struct {
	db DB
}

// Asset rows are looked up through the draft's bundle rows, so the cascade
// holds even though the schema enforces no foreign keys.
const (
	deleteDraftAssetsQuery = `DELETE FROM draft_assets
	 WHERE bundle_id IN (SELECT bundle_id FROM draft_bundles WHERE draft_id = $1)`
	deleteDraftBundlesQuery = `DELETE FROM draft_bundles WHERE draft_id = $1`
	deleteDraftQuery        = `DELETE FROM drafts WHERE draft_id = $1`
)

func NewDraftStore(db DB) *DraftStore {
	if db == nil {
		return nil
	}
	return &DraftStore{db: db}
}

func (s *DraftStore) InsertDraft(ctx context.Context, draft domain.Draft) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("draft store not initialized")
	}
	if err := draft.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO drafts (
			draft_id,
			strategy_id,
			title,
			summary,
			created_at
		) VALUES ($1,$2,$3,$4,$5)`,
		draft.ID.String(),
		draft.StrategyID.String(),
		strings.TrimSpace(draft.Title),
		nullIfEmpty(draft.Summary),
		normalizeTime(draft.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert draft: %w", err)
	}
	return nil
}

func (s *DraftStore) InsertBundle(ctx context.Context, bundle domain.DraftBundle) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("draft store not initialized")
	}
	if !bundle.DraftID.Valid() {
		return fmt.Errorf("draft id is required")
	}
	if strings.TrimSpace(bundle.Kind) == "" {
		return fmt.Errorf("bundle kind is required")
	}
	id := strings.TrimSpace(bundle.ID)
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO draft_bundles (
			bundle_id,
			draft_id,
			kind,
			created_at
		) VALUES ($1,$2,$3,$4)`,
		id,
		bundle.DraftID.String(),
		strings.TrimSpace(bundle.Kind),
		normalizeTime(bundle.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert draft bundle: %w", err)
	}
	return nil
}

func (s *DraftStore) InsertAsset(ctx context.Context, asset domain.DraftAsset) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("draft store not initialized")
	}
	if strings.TrimSpace(asset.BundleID) == "" {
		return fmt.Errorf("bundle id is required")
	}
	if strings.TrimSpace(asset.Name) == "" {
		return fmt.Errorf("asset name is required")
	}
	id := strings.TrimSpace(asset.ID)
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO draft_assets (
			asset_id,
			bundle_id,
			name,
			media_type,
			created_at
		) VALUES ($1,$2,$3,$4,$5)`,
		id,
		strings.TrimSpace(asset.BundleID),
		strings.TrimSpace(asset.Name),
		nullIfEmpty(asset.MediaType),
		normalizeTime(asset.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert draft asset: %w", err)
	}
	return nil
}

// DeleteDraftCascade removes assets, then bundles, then the draft row,
// scoped to the one draft id. Already-absent rows report success.
func (s *DraftStore) DeleteDraftCascade(ctx context.Context, id domain.DraftID) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("draft store not initialized")
	}
	if !id.Valid() {
		return fmt.Errorf("draft id is required")
	}
	if _, err := s.db.ExecContext(ctx, deleteDraftAssetsQuery, id.String()); err != nil {
		return fmt.Errorf("delete draft assets: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, deleteDraftBundlesQuery, id.String()); err != nil {
		return fmt.Errorf("delete draft bundles: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, deleteDraftQuery, id.String()); err != nil {
		return fmt.Errorf("delete draft: %w", err)
	}
	return nil
}
