package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/draftline-labs/draftline-go/internal/domain"
)

type StrategyStore struct {
	db DB
}

const deleteStrategyQuery = `DELETE FROM strategies WHERE strategy_id = $1`

func NewStrategyStore(db DB) *StrategyStore {
	if db == nil {
		return nil
	}
	return &StrategyStore{db: db}
}

func (s *StrategyStore) InsertStrategy(ctx context.Context, strategy domain.Strategy) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("strategy store not initialized")
	}
	if err := strategy.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO strategies (
			strategy_id,
			brief_id,
			headline,
			positioning,
			created_at
		) VALUES ($1,$2,$3,$4,$5)`,
		strategy.ID.String(),
		strategy.BriefID.String(),
		strings.TrimSpace(strategy.Headline),
		nullIfEmpty(strategy.Positioning),
		normalizeTime(strategy.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert strategy: %w", err)
	}
	return nil
}

func (s *StrategyStore) DeleteStrategy(ctx context.Context, id domain.StrategyID) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("strategy store not initialized")
	}
	if !id.Valid() {
		return fmt.Errorf("strategy id is required")
	}
	if _, err := s.db.ExecContext(ctx, deleteStrategyQuery, id.String()); err != nil {
		return fmt.Errorf("delete strategy: %w", err)
	}
	return nil
}
