package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/draftline-labs/draftline-go/internal/domain"
	"github.com/draftline-labs/draftline-go/internal/repo"
)

type WorkflowRunStore struct {
	db DB
}

func NewWorkflowRunStore(db DB) *WorkflowRunStore {
	if db == nil {
		return nil
	}
	return &WorkflowRunStore{db: db}
}

func (s *WorkflowRunStore) CreateRun(ctx context.Context, run domain.WorkflowRun) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("workflow run store not initialized")
	}
	if err := run.Validate(); err != nil {
		return err
	}
	metadataJSON, err := encodeMetadata(run.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	createdAt := normalizeTime(run.CreatedAt)
	updatedAt := run.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO workflow_runs (
			run_id,
			brief_ref,
			status,
			created_at,
			updated_at,
			completed_at,
			last_error,
			metadata
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		run.ID.String(),
		strings.TrimSpace(run.BriefRef),
		string(run.Status),
		createdAt,
		updatedAt.UTC(),
		nullTime(run.CompletedAt),
		nullIfEmpty(run.LastError),
		metadataJSON,
	)
	if err != nil {
		return fmt.Errorf("insert workflow run: %w", err)
	}
	return nil
}

func (s *WorkflowRunStore) GetRun(ctx context.Context, id domain.RunID) (domain.WorkflowRun, error) {
	if s == nil || s.db == nil {
		return domain.WorkflowRun{}, fmt.Errorf("workflow run store not initialized")
	}
	if !id.Valid() {
		return domain.WorkflowRun{}, fmt.Errorf("run id is required")
	}
	row := s.db.QueryRowContext(
		ctx,
		`SELECT run_id, brief_ref, status, created_at, updated_at, completed_at, last_error, metadata
		 FROM workflow_runs
		 WHERE run_id = $1`,
		id.String(),
	)
	return scanWorkflowRun(row)
}

func (s *WorkflowRunStore) ListRuns(ctx context.Context, filter repo.WorkflowRunFilter) ([]domain.WorkflowRun, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("workflow run store not initialized")
	}
	clauses := make([]string, 0, 2)
	args := make([]any, 0, 3)

	if strings.TrimSpace(filter.BriefRef) != "" {
		args = append(args, strings.TrimSpace(filter.BriefRef))
		clauses = append(clauses, fmt.Sprintf("brief_ref = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		clauses = append(clauses, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT run_id, brief_ref, status, created_at, updated_at, completed_at, last_error, metadata
		FROM workflow_runs`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list workflow runs: %w", err)
	}
	defer rows.Close()

	runs := make([]domain.WorkflowRun, 0)
	for rows.Next() {
		run, err := scanWorkflowRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list workflow runs: %w", err)
	}
	return runs, nil
}

func (s *WorkflowRunStore) UpdateRunStatus(ctx context.Context, id domain.RunID, status domain.RunStatus, lastError string, completedAt *time.Time, metadata domain.Metadata) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("workflow run store not initialized")
	}
	if !id.Valid() {
		return fmt.Errorf("run id is required")
	}
	if domain.NormalizeRunStatus(string(status)) == "" {
		return fmt.Errorf("status is required")
	}
	metadataJSON, err := encodeMetadata(metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE workflow_runs
		 SET status = $1, last_error = $2, completed_at = $3, metadata = $4, updated_at = $5
		 WHERE run_id = $6`,
		string(status),
		nullIfEmpty(lastError),
		nullTime(completedAt),
		metadataJSON,
		time.Now().UTC(),
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("update workflow run status: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update workflow run status: %w", err)
	}
	if rows == 0 {
		return repo.ErrNotFound
	}
	return nil
}

type workflowRunScanner interface {
	Scan(dest ...any) error
}

func scanWorkflowRun(scanner workflowRunScanner) (domain.WorkflowRun, error) {
	var run domain.WorkflowRun
	var id string
	var status string
	var completedAt sql.NullTime
	var lastError sql.NullString
	var metadataJSON []byte
	if err := scanner.Scan(&id, &run.BriefRef, &status, &run.CreatedAt, &run.UpdatedAt, &completedAt, &lastError, &metadataJSON); err != nil {
		return domain.WorkflowRun{}, handleNotFound(err)
	}
	run.ID = domain.RunID(id)
	run.Status = domain.NormalizeRunStatus(status)
	if completedAt.Valid {
		completed := completedAt.Time.UTC()
		run.CompletedAt = &completed
	}
	run.LastError = strings.TrimSpace(lastError.String)
	metadata, err := decodeMetadata(metadataJSON)
	if err != nil {
		return domain.WorkflowRun{}, fmt.Errorf("decode metadata: %w", err)
	}
	run.Metadata = metadata
	return run, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
