package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/draftline-labs/draftline-go/internal/domain"
)

type PackageStore struct {
	db DB
}

const (
	listArtifactObjectKeysQuery = `SELECT object_key FROM package_artifacts
	 WHERE package_id = $1 AND object_key IS NOT NULL
	 ORDER BY created_at ASC`
	deletePackageArtifactsQuery = `DELETE FROM package_artifacts WHERE package_id = $1`
	deletePackageQuery          = `DELETE FROM delivery_packages WHERE package_id = $1`
)

func NewPackageStore(db DB) *PackageStore {
	if db == nil {
		return nil
	}
	return &PackageStore{db: db}
}

func (s *PackageStore) InsertPackage(ctx context.Context, pkg domain.DeliveryPackage) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("package store not initialized")
	}
	if err := pkg.Validate(); err != nil {
		return err
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO delivery_packages (
			package_id,
			draft_id,
			label,
			created_at
		) VALUES ($1,$2,$3,$4)`,
		pkg.ID.String(),
		pkg.DraftID.String(),
		strings.TrimSpace(pkg.Label),
		normalizeTime(pkg.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert delivery package: %w", err)
	}
	return nil
}

func (s *PackageStore) InsertArtifact(ctx context.Context, artifact domain.PackageArtifact) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("package store not initialized")
	}
	if !artifact.PackageID.Valid() {
		return fmt.Errorf("package id is required")
	}
	if strings.TrimSpace(artifact.Name) == "" {
		return fmt.Errorf("artifact name is required")
	}
	id := strings.TrimSpace(artifact.ID)
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO package_artifacts (
			artifact_id,
			package_id,
			name,
			object_key,
			size_bytes,
			created_at
		) VALUES ($1,$2,$3,$4,$5,$6)`,
		id,
		artifact.PackageID.String(),
		strings.TrimSpace(artifact.Name),
		nullIfEmpty(artifact.ObjectKey),
		artifact.SizeBytes,
		normalizeTime(artifact.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert package artifact: %w", err)
	}
	return nil
}

// ArtifactObjectKeys lists the object-store keys recorded for a package.
// An empty slice means there is nothing to remove from the object store.
func (s *PackageStore) ArtifactObjectKeys(ctx context.Context, id domain.PackageID) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("package store not initialized")
	}
	if !id.Valid() {
		return nil, fmt.Errorf("package id is required")
	}
	rows, err := s.db.QueryContext(ctx, listArtifactObjectKeysQuery, id.String())
	if err != nil {
		return nil, fmt.Errorf("list artifact object keys: %w", err)
	}
	defer rows.Close()

	keys := make([]string, 0)
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan artifact object key: %w", err)
		}
		if strings.TrimSpace(key) != "" {
			keys = append(keys, key)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list artifact object keys: %w", err)
	}
	return keys, nil
}

// DeletePackageCascade removes artifact rows then the package row.
func (s *PackageStore) DeletePackageCascade(ctx context.Context, id domain.PackageID) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("package store not initialized")
	}
	if !id.Valid() {
		return fmt.Errorf("package id is required")
	}
	if _, err := s.db.ExecContext(ctx, deletePackageArtifactsQuery, id.String()); err != nil {
		return fmt.Errorf("delete package artifacts: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, deletePackageQuery, id.String()); err != nil {
		return fmt.Errorf("delete delivery package: %w", err)
	}
	return nil
}
