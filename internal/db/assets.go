package db

import (
	"context"
	"fmt"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/google/uuid"
)

// CreateAsset records an uploaded object. Re-uploading the same object
// updates the existing row; asset.ID is set to the row's id.
func (db *DB) CreateAsset(ctx context.Context, asset *models.Asset) error {
	query := `
		INSERT INTO assets (
			id, project_id, scene_id, type, storage_bucket,
			storage_path, content_type, byte_size
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (storage_bucket, storage_path) DO UPDATE SET
			scene_id = EXCLUDED.scene_id,
			type = EXCLUDED.type,
			content_type = EXCLUDED.content_type,
			byte_size = EXCLUDED.byte_size,
			created_at = now()
		RETURNING id, created_at
	`

	return db.QueryRowContext(
		ctx, query,
		asset.ID, asset.ProjectID, asset.SceneID, asset.Type,
		asset.StorageBucket, asset.StoragePath, asset.ContentType, asset.ByteSize,
	).Scan(&asset.ID, &asset.CreatedAt)
}

func (db *DB) GetProjectAssets(ctx context.Context, projectID uuid.UUID) ([]models.Asset, error) {
	query := `
		SELECT
			id, project_id, scene_id, type, storage_bucket,
			storage_path, content_type, byte_size, created_at
		FROM assets
		WHERE project_id = $1
		ORDER BY created_at
	`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query assets: %w", err)
	}
	defer rows.Close()

	var assets []models.Asset
	for rows.Next() {
		var asset models.Asset
		err := rows.Scan(
			&asset.ID, &asset.ProjectID, &asset.SceneID, &asset.Type,
			&asset.StorageBucket, &asset.StoragePath, &asset.ContentType,
			&asset.ByteSize, &asset.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan asset: %w", err)
		}
		assets = append(assets, asset)
	}

	return assets, rows.Err()
}
