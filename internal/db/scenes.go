package db

import (
	"context"
	"fmt"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/google/uuid"
)

// Scenes are stored without their playback URL; see models.Scene.Persisted.

func (db *DB) ListScenes(ctx context.Context, projectID uuid.UUID) ([]models.Scene, error) {
	query := `
		SELECT
			id, project_id, scene_index, start_time, end_time, description,
			visual_prompt, status, video_uri, error_msg, updated_at
		FROM scenes
		WHERE project_id = $1
		ORDER BY scene_index
	`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query scenes: %w", err)
	}
	defer rows.Close()

	var scenes []models.Scene
	for rows.Next() {
		var s models.Scene
		if err := rows.Scan(
			&s.ID, &s.ProjectID, &s.SceneIndex, &s.StartTime, &s.EndTime,
			&s.Description, &s.VisualPrompt, &s.Status, &s.VideoURI,
			&s.ErrorMsg, &s.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan scene: %w", err)
		}
		scenes = append(scenes, s)
	}
	return scenes, rows.Err()
}

func (db *DB) SaveScene(ctx context.Context, scene models.Scene) error {
	query := `
		INSERT INTO scenes (
			project_id, id, scene_index, start_time, end_time, description,
			visual_prompt, status, video_uri, error_msg, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (project_id, id) DO UPDATE SET
			scene_index = EXCLUDED.scene_index,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			description = EXCLUDED.description,
			visual_prompt = EXCLUDED.visual_prompt,
			status = EXCLUDED.status,
			video_uri = EXCLUDED.video_uri,
			error_msg = EXCLUDED.error_msg,
			updated_at = EXCLUDED.updated_at
	`
	_, err := db.ExecContext(
		ctx, query,
		scene.ProjectID, scene.ID, scene.SceneIndex, scene.StartTime, scene.EndTime,
		scene.Description, scene.VisualPrompt, scene.Status, scene.VideoURI,
		scene.ErrorMsg, scene.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save scene %s: %w", scene.ID, err)
	}
	return nil
}

// ReplaceScenes swaps a project's storyboard in one transaction.
func (db *DB) ReplaceScenes(ctx context.Context, projectID uuid.UUID, scenes []models.Scene) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM scenes WHERE project_id = $1`, projectID); err != nil {
		return fmt.Errorf("failed to clear scenes: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scenes (
			project_id, id, scene_index, start_time, end_time, description,
			visual_prompt, status, video_uri, error_msg, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare scene insert: %w", err)
	}
	defer stmt.Close()

	for _, s := range scenes {
		if _, err := stmt.ExecContext(
			ctx, projectID, s.ID, s.SceneIndex, s.StartTime, s.EndTime,
			s.Description, s.VisualPrompt, s.Status, s.VideoURI, s.ErrorMsg, s.UpdatedAt,
		); err != nil {
			return fmt.Errorf("failed to insert scene %s: %w", s.ID, err)
		}
	}

	return tx.Commit()
}
