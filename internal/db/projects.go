package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/google/uuid"
)

const projectColumns = `
	id, lyrics, clip_length, aspect_ratio, style_image_base64, style_image_mime,
	audio_duration, audio_path, transition_type, planner_model, video_model,
	status, error_message, created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	p := &models.Project{}
	err := row.Scan(
		&p.ID, &p.Lyrics, &p.ClipLength, &p.AspectRatio, &p.StyleImageBase64, &p.StyleImageMime,
		&p.AudioDuration, &p.AudioPath, &p.TransitionType, &p.PlannerModel, &p.VideoModel,
		&p.Status, &p.ErrorMessage, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (db *DB) CreateProject(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (
			id, lyrics, clip_length, aspect_ratio, style_image_base64, style_image_mime,
			audio_duration, audio_path, transition_type, planner_model, video_model, status
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING created_at, updated_at
	`

	return db.QueryRowContext(
		ctx, query,
		project.ID, project.Lyrics, project.ClipLength, project.AspectRatio,
		project.StyleImageBase64, project.StyleImageMime, project.AudioDuration,
		project.AudioPath, project.TransitionType, project.PlannerModel,
		project.VideoModel, project.Status,
	).Scan(&project.CreatedAt, &project.UpdatedAt)
}

// GetProject returns the project or an error wrapping ErrNotFound.
func (db *DB) GetProject(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	project, err := scanProject(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("project %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return project, nil
}

// ListProjects returns projects ordered by creation date (newest first).
func (db *DB) ListProjects(ctx context.Context, limit, offset int) ([]models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects ORDER BY created_at DESC LIMIT $1 OFFSET $2`

	rows, err := db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, *p)
	}
	return projects, rows.Err()
}

// SaveProject writes every mutable project column.
func (db *DB) SaveProject(ctx context.Context, project *models.Project) error {
	query := `
		UPDATE projects SET
			lyrics = $2, clip_length = $3, aspect_ratio = $4, style_image_base64 = $5,
			style_image_mime = $6, audio_duration = $7, audio_path = $8,
			transition_type = $9, planner_model = $10, video_model = $11,
			status = $12, error_message = $13, updated_at = NOW()
		WHERE id = $1
	`
	res, err := db.ExecContext(
		ctx, query,
		project.ID, project.Lyrics, project.ClipLength, project.AspectRatio,
		project.StyleImageBase64, project.StyleImageMime, project.AudioDuration,
		project.AudioPath, project.TransitionType, project.PlannerModel,
		project.VideoModel, project.Status, project.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to save project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("project %s: %w", project.ID, ErrNotFound)
	}
	return nil
}
