// Package app assembles the storyboard and render pipeline and exposes the
// project-level operations shared by the API, the worker and the CLI.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/bobarin/directorscut/internal/planner"
	"github.com/bobarin/directorscut/internal/render"
	"github.com/bobarin/directorscut/internal/scheduler"
	"github.com/bobarin/directorscut/internal/services"
	"github.com/bobarin/directorscut/internal/storage"
	"github.com/bobarin/directorscut/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrSceneBusy   = store.ErrSceneBusy
	ErrProjectBusy = errors.New("project has scenes rendering")
	ErrNoScenes    = errors.New("project has no storyboard")
)

// Pipeline holds the wired components.
type Pipeline struct {
	Store     *store.Store
	Planner   *planner.Planner
	Renderer  scheduler.SceneRenderer
	Scheduler *scheduler.Scheduler
	Hydrator  *render.Hydrator
	Publisher *storage.Publisher
	Probe     *services.FFprobeService
}

// PlanProject replaces the project's storyboard with a freshly planned one
// and returns the number of scenes.
func (p *Pipeline) PlanProject(ctx context.Context, projectID uuid.UUID) (int, error) {
	scenes, err := p.Store.ListScenes(ctx, projectID)
	if err != nil {
		return 0, err
	}
	if anyInFlight(scenes) {
		return 0, ErrProjectBusy
	}

	project, err := p.Store.UpdateProject(ctx, projectID, func(pr *models.Project) {
		pr.Status = models.ProjectStatusPlanning
		pr.ErrorMessage = nil
	})
	if err != nil {
		return 0, err
	}

	planned, err := p.Planner.Plan(ctx, project)
	if err != nil {
		p.failProject(ctx, projectID, err)
		return 0, fmt.Errorf("plan storyboard: %w", err)
	}

	if err := p.Store.ReplaceScenes(ctx, projectID, planned); err != nil {
		return 0, err
	}
	p.setStatus(ctx, projectID, models.ProjectStatusPlanned)
	return len(planned), nil
}

// RenderScene renders one scene unless it is already rendering. The
// renderer claims the scene atomically and returns ErrSceneBusy on a race.
func (p *Pipeline) RenderScene(ctx context.Context, projectID uuid.UUID, sceneID string) error {
	scene, err := p.Store.GetScene(ctx, projectID, sceneID)
	if err != nil {
		return err
	}
	if scene.Status.InFlight() {
		return ErrSceneBusy
	}
	return p.Renderer.RenderScene(ctx, projectID, sceneID)
}

// RenderProject renders every scene that is neither done nor in flight.
func (p *Pipeline) RenderProject(ctx context.Context, projectID uuid.UUID) (models.BatchResult, error) {
	scenes, err := p.Store.ListScenes(ctx, projectID)
	if err != nil {
		return models.BatchResult{}, err
	}
	if len(scenes) == 0 {
		return models.BatchResult{}, ErrNoScenes
	}

	eligible := scheduler.Eligible(scenes)
	p.setStatus(ctx, projectID, models.ProjectStatusRendering)
	res := p.Scheduler.RenderAll(ctx, projectID, eligible)
	p.setStatus(context.WithoutCancel(ctx), projectID, models.ProjectStatusPlanned)

	log.Info().
		Str("project_id", projectID.String()).
		Int("total", res.Total).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("skipped", res.Skipped).
		Msg("batch render finished")
	return res, nil
}

// View returns the project with playback URLs and starts restoring any that
// are missing in the background.
func (p *Pipeline) View(ctx context.Context, projectID uuid.UUID) (*models.ProjectResponse, error) {
	snap, err := p.Store.Snapshot(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if p.Hydrator != nil && needsHydration(snap.Scenes) {
		go p.Hydrator.Hydrate(context.WithoutCancel(ctx), projectID)
	}
	return snap, nil
}

func (p *Pipeline) setStatus(ctx context.Context, projectID uuid.UUID, status models.ProjectStatus) {
	if _, err := p.Store.UpdateProject(ctx, projectID, func(pr *models.Project) { pr.Status = status }); err != nil {
		log.Error().Err(err).Str("project_id", projectID.String()).Msg("project status update failed")
	}
}

func (p *Pipeline) failProject(ctx context.Context, projectID uuid.UUID, cause error) {
	msg := cause.Error()
	_, err := p.Store.UpdateProject(context.WithoutCancel(ctx), projectID, func(pr *models.Project) {
		pr.Status = models.ProjectStatusFailed
		pr.ErrorMessage = &msg
	})
	if err != nil {
		log.Error().Err(err).Str("project_id", projectID.String()).Msg("project status update failed")
	}
}

func anyInFlight(scenes []models.Scene) bool {
	for _, s := range scenes {
		if s.Status.InFlight() {
			return true
		}
	}
	return false
}

func needsHydration(scenes []models.Scene) bool {
	for _, s := range scenes {
		if s.VideoURI != nil && *s.VideoURI != "" && s.VideoURL == nil {
			return true
		}
	}
	return false
}
