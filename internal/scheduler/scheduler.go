// Package scheduler renders many scenes with bounded concurrency.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/bobarin/directorscut/internal/store"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultConcurrency = 4
	DefaultStagger     = 500 * time.Millisecond
)

// SceneRenderer renders one scene and reports whether it ended in error.
// It returns store.ErrSceneBusy without rendering when another render holds
// the scene; the batch counts that scene as skipped.
type SceneRenderer interface {
	RenderScene(ctx context.Context, projectID uuid.UUID, sceneID string) error
}

// Scheduler dispatches scene renders at most Concurrency at a time, pausing
// Stagger after each dispatch. A failing or panicking scene never affects
// its siblings.
type Scheduler struct {
	renderer    SceneRenderer
	concurrency int
	stagger     time.Duration
}

func New(renderer SceneRenderer, concurrency int, stagger time.Duration) *Scheduler {
	if concurrency < 1 {
		concurrency = DefaultConcurrency
	}
	if stagger < 0 {
		stagger = 0
	}
	return &Scheduler{renderer: renderer, concurrency: concurrency, stagger: stagger}
}

// Eligible returns the scenes a batch should render: everything not already
// done and not currently in flight.
func Eligible(scenes []models.Scene) []models.Scene {
	var out []models.Scene
	for _, s := range scenes {
		if s.Status == models.SceneStatusDone || s.Status.InFlight() {
			continue
		}
		out = append(out, s)
	}
	return out
}

// RenderAll renders the eligible scenes and returns the aggregate outcome.
// Cancelling ctx stops further dispatches; renders already started observe ctx themselves.
func (s *Scheduler) RenderAll(ctx context.Context, projectID uuid.UUID, scenes []models.Scene) models.BatchResult {
	queue := Eligible(scenes)
	result := models.BatchResult{Total: len(queue)}
	if len(queue) == 0 {
		return result
	}

	logger := log.With().Str("project_id", projectID.String()).Logger()
	logger.Info().
		Int("scenes", len(queue)).
		Int("concurrency", s.concurrency).
		Dur("stagger", s.stagger).
		Msg("batch render start")

	var mu sync.Mutex
	record := func(err error) {
		mu.Lock()
		defer mu.Unlock()
		switch {
		case err == nil:
			result.Succeeded++
		case errors.Is(err, store.ErrSceneBusy):
			result.Skipped++
		default:
			result.Failed++
		}
	}

	// The group context is deliberately not used: one scene's failure must
	// not cancel the others.
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	dispatched := 0
	for _, scene := range queue {
		if ctx.Err() != nil {
			break
		}
		sceneID := scene.ID
		g.Go(func() error {
			err := s.renderOne(ctx, projectID, sceneID)
			switch {
			case errors.Is(err, store.ErrSceneBusy):
				logger.Info().Str("scene_id", sceneID).Msg("scene already rendering, skipped")
			case err != nil:
				logger.Warn().Err(err).Str("scene_id", sceneID).Msg("scene failed")
			}
			record(err)
			return nil
		})
		dispatched++

		if s.stagger > 0 && dispatched < len(queue) {
			select {
			case <-ctx.Done():
			case <-time.After(s.stagger):
			}
		}
	}
	g.Wait()

	// Scenes never dispatched because of cancellation count as failed
	result.Failed += len(queue) - dispatched

	logger.Info().
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Int("skipped", result.Skipped).
		Msg("batch complete: " + result.String())
	return result
}

func (s *Scheduler) renderOne(ctx context.Context, projectID uuid.UUID, sceneID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("render panicked: %v", r)
		}
	}()
	return s.renderer.RenderScene(ctx, projectID, sceneID)
}
