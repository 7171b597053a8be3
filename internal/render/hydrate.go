package render

import (
	"context"
	"sync"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/bobarin/directorscut/internal/services"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const hydrateConcurrency = 2

// HydrationStore is the subset of project state hydration needs.
type HydrationStore interface {
	ListScenes(ctx context.Context, projectID uuid.UUID) ([]models.Scene, error)
	UpdateScene(ctx context.Context, projectID uuid.UUID, sceneID string, mutate func(*models.Scene)) (*models.Scene, error)
}

// Hydrator restores playback URLs for scenes whose clip location survived a
// reload but whose URL did not.
type Hydrator struct {
	store HydrationStore
	video services.VideoGenerator
	sink  ClipSink

	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewHydrator(store HydrationStore, video services.VideoGenerator, sink ClipSink) *Hydrator {
	return &Hydrator{
		store:    store,
		video:    video,
		sink:     sink,
		inFlight: make(map[string]struct{}),
	}
}

// Hydrate re-fetches every scene of the project that has a VideoURI but no
// VideoURL. Scenes already being hydrated are skipped. It returns the number
// of scenes that received a URL; failures are logged.
func (h *Hydrator) Hydrate(ctx context.Context, projectID uuid.UUID) int {
	if h.video == nil {
		return 0
	}

	scenes, err := h.store.ListScenes(ctx, projectID)
	if err != nil {
		log.Warn().Err(err).Str("project_id", projectID.String()).Msg("hydrate: list scenes")
		return 0
	}

	var (
		mu       sync.Mutex
		hydrated int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hydrateConcurrency)

	for _, scene := range scenes {
		if scene.VideoURI == nil || *scene.VideoURI == "" || scene.VideoURL != nil {
			continue
		}
		key := projectID.String() + "/" + scene.ID
		if !h.claim(key) {
			continue
		}

		sceneID, uri := scene.ID, *scene.VideoURI
		g.Go(func() error {
			defer h.release(key)
			if h.hydrateScene(gctx, projectID, sceneID, uri) {
				mu.Lock()
				hydrated++
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()
	return hydrated
}

func (h *Hydrator) hydrateScene(ctx context.Context, projectID uuid.UUID, sceneID, uri string) bool {
	logger := log.With().Str("project_id", projectID.String()).Str("scene_id", sceneID).Logger()

	data, err := h.video.DownloadVideo(ctx, uri)
	if err != nil {
		logger.Warn().Err(err).Msg("hydrate: download failed")
		return false
	}
	if len(data) == 0 {
		logger.Warn().Msg("hydrate: downloaded clip is empty")
		return false
	}

	url, err := h.sink.PublishClip(ctx, projectID, sceneID, data)
	if err != nil {
		logger.Warn().Err(err).Msg("hydrate: publish failed")
		return false
	}

	applied := false
	_, err = h.store.UpdateScene(ctx, projectID, sceneID, func(s *models.Scene) {
		// The scene may have been re-rendered while we were downloading
		if s.VideoURI == nil || *s.VideoURI != uri {
			return
		}
		s.VideoURL = &url
		applied = true
	})
	if err != nil {
		logger.Warn().Err(err).Msg("hydrate: update failed")
		return false
	}
	if applied {
		logger.Info().Msg("hydrated scene")
	}
	return applied
}

func (h *Hydrator) claim(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.inFlight[key]; ok {
		return false
	}
	h.inFlight[key] = struct{}{}
	return true
}

func (h *Hydrator) release(key string) {
	h.mu.Lock()
	delete(h.inFlight, key)
	h.mu.Unlock()
}
