package app

import (
	"context"
	"fmt"

	"github.com/bobarin/directorscut/internal/config"
	"github.com/bobarin/directorscut/internal/db"
	"github.com/bobarin/directorscut/internal/planner"
	"github.com/bobarin/directorscut/internal/render"
	"github.com/bobarin/directorscut/internal/scheduler"
	"github.com/bobarin/directorscut/internal/services"
	"github.com/bobarin/directorscut/internal/storage"
	"github.com/bobarin/directorscut/internal/store"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

// Build wires the pipeline from configuration. database may be nil, in which
// case projects live only in memory.
func Build(ctx context.Context, cfg *config.Config, database *db.DB) (*Pipeline, error) {
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var (
		persist store.Persister
		assets  storage.AssetRecorder
	)
	if database != nil {
		persist = store.NewPostgresPersister(database)
		assets = database
	}
	st := store.New(persist)

	var uploader storage.Uploader
	if cfg.SupabaseEnabled() {
		uploader = storage.NewSupabase(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	} else {
		disk, err := storage.NewDisk(cfg.ClipDir)
		if err != nil {
			return nil, err
		}
		log.Warn().Str("dir", cfg.ClipDir).Msg("supabase not configured, publishing clips to local disk")
		uploader = disk
	}
	publisher := storage.NewPublisher(uploader, assets)

	probe, err := services.NewFFprobeService(cfg.TempDir)
	if err != nil {
		return nil, err
	}

	renderer := render.NewRenderer(st, backend, publisher, render.Options{
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
		TextModel:    cfg.TextModel,
	})

	return &Pipeline{
		Store:     st,
		Planner:   planner.New(backend.Text),
		Renderer:  renderer,
		Scheduler: scheduler.New(renderer, cfg.RenderConcurrency, cfg.RenderStagger),
		Hydrator:  render.NewHydrator(st, backend.Video, publisher),
		Publisher: publisher,
		Probe:     probe,
	}, nil
}

// NewBackend creates the video, image and text providers selected in cfg.
func NewBackend(ctx context.Context, cfg *config.Config) (*services.Backend, error) {
	var client *genai.Client
	if cfg.GeminiKey != "" {
		c, err := services.NewGenAIClient(ctx, cfg.GeminiKey)
		if err != nil {
			return nil, err
		}
		client = c
	}

	backend := &services.Backend{}

	switch cfg.VideoProvider {
	case config.ProviderVeo:
		if client == nil {
			return nil, fmt.Errorf("veo needs GEMINI_API_KEY")
		}
		backend.Video = services.NewVeoService(client, cfg.GeminiKey, cfg.VeoModel)
	case config.ProviderXAI:
		backend.Video = services.NewXAIVideoService(cfg.XAIAPIKey, cfg.XAIDuration)
	default:
		return nil, fmt.Errorf("unknown video provider %q", cfg.VideoProvider)
	}

	switch cfg.ImageProvider {
	case config.ProviderImagen:
		if client == nil {
			return nil, fmt.Errorf("imagen needs GEMINI_API_KEY")
		}
		backend.Image = services.NewImagenService(client, cfg.ImagenModel)
	case config.ProviderGemini:
		backend.Image = services.NewGeminiImageService(cfg.GeminiKey, "")
	case config.ProviderOpenAI:
		backend.Image = services.NewOpenAIService(cfg.OpenAIKey, "")
	default:
		return nil, fmt.Errorf("unknown image provider %q", cfg.ImageProvider)
	}

	switch cfg.TextProvider {
	case config.ProviderGemini:
		if client == nil {
			return nil, fmt.Errorf("gemini text needs GEMINI_API_KEY")
		}
		backend.Text = services.NewGeminiService(client, cfg.TextModel)
	case config.ProviderOpenAI:
		backend.Text = services.NewOpenAIService(cfg.OpenAIKey, cfg.TextModel)
	case config.ProviderOpenRouter:
		backend.Text = services.NewOpenRouterService(cfg.OpenRouterKey, cfg.TextModel)
	default:
		return nil, fmt.Errorf("unknown text provider %q", cfg.TextProvider)
	}

	log.Info().
		Str("video", cfg.VideoProvider).
		Str("image", cfg.ImageProvider).
		Str("text", cfg.TextProvider).
		Msg("providers configured")
	return backend, nil
}
