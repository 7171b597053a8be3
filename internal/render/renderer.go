package render

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/bobarin/directorscut/internal/safety"
	"github.com/bobarin/directorscut/internal/services"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MaxRetryMessage is recorded on a scene whose every attempt failed retryably.
const MaxRetryMessage = "Max retry attempts reached"

var (
	// ErrMissingCredential is returned before any scene mutation when no
	// generation provider is configured.
	ErrMissingCredential = errors.New("generation provider credentials are not configured")
	// ErrRenderFailed wraps the message recorded on a scene that ended in error.
	ErrRenderFailed = errors.New("scene render failed")
)

// SceneStore is the project state the renderer reads and mutates.
// ClaimScene atomically moves an idle scene to generating or fails with
// store.ErrSceneBusy. UpdateScene applies mutate to the current stored record.
type SceneStore interface {
	GetProject(ctx context.Context, projectID uuid.UUID) (*models.Project, error)
	ClaimScene(ctx context.Context, projectID uuid.UUID, sceneID string) (*models.Scene, error)
	UpdateScene(ctx context.Context, projectID uuid.UUID, sceneID string, mutate func(*models.Scene)) (*models.Scene, error)
}

// ClipSink turns downloaded clip bytes into a playable URL.
type ClipSink interface {
	PublishClip(ctx context.Context, projectID uuid.UUID, sceneID string, data []byte) (string, error)
}

type Options struct {
	PollInterval     time.Duration
	PollErrorBackoff time.Duration
	MaxPolls         int
	// TextModel is passed to the sanitizer's text provider.
	TextModel string
}

func (o *Options) applyDefaults() {
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	if o.PollErrorBackoff <= 0 {
		o.PollErrorBackoff = DefaultPollErrorBackoff
	}
	if o.MaxPolls <= 0 {
		o.MaxPolls = DefaultMaxPolls
	}
}

// Renderer drives one scene from pending to done or error, switching
// recovery strategies when the provider blocks or drops a generation.
type Renderer struct {
	store      SceneStore
	backend    *services.Backend
	sink       ClipSink
	sanitizer  *services.Sanitizer
	references *services.ReferenceGenerator
	opts       Options
}

func NewRenderer(store SceneStore, backend *services.Backend, sink ClipSink, opts Options) *Renderer {
	opts.applyDefaults()
	r := &Renderer{
		store:   store,
		backend: backend,
		sink:    sink,
		opts:    opts,
	}
	if backend != nil {
		if backend.Text != nil {
			r.sanitizer = services.NewSanitizer(backend.Text, opts.TextModel)
		}
		if backend.Image != nil {
			r.references = services.NewReferenceGenerator(backend.Image)
		}
	}
	return r
}

// attemptState is what changes between attempts of a single render.
type attemptState struct {
	prompt string
	image  *services.InlineImage
	// styleImage reports whether image is the user's style image.
	styleImage bool
}

// RenderScene renders one scene. Every outcome is recorded on the scene; the
// returned error only reports it (ErrRenderFailed) or a precondition failure.
func (r *Renderer) RenderScene(ctx context.Context, projectID uuid.UUID, sceneID string) error {
	if !r.backend.Ready() {
		return ErrMissingCredential
	}

	project, err := r.store.GetProject(ctx, projectID)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	// Store writes must land even when the caller gives up mid-render.
	storeCtx := context.WithoutCancel(ctx)
	scene, err := r.store.ClaimScene(storeCtx, projectID, sceneID)
	if err != nil {
		return fmt.Errorf("claim scene: %w", err)
	}

	logger := log.With().
		Str("project_id", projectID.String()).
		Str("scene_id", sceneID).
		Logger()

	update := func(mutate func(*models.Scene)) {
		if _, err := r.store.UpdateScene(storeCtx, projectID, sceneID, mutate); err != nil {
			logger.Error().Err(err).Msg("scene update failed")
		}
	}

	aspect := models.NormalizeAspectRatio(project.AspectRatio)
	state := attemptState{prompt: scene.VisualPrompt}
	if project.HasStyleImage() {
		img, err := services.DecodeInlineImage(*project.StyleImageBase64, derefOr(project.StyleImageMime, "image/png"))
		if err != nil {
			logger.Warn().Err(err).Msg("style image is not valid base64, rendering without it")
		} else {
			state.image = img
			state.styleImage = true
		}
	}

	logger.Info().
		Bool("style_image", state.styleImage).
		Str("aspect", aspect).
		Msg("render start")

	for attempt := 1; attempt <= safety.MaxAttempts; attempt++ {
		alog := logger.With().Int("attempt", attempt).Int("max_attempts", safety.MaxAttempts).Logger()
		alog.Info().Str("prompt", truncate(state.prompt, 80)).Msg("submitting")

		uri, url, err := r.attempt(ctx, project, projectID, sceneID, aspect, state)
		if err == nil {
			prompt := state.prompt
			update(func(s *models.Scene) {
				s.Status = models.SceneStatusDone
				s.VideoURI = &uri
				s.VideoURL = &url
				s.VisualPrompt = prompt
				s.ErrorMsg = nil
			})
			alog.Info().Msg("render success")
			return nil
		}

		if ctx.Err() != nil {
			msg := fmt.Sprintf("render cancelled: %v", ctx.Err())
			update(failScene(msg))
			return fmt.Errorf("%w: %s", ErrRenderFailed, msg)
		}

		retryable := safety.IsRetryable(err)
		category := safety.Classify(err.Error())
		alog.Warn().Err(err).Bool("retryable", retryable).Str("category", string(category)).Msg("attempt failed")

		if !retryable {
			update(failScene(errorMessage(err)))
			return fmt.Errorf("%w: %v", ErrRenderFailed, err)
		}
		if attempt == safety.MaxAttempts {
			break
		}

		recovery := safety.SelectStrategy(attempt, state.styleImage)
		alog.Info().Str("strategy", recovery.Strategy.String()).Msg("switching strategy")
		update(setStatus(models.SceneStatusSanitizing))
		state = r.recover(ctx, alog, recovery, state, aspect)
		update(setStatus(models.SceneStatusGenerating))
	}

	logger.Error().Int("attempts", safety.MaxAttempts).Msg("all attempts exhausted")
	update(failScene(MaxRetryMessage))
	return fmt.Errorf("%w: %s", ErrRenderFailed, MaxRetryMessage)
}

// attempt submits once, waits for the result and publishes the clip.
func (r *Renderer) attempt(ctx context.Context, project *models.Project, projectID uuid.UUID, sceneID, aspect string, state attemptState) (string, string, error) {
	handle, err := r.backend.Video.SubmitVideo(ctx, services.VideoRequest{
		Model:       project.VideoModel,
		Prompt:      state.prompt,
		AspectRatio: aspect,
		Image:       state.image,
	})
	if err != nil {
		return "", "", err
	}

	status, err := PollOperation(ctx, r.backend.Video, handle, r.opts.PollInterval, r.opts.PollErrorBackoff, r.opts.MaxPolls)
	if err != nil {
		return "", "", err
	}
	if status.FailureMessage != "" {
		return "", "", fmt.Errorf("%w: %s", safety.ErrGenerationFailed, status.FailureMessage)
	}
	if status.VideoURI == "" {
		if len(status.FilteredReasons) > 0 {
			return "", "", fmt.Errorf("%w: %v", safety.ErrSafetyBlocked, status.FilteredReasons)
		}
		return "", "", safety.ErrNoVideo
	}

	data, err := r.backend.Video.DownloadVideo(ctx, status.VideoURI)
	if err != nil {
		return "", "", err
	}
	if len(data) == 0 {
		return "", "", safety.ErrEmptyDownload
	}

	url, err := r.sink.PublishClip(ctx, projectID, sceneID, data)
	if err != nil {
		return "", "", fmt.Errorf("publish clip: %w", err)
	}
	return status.VideoURI, url, nil
}

// recover applies the selected strategy and returns the state for the next attempt.
// The user's style image never survives a recovery; a generated reference does.
func (r *Renderer) recover(ctx context.Context, logger zerolog.Logger, recovery safety.Recovery, state attemptState, aspect string) attemptState {
	next := state
	if recovery.DropStyleImage && next.styleImage {
		logger.Warn().Msg("dropping style image")
		next.image = nil
		next.styleImage = false
	}

	switch recovery.Strategy {
	case safety.StrategyHardFallback:
		next.prompt = recovery.ReplacePrompt
		logger.Warn().Bool("reference_image", next.image != nil).Msg("hard fallback prompt applied")
		return next

	case safety.StrategyReferenceSwap:
		if recovery.TryReference && r.references != nil {
			if ref := r.references.Generate(ctx, next.prompt, aspect); ref != nil {
				next.image = ref
				logger.Info().Msg("safe reference image created")
				return next
			}
			logger.Warn().Msg("reference generation failed, sanitizing prompt")
		}
		next.prompt = r.sanitize(ctx, logger, next.prompt)
		return next
	}
	return next
}

func (r *Renderer) sanitize(ctx context.Context, logger zerolog.Logger, prompt string) string {
	if r.sanitizer == nil {
		return safety.SanitizerFallbackPrompt
	}
	out, err := r.sanitizer.Sanitize(ctx, prompt)
	if err != nil {
		logger.Warn().Err(err).Msg("sanitizer failed, using generic prompt")
		return safety.SanitizerFallbackPrompt
	}
	logger.Info().Str("prompt", truncate(out, 80)).Msg("sanitized prompt")
	return out
}

func setStatus(status models.SceneStatus) func(*models.Scene) {
	return func(s *models.Scene) { s.Status = status }
}

func failScene(msg string) func(*models.Scene) {
	return func(s *models.Scene) {
		s.Status = models.SceneStatusError
		s.ErrorMsg = &msg
	}
}

func errorMessage(err error) string {
	if msg := err.Error(); msg != "" {
		return msg
	}
	return "Unknown error"
}

func derefOr(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

// truncate shortens s to at most n runes for logging.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
