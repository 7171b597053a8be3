// Package planner turns lyrics and song length into a storyboard of
// fixed-length scenes with video prompts.
package planner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/bobarin/directorscut/internal/services"
	"github.com/rs/zerolog/log"
	"google.golang.org/genai"
)

var (
	ErrNoAudio  = errors.New("audio duration is required to plan a storyboard")
	ErrNoLyrics = errors.New("lyrics or vibe description is required to plan a storyboard")
)

const (
	plannerUserMessage = "Plan the music video storyboard."
	plannerTemperature = 0.8
)

// sceneSchema constrains structured output to {scenes:[...]}
var sceneSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"scenes": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"id":           {Type: genai.TypeString},
					"startTime":    {Type: genai.TypeNumber},
					"endTime":      {Type: genai.TypeNumber},
					"description":  {Type: genai.TypeString},
					"visualPrompt": {Type: genai.TypeString},
				},
				Required: []string{"id", "startTime", "endTime", "visualPrompt"},
			},
		},
	},
	Required: []string{"scenes"},
}

type plannedScene struct {
	ID           string  `json:"id"`
	StartTime    float64 `json:"startTime"`
	EndTime      float64 `json:"endTime"`
	Description  string  `json:"description"`
	VisualPrompt string  `json:"visualPrompt"`
}

type storyboard struct {
	Scenes []plannedScene `json:"scenes"`
}

type Planner struct {
	text services.TextGenerator
}

func New(text services.TextGenerator) *Planner {
	return &Planner{text: text}
}

// SceneCount is the number of clips needed to cover the song.
func SceneCount(audioDuration float64, clipLength int) int {
	if audioDuration <= 0 || clipLength <= 0 {
		return 0
	}
	return int(math.Ceil(audioDuration / float64(clipLength)))
}

// Plan asks the text model for a storyboard and fits it onto the song's timeline.
func (p *Planner) Plan(ctx context.Context, project *models.Project) ([]models.Scene, error) {
	if project.AudioDuration <= 0 {
		return nil, ErrNoAudio
	}
	if strings.TrimSpace(project.Lyrics) == "" {
		return nil, ErrNoLyrics
	}

	clipLength := models.NormalizeClipLength(project.ClipLength)
	count := SceneCount(project.AudioDuration, clipLength)

	logger := log.With().Str("project_id", project.ID.String()).Logger()
	logger.Info().
		Float64("audio_duration", project.AudioDuration).
		Int("clip_length", clipLength).
		Int("scenes", count).
		Str("model", project.PlannerModel).
		Msg("planning storyboard")

	raw, err := p.text.GenerateText(ctx, services.TextRequest{
		Model:             project.PlannerModel,
		SystemInstruction: buildSystemInstruction(project, count, clipLength),
		UserMessage:       plannerUserMessage,
		Temperature:       float32Ptr(plannerTemperature),
		Schema:            sceneSchema,
	})
	if err != nil {
		return nil, fmt.Errorf("generate storyboard: %w", err)
	}

	board, err := parseStoryboard(raw)
	if err != nil {
		const maxLogLen = 2000
		logger.Error().Err(err).Str("raw", truncate(raw, maxLogLen)).Msg("storyboard parse failed")
		return nil, err
	}

	scenes, err := fitTimeline(board.Scenes, count, clipLength, project.AudioDuration)
	if err != nil {
		return nil, err
	}
	for i := range scenes {
		scenes[i].ProjectID = project.ID
	}

	logger.Info().Int("scenes", len(scenes)).Msg("storyboard planned")
	return scenes, nil
}

func parseStoryboard(raw string) (*storyboard, error) {
	raw = strings.TrimSpace(raw)
	// Some routed models wrap JSON in a markdown fence
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")

	var board storyboard
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &board); err != nil {
		return nil, fmt.Errorf("failed to parse storyboard: %w", err)
	}
	if len(board.Scenes) == 0 {
		return nil, fmt.Errorf("storyboard has no scenes")
	}
	return &board, nil
}

// fitTimeline assigns ids and times by position: scene i covers
// [i*clipLength, min((i+1)*clipLength, duration)]. Extra planned scenes are
// dropped; a short plan is an error.
func fitTimeline(planned []plannedScene, count, clipLength int, duration float64) ([]models.Scene, error) {
	if len(planned) < count {
		return nil, fmt.Errorf("storyboard has %d scenes, expected %d", len(planned), count)
	}

	scenes := make([]models.Scene, count)
	for i := 0; i < count; i++ {
		ps := planned[i]
		prompt := strings.TrimSpace(ps.VisualPrompt)
		if prompt == "" {
			return nil, fmt.Errorf("scene %d has no visual prompt", i)
		}
		desc := strings.TrimSpace(ps.Description)
		if desc == "" {
			desc = models.DefaultSceneTitle
		}

		start := float64(i * clipLength)
		end := math.Min(float64((i+1)*clipLength), duration)
		scenes[i] = models.Scene{
			ID:           fmt.Sprintf("scene-%d", i),
			SceneIndex:   i,
			StartTime:    start,
			EndTime:      end,
			Description:  desc,
			VisualPrompt: prompt,
			Status:       models.SceneStatusPending,
		}
	}
	return scenes, nil
}

func float32Ptr(v float32) *float32 { return &v }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
