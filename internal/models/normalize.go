package models

import "strings"

const (
	AspectRatioLandscape = "16:9"
	AspectRatioPortrait  = "9:16"

	DefaultClipLength     = 5
	DefaultTransitionType = "cut"
	DefaultSceneTitle     = "Scene"
)

// PlannerModels lists the storyboard planner models a project may select.
// The first entry is the default.
var PlannerModels = []string{
	"google/gemini-2.5-flash",
	"google/gemini-2.5-pro",
	"anthropic/claude-sonnet-4",
	"openai/gpt-4o",
}

// VideoModels lists the video generation models a project may select.
// The first entry is the default.
var VideoModels = []string{
	"veo-3.1-fast-generate-preview",
	"veo-3.1-generate-preview",
	"veo-3.0-fast-generate-001",
	"grok-imagine-video",
}

var transitionTypes = []string{"cut", "crossfade", "fadeblack"}

// NormalizeAspectRatio accepts only 16:9 and 9:16; anything else becomes 16:9.
func NormalizeAspectRatio(v string) string {
	if v == AspectRatioPortrait {
		return AspectRatioPortrait
	}
	return AspectRatioLandscape
}

func NormalizeClipLength(v int) int {
	if v <= 0 {
		return DefaultClipLength
	}
	return v
}

func NormalizePlannerModel(v string) string {
	return oneOf(v, PlannerModels)
}

func NormalizeVideoModel(v string) string {
	return oneOf(v, VideoModels)
}

func NormalizeTransitionType(v string) string {
	return oneOf(v, transitionTypes)
}

// NormalizeProject applies defaults to every constrained project setting.
func NormalizeProject(p *Project) {
	p.ClipLength = NormalizeClipLength(p.ClipLength)
	p.AspectRatio = NormalizeAspectRatio(p.AspectRatio)
	p.TransitionType = NormalizeTransitionType(p.TransitionType)
	p.PlannerModel = NormalizePlannerModel(p.PlannerModel)
	p.VideoModel = NormalizeVideoModel(p.VideoModel)
	if p.Status == "" {
		p.Status = ProjectStatusDraft
	}
	if p.AudioDuration < 0 {
		p.AudioDuration = 0
	}
}

// NormalizeScene repairs a scene loaded from storage or produced by the planner.
// Playback URLs never survive a load.
func NormalizeScene(s *Scene) {
	if !s.Status.Valid() {
		s.Status = SceneStatusPending
	}
	if strings.TrimSpace(s.Description) == "" {
		s.Description = DefaultSceneTitle
	}
	if s.VideoURI != nil && *s.VideoURI == "" {
		s.VideoURI = nil
	}
	s.VideoURL = nil
}

func oneOf(v string, allowed []string) string {
	for _, a := range allowed {
		if v == a {
			return v
		}
	}
	return allowed[0]
}
