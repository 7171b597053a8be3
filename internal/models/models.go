package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enums
type ProjectStatus string

const (
	ProjectStatusDraft     ProjectStatus = "draft"
	ProjectStatusPlanning  ProjectStatus = "planning"
	ProjectStatusPlanned   ProjectStatus = "planned"
	ProjectStatusRendering ProjectStatus = "rendering"
	ProjectStatusFailed    ProjectStatus = "failed"
)

// SceneStatus is the render lifecycle of a single scene.
type SceneStatus string

const (
	SceneStatusPending    SceneStatus = "pending"
	SceneStatusGenerating SceneStatus = "generating"
	SceneStatusSanitizing SceneStatus = "sanitizing"
	SceneStatusDone       SceneStatus = "done"
	SceneStatusError      SceneStatus = "error"
)

// Valid reports whether s is one of the known scene statuses.
func (s SceneStatus) Valid() bool {
	switch s {
	case SceneStatusPending, SceneStatusGenerating, SceneStatusSanitizing, SceneStatusDone, SceneStatusError:
		return true
	}
	return false
}

// InFlight reports whether a render is currently working on the scene.
func (s SceneStatus) InFlight() bool {
	return s == SceneStatusGenerating || s == SceneStatusSanitizing
}

type AssetType string

const (
	AssetTypeAudio     AssetType = "audio"
	AssetTypeClipVideo AssetType = "clip_video"
)

type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

type JobType string

const (
	JobTypePlanStoryboard JobType = "plan_storyboard"
	JobTypeRenderScene    JobType = "render_scene"
	JobTypeRenderBatch    JobType = "render_batch"
)

// JSONB is a custom type for PostgreSQL JSONB columns
type JSONB map[string]interface{}

func (j JSONB) Value() (driver.Value, error) {
	return json.Marshal(j)
}

func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported JSONB source type %T", value)
	}
	return json.Unmarshal(bytes, j)
}

// Models

type Project struct {
	ID               uuid.UUID     `json:"id"`
	Lyrics           string        `json:"lyrics"`
	ClipLength       int           `json:"clip_length"`  // seconds per scene
	AspectRatio      string        `json:"aspect_ratio"` // "16:9" or "9:16"
	StyleImageBase64 *string       `json:"style_image_base64,omitempty"`
	StyleImageMime   *string       `json:"style_image_mime,omitempty"`
	AudioDuration    float64       `json:"audio_duration"`
	AudioPath        *string       `json:"audio_path,omitempty"`
	TransitionType   string        `json:"transition_type"`
	PlannerModel     string        `json:"planner_model"`
	VideoModel       string        `json:"video_model"`
	Status           ProjectStatus `json:"status"`
	ErrorMessage     *string       `json:"error_message,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

// HasStyleImage reports whether the project carries a user supplied style reference.
func (p *Project) HasStyleImage() bool {
	return p.StyleImageBase64 != nil && *p.StyleImageBase64 != ""
}

// Scene is one time-bounded segment of the song and its generated clip.
// VideoURL is a playback handle derived from VideoURI and is never written to the database.
type Scene struct {
	ID           string      `json:"id"`
	ProjectID    uuid.UUID   `json:"project_id"`
	SceneIndex   int         `json:"scene_index"`
	StartTime    float64     `json:"start_time"`
	EndTime      float64     `json:"end_time"`
	Description  string      `json:"description"`
	VisualPrompt string      `json:"visual_prompt"`
	Status       SceneStatus `json:"status"`
	VideoURI     *string     `json:"video_uri,omitempty"`
	VideoURL     *string     `json:"video_url,omitempty"`
	ErrorMsg     *string     `json:"error_msg,omitempty"`
	UpdatedAt    time.Time   `json:"updated_at"`
}

// Clone returns a deep copy of the scene.
func (s Scene) Clone() Scene {
	out := s
	out.VideoURI = cloneString(s.VideoURI)
	out.VideoURL = cloneString(s.VideoURL)
	out.ErrorMsg = cloneString(s.ErrorMsg)
	return out
}

// Persisted returns the scene as it is written to durable storage.
func (s Scene) Persisted() Scene {
	out := s.Clone()
	out.VideoURL = nil
	return out
}

type Asset struct {
	ID            uuid.UUID `json:"id"`
	ProjectID     uuid.UUID `json:"project_id"`
	SceneID       *string   `json:"scene_id,omitempty"`
	Type          AssetType `json:"type"`
	StorageBucket string    `json:"storage_bucket"`
	StoragePath   string    `json:"storage_path"`
	ContentType   *string   `json:"content_type,omitempty"`
	ByteSize      *int64    `json:"byte_size,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

type Job struct {
	ID           uuid.UUID  `json:"id"`
	ProjectID    uuid.UUID  `json:"project_id"`
	SceneID      *string    `json:"scene_id,omitempty"`
	Type         JobType    `json:"type"`
	Status       JobStatus  `json:"status"`
	Attempts     int        `json:"attempts"`
	Result       JSONB      `json:"result,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	ErrorMessage *string    `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// BatchResult is the aggregate outcome of a render-all run. Skipped counts
// scenes another render already held when the batch reached them.
type BatchResult struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (r BatchResult) String() string {
	if r.Skipped > 0 {
		return fmt.Sprintf("%d succeeded, %d failed, %d skipped", r.Succeeded, r.Failed, r.Skipped)
	}
	return fmt.Sprintf("%d succeeded, %d failed", r.Succeeded, r.Failed)
}

// JSONB converts the result for storage on a job row.
func (r BatchResult) JSONB() JSONB {
	return JSONB{"total": r.Total, "succeeded": r.Succeeded, "failed": r.Failed, "skipped": r.Skipped}
}

// DTOs for API responses
type ProjectResponse struct {
	Project
	Scenes []Scene `json:"scenes"`
}

// ProjectExport is the persisted snapshot of a project. Scene playback URLs are omitted.
type ProjectExport struct {
	Project Project `json:"project"`
	Scenes  []Scene `json:"scenes"`
}

type CreateProjectRequest struct {
	Lyrics           string   `json:"lyrics"`
	ClipLength       *int     `json:"clip_length,omitempty"`    // Default: 5
	AspectRatio      *string  `json:"aspect_ratio,omitempty"`   // Default: "16:9"
	StyleImageBase64 *string  `json:"style_image_base64,omitempty"`
	StyleImageMime   *string  `json:"style_image_mime,omitempty"`
	AudioDuration    *float64 `json:"audio_duration,omitempty"` // Normally set by the audio upload
	TransitionType   *string  `json:"transition_type,omitempty"`
	PlannerModel     *string  `json:"planner_model,omitempty"`
	VideoModel       *string  `json:"video_model,omitempty"`
}

type UpdateProjectRequest struct {
	Lyrics           *string  `json:"lyrics,omitempty"`
	ClipLength       *int     `json:"clip_length,omitempty"`
	AspectRatio      *string  `json:"aspect_ratio,omitempty"`
	StyleImageBase64 *string  `json:"style_image_base64,omitempty"`
	StyleImageMime   *string  `json:"style_image_mime,omitempty"`
	AudioDuration    *float64 `json:"audio_duration,omitempty"`
	TransitionType   *string  `json:"transition_type,omitempty"`
	PlannerModel     *string  `json:"planner_model,omitempty"`
	VideoModel       *string  `json:"video_model,omitempty"`
}

type JobResponse struct {
	JobID  uuid.UUID `json:"job_id"`
	Type   JobType   `json:"type"`
	Status JobStatus `json:"status"`
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
