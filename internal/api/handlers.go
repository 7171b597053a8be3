package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bobarin/directorscut/internal/app"
	"github.com/bobarin/directorscut/internal/db"
	"github.com/bobarin/directorscut/internal/models"
	"github.com/bobarin/directorscut/internal/queue"
	"github.com/bobarin/directorscut/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxAudioUpload = 100 << 20

// JobQueue hands work to the worker.
type JobQueue interface {
	EnqueuePlanStoryboard(ctx context.Context, projectID, jobID uuid.UUID) error
	EnqueueRenderScene(ctx context.Context, projectID uuid.UUID, sceneID string, jobID uuid.UUID) error
	EnqueueRenderBatch(ctx context.Context, projectID, jobID uuid.UUID) error
	GetQueueLength(ctx context.Context, queueName string) (int64, error)
}

// Database is the slice of the database the handlers read directly.
type Database interface {
	ListProjects(ctx context.Context, limit, offset int) ([]models.Project, error)
	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	GetProjectJobs(ctx context.Context, projectID uuid.UUID) ([]models.Job, error)
	GetProjectAssets(ctx context.Context, projectID uuid.UUID) ([]models.Asset, error)
}

type Handler struct {
	pipeline *app.Pipeline
	db       Database
	queue    JobQueue
}

func NewHandler(pipeline *app.Pipeline, database Database, q JobQueue) *Handler {
	return &Handler{
		pipeline: pipeline,
		db:       database,
		queue:    q,
	}
}

// CreateProject handles POST /v1/projects
func (h *Handler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var req models.CreateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	project := &models.Project{
		ID:               uuid.New(),
		Lyrics:           strings.TrimSpace(req.Lyrics),
		StyleImageBase64: req.StyleImageBase64,
		StyleImageMime:   req.StyleImageMime,
		Status:           models.ProjectStatusDraft,
	}
	if req.ClipLength != nil {
		project.ClipLength = *req.ClipLength
	}
	if req.AspectRatio != nil {
		project.AspectRatio = *req.AspectRatio
	}
	if req.AudioDuration != nil {
		project.AudioDuration = *req.AudioDuration
	}
	if req.TransitionType != nil {
		project.TransitionType = *req.TransitionType
	}
	if req.PlannerModel != nil {
		project.PlannerModel = *req.PlannerModel
	}
	if req.VideoModel != nil {
		project.VideoModel = *req.VideoModel
	}

	if err := h.pipeline.Store.CreateProject(r.Context(), project); err != nil {
		log.Error().Err(err).Msg("create project")
		respondError(w, http.StatusInternalServerError, "Failed to create project")
		return
	}

	respondJSON(w, http.StatusCreated, models.ProjectResponse{Project: *project, Scenes: []models.Scene{}})
}

// ListProjects handles GET /v1/projects
// Query params:
//   - limit:  max results per page (default 20, max 100)
//   - offset: number of results to skip (default 0)
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > 100 {
		limit = 100
	}

	offset := 0
	if o := r.URL.Query().Get("offset"); o != "" {
		if parsed, err := strconv.Atoi(o); err == nil && parsed >= 0 {
			offset = parsed
		}
	}

	projects, err := h.db.ListProjects(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to list projects")
		return
	}
	if projects == nil {
		projects = []models.Project{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"projects": projects,
		"limit":    limit,
		"offset":   offset,
	})
}

// GetProject handles GET /v1/projects/{id}. Missing playback URLs are
// restored in the background; clients see them through the events stream.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}

	view, err := h.pipeline.View(r.Context(), projectID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// UpdateProject handles PATCH /v1/projects/{id}
func (h *Handler) UpdateProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}

	var req models.UpdateProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	project, err := h.pipeline.Store.UpdateProject(r.Context(), projectID, func(p *models.Project) {
		applyUpdate(p, &req)
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, project)
}

func applyUpdate(p *models.Project, req *models.UpdateProjectRequest) {
	if req.Lyrics != nil {
		p.Lyrics = strings.TrimSpace(*req.Lyrics)
	}
	if req.ClipLength != nil {
		p.ClipLength = *req.ClipLength
	}
	if req.AspectRatio != nil {
		p.AspectRatio = *req.AspectRatio
	}
	if req.StyleImageBase64 != nil {
		// An empty string removes the style image
		if *req.StyleImageBase64 == "" {
			p.StyleImageBase64, p.StyleImageMime = nil, nil
		} else {
			p.StyleImageBase64 = req.StyleImageBase64
			p.StyleImageMime = req.StyleImageMime
		}
	}
	if req.AudioDuration != nil {
		p.AudioDuration = *req.AudioDuration
	}
	if req.TransitionType != nil {
		p.TransitionType = *req.TransitionType
	}
	if req.PlannerModel != nil {
		p.PlannerModel = *req.PlannerModel
	}
	if req.VideoModel != nil {
		p.VideoModel = *req.VideoModel
	}
}

// ClearScenes handles DELETE /v1/projects/{id}/scenes
func (h *Handler) ClearScenes(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}

	scenes, err := h.pipeline.Store.ListScenes(r.Context(), projectID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	for _, s := range scenes {
		if s.Status.InFlight() {
			respondError(w, http.StatusConflict, "Scenes are still rendering")
			return
		}
	}

	if err := h.pipeline.Store.ClearScenes(r.Context(), projectID); err != nil {
		respondStoreError(w, err)
		return
	}
	if _, err := h.pipeline.Store.UpdateProject(r.Context(), projectID, func(p *models.Project) {
		p.Status = models.ProjectStatusDraft
		p.ErrorMessage = nil
	}); err != nil {
		respondStoreError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ExportProject handles GET /v1/projects/{id}/export
func (h *Handler) ExportProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}

	export, err := h.pipeline.Store.Export(r.Context(), projectID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	w.Header().Set("Content-Disposition", `attachment; filename="project-`+projectID.String()+`.json"`)
	respondJSON(w, http.StatusOK, export)
}

// UploadAudio handles POST /v1/projects/{id}/audio (multipart field "audio").
// The song length comes from ffprobe; a positive "duration" form field is
// used when probing is unavailable.
func (h *Handler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	if _, err := h.pipeline.Store.GetProject(r.Context(), projectID); err != nil {
		respondStoreError(w, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid multipart upload")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		respondError(w, http.StatusBadRequest, "Missing audio file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil || len(data) == 0 {
		respondError(w, http.StatusBadRequest, "Empty audio file")
		return
	}

	duration := h.audioDuration(r, data, filepath.Ext(header.Filename))
	if duration <= 0 {
		respondError(w, http.StatusUnprocessableEntity, "Could not determine audio duration")
		return
	}

	path, err := h.pipeline.Publisher.PublishAudio(r.Context(), projectID, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		log.Error().Err(err).Str("project_id", projectID.String()).Msg("audio upload")
		respondError(w, http.StatusBadGateway, "Failed to store audio")
		return
	}

	project, err := h.pipeline.Store.UpdateProject(r.Context(), projectID, func(p *models.Project) {
		p.AudioDuration = duration
		p.AudioPath = &path
	})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, project)
}

func (h *Handler) audioDuration(r *http.Request, data []byte, ext string) float64 {
	if h.pipeline.Probe != nil {
		d, err := h.pipeline.Probe.ProbeReader(r.Context(), bytes.NewReader(data), ext)
		if err == nil {
			return d
		}
		log.Warn().Err(err).Msg("ffprobe could not read upload")
	}
	if v := r.FormValue("duration"); v != "" {
		if d, err := strconv.ParseFloat(v, 64); err == nil && d > 0 {
			return d
		}
	}
	return 0
}

// PlanProject handles POST /v1/projects/{id}/plan
func (h *Handler) PlanProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}

	snap, err := h.pipeline.Store.Snapshot(r.Context(), projectID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if snap.AudioDuration <= 0 {
		respondError(w, http.StatusBadRequest, "Upload audio before planning")
		return
	}
	if snap.Lyrics == "" {
		respondError(w, http.StatusBadRequest, "Lyrics or vibe description is required")
		return
	}
	for _, s := range snap.Scenes {
		if s.Status.InFlight() {
			respondError(w, http.StatusConflict, "Scenes are still rendering")
			return
		}
	}

	h.enqueue(w, r, &models.Job{ProjectID: projectID, Type: models.JobTypePlanStoryboard}, func(ctx context.Context, jobID uuid.UUID) error {
		return h.queue.EnqueuePlanStoryboard(ctx, projectID, jobID)
	})
}

// RenderScene handles POST /v1/projects/{id}/scenes/{sceneId}/render
func (h *Handler) RenderScene(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}
	sceneID := chi.URLParam(r, "sceneId")

	scene, err := h.pipeline.Store.GetScene(r.Context(), projectID, sceneID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if scene.Status.InFlight() {
		respondError(w, http.StatusConflict, "Scene is already rendering")
		return
	}

	h.enqueue(w, r, &models.Job{ProjectID: projectID, SceneID: &sceneID, Type: models.JobTypeRenderScene}, func(ctx context.Context, jobID uuid.UUID) error {
		return h.queue.EnqueueRenderScene(ctx, projectID, sceneID, jobID)
	})
}

// RenderProject handles POST /v1/projects/{id}/render
func (h *Handler) RenderProject(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}

	scenes, err := h.pipeline.Store.ListScenes(r.Context(), projectID)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if len(scenes) == 0 {
		respondError(w, http.StatusBadRequest, "Plan a storyboard before rendering")
		return
	}

	h.enqueue(w, r, &models.Job{ProjectID: projectID, Type: models.JobTypeRenderBatch}, func(ctx context.Context, jobID uuid.UUID) error {
		return h.queue.EnqueueRenderBatch(ctx, projectID, jobID)
	})
}

// enqueue records the job row, pushes it to the queue and answers 202.
func (h *Handler) enqueue(w http.ResponseWriter, r *http.Request, job *models.Job, push func(context.Context, uuid.UUID) error) {
	job.ID = uuid.New()
	job.Status = models.JobStatusQueued

	if err := h.db.CreateJob(r.Context(), job); err != nil {
		log.Error().Err(err).Msg("create job")
		respondError(w, http.StatusInternalServerError, "Failed to create job")
		return
	}
	if err := push(r.Context(), job.ID); err != nil {
		log.Error().Err(err).Str("job_id", job.ID.String()).Msg("enqueue job")
		respondError(w, http.StatusInternalServerError, "Failed to enqueue job")
		return
	}

	respondJSON(w, http.StatusAccepted, models.JobResponse{JobID: job.ID, Type: job.Type, Status: job.Status})
}

// GetProjectJobs handles GET /v1/projects/{id}/jobs
func (h *Handler) GetProjectJobs(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}

	jobs, err := h.db.GetProjectJobs(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get jobs")
		return
	}
	if jobs == nil {
		jobs = []models.Job{}
	}
	respondJSON(w, http.StatusOK, jobs)
}

// GetProjectAssets handles GET /v1/projects/{id}/assets
func (h *Handler) GetProjectAssets(w http.ResponseWriter, r *http.Request) {
	projectID, ok := projectIDParam(w, r)
	if !ok {
		return
	}

	assets, err := h.db.GetProjectAssets(r.Context(), projectID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get assets")
		return
	}
	if assets == nil {
		assets = []models.Asset{}
	}
	respondJSON(w, http.StatusOK, assets)
}

// GetJob handles GET /v1/jobs/{jobId}
func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "jobId"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid job ID")
		return
	}

	job, err := h.db.GetJob(r.Context(), jobID)
	if errors.Is(err, db.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}
	respondJSON(w, http.StatusOK, job)
}

func projectIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	projectID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid project ID")
		return uuid.Nil, false
	}
	return projectID, true
}

func respondStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrProjectNotFound):
		respondError(w, http.StatusNotFound, "Project not found")
	case errors.Is(err, store.ErrSceneNotFound):
		respondError(w, http.StatusNotFound, "Scene not found")
	default:
		log.Error().Err(err).Msg("store error")
		respondError(w, http.StatusInternalServerError, "Internal error")
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// Health reports liveness and the depth of each job queue.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	depths := make(map[string]int64, len(queue.Names))
	for _, name := range queue.Names {
		n, err := h.queue.GetQueueLength(r.Context(), name)
		if err != nil {
			log.Warn().Err(err).Str("queue", name).Msg("queue length unavailable")
			respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "degraded"})
			return
		}
		depths[name] = n
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "queues": depths})
}
