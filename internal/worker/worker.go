package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/bobarin/directorscut/internal/queue"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const dequeueTimeout = 5 * time.Second

// Source hands out queued jobs.
type Source interface {
	Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*queue.Job, error)
}

// JobStore records job progress.
type JobStore interface {
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status models.JobStatus) error
	CompleteJob(ctx context.Context, id uuid.UUID, result models.JSONB) error
	UpdateJobError(ctx context.Context, id uuid.UUID, errorMessage string) error
}

// Pipeline runs the work behind each job type.
type Pipeline interface {
	PlanProject(ctx context.Context, projectID uuid.UUID) (int, error)
	RenderScene(ctx context.Context, projectID uuid.UUID, sceneID string) error
	RenderProject(ctx context.Context, projectID uuid.UUID) (models.BatchResult, error)
}

type Worker struct {
	source   Source
	jobs     JobStore
	pipeline Pipeline
}

func New(source Source, jobs JobStore, pipeline Pipeline) *Worker {
	return &Worker{source: source, jobs: jobs, pipeline: pipeline}
}

// Start runs concurrency consumers per queue until ctx is cancelled.
func (w *Worker) Start(ctx context.Context, concurrency int) {
	log.Info().Int("concurrency", concurrency).Msg("worker started")

	for i := 0; i < concurrency; i++ {
		go w.processQueue(ctx, queue.QueuePlanStoryboard)
		go w.processQueue(ctx, queue.QueueRenderScene)
		go w.processQueue(ctx, queue.QueueRenderBatch)
	}

	<-ctx.Done()
	log.Info().Msg("worker shutting down")
}

func (w *Worker) processQueue(ctx context.Context, queueName string) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := w.source.Dequeue(ctx, queueName, dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error().Err(err).Str("queue", queueName).Msg("dequeue error")
			time.Sleep(time.Second)
			continue
		}
		if job == nil {
			continue
		}

		w.Process(ctx, job)
	}
}

// Process runs one job and records its outcome on the job row.
func (w *Worker) Process(ctx context.Context, job *queue.Job) {
	logger := log.With().
		Str("job_id", job.ID.String()).
		Str("type", string(job.Type)).
		Str("project_id", job.ProjectID.String()).
		Logger()
	logger.Info().Msg("processing job")

	if err := w.jobs.UpdateJobStatus(ctx, job.ID, models.JobStatusRunning); err != nil {
		logger.Warn().Err(err).Msg("job status update failed")
	}

	result, err := w.handle(ctx, job)

	// Outcome must be recorded even if the worker is shutting down
	recordCtx := context.WithoutCancel(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("job failed")
		if uerr := w.jobs.UpdateJobError(recordCtx, job.ID, err.Error()); uerr != nil {
			logger.Warn().Err(uerr).Msg("job error not recorded")
		}
		return
	}

	if uerr := w.jobs.CompleteJob(recordCtx, job.ID, result); uerr != nil {
		logger.Warn().Err(uerr).Msg("job result not recorded")
	}
	logger.Info().Msg("job completed")
}

func (w *Worker) handle(ctx context.Context, job *queue.Job) (models.JSONB, error) {
	switch job.Type {
	case models.JobTypePlanStoryboard:
		n, err := w.pipeline.PlanProject(ctx, job.ProjectID)
		if err != nil {
			return nil, err
		}
		return models.JSONB{"scenes": n}, nil

	case models.JobTypeRenderScene:
		if job.SceneID == "" {
			return nil, errors.New("scene ID missing")
		}
		if err := w.pipeline.RenderScene(ctx, job.ProjectID, job.SceneID); err != nil {
			return nil, err
		}
		return models.JSONB{"scene_id": job.SceneID}, nil

	case models.JobTypeRenderBatch:
		// Scene failures are reported in the counts, not as a job failure
		res, err := w.pipeline.RenderProject(ctx, job.ProjectID)
		if err != nil {
			return nil, err
		}
		return res.JSONB(), nil
	}
	return nil, fmt.Errorf("unknown job type %q", job.Type)
}
