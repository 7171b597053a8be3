package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bobarin/directorscut/internal/models"
	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const (
	QueuePlanStoryboard = "queue:plan_storyboard"
	QueueRenderScene    = "queue:render_scene"
	QueueRenderBatch    = "queue:render_batch"
)

// Names maps each job type to its Redis list.
var Names = map[models.JobType]string{
	models.JobTypePlanStoryboard: QueuePlanStoryboard,
	models.JobTypeRenderScene:    QueueRenderScene,
	models.JobTypeRenderBatch:    QueueRenderBatch,
}

type Queue struct {
	client *redis.Client
}

type Job struct {
	ID        uuid.UUID      `json:"id"`
	Type      models.JobType `json:"type"`
	ProjectID uuid.UUID      `json:"project_id"`
	SceneID   string         `json:"scene_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

func New(redisURL string) (*Queue, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Queue{client: client}, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client) *Queue {
	return &Queue{client: client}
}

func (q *Queue) Close() error {
	return q.client.Close()
}

func (q *Queue) Enqueue(ctx context.Context, queueName string, job *Job) error {
	job.CreatedAt = time.Now()

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	return q.client.RPush(ctx, queueName, data).Err()
}

// Dequeue blocks up to timeout. It returns (nil, nil) when nothing arrived.
func (q *Queue) Dequeue(ctx context.Context, queueName string, timeout time.Duration) (*Job, error) {
	result, err := q.client.BLPop(ctx, timeout, queueName).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue: %w", err)
	}

	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected redis response")
	}

	return decodeJob(result[1])
}

func decodeJob(raw string) (*Job, error) {
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	if _, ok := Names[job.Type]; !ok {
		return nil, fmt.Errorf("unknown job type %q", job.Type)
	}
	return &job, nil
}

func (q *Queue) GetQueueLength(ctx context.Context, queueName string) (int64, error) {
	return q.client.LLen(ctx, queueName).Result()
}

// EnqueuePlanStoryboard enqueues a storyboard planning job.
func (q *Queue) EnqueuePlanStoryboard(ctx context.Context, projectID, jobID uuid.UUID) error {
	return q.Enqueue(ctx, QueuePlanStoryboard, &Job{
		ID:        jobID,
		Type:      models.JobTypePlanStoryboard,
		ProjectID: projectID,
	})
}

// EnqueueRenderScene enqueues a single scene render.
func (q *Queue) EnqueueRenderScene(ctx context.Context, projectID uuid.UUID, sceneID string, jobID uuid.UUID) error {
	return q.Enqueue(ctx, QueueRenderScene, &Job{
		ID:        jobID,
		Type:      models.JobTypeRenderScene,
		ProjectID: projectID,
		SceneID:   sceneID,
	})
}

// EnqueueRenderBatch enqueues a render of every eligible scene.
func (q *Queue) EnqueueRenderBatch(ctx context.Context, projectID, jobID uuid.UUID) error {
	return q.Enqueue(ctx, QueueRenderBatch, &Job{
		ID:        jobID,
		Type:      models.JobTypeRenderBatch,
		ProjectID: projectID,
	})
}
