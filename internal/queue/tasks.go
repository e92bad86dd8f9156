package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"elearning-platform/internal/rag"
	"elearning-platform/services"
)

const (
	TaskIngestMaterial = "material:ingest"

	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues is the weighted queue layout served by the worker.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

type IngestPayload struct {
	MaterialID string `json:"material_id"`
	ChunkSize  int    `json:"chunk_size,omitempty"`
	Overlap    int    `json:"overlap,omitempty"`
}

// NewIngestTask builds an ingestion task. The task id is derived from the
// material so a material is queued at most once at a time.
func NewIngestTask(materialID string, chunkSize, overlap int) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		MaterialID: materialID,
		ChunkSize:  chunkSize,
		Overlap:    overlap,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestMaterial,
		payload,
		asynq.TaskID(ingestTaskID(materialID)),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
		asynq.Queue(QueueDefault),
	), nil
}

func ingestTaskID(materialID string) string {
	return "ingest:" + materialID
}

// Enqueuer schedules ingestion tasks on Redis.
type Enqueuer struct {
	client *asynq.Client
}

func NewEnqueuer(opt asynq.RedisConnOpt) *Enqueuer {
	return &Enqueuer{client: asynq.NewClient(opt)}
}

// EnqueueIngest queues ingestion of a stored material and returns the task
// id. Queuing a material that is already waiting is not an error.
func (e *Enqueuer) EnqueueIngest(ctx context.Context, materialID string, chunkSize, overlap int) (string, error) {
	task, err := NewIngestTask(materialID, chunkSize, overlap)
	if err != nil {
		return "", err
	}
	info, err := e.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return ingestTaskID(materialID), nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to enqueue ingestion of %s: %w", materialID, err)
	}
	slog.Info("Ingestion queued", "material_id", materialID, "task_id", info.ID, "queue", info.Queue)
	return info.ID, nil
}

func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// MaterialProcessor is satisfied by *services.MaterialService.
type MaterialProcessor interface {
	Process(ctx context.Context, materialID string, chunkSize, overlap int) (*rag.IngestResult, error)
}

type TaskProcessor struct {
	materials MaterialProcessor
	logger    *slog.Logger
}

func NewTaskProcessor(materials MaterialProcessor, logger *slog.Logger) *TaskProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskProcessor{materials: materials, logger: logger}
}

// ProcessIngest runs one ingestion task. Errors retrying cannot fix are
// wrapped with asynq.SkipRetry.
func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.MaterialID == "" {
		return fmt.Errorf("invalid ingest payload: %w", asynq.SkipRetry)
	}

	p.logger.Info("Processing material", "material_id", payload.MaterialID)
	result, err := p.materials.Process(ctx, payload.MaterialID, payload.ChunkSize, payload.Overlap)
	if err != nil {
		if permanent(err) {
			p.logger.Warn("Dropping ingestion task", "material_id", payload.MaterialID, "error", err)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		return err
	}

	p.logger.Info("Material processed", "material_id", payload.MaterialID, "stored", result.Stored, "skipped", len(result.Failures))
	return nil
}

func permanent(err error) bool {
	return errors.Is(err, services.ErrNotFound) ||
		errors.Is(err, services.ErrInvalidID) ||
		errors.Is(err, rag.ErrConfiguration) ||
		errors.Is(err, rag.ErrDimensionMismatch)
}

// NewServeMux registers the task handlers.
func NewServeMux(p *TaskProcessor) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskIngestMaterial, p.ProcessIngest)
	return mux
}
