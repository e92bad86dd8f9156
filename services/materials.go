package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"elearning-platform/internal/rag"
	"elearning-platform/internal/telemetry"
	"elearning-platform/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ScopeKey is the metadata key retrieval is scoped by.
const ScopeKey = "subject_id"

type MaterialRepository interface {
	Create(ctx context.Context, m *models.Material) error
	Get(ctx context.Context, id string) (*models.Material, error)
	List(ctx context.Context, subjectID string) ([]models.Material, error)
	Update(ctx context.Context, id string, fields bson.M) error
	Delete(ctx context.Context, id string) error
	IDs(ctx context.Context) ([]string, error)
}

// Ingester is satisfied by *rag.Pipeline.
type Ingester interface {
	Ingest(ctx context.Context, req rag.IngestRequest) (*rag.IngestResult, error)
	DeleteSource(ctx context.Context, sourceID string) error
	Config() rag.Config
}

// Querier is satisfied by *rag.Pipeline and *cache.CachedQuerier.
type Querier interface {
	Query(ctx context.Context, req rag.QueryRequest) (*rag.QueryResult, error)
}

// IngestEnqueuer schedules background ingestion of a stored material.
type IngestEnqueuer interface {
	EnqueueIngest(ctx context.Context, materialID string, chunkSize, overlap int) (string, error)
}

// ScopeInvalidator drops cached query contexts for a scope.
type ScopeInvalidator interface {
	InvalidateScope(ctx context.Context, scope *rag.Scope) error
}

type MongoMaterialRepository struct {
	col *mongo.Collection
}

func NewMongoMaterialRepository(db *mongo.Database) *MongoMaterialRepository {
	return &MongoMaterialRepository{col: db.Collection("materials")}
}

func (r *MongoMaterialRepository) Create(ctx context.Context, m *models.Material) error {
	res, err := r.col.InsertOne(ctx, m)
	if err != nil {
		return err
	}
	m.ID = insertedID(res)
	return nil
}

func (r *MongoMaterialRepository) Get(ctx context.Context, id string) (*models.Material, error) {
	oid, err := objectID(id)
	if err != nil {
		return nil, err
	}
	var m models.Material
	if err := r.col.FindOne(ctx, bson.M{"_id": oid}).Decode(&m); err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (r *MongoMaterialRepository) List(ctx context.Context, subjectID string) ([]models.Material, error) {
	query := bson.M{}
	if subjectID != "" {
		query["subject_id"] = subjectID
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetProjection(bson.M{"content": 0})
	cursor, err := r.col.Find(ctx, query, opts)
	if err != nil {
		return nil, err
	}
	materials := []models.Material{}
	if err := cursor.All(ctx, &materials); err != nil {
		return nil, err
	}
	return materials, nil
}

func (r *MongoMaterialRepository) Update(ctx context.Context, id string, fields bson.M) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.col.UpdateByID(ctx, oid, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoMaterialRepository) Delete(ctx context.Context, id string) error {
	oid, err := objectID(id)
	if err != nil {
		return err
	}
	res, err := r.col.DeleteOne(ctx, bson.M{"_id": oid})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *MongoMaterialRepository) IDs(ctx context.Context) ([]string, error) {
	cursor, err := r.col.Find(ctx, bson.M{}, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	var docs []struct {
		ID any `bson:"_id"`
	}
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		switch v := d.ID.(type) {
		case interface{ Hex() string }:
			ids = append(ids, v.Hex())
		default:
			ids = append(ids, fmt.Sprint(v))
		}
	}
	return ids, nil
}

// MaterialUpload is a validated upload ready to be stored.
type MaterialUpload struct {
	Request     models.CreateMaterialRequest
	Content     string
	ContentType string
	Pages       int
}

// MaterialService stores study materials and keeps their embeddings in sync.
type MaterialService struct {
	repo         MaterialRepository
	ingester     Ingester
	querier      Querier
	enqueuer     IngestEnqueuer
	invalidator  ScopeInvalidator
	metrics      *telemetry.Metrics
	logger       *slog.Logger
	asyncMinSize int
	now          func() time.Time
}

type MaterialServiceConfig struct {
	Repo     MaterialRepository
	Ingester Ingester
	Querier  Querier
	// Optional collaborators.
	Enqueuer    IngestEnqueuer
	Invalidator ScopeInvalidator
	Metrics     *telemetry.Metrics
	Logger      *slog.Logger
	// AsyncMinSize routes uploads of at least this many bytes to the queue
	// even without async=true. Zero disables it.
	AsyncMinSize int
}

func NewMaterialService(cfg MaterialServiceConfig) *MaterialService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &MaterialService{
		repo:         cfg.Repo,
		ingester:     cfg.Ingester,
		querier:      cfg.Querier,
		enqueuer:     cfg.Enqueuer,
		invalidator:  cfg.Invalidator,
		metrics:      cfg.Metrics,
		logger:       logger,
		asyncMinSize: cfg.AsyncMinSize,
		now:          time.Now,
	}
}

// Create stores the material and ingests it, inline or through the queue.
// An inline ingestion failure leaves the material in the failed state and is
// returned together with the stored material.
func (s *MaterialService) Create(ctx context.Context, uploaderID string, up MaterialUpload) (*models.MaterialResponse, error) {
	content := strings.TrimSpace(up.Content)
	if content == "" {
		return nil, ErrEmptyMaterial
	}
	req := up.Request
	chunkSize, overlap, err := s.ingester.Config().ResolveChunking(req.ChunkSize, req.Overlap)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	material := &models.Material{
		Title:        req.Title,
		SubjectID:    req.SubjectID,
		CourseID:     req.CourseID,
		LessonID:     req.LessonID,
		UploadedBy:   uploaderID,
		ContentType:  up.ContentType,
		Content:      content,
		Pages:        up.Pages,
		ChunkSize:    chunkSize,
		ChunkOverlap: overlap,
		Status:       models.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, material); err != nil {
		return nil, fmt.Errorf("failed to store material: %w", err)
	}
	id := material.ID.Hex()

	async := req.Async || (s.asyncMinSize > 0 && len(content) >= s.asyncMinSize)
	if async && s.enqueuer != nil {
		taskID, err := s.enqueuer.EnqueueIngest(ctx, id, chunkSize, overlap)
		if err == nil {
			material.TaskID = taskID
			if err := s.repo.Update(ctx, id, bson.M{"task_id": taskID, "updated_at": s.now().UTC()}); err != nil {
				s.logger.Warn("Failed to record ingestion task id", "material_id", id, "error", err)
			}
			return &models.MaterialResponse{
				Material: *material,
				TaskID:   taskID,
				Message:  "Material stored; ingestion queued",
			}, nil
		}
		s.logger.Warn("Enqueue failed, ingesting inline", "material_id", id, "error", err)
	}

	result, err := s.Process(ctx, id, chunkSize, overlap)
	if updated, getErr := s.repo.Get(ctx, id); getErr == nil {
		material = updated
	}
	if err != nil {
		return &models.MaterialResponse{Material: *material, Message: "Material ingestion failed"}, err
	}
	resp := &models.MaterialResponse{
		Material: *material,
		Stored:   result.Stored,
		Message:  "Material ingested",
	}
	if len(result.Failures) > 0 {
		resp.Failures = result.Failures
		resp.Message = fmt.Sprintf("Material ingested with %d skipped chunks", len(result.Failures))
	}
	return resp, nil
}

// Process runs the ingestion pipeline for a stored material and records the
// outcome on the material document. It is safe to repeat. Zero chunkSize and
// overlap reuse the chunking the material was last ingested with.
func (s *MaterialService) Process(ctx context.Context, materialID string, chunkSize, overlap int) (*rag.IngestResult, error) {
	material, err := s.repo.Get(ctx, materialID)
	if err != nil {
		return nil, err
	}
	if chunkSize == 0 && overlap == 0 && material.ChunkSize > 0 {
		chunkSize, overlap = material.ChunkSize, material.ChunkOverlap
	}
	chunkSize, overlap, err = s.ingester.Config().ResolveChunking(chunkSize, overlap)
	if err != nil {
		return nil, err
	}

	start := s.now()
	if err := s.repo.Update(ctx, materialID, bson.M{"status": models.StatusProcessing, "updated_at": start.UTC()}); err != nil {
		return nil, err
	}
	// Different chunking can yield fewer chunks than the last run.
	staleDeleted := false
	if material.StoredChunks > 0 {
		if err := s.ingester.DeleteSource(ctx, materialID); err != nil {
			return nil, s.fail(ctx, material, start, fmt.Errorf("failed to delete previous embeddings: %w", err), false)
		}
		staleDeleted = true
	}

	result, err := s.ingester.Ingest(ctx, rag.IngestRequest{
		DocumentText: material.Content,
		SourceID:     materialID,
		ChunkSize:    chunkSize,
		Overlap:      overlap,
		Metadata:     materialMetadata(material),
	})
	if err != nil {
		return nil, s.fail(ctx, material, start, err, staleDeleted)
	}

	elapsed := time.Since(start).Seconds()
	finished := s.now().UTC()
	s.metrics.RecordIngestion(ctx, result.Stored, len(result.Failures), elapsed, "completed")
	fields := bson.M{
		"status":        models.StatusCompleted,
		"chunk_count":   result.Total,
		"stored_chunks": result.Stored,
		"chunk_size":    chunkSize,
		"chunk_overlap": overlap,
		"error_message": "",
		"processed_at":  finished,
		"updated_at":    finished,
	}
	if err := s.repo.Update(ctx, materialID, fields); err != nil {
		return nil, err
	}
	s.invalidate(ctx, material.SubjectID)

	s.logger.Info("Material ingested", "material_id", materialID, "chunks", result.Total, "stored", result.Stored, "skipped", len(result.Failures))
	return result, nil
}

// fail marks a material whose ingestion broke off as failed and returns err.
// Cached contexts are dropped when its previous embeddings are already gone.
func (s *MaterialService) fail(ctx context.Context, material *models.Material, start time.Time, err error, staleDeleted bool) error {
	materialID := material.ID.Hex()
	s.metrics.RecordIngestion(ctx, 0, 0, time.Since(start).Seconds(), rag.FailureKind(err))
	s.logger.Error("Material ingestion failed", "material_id", materialID, "kind", rag.FailureKind(err), "error", err)

	// Record the failure even if the caller's context is gone.
	updCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	fields := bson.M{
		"status":        models.StatusFailed,
		"error_message": err.Error(),
		"updated_at":    s.now().UTC(),
	}
	if staleDeleted {
		fields["stored_chunks"] = 0
	}
	if updErr := s.repo.Update(updCtx, materialID, fields); updErr != nil {
		s.logger.Warn("Failed to mark material as failed", "material_id", materialID, "error", updErr)
	}
	if staleDeleted {
		s.invalidate(updCtx, material.SubjectID)
	}
	return err
}

// Delete removes the material's embeddings first; the document is kept when
// that fails so the delete can be retried.
func (s *MaterialService) Delete(ctx context.Context, materialID string) error {
	material, err := s.repo.Get(ctx, materialID)
	if err != nil {
		return err
	}
	if err := s.ingester.DeleteSource(ctx, materialID); err != nil {
		return fmt.Errorf("failed to delete embeddings of material %s: %w", materialID, err)
	}
	if err := s.repo.Delete(ctx, materialID); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	s.invalidate(ctx, material.SubjectID)
	return nil
}

func (s *MaterialService) Get(ctx context.Context, id string) (*models.Material, error) {
	return s.repo.Get(ctx, id)
}

func (s *MaterialService) List(ctx context.Context, subjectID string) ([]models.Material, error) {
	return s.repo.List(ctx, subjectID)
}

// Search retrieves assembled context for a query, scoped to a subject when
// one is given.
func (s *MaterialService) Search(ctx context.Context, req models.SearchRequest) (*rag.QueryResult, error) {
	return s.query(ctx, req.Query, req.SubjectID, req.Limit, req.MaxContextLength, "search")
}

func (s *MaterialService) query(ctx context.Context, text, subjectID string, limit, maxLen int, source string) (*rag.QueryResult, error) {
	qr := rag.QueryRequest{QueryText: text, Limit: limit, MaxContextLength: maxLen}
	if subjectID != "" {
		qr.Scope = &rag.Scope{Key: ScopeKey, Value: subjectID}
	}
	start := time.Now()
	res, err := s.querier.Query(ctx, qr)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordQuery(ctx, time.Since(start).Seconds(), len(res.Results), source)
	return res, nil
}

func (s *MaterialService) invalidate(ctx context.Context, subjectID string) {
	if s.invalidator == nil {
		return
	}
	var scope *rag.Scope
	if subjectID != "" {
		scope = &rag.Scope{Key: ScopeKey, Value: subjectID}
	}
	if err := s.invalidator.InvalidateScope(ctx, scope); err != nil {
		s.logger.Warn("Failed to invalidate context cache", "subject_id", subjectID, "error", err)
	}
}

func materialMetadata(m *models.Material) map[string]any {
	meta := map[string]any{
		ScopeKey:      m.SubjectID,
		"material_id": m.ID.Hex(),
		"title":       m.Title,
	}
	if m.CourseID != "" {
		meta["course_id"] = m.CourseID
	}
	if m.LessonID != "" {
		meta["lesson_id"] = m.LessonID
	}
	return meta
}
