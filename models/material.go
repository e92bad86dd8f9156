package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Material is an uploaded study document (lecture notes, PDF, transcript)
// that gets chunked and embedded for retrieval.
type Material struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title        string             `bson:"title" json:"title"`
	SubjectID    string             `bson:"subject_id" json:"subject_id"`
	CourseID     string             `bson:"course_id,omitempty" json:"course_id,omitempty"`
	LessonID     string             `bson:"lesson_id,omitempty" json:"lesson_id,omitempty"`
	UploadedBy   string             `bson:"uploaded_by" json:"uploaded_by"`
	ContentType  string             `bson:"content_type" json:"content_type"` // text/plain, application/pdf
	Content      string             `bson:"content" json:"-"`
	Pages        int                `bson:"pages,omitempty" json:"pages,omitempty"`
	Status       string             `bson:"status" json:"status"` // pending, processing, completed, failed
	ChunkCount   int                `bson:"chunk_count" json:"chunk_count"`
	StoredChunks int                `bson:"stored_chunks" json:"stored_chunks"`
	ChunkSize    int                `bson:"chunk_size,omitempty" json:"chunk_size,omitempty"`
	ChunkOverlap int                `bson:"chunk_overlap" json:"chunk_overlap"`
	ErrorMessage string             `bson:"error_message,omitempty" json:"error_message,omitempty"`
	TaskID       string             `bson:"task_id,omitempty" json:"task_id,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
	ProcessedAt  *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// MaterialEmbedding is the stored form of one embedded chunk. Records are
// written once and removed only with their source material.
type MaterialEmbedding struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	ChunkID     string             `bson:"chunk_id"`
	SourceID    string             `bson:"source_id"`
	Text        string             `bson:"text"`
	StartOffset int                `bson:"start_offset"`
	EndOffset   int                `bson:"end_offset"`
	Vector      []float32          `bson:"vector"`
	Dimension   int                `bson:"dimension"`
	Metadata    map[string]any     `bson:"metadata,omitempty"`
	CreatedAt   time.Time          `bson:"created_at"`
}

type CreateMaterialRequest struct {
	Title     string `json:"title" form:"title" binding:"required,min=1,max=200"`
	SubjectID string `json:"subject_id" form:"subject_id" binding:"required,min=1,max=50"`
	CourseID  string `json:"course_id,omitempty" form:"course_id" binding:"omitempty,hexadecimal,len=24"`
	LessonID  string `json:"lesson_id,omitempty" form:"lesson_id" binding:"omitempty,hexadecimal,len=24"`
	Content   string `json:"content,omitempty" form:"content"`
	ChunkSize int    `json:"chunk_size,omitempty" form:"chunk_size" binding:"omitempty,min=1,max=10000"`
	Overlap   int    `json:"overlap,omitempty" form:"overlap" binding:"omitempty,min=0"`
	Async     bool   `json:"async,omitempty" form:"async"`
}

type MaterialResponse struct {
	Material Material `json:"material"`
	Stored   int      `json:"stored"`
	Failures any      `json:"failures,omitempty"`
	TaskID   string   `json:"task_id,omitempty"`
	Message  string   `json:"message"`
}

// ReprocessRequest re-chunks a material. Omitted fields keep the chunking the
// material was last ingested with.
type ReprocessRequest struct {
	ChunkSize int `json:"chunk_size,omitempty" binding:"omitempty,min=1,max=10000"`
	Overlap   int `json:"overlap,omitempty" binding:"omitempty,min=0"`
}

type SearchRequest struct {
	Query            string `json:"query" binding:"required,min=1,max=2000"`
	SubjectID        string `json:"subject_id,omitempty"`
	Limit            int    `json:"limit,omitempty" binding:"omitempty,min=1,max=50"`
	MaxContextLength int    `json:"max_context_length,omitempty" binding:"omitempty,min=1,max=20000"`
}

// Material processing status constants
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)
