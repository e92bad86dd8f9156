package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Course struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title           string             `bson:"title" json:"title"`
	Description     string             `bson:"description" json:"description"`
	SubjectCode     string             `bson:"subject_code" json:"subject_code"`
	InstructorID    string             `bson:"instructor_id" json:"instructor_id"`
	ThumbnailURL    string             `bson:"thumbnail_url,omitempty" json:"thumbnail_url,omitempty"`
	IsPublished     bool               `bson:"is_published" json:"is_published"`
	EnrollmentCount int                `bson:"enrollment_count" json:"enrollment_count"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

type CreateCourseRequest struct {
	Title        string `json:"title" binding:"required,min=3,max=200"`
	Description  string `json:"description" binding:"max=5000"`
	SubjectCode  string `json:"subject_code" binding:"required,max=20"`
	ThumbnailURL string `json:"thumbnail_url" binding:"omitempty,url"`
	IsPublished  bool   `json:"is_published"`
}

// UpdateCourseRequest holds a partial update; nil fields are left unchanged.
type UpdateCourseRequest struct {
	Title        *string `json:"title" binding:"omitempty,min=3,max=200"`
	Description  *string `json:"description" binding:"omitempty,max=5000"`
	SubjectCode  *string `json:"subject_code" binding:"omitempty,max=20"`
	ThumbnailURL *string `json:"thumbnail_url" binding:"omitempty,url"`
	IsPublished  *bool   `json:"is_published"`
}

type CourseFilter struct {
	SubjectCode   string
	InstructorID  string
	PublishedOnly bool
	Skip          int64
	Limit         int64
}

type Lesson struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	CourseID        string             `bson:"course_id" json:"course_id"`
	Title           string             `bson:"title" json:"title"`
	Content         string             `bson:"content" json:"content"`
	Order           int                `bson:"order" json:"order"`
	DurationMinutes int                `bson:"duration_minutes" json:"duration_minutes"`
	VideoURL        string             `bson:"video_url,omitempty" json:"video_url,omitempty"`
	IsPublished     bool               `bson:"is_published" json:"is_published"`
	CreatedAt       time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt       time.Time          `bson:"updated_at" json:"updated_at"`
}

type CreateLessonRequest struct {
	Title           string `json:"title" binding:"required,min=1,max=200"`
	Content         string `json:"content"`
	Order           int    `json:"order" binding:"gte=0"`
	DurationMinutes int    `json:"duration_minutes" binding:"gte=0"`
	VideoURL        string `json:"video_url" binding:"omitempty,url"`
	IsPublished     bool   `json:"is_published"`
}

type UpdateLessonRequest struct {
	Title           *string `json:"title" binding:"omitempty,min=1,max=200"`
	Content         *string `json:"content"`
	Order           *int    `json:"order" binding:"omitempty,gte=0"`
	DurationMinutes *int    `json:"duration_minutes" binding:"omitempty,gte=0"`
	VideoURL        *string `json:"video_url" binding:"omitempty,url"`
	IsPublished     *bool   `json:"is_published"`
}

type Enrollment struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	StudentID          string             `bson:"student_id" json:"student_id"`
	CourseID           string             `bson:"course_id" json:"course_id"`
	EnrolledAt         time.Time          `bson:"enrolled_at" json:"enrolled_at"`
	ProgressPercentage float64            `bson:"progress_percentage" json:"progress_percentage"`
	IsCompleted        bool               `bson:"is_completed" json:"is_completed"`
	CompletedAt        *time.Time         `bson:"completed_at,omitempty" json:"completed_at,omitempty"`
}
