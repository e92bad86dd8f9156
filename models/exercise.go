package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	ExerciseTypeQuiz       = "quiz"
	ExerciseTypeAssignment = "assignment"
	ExerciseTypeTest       = "test"
)

// Question is a multiple-choice question. CorrectAnswer indexes Options.
type Question struct {
	Question      string   `bson:"question" json:"question" binding:"required"`
	Options       []string `bson:"options" json:"options" binding:"required,min=2"`
	CorrectAnswer int      `bson:"correct_answer" json:"correct_answer" binding:"gte=0"`
	Explanation   string   `bson:"explanation,omitempty" json:"explanation,omitempty"`
	Points        float64  `bson:"points,omitempty" json:"points,omitempty"`
}

type Exercise struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title            string             `bson:"title" json:"title"`
	Description      string             `bson:"description" json:"description"`
	CourseID         string             `bson:"course_id" json:"course_id"`
	LessonID         string             `bson:"lesson_id,omitempty" json:"lesson_id,omitempty"`
	SubjectCode      string             `bson:"subject_code,omitempty" json:"subject_code,omitempty"`
	ExerciseType     string             `bson:"exercise_type" json:"exercise_type"`
	Questions        []Question         `bson:"questions" json:"questions"`
	TimeLimitMinutes int                `bson:"time_limit_minutes,omitempty" json:"time_limit_minutes,omitempty"`
	MaxAttempts      int                `bson:"max_attempts" json:"max_attempts"`
	PassingScore     float64            `bson:"passing_score" json:"passing_score"`
	IsPublished      bool               `bson:"is_published" json:"is_published"`
	CreatedBy        string             `bson:"created_by" json:"created_by"`
	CreatedAt        time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt        time.Time          `bson:"updated_at" json:"updated_at"`
}

type CreateExerciseRequest struct {
	Title            string     `json:"title" binding:"required,min=3,max=200"`
	Description      string     `json:"description" binding:"max=5000"`
	CourseID         string     `json:"course_id" binding:"required"`
	LessonID         string     `json:"lesson_id"`
	SubjectCode      string     `json:"subject_code"`
	ExerciseType     string     `json:"exercise_type" binding:"required,oneof=quiz assignment test"`
	Questions        []Question `json:"questions" binding:"dive"`
	TimeLimitMinutes int        `json:"time_limit_minutes" binding:"gte=0"`
	MaxAttempts      int        `json:"max_attempts" binding:"gte=0"`
	PassingScore     float64    `json:"passing_score" binding:"gte=0,lte=100"`
	IsPublished      bool       `json:"is_published"`
}

type UpdateExerciseRequest struct {
	Title            *string     `json:"title" binding:"omitempty,min=3,max=200"`
	Description      *string     `json:"description"`
	Questions        *[]Question `json:"questions"`
	TimeLimitMinutes *int        `json:"time_limit_minutes" binding:"omitempty,gte=0"`
	MaxAttempts      *int        `json:"max_attempts" binding:"omitempty,gte=0"`
	PassingScore     *float64    `json:"passing_score" binding:"omitempty,gte=0,lte=100"`
	IsPublished      *bool       `json:"is_published"`
}

type ExerciseFilter struct {
	CourseID      string
	LessonID      string
	SubjectCode   string
	PublishedOnly bool
	Skip          int64
	Limit         int64
}

// AnswerResult records one graded answer. Selected is -1 when unanswered.
type AnswerResult struct {
	QuestionIndex int     `bson:"question_index" json:"question_index"`
	Selected      int     `bson:"selected" json:"selected"`
	Correct       bool    `bson:"correct" json:"correct"`
	Points        float64 `bson:"points" json:"points"`
}

type ExerciseSubmission struct {
	ID               primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ExerciseID       string             `bson:"exercise_id" json:"exercise_id"`
	StudentID        string             `bson:"student_id" json:"student_id"`
	Attempt          int                `bson:"attempt" json:"attempt"`
	Answers          []AnswerResult     `bson:"answers" json:"answers"`
	CorrectAnswers   int                `bson:"correct_answers" json:"correct_answers"`
	TotalQuestions   int                `bson:"total_questions" json:"total_questions"`
	Score            float64            `bson:"score" json:"score"`
	Passed           bool               `bson:"passed" json:"passed"`
	TimeTakenMinutes int                `bson:"time_taken_minutes,omitempty" json:"time_taken_minutes,omitempty"`
	SubmittedAt      time.Time          `bson:"submitted_at" json:"submitted_at"`
}

type SubmitExerciseRequest struct {
	// Answers maps question index to the selected option index.
	Answers          []int `json:"answers" binding:"required"`
	TimeTakenMinutes int   `json:"time_taken_minutes" binding:"gte=0"`
}
